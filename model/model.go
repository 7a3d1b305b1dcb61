package model

import "time"

type Meeting struct {
	ID          int       `json:"id,omitempty"`
	Acronym     string    `json:"acronym"`
	Title       string    `json:"title"`
	MeetingType string    `json:"meeting_type"`
	StartsOn    time.Time `json:"starts_on"`
	EndsOn      time.Time `json:"ends_on"`
}

type Category struct {
	ID        int           `json:"id,omitempty"`
	MeetingID *int          `json:"meeting_id,omitempty"`
	Title     LocalizedText `json:"title"`
	SortOrder int           `json:"sort_order"`
}

// FieldFor distinguishes the two registration schemas a meeting carries.
type FieldFor string

const (
	ForParticipant FieldFor = "participant"
	ForMedia       FieldFor = "media"
)

func (f FieldFor) Valid() bool {
	return f == ForParticipant || f == ForMedia
}

type CustomField struct {
	ID            int                 `json:"id,omitempty"`
	MeetingID     *int                `json:"meeting_id,omitempty"`
	Slug          string              `json:"slug"`
	Label         LocalizedText       `json:"label"`
	Type          FieldType           `json:"type"`
	For           FieldFor            `json:"for"`
	Required      bool                `json:"required"`
	SortOrder     int                 `json:"sort_order"`
	Primary       bool                `json:"primary,omitempty"`
	Protected     bool                `json:"protected,omitempty"`
	VisibleOnForm bool                `json:"visible_on_form"`
	MaxLength     int                 `json:"max_length,omitempty"`
	Choices       []CustomFieldChoice `json:"choices,omitempty"`
}

type CustomFieldChoice struct {
	ID        int           `json:"id,omitempty"`
	FieldID   int           `json:"-"`
	Label     LocalizedText `json:"label"`
	SortOrder int           `json:"sort_order"`
}

// CustomFieldValue is one stored value for a (field, participant) pair.
// Multi-checkbox selections are one row per selected choice; every other
// kind keeps exactly one row per pair, enforced by a unique index.
type CustomFieldValue struct {
	ID            int    `json:"id,omitempty"`
	FieldID       int    `json:"field_id"`
	ParticipantID int    `json:"participant_id"`
	ChoiceID      *int   `json:"choice_id,omitempty"`
	Value         string `json:"value"`
}

// Participant columns mirror the primary custom fields; everything else
// lives in custom_field_value rows.
type Participant struct {
	ID         int    `json:"id,omitempty"`
	MeetingID  int    `json:"meeting_id"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Email      string `json:"email"`
	CategoryID *int   `json:"category_id,omitempty"`
	Country    string `json:"country,omitempty"`
	Language   string `json:"language,omitempty"`
	Represents string `json:"represents,omitempty"`
}

type Rule struct {
	ID         int         `json:"id,omitempty"`
	MeetingID  int         `json:"meeting_id"`
	Name       string      `json:"name"`
	For        FieldFor    `json:"for"`
	Conditions []Condition `json:"conditions"`
	Actions    []Action    `json:"actions"`
}

// Condition matches when the current value of its field is one of Values.
// Values are OR'ed; conditions of the same rule are AND'ed.
type Condition struct {
	ID        int      `json:"id,omitempty"`
	RuleID    int      `json:"-"`
	FieldID   int      `json:"field_id"`
	FieldSlug string   `json:"field_slug,omitempty"`
	Values    []string `json:"values"`
}

type Action struct {
	ID        int    `json:"id,omitempty"`
	RuleID    int    `json:"-"`
	FieldID   int    `json:"field_id"`
	FieldSlug string `json:"field_slug,omitempty"`
	Required  bool   `json:"required"`
	Visible   bool   `json:"visible"`
}

// Phrase is a localized text snippet; rows with a nil MeetingID are the
// per-meeting-type defaults copied into every new meeting.
type Phrase struct {
	ID          int           `json:"id,omitempty"`
	MeetingID   *int          `json:"meeting_id,omitempty"`
	MeetingType string        `json:"meeting_type"`
	Key         string        `json:"key"`
	Text        LocalizedText `json:"text"`
}

type MeetingRole struct {
	ID        int    `json:"id,omitempty"`
	MeetingID int    `json:"meeting_id"`
	Username  string `json:"username"`
	Role      string `json:"role"`
}
