package clone

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"testing"

	"github.com/mbolis/quick-register/config"
	"github.com/mbolis/quick-register/database"
	"github.com/mbolis/quick-register/model"
	"github.com/mbolis/quick-register/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := database.Open(config.Config{DBUrl: "file:" + name + "?mode=memory&cache=shared"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func countRows(t *testing.T, db *sql.DB, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(query, args...).Scan(&n))
	return n
}

func TestCreateSeedsDefaults(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	m, err := Create(ctx, db, model.Meeting{
		Acronym: "COP31", Title: "Conference of the Parties", MeetingType: "conference",
	})
	require.NoError(t, err)
	require.NotZero(t, m.ID)

	assert.Equal(t, 7, countRows(t, db, `
		SELECT COUNT(*) FROM custom_field WHERE meeting_id = ? AND field_for = 'participant'`, m.ID))
	assert.Equal(t, 4, countRows(t, db, `
		SELECT COUNT(*) FROM custom_field WHERE meeting_id = ? AND field_for = 'media'`, m.ID))
	assert.Equal(t, 3, countRows(t, db, `
		SELECT COUNT(*) FROM category WHERE meeting_id = ?`, m.ID))
	assert.Equal(t, 3, countRows(t, db, `
		SELECT COUNT(*) FROM phrase WHERE meeting_id = ?`, m.ID))
}

func TestCreateSeedsPhrasesByMeetingType(t *testing.T) {
	db := testDB(t)

	m, err := Create(context.Background(), db, model.Meeting{
		Acronym: "WS1", Title: "Drafting workshop", MeetingType: "workshop",
	})
	require.NoError(t, err)

	assert.Equal(t, 2, countRows(t, db, `
		SELECT COUNT(*) FROM phrase WHERE meeting_id = ?`, m.ID))
}

func TestCreateAcronymTaken(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	_, err := Create(ctx, db, model.Meeting{Acronym: "COP31", Title: "First", MeetingType: "conference"})
	require.NoError(t, err)

	_, err = Create(ctx, db, model.Meeting{Acronym: "COP31", Title: "Second", MeetingType: "conference"})
	assert.ErrorIs(t, err, ErrAcronymTaken)
}

// sourceMeeting seeds a meeting with an extra select field, a passport
// text field and a rule conditioned on the select field's first choice.
func sourceMeeting(t *testing.T, db *sql.DB) (meetingID, selectFieldID, choiceID, passportFieldID, categoryID int) {
	t.Helper()
	ctx := context.Background()

	m, err := Create(ctx, db, model.Meeting{
		Acronym: "SRC", Title: "Source meeting", MeetingType: "conference",
	})
	require.NoError(t, err)
	meetingID = m.ID

	err = db.QueryRow(`
		INSERT INTO custom_field (meeting_id, slug, label, field_type, field_for, sort_order)
		VALUES (?, 'delegation_type', '{"en":"Delegation type"}', 'select', 'participant', 100)
		RETURNING id`,
		meetingID,
	).Scan(&selectFieldID)
	require.NoError(t, err)

	err = db.QueryRow(`
		INSERT INTO custom_field_choice (custom_field_id, label, sort_order)
		VALUES (?, '{"en":"Government"}', 10)
		RETURNING id`,
		selectFieldID,
	).Scan(&choiceID)
	require.NoError(t, err)

	err = db.QueryRow(`
		INSERT INTO custom_field (meeting_id, slug, label, field_type, field_for, sort_order)
		VALUES (?, 'passport_number', '{"en":"Passport number"}', 'text', 'participant', 110)
		RETURNING id`,
		meetingID,
	).Scan(&passportFieldID)
	require.NoError(t, err)

	err = db.QueryRow(`
		SELECT id FROM category WHERE meeting_id = ? ORDER BY sort_order LIMIT 1`,
		meetingID,
	).Scan(&categoryID)
	require.NoError(t, err)

	var ruleID int
	err = db.QueryRow(`
		INSERT INTO rule (meeting_id, name, rule_for)
		VALUES (?, 'Passport for government delegates', 'participant')
		RETURNING id`,
		meetingID,
	).Scan(&ruleID)
	require.NoError(t, err)

	var conditionID int
	err = db.QueryRow(`
		INSERT INTO rule_condition (rule_id, custom_field_id)
		VALUES (?, ?)
		RETURNING id`,
		ruleID, selectFieldID,
	).Scan(&conditionID)
	require.NoError(t, err)
	_, err = db.Exec(`
		INSERT INTO rule_condition_value (condition_id, value) VALUES (?, ?)`,
		conditionID, strconv.Itoa(choiceID),
	)
	require.NoError(t, err)

	_, err = db.Exec(`
		INSERT INTO rule_action (rule_id, custom_field_id, is_required, is_visible)
		VALUES (?, ?, TRUE, TRUE)`,
		ruleID, passportFieldID,
	)
	require.NoError(t, err)

	return meetingID, selectFieldID, choiceID, passportFieldID, categoryID
}

func TestCloneMeetingCopiesSchema(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	sourceID, _, _, _, _ := sourceMeeting(t, db)

	m, err := Meeting(ctx, db, sourceID, model.Meeting{Acronym: "DST", Title: "Cloned meeting"})
	require.NoError(t, err)
	require.NotZero(t, m.ID)
	assert.Equal(t, "conference", m.MeetingType)

	assert.Equal(t, 9, countRows(t, db, `
		SELECT COUNT(*) FROM custom_field WHERE meeting_id = ? AND field_for = 'participant'`, m.ID))
	assert.Equal(t, 3, countRows(t, db, `
		SELECT COUNT(*) FROM category WHERE meeting_id = ?`, m.ID))
	assert.Equal(t, 3, countRows(t, db, `
		SELECT COUNT(*) FROM phrase WHERE meeting_id = ?`, m.ID))

	// slug for slug, the clone carries the source schema
	assert.Equal(t, 0, countRows(t, db, `
		SELECT COUNT(*) FROM custom_field s
		WHERE s.meeting_id = ? AND NOT EXISTS (
			SELECT 1 FROM custom_field d
			WHERE d.meeting_id = ? AND d.slug = s.slug AND d.field_for = s.field_for
		)`,
		sourceID, m.ID))
}

func TestCloneMeetingRemapsRules(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	sourceID, selectFieldID, choiceID, passportFieldID, _ := sourceMeeting(t, db)

	m, err := Meeting(ctx, db, sourceID, model.Meeting{Acronym: "DST", Title: "Cloned meeting"})
	require.NoError(t, err)

	set, err := rules.Load(ctx, db, m.ID, model.ForParticipant)
	require.NoError(t, err)
	require.Len(t, set, 1)
	require.Len(t, set[0].Conditions, 1)
	require.Len(t, set[0].Actions, 1)

	cond := set[0].Conditions[0]
	action := set[0].Actions[0]

	// every reference points into the clone, none into the source
	assert.NotEqual(t, selectFieldID, cond.FieldID)
	assert.Equal(t, "delegation_type", cond.FieldSlug)
	assert.NotEqual(t, passportFieldID, action.FieldID)
	assert.Equal(t, "passport_number", action.FieldSlug)

	require.Len(t, cond.Values, 1)
	assert.NotEqual(t, strconv.Itoa(choiceID), cond.Values[0])

	var clonedChoiceID int
	err = db.QueryRow(`
		SELECT id FROM custom_field_choice WHERE custom_field_id = ?`,
		cond.FieldID,
	).Scan(&clonedChoiceID)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(clonedChoiceID), cond.Values[0])
}

func TestCloneMeetingRemapsCategoryValues(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	sourceID, _, _, passportFieldID, categoryID := sourceMeeting(t, db)

	// a second rule conditioned on the category field
	var categoryFieldID int
	err := db.QueryRow(`
		SELECT id FROM custom_field
		WHERE meeting_id = ? AND slug = 'category' AND field_for = 'participant'`,
		sourceID,
	).Scan(&categoryFieldID)
	require.NoError(t, err)

	var ruleID, conditionID int
	err = db.QueryRow(`
		INSERT INTO rule (meeting_id, name, rule_for)
		VALUES (?, 'Passport for delegates', 'participant')
		RETURNING id`,
		sourceID,
	).Scan(&ruleID)
	require.NoError(t, err)
	err = db.QueryRow(`
		INSERT INTO rule_condition (rule_id, custom_field_id)
		VALUES (?, ?)
		RETURNING id`,
		ruleID, categoryFieldID,
	).Scan(&conditionID)
	require.NoError(t, err)
	_, err = db.Exec(`
		INSERT INTO rule_condition_value (condition_id, value) VALUES (?, ?)`,
		conditionID, strconv.Itoa(categoryID),
	)
	require.NoError(t, err)
	_, err = db.Exec(`
		INSERT INTO rule_action (rule_id, custom_field_id, is_required, is_visible)
		VALUES (?, ?, TRUE, FALSE)`,
		ruleID, passportFieldID,
	)
	require.NoError(t, err)

	m, err := Meeting(ctx, db, sourceID, model.Meeting{Acronym: "DST", Title: "Cloned meeting"})
	require.NoError(t, err)

	// the condition value now holds the id of the same-titled category in
	// the clone
	var sourceTitle string
	require.NoError(t, db.QueryRow(`SELECT title FROM category WHERE id = ?`, categoryID).Scan(&sourceTitle))

	var remapped string
	err = db.QueryRow(`
		SELECT v.value
		FROM rule_condition_value v
		INNER JOIN rule_condition c ON (c.id = v.condition_id)
		INNER JOIN rule r ON (r.id = c.rule_id)
		WHERE r.meeting_id = ? AND r.name = 'Passport for delegates'`,
		m.ID,
	).Scan(&remapped)
	require.NoError(t, err)
	assert.NotEqual(t, strconv.Itoa(categoryID), remapped)

	var remappedTitle string
	var remappedMeeting int
	require.NoError(t, db.QueryRow(`
		SELECT title, meeting_id FROM category WHERE id = ?`, remapped,
	).Scan(&remappedTitle, &remappedMeeting))
	assert.Equal(t, sourceTitle, remappedTitle)
	assert.Equal(t, m.ID, remappedMeeting)
}

func TestCloneMeetingFailsOnAmbiguousCategoryTitle(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	sourceID, _, _, passportFieldID, categoryID := sourceMeeting(t, db)

	// duplicate the referenced category title; the title match in the
	// clone becomes ambiguous and the whole clone must fail
	var title string
	require.NoError(t, db.QueryRow(`SELECT title FROM category WHERE id = ?`, categoryID).Scan(&title))
	_, err := db.Exec(`
		INSERT INTO category (meeting_id, title, sort_order) VALUES (?, ?, 99)`,
		sourceID, title,
	)
	require.NoError(t, err)

	var categoryFieldID int
	require.NoError(t, db.QueryRow(`
		SELECT id FROM custom_field
		WHERE meeting_id = ? AND slug = 'category' AND field_for = 'participant'`,
		sourceID,
	).Scan(&categoryFieldID))

	var ruleID, conditionID int
	require.NoError(t, db.QueryRow(`
		INSERT INTO rule (meeting_id, name, rule_for)
		VALUES (?, 'Ambiguous', 'participant')
		RETURNING id`,
		sourceID,
	).Scan(&ruleID))
	require.NoError(t, db.QueryRow(`
		INSERT INTO rule_condition (rule_id, custom_field_id) VALUES (?, ?) RETURNING id`,
		ruleID, categoryFieldID,
	).Scan(&conditionID))
	_, err = db.Exec(`
		INSERT INTO rule_condition_value (condition_id, value) VALUES (?, ?)`,
		conditionID, strconv.Itoa(categoryID),
	)
	require.NoError(t, err)
	_, err = db.Exec(`
		INSERT INTO rule_action (rule_id, custom_field_id, is_required, is_visible)
		VALUES (?, ?, TRUE, FALSE)`,
		ruleID, passportFieldID,
	)
	require.NoError(t, err)

	_, err = Meeting(ctx, db, sourceID, model.Meeting{Acronym: "DST", Title: "Cloned meeting"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Ambiguous")
}

func TestCloneMeetingAcronymTaken(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	sourceID, _, _, _, _ := sourceMeeting(t, db)

	_, err := Meeting(ctx, db, sourceID, model.Meeting{Acronym: "SRC", Title: "Same acronym"})
	assert.ErrorIs(t, err, ErrAcronymTaken)
}

func TestCloneMissingSource(t *testing.T) {
	db := testDB(t)

	_, err := Meeting(context.Background(), db, 9999, model.Meeting{Acronym: "DST", Title: "Nowhere"})
	assert.Error(t, err)
}

func TestCloneMeetingCopiesRoles(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	sourceID, _, _, _, _ := sourceMeeting(t, db)

	_, err := db.Exec(`
		INSERT INTO meeting_role (meeting_id, username, role)
		VALUES (?, 'organizer1', 'admin')`,
		sourceID,
	)
	require.NoError(t, err)

	m, err := Meeting(ctx, db, sourceID, model.Meeting{Acronym: "DST", Title: "Cloned meeting"})
	require.NoError(t, err)

	assert.Equal(t, 1, countRows(t, db, `
		SELECT COUNT(*) FROM meeting_role WHERE meeting_id = ? AND username = 'organizer1'`, m.ID))
}
