package form

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"testing"

	"github.com/mbolis/quick-register/config"
	"github.com/mbolis/quick-register/database"
	"github.com/mbolis/quick-register/field"
	"github.com/mbolis/quick-register/filestore"
	"github.com/mbolis/quick-register/model"
	"github.com/mbolis/quick-register/schema"
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

func insertMeeting(t *testing.T, db *sql.DB, acronym string) int {
	t.Helper()
	var id int
	err := db.QueryRow(`
		INSERT INTO meeting (acronym, title, meeting_type)
		VALUES (?, ?, 'conference')
		RETURNING id`,
		acronym, "Meeting "+acronym,
	).Scan(&id)
	require.NoError(t, err)
	return id
}

func insertField(t *testing.T, db *sql.DB, meetingID int, slug string, typ model.FieldType, primary bool) int {
	t.Helper()
	var id int
	err := db.QueryRow(`
		INSERT INTO custom_field (meeting_id, slug, label, field_type, field_for, is_primary)
		VALUES (?, ?, ?, ?, 'participant', ?)
		RETURNING id`,
		meetingID, slug, `{"en":"`+slug+`"}`, string(typ), primary,
	).Scan(&id)
	require.NoError(t, err)
	return id
}

func insertChoice(t *testing.T, db *sql.DB, fieldID int, label string, sortOrder int) int {
	t.Helper()
	var id int
	err := db.QueryRow(`
		INSERT INTO custom_field_choice (custom_field_id, label, sort_order)
		VALUES (?, ?, ?)
		RETURNING id`,
		fieldID, `{"en":"`+label+`"}`, sortOrder,
	).Scan(&id)
	require.NoError(t, err)
	return id
}

func insertParticipant(t *testing.T, db *sql.DB, meetingID int) int {
	t.Helper()
	var id int
	err := db.QueryRow(`
		INSERT INTO participant (meeting_id) VALUES (?) RETURNING id`,
		meetingID,
	).Scan(&id)
	require.NoError(t, err)
	return id
}

func valueRows(t *testing.T, db *sql.DB, fieldID, participantID int) []string {
	t.Helper()
	rows, err := db.Query(`
		SELECT value FROM custom_field_value
		WHERE custom_field_id = ? AND participant_id = ?
		ORDER BY id`,
		fieldID, participantID,
	)
	require.NoError(t, err)
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		require.NoError(t, rows.Scan(&v))
		values = append(values, v)
	}
	require.NoError(t, rows.Err())
	return values
}

func saveValues(t *testing.T, db *sql.DB, fields []schema.Descriptor, p *model.Participant, raw map[string]any, uploads map[string]*field.Upload, files filestore.Store) {
	t.Helper()
	f := New(fields, nil, files)
	f.Bind(raw, uploads)
	require.NoError(t, f.Save(context.Background(), db, p))
}

func TestSaveRequiresPersistedParticipant(t *testing.T) {
	f := New(nil, nil, nil)
	err := f.Save(context.Background(), nil, &model.Participant{})
	assert.Error(t, err)
}

func TestSaveScalarKeepsOneRow(t *testing.T) {
	db := testDB(t)
	meetingID := insertMeeting(t, db, "SAV1")
	fieldID := insertField(t, db, meetingID, "affiliation", model.TypeText, false)
	participantID := insertParticipant(t, db, meetingID)

	fields := []schema.Descriptor{{CustomField: model.CustomField{
		ID: fieldID, Slug: "affiliation", Type: model.TypeText,
	}}}
	p := &model.Participant{ID: participantID, MeetingID: meetingID}

	saveValues(t, db, fields, p, map[string]any{"affiliation": "ACME"}, nil, nil)
	assert.Equal(t, []string{"ACME"}, valueRows(t, db, fieldID, participantID))

	// re-saving updates in place, never grows the row set
	saveValues(t, db, fields, p, map[string]any{"affiliation": "ACME Corp"}, nil, nil)
	assert.Equal(t, []string{"ACME Corp"}, valueRows(t, db, fieldID, participantID))

	// clearing removes the row
	saveValues(t, db, fields, p, map[string]any{"affiliation": ""}, nil, nil)
	assert.Empty(t, valueRows(t, db, fieldID, participantID))
}

func TestSaveUnboundFieldUntouched(t *testing.T) {
	db := testDB(t)
	meetingID := insertMeeting(t, db, "SAV2")
	fieldID := insertField(t, db, meetingID, "affiliation", model.TypeText, false)
	participantID := insertParticipant(t, db, meetingID)

	fields := []schema.Descriptor{{CustomField: model.CustomField{
		ID: fieldID, Slug: "affiliation", Type: model.TypeText,
	}}}
	p := &model.Participant{ID: participantID, MeetingID: meetingID}

	saveValues(t, db, fields, p, map[string]any{"affiliation": "ACME"}, nil, nil)

	// an absent key is not a clear
	saveValues(t, db, fields, p, map[string]any{}, nil, nil)
	assert.Equal(t, []string{"ACME"}, valueRows(t, db, fieldID, participantID))
}

func TestSaveMultiCheckboxReplacesSelection(t *testing.T) {
	db := testDB(t)
	meetingID := insertMeeting(t, db, "SAV3")
	fieldID := insertField(t, db, meetingID, "sessions", model.TypeMultiCheckbox, false)
	a := insertChoice(t, db, fieldID, "Plenary", 10)
	b := insertChoice(t, db, fieldID, "Workshop", 20)
	c := insertChoice(t, db, fieldID, "Field trip", 30)
	participantID := insertParticipant(t, db, meetingID)

	fields := []schema.Descriptor{{CustomField: model.CustomField{
		ID: fieldID, Slug: "sessions", Type: model.TypeMultiCheckbox,
		Choices: []model.CustomFieldChoice{{ID: a}, {ID: b}, {ID: c}},
	}}}
	p := &model.Participant{ID: participantID, MeetingID: meetingID}

	saveValues(t, db, fields, p, map[string]any{
		"sessions": []any{strconv.Itoa(a), strconv.Itoa(c)},
	}, nil, nil)
	assert.Equal(t, []string{strconv.Itoa(a), strconv.Itoa(c)}, valueRows(t, db, fieldID, participantID))

	// the old selection never leaks into the new one
	saveValues(t, db, fields, p, map[string]any{
		"sessions": []any{strconv.Itoa(b)},
	}, nil, nil)
	assert.Equal(t, []string{strconv.Itoa(b)}, valueRows(t, db, fieldID, participantID))
}

func TestSavePrimaryColumns(t *testing.T) {
	db := testDB(t)
	meetingID := insertMeeting(t, db, "SAV4")
	firstNameID := insertField(t, db, meetingID, "first_name", model.TypeText, true)
	countryID := insertField(t, db, meetingID, "country", model.TypeCountry, true)
	categoryFieldID := insertField(t, db, meetingID, "category", model.TypeCategory, true)

	var categoryID int
	err := db.QueryRow(`
		INSERT INTO category (meeting_id, title) VALUES (?, '{"en":"Delegate"}')
		RETURNING id`,
		meetingID,
	).Scan(&categoryID)
	require.NoError(t, err)

	participantID := insertParticipant(t, db, meetingID)

	fields, err := schema.Load(context.Background(), db, schema.Query{
		MeetingID: &meetingID, For: model.ForParticipant,
	})
	require.NoError(t, err)

	p := &model.Participant{ID: participantID, MeetingID: meetingID}
	saveValues(t, db, fields, p, map[string]any{
		"first_name": "Ana",
		"country":    "Romania",
		"category":   strconv.Itoa(categoryID),
	}, nil, nil)

	// primary slugs write the participant row, not the generic value store
	var firstName, country string
	var gotCategory int
	err = db.QueryRow(`
		SELECT first_name, country, category_id FROM participant WHERE id = ?`,
		participantID,
	).Scan(&firstName, &country, &gotCategory)
	require.NoError(t, err)
	assert.Equal(t, "Ana", firstName)
	assert.Equal(t, "RO", country)
	assert.Equal(t, categoryID, gotCategory)

	assert.Empty(t, valueRows(t, db, firstNameID, participantID))
	assert.Empty(t, valueRows(t, db, countryID, participantID))
	assert.Empty(t, valueRows(t, db, categoryFieldID, participantID))

	// the struct mirrors what was written
	assert.Equal(t, "Ana", p.FirstName)
	assert.Equal(t, "RO", p.Country)
	require.NotNil(t, p.CategoryID)
	assert.Equal(t, categoryID, *p.CategoryID)
}

func TestSaveFileUpload(t *testing.T) {
	db := testDB(t)
	meetingID := insertMeeting(t, db, "SAV5")
	fieldID := insertField(t, db, meetingID, "photo", model.TypeImage, false)
	participantID := insertParticipant(t, db, meetingID)

	files, err := filestore.NewLocal(t.TempDir())
	require.NoError(t, err)

	fields := []schema.Descriptor{{CustomField: model.CustomField{
		ID: fieldID, Slug: "photo", Type: model.TypeImage,
	}}}
	p := &model.Participant{ID: participantID, MeetingID: meetingID}

	saveValues(t, db, fields, p, nil, map[string]*field.Upload{
		"photo": {Filename: "me.jpg", Data: strings.NewReader("first")},
	}, files)

	stored := valueRows(t, db, fieldID, participantID)
	require.Len(t, stored, 1)
	firstKey := stored[0]
	assert.NotEmpty(t, files.Path(firstKey))

	// a new upload replaces the stored key and unlinks the old file
	saveValues(t, db, fields, p, nil, map[string]*field.Upload{
		"photo": {Filename: "me2.jpg", Data: strings.NewReader("second")},
	}, files)

	stored = valueRows(t, db, fieldID, participantID)
	require.Len(t, stored, 1)
	assert.NotEqual(t, firstKey, stored[0])

	// sending back the stored key keeps it
	saveValues(t, db, fields, p, map[string]any{"photo": stored[0]}, nil, files)
	assert.Equal(t, stored, valueRows(t, db, fieldID, participantID))

	// an explicit empty value clears the field
	saveValues(t, db, fields, p, map[string]any{"photo": ""}, nil, files)
	assert.Empty(t, valueRows(t, db, fieldID, participantID))
}
