package schema

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/mbolis/quick-register/config"
	"github.com/mbolis/quick-register/database"
	"github.com/mbolis/quick-register/model"
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

func slugsOf(fields []Descriptor) []string {
	slugs := make([]string, len(fields))
	for i, d := range fields {
		slugs[i] = d.Slug
	}
	return slugs
}

func TestLoadDefaultParticipantSchema(t *testing.T) {
	db := testDB(t)

	fields, err := Load(context.Background(), db, Query{For: model.ForParticipant})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"first_name", "last_name", "email", "category", "country", "language", "represents",
	}, slugsOf(fields))

	index := BySlug(fields)
	assert.Equal(t, "category_id", index["category"].PrimaryColumn)
	assert.Equal(t, "first_name", index["first_name"].PrimaryColumn)
	assert.Equal(t, model.TypeCountry, index["country"].Type)
	assert.True(t, index["email"].Protected)
	assert.False(t, index["represents"].Required)
}

func TestLoadDefaultMediaSchema(t *testing.T) {
	db := testDB(t)

	fields, err := Load(context.Background(), db, Query{For: model.ForMedia})
	require.NoError(t, err)

	assert.Equal(t, []string{"first_name", "last_name", "email", "country"}, slugsOf(fields))
}

func TestLoadCategoryFieldChoices(t *testing.T) {
	db := testDB(t)

	// the default category field offers the default categories
	fields, err := Load(context.Background(), db, Query{For: model.ForParticipant, Slugs: []string{"category"}})
	require.NoError(t, err)
	require.Len(t, fields, 1)

	var titles []string
	for _, c := range fields[0].Choices {
		titles = append(titles, c.Label.EN)
	}
	assert.Equal(t, []string{"Delegate", "Observer", "Media"}, titles)
}

func TestLoadRegistrationOnly(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	meetingID := insertMeeting(t, db, "REG1")

	_, err := db.Exec(`
		INSERT INTO custom_field (meeting_id, slug, label, field_type, field_for, sort_order, visible_on_form)
		VALUES
			(?, 'badge_name',    '{"en":"Badge name"}',    'text', 'participant', 10, TRUE),
			(?, 'internal_note', '{"en":"Internal note"}', 'text', 'participant', 20, FALSE)`,
		meetingID, meetingID,
	)
	require.NoError(t, err)

	all, err := Load(ctx, db, Query{MeetingID: &meetingID, For: model.ForParticipant})
	require.NoError(t, err)
	assert.Equal(t, []string{"badge_name", "internal_note"}, slugsOf(all))

	visible, err := Load(ctx, db, Query{MeetingID: &meetingID, For: model.ForParticipant, RegistrationOnly: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"badge_name"}, slugsOf(visible))
}

func TestLoadChoicesInSortOrder(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	meetingID := insertMeeting(t, db, "CHO1")

	var fieldID int
	err := db.QueryRow(`
		INSERT INTO custom_field (meeting_id, slug, label, field_type, field_for)
		VALUES (?, 'meal', '{"en":"Meal"}', 'select', 'participant')
		RETURNING id`,
		meetingID,
	).Scan(&fieldID)
	require.NoError(t, err)

	_, err = db.Exec(`
		INSERT INTO custom_field_choice (custom_field_id, label, sort_order)
		VALUES
			(?, '{"en":"Vegetarian"}', 20),
			(?, '{"en":"Standard"}',   10)`,
		fieldID, fieldID,
	)
	require.NoError(t, err)

	fields, err := Load(ctx, db, Query{MeetingID: &meetingID, For: model.ForParticipant})
	require.NoError(t, err)
	require.Len(t, fields, 1)
	require.Len(t, fields[0].Choices, 2)
	assert.Equal(t, "Standard", fields[0].Choices[0].Label.EN)
	assert.Equal(t, "Vegetarian", fields[0].Choices[1].Label.EN)
}

func TestPrimaryColumn(t *testing.T) {
	assert.Equal(t, "category_id", PrimaryColumn("category"))
	assert.Equal(t, "email", PrimaryColumn("email"))
	assert.Equal(t, "", PrimaryColumn("badge_name"))
}
