// Package clone creates meetings: seeding a new meeting with the default
// schema, and deep-copying an existing meeting (fields, choices,
// categories, phrases, rules and role assignments) with every foreign
// key remapped so the clone shares no rows with its source.
package clone

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
	"github.com/mbolis/quick-register/database"
	"github.com/mbolis/quick-register/model"
)

// ErrAcronymTaken surfaces the meeting acronym unique constraint as a
// user-correctable validation error.
var ErrAcronymTaken = errors.New("acronym already in use")

// Create inserts a new meeting and seeds it with the default phrases for
// its type, the default categories and the default custom fields.
func Create(ctx context.Context, tx database.Querier, m model.Meeting) (model.Meeting, error) {
	id, err := insertMeeting(ctx, tx, m)
	if err != nil {
		return model.Meeting{}, err
	}
	m.ID = id

	if _, _, err = copyFields(ctx, tx, nil, id); err != nil {
		return model.Meeting{}, err
	}
	if _, err = copyCategories(ctx, tx, nil, id); err != nil {
		return model.Meeting{}, err
	}
	if err = copyPhrases(ctx, tx, nil, m.MeetingType, id); err != nil {
		return model.Meeting{}, err
	}
	return m, nil
}

// Meeting deep-copies the source meeting into a new one. Runs inside the
// caller's transaction: any remapping failure aborts the whole clone.
func Meeting(ctx context.Context, tx database.Querier, sourceID int, m model.Meeting) (model.Meeting, error) {
	var source model.Meeting
	err := tx.QueryRowContext(ctx, `
		SELECT id, acronym, title, meeting_type FROM meeting WHERE id = ?`,
		sourceID,
	).Scan(&source.ID, &source.Acronym, &source.Title, &source.MeetingType)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Meeting{}, fmt.Errorf("clone: no meeting %d", sourceID)
	}
	if err != nil {
		return model.Meeting{}, fmt.Errorf("clone.source: %w", err)
	}
	if m.MeetingType == "" {
		m.MeetingType = source.MeetingType
	}

	id, err := insertMeeting(ctx, tx, m)
	if err != nil {
		return model.Meeting{}, err
	}
	m.ID = id

	fieldMap, choiceMap, err := copyFields(ctx, tx, &sourceID, id)
	if err != nil {
		return model.Meeting{}, err
	}
	if _, err = copyCategories(ctx, tx, &sourceID, id); err != nil {
		return model.Meeting{}, err
	}
	if err = copyPhrases(ctx, tx, &sourceID, "", id); err != nil {
		return model.Meeting{}, err
	}
	if err = copyRules(ctx, tx, sourceID, id, fieldMap, choiceMap); err != nil {
		return model.Meeting{}, err
	}
	if err = copyRoles(ctx, tx, sourceID, id); err != nil {
		return model.Meeting{}, err
	}
	return m, nil
}

func insertMeeting(ctx context.Context, tx database.Querier, m model.Meeting) (int, error) {
	var id int
	err := tx.QueryRowContext(ctx, `
		INSERT INTO meeting (acronym, title, meeting_type, starts_on, ends_on)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`,
		m.Acronym, m.Title, m.MeetingType, m.StartsOn, m.EndsOn,
	).Scan(&id)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return 0, ErrAcronymTaken
		}
		return 0, fmt.Errorf("clone.insert_meeting: %w", err)
	}
	return id, nil
}

// copyFields copies custom fields and their choices from the source
// meeting, or the defaults when source is nil, returning old to new id
// maps for fields and choices.
func copyFields(ctx context.Context, tx database.Querier, source *int, dst int) (fieldMap, choiceMap map[int]int, err error) {
	query := `
		SELECT id, slug, label, field_type, field_for, required, sort_order,
			is_primary, is_protected, visible_on_form, max_length
		FROM custom_field WHERE `
	var args []any
	if source != nil {
		query += `meeting_id = ?`
		args = append(args, *source)
	} else {
		query += `meeting_id IS NULL`
	}
	query += ` ORDER BY sort_order, id`

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("clone.fields: %w", err)
	}
	defer rows.Close()

	var fields []model.CustomField
	for rows.Next() {
		f := model.CustomField{}
		err = rows.Scan(
			&f.ID, &f.Slug, &f.Label, &f.Type, &f.For, &f.Required, &f.SortOrder,
			&f.Primary, &f.Protected, &f.VisibleOnForm, &f.MaxLength,
		)
		if err != nil {
			return nil, nil, fmt.Errorf("clone.fields.scan: %w", err)
		}
		fields = append(fields, f)
	}
	if err = rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("clone.fields: %w", err)
	}

	fieldMap = make(map[int]int, len(fields))
	choiceMap = map[int]int{}
	for _, f := range fields {
		var newID int
		err = tx.QueryRowContext(ctx, `
			INSERT INTO custom_field
				(meeting_id, slug, label, field_type, field_for, required, sort_order,
				is_primary, is_protected, visible_on_form, max_length)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING id`,
			dst, f.Slug, f.Label, f.Type, f.For, f.Required, f.SortOrder,
			f.Primary, f.Protected, f.VisibleOnForm, f.MaxLength,
		).Scan(&newID)
		if err != nil {
			return nil, nil, fmt.Errorf("clone.fields.insert: %w", err)
		}
		fieldMap[f.ID] = newID

		if err = copyChoices(ctx, tx, f.ID, newID, choiceMap); err != nil {
			return nil, nil, err
		}
	}
	return fieldMap, choiceMap, nil
}

func copyChoices(ctx context.Context, tx database.Querier, oldFieldID, newFieldID int, choiceMap map[int]int) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, label, sort_order FROM custom_field_choice
		WHERE custom_field_id = ? ORDER BY sort_order, id`,
		oldFieldID,
	)
	if err != nil {
		return fmt.Errorf("clone.choices: %w", err)
	}
	defer rows.Close()

	var choices []model.CustomFieldChoice
	for rows.Next() {
		c := model.CustomFieldChoice{}
		if err = rows.Scan(&c.ID, &c.Label, &c.SortOrder); err != nil {
			return fmt.Errorf("clone.choices.scan: %w", err)
		}
		choices = append(choices, c)
	}
	if err = rows.Err(); err != nil {
		return fmt.Errorf("clone.choices: %w", err)
	}

	for _, c := range choices {
		var newID int
		err = tx.QueryRowContext(ctx, `
			INSERT INTO custom_field_choice (custom_field_id, label, sort_order)
			VALUES (?, ?, ?)
			RETURNING id`,
			newFieldID, c.Label, c.SortOrder,
		).Scan(&newID)
		if err != nil {
			return fmt.Errorf("clone.choices.insert: %w", err)
		}
		choiceMap[c.ID] = newID
	}
	return nil
}

func copyCategories(ctx context.Context, tx database.Querier, source *int, dst int) (map[int]int, error) {
	query := `SELECT id, title, sort_order FROM category WHERE `
	var args []any
	if source != nil {
		query += `meeting_id = ?`
		args = append(args, *source)
	} else {
		query += `meeting_id IS NULL`
	}
	query += ` ORDER BY sort_order, id`

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("clone.categories: %w", err)
	}
	defer rows.Close()

	var categories []model.Category
	for rows.Next() {
		c := model.Category{}
		if err = rows.Scan(&c.ID, &c.Title, &c.SortOrder); err != nil {
			return nil, fmt.Errorf("clone.categories.scan: %w", err)
		}
		categories = append(categories, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("clone.categories: %w", err)
	}

	categoryMap := make(map[int]int, len(categories))
	for _, c := range categories {
		var newID int
		err = tx.QueryRowContext(ctx, `
			INSERT INTO category (meeting_id, title, sort_order)
			VALUES (?, ?, ?)
			RETURNING id`,
			dst, c.Title, c.SortOrder,
		).Scan(&newID)
		if err != nil {
			return nil, fmt.Errorf("clone.categories.insert: %w", err)
		}
		categoryMap[c.ID] = newID
	}
	return categoryMap, nil
}

// copyPhrases copies the source meeting's phrases, or when seeding, the
// defaults registered for the meeting type.
func copyPhrases(ctx context.Context, tx database.Querier, source *int, meetingType string, dst int) error {
	query := `SELECT meeting_type, key, text FROM phrase WHERE `
	var args []any
	if source != nil {
		query += `meeting_id = ?`
		args = append(args, *source)
	} else {
		query += `meeting_id IS NULL AND meeting_type = ?`
		args = append(args, meetingType)
	}

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("clone.phrases: %w", err)
	}
	defer rows.Close()

	var phrases []model.Phrase
	for rows.Next() {
		p := model.Phrase{}
		if err = rows.Scan(&p.MeetingType, &p.Key, &p.Text); err != nil {
			return fmt.Errorf("clone.phrases.scan: %w", err)
		}
		phrases = append(phrases, p)
	}
	if err = rows.Err(); err != nil {
		return fmt.Errorf("clone.phrases: %w", err)
	}

	for _, p := range phrases {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO phrase (meeting_id, meeting_type, key, text)
			VALUES (?, ?, ?, ?)`,
			dst, p.MeetingType, p.Key, p.Text,
		)
		if err != nil {
			return fmt.Errorf("clone.phrases.insert: %w", err)
		}
	}
	return nil
}

func copyRoles(ctx context.Context, tx database.Querier, source, dst int) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO meeting_role (meeting_id, username, role)
		SELECT ?, username, role FROM meeting_role WHERE meeting_id = ?`,
		dst, source,
	)
	if err != nil {
		return fmt.Errorf("clone.roles: %w", err)
	}
	return nil
}
