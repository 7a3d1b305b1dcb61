// Package schema builds the registration schema of a meeting: the ordered
// field descriptors the dynamic form and the rule engine operate on.
package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/mbolis/quick-register/database"
	"github.com/mbolis/quick-register/model"
)

// Query selects which custom fields make up the schema. A nil MeetingID
// selects the default (template) fields.
type Query struct {
	MeetingID        *int
	For              model.FieldFor
	Slugs            []string
	RegistrationOnly bool
}

// Descriptor is one field of the schema. PrimaryColumn names the
// participant column a primary slug maps onto; empty means the value is
// stored as a generic custom_field_value row.
type Descriptor struct {
	model.CustomField
	PrimaryColumn string
}

// Participant columns addressable by primary custom fields.
var primaryColumns = map[string]string{
	"first_name": "first_name",
	"last_name":  "last_name",
	"email":      "email",
	"category":   "category_id",
	"country":    "country",
	"language":   "language",
	"represents": "represents",
}

// PrimaryColumn maps a primary slug to its participant column.
func PrimaryColumn(slug string) string {
	return primaryColumns[slug]
}

// Load composes the schema query and returns the descriptors ordered by
// sort order, with choices eagerly loaded. Read-only.
func Load(ctx context.Context, db database.Querier, q Query) ([]Descriptor, error) {
	query := `
		SELECT
			f.id, f.meeting_id, f.slug, f.label, f.field_type, f.field_for,
			f.required, f.sort_order, f.is_primary, f.is_protected,
			f.visible_on_form, f.max_length
		FROM custom_field f
		WHERE f.field_for = ?`
	args := []any{string(q.For)}

	if q.MeetingID != nil {
		query += ` AND f.meeting_id = ?`
		args = append(args, *q.MeetingID)
	} else {
		query += ` AND f.meeting_id IS NULL`
	}
	if q.RegistrationOnly {
		query += ` AND f.visible_on_form`
	}
	if len(q.Slugs) > 0 {
		query += ` AND f.slug IN (?` + strings.Repeat(",?", len(q.Slugs)-1) + `)`
		for _, slug := range q.Slugs {
			args = append(args, slug)
		}
	}
	query += ` ORDER BY f.sort_order, f.id`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("schema.fields: %w", err)
	}
	defer rows.Close()

	var fields []Descriptor
	for rows.Next() {
		d := Descriptor{}
		err = rows.Scan(
			&d.ID, &d.MeetingID, &d.Slug, &d.Label, &d.Type, &d.For,
			&d.Required, &d.SortOrder, &d.Primary, &d.Protected,
			&d.VisibleOnForm, &d.MaxLength,
		)
		if err != nil {
			return nil, fmt.Errorf("schema.fields.scan: %w", err)
		}

		if d.Primary {
			// a primary field with an unmapped slug falls back to the
			// generic value store
			d.PrimaryColumn = primaryColumns[d.Slug]
		}
		fields = append(fields, d)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("schema.fields: %w", err)
	}

	if err = loadChoices(ctx, db, q.MeetingID, fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// BySlug indexes descriptors for the form and rule engine.
func BySlug(fields []Descriptor) map[string]*Descriptor {
	index := make(map[string]*Descriptor, len(fields))
	for i := range fields {
		index[fields[i].Slug] = &fields[i]
	}
	return index
}

func loadChoices(ctx context.Context, db database.Querier, meetingID *int, fields []Descriptor) error {
	byID := map[int]*Descriptor{}
	var needCategories []*Descriptor
	for i := range fields {
		switch {
		case fields[i].Type.HasChoices():
			byID[fields[i].ID] = &fields[i]
		case fields[i].Type == model.TypeCategory:
			needCategories = append(needCategories, &fields[i])
		}
	}

	if len(byID) > 0 {
		ids := make([]any, 0, len(byID))
		placeholders := make([]string, 0, len(byID))
		for id := range byID {
			ids = append(ids, id)
			placeholders = append(placeholders, "?")
		}

		rows, err := db.QueryContext(ctx, `
			SELECT id, custom_field_id, label, sort_order
			FROM custom_field_choice
			WHERE custom_field_id IN (`+strings.Join(placeholders, ",")+`)
			ORDER BY sort_order, id`,
			ids...,
		)
		if err != nil {
			return fmt.Errorf("schema.choices: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			c := model.CustomFieldChoice{}
			err = rows.Scan(&c.ID, &c.FieldID, &c.Label, &c.SortOrder)
			if err != nil {
				return fmt.Errorf("schema.choices.scan: %w", err)
			}
			f := byID[c.FieldID]
			f.Choices = append(f.Choices, c)
		}
		if err = rows.Err(); err != nil {
			return fmt.Errorf("schema.choices: %w", err)
		}
	}

	// category fields choose among the meeting's categories
	if len(needCategories) > 0 {
		categories, err := Categories(ctx, db, meetingID)
		if err != nil {
			return err
		}
		choices := make([]model.CustomFieldChoice, len(categories))
		for i, cat := range categories {
			choices[i] = model.CustomFieldChoice{ID: cat.ID, Label: cat.Title, SortOrder: cat.SortOrder}
		}
		for _, f := range needCategories {
			f.Choices = choices
		}
	}
	return nil
}

// Categories lists a meeting's categories (or the defaults) in sort order.
func Categories(ctx context.Context, db database.Querier, meetingID *int) ([]model.Category, error) {
	query := `SELECT id, meeting_id, title, sort_order FROM category WHERE `
	var args []any
	if meetingID != nil {
		query += `meeting_id = ?`
		args = append(args, *meetingID)
	} else {
		query += `meeting_id IS NULL`
	}
	query += ` ORDER BY sort_order, id`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("schema.categories: %w", err)
	}
	defer rows.Close()

	var categories []model.Category
	for rows.Next() {
		c := model.Category{}
		err = rows.Scan(&c.ID, &c.MeetingID, &c.Title, &c.SortOrder)
		if err != nil {
			return nil, fmt.Errorf("schema.categories.scan: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}
