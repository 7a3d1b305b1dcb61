package form

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mbolis/quick-register/database"
	"github.com/mbolis/quick-register/field"
	"github.com/mbolis/quick-register/model"
	"github.com/mbolis/quick-register/schema"
)

// Save persists every bound field of the form for the given participant,
// inside the caller's transaction. Primary slugs write the participant's
// own columns; all other fields are kept as custom_field_value rows, one
// per (field, participant) pair. Re-saving identical data is a no-op on
// row counts, and the unique index backs this up under concurrent submits.
func (f *Form) Save(ctx context.Context, tx database.Querier, p *model.Participant) error {
	if p.ID == 0 {
		return errors.New("form.save: participant not persisted yet")
	}

	var primarySet []string
	var primaryArgs []any

	for i := range f.fields {
		d := &f.fields[i]
		v, bound := f.values[d.Slug]
		if !bound {
			continue
		}

		if d.PrimaryColumn != "" {
			col, arg, err := primaryValue(d, v)
			if err != nil {
				return err
			}
			primarySet = append(primarySet, col+" = ?")
			primaryArgs = append(primaryArgs, arg)
			applyPrimary(p, col, arg)
			continue
		}

		var err error
		switch {
		case d.Type == model.TypeMultiCheckbox:
			err = f.saveSelection(ctx, tx, d, v, p.ID)
		case d.Type.IsFile():
			err = f.saveFile(ctx, tx, d, v, p.ID)
		default:
			err = f.saveScalar(ctx, tx, d, v, p.ID)
		}
		if err != nil {
			return err
		}
	}

	if len(primarySet) > 0 {
		primaryArgs = append(primaryArgs, p.ID)
		_, err := tx.ExecContext(ctx, `
			UPDATE participant SET `+strings.Join(primarySet, ", ")+`
			WHERE id = ?`,
			primaryArgs...,
		)
		if err != nil {
			return fmt.Errorf("form.save.participant: %w", err)
		}
	}
	return nil
}

func primaryValue(d *schema.Descriptor, v field.Value) (col string, arg any, err error) {
	col = d.PrimaryColumn
	switch d.Type {
	case model.TypeCategory:
		if v.Str == "" {
			return col, nil, nil
		}
		id, err := strconv.Atoi(v.Str)
		if err != nil {
			return col, nil, fmt.Errorf("form.save.category: %w", err)
		}
		return col, id, nil
	case model.TypeCountry:
		return col, field.CountryCode(v.Str), nil
	case model.TypeCheckbox:
		return col, v.Bool, nil
	default:
		return col, v.Str, nil
	}
}

func applyPrimary(p *model.Participant, col string, arg any) {
	switch col {
	case "first_name":
		p.FirstName, _ = arg.(string)
	case "last_name":
		p.LastName, _ = arg.(string)
	case "email":
		p.Email, _ = arg.(string)
	case "category_id":
		if id, ok := arg.(int); ok {
			p.CategoryID = &id
		} else {
			p.CategoryID = nil
		}
	case "country":
		p.Country, _ = arg.(string)
	case "language":
		p.Language, _ = arg.(string)
	case "represents":
		p.Represents, _ = arg.(string)
	}
}

// saveScalar keeps exactly one row per (field, participant): update in
// place, insert when absent, delete when cleared.
func (f *Form) saveScalar(ctx context.Context, tx database.Querier, d *schema.Descriptor, v field.Value, participantID int) error {
	if v.Empty() {
		_, err := tx.ExecContext(ctx, `
			DELETE FROM custom_field_value
			WHERE custom_field_id = ? AND participant_id = ?`,
			d.ID, participantID,
		)
		if err != nil {
			return fmt.Errorf("form.save.clear: %w", err)
		}
		return nil
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE custom_field_value SET value = ?
		WHERE custom_field_id = ? AND participant_id = ? AND choice_id IS NULL`,
		v.Str, d.ID, participantID,
	)
	if err != nil {
		return fmt.Errorf("form.save.update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("form.save.update.verify: %w", err)
	}
	if n == 0 {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO custom_field_value (custom_field_id, participant_id, value)
			VALUES (?, ?, ?)`,
			d.ID, participantID, v.Str,
		)
		if err != nil {
			return fmt.Errorf("form.save.insert: %w", err)
		}
	}
	return nil
}

// saveSelection replaces the whole row set of a multi-checkbox: old rows
// are removed, never accumulated.
func (f *Form) saveSelection(ctx context.Context, tx database.Querier, d *schema.Descriptor, v field.Value, participantID int) error {
	_, err := tx.ExecContext(ctx, `
		DELETE FROM custom_field_value
		WHERE custom_field_id = ? AND participant_id = ?`,
		d.ID, participantID,
	)
	if err != nil {
		return fmt.Errorf("form.save.selection.clear: %w", err)
	}

	for _, sel := range v.Set {
		choiceID, err := strconv.Atoi(sel)
		if err != nil {
			return fmt.Errorf("form.save.selection: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO custom_field_value (custom_field_id, participant_id, choice_id, value)
			VALUES (?, ?, ?, ?)`,
			d.ID, participantID, choiceID, sel,
		)
		if err != nil {
			return fmt.Errorf("form.save.selection.insert: %w", err)
		}
	}
	return nil
}

// saveFile stores a new upload through the file-storage collaborator and
// unlinks whatever was stored for this value before.
func (f *Form) saveFile(ctx context.Context, tx database.Querier, d *schema.Descriptor, v field.Value, participantID int) error {
	var previous string
	err := tx.QueryRowContext(ctx, `
		SELECT value FROM custom_field_value
		WHERE custom_field_id = ? AND participant_id = ?`,
		d.ID, participantID,
	).Scan(&previous)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("form.save.file.previous: %w", err)
	}

	switch {
	case v.File != nil:
		key, err := f.files.Save(v.File.Filename, v.File.Data)
		if err != nil {
			return err
		}
		if err = f.saveScalar(ctx, tx, d, field.Value{Kind: d.Type, Str: key}, participantID); err != nil {
			return err
		}
		if previous != "" && previous != key {
			if err = f.files.Remove(previous); err != nil {
				return fmt.Errorf("form.save.file.unlink: %w", err)
			}
		}
		return nil

	case v.Str == "":
		// explicit clear
		if err = f.saveScalar(ctx, tx, d, v, participantID); err != nil {
			return err
		}
		if previous != "" {
			if err = f.files.Remove(previous); err != nil {
				return fmt.Errorf("form.save.file.unlink: %w", err)
			}
		}
		return nil

	default:
		// keeping the already stored key; nothing to do
		return nil
	}
}
