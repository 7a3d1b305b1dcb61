package clone

import (
	"context"
	"fmt"
	"strconv"

	"github.com/mbolis/quick-register/database"
	"github.com/mbolis/quick-register/model"
	"github.com/mbolis/quick-register/rules"
)

// copyRules deep-copies the source meeting's rule set. Field references
// are remapped through the cloned fields; condition values that are ids
// (category and choice kinds) are remapped too, category ids through a
// title match in the destination meeting, since category primary keys
// differ per meeting. Any value that cannot be remapped fails the clone;
// silently dropping a rule would be a correctness regression for the
// organizer.
func copyRules(ctx context.Context, tx database.Querier, source, dst int, fieldMap, choiceMap map[int]int) error {
	fieldTypes, err := loadFieldTypes(ctx, tx, source)
	if err != nil {
		return err
	}
	remapCategory, err := categoryTitleRemap(ctx, tx, source, dst)
	if err != nil {
		return err
	}

	for _, ruleFor := range []model.FieldFor{model.ForParticipant, model.ForMedia} {
		set, err := rules.Load(ctx, tx, source, ruleFor)
		if err != nil {
			return err
		}

		for _, r := range set {
			var newRuleID int
			err = tx.QueryRowContext(ctx, `
				INSERT INTO rule (meeting_id, name, rule_for)
				VALUES (?, ?, ?)
				RETURNING id`,
				dst, r.Name, string(r.For),
			).Scan(&newRuleID)
			if err != nil {
				return fmt.Errorf("clone.rules.insert: %w", err)
			}

			for _, c := range r.Conditions {
				newFieldID, ok := fieldMap[c.FieldID]
				if !ok {
					return fmt.Errorf("clone.rules: rule %q: condition references unknown field %d", r.Name, c.FieldID)
				}

				var newConditionID int
				err = tx.QueryRowContext(ctx, `
					INSERT INTO rule_condition (rule_id, custom_field_id)
					VALUES (?, ?)
					RETURNING id`,
					newRuleID, newFieldID,
				).Scan(&newConditionID)
				if err != nil {
					return fmt.Errorf("clone.rules.condition: %w", err)
				}

				for _, value := range c.Values {
					remapped, err := remapValue(r.Name, fieldTypes[c.FieldID], value, choiceMap, remapCategory)
					if err != nil {
						return err
					}
					_, err = tx.ExecContext(ctx, `
						INSERT INTO rule_condition_value (condition_id, value)
						VALUES (?, ?)`,
						newConditionID, remapped,
					)
					if err != nil {
						return fmt.Errorf("clone.rules.condition_value: %w", err)
					}
				}
			}

			for _, a := range r.Actions {
				newFieldID, ok := fieldMap[a.FieldID]
				if !ok {
					return fmt.Errorf("clone.rules: rule %q: action references unknown field %d", r.Name, a.FieldID)
				}
				_, err = tx.ExecContext(ctx, `
					INSERT INTO rule_action (rule_id, custom_field_id, is_required, is_visible)
					VALUES (?, ?, ?, ?)`,
					newRuleID, newFieldID, a.Required, a.Visible,
				)
				if err != nil {
					return fmt.Errorf("clone.rules.action: %w", err)
				}
			}
		}
	}
	return nil
}

func remapValue(ruleName string, fieldType model.FieldType, value string, choiceMap map[int]int, remapCategory func(string, string) (string, error)) (string, error) {
	switch {
	case fieldType == model.TypeCategory:
		return remapCategory(ruleName, value)

	case fieldType.HasChoices():
		oldID, err := strconv.Atoi(value)
		if err != nil {
			return "", fmt.Errorf("clone.rules: rule %q: condition value %q is not a choice id", ruleName, value)
		}
		newID, ok := choiceMap[oldID]
		if !ok {
			return "", fmt.Errorf("clone.rules: rule %q: condition references unknown choice %d", ruleName, oldID)
		}
		return strconv.Itoa(newID), nil

	default:
		// plain text values (country codes, booleans, ...) copy verbatim
		return value, nil
	}
}

// categoryTitleRemap builds the category-id remapping: an old id resolves
// to its title in the source meeting, then to the single category with
// that title in the destination. Zero or multiple matches abort the clone.
func categoryTitleRemap(ctx context.Context, tx database.Querier, source, dst int) (func(ruleName, value string) (string, error), error) {
	sourceTitles := map[int]string{}
	rows, err := tx.QueryContext(ctx, `SELECT id, title FROM category WHERE meeting_id = ?`, source)
	if err != nil {
		return nil, fmt.Errorf("clone.rules.categories: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int
		var title model.LocalizedText
		if err = rows.Scan(&id, &title); err != nil {
			return nil, fmt.Errorf("clone.rules.categories.scan: %w", err)
		}
		sourceTitles[id] = title.EN
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("clone.rules.categories: %w", err)
	}

	dstByTitle := map[string][]int{}
	dstRows, err := tx.QueryContext(ctx, `SELECT id, title FROM category WHERE meeting_id = ?`, dst)
	if err != nil {
		return nil, fmt.Errorf("clone.rules.categories: %w", err)
	}
	defer dstRows.Close()
	for dstRows.Next() {
		var id int
		var title model.LocalizedText
		if err = dstRows.Scan(&id, &title); err != nil {
			return nil, fmt.Errorf("clone.rules.categories.scan: %w", err)
		}
		dstByTitle[title.EN] = append(dstByTitle[title.EN], id)
	}
	if err = dstRows.Err(); err != nil {
		return nil, fmt.Errorf("clone.rules.categories: %w", err)
	}

	return func(ruleName, value string) (string, error) {
		oldID, err := strconv.Atoi(value)
		if err != nil {
			return "", fmt.Errorf("clone.rules: rule %q: condition value %q is not a category id", ruleName, value)
		}
		title, ok := sourceTitles[oldID]
		if !ok {
			return "", fmt.Errorf("clone.rules: rule %q: condition references unknown category %d", ruleName, oldID)
		}
		matches := dstByTitle[title]
		if len(matches) != 1 {
			return "", fmt.Errorf("clone.rules: rule %q: %d categories titled %q in cloned meeting", ruleName, len(matches), title)
		}
		return strconv.Itoa(matches[0]), nil
	}, nil
}

func loadFieldTypes(ctx context.Context, tx database.Querier, meetingID int) (map[int]model.FieldType, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id, field_type FROM custom_field WHERE meeting_id = ?`, meetingID)
	if err != nil {
		return nil, fmt.Errorf("clone.rules.field_types: %w", err)
	}
	defer rows.Close()

	types := map[int]model.FieldType{}
	for rows.Next() {
		var id int
		var t model.FieldType
		if err = rows.Scan(&id, &t); err != nil {
			return nil, fmt.Errorf("clone.rules.field_types.scan: %w", err)
		}
		types[id] = t
	}
	return types, rows.Err()
}
