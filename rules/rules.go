// Package rules implements the conditional requirement/visibility engine:
// per-meeting business rules whose conditions are matched against the
// normalized values of a submitted form.
package rules

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mbolis/quick-register/database"
	"github.com/mbolis/quick-register/model"
)

// Set is the full rule set of one meeting and rule type, eagerly loaded.
type Set []model.Rule

// Lookup returns the normalized current values of a field slug. A field
// can carry several values (multi-checkbox); an absent or empty field
// returns nil.
type Lookup func(slug string) []string

// Required is one unmet-or-pending conditional requirement: the target
// slug of an is_required action belonging to a fired rule.
type Required struct {
	RuleID   int
	RuleName string
	Slug     string
}

// Hint ties a visibility-controlled field to the condition data of the
// rule that shows it, so a client can toggle visibility without a round
// trip: condition slug -> acceptable values, AND'ed across entries.
type Hint struct {
	RuleID     int                 `json:"rule_id"`
	RuleName   string              `json:"rule_name"`
	Conditions map[string][]string `json:"conditions"`
}

// Load fetches all rules for a meeting and rule type with conditions,
// condition values and actions attached, annotated with field slugs.
func Load(ctx context.Context, db database.Querier, meetingID int, ruleFor model.FieldFor) (Set, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, meeting_id, name, rule_for
		FROM rule
		WHERE meeting_id = ? AND rule_for = ?
		ORDER BY id`,
		meetingID, string(ruleFor),
	)
	if err != nil {
		return nil, fmt.Errorf("rules.load: %w", err)
	}
	defer rows.Close()

	var set Set
	byID := map[int]*model.Rule{}
	for rows.Next() {
		r := model.Rule{}
		err = rows.Scan(&r.ID, &r.MeetingID, &r.Name, &r.For)
		if err != nil {
			return nil, fmt.Errorf("rules.load.scan: %w", err)
		}
		set = append(set, r)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rules.load: %w", err)
	}
	if len(set) == 0 {
		return set, nil
	}
	for i := range set {
		byID[set[i].ID] = &set[i]
	}

	ids := make([]any, 0, len(set))
	placeholders := make([]string, 0, len(set))
	for i := range set {
		ids = append(ids, set[i].ID)
		placeholders = append(placeholders, "?")
	}
	in := strings.Join(placeholders, ",")

	// conditions with their values
	condRows, err := db.QueryContext(ctx, `
		SELECT c.id, c.rule_id, c.custom_field_id, f.slug
		FROM rule_condition c
		INNER JOIN custom_field f ON (f.id = c.custom_field_id)
		WHERE c.rule_id IN (`+in+`)
		ORDER BY c.id`,
		ids...,
	)
	if err != nil {
		return nil, fmt.Errorf("rules.load.conditions: %w", err)
	}
	defer condRows.Close()

	// conditions join their rules only once their values are attached:
	// pointers into a growing slice would go stale on reallocation
	var loaded []*model.Condition
	conditions := map[int]*model.Condition{}
	for condRows.Next() {
		c := &model.Condition{}
		err = condRows.Scan(&c.ID, &c.RuleID, &c.FieldID, &c.FieldSlug)
		if err != nil {
			return nil, fmt.Errorf("rules.load.conditions.scan: %w", err)
		}
		loaded = append(loaded, c)
		conditions[c.ID] = c
	}
	if err = condRows.Err(); err != nil {
		return nil, fmt.Errorf("rules.load.conditions: %w", err)
	}

	valueRows, err := db.QueryContext(ctx, `
		SELECT v.condition_id, v.value
		FROM rule_condition_value v
		INNER JOIN rule_condition c ON (c.id = v.condition_id)
		WHERE c.rule_id IN (`+in+`)
		ORDER BY v.id`,
		ids...,
	)
	if err != nil {
		return nil, fmt.Errorf("rules.load.values: %w", err)
	}
	defer valueRows.Close()

	for valueRows.Next() {
		var conditionID int
		var value string
		err = valueRows.Scan(&conditionID, &value)
		if err != nil {
			return nil, fmt.Errorf("rules.load.values.scan: %w", err)
		}
		if c := conditions[conditionID]; c != nil {
			c.Values = append(c.Values, value)
		}
	}
	if err = valueRows.Err(); err != nil {
		return nil, fmt.Errorf("rules.load.values: %w", err)
	}

	for _, c := range loaded {
		r := byID[c.RuleID]
		r.Conditions = append(r.Conditions, *c)
	}

	actionRows, err := db.QueryContext(ctx, `
		SELECT a.id, a.rule_id, a.custom_field_id, f.slug, a.is_required, a.is_visible
		FROM rule_action a
		INNER JOIN custom_field f ON (f.id = a.custom_field_id)
		WHERE a.rule_id IN (`+in+`)
		ORDER BY a.id`,
		ids...,
	)
	if err != nil {
		return nil, fmt.Errorf("rules.load.actions: %w", err)
	}
	defer actionRows.Close()

	for actionRows.Next() {
		a := model.Action{}
		err = actionRows.Scan(&a.ID, &a.RuleID, &a.FieldID, &a.FieldSlug, &a.Required, &a.Visible)
		if err != nil {
			return nil, fmt.Errorf("rules.load.actions.scan: %w", err)
		}
		r := byID[a.RuleID]
		r.Actions = append(r.Actions, a)
	}
	return set, actionRows.Err()
}

// Evaluate runs every rule against the current form values and returns
// the required targets of all fired rules. Visibility actions carry no
// validation weight; the requirement of a fired action is enforced even
// when the same rule hides the field.
func (s Set) Evaluate(lookup Lookup) []Required {
	var required []Required
	for i := range s {
		r := &s[i]
		if !fires(r, lookup) {
			continue
		}
		for _, a := range r.Actions {
			if a.Required {
				required = append(required, Required{RuleID: r.ID, RuleName: r.Name, Slug: a.FieldSlug})
			}
		}
	}
	return required
}

// fires: AND across conditions, OR across each condition's value set.
func fires(r *model.Rule, lookup Lookup) bool {
	if len(r.Conditions) == 0 {
		return false
	}
	for i := range r.Conditions {
		if !satisfied(&r.Conditions[i], lookup) {
			return false
		}
	}
	return true
}

func satisfied(c *model.Condition, lookup Lookup) bool {
	current := lookup(c.FieldSlug)
	for _, v := range current {
		for _, accepted := range c.Values {
			if v == accepted {
				return true
			}
		}
	}
	return false
}

// VisibilityHints maps every slug targeted by at least one visibility
// action to the condition data of the rules that show it.
func (s Set) VisibilityHints() map[string][]Hint {
	hints := map[string][]Hint{}
	for i := range s {
		r := &s[i]
		var conditions map[string][]string
		for _, a := range r.Actions {
			if !a.Visible {
				continue
			}
			if conditions == nil {
				conditions = map[string][]string{}
				for _, c := range r.Conditions {
					conditions[c.FieldSlug] = append(conditions[c.FieldSlug], c.Values...)
				}
			}
			hints[a.FieldSlug] = append(hints[a.FieldSlug], Hint{
				RuleID:     r.ID,
				RuleName:   r.Name,
				Conditions: conditions,
			})
		}
	}
	return hints
}

// Check enforces the structural invariants of a rule definition: at least
// one condition and one action, no action targeting a condition field,
// no two actions on the same field.
func Check(r model.Rule) error {
	if len(r.Conditions) == 0 {
		return errors.New("a rule needs at least one condition")
	}
	if len(r.Actions) == 0 {
		return errors.New("a rule needs at least one action")
	}
	conditionFields := map[int]bool{}
	for _, c := range r.Conditions {
		if len(c.Values) == 0 {
			return errors.New("a condition needs at least one value")
		}
		conditionFields[c.FieldID] = true
	}
	actionFields := map[int]bool{}
	for _, a := range r.Actions {
		if conditionFields[a.FieldID] {
			return errors.New("an action cannot target one of the rule's condition fields")
		}
		if actionFields[a.FieldID] {
			return errors.New("two actions cannot target the same field")
		}
		actionFields[a.FieldID] = true
	}
	return nil
}
