package rules

import (
	"testing"

	"github.com/mbolis/quick-register/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupOf(values map[string][]string) Lookup {
	return func(slug string) []string {
		return values[slug]
	}
}

func passportRule() model.Rule {
	return model.Rule{
		ID:   1,
		Name: "Passport for Romania",
		Conditions: []model.Condition{
			{FieldID: 10, FieldSlug: "country", Values: []string{"RO"}},
		},
		Actions: []model.Action{
			{FieldID: 20, FieldSlug: "passport_number", Required: true, Visible: true},
		},
	}
}

func TestEvaluateFires(t *testing.T) {
	set := Set{passportRule()}

	required := set.Evaluate(lookupOf(map[string][]string{"country": {"RO"}}))
	require.Len(t, required, 1)
	assert.Equal(t, "passport_number", required[0].Slug)
	assert.Equal(t, "Passport for Romania", required[0].RuleName)
	assert.Equal(t, 1, required[0].RuleID)
}

func TestEvaluateDoesNotFire(t *testing.T) {
	set := Set{passportRule()}

	assert.Empty(t, set.Evaluate(lookupOf(map[string][]string{"country": {"FR"}})))
	assert.Empty(t, set.Evaluate(lookupOf(map[string][]string{"country": nil})))
	assert.Empty(t, set.Evaluate(lookupOf(nil)))
}

func TestEvaluateValuesAreOr(t *testing.T) {
	rule := passportRule()
	rule.Conditions[0].Values = []string{"RO", "MD"}
	set := Set{rule}

	assert.Len(t, set.Evaluate(lookupOf(map[string][]string{"country": {"MD"}})), 1)
	assert.Empty(t, set.Evaluate(lookupOf(map[string][]string{"country": {"DE"}})))
}

func TestEvaluateConditionsAreAnd(t *testing.T) {
	rule := passportRule()
	rule.Conditions = append(rule.Conditions, model.Condition{
		FieldID: 11, FieldSlug: "category", Values: []string{"3"},
	})
	set := Set{rule}

	both := map[string][]string{"country": {"RO"}, "category": {"3"}}
	assert.Len(t, set.Evaluate(lookupOf(both)), 1)

	onlyOne := map[string][]string{"country": {"RO"}, "category": {"1"}}
	assert.Empty(t, set.Evaluate(lookupOf(onlyOne)))
}

func TestEvaluateMatchesAnyCurrentValue(t *testing.T) {
	// multi-checkbox fields carry several values; one match is enough
	rule := passportRule()
	rule.Conditions[0].FieldSlug = "sessions"
	set := Set{rule}

	current := map[string][]string{"sessions": {"FR", "RO", "IT"}}
	assert.Len(t, set.Evaluate(lookupOf(current)), 1)
}

func TestEvaluateIgnoresVisibilityOnlyActions(t *testing.T) {
	rule := passportRule()
	rule.Actions[0].Required = false
	set := Set{rule}

	assert.Empty(t, set.Evaluate(lookupOf(map[string][]string{"country": {"RO"}})))
}

func TestEvaluateWithoutConditionsNeverFires(t *testing.T) {
	rule := passportRule()
	rule.Conditions = nil
	set := Set{rule}

	assert.Empty(t, set.Evaluate(lookupOf(map[string][]string{"country": {"RO"}})))
}

func TestVisibilityHints(t *testing.T) {
	set := Set{passportRule()}

	hints := set.VisibilityHints()
	require.Len(t, hints["passport_number"], 1)

	h := hints["passport_number"][0]
	assert.Equal(t, 1, h.RuleID)
	assert.Equal(t, "Passport for Romania", h.RuleName)
	assert.Equal(t, map[string][]string{"country": {"RO"}}, h.Conditions)
}

func TestVisibilityHintsSkipRequirementOnlyActions(t *testing.T) {
	rule := passportRule()
	rule.Actions[0].Visible = false
	set := Set{rule}

	assert.Empty(t, set.VisibilityHints())
}

func TestCheck(t *testing.T) {
	assert.NoError(t, Check(passportRule()))

	noConditions := passportRule()
	noConditions.Conditions = nil
	assert.Error(t, Check(noConditions))

	noActions := passportRule()
	noActions.Actions = nil
	assert.Error(t, Check(noActions))

	noValues := passportRule()
	noValues.Conditions[0].Values = nil
	assert.Error(t, Check(noValues))

	selfTarget := passportRule()
	selfTarget.Actions[0].FieldID = selfTarget.Conditions[0].FieldID
	assert.Error(t, Check(selfTarget))

	duplicateTarget := passportRule()
	duplicateTarget.Actions = append(duplicateTarget.Actions, duplicateTarget.Actions[0])
	assert.Error(t, Check(duplicateTarget))
}
