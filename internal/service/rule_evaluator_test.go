package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fpnet-io/fpnet-api/internal/models"
)

func choiceField(id string, options ...string) models.Field {
	return models.Field{ID: id, Kind: models.FieldKindSingleChoice, Label: id, Options: options}
}

func textField(id string) models.Field {
	return models.Field{ID: id, Kind: models.FieldKindShortText, Label: id}
}

func singleAnswer(value string) models.AnswerValue {
	return models.AnswerValue{Kind: models.FieldKindSingleChoice, Selections: []string{value}}
}

func TestNextFieldIDFirstMatchWins(t *testing.T) {
	form := &models.Form{Fields: models.FieldList{
		{
			ID: "q1", Kind: models.FieldKindSingleChoice, Options: []string{"a", "b"},
			Rules: []models.ConditionalRule{
				{SourceFieldID: "q1", Operator: models.RuleOperatorEquals, Value: "a", TargetFieldID: "q3"},
				{SourceFieldID: "q1", Operator: models.RuleOperatorNotEquals, Value: "b", TargetFieldID: "q4"},
			},
		},
		textField("q2"),
		textField("q3"),
		textField("q4"),
	}}

	answers := models.AnswerSet{"q1": singleAnswer("a")}
	// Both rules match "a"; only the first is consulted.
	assert.Equal(t, "q3", NextFieldID(form, "q1", answers))
}

func TestNextFieldIDFallsThroughWhenNoRuleMatches(t *testing.T) {
	form := &models.Form{Fields: models.FieldList{
		{
			ID: "q1", Kind: models.FieldKindSingleChoice, Options: []string{"a", "b"},
			Rules: []models.ConditionalRule{
				{SourceFieldID: "q1", Operator: models.RuleOperatorEquals, Value: "b", TargetFieldID: "q3"},
			},
		},
		textField("q2"),
		textField("q3"),
	}}

	assert.Equal(t, "", NextFieldID(form, "q1", models.AnswerSet{"q1": singleAnswer("a")}))
}

func TestNextFieldIDMissingSourceAnswerEvaluatesEmpty(t *testing.T) {
	form := &models.Form{Fields: models.FieldList{
		{
			ID: "q1", Kind: models.FieldKindSingleChoice, Options: []string{"a"},
			Rules: []models.ConditionalRule{
				{SourceFieldID: "q1", Operator: models.RuleOperatorNotEquals, Value: "a", TargetFieldID: "q3"},
			},
		},
		textField("q2"),
		textField("q3"),
	}}

	// No answer for q1: the empty value is not equal to "a", so the rule fires.
	assert.Equal(t, "q3", NextFieldID(form, "q1", models.AnswerSet{}))
}

func TestNextFieldIDSkipsStaleTargets(t *testing.T) {
	form := &models.Form{Fields: models.FieldList{
		textField("q0"),
		{
			ID: "q1", Kind: models.FieldKindSingleChoice, Options: []string{"a"},
			Rules: []models.ConditionalRule{
				{SourceFieldID: "q1", Operator: models.RuleOperatorEquals, Value: "a", TargetFieldID: "deleted"},
				{SourceFieldID: "q1", Operator: models.RuleOperatorEquals, Value: "a", TargetFieldID: "q0"},
				{SourceFieldID: "q1", Operator: models.RuleOperatorEquals, Value: "a", TargetFieldID: "q2"},
			},
		},
		textField("q2"),
	}}

	answers := models.AnswerSet{"q1": singleAnswer("a")}
	// The removed target and the backward target are skipped; the third rule wins.
	assert.Equal(t, "q2", NextFieldID(form, "q1", answers))
}

func TestNextFieldIDIgnoresNonEnumerableSources(t *testing.T) {
	form := &models.Form{Fields: models.FieldList{
		{
			ID: "q1", Kind: models.FieldKindSingleChoice, Options: []string{"a"},
			Rules: []models.ConditionalRule{
				{SourceFieldID: "q2", Operator: models.RuleOperatorEquals, Value: "x", TargetFieldID: "q3"},
			},
		},
		textField("q2"),
		textField("q3"),
	}}

	answers := models.AnswerSet{"q2": {Kind: models.FieldKindShortText, Text: "x"}}
	assert.Equal(t, "", NextFieldID(form, "q1", answers))
}

func TestRuleMatchesScalarOperators(t *testing.T) {
	cases := []struct {
		name     string
		operator models.RuleOperator
		value    string
		answer   string
		want     bool
	}{
		{"equals match", models.RuleOperatorEquals, "yes", "yes", true},
		{"equals mismatch", models.RuleOperatorEquals, "yes", "no", false},
		{"not equals", models.RuleOperatorNotEquals, "yes", "no", true},
		{"contains", models.RuleOperatorContains, "es", "yes", true},
		{"contains empty value never matches", models.RuleOperatorContains, "", "yes", false},
		{"not contains", models.RuleOperatorNotContains, "zz", "yes", true},
		{"unknown operator", models.RuleOperator("BOGUS"), "yes", "yes", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rule := models.ConditionalRule{SourceFieldID: "q1", Operator: tc.operator, Value: tc.value}
			answers := models.AnswerSet{"q1": singleAnswer(tc.answer)}
			assert.Equal(t, tc.want, ruleMatches(rule, models.FieldKindSingleChoice, answers))
		})
	}
}

func TestRuleMatchesMultiChoiceMembership(t *testing.T) {
	answers := models.AnswerSet{"q1": {Kind: models.FieldKindMultiChoice, Selections: []string{"a", "b"}}}

	member := models.ConditionalRule{SourceFieldID: "q1", Operator: models.RuleOperatorContains, Value: "a"}
	assert.True(t, ruleMatches(member, models.FieldKindMultiChoice, answers))

	equalsMember := models.ConditionalRule{SourceFieldID: "q1", Operator: models.RuleOperatorEquals, Value: "b"}
	assert.True(t, ruleMatches(equalsMember, models.FieldKindMultiChoice, answers))

	notMember := models.ConditionalRule{SourceFieldID: "q1", Operator: models.RuleOperatorNotContains, Value: "c"}
	assert.True(t, ruleMatches(notMember, models.FieldKindMultiChoice, answers))

	absent := models.ConditionalRule{SourceFieldID: "q1", Operator: models.RuleOperatorContains, Value: "c"}
	assert.False(t, ruleMatches(absent, models.FieldKindMultiChoice, answers))
}

func TestVisibleFieldsFollowsJumps(t *testing.T) {
	form := &models.Form{Fields: models.FieldList{
		{
			ID: "q1", Kind: models.FieldKindSingleChoice, Options: []string{"skip", "stay"},
			Rules: []models.ConditionalRule{
				{SourceFieldID: "q1", Operator: models.RuleOperatorEquals, Value: "skip", TargetFieldID: "q4"},
			},
		},
		textField("q2"),
		textField("q3"),
		textField("q4"),
	}}

	visible := VisibleFields(form, models.AnswerSet{"q1": singleAnswer("skip")})
	require.Len(t, visible, 2)
	assert.Equal(t, "q1", visible[0].ID)
	assert.Equal(t, "q4", visible[1].ID)

	visible = VisibleFields(form, models.AnswerSet{"q1": singleAnswer("stay")})
	assert.Len(t, visible, 4)
}

func TestValidateRuleStructure(t *testing.T) {
	fields := []models.Field{
		choiceField("q1", "a"),
		{
			ID: "q2", Kind: models.FieldKindSingleChoice, Options: []string{"a"},
			Rules: []models.ConditionalRule{
				{SourceFieldID: "missing", Operator: models.RuleOperatorEquals, Value: "a", TargetFieldID: "q3"},
				{SourceFieldID: "q3", Operator: models.RuleOperatorEquals, Value: "a", TargetFieldID: "q3"},
				{SourceFieldID: "q1", Operator: models.RuleOperator("BOGUS"), Value: "a", TargetFieldID: "q3"},
				{SourceFieldID: "q1", Operator: models.RuleOperatorEquals, Value: "a", TargetFieldID: "q1"},
				{SourceFieldID: "q1", Operator: models.RuleOperatorEquals, Value: "a", TargetFieldID: "gone"},
			},
		},
		textField("q3"),
		{
			ID: "sec", Kind: models.FieldKindSectionHeader,
			Children: []models.Field{
				{ID: "nested", Kind: models.FieldKindShortText, Rules: []models.ConditionalRule{
					{SourceFieldID: "q1", Operator: models.RuleOperatorEquals, Value: "a", TargetFieldID: "q3"},
				}},
			},
		},
	}

	problems := ValidateRuleStructure(fields)
	require.Len(t, problems, 6)
	assert.Contains(t, problems[0], "rule source missing does not exist")
	assert.Contains(t, problems[1], "is not an option-based field")
	assert.Contains(t, problems[2], "unknown rule operator")
	assert.Contains(t, problems[3], "must come after the field that owns the rule")
	assert.Contains(t, problems[4], "rule target gone does not exist")
	assert.Contains(t, problems[5], "nested fields may not carry conditional rules")
}

func TestValidateRuleStructureCleanForm(t *testing.T) {
	fields := []models.Field{
		{
			ID: "q1", Kind: models.FieldKindSingleChoice, Options: []string{"a", "b"},
			Rules: []models.ConditionalRule{
				{SourceFieldID: "q1", Operator: models.RuleOperatorEquals, Value: "a", TargetFieldID: "q3"},
			},
		},
		textField("q2"),
		textField("q3"),
	}
	assert.Empty(t, ValidateRuleStructure(fields))
}
