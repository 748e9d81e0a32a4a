package service

import (
	"strings"

	"github.com/fpnet-io/fpnet-api/internal/models"
)

// NextFieldID decides which field a respondent jumps to after answering the
// given field. It returns the target field id, or "" when navigation should
// fall through to declared form order.
//
// Rules are evaluated in declaration order and the first matching rule wins;
// later rules are not consulted. A rule whose source field is missing from
// the answers evaluates against an empty value, and a rule whose target no
// longer exists (or no longer sits after the owning field) is skipped at
// evaluation time rather than failing.
func NextFieldID(form *models.Form, fieldID string, answers models.AnswerSet) string {
	ownIdx := form.FieldIndex(fieldID)
	if ownIdx < 0 {
		return ""
	}

	for _, rule := range form.Fields[ownIdx].Rules {
		source := form.FieldByID(rule.SourceFieldID)
		if source == nil || !source.Kind.Enumerable() {
			continue
		}
		if !ruleMatches(rule, source.Kind, answers) {
			continue
		}

		targetIdx := form.FieldIndex(rule.TargetFieldID)
		if targetIdx <= ownIdx {
			// Target was deleted or reordered since authoring: no jump.
			continue
		}
		return rule.TargetFieldID
	}

	return ""
}

func ruleMatches(rule models.ConditionalRule, sourceKind models.FieldKind, answers models.AnswerSet) bool {
	answer := answers[rule.SourceFieldID]

	if sourceKind == models.FieldKindMultiChoice {
		set := answer.Set()
		_, member := set[rule.Value]
		switch rule.Operator {
		case models.RuleOperatorEquals, models.RuleOperatorContains:
			return member
		case models.RuleOperatorNotEquals, models.RuleOperatorNotContains:
			return !member
		default:
			return false
		}
	}

	scalar := answer.Scalar()
	switch rule.Operator {
	case models.RuleOperatorEquals:
		return scalar == rule.Value
	case models.RuleOperatorNotEquals:
		return scalar != rule.Value
	case models.RuleOperatorContains:
		return rule.Value != "" && strings.Contains(scalar, rule.Value)
	case models.RuleOperatorNotContains:
		return rule.Value == "" || !strings.Contains(scalar, rule.Value)
	default:
		return false
	}
}

// VisibleFields walks the form's top-level fields following conditional
// jumps for the given answers and returns the fields a respondent actually
// sees. Fields skipped over by a jump are excluded, which also exempts them
// from required-field validation.
func VisibleFields(form *models.Form, answers models.AnswerSet) []models.Field {
	visible := make([]models.Field, 0, len(form.Fields))
	idx := 0
	for idx < len(form.Fields) {
		field := form.Fields[idx]
		visible = append(visible, field)

		if target := NextFieldID(form, field.ID, answers); target != "" {
			idx = form.FieldIndex(target)
			continue
		}
		idx++
	}
	return visible
}

// ValidateRuleStructure checks the construction invariants for every
// conditional rule in the field sequence: the source must be an existing
// enumerable field, the operator must be known, and the target must sit
// strictly after the owning field (no backward or self jumps, which keeps
// the navigation graph acyclic by construction). Nested fields inside
// section headers may not own rules and are not addressable as targets.
func ValidateRuleStructure(fields []models.Field) []string {
	index := make(map[string]int, len(fields))
	for i, field := range fields {
		index[field.ID] = i
	}

	var problems []string
	for i, field := range fields {
		for _, child := range field.Children {
			if len(child.Rules) > 0 {
				problems = append(problems, "field "+child.ID+": nested fields may not carry conditional rules")
			}
		}
		for _, rule := range field.Rules {
			srcIdx, srcOK := index[rule.SourceFieldID]
			if !srcOK {
				problems = append(problems, "field "+field.ID+": rule source "+rule.SourceFieldID+" does not exist")
				continue
			}
			if !fields[srcIdx].Kind.Enumerable() {
				problems = append(problems, "field "+field.ID+": rule source "+rule.SourceFieldID+" is not an option-based field")
			}
			if !rule.Operator.Valid() {
				problems = append(problems, "field "+field.ID+": unknown rule operator "+string(rule.Operator))
			}
			targetIdx, targetOK := index[rule.TargetFieldID]
			if !targetOK {
				problems = append(problems, "field "+field.ID+": rule target "+rule.TargetFieldID+" does not exist")
				continue
			}
			if targetIdx <= i {
				problems = append(problems, "field "+field.ID+": rule target "+rule.TargetFieldID+" must come after the field that owns the rule")
			}
		}
	}
	return problems
}
