package service

import (
	"fmt"

	"github.com/fpnet-io/fpnet-api/internal/models"
	appErrors "github.com/fpnet-io/fpnet-api/pkg/errors"
)

// ValidateAnswer checks one answer against its field's declared constraints.
// It returns a result value instead of an error so callers can aggregate
// every broken field before blocking navigation. A nil result means valid.
func ValidateAnswer(field models.Field, answer models.AnswerValue, present bool) *appErrors.FieldError {
	if !present || answer.Empty() {
		if field.Required && field.Kind != models.FieldKindSectionHeader {
			return &appErrors.FieldError{FieldID: field.ID, Reason: "answer is required"}
		}
		return nil
	}

	switch field.Kind {
	case models.FieldKindSingleSelect, models.FieldKindSingleChoice:
		if len(answer.Selections) > 1 {
			return &appErrors.FieldError{FieldID: field.ID, Reason: "only one option may be selected"}
		}
		if reason := checkOptions(field, answer); reason != "" {
			return &appErrors.FieldError{FieldID: field.ID, Reason: reason}
		}
	case models.FieldKindMultiChoice:
		if reason := checkOptions(field, answer); reason != "" {
			return &appErrors.FieldError{FieldID: field.ID, Reason: reason}
		}
	case models.FieldKindFileUpload:
		if reason := checkFiles(field, answer); reason != "" {
			return &appErrors.FieldError{FieldID: field.ID, Reason: reason}
		}
	}

	return nil
}

func checkOptions(field models.Field, answer models.AnswerValue) string {
	declared := make(map[string]struct{}, len(field.Options))
	for _, opt := range field.Options {
		declared[opt] = struct{}{}
	}
	for value := range answer.Set() {
		if _, ok := declared[value]; !ok {
			return fmt.Sprintf("value %q is not a declared option", value)
		}
	}
	return ""
}

func checkFiles(field models.Field, answer models.AnswerValue) string {
	if field.MaxFiles > 0 && len(answer.Files) > field.MaxFiles {
		return fmt.Sprintf("at most %d file(s) allowed", field.MaxFiles)
	}

	allowed := make(map[string]struct{}, len(field.AcceptedMIMEs))
	for _, mime := range field.AcceptedMIMEs {
		allowed[mime] = struct{}{}
	}

	for _, file := range answer.Files {
		if len(allowed) > 0 {
			if _, ok := allowed[file.MimeType]; !ok {
				return fmt.Sprintf("file type %s is not accepted", file.MimeType)
			}
		}
		if field.MaxFileSizeBytes > 0 && file.SizeBytes > field.MaxFileSizeBytes {
			return fmt.Sprintf("file %s exceeds the maximum size of %d bytes", file.Name, field.MaxFileSizeBytes)
		}
	}
	return ""
}

// ValidateAnswers validates every field reachable on the rule-driven visible
// path. Fields skipped by a conditional jump are not required. Section
// header children are validated whenever their header is visible.
func ValidateAnswers(form *models.Form, answers models.AnswerSet) []appErrors.FieldError {
	var fieldErrors []appErrors.FieldError

	appendCheck := func(field models.Field) {
		answer, present := answers[field.ID]
		if fe := ValidateAnswer(field, answer, present); fe != nil {
			fieldErrors = append(fieldErrors, *fe)
		}
	}

	for _, field := range VisibleFields(form, answers) {
		if field.Kind == models.FieldKindSectionHeader {
			for _, child := range field.Children {
				appendCheck(child)
			}
			continue
		}
		appendCheck(field)
	}

	return fieldErrors
}
