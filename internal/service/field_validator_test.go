package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fpnet-io/fpnet-api/internal/models"
)

func TestValidateAnswerRequired(t *testing.T) {
	field := models.Field{ID: "q1", Kind: models.FieldKindShortText, Required: true}

	fe := ValidateAnswer(field, models.AnswerValue{}, false)
	require.NotNil(t, fe)
	assert.Equal(t, "q1", fe.FieldID)
	assert.Equal(t, "answer is required", fe.Reason)

	fe = ValidateAnswer(field, models.AnswerValue{Kind: models.FieldKindShortText, Text: ""}, true)
	assert.NotNil(t, fe)

	fe = ValidateAnswer(field, models.AnswerValue{Kind: models.FieldKindShortText, Text: "hi"}, true)
	assert.Nil(t, fe)
}

func TestValidateAnswerOptionalEmptyIsFine(t *testing.T) {
	field := models.Field{ID: "q1", Kind: models.FieldKindShortText}
	assert.Nil(t, ValidateAnswer(field, models.AnswerValue{}, false))
}

func TestValidateAnswerSingleChoice(t *testing.T) {
	field := models.Field{ID: "q1", Kind: models.FieldKindSingleChoice, Options: []string{"a", "b"}}

	fe := ValidateAnswer(field, models.AnswerValue{Kind: models.FieldKindSingleChoice, Selections: []string{"a", "b"}}, true)
	require.NotNil(t, fe)
	assert.Equal(t, "only one option may be selected", fe.Reason)

	fe = ValidateAnswer(field, models.AnswerValue{Kind: models.FieldKindSingleChoice, Selections: []string{"c"}}, true)
	require.NotNil(t, fe)
	assert.Contains(t, fe.Reason, "not a declared option")

	assert.Nil(t, ValidateAnswer(field, models.AnswerValue{Kind: models.FieldKindSingleChoice, Selections: []string{"b"}}, true))
}

func TestValidateAnswerMultiChoiceSubset(t *testing.T) {
	field := models.Field{ID: "q1", Kind: models.FieldKindMultiChoice, Options: []string{"a", "b", "c"}}

	assert.Nil(t, ValidateAnswer(field, models.AnswerValue{Kind: models.FieldKindMultiChoice, Selections: []string{"a", "c"}}, true))

	fe := ValidateAnswer(field, models.AnswerValue{Kind: models.FieldKindMultiChoice, Selections: []string{"a", "x"}}, true)
	require.NotNil(t, fe)
	assert.Contains(t, fe.Reason, `"x"`)
}

func TestValidateAnswerFileConstraints(t *testing.T) {
	field := models.Field{
		ID:               "q1",
		Kind:             models.FieldKindFileUpload,
		AcceptedMIMEs:    []string{"application/pdf"},
		MaxFileSizeBytes: 1024,
		MaxFiles:         1,
	}

	ok := models.AnswerValue{Kind: models.FieldKindFileUpload, Files: []models.FileAttachment{
		{Name: "doc.pdf", MimeType: "application/pdf", SizeBytes: 512},
	}}
	assert.Nil(t, ValidateAnswer(field, ok, true))

	tooMany := models.AnswerValue{Kind: models.FieldKindFileUpload, Files: []models.FileAttachment{
		{Name: "a.pdf", MimeType: "application/pdf", SizeBytes: 1},
		{Name: "b.pdf", MimeType: "application/pdf", SizeBytes: 1},
	}}
	fe := ValidateAnswer(field, tooMany, true)
	require.NotNil(t, fe)
	assert.Contains(t, fe.Reason, "at most 1 file(s)")

	wrongType := models.AnswerValue{Kind: models.FieldKindFileUpload, Files: []models.FileAttachment{
		{Name: "pic.png", MimeType: "image/png", SizeBytes: 1},
	}}
	fe = ValidateAnswer(field, wrongType, true)
	require.NotNil(t, fe)
	assert.Contains(t, fe.Reason, "image/png")

	tooBig := models.AnswerValue{Kind: models.FieldKindFileUpload, Files: []models.FileAttachment{
		{Name: "doc.pdf", MimeType: "application/pdf", SizeBytes: 4096},
	}}
	fe = ValidateAnswer(field, tooBig, true)
	require.NotNil(t, fe)
	assert.Contains(t, fe.Reason, "exceeds the maximum size")
}

func TestValidateAnswersSkippedFieldsAreExempt(t *testing.T) {
	form := &models.Form{Fields: models.FieldList{
		{
			ID: "q1", Kind: models.FieldKindSingleChoice, Required: true, Options: []string{"skip", "stay"},
			Rules: []models.ConditionalRule{
				{SourceFieldID: "q1", Operator: models.RuleOperatorEquals, Value: "skip", TargetFieldID: "q3"},
			},
		},
		{ID: "q2", Kind: models.FieldKindShortText, Required: true},
		{ID: "q3", Kind: models.FieldKindShortText},
	}}

	answers := models.AnswerSet{"q1": singleAnswer("skip")}
	assert.Empty(t, ValidateAnswers(form, answers))

	answers = models.AnswerSet{"q1": singleAnswer("stay")}
	fieldErrors := ValidateAnswers(form, answers)
	require.Len(t, fieldErrors, 1)
	assert.Equal(t, "q2", fieldErrors[0].FieldID)
}

func TestValidateAnswersSectionChildren(t *testing.T) {
	form := &models.Form{Fields: models.FieldList{
		{
			ID: "sec", Kind: models.FieldKindSectionHeader, Required: true,
			Children: []models.Field{
				{ID: "c1", Kind: models.FieldKindShortText, Required: true},
				{ID: "c2", Kind: models.FieldKindShortText},
			},
		},
	}}

	fieldErrors := ValidateAnswers(form, models.AnswerSet{})
	require.Len(t, fieldErrors, 1)
	assert.Equal(t, "c1", fieldErrors[0].FieldID)

	answers := models.AnswerSet{"c1": {Kind: models.FieldKindShortText, Text: "done"}}
	assert.Empty(t, ValidateAnswers(form, answers))
}
