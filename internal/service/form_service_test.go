package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fpnet-io/fpnet-api/internal/models"
	appErrors "github.com/fpnet-io/fpnet-api/pkg/errors"
)

type mockFormRepo struct {
	forms   map[string]*models.Form
	deleted []string
}

func (m *mockFormRepo) List(ctx context.Context, filter models.FormFilter) ([]models.Form, int, error) {
	var out []models.Form
	for _, form := range m.forms {
		out = append(out, *form)
	}
	return out, len(out), nil
}

func (m *mockFormRepo) FindByID(ctx context.Context, id string) (*models.Form, error) {
	if form, ok := m.forms[id]; ok {
		cp := *form
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockFormRepo) Create(ctx context.Context, form *models.Form) error {
	if m.forms == nil {
		m.forms = make(map[string]*models.Form)
	}
	if form.ID == "" {
		form.ID = "generated"
	}
	cp := *form
	m.forms[form.ID] = &cp
	return nil
}

func (m *mockFormRepo) Update(ctx context.Context, form *models.Form) error {
	cp := *form
	m.forms[form.ID] = &cp
	return nil
}

func (m *mockFormRepo) DeleteCascade(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	delete(m.forms, id)
	return nil
}

type mockYearFinder struct {
	active *models.AcademicYear
	byID   map[string]*models.AcademicYear
}

func (m *mockYearFinder) FindActive(ctx context.Context) (*models.AcademicYear, error) {
	if m.active == nil {
		return nil, sql.ErrNoRows
	}
	return m.active, nil
}

func (m *mockYearFinder) FindByID(ctx context.Context, id string) (*models.AcademicYear, error) {
	if year, ok := m.byID[id]; ok {
		return year, nil
	}
	return nil, sql.ErrNoRows
}

type mockAuditLogger struct {
	actions []string
}

func (m *mockAuditLogger) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.actions = append(m.actions, log.Action)
	return nil
}

func adminClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "admin", Role: models.RoleAdmin, FullName: "Admin"}
}

func newFormFixture() (*FormService, *mockFormRepo, *mockAuditLogger) {
	repo := &mockFormRepo{forms: make(map[string]*models.Form)}
	years := &mockYearFinder{active: &models.AcademicYear{ID: "y1", Name: "2026/2027", IsActive: true}}
	audit := &mockAuditLogger{}
	service := NewFormService(repo, years, audit, nil, AttachmentPolicy{}, validator.New(), zap.NewNop())
	return service, repo, audit
}

func TestFormCreateStartsAsDraft(t *testing.T) {
	service, repo, _ := newFormFixture()

	form, err := service.Create(context.Background(), CreateFormRequest{
		Title: "Staff survey",
		Fields: []models.Field{
			{Kind: models.FieldKindShortText, Label: "Name"},
		},
	}, adminClaims())
	require.NoError(t, err)
	assert.Equal(t, models.FormStatusDraft, form.Status)
	assert.False(t, form.AcceptingResponses)
	assert.Equal(t, "y1", form.AcademicYearID)
	assert.NotEmpty(t, form.Fields[0].ID)
	assert.Len(t, repo.forms, 1)
}

func TestFormCreateWithoutActiveYearFails(t *testing.T) {
	repo := &mockFormRepo{forms: make(map[string]*models.Form)}
	years := &mockYearFinder{}
	service := NewFormService(repo, years, nil, nil, AttachmentPolicy{}, validator.New(), zap.NewNop())

	_, err := service.Create(context.Background(), CreateFormRequest{Title: "Survey"}, adminClaims())
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)
}

func TestFormCreateRejectsBrokenRules(t *testing.T) {
	service, _, _ := newFormFixture()

	_, err := service.Create(context.Background(), CreateFormRequest{
		Title: "Survey",
		Fields: []models.Field{
			{
				ID: "q1", Kind: models.FieldKindSingleChoice, Options: []string{"a"},
				Rules: []models.ConditionalRule{
					{SourceFieldID: "q1", Operator: models.RuleOperatorEquals, Value: "a", TargetFieldID: "nowhere"},
				},
			},
		},
	}, adminClaims())
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrStructural.Code, appErr.Code)
}

func TestFormCreateAppliesAttachmentPolicy(t *testing.T) {
	repo := &mockFormRepo{forms: make(map[string]*models.Form)}
	years := &mockYearFinder{active: &models.AcademicYear{ID: "y1"}}
	policy := AttachmentPolicy{MaxFileSizeBytes: 1024, AllowedMIMEs: []string{"application/pdf"}}
	service := NewFormService(repo, years, nil, nil, policy, validator.New(), zap.NewNop())

	form, err := service.Create(context.Background(), CreateFormRequest{
		Title: "Upload form",
		Fields: []models.Field{
			{Kind: models.FieldKindFileUpload, Label: "Attachment", MaxFileSizeBytes: 9999},
		},
	}, adminClaims())
	require.NoError(t, err)
	assert.Equal(t, int64(1024), form.Fields[0].MaxFileSizeBytes)
	assert.Equal(t, []string{"application/pdf"}, form.Fields[0].AcceptedMIMEs)
}

func TestFormPublishRequiresFields(t *testing.T) {
	service, repo, _ := newFormFixture()
	repo.forms["f1"] = &models.Form{ID: "f1", Title: "Empty", Status: models.FormStatusDraft}

	_, err := service.Publish(context.Background(), "f1", adminClaims())
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)
}

func TestFormPublishOpensIntake(t *testing.T) {
	service, repo, audit := newFormFixture()
	repo.forms["f1"] = &models.Form{
		ID: "f1", Title: "Survey", Status: models.FormStatusDraft,
		Fields: models.FieldList{{ID: "q1", Kind: models.FieldKindShortText}},
	}

	form, err := service.Publish(context.Background(), "f1", adminClaims())
	require.NoError(t, err)
	assert.Equal(t, models.FormStatusPublished, form.Status)
	assert.True(t, form.AcceptingResponses)
	assert.Contains(t, audit.actions, models.AuditActionFormPublish)

	// Publishing again is a no-op, not an error.
	again, err := service.Publish(context.Background(), "f1", adminClaims())
	require.NoError(t, err)
	assert.Equal(t, models.FormStatusPublished, again.Status)
}

func TestFormPauseResumeLifecycle(t *testing.T) {
	service, repo, _ := newFormFixture()
	repo.forms["f1"] = &models.Form{
		ID: "f1", Status: models.FormStatusPublished, AcceptingResponses: true,
		Fields: models.FieldList{{ID: "q1", Kind: models.FieldKindShortText}},
	}

	form, err := service.Pause(context.Background(), "f1")
	require.NoError(t, err)
	assert.False(t, form.AcceptingResponses)
	assert.Equal(t, models.FormStatusPublished, form.Status)

	form, err = service.Resume(context.Background(), "f1")
	require.NoError(t, err)
	assert.True(t, form.AcceptingResponses)

	repo.forms["d1"] = &models.Form{ID: "d1", Status: models.FormStatusDraft}
	_, err = service.Pause(context.Background(), "d1")
	require.Error(t, err)
}

func TestFormCloseIsTerminal(t *testing.T) {
	service, repo, audit := newFormFixture()
	repo.forms["f1"] = &models.Form{
		ID: "f1", Status: models.FormStatusPublished, AcceptingResponses: true,
		Fields: models.FieldList{{ID: "q1", Kind: models.FieldKindShortText}},
	}

	form, err := service.Close(context.Background(), "f1", adminClaims())
	require.NoError(t, err)
	assert.Equal(t, models.FormStatusClosed, form.Status)
	assert.False(t, form.AcceptingResponses)
	assert.Contains(t, audit.actions, models.AuditActionFormClose)

	_, err = service.Update(context.Background(), "f1", UpdateFormRequest{Title: "Renamed"})
	require.Error(t, err)

	_, err = service.Resume(context.Background(), "f1")
	require.Error(t, err)
}

func TestFormDuplicateRemapsRules(t *testing.T) {
	service, repo, _ := newFormFixture()
	repo.forms["f1"] = &models.Form{
		ID: "f1", Title: "Survey", Status: models.FormStatusPublished, AcceptingResponses: true,
		AcademicYearID: "y1",
		Fields: models.FieldList{
			{
				ID: "q1", Kind: models.FieldKindSingleChoice, Options: []string{"a", "b"},
				Rules: []models.ConditionalRule{
					{SourceFieldID: "q1", Operator: models.RuleOperatorEquals, Value: "a", TargetFieldID: "q3"},
				},
			},
			{ID: "q2", Kind: models.FieldKindShortText},
			{ID: "q3", Kind: models.FieldKindShortText},
		},
	}

	duplicate, err := service.Duplicate(context.Background(), "f1", adminClaims())
	require.NoError(t, err)
	assert.Equal(t, "Survey (copy)", duplicate.Title)
	assert.Equal(t, models.FormStatusDraft, duplicate.Status)
	assert.False(t, duplicate.AcceptingResponses)
	require.Len(t, duplicate.Fields, 3)

	// Every field id is fresh and the rule follows the renamed fields.
	source := repo.forms["f1"]
	for i, field := range duplicate.Fields {
		assert.NotEqual(t, source.Fields[i].ID, field.ID)
	}
	rule := duplicate.Fields[0].Rules[0]
	assert.Equal(t, duplicate.Fields[0].ID, rule.SourceFieldID)
	assert.Equal(t, duplicate.Fields[2].ID, rule.TargetFieldID)
	assert.Empty(t, ValidateRuleStructure(duplicate.Fields))
}

func TestFormDeleteCascades(t *testing.T) {
	service, repo, audit := newFormFixture()
	repo.forms["f1"] = &models.Form{ID: "f1", Title: "Survey"}

	err := service.Delete(context.Background(), "f1", adminClaims())
	require.NoError(t, err)
	assert.Equal(t, []string{"f1"}, repo.deleted)
	assert.Contains(t, audit.actions, models.AuditActionFormDelete)

	err = service.Delete(context.Background(), "missing", adminClaims())
	require.Error(t, err)
}
