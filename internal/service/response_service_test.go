package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fpnet-io/fpnet-api/internal/models"
	appErrors "github.com/fpnet-io/fpnet-api/pkg/errors"
)

type mockResponseRepo struct {
	sessions   map[string]*models.ResponseSession
	superseded []string
	upsertErr  error
}

func (m *mockResponseRepo) FindByID(ctx context.Context, id string) (*models.ResponseSession, error) {
	if session, ok := m.sessions[id]; ok {
		cp := *session
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockResponseRepo) ListByForm(ctx context.Context, formID string) ([]models.ResponseSession, error) {
	var out []models.ResponseSession
	for _, session := range m.sessions {
		if session.FormID == formID {
			out = append(out, *session)
		}
	}
	return out, nil
}

func (m *mockResponseRepo) ListByUserAndForm(ctx context.Context, userID, formID string) ([]models.ResponseSession, error) {
	var out []models.ResponseSession
	for _, session := range m.sessions {
		if session.UserID == userID && session.FormID == formID {
			out = append(out, *session)
		}
	}
	return out, nil
}

func (m *mockResponseRepo) LatestSubmitted(ctx context.Context, formID, userID string) (*models.ResponseSession, error) {
	var latest *models.ResponseSession
	for _, session := range m.sessions {
		if session.FormID != formID || session.UserID != userID {
			continue
		}
		if session.Status != models.ResponseStatusSubmitted || session.Superseded {
			continue
		}
		if latest == nil || session.Version > latest.Version {
			latest = session
		}
	}
	if latest == nil {
		return nil, sql.ErrNoRows
	}
	cp := *latest
	return &cp, nil
}

func (m *mockResponseRepo) HasSubmitted(ctx context.Context, formID, userID string) (bool, error) {
	_, err := m.LatestSubmitted(ctx, formID, userID)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (m *mockResponseRepo) Upsert(ctx context.Context, session *models.ResponseSession) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	if m.sessions == nil {
		m.sessions = make(map[string]*models.ResponseSession)
	}
	cp := *session
	m.sessions[session.ID] = &cp
	return nil
}

func (m *mockResponseRepo) MarkSuperseded(ctx context.Context, id string, at time.Time) error {
	m.superseded = append(m.superseded, id)
	if session, ok := m.sessions[id]; ok {
		session.Superseded = true
	}
	return nil
}

type mockFormFinder struct {
	forms map[string]*models.Form
}

func (m *mockFormFinder) FindByID(ctx context.Context, id string) (*models.Form, error) {
	if form, ok := m.forms[id]; ok {
		cp := *form
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func openForm() *models.Form {
	return &models.Form{
		ID:                 "f1",
		Title:              "Annual survey",
		Status:             models.FormStatusPublished,
		AcceptingResponses: true,
		AssignedRoles:      models.RoleList{models.RoleTeacher},
		AcademicYearID:     "y1",
		Fields: models.FieldList{
			{ID: "q1", Kind: models.FieldKindShortText, Label: "Name", Required: true},
			{ID: "q2", Kind: models.FieldKindSingleChoice, Label: "Shift", Options: []string{"morning", "evening"}},
		},
	}
}

func teacherClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "u1", Role: models.RoleTeacher, FullName: "Teacher One"}
}

func newResponseFixture(form *models.Form) (*ResponseService, *mockResponseRepo) {
	repo := &mockResponseRepo{sessions: make(map[string]*models.ResponseSession)}
	forms := &mockFormFinder{forms: map[string]*models.Form{form.ID: form}}
	return NewResponseService(repo, forms, nil, zap.NewNop()), repo
}

func TestResponseStartFreshSession(t *testing.T) {
	service, repo := newResponseFixture(openForm())

	session, err := service.Start(context.Background(), "f1", teacherClaims())
	require.NoError(t, err)
	assert.NotEmpty(t, session.ID)
	assert.Equal(t, models.ResponseStatusDraft, session.Status)
	assert.Equal(t, 1, session.Version)
	assert.False(t, session.IsModification)
	assert.Nil(t, session.OriginalResponseID)
	assert.Equal(t, "y1", session.AcademicYearID)
	assert.Len(t, repo.sessions, 1)
}

func TestResponseStartResumesExistingDraft(t *testing.T) {
	service, repo := newResponseFixture(openForm())
	repo.sessions["d1"] = &models.ResponseSession{
		ID: "d1", FormID: "f1", UserID: "u1",
		Status: models.ResponseStatusDraft, Version: 1,
		Answers: models.AnswerSet{"q1": {Kind: models.FieldKindShortText, Text: "partial"}},
	}

	session, err := service.Start(context.Background(), "f1", teacherClaims())
	require.NoError(t, err)
	assert.Equal(t, "d1", session.ID)
	assert.Equal(t, "partial", session.Answers["q1"].Text)
	assert.Len(t, repo.sessions, 1)
}

func TestResponseStartDeniedWhenNotAccepting(t *testing.T) {
	form := openForm()
	form.AcceptingResponses = false
	service, _ := newResponseFixture(form)

	_, err := service.Start(context.Background(), "f1", teacherClaims())
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrPermissionDenied.Code, appErr.Code)

	ok2, reason, err := service.CanRespond(context.Background(), "f1", teacherClaims())
	require.NoError(t, err)
	assert.False(t, ok2)
	assert.Equal(t, "form is not accepting responses", reason)
}

func TestResponseStartDeniedForUnassignedRole(t *testing.T) {
	service, _ := newResponseFixture(openForm())
	actor := &models.JWTClaims{UserID: "u2", Role: models.RoleCenter}

	allowed, reason, err := service.CanRespond(context.Background(), "f1", actor)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, "form is not assigned to your role", reason)

	_, err = service.Start(context.Background(), "f1", actor)
	require.Error(t, err)
}

func TestResponseStartDeniedAfterSubmission(t *testing.T) {
	service, repo := newResponseFixture(openForm())
	submitted := time.Now()
	repo.sessions["s1"] = &models.ResponseSession{
		ID: "s1", FormID: "f1", UserID: "u1",
		Status: models.ResponseStatusSubmitted, Version: 1, SubmittedAt: &submitted,
	}

	allowed, reason, err := service.CanRespond(context.Background(), "f1", teacherClaims())
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, "you have already responded to this form", reason)

	_, err = service.Start(context.Background(), "f1", teacherClaims())
	require.Error(t, err)
}

func TestResponseStartRevisionChain(t *testing.T) {
	form := openForm()
	form.AllowModification = true
	service, repo := newResponseFixture(form)
	submitted := time.Now()
	repo.sessions["s1"] = &models.ResponseSession{
		ID: "s1", FormID: "f1", UserID: "u1",
		Status: models.ResponseStatusSubmitted, Version: 1, SubmittedAt: &submitted,
		Answers: models.AnswerSet{"q1": {Kind: models.FieldKindShortText, Text: "original"}},
	}

	session, err := service.Start(context.Background(), "f1", teacherClaims())
	require.NoError(t, err)
	assert.Equal(t, 2, session.Version)
	assert.True(t, session.IsModification)
	require.NotNil(t, session.OriginalResponseID)
	assert.Equal(t, "s1", *session.OriginalResponseID)
	assert.Equal(t, "original", session.Answers["q1"].Text)
	assert.Equal(t, models.ResponseStatusDraft, session.Status)
}

func TestResponseRevisionLinksToChainRoot(t *testing.T) {
	form := openForm()
	form.AllowModification = true
	service, repo := newResponseFixture(form)
	root := "s1"
	submitted := time.Now()
	repo.sessions["s2"] = &models.ResponseSession{
		ID: "s2", FormID: "f1", UserID: "u1",
		Status: models.ResponseStatusSubmitted, Version: 2, SubmittedAt: &submitted,
		IsModification: true, OriginalResponseID: &root,
	}

	session, err := service.Start(context.Background(), "f1", teacherClaims())
	require.NoError(t, err)
	assert.Equal(t, 3, session.Version)
	require.NotNil(t, session.OriginalResponseID)
	assert.Equal(t, "s1", *session.OriginalResponseID)
}

func TestResponseStartAllowMultipleStaysFresh(t *testing.T) {
	form := openForm()
	form.AllowMultipleResponses = true
	service, repo := newResponseFixture(form)
	submitted := time.Now()
	repo.sessions["s1"] = &models.ResponseSession{
		ID: "s1", FormID: "f1", UserID: "u1",
		Status: models.ResponseStatusSubmitted, Version: 1, SubmittedAt: &submitted,
	}

	session, err := service.Start(context.Background(), "f1", teacherClaims())
	require.NoError(t, err)
	assert.Equal(t, 1, session.Version)
	assert.False(t, session.IsModification)
}

func TestResponseSaveDraftIsIdempotent(t *testing.T) {
	service, repo := newResponseFixture(openForm())
	repo.sessions["d1"] = &models.ResponseSession{
		ID: "d1", FormID: "f1", UserID: "u1",
		Status: models.ResponseStatusDraft, Version: 1,
	}

	answers := models.AnswerSet{"q1": {Text: "draft text"}}
	first, err := service.Save(context.Background(), "d1", answers, true, teacherClaims())
	require.NoError(t, err)
	assert.Equal(t, models.ResponseStatusDraft, first.Status)
	assert.Equal(t, 1, first.Version)
	// The declared kind is stamped onto the stored answer.
	assert.Equal(t, models.FieldKindShortText, first.Answers["q1"].Kind)

	second, err := service.Save(context.Background(), "d1", answers, true, teacherClaims())
	require.NoError(t, err)
	assert.Equal(t, first.Version, second.Version)
	assert.Equal(t, first.Answers, second.Answers)
}

func TestResponseSaveDropsUnknownFieldIDs(t *testing.T) {
	service, repo := newResponseFixture(openForm())
	repo.sessions["d1"] = &models.ResponseSession{
		ID: "d1", FormID: "f1", UserID: "u1",
		Status: models.ResponseStatusDraft, Version: 1,
	}

	answers := models.AnswerSet{
		"q1":    {Text: "kept"},
		"ghost": {Text: "dropped"},
	}
	session, err := service.Save(context.Background(), "d1", answers, true, teacherClaims())
	require.NoError(t, err)
	assert.Contains(t, session.Answers, "q1")
	assert.NotContains(t, session.Answers, "ghost")
}

func TestResponseSaveRejectsForeignSession(t *testing.T) {
	service, repo := newResponseFixture(openForm())
	repo.sessions["d1"] = &models.ResponseSession{
		ID: "d1", FormID: "f1", UserID: "someone-else",
		Status: models.ResponseStatusDraft, Version: 1,
	}

	_, err := service.Save(context.Background(), "d1", models.AnswerSet{}, true, teacherClaims())
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestResponseSaveRejectsSubmittedSession(t *testing.T) {
	service, repo := newResponseFixture(openForm())
	submitted := time.Now()
	repo.sessions["s1"] = &models.ResponseSession{
		ID: "s1", FormID: "f1", UserID: "u1",
		Status: models.ResponseStatusSubmitted, Version: 1, SubmittedAt: &submitted,
	}

	_, err := service.Save(context.Background(), "s1", models.AnswerSet{}, true, teacherClaims())
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)
}

func TestResponseSubmitValidatesAnswers(t *testing.T) {
	service, repo := newResponseFixture(openForm())
	repo.sessions["d1"] = &models.ResponseSession{
		ID: "d1", FormID: "f1", UserID: "u1",
		Status: models.ResponseStatusDraft, Version: 1,
	}

	// q1 is required and missing.
	_, err := service.Save(context.Background(), "d1", models.AnswerSet{}, false, teacherClaims())
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	require.Len(t, appErr.Fields, 1)
	assert.Equal(t, "q1", appErr.Fields[0].FieldID)
}

func TestResponseSubmitSucceeds(t *testing.T) {
	service, repo := newResponseFixture(openForm())
	repo.sessions["d1"] = &models.ResponseSession{
		ID: "d1", FormID: "f1", UserID: "u1",
		Status: models.ResponseStatusDraft, Version: 1,
	}

	answers := models.AnswerSet{"q1": {Text: "Teacher One"}}
	session, err := service.Save(context.Background(), "d1", answers, false, teacherClaims())
	require.NoError(t, err)
	assert.Equal(t, models.ResponseStatusSubmitted, session.Status)
	require.NotNil(t, session.SubmittedAt)
	assert.Empty(t, repo.superseded)
}

func TestResponseSubmitSupersedesPriorRevision(t *testing.T) {
	form := openForm()
	form.AllowModification = true
	service, repo := newResponseFixture(form)
	submitted := time.Now()
	root := "s1"
	repo.sessions["s1"] = &models.ResponseSession{
		ID: "s1", FormID: "f1", UserID: "u1",
		Status: models.ResponseStatusSubmitted, Version: 1, SubmittedAt: &submitted,
	}
	repo.sessions["d2"] = &models.ResponseSession{
		ID: "d2", FormID: "f1", UserID: "u1",
		Status: models.ResponseStatusDraft, Version: 2,
		IsModification: true, OriginalResponseID: &root,
	}

	answers := models.AnswerSet{"q1": {Text: "revised"}}
	session, err := service.Save(context.Background(), "d2", answers, false, teacherClaims())
	require.NoError(t, err)
	assert.Equal(t, models.ResponseStatusSubmitted, session.Status)
	require.Len(t, repo.superseded, 1)
	assert.Equal(t, "s1", repo.superseded[0])
	assert.True(t, repo.sessions["s1"].Superseded)
}

func TestResponseSaveBlockedOnClosedForm(t *testing.T) {
	form := openForm()
	form.Status = models.FormStatusClosed
	service, repo := newResponseFixture(form)
	repo.sessions["d1"] = &models.ResponseSession{
		ID: "d1", FormID: "f1", UserID: "u1",
		Status: models.ResponseStatusDraft, Version: 1,
	}

	_, err := service.Save(context.Background(), "d1", models.AnswerSet{}, true, teacherClaims())
	require.Error(t, err)
}

func TestResponseSubmitBlockedWhilePaused(t *testing.T) {
	form := openForm()
	service, repo := newResponseFixture(form)
	repo.sessions["d1"] = &models.ResponseSession{
		ID: "d1", FormID: "f1", UserID: "u1",
		Status: models.ResponseStatusDraft, Version: 1,
	}
	form.AcceptingResponses = false

	// Draft saves still work while intake is paused.
	_, err := service.Save(context.Background(), "d1", models.AnswerSet{"q1": {Text: "x"}}, true, teacherClaims())
	require.NoError(t, err)

	_, err = service.Save(context.Background(), "d1", models.AnswerSet{"q1": {Text: "x"}}, false, teacherClaims())
	require.Error(t, err)
}

func TestResponseGetOwnershipRules(t *testing.T) {
	service, repo := newResponseFixture(openForm())
	repo.sessions["s1"] = &models.ResponseSession{
		ID: "s1", FormID: "f1", UserID: "u1",
		Status: models.ResponseStatusSubmitted, Version: 1,
	}

	_, err := service.Get(context.Background(), "s1", teacherClaims())
	require.NoError(t, err)

	_, err = service.Get(context.Background(), "s1", &models.JWTClaims{UserID: "u2", Role: models.RoleTeacher})
	require.Error(t, err)

	_, err = service.Get(context.Background(), "s1", &models.JWTClaims{UserID: "admin", Role: models.RoleAdmin})
	require.NoError(t, err)

	_, err = service.Get(context.Background(), "missing", teacherClaims())
	require.Error(t, err)
}
