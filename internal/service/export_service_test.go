package service

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fpnet-io/fpnet-api/internal/dto"
	"github.com/fpnet-io/fpnet-api/internal/models"
	appErrors "github.com/fpnet-io/fpnet-api/pkg/errors"
	"github.com/fpnet-io/fpnet-api/pkg/jobs"
	"github.com/fpnet-io/fpnet-api/pkg/storage"
)

type exportFormsMock struct {
	forms map[string]*models.Form
}

func (m *exportFormsMock) FindByID(ctx context.Context, id string) (*models.Form, error) {
	if form, ok := m.forms[id]; ok {
		return form, nil
	}
	return nil, sql.ErrNoRows
}

type exportResponsesMock struct {
	sessions []models.ResponseSession
}

func (m *exportResponsesMock) ListByForm(ctx context.Context, formID string) ([]models.ResponseSession, error) {
	return m.sessions, nil
}

func exportFixture(t *testing.T) (*ExportService, *exportFormsMock, *exportResponsesMock) {
	t.Helper()

	forms := &exportFormsMock{forms: map[string]*models.Form{"f1": openForm()}}
	responses := &exportResponsesMock{}

	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	service := NewExportService(ExportServiceParams{
		Forms:     forms,
		Responses: responses,
		Store:     store,
		Signer:    storage.NewSignedURLSigner("test-secret", time.Hour),
		Logger:    zap.NewNop(),
		Queue:     jobs.QueueConfig{Workers: 1, RetryDelay: 10 * time.Millisecond},
	})

	ctx, cancel := context.WithCancel(context.Background())
	service.Start(ctx)
	t.Cleanup(func() {
		cancel()
		service.Stop()
	})
	return service, forms, responses
}

func submittedSession(id, userName string, version int, answers models.AnswerSet) models.ResponseSession {
	at := time.Now().UTC()
	return models.ResponseSession{
		ID:          id,
		FormID:      "f1",
		UserID:      "u1",
		UserName:    userName,
		UserRole:    models.RoleTeacher,
		Version:     version,
		Status:      models.ResponseStatusSubmitted,
		Answers:     answers,
		SubmittedAt: &at,
	}
}

func TestExportCSVLifecycle(t *testing.T) {
	service, _, responses := exportFixture(t)
	responses.sessions = []models.ResponseSession{
		submittedSession("s1", "Teacher One", 1, models.AnswerSet{
			"q1": {Kind: models.FieldKindShortText, Text: "hello"},
		}),
	}

	job, err := service.Create(context.Background(), dto.CreateExportRequest{FormID: "f1", Format: "csv"}, teacherClaims())
	require.NoError(t, err)
	assert.Equal(t, dto.ExportJobStatusPending, job.Status)

	require.Eventually(t, func() bool {
		got, err := service.Get(context.Background(), job.ID, teacherClaims())
		return err == nil && got.Status == dto.ExportJobStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	got, err := service.Get(context.Background(), job.ID, teacherClaims())
	require.NoError(t, err)
	require.NotEmpty(t, got.DownloadURL)
	require.NotNil(t, got.ExpiresAt)

	token := strings.TrimPrefix(got.DownloadURL, "/api/v1/exports/download/")
	path, filename, err := service.Resolve(token)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(filename, ".csv"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Respondent")
	assert.Contains(t, string(data), "Teacher One")
	assert.Contains(t, string(data), "hello")
}

func TestExportCreateUnknownForm(t *testing.T) {
	service, forms, _ := exportFixture(t)
	delete(forms.forms, "f1")

	_, err := service.Create(context.Background(), dto.CreateExportRequest{FormID: "f1", Format: "csv"}, teacherClaims())
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestExportCreateRejectsUnknownFormat(t *testing.T) {
	service, _, _ := exportFixture(t)

	_, err := service.Create(context.Background(), dto.CreateExportRequest{FormID: "f1", Format: "xlsx"}, teacherClaims())
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestExportGetOwnership(t *testing.T) {
	service, _, _ := exportFixture(t)

	job, err := service.Create(context.Background(), dto.CreateExportRequest{FormID: "f1", Format: "csv"}, teacherClaims())
	require.NoError(t, err)

	_, err = service.Get(context.Background(), job.ID, &models.JWTClaims{UserID: "u2", Role: models.RoleTeacher})
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)

	_, err = service.Get(context.Background(), job.ID, &models.JWTClaims{UserID: "admin", Role: models.RoleAdmin})
	require.NoError(t, err)
}

func TestExportResolveRejectsBadToken(t *testing.T) {
	service, _, _ := exportFixture(t)

	_, _, err := service.Resolve("not-a-real-token")
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestBuildDatasetFlattensSections(t *testing.T) {
	form := &models.Form{
		ID:    "f1",
		Title: "Survey",
		Fields: models.FieldList{
			textField("q1"),
			{ID: "sec", Kind: models.FieldKindSectionHeader, Label: "Details", Children: []models.Field{
				textField("c1"),
			}},
			{ID: "q2", Kind: models.FieldKindMultiChoice, Label: "q2", Options: []string{"a", "b", "c"}},
		},
	}
	sessions := []models.ResponseSession{
		submittedSession("s2", "Beta", 1, models.AnswerSet{
			"q1": {Kind: models.FieldKindShortText, Text: "beta answer"},
			"c1": {Kind: models.FieldKindShortText, Text: "child answer"},
			"q2": {Kind: models.FieldKindMultiChoice, Selections: []string{"a", "c"}},
		}),
		submittedSession("s3", "Alpha", 1, models.AnswerSet{
			"q1": {Kind: models.FieldKindShortText, Text: "alpha answer"},
		}),
		// Drafts and superseded revisions never appear in exports.
		{ID: "s4", FormID: "f1", UserName: "Gamma", Status: models.ResponseStatusDraft},
		func() models.ResponseSession {
			s := submittedSession("s5", "Delta", 1, nil)
			s.Superseded = true
			return s
		}(),
	}

	dataset := buildDataset(form, sessions)

	assert.Equal(t, []string{"Respondent", "Role", "Version", "Submitted At", "q1", "c1", "q2"}, dataset.Headers)
	require.Len(t, dataset.Rows, 2)
	assert.Equal(t, "Alpha", dataset.Rows[0]["Respondent"])
	assert.Equal(t, "Beta", dataset.Rows[1]["Respondent"])
	assert.Equal(t, "child answer", dataset.Rows[1]["c1"])
	assert.Equal(t, "a; c", dataset.Rows[1]["q2"])
}
