package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fpnet-io/fpnet-api/internal/models"
	appErrors "github.com/fpnet-io/fpnet-api/pkg/errors"
)

type mockDashboardFormRepo struct {
	form         *models.Form
	statusCounts map[models.FormStatus]int
}

func (m *mockDashboardFormRepo) FindByID(ctx context.Context, id string) (*models.Form, error) {
	if m.form == nil || m.form.ID != id {
		return nil, sql.ErrNoRows
	}
	cp := *m.form
	return &cp, nil
}

func (m *mockDashboardFormRepo) CountByStatus(ctx context.Context, academicYearID string) (map[models.FormStatus]int, error) {
	return m.statusCounts, nil
}

type mockDashboardResponseRepo struct {
	sessions []models.ResponseSession
	total    int
}

func (m *mockDashboardResponseRepo) ListByForm(ctx context.Context, formID string) ([]models.ResponseSession, error) {
	return m.sessions, nil
}

func (m *mockDashboardResponseRepo) CountByAcademicYear(ctx context.Context, academicYearID string) (int, error) {
	return m.total, nil
}

// memoryCacheRepo is an in-process stand-in for the redis-backed repository.
type memoryCacheRepo struct {
	entries map[string][]byte
	gets    int
	sets    int
}

func (m *memoryCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	m.gets++
	raw, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	m.sets++
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if m.entries == nil {
		m.entries = make(map[string][]byte)
	}
	m.entries[key] = raw
	return nil
}

func (m *memoryCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	for key := range m.entries {
		delete(m.entries, key)
	}
	return nil
}

func dashboardForm() *models.Form {
	return &models.Form{
		ID:    "f1",
		Title: "Equipment survey",
		Fields: models.FieldList{
			{ID: "q1", Kind: models.FieldKindShortText, Label: "Notes"},
			{ID: "q2", Kind: models.FieldKindSingleChoice, Label: "Shift", Options: []string{"morning", "evening"}},
			{ID: "q3", Kind: models.FieldKindMultiChoice, Label: "Days", Options: []string{"mon", "tue"}},
		},
	}
}

func TestDashboardFormCounts(t *testing.T) {
	root := "s1"
	sessions := []models.ResponseSession{
		{ID: "d1", Status: models.ResponseStatusDraft},
		{ID: "s1", Status: models.ResponseStatusSubmitted, Superseded: true, UserRole: models.RoleTeacher},
		{
			ID: "s2", Status: models.ResponseStatusSubmitted, UserRole: models.RoleTeacher,
			IsModification: true, OriginalResponseID: &root, Version: 2,
			Answers: models.AnswerSet{
				"q2": {Kind: models.FieldKindSingleChoice, Selections: []string{"morning"}},
				"q3": {Kind: models.FieldKindMultiChoice, Selections: []string{"mon", "tue"}},
			},
		},
		{
			ID: "s3", Status: models.ResponseStatusSubmitted, UserRole: models.RoleCenter,
			Answers: models.AnswerSet{
				"q2": {Kind: models.FieldKindSingleChoice, Selections: []string{"morning"}},
			},
		},
	}

	service := NewDashboardService(
		&mockDashboardFormRepo{form: dashboardForm()},
		&mockDashboardResponseRepo{sessions: sessions},
		&mockYearFinder{},
		nil, time.Minute, zap.NewNop(),
	)

	summary, cached, err := service.Form(context.Background(), "f1")
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 2, summary.TotalSubmitted)
	assert.Equal(t, 1, summary.TotalDrafts)
	// The superseded submission and the current modification both count as revisions.
	assert.Equal(t, 2, summary.TotalRevisions)
	assert.Equal(t, map[string]int{"TEACHER": 1, "CENTER": 1}, summary.ByRole)

	// Only enumerable fields get a breakdown, in declared order.
	require.Len(t, summary.Fields, 2)
	assert.Equal(t, "q2", summary.Fields[0].FieldID)
	assert.Equal(t, map[string]int{"morning": 2}, summary.Fields[0].Counts)
	assert.Equal(t, map[string]int{"mon": 1, "tue": 1}, summary.Fields[1].Counts)
}

func TestDashboardFormCacheRoundTrip(t *testing.T) {
	cacheRepo := &memoryCacheRepo{}
	cacheService := NewCacheService(cacheRepo, nil, time.Minute, zap.NewNop(), true)
	service := NewDashboardService(
		&mockDashboardFormRepo{form: dashboardForm()},
		&mockDashboardResponseRepo{},
		&mockYearFinder{},
		cacheService, time.Minute, zap.NewNop(),
	)

	first, cached, err := service.Form(context.Background(), "f1")
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 1, cacheRepo.sets)

	second, cached, err := service.Form(context.Background(), "f1")
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, first.FormID, second.FormID)
	assert.Equal(t, 1, cacheRepo.sets)
}

func TestDashboardFormNotFound(t *testing.T) {
	service := NewDashboardService(
		&mockDashboardFormRepo{},
		&mockDashboardResponseRepo{},
		&mockYearFinder{},
		nil, time.Minute, zap.NewNop(),
	)

	_, _, err := service.Form(context.Background(), "missing")
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestDashboardOverview(t *testing.T) {
	service := NewDashboardService(
		&mockDashboardFormRepo{statusCounts: map[models.FormStatus]int{
			models.FormStatusPublished: 3,
			models.FormStatusDraft:     1,
		}},
		&mockDashboardResponseRepo{total: 42},
		&mockYearFinder{active: &models.AcademicYear{ID: "y1", IsActive: true}},
		nil, time.Minute, zap.NewNop(),
	)

	overview, cached, err := service.Overview(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, "y1", overview.AcademicYearID)
	assert.Equal(t, 42, overview.TotalResponses)
	require.Len(t, overview.Forms, 2)
	// Sorted by status name.
	assert.Equal(t, "DRAFT", overview.Forms[0].Status)
	assert.Equal(t, "PUBLISHED", overview.Forms[1].Status)
	assert.Equal(t, 3, overview.Forms[1].Count)
}

func TestDashboardOverviewNoActiveYear(t *testing.T) {
	service := NewDashboardService(
		&mockDashboardFormRepo{},
		&mockDashboardResponseRepo{},
		&mockYearFinder{},
		nil, time.Minute, zap.NewNop(),
	)

	_, _, err := service.Overview(context.Background(), "")
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)
}
