package service

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/fpnet-io/fpnet-api/internal/dto"
	"github.com/fpnet-io/fpnet-api/internal/models"
	appErrors "github.com/fpnet-io/fpnet-api/pkg/errors"
)

type dashboardFormRepository interface {
	FindByID(ctx context.Context, id string) (*models.Form, error)
	CountByStatus(ctx context.Context, academicYearID string) (map[models.FormStatus]int, error)
}

type dashboardResponseRepository interface {
	ListByForm(ctx context.Context, formID string) ([]models.ResponseSession, error)
	CountByAcademicYear(ctx context.Context, academicYearID string) (int, error)
}

// DashboardService aggregates response activity into cached summaries.
type DashboardService struct {
	forms     dashboardFormRepository
	responses dashboardResponseRepository
	years     activeYearFinder
	cache     *CacheService
	cacheTTL  time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewDashboardService constructs a DashboardService.
func NewDashboardService(forms dashboardFormRepository, responses dashboardResponseRepository, years activeYearFinder, cache *CacheService, cacheTTL time.Duration, logger *zap.Logger) *DashboardService {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{
		forms:     forms,
		responses: responses,
		years:     years,
		cache:     cache,
		cacheTTL:  cacheTTL,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Form builds the per-form dashboard: submission totals and an option count
// breakdown for every enumerable field, computed over current (non-superseded)
// submissions only. The second return value reports cache utilisation.
func (s *DashboardService) Form(ctx context.Context, formID string) (*dto.FormDashboardResponse, bool, error) {
	cacheKey := "dashboard:form:" + formID

	var cached dto.FormDashboardResponse
	if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
		return &cached, true, nil
	}

	form, err := s.forms.FindByID(ctx, formID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, appErrors.Clone(appErrors.ErrNotFound, "form not found")
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load form")
	}

	sessions, err := s.responses.ListByForm(ctx, formID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load responses")
	}

	summary := &dto.FormDashboardResponse{
		FormID:      form.ID,
		Title:       form.Title,
		ByRole:      make(map[string]int),
		GeneratedAt: s.now(),
	}

	breakdowns := make(map[string]*dto.FieldBreakdown)
	order := make([]string, 0)
	for _, field := range form.Fields {
		if !field.Kind.Enumerable() {
			continue
		}
		breakdowns[field.ID] = &dto.FieldBreakdown{
			FieldID: field.ID,
			Label:   field.Label,
			Kind:    string(field.Kind),
			Counts:  make(map[string]int),
		}
		order = append(order, field.ID)
	}

	for _, session := range sessions {
		switch {
		case session.Status == models.ResponseStatusDraft:
			summary.TotalDrafts++
			continue
		case session.Superseded:
			summary.TotalRevisions++
			continue
		}

		summary.TotalSubmitted++
		if session.IsModification {
			summary.TotalRevisions++
		}
		summary.ByRole[string(session.UserRole)]++

		for fieldID, breakdown := range breakdowns {
			answer, ok := session.Answers[fieldID]
			if !ok {
				continue
			}
			for value := range answer.Set() {
				breakdown.Counts[value]++
			}
		}
	}

	summary.Fields = make([]dto.FieldBreakdown, 0, len(order))
	for _, fieldID := range order {
		summary.Fields = append(summary.Fields, *breakdowns[fieldID])
	}

	if err := s.cache.Set(ctx, cacheKey, summary, s.cacheTTL); err != nil {
		s.logger.Warn("failed to cache form dashboard", zap.String("form_id", formID), zap.Error(err))
	}
	return summary, false, nil
}

// Overview summarises an academic year: form counts per lifecycle status and
// the total number of current submissions. An empty year id resolves to the
// active academic year.
func (s *DashboardService) Overview(ctx context.Context, academicYearID string) (*dto.OverviewDashboardResponse, bool, error) {
	if academicYearID == "" {
		year, err := s.years.FindActive(ctx)
		if err != nil {
			if err == sql.ErrNoRows {
				return nil, false, appErrors.Clone(appErrors.ErrPreconditionFailed, "no active academic year configured")
			}
			return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve academic year")
		}
		academicYearID = year.ID
	}

	cacheKey := "dashboard:overview:" + academicYearID

	var cached dto.OverviewDashboardResponse
	if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
		return &cached, true, nil
	}

	statusCounts, err := s.forms.CountByStatus(ctx, academicYearID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count forms")
	}
	totalResponses, err := s.responses.CountByAcademicYear(ctx, academicYearID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count responses")
	}

	overview := &dto.OverviewDashboardResponse{
		AcademicYearID: academicYearID,
		Forms:          make([]dto.FormStatusCount, 0, len(statusCounts)),
		TotalResponses: totalResponses,
		GeneratedAt:    s.now(),
	}
	for status, count := range statusCounts {
		overview.Forms = append(overview.Forms, dto.FormStatusCount{Status: string(status), Count: count})
	}
	sort.Slice(overview.Forms, func(i, j int) bool { return overview.Forms[i].Status < overview.Forms[j].Status })

	if err := s.cache.Set(ctx, cacheKey, overview, s.cacheTTL); err != nil {
		s.logger.Warn("failed to cache overview dashboard", zap.String("academic_year_id", academicYearID), zap.Error(err))
	}
	return overview, false, nil
}
