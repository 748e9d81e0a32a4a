package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fpnet-io/fpnet-api/internal/dto"
	"github.com/fpnet-io/fpnet-api/internal/models"
	appErrors "github.com/fpnet-io/fpnet-api/pkg/errors"
	"github.com/fpnet-io/fpnet-api/pkg/export"
	"github.com/fpnet-io/fpnet-api/pkg/jobs"
	"github.com/fpnet-io/fpnet-api/pkg/storage"
)

type exportFormRepository interface {
	FindByID(ctx context.Context, id string) (*models.Form, error)
}

type exportResponseRepository interface {
	ListByForm(ctx context.Context, formID string) ([]models.ResponseSession, error)
}

// exportJob tracks one asynchronous export through its lifetime. Jobs live
// in memory only; a restart drops pending work, which callers simply retry.
type exportJob struct {
	ID          string
	FormID      string
	Format      string
	Status      string
	Error       string
	FileName    string
	RequestedBy string
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// ExportService produces CSV and PDF exports of form responses through a
// background worker queue, storing artifacts on local disk and handing out
// signed download tokens.
type ExportService struct {
	forms     exportFormRepository
	responses exportResponseRepository
	csv       *export.CSVExporter
	pdf       *export.PDFExporter
	store     *storage.LocalStorage
	signer    *storage.SignedURLSigner
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger

	queue *jobs.Queue

	mu      sync.RWMutex
	entries map[string]*exportJob
}

// ExportServiceParams groups constructor dependencies.
type ExportServiceParams struct {
	Forms     exportFormRepository
	Responses exportResponseRepository
	Store     *storage.LocalStorage
	Signer    *storage.SignedURLSigner
	Metrics   *MetricsService
	Validator *validator.Validate
	Logger    *zap.Logger
	Queue     jobs.QueueConfig
}

// NewExportService constructs an ExportService with its own worker queue.
// Start must be called before jobs are processed.
func NewExportService(params ExportServiceParams) *ExportService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	validate := params.Validator
	if validate == nil {
		validate = validator.New()
	}

	s := &ExportService{
		forms:     params.Forms,
		responses: params.Responses,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		store:     params.Store,
		signer:    params.Signer,
		metrics:   params.Metrics,
		validator: validate,
		logger:    logger,
		entries:   make(map[string]*exportJob),
	}
	if params.Queue.Logger == nil {
		params.Queue.Logger = logger
	}
	s.queue = jobs.NewQueue("exports", s.process, params.Queue)
	return s
}

// Start launches the worker pool.
func (s *ExportService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the worker pool.
func (s *ExportService) Stop() {
	s.queue.Stop()
}

// StartCleanup periodically removes export artifacts older than ttl.
func (s *ExportService) StartCleanup(ctx context.Context, interval, ttl time.Duration) {
	if s.store == nil || interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := s.store.CleanupOlderThan(ttl)
				if err != nil {
					s.logger.Warn("export cleanup failed", zap.Error(err))
					continue
				}
				if len(removed) > 0 {
					s.logger.Info("removed expired export artifacts", zap.Int("count", len(removed)))
				}
			}
		}
	}()
}

// Create enqueues an export job for the requested form and format.
func (s *ExportService) Create(ctx context.Context, req dto.CreateExportRequest, actor *models.JWTClaims) (*dto.ExportJobResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export payload")
	}

	if _, err := s.forms.FindByID(ctx, req.FormID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "form not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load form")
	}

	entry := &exportJob{
		ID:          uuid.NewString(),
		FormID:      req.FormID,
		Format:      req.Format,
		Status:      dto.ExportJobStatusPending,
		RequestedBy: actor.UserID,
		CreatedAt:   time.Now().UTC(),
	}

	s.mu.Lock()
	s.entries[entry.ID] = entry
	s.mu.Unlock()

	if err := s.queue.Enqueue(jobs.Job{ID: entry.ID, Type: "export", Payload: entry.ID}); err != nil {
		s.setFailed(entry.ID, "queue is full")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue export")
	}

	return s.describe(entry), nil
}

// Get returns the state of an export job. Only the requester or an admin
// may inspect a job.
func (s *ExportService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*dto.ExportJobResponse, error) {
	s.mu.RLock()
	entry, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
	}
	if entry.RequestedBy != actor.UserID && actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "export belongs to another user")
	}
	return s.describe(entry), nil
}

// Resolve validates a download token and returns the artifact path and the
// file name to serve it under.
func (s *ExportService) Resolve(token string) (path, filename string, err error) {
	jobID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return "", "", appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "invalid or expired download token")
	}

	s.mu.RLock()
	entry, ok := s.entries[jobID]
	s.mu.RUnlock()
	if !ok || entry.Status != dto.ExportJobStatusCompleted || entry.FileName != relPath {
		return "", "", appErrors.Clone(appErrors.ErrNotFound, "export artifact not found")
	}
	return s.store.Path(relPath), relPath, nil
}

// process runs one export job on the worker pool.
func (s *ExportService) process(ctx context.Context, job jobs.Job) error {
	jobID, _ := job.Payload.(string)

	s.mu.Lock()
	entry, ok := s.entries[jobID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown export job %s", jobID)
	}
	entry.Status = dto.ExportJobStatusRunning
	formID, format := entry.FormID, entry.Format
	s.mu.Unlock()

	if err := s.render(ctx, jobID, formID, format); err != nil {
		s.setFailed(jobID, err.Error())
		if s.metrics != nil {
			s.metrics.RecordExportJob(format, "failed")
		}
		return err
	}
	if s.metrics != nil {
		s.metrics.RecordExportJob(format, "completed")
	}
	return nil
}

func (s *ExportService) render(ctx context.Context, jobID, formID, format string) error {
	form, err := s.forms.FindByID(ctx, formID)
	if err != nil {
		return fmt.Errorf("load form: %w", err)
	}
	sessions, err := s.responses.ListByForm(ctx, formID)
	if err != nil {
		return fmt.Errorf("load responses: %w", err)
	}

	dataset := buildDataset(form, sessions)

	var payload []byte
	switch format {
	case "csv":
		payload, err = s.csv.Render(dataset)
	case "pdf":
		payload, err = s.pdf.Render(dataset, form.Title)
	default:
		err = fmt.Errorf("unsupported format %s", format)
	}
	if err != nil {
		return fmt.Errorf("render %s: %w", format, err)
	}

	filename := fmt.Sprintf("%s-%s.%s", jobID, time.Now().UTC().Format("20060102150405"), format)
	if _, err := s.store.Save(filename, payload); err != nil {
		return fmt.Errorf("save artifact: %w", err)
	}

	now := time.Now().UTC()
	s.mu.Lock()
	if entry, ok := s.entries[jobID]; ok {
		entry.Status = dto.ExportJobStatusCompleted
		entry.FileName = filename
		entry.CompletedAt = &now
	}
	s.mu.Unlock()
	return nil
}

func (s *ExportService) setFailed(jobID, reason string) {
	now := time.Now().UTC()
	s.mu.Lock()
	if entry, ok := s.entries[jobID]; ok {
		entry.Status = dto.ExportJobStatusFailed
		entry.Error = reason
		entry.CompletedAt = &now
	}
	s.mu.Unlock()
}

func (s *ExportService) describe(entry *exportJob) *dto.ExportJobResponse {
	s.mu.RLock()
	resp := &dto.ExportJobResponse{
		ID:          entry.ID,
		FormID:      entry.FormID,
		Format:      entry.Format,
		Status:      entry.Status,
		Error:       entry.Error,
		RequestedBy: entry.RequestedBy,
		CreatedAt:   entry.CreatedAt,
		CompletedAt: entry.CompletedAt,
	}
	completed := entry.Status == dto.ExportJobStatusCompleted
	filename := entry.FileName
	s.mu.RUnlock()

	if completed && s.signer != nil {
		token, expiresAt, err := s.signer.Generate(resp.ID, filename)
		if err != nil {
			s.logger.Warn("failed to sign export download", zap.String("job_id", resp.ID), zap.Error(err))
		} else {
			resp.DownloadURL = "/api/v1/exports/download/" + token
			resp.ExpiresAt = &expiresAt
		}
	}
	return resp
}

// buildDataset flattens submitted, non-superseded sessions into a tabular
// dataset. One column per answerable field, section children included,
// in declared order.
func buildDataset(form *models.Form, sessions []models.ResponseSession) export.Dataset {
	type column struct {
		id    string
		label string
	}
	columns := make([]column, 0, len(form.Fields))
	for _, field := range form.Fields {
		if field.Kind == models.FieldKindSectionHeader {
			for _, child := range field.Children {
				columns = append(columns, column{id: child.ID, label: child.Label})
			}
			continue
		}
		columns = append(columns, column{id: field.ID, label: field.Label})
	}

	headers := []string{"Respondent", "Role", "Version", "Submitted At"}
	for _, col := range columns {
		headers = append(headers, col.label)
	}

	rows := make([]map[string]string, 0, len(sessions))
	for _, session := range sessions {
		if session.Status != models.ResponseStatusSubmitted || session.Superseded {
			continue
		}
		row := map[string]string{
			"Respondent": session.UserName,
			"Role":       string(session.UserRole),
			"Version":    fmt.Sprintf("%d", session.Version),
		}
		if session.SubmittedAt != nil {
			row["Submitted At"] = session.SubmittedAt.UTC().Format(time.RFC3339)
		}
		for _, col := range columns {
			row[col.label] = formatAnswer(session.Answers[col.id])
		}
		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i]["Respondent"] < rows[j]["Respondent"] })
	return export.Dataset{Headers: headers, Rows: rows}
}

func formatAnswer(answer models.AnswerValue) string {
	switch answer.Kind {
	case models.FieldKindMultiChoice, models.FieldKindSingleSelect, models.FieldKindSingleChoice:
		if len(answer.Selections) > 0 {
			return strings.Join(answer.Selections, "; ")
		}
		return answer.Text
	case models.FieldKindFileUpload:
		names := make([]string, 0, len(answer.Files))
		for _, file := range answer.Files {
			names = append(names, file.Name)
		}
		return strings.Join(names, "; ")
	default:
		return answer.Text
	}
}
