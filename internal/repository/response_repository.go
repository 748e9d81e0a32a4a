package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/fpnet-io/fpnet-api/internal/models"
)

// ResponseRepository owns the set of all response sessions.
type ResponseRepository struct {
	db *sqlx.DB
}

// NewResponseRepository creates a new instance of ResponseRepository.
func NewResponseRepository(db *sqlx.DB) *ResponseRepository {
	return &ResponseRepository{db: db}
}

const responseColumns = `id, form_id, user_id, user_name, user_role, academic_year_id, answers, status, version, is_modification, original_response_id, superseded, responded_at, last_modified_at, submitted_at`

// FindByID returns a response session by identifier.
func (r *ResponseRepository) FindByID(ctx context.Context, id string) (*models.ResponseSession, error) {
	query := fmt.Sprintf(`SELECT %s FROM response_sessions WHERE id = $1 LIMIT 1`, responseColumns)
	var session models.ResponseSession
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find response by id: %w", err)
	}
	return &session, nil
}

// ListByForm returns every response session for a form, all statuses
// included, newest first.
func (r *ResponseRepository) ListByForm(ctx context.Context, formID string) ([]models.ResponseSession, error) {
	query := fmt.Sprintf(`SELECT %s FROM response_sessions WHERE form_id = $1 ORDER BY last_modified_at DESC`, responseColumns)
	var sessions []models.ResponseSession
	if err := r.db.SelectContext(ctx, &sessions, query, formID); err != nil {
		return nil, fmt.Errorf("list responses by form: %w", err)
	}
	return sessions, nil
}

// ListByUserAndForm returns the sessions one user holds against one form.
func (r *ResponseRepository) ListByUserAndForm(ctx context.Context, userID, formID string) ([]models.ResponseSession, error) {
	query := fmt.Sprintf(`SELECT %s FROM response_sessions WHERE user_id = $1 AND form_id = $2 ORDER BY version DESC, last_modified_at DESC`, responseColumns)
	var sessions []models.ResponseSession
	if err := r.db.SelectContext(ctx, &sessions, query, userID, formID); err != nil {
		return nil, fmt.Errorf("list responses by user and form: %w", err)
	}
	return sessions, nil
}

// LatestSubmitted returns the current (non-superseded) submitted session for
// a (form, user) pair, or sql.ErrNoRows when none exists.
func (r *ResponseRepository) LatestSubmitted(ctx context.Context, formID, userID string) (*models.ResponseSession, error) {
	query := fmt.Sprintf(`SELECT %s FROM response_sessions WHERE form_id = $1 AND user_id = $2 AND status = $3 AND superseded = FALSE ORDER BY version DESC LIMIT 1`, responseColumns)
	var session models.ResponseSession
	if err := r.db.GetContext(ctx, &session, query, formID, userID, models.ResponseStatusSubmitted); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find latest submitted response: %w", err)
	}
	return &session, nil
}

// HasSubmitted reports whether a non-superseded submitted session exists for
// the (form, user) pair. Drafts never count against the limit.
func (r *ResponseRepository) HasSubmitted(ctx context.Context, formID, userID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM response_sessions WHERE form_id = $1 AND user_id = $2 AND status = $3 AND superseded = FALSE)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, formID, userID, models.ResponseStatusSubmitted); err != nil {
		return false, fmt.Errorf("check submitted response: %w", err)
	}
	return exists, nil
}

// Upsert inserts the session when its id is unseen, otherwise replaces the
// record in full. No merge semantics.
func (r *ResponseRepository) Upsert(ctx context.Context, session *models.ResponseSession) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	const query = `INSERT INTO response_sessions (id, form_id, user_id, user_name, user_role, academic_year_id, answers, status, version, is_modification, original_response_id, superseded, responded_at, last_modified_at, submitted_at)
		VALUES (:id, :form_id, :user_id, :user_name, :user_role, :academic_year_id, :answers, :status, :version, :is_modification, :original_response_id, :superseded, :responded_at, :last_modified_at, :submitted_at)
		ON CONFLICT (id) DO UPDATE SET answers = EXCLUDED.answers, status = EXCLUDED.status, version = EXCLUDED.version, is_modification = EXCLUDED.is_modification, original_response_id = EXCLUDED.original_response_id, superseded = EXCLUDED.superseded, last_modified_at = EXCLUDED.last_modified_at, submitted_at = EXCLUDED.submitted_at`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("upsert response: %w", err)
	}
	return nil
}

// MarkSuperseded flags a submitted session as replaced by a newer revision.
func (r *ResponseRepository) MarkSuperseded(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE response_sessions SET superseded = TRUE, last_modified_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("mark response superseded: %w", err)
	}
	return nil
}

// CountByAcademicYear returns the total number of submitted, non-superseded
// sessions for an academic year.
func (r *ResponseRepository) CountByAcademicYear(ctx context.Context, academicYearID string) (int, error) {
	const query = `SELECT COUNT(*) FROM response_sessions WHERE academic_year_id = $1 AND status = $2 AND superseded = FALSE`
	var total int
	if err := r.db.GetContext(ctx, &total, query, academicYearID, models.ResponseStatusSubmitted); err != nil {
		return 0, fmt.Errorf("count responses by academic year: %w", err)
	}
	return total, nil
}
