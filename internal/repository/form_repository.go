package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/fpnet-io/fpnet-api/internal/models"
)

// FormRepository provides database access for form definitions.
type FormRepository struct {
	db *sqlx.DB
}

// NewFormRepository creates a new instance of FormRepository.
func NewFormRepository(db *sqlx.DB) *FormRepository {
	return &FormRepository{db: db}
}

const formColumns = `id, title, description, fields, assigned_roles, status, accepting_responses, allow_multiple_responses, allow_modification, academic_year_id, created_by, created_at, updated_at`

// FindByID returns a form by identifier.
func (r *FormRepository) FindByID(ctx context.Context, id string) (*models.Form, error) {
	query := fmt.Sprintf(`SELECT %s FROM forms WHERE id = $1 LIMIT 1`, formColumns)
	var form models.Form
	if err := r.db.GetContext(ctx, &form, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find form by id: %w", err)
	}
	return &form, nil
}

// List returns forms based on filters with total count.
func (r *FormRepository) List(ctx context.Context, filter models.FormFilter) ([]models.Form, int, error) {
	baseQuery := `FROM forms WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.AcademicYearID != "" {
		conditions = append(conditions, fmt.Sprintf("academic_year_id = $%d", len(args)+1))
		args = append(args, filter.AcademicYearID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Role != "" {
		conditions = append(conditions, fmt.Sprintf("assigned_roles @> $%d", len(args)+1))
		args = append(args, fmt.Sprintf(`["%s"]`, filter.Role))
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(title) LIKE $%d", len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"title":      true,
		"created_at": true,
		"updated_at": true,
		"status":     true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
	}

	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "DESC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", formColumns, baseQuery, sortBy, sortOrder, pageSize, offset)

	var forms []models.Form
	if err := r.db.SelectContext(ctx, &forms, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list forms: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count forms: %w", err)
	}

	return forms, total, nil
}

// CountByStatus returns the number of forms per lifecycle status for one
// academic year.
func (r *FormRepository) CountByStatus(ctx context.Context, academicYearID string) (map[models.FormStatus]int, error) {
	const query = `SELECT status, COUNT(*) AS count FROM forms WHERE academic_year_id = $1 GROUP BY status`
	rows, err := r.db.QueryxContext(ctx, query, academicYearID)
	if err != nil {
		return nil, fmt.Errorf("count forms by status: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	counts := make(map[models.FormStatus]int)
	for rows.Next() {
		var status models.FormStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan form status count: %w", err)
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate form status counts: %w", err)
	}
	return counts, nil
}

// Create inserts a new form definition.
func (r *FormRepository) Create(ctx context.Context, form *models.Form) error {
	if form.ID == "" {
		form.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if form.CreatedAt.IsZero() {
		form.CreatedAt = now
	}
	form.UpdatedAt = now

	const query = `INSERT INTO forms (id, title, description, fields, assigned_roles, status, accepting_responses, allow_multiple_responses, allow_modification, academic_year_id, created_by, created_at, updated_at) VALUES (:id, :title, :description, :fields, :assigned_roles, :status, :accepting_responses, :allow_multiple_responses, :allow_modification, :academic_year_id, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, form); err != nil {
		return fmt.Errorf("create form: %w", err)
	}
	return nil
}

// Update replaces mutable fields of a form definition.
func (r *FormRepository) Update(ctx context.Context, form *models.Form) error {
	form.UpdatedAt = time.Now().UTC()
	const query = `UPDATE forms SET title = :title, description = :description, fields = :fields, assigned_roles = :assigned_roles, status = :status, accepting_responses = :accepting_responses, allow_multiple_responses = :allow_multiple_responses, allow_modification = :allow_modification, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, form); err != nil {
		return fmt.Errorf("update form: %w", err)
	}
	return nil
}

// DeleteCascade removes a form and all of its response sessions in a single
// transaction so a partial cascade cannot leave orphaned sessions.
func (r *FormRepository) DeleteCascade(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin form delete: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM response_sessions WHERE form_id = $1`, id); err != nil {
		return fmt.Errorf("delete form responses: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM forms WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete form: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit form delete: %w", err)
	}
	return nil
}
