package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fpnet-io/fpnet-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func formRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "title", "description", "fields", "assigned_roles", "status",
		"accepting_responses", "allow_multiple_responses", "allow_modification",
		"academic_year_id", "created_by", "created_at", "updated_at",
	}).AddRow(
		"f1", "Survey", "", []byte(`[{"id":"q1","kind":"SHORT_TEXT","label":"Name","required":true}]`),
		[]byte(`["TEACHER"]`), "PUBLISHED", true, false, true, "y1", "admin", time.Now(), time.Now(),
	)
}

func TestFormRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewFormRepository(db)

	mock.ExpectQuery("SELECT id, title, description, fields, assigned_roles, status, accepting_responses, allow_multiple_responses, allow_modification, academic_year_id, created_by, created_at, updated_at FROM forms WHERE id = \\$1").
		WithArgs("f1").
		WillReturnRows(formRows())

	form, err := repo.FindByID(context.Background(), "f1")
	require.NoError(t, err)
	assert.Equal(t, "Survey", form.Title)
	assert.Equal(t, models.FormStatusPublished, form.Status)
	// JSONB columns round-trip into structured fields.
	require.Len(t, form.Fields, 1)
	assert.Equal(t, models.FieldKindShortText, form.Fields[0].Kind)
	assert.True(t, form.AssignedRoles.Contains(models.RoleTeacher))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFormRepositoryListWithFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewFormRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM forms WHERE 1=1 AND academic_year_id = $1 AND status = $2 ORDER BY created_at DESC LIMIT 20 OFFSET 0")).
		WithArgs("y1", models.FormStatusPublished).
		WillReturnRows(formRows())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM forms WHERE 1=1 AND academic_year_id = $1 AND status = $2")).
		WithArgs("y1", models.FormStatusPublished).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	forms, total, err := repo.List(context.Background(), models.FormFilter{
		AcademicYearID: "y1",
		Status:         models.FormStatusPublished,
	})
	require.NoError(t, err)
	assert.Len(t, forms, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFormRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewFormRepository(db)

	mock.ExpectExec("INSERT INTO forms").
		WillReturnResult(sqlmock.NewResult(1, 1))

	form := &models.Form{Title: "Survey", AcademicYearID: "y1"}
	require.NoError(t, repo.Create(context.Background(), form))
	assert.NotEmpty(t, form.ID)
	assert.False(t, form.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFormRepositoryCountByStatus(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewFormRepository(db)

	rows := sqlmock.NewRows([]string{"status", "count"}).
		AddRow("PUBLISHED", 3).
		AddRow("DRAFT", 1)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status, COUNT(*) AS count FROM forms WHERE academic_year_id = $1 GROUP BY status")).
		WithArgs("y1").
		WillReturnRows(rows)

	counts, err := repo.CountByStatus(context.Background(), "y1")
	require.NoError(t, err)
	assert.Equal(t, 3, counts[models.FormStatusPublished])
	assert.Equal(t, 1, counts[models.FormStatusDraft])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFormRepositoryDeleteCascade(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewFormRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM response_sessions WHERE form_id = $1")).
		WithArgs("f1").
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM forms WHERE id = $1")).
		WithArgs("f1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.DeleteCascade(context.Background(), "f1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
