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

// MessageRepository provides database access for internal messages.
type MessageRepository struct {
	db *sqlx.DB
}

// NewMessageRepository creates a new instance of MessageRepository.
func NewMessageRepository(db *sqlx.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

const messageColumns = `id, sender_id, recipient_id, subject, body, read, read_at, created_at`

// Create inserts a new message.
func (r *MessageRepository) Create(ctx context.Context, msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO messages (id, sender_id, recipient_id, subject, body, read, read_at, created_at) VALUES (:id, :sender_id, :recipient_id, :subject, :body, :read, :read_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, msg); err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

// FindByID returns a message by identifier.
func (r *MessageRepository) FindByID(ctx context.Context, id string) (*models.Message, error) {
	query := fmt.Sprintf(`SELECT %s FROM messages WHERE id = $1 LIMIT 1`, messageColumns)
	var msg models.Message
	if err := r.db.GetContext(ctx, &msg, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find message by id: %w", err)
	}
	return &msg, nil
}

// Inbox lists messages received by a user, newest first.
func (r *MessageRepository) Inbox(ctx context.Context, userID string, filter models.MessageFilter) ([]models.Message, int, error) {
	baseQuery := `FROM messages WHERE recipient_id = $1`
	args := []interface{}{userID}
	if filter.UnreadOnly {
		baseQuery += ` AND read = FALSE`
	}
	return r.page(ctx, baseQuery, args, filter)
}

// Sent lists messages sent by a user, newest first.
func (r *MessageRepository) Sent(ctx context.Context, userID string, filter models.MessageFilter) ([]models.Message, int, error) {
	baseQuery := `FROM messages WHERE sender_id = $1`
	args := []interface{}{userID}
	return r.page(ctx, baseQuery, args, filter)
}

func (r *MessageRepository) page(ctx context.Context, baseQuery string, args []interface{}, filter models.MessageFilter) ([]models.Message, int, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d", messageColumns, baseQuery, pageSize, (page-1)*pageSize)

	var messages []models.Message
	if err := r.db.SelectContext(ctx, &messages, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list messages: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count messages: %w", err)
	}

	return messages, total, nil
}

// MarkRead flags a message as read.
func (r *MessageRepository) MarkRead(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE messages SET read = TRUE, read_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("mark message read: %w", err)
	}
	return nil
}

// Delete removes a message.
func (r *MessageRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}
