package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fpnet-io/fpnet-api/internal/models"
	appErrors "github.com/fpnet-io/fpnet-api/pkg/errors"
)

type messageRepository interface {
	Create(ctx context.Context, msg *models.Message) error
	FindByID(ctx context.Context, id string) (*models.Message, error)
	Inbox(ctx context.Context, userID string, filter models.MessageFilter) ([]models.Message, int, error)
	Sent(ctx context.Context, userID string, filter models.MessageFilter) ([]models.Message, int, error)
	MarkRead(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
}

type recipientFinder interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// SendMessageRequest is the payload for sending an internal message.
type SendMessageRequest struct {
	RecipientID string `json:"recipient_id" validate:"required"`
	Subject     string `json:"subject" validate:"required"`
	Body        string `json:"body" validate:"required"`
}

// MessageService handles internal messaging between network users.
type MessageService struct {
	repo      messageRepository
	users     recipientFinder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewMessageService creates a new message service.
func NewMessageService(repo messageRepository, users recipientFinder, validate *validator.Validate, logger *zap.Logger) *MessageService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessageService{repo: repo, users: users, validator: validate, logger: logger}
}

// Send delivers a message from the actor to another user.
func (s *MessageService) Send(ctx context.Context, req SendMessageRequest, actor *models.JWTClaims) (*models.Message, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid message payload")
	}
	if req.RecipientID == actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cannot send a message to yourself")
	}

	recipient, err := s.users.FindByID(ctx, req.RecipientID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "recipient not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load recipient")
	}
	if !recipient.Active {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "recipient account is inactive")
	}

	msg := &models.Message{
		ID:          uuid.NewString(),
		SenderID:    actor.UserID,
		RecipientID: recipient.ID,
		Subject:     req.Subject,
		Body:        req.Body,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, msg); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to send message")
	}
	return msg, nil
}

// Inbox lists messages addressed to the actor.
func (s *MessageService) Inbox(ctx context.Context, actor *models.JWTClaims, filter models.MessageFilter) ([]models.Message, *models.Pagination, error) {
	return s.page(ctx, filter, func(f models.MessageFilter) ([]models.Message, int, error) {
		return s.repo.Inbox(ctx, actor.UserID, f)
	})
}

// Sent lists messages the actor has sent.
func (s *MessageService) Sent(ctx context.Context, actor *models.JWTClaims, filter models.MessageFilter) ([]models.Message, *models.Pagination, error) {
	return s.page(ctx, filter, func(f models.MessageFilter) ([]models.Message, int, error) {
		return s.repo.Sent(ctx, actor.UserID, f)
	})
}

// MarkRead flags a received message as read. Only the recipient may do so.
func (s *MessageService) MarkRead(ctx context.Context, id string, actor *models.JWTClaims) (*models.Message, error) {
	msg, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if msg.RecipientID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "message is not addressed to you")
	}
	if msg.Read {
		return msg, nil
	}

	now := time.Now().UTC()
	if err := s.repo.MarkRead(ctx, id, now); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to mark message read")
	}
	msg.Read = true
	msg.ReadAt = &now
	return msg, nil
}

// Delete removes a message. Sender and recipient may both delete.
func (s *MessageService) Delete(ctx context.Context, id string, actor *models.JWTClaims) error {
	msg, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if msg.SenderID != actor.UserID && msg.RecipientID != actor.UserID {
		return appErrors.Clone(appErrors.ErrForbidden, "message does not belong to you")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to delete message")
	}
	return nil
}

func (s *MessageService) load(ctx context.Context, id string) (*models.Message, error) {
	msg, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "message not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load message")
	}
	return msg, nil
}

func (s *MessageService) page(ctx context.Context, filter models.MessageFilter, list func(models.MessageFilter) ([]models.Message, int, error)) ([]models.Message, *models.Pagination, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}

	messages, total, err := list(filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list messages")
	}
	return messages, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}
