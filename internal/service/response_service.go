package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fpnet-io/fpnet-api/internal/models"
	appErrors "github.com/fpnet-io/fpnet-api/pkg/errors"
)

type responseRepository interface {
	FindByID(ctx context.Context, id string) (*models.ResponseSession, error)
	ListByForm(ctx context.Context, formID string) ([]models.ResponseSession, error)
	ListByUserAndForm(ctx context.Context, userID, formID string) ([]models.ResponseSession, error)
	LatestSubmitted(ctx context.Context, formID, userID string) (*models.ResponseSession, error)
	HasSubmitted(ctx context.Context, formID, userID string) (bool, error)
	Upsert(ctx context.Context, session *models.ResponseSession) error
	MarkSuperseded(ctx context.Context, id string, at time.Time) error
}

type formFinder interface {
	FindByID(ctx context.Context, id string) (*models.Form, error)
}

// ResponseService owns the response session lifecycle: starting sessions,
// draft saves, submission and the revision chain a submitted response grows
// when the form allows later modification.
type ResponseService struct {
	responses responseRepository
	forms     formFinder
	cache     *CacheService
	logger    *zap.Logger
	now       func() time.Time
}

// NewResponseService creates a new response service instance.
func NewResponseService(responses responseRepository, forms formFinder, cache *CacheService, logger *zap.Logger) *ResponseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResponseService{responses: responses, forms: forms, cache: cache, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// startMode tells Start how the gate resolved for this respondent.
type startMode int

const (
	startFresh startMode = iota
	startRevision
)

// respondGate is the single admission check shared by Start and CanRespond,
// so the answer to "can this user respond" never drifts from what Start
// actually enforces. On success it reports whether a new session would be a
// fresh chain or a revision of the returned prior submission.
func (s *ResponseService) respondGate(ctx context.Context, form *models.Form, actor *models.JWTClaims) (startMode, *models.ResponseSession, error) {
	if form.Status != models.FormStatusPublished || !form.AcceptingResponses {
		return 0, nil, appErrors.Clone(appErrors.ErrPermissionDenied, "form is not accepting responses")
	}
	if len(form.AssignedRoles) > 0 && !roleAssigned(form.AssignedRoles, actor.Role) {
		return 0, nil, appErrors.Clone(appErrors.ErrPermissionDenied, "form is not assigned to your role")
	}

	prior, err := s.responses.LatestSubmitted(ctx, form.ID, actor.UserID)
	if err != nil {
		if err == sql.ErrNoRows {
			return startFresh, nil, nil
		}
		return 0, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check prior responses")
	}

	if form.AllowMultipleResponses {
		return startFresh, nil, nil
	}
	if form.AllowModification {
		return startRevision, prior, nil
	}
	return 0, nil, appErrors.Clone(appErrors.ErrPermissionDenied, "you have already responded to this form")
}

// CanRespond reports whether the actor may start (or resume) a session on
// the form, with a human-readable reason on denial.
func (s *ResponseService) CanRespond(ctx context.Context, formID string, actor *models.JWTClaims) (bool, string, error) {
	form, err := s.loadForm(ctx, formID)
	if err != nil {
		return false, "", err
	}

	if _, _, err := s.respondGate(ctx, form, actor); err != nil {
		if e, ok := err.(*appErrors.Error); ok && e.Code == appErrors.ErrPermissionDenied.Code {
			return false, e.Message, nil
		}
		return false, "", err
	}
	return true, "", nil
}

// Start opens a response session for the actor on the given form. An
// existing draft is resumed as-is. Otherwise the admission gate decides
// between a fresh version 1 session and a revision of the latest submission,
// seeded with its answers and linked to the chain root.
func (s *ResponseService) Start(ctx context.Context, formID string, actor *models.JWTClaims) (*models.ResponseSession, error) {
	form, err := s.loadForm(ctx, formID)
	if err != nil {
		return nil, err
	}

	mode, prior, err := s.respondGate(ctx, form, actor)
	if err != nil {
		return nil, err
	}

	existing, err := s.responses.ListByUserAndForm(ctx, actor.UserID, formID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load sessions")
	}
	for i := range existing {
		if existing[i].Status == models.ResponseStatusDraft {
			return &existing[i], nil
		}
	}

	now := s.now()
	session := &models.ResponseSession{
		ID:             uuid.NewString(),
		FormID:         form.ID,
		UserID:         actor.UserID,
		UserName:       actor.FullName,
		UserRole:       actor.Role,
		AcademicYearID: form.AcademicYearID,
		Answers:        models.AnswerSet{},
		Status:         models.ResponseStatusDraft,
		Version:        1,
		RespondedAt:    now,
		LastModifiedAt: now,
	}

	if mode == startRevision && prior != nil {
		session.Version = prior.Version + 1
		session.IsModification = true
		root := prior.ChainRootID()
		session.OriginalResponseID = &root
		session.Answers = copyAnswers(prior.Answers)
	}

	if err := s.responses.Upsert(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to start session")
	}
	return session, nil
}

// Save stores the actor's answers on an open draft. With asDraft the write
// is an idempotent full replacement that never changes status or version.
// Without it the answers are validated along the rule-driven visible path
// and the session is submitted; when the session is a revision, the prior
// submission is flagged as superseded so the form keeps exactly one current
// submission per respondent chain.
func (s *ResponseService) Save(ctx context.Context, sessionID string, answers models.AnswerSet, asDraft bool, actor *models.JWTClaims) (*models.ResponseSession, error) {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.UserID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "response belongs to another user")
	}
	if session.Status != models.ResponseStatusDraft {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "submitted responses cannot be edited; start a new revision instead")
	}

	form, err := s.loadForm(ctx, session.FormID)
	if err != nil {
		return nil, err
	}
	if form.Status == models.FormStatusClosed {
		return nil, appErrors.Clone(appErrors.ErrPermissionDenied, "form is closed")
	}

	now := s.now()
	session.Answers = normalizeAnswers(form, answers)
	session.LastModifiedAt = now

	if asDraft {
		if err := s.responses.Upsert(ctx, session); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to save draft")
		}
		return session, nil
	}

	if !form.AcceptingResponses {
		return nil, appErrors.Clone(appErrors.ErrPermissionDenied, "form is not accepting responses")
	}
	if fieldErrors := ValidateAnswers(form, session.Answers); len(fieldErrors) > 0 {
		return nil, appErrors.WithFields(appErrors.Clone(appErrors.ErrValidation, "answers failed validation"), fieldErrors)
	}

	var prior *models.ResponseSession
	if session.IsModification {
		prior, err = s.responses.LatestSubmitted(ctx, session.FormID, session.UserID)
		if err != nil && err != sql.ErrNoRows {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load prior submission")
		}
	}

	session.Status = models.ResponseStatusSubmitted
	session.SubmittedAt = &now
	if err := s.responses.Upsert(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to submit response")
	}

	if prior != nil && prior.ID != session.ID {
		if err := s.responses.MarkSuperseded(ctx, prior.ID, now); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to supersede prior response")
		}
	}

	s.invalidateDashboards(ctx, form.ID)
	return session, nil
}

// Get returns a single session. Respondents may only read their own;
// administrators and coordinators may read any.
func (s *ResponseService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.ResponseSession, error) {
	session, err := s.loadSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.UserID != actor.UserID && actor.Role != models.RoleAdmin && actor.Role != models.RoleCoordinator {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "response belongs to another user")
	}
	return session, nil
}

// ListByForm returns every session on a form, drafts and superseded
// revisions included. Reserved for reviewer roles by the route guard.
func (s *ResponseService) ListByForm(ctx context.Context, formID string) ([]models.ResponseSession, error) {
	sessions, err := s.responses.ListByForm(ctx, formID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list responses")
	}
	return sessions, nil
}

// ListMine returns the actor's own sessions for a form, newest version
// first, so the client can show the revision history.
func (s *ResponseService) ListMine(ctx context.Context, formID string, actor *models.JWTClaims) ([]models.ResponseSession, error) {
	sessions, err := s.responses.ListByUserAndForm(ctx, actor.UserID, formID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list responses")
	}
	return sessions, nil
}

func (s *ResponseService) loadForm(ctx context.Context, id string) (*models.Form, error) {
	form, err := s.forms.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "form not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load form")
	}
	return form, nil
}

func (s *ResponseService) loadSession(ctx context.Context, id string) (*models.ResponseSession, error) {
	session, err := s.responses.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "response not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load response")
	}
	return session, nil
}

func (s *ResponseService) invalidateDashboards(ctx context.Context, formID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, "dashboard:form:"+formID); err != nil {
		s.logger.Warn("failed to invalidate form dashboard cache", zap.String("form_id", formID), zap.Error(err))
	}
	if err := s.cache.Invalidate(ctx, "dashboard:overview:*"); err != nil {
		s.logger.Warn("failed to invalidate overview dashboard cache", zap.Error(err))
	}
}

func roleAssigned(roles models.RoleList, role models.UserRole) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// normalizeAnswers stamps each answer with the declared kind of its field so
// stored values stay comparable regardless of what the client sent. Answers
// for unknown field ids are dropped.
func normalizeAnswers(form *models.Form, answers models.AnswerSet) models.AnswerSet {
	kinds := make(map[string]models.FieldKind)
	for _, field := range form.Fields {
		kinds[field.ID] = field.Kind
		for _, child := range field.Children {
			kinds[child.ID] = child.Kind
		}
	}

	normalized := make(models.AnswerSet, len(answers))
	for fieldID, answer := range answers {
		kind, ok := kinds[fieldID]
		if !ok {
			continue
		}
		answer.Kind = kind
		normalized[fieldID] = answer
	}
	return normalized
}

func copyAnswers(answers models.AnswerSet) models.AnswerSet {
	dup := make(models.AnswerSet, len(answers))
	for k, v := range answers {
		dup[k] = v
	}
	return dup
}
