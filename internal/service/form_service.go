package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fpnet-io/fpnet-api/internal/models"
	appErrors "github.com/fpnet-io/fpnet-api/pkg/errors"
)

type formRepository interface {
	List(ctx context.Context, filter models.FormFilter) ([]models.Form, int, error)
	FindByID(ctx context.Context, id string) (*models.Form, error)
	Create(ctx context.Context, form *models.Form) error
	Update(ctx context.Context, form *models.Form) error
	DeleteCascade(ctx context.Context, id string) error
}

type activeYearFinder interface {
	FindActive(ctx context.Context) (*models.AcademicYear, error)
	FindByID(ctx context.Context, id string) (*models.AcademicYear, error)
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// CreateFormRequest describes the payload for creating a form definition.
type CreateFormRequest struct {
	Title                  string            `json:"title" validate:"required"`
	Description            string            `json:"description"`
	Fields                 []models.Field    `json:"fields"`
	AssignedRoles          []models.UserRole `json:"assigned_roles"`
	AllowMultipleResponses bool              `json:"allow_multiple_responses"`
	AllowModification      bool              `json:"allow_modification"`
	AcademicYearID         string            `json:"academic_year_id"`
}

// UpdateFormRequest updates the authoring surface of a form.
type UpdateFormRequest struct {
	Title                  string            `json:"title" validate:"required"`
	Description            string            `json:"description"`
	Fields                 []models.Field    `json:"fields"`
	AssignedRoles          []models.UserRole `json:"assigned_roles"`
	AllowMultipleResponses bool              `json:"allow_multiple_responses"`
	AllowModification      bool              `json:"allow_modification"`
}

// AttachmentPolicy bounds file-upload fields. Fields that declare no cap of
// their own inherit these values at authoring time.
type AttachmentPolicy struct {
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
}

// FormService orchestrates form definition workflows.
type FormService struct {
	repo        formRepository
	years       activeYearFinder
	audit       auditLogger
	cache       *CacheService
	attachments AttachmentPolicy
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewFormService creates a new form service instance.
func NewFormService(repo formRepository, years activeYearFinder, audit auditLogger, cache *CacheService, attachments AttachmentPolicy, validate *validator.Validate, logger *zap.Logger) *FormService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FormService{repo: repo, years: years, audit: audit, cache: cache, attachments: attachments, validator: validate, logger: logger}
}

// List returns paginated forms.
func (s *FormService) List(ctx context.Context, filter models.FormFilter) ([]models.Form, *models.Pagination, error) {
	forms, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list forms")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}

	return forms, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a form by ID.
func (s *FormService) Get(ctx context.Context, id string) (*models.Form, error) {
	form, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "form not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load form")
	}
	return form, nil
}

// Create registers a new form definition. New forms always start in draft
// and not accepting responses, regardless of the payload.
func (s *FormService) Create(ctx context.Context, req CreateFormRequest, actor *models.JWTClaims) (*models.Form, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid form payload")
	}

	yearID := req.AcademicYearID
	if yearID == "" {
		year, err := s.years.FindActive(ctx)
		if err != nil {
			if err == sql.ErrNoRows {
				return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "no active academic year configured")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve academic year")
		}
		yearID = year.ID
	} else if _, err := s.years.FindByID(ctx, yearID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "academic year not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve academic year")
	}

	fields, err := s.prepareFields(req.Fields)
	if err != nil {
		return nil, err
	}

	form := &models.Form{
		Title:                  req.Title,
		Description:            req.Description,
		Fields:                 fields,
		AssignedRoles:          req.AssignedRoles,
		Status:                 models.FormStatusDraft,
		AcceptingResponses:     false,
		AllowMultipleResponses: req.AllowMultipleResponses,
		AllowModification:      req.AllowModification,
		AcademicYearID:         yearID,
		CreatedBy:              actorID(actor),
	}

	if err := s.repo.Create(ctx, form); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to create form")
	}
	return form, nil
}

// Update modifies the authoring surface of a form. Closed forms are frozen.
func (s *FormService) Update(ctx context.Context, id string, req UpdateFormRequest) (*models.Form, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid form payload")
	}

	form, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if form.Status == models.FormStatusClosed {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "closed forms cannot be edited")
	}

	fields, err := s.prepareFields(req.Fields)
	if err != nil {
		return nil, err
	}

	form.Title = req.Title
	form.Description = req.Description
	form.Fields = fields
	form.AssignedRoles = req.AssignedRoles
	form.AllowMultipleResponses = req.AllowMultipleResponses
	form.AllowModification = req.AllowModification

	if err := s.repo.Update(ctx, form); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to update form")
	}

	s.invalidateDashboards(ctx, form.ID)
	return form, nil
}

// Publish opens a form to its assigned roles. Forms without fields are
// rejected. Publishing does not touch authoring timestamps beyond the
// regular update stamp.
func (s *FormService) Publish(ctx context.Context, id string, actor *models.JWTClaims) (*models.Form, error) {
	form, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(form.Fields) == 0 {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "a form needs at least one field before publishing")
	}
	if form.Status == models.FormStatusPublished {
		return form, nil
	}

	form.Status = models.FormStatusPublished
	form.AcceptingResponses = true
	if err := s.repo.Update(ctx, form); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to publish form")
	}

	s.recordAudit(ctx, actor, models.AuditActionFormPublish, form.ID)
	return form, nil
}

// Pause temporarily stops a published form from accepting new responses.
// Submitted responses are unaffected.
func (s *FormService) Pause(ctx context.Context, id string) (*models.Form, error) {
	return s.setAccepting(ctx, id, false)
}

// Resume re-opens a paused published form.
func (s *FormService) Resume(ctx context.Context, id string) (*models.Form, error) {
	return s.setAccepting(ctx, id, true)
}

func (s *FormService) setAccepting(ctx context.Context, id string, accepting bool) (*models.Form, error) {
	form, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if form.Status != models.FormStatusPublished {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "only published forms can be paused or resumed")
	}

	form.AcceptingResponses = accepting
	if err := s.repo.Update(ctx, form); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to update form")
	}
	return form, nil
}

// Close terminates a published form. No further responses are accepted;
// existing drafts stay readable but can no longer be submitted.
func (s *FormService) Close(ctx context.Context, id string, actor *models.JWTClaims) (*models.Form, error) {
	form, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if form.Status != models.FormStatusPublished {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "only published forms can be closed")
	}

	form.Status = models.FormStatusClosed
	form.AcceptingResponses = false
	if err := s.repo.Update(ctx, form); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to close form")
	}

	s.recordAudit(ctx, actor, models.AuditActionFormClose, form.ID)
	return form, nil
}

// Duplicate deep-copies a form into a fresh draft. Every field receives a
// new id and rule source/target references are remapped onto the new ids,
// then the structural invariant is re-checked on the result.
func (s *FormService) Duplicate(ctx context.Context, id string, actor *models.JWTClaims) (*models.Form, error) {
	source, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	idMap := make(map[string]string)
	copied := make(models.FieldList, len(source.Fields))
	for i, field := range source.Fields {
		copied[i] = copyField(field, idMap)
	}
	for i := range copied {
		for j, rule := range copied[i].Rules {
			if mapped, ok := idMap[rule.SourceFieldID]; ok {
				copied[i].Rules[j].SourceFieldID = mapped
			}
			if mapped, ok := idMap[rule.TargetFieldID]; ok {
				copied[i].Rules[j].TargetFieldID = mapped
			}
		}
	}

	if problems := ValidateRuleStructure(copied); len(problems) > 0 {
		return nil, appErrors.Clone(appErrors.ErrStructural, strings.Join(problems, "; "))
	}

	duplicate := &models.Form{
		Title:                  source.Title + " (copy)",
		Description:            source.Description,
		Fields:                 copied,
		AssignedRoles:          append(models.RoleList{}, source.AssignedRoles...),
		Status:                 models.FormStatusDraft,
		AcceptingResponses:     false,
		AllowMultipleResponses: source.AllowMultipleResponses,
		AllowModification:      source.AllowModification,
		AcademicYearID:         source.AcademicYearID,
		CreatedBy:              actorID(actor),
	}

	if err := s.repo.Create(ctx, duplicate); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to duplicate form")
	}
	return duplicate, nil
}

// Delete removes a form and cascades to every response session belonging to
// it. The cascade runs inside a single transaction so a storage failure
// cannot leave orphaned sessions. Irreversible.
func (s *FormService) Delete(ctx context.Context, id string, actor *models.JWTClaims) error {
	form, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.DeleteCascade(ctx, form.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to delete form")
	}

	s.recordAudit(ctx, actor, models.AuditActionFormDelete, form.ID)
	s.invalidateDashboards(ctx, form.ID)
	return nil
}

// prepareFields assigns ids to new fields (including section children) and
// enforces kind validity plus the rule structural invariant. The invariant
// is checked here rather than only in the authoring UI so that bulk import
// paths go through the same gate.
func (s *FormService) prepareFields(fields []models.Field) (models.FieldList, error) {
	prepared := make(models.FieldList, len(fields))
	for i, field := range fields {
		if field.ID == "" {
			field.ID = uuid.NewString()
		}
		if !field.Kind.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown field kind "+string(field.Kind))
		}
		s.applyAttachmentPolicy(&field)
		for j, child := range field.Children {
			if child.ID == "" {
				field.Children[j].ID = uuid.NewString()
			}
			if !child.Kind.Valid() {
				return nil, appErrors.Clone(appErrors.ErrValidation, "unknown field kind "+string(child.Kind))
			}
			s.applyAttachmentPolicy(&field.Children[j])
		}
		prepared[i] = field
	}

	if problems := ValidateRuleStructure(prepared); len(problems) > 0 {
		return nil, appErrors.Clone(appErrors.ErrStructural, strings.Join(problems, "; "))
	}
	return prepared, nil
}

// applyAttachmentPolicy clamps file-upload fields to the configured global
// ceiling and fills in defaults for fields that declare none.
func (s *FormService) applyAttachmentPolicy(field *models.Field) {
	if field.Kind != models.FieldKindFileUpload {
		return
	}
	if cap := s.attachments.MaxFileSizeBytes; cap > 0 {
		if field.MaxFileSizeBytes <= 0 || field.MaxFileSizeBytes > cap {
			field.MaxFileSizeBytes = cap
		}
	}
	if len(field.AcceptedMIMEs) == 0 && len(s.attachments.AllowedMIMEs) > 0 {
		field.AcceptedMIMEs = append([]string(nil), s.attachments.AllowedMIMEs...)
	}
}

func copyField(field models.Field, idMap map[string]string) models.Field {
	dup := field
	dup.ID = uuid.NewString()
	idMap[field.ID] = dup.ID

	dup.Options = append([]string(nil), field.Options...)
	dup.AcceptedMIMEs = append([]string(nil), field.AcceptedMIMEs...)
	dup.Rules = append([]models.ConditionalRule(nil), field.Rules...)

	dup.Children = make([]models.Field, len(field.Children))
	for i, child := range field.Children {
		dup.Children[i] = copyField(child, idMap)
	}
	return dup
}

func (s *FormService) invalidateDashboards(ctx context.Context, formID string) {
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

func (s *FormService) recordAudit(ctx context.Context, actor *models.JWTClaims, action, formID string) {
	if s.audit == nil {
		return
	}
	var userID *string
	if actor != nil {
		userID = &actor.UserID
	}
	payload, _ := json.Marshal(map[string]string{"form_id": formID})
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     userID,
		Action:     action,
		Resource:   "form",
		ResourceID: &formID,
		NewValues:  payload,
	}); err != nil {
		s.logger.Warn("failed to record form audit log", zap.String("action", action), zap.Error(err))
	}
}

func actorID(actor *models.JWTClaims) string {
	if actor == nil {
		return ""
	}
	return actor.UserID
}
