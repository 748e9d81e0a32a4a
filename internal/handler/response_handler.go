package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fpnet-io/fpnet-api/internal/models"
	appErrors "github.com/fpnet-io/fpnet-api/pkg/errors"
	"github.com/fpnet-io/fpnet-api/pkg/response"
)

type responseService interface {
	CanRespond(ctx context.Context, formID string, actor *models.JWTClaims) (bool, string, error)
	Start(ctx context.Context, formID string, actor *models.JWTClaims) (*models.ResponseSession, error)
	Save(ctx context.Context, sessionID string, answers models.AnswerSet, asDraft bool, actor *models.JWTClaims) (*models.ResponseSession, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.ResponseSession, error)
	ListByForm(ctx context.Context, formID string) ([]models.ResponseSession, error)
	ListMine(ctx context.Context, formID string, actor *models.JWTClaims) ([]models.ResponseSession, error)
}

// ResponseHandler handles response session endpoints.
type ResponseHandler struct {
	service responseService
}

// NewResponseHandler creates a new response handler.
func NewResponseHandler(svc responseService) *ResponseHandler {
	return &ResponseHandler{service: svc}
}

// saveRequest is the payload for draft saves and submissions.
type saveRequest struct {
	Answers models.AnswerSet `json:"answers"`
	AsDraft bool             `json:"as_draft"`
}

// CanRespond godoc
// @Summary Check response eligibility
// @Description Report whether the caller may start a session on the form
// @Tags Responses
// @Produce json
// @Param id path string true "Form ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /forms/{id}/can-respond [get]
func (h *ResponseHandler) CanRespond(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	allowed, reason, err := h.service.CanRespond(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{"can_respond": allowed, "reason": reason}, nil)
}

// Start godoc
// @Summary Start response session
// @Description Open or resume a response session on a form
// @Tags Responses
// @Produce json
// @Param id path string true "Form ID"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /forms/{id}/responses [post]
func (h *ResponseHandler) Start(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	session, err := h.service.Start(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, session)
}

// Save godoc
// @Summary Save answers
// @Description Save a draft or submit a response session
// @Tags Responses
// @Accept json
// @Produce json
// @Param id path string true "Response ID"
// @Param payload body saveRequest true "Answers payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /responses/{id} [put]
func (h *ResponseHandler) Save(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req saveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	session, err := h.service.Save(c.Request.Context(), c.Param("id"), req.Answers, req.AsDraft, claims)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, session, nil)
}

// Get godoc
// @Summary Get response
// @Description Get one response session
// @Tags Responses
// @Produce json
// @Param id path string true "Response ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /responses/{id} [get]
func (h *ResponseHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	session, err := h.service.Get(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, session, nil)
}

// ListByForm godoc
// @Summary List form responses
// @Description List every response session on a form
// @Tags Responses
// @Produce json
// @Param id path string true "Form ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /forms/{id}/responses [get]
func (h *ResponseHandler) ListByForm(c *gin.Context) {
	sessions, err := h.service.ListByForm(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, sessions, nil)
}

// ListMine godoc
// @Summary List own responses
// @Description List the caller's sessions for a form, newest version first
// @Tags Responses
// @Produce json
// @Param id path string true "Form ID"
// @Success 200 {object} response.Envelope
// @Router /forms/{id}/responses/mine [get]
func (h *ResponseHandler) ListMine(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	sessions, err := h.service.ListMine(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, sessions, nil)
}
