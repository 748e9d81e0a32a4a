package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/fpnet-io/fpnet-api/internal/models"
	"github.com/fpnet-io/fpnet-api/internal/service"
	appErrors "github.com/fpnet-io/fpnet-api/pkg/errors"
	"github.com/fpnet-io/fpnet-api/pkg/response"
)

type formService interface {
	List(ctx context.Context, filter models.FormFilter) ([]models.Form, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.Form, error)
	Create(ctx context.Context, req service.CreateFormRequest, actor *models.JWTClaims) (*models.Form, error)
	Update(ctx context.Context, id string, req service.UpdateFormRequest) (*models.Form, error)
	Publish(ctx context.Context, id string, actor *models.JWTClaims) (*models.Form, error)
	Pause(ctx context.Context, id string) (*models.Form, error)
	Resume(ctx context.Context, id string) (*models.Form, error)
	Close(ctx context.Context, id string, actor *models.JWTClaims) (*models.Form, error)
	Duplicate(ctx context.Context, id string, actor *models.JWTClaims) (*models.Form, error)
	Delete(ctx context.Context, id string, actor *models.JWTClaims) error
}

// FormHandler handles form definition and lifecycle endpoints.
type FormHandler struct {
	service formService
}

// NewFormHandler creates a new form handler.
func NewFormHandler(svc formService) *FormHandler {
	return &FormHandler{service: svc}
}

// List godoc
// @Summary List forms
// @Description List forms with pagination and filtering
// @Tags Forms
// @Produce json
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Param academic_year_id query string false "Academic year filter"
// @Param status query string false "Status filter"
// @Param role query string false "Assigned role filter"
// @Param search query string false "Title search"
// @Success 200 {object} response.Envelope
// @Router /forms [get]
func (h *FormHandler) List(c *gin.Context) {
	var filter models.FormFilter

	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("page_size", "20")); err == nil {
		filter.PageSize = size
	}
	filter.AcademicYearID = c.Query("academic_year_id")
	filter.Status = models.FormStatus(c.Query("status"))
	filter.Role = models.UserRole(c.Query("role"))
	filter.Search = c.Query("search")
	filter.SortBy = c.Query("sort_by")
	filter.SortOrder = c.Query("sort_order")

	forms, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, forms, pagination)
}

// Get godoc
// @Summary Get form
// @Description Get a form definition
// @Tags Forms
// @Produce json
// @Param id path string true "Form ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /forms/{id} [get]
func (h *FormHandler) Get(c *gin.Context) {
	form, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, form, nil)
}

// Create godoc
// @Summary Create form
// @Description Create a new draft form
// @Tags Forms
// @Accept json
// @Produce json
// @Param payload body service.CreateFormRequest true "Create form payload"
// @Success 201 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /forms [post]
func (h *FormHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateFormRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	form, err := h.service.Create(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, form)
}

// Update godoc
// @Summary Update form
// @Description Update a form's fields and settings
// @Tags Forms
// @Accept json
// @Produce json
// @Param id path string true "Form ID"
// @Param payload body service.UpdateFormRequest true "Update form payload"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /forms/{id} [put]
func (h *FormHandler) Update(c *gin.Context) {
	var req service.UpdateFormRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	form, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, form, nil)
}

// Publish godoc
// @Summary Publish form
// @Description Open a form to its assigned roles
// @Tags Forms
// @Produce json
// @Param id path string true "Form ID"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /forms/{id}/publish [post]
func (h *FormHandler) Publish(c *gin.Context) {
	form, err := h.service.Publish(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, form, nil)
}

// Pause godoc
// @Summary Pause form
// @Description Temporarily stop accepting responses
// @Tags Forms
// @Produce json
// @Param id path string true "Form ID"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /forms/{id}/pause [post]
func (h *FormHandler) Pause(c *gin.Context) {
	form, err := h.service.Pause(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, form, nil)
}

// Resume godoc
// @Summary Resume form
// @Description Resume accepting responses on a paused form
// @Tags Forms
// @Produce json
// @Param id path string true "Form ID"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /forms/{id}/resume [post]
func (h *FormHandler) Resume(c *gin.Context) {
	form, err := h.service.Resume(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, form, nil)
}

// Close godoc
// @Summary Close form
// @Description Permanently close a published form
// @Tags Forms
// @Produce json
// @Param id path string true "Form ID"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /forms/{id}/close [post]
func (h *FormHandler) Close(c *gin.Context) {
	form, err := h.service.Close(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, form, nil)
}

// Duplicate godoc
// @Summary Duplicate form
// @Description Deep-copy a form into a fresh draft with remapped rules
// @Tags Forms
// @Produce json
// @Param id path string true "Form ID"
// @Success 201 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /forms/{id}/duplicate [post]
func (h *FormHandler) Duplicate(c *gin.Context) {
	form, err := h.service.Duplicate(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, form)
}

// Delete godoc
// @Summary Delete form
// @Description Delete a form and all of its responses
// @Tags Forms
// @Produce json
// @Param id path string true "Form ID"
// @Success 204 "No Content"
// @Failure 404 {object} response.Envelope
// @Router /forms/{id} [delete]
func (h *FormHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}
