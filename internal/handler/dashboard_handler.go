package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fpnet-io/fpnet-api/internal/service"
	"github.com/fpnet-io/fpnet-api/pkg/response"
)

// DashboardHandler handles aggregated dashboard endpoints.
type DashboardHandler struct {
	service *service.DashboardService
}

// NewDashboardHandler creates a new dashboard handler.
func NewDashboardHandler(svc *service.DashboardService) *DashboardHandler {
	return &DashboardHandler{service: svc}
}

// Form godoc
// @Summary Form dashboard
// @Description Aggregated response statistics for one form
// @Tags Dashboard
// @Produce json
// @Param id path string true "Form ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /dashboard/forms/{id} [get]
func (h *DashboardHandler) Form(c *gin.Context) {
	summary, cached, err := h.service.Form(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, summary, nil, map[string]interface{}{"cached": cached})
}

// Overview godoc
// @Summary Overview dashboard
// @Description Form and response totals for an academic year
// @Tags Dashboard
// @Produce json
// @Param academic_year_id query string false "Academic year (defaults to active)"
// @Success 200 {object} response.Envelope
// @Router /dashboard/overview [get]
func (h *DashboardHandler) Overview(c *gin.Context) {
	overview, cached, err := h.service.Overview(c.Request.Context(), c.Query("academic_year_id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, overview, nil, map[string]interface{}{"cached": cached})
}
