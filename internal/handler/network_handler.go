package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/fpnet-io/fpnet-api/internal/models"
	"github.com/fpnet-io/fpnet-api/internal/service"
	appErrors "github.com/fpnet-io/fpnet-api/pkg/errors"
	"github.com/fpnet-io/fpnet-api/pkg/response"
)

// NetworkHandler handles subnet and center topology endpoints.
type NetworkHandler struct {
	service *service.NetworkService
}

// NewNetworkHandler creates a new network handler.
func NewNetworkHandler(svc *service.NetworkService) *NetworkHandler {
	return &NetworkHandler{service: svc}
}

// ListSubnets godoc
// @Summary List subnets
// @Tags Network
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /network/subnets [get]
func (h *NetworkHandler) ListSubnets(c *gin.Context) {
	subnets, err := h.service.ListSubnets(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, subnets, nil)
}

// GetSubnet godoc
// @Summary Get subnet
// @Tags Network
// @Produce json
// @Param id path string true "Subnet ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /network/subnets/{id} [get]
func (h *NetworkHandler) GetSubnet(c *gin.Context) {
	subnet, err := h.service.GetSubnet(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, subnet, nil)
}

// CreateSubnet godoc
// @Summary Create subnet
// @Tags Network
// @Accept json
// @Produce json
// @Param payload body service.SubnetRequest true "Subnet payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /network/subnets [post]
func (h *NetworkHandler) CreateSubnet(c *gin.Context) {
	var req service.SubnetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	subnet, err := h.service.CreateSubnet(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, subnet)
}

// UpdateSubnet godoc
// @Summary Update subnet
// @Tags Network
// @Accept json
// @Produce json
// @Param id path string true "Subnet ID"
// @Param payload body service.SubnetRequest true "Subnet payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /network/subnets/{id} [put]
func (h *NetworkHandler) UpdateSubnet(c *gin.Context) {
	var req service.SubnetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	subnet, err := h.service.UpdateSubnet(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, subnet, nil)
}

// DeleteSubnet godoc
// @Summary Delete subnet
// @Tags Network
// @Produce json
// @Param id path string true "Subnet ID"
// @Success 204 "No Content"
// @Failure 409 {object} response.Envelope
// @Router /network/subnets/{id} [delete]
func (h *NetworkHandler) DeleteSubnet(c *gin.Context) {
	if err := h.service.DeleteSubnet(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// ListCenters godoc
// @Summary List centers
// @Tags Network
// @Produce json
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Param subnet_id query string false "Subnet filter"
// @Param type query string false "Center type filter"
// @Param search query string false "Search term"
// @Success 200 {object} response.Envelope
// @Router /network/centers [get]
func (h *NetworkHandler) ListCenters(c *gin.Context) {
	var filter models.CenterFilter
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("page_size", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SubnetID = c.Query("subnet_id")
	filter.Type = models.CenterType(c.Query("type"))
	filter.Search = c.Query("search")

	centers, pagination, err := h.service.ListCenters(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, centers, pagination)
}

// GetCenter godoc
// @Summary Get center
// @Tags Network
// @Produce json
// @Param id path string true "Center ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /network/centers/{id} [get]
func (h *NetworkHandler) GetCenter(c *gin.Context) {
	center, err := h.service.GetCenter(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, center, nil)
}

// CreateCenter godoc
// @Summary Create center
// @Tags Network
// @Accept json
// @Produce json
// @Param payload body service.CenterRequest true "Center payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /network/centers [post]
func (h *NetworkHandler) CreateCenter(c *gin.Context) {
	var req service.CenterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	center, err := h.service.CreateCenter(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, center)
}

// UpdateCenter godoc
// @Summary Update center
// @Tags Network
// @Accept json
// @Produce json
// @Param id path string true "Center ID"
// @Param payload body service.CenterRequest true "Center payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /network/centers/{id} [put]
func (h *NetworkHandler) UpdateCenter(c *gin.Context) {
	var req service.CenterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	center, err := h.service.UpdateCenter(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, center, nil)
}

// DeleteCenter godoc
// @Summary Delete center
// @Tags Network
// @Produce json
// @Param id path string true "Center ID"
// @Success 204 "No Content"
// @Failure 404 {object} response.Envelope
// @Router /network/centers/{id} [delete]
func (h *NetworkHandler) DeleteCenter(c *gin.Context) {
	if err := h.service.DeleteCenter(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}
