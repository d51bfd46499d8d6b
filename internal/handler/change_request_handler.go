package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/educhain-labs/governance-api/internal/models"
	"github.com/educhain-labs/governance-api/internal/service"
	appErrors "github.com/educhain-labs/governance-api/pkg/errors"
	"github.com/educhain-labs/governance-api/pkg/response"
)

// ChangeRequestHandler manages the schedule change workflow endpoints.
type ChangeRequestHandler struct {
	service *service.ChangeRequestService
}

// NewChangeRequestHandler constructs handler.
func NewChangeRequestHandler(svc *service.ChangeRequestService) *ChangeRequestHandler {
	return &ChangeRequestHandler{service: svc}
}

// Submit godoc
// @Summary Submit a schedule change request
// @Tags ChangeRequests
// @Accept json
// @Produce json
// @Param payload body service.SubmitChangeRequest true "Change request payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Security BearerAuth
// @Router /change-requests [post]
func (h *ChangeRequestHandler) Submit(c *gin.Context) {
	var req service.SubmitChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	request, err := h.service.Submit(c.Request.Context(), req, actorWallet(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, request)
}

// List godoc
// @Summary List change requests
// @Tags ChangeRequests
// @Produce json
// @Param scheduleId query string false "Filter by schedule"
// @Param status query string false "Filter by status"
// @Param type query string false "Filter by type"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /change-requests [get]
func (h *ChangeRequestHandler) List(c *gin.Context) {
	var filter models.ChangeRequestFilter
	filter.ScheduleID = c.Query("scheduleId")
	filter.Type = models.ChangeRequestType(c.Query("type"))
	if status := c.Query("status"); status != "" {
		filter.Status = []models.ChangeRequestStatus{models.ChangeRequestStatus(status)}
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(c.DefaultQuery("offset", "0")); err == nil {
		filter.Offset = offset
	}

	requests, err := h.service.List(c.Request.Context(), filter, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, nil)
}

// Get godoc
// @Summary Get a change request
// @Tags ChangeRequests
// @Produce json
// @Param id path string true "Change request ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /change-requests/{id} [get]
func (h *ChangeRequestHandler) Get(c *gin.Context) {
	request, err := h.service.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Resolve godoc
// @Summary Approve or reject a change request
// @Description Approval re-runs conflict detection against current state before committing
// @Tags ChangeRequests
// @Accept json
// @Produce json
// @Param id path string true "Change request ID"
// @Param payload body service.ResolveChangeRequestInput true "Decision payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /change-requests/{id}/resolve [post]
func (h *ChangeRequestHandler) Resolve(c *gin.Context) {
	var input service.ResolveChangeRequestInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	request, err := h.service.Resolve(c.Request.Context(), c.Param("id"), input, actorWallet(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}
