package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/educhain-labs/governance-api/internal/models"
	"github.com/educhain-labs/governance-api/internal/service"
	appErrors "github.com/educhain-labs/governance-api/pkg/errors"
	"github.com/educhain-labs/governance-api/pkg/response"
)

// LedgerHandler exposes the append-only audit trail.
type LedgerHandler struct {
	service *service.LedgerService
	exports *service.LedgerExportService
}

// NewLedgerHandler constructs handler.
func NewLedgerHandler(svc *service.LedgerService, exports *service.LedgerExportService) *LedgerHandler {
	return &LedgerHandler{service: svc, exports: exports}
}

// Query godoc
// @Summary Query ledger entries
// @Description Entries are totally ordered by sequence number
// @Tags Ledger
// @Produce json
// @Param actor query string false "Filter by actor wallet"
// @Param entityType query string false "Filter by entity type"
// @Param entityId query string false "Filter by entity id"
// @Param action query string false "Filter by action type"
// @Param status query string false "Filter by settlement status"
// @Param from query string false "Filter from timestamp (RFC3339)"
// @Param to query string false "Filter to timestamp (RFC3339)"
// @Param order query string false "asc (default) or desc"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /ledger [get]
func (h *LedgerHandler) Query(c *gin.Context) {
	filter, err := ledgerFilterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	entries, pagination, err := h.service.Query(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, pagination)
}

// Get godoc
// @Summary Get a ledger entry
// @Tags Ledger
// @Produce json
// @Param id path string true "Ledger entry ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /ledger/{id} [get]
func (h *LedgerHandler) Get(c *gin.Context) {
	entry, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entry, nil)
}

// Export godoc
// @Summary Export the ledger as an audit document
// @Tags Ledger
// @Produce text/csv
// @Produce application/pdf
// @Param format query string true "csv or pdf"
// @Success 200 {file} binary
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /ledger/export [get]
func (h *LedgerHandler) Export(c *gin.Context) {
	filter, err := ledgerFilterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	format := service.ExportFormat(c.DefaultQuery("format", "csv"))
	result, err := h.exports.Export(c.Request.Context(), filter, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, result.Filename, result.ContentType, result.Payload)
}

func ledgerFilterFromQuery(c *gin.Context) (models.LedgerFilter, error) {
	var filter models.LedgerFilter
	filter.ActorWallet = c.Query("actor")
	filter.EntityType = c.Query("entityType")
	filter.EntityID = c.Query("entityId")
	filter.ActionType = c.Query("action")
	filter.Status = models.LedgerStatus(c.Query("status"))
	filter.Descending = c.Query("order") == "desc"
	if raw := c.Query("from"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, appErrors.Clone(appErrors.ErrValidation, "from must be RFC3339")
		}
		filter.From = &ts
	}
	if raw := c.Query("to"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, appErrors.Clone(appErrors.ErrValidation, "to must be RFC3339")
		}
		filter.To = &ts
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil {
		filter.PageSize = limit
	}
	return filter, nil
}
