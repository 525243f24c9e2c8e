package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/opencampus/college-portal-api/internal/dto"
	"github.com/opencampus/college-portal-api/internal/models"
	appErrors "github.com/opencampus/college-portal-api/pkg/errors"
	"github.com/opencampus/college-portal-api/pkg/response"
)

type clearanceService interface {
	Submit(ctx context.Context, actor models.Actor, req dto.CreateClearanceRequest) (*dto.ClearanceResponse, error)
	Get(ctx context.Context, actor models.Actor, id string) (*dto.ClearanceResponse, error)
	List(ctx context.Context, actor models.Actor) ([]dto.ClearanceResponse, error)
	Decide(ctx context.Context, actor models.Actor, requestID string, req dto.DecideClearanceRequest) (*dto.ClearanceResponse, error)
	Delete(ctx context.Context, actor models.Actor, requestID string) error
	BulkApprove(ctx context.Context, actor models.Actor, req dto.BulkApproveRequest) (*dto.BulkApproveResult, error)
}

// ClearanceHandler exposes the no-due clearance endpoints.
type ClearanceHandler struct {
	clearance clearanceService
}

// NewClearanceHandler constructs ClearanceHandler.
func NewClearanceHandler(clearance clearanceService) *ClearanceHandler {
	return &ClearanceHandler{clearance: clearance}
}

// Create godoc
// @Summary Open a no-due clearance request
// @Tags Clearance
// @Accept json
// @Produce json
// @Param payload body dto.CreateClearanceRequest true "Clearance payload"
// @Success 201 {object} response.Envelope
// @Router /clearance [post]
func (h *ClearanceHandler) Create(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req dto.CreateClearanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	record, err := h.clearance.Submit(c.Request.Context(), claims.Actor(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, record)
}

// List godoc
// @Summary List clearance requests actionable by the caller
// @Tags Clearance
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /clearance [get]
func (h *ClearanceHandler) List(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	records, err := h.clearance.List(c.Request.Context(), claims.Actor())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// Get godoc
// @Summary Get one clearance request
// @Tags Clearance
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /clearance/{id} [get]
func (h *ClearanceHandler) Get(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	record, err := h.clearance.Get(c.Request.Context(), claims.Actor(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Decide godoc
// @Summary Approve or reject one stage or subject key
// @Tags Clearance
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.DecideClearanceRequest true "Decision payload"
// @Success 200 {object} response.Envelope
// @Router /clearance/{id}/decision [post]
func (h *ClearanceHandler) Decide(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req dto.DecideClearanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	record, err := h.clearance.Decide(c.Request.Context(), claims.Actor(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// BulkApprove godoc
// @Summary Approve the caller's next actionable key on each listed request
// @Tags Clearance
// @Accept json
// @Produce json
// @Param payload body dto.BulkApproveRequest true "Bulk payload"
// @Success 200 {object} response.Envelope
// @Router /clearance/bulk-approve [post]
func (h *ClearanceHandler) BulkApprove(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req dto.BulkApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.clearance.BulkApprove(c.Request.Context(), claims.Actor(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Delete godoc
// @Summary Withdraw a clearance request
// @Tags Clearance
// @Produce json
// @Param id path string true "Request ID"
// @Success 204
// @Router /clearance/{id} [delete]
func (h *ClearanceHandler) Delete(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	if err := h.clearance.Delete(c.Request.Context(), claims.Actor(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
