package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gestao-docs-api/internal/dto"
	"github.com/noah-isme/gestao-docs-api/internal/middleware"
	"github.com/noah-isme/gestao-docs-api/internal/models"
	"github.com/noah-isme/gestao-docs-api/internal/service"
	appErrors "github.com/noah-isme/gestao-docs-api/pkg/errors"
	"github.com/noah-isme/gestao-docs-api/pkg/response"
)

type biddingService interface {
	Create(ctx context.Context, actor service.Actor, req dto.CreateBiddingRequest) (*models.BiddingProcess, error)
	Get(ctx context.Context, id string) (*models.BiddingProcess, error)
	List(ctx context.Context, filter models.BiddingFilter) ([]models.BiddingProcess, *models.Pagination, error)
	ViewStage(ctx context.Context, id string, index int) (*dto.StageView, error)
	UpdateBody(ctx context.Context, actor service.Actor, id string, req dto.UpdateStageBodyRequest) (*models.BiddingProcess, error)
	AddSignature(ctx context.Context, actor service.Actor, id string, req dto.AddSignatureRequest) (*models.BiddingProcess, error)
	Advance(ctx context.Context, actor service.Actor, id string, req dto.AdvanceStageRequest) (*models.BiddingProcess, error)
	UpdateStatus(ctx context.Context, actor service.Actor, id string, req dto.UpdateBiddingStatusRequest) (*models.BiddingProcess, error)
}

type biddingExporter interface {
	Export(ctx context.Context, id string) (*dto.ExportResponse, error)
}

// BiddingHandler exposes multi-stage bidding processes.
type BiddingHandler struct {
	service  biddingService
	exporter biddingExporter
}

// NewBiddingHandler builds a BiddingHandler. exporter may be nil.
func NewBiddingHandler(service biddingService, exporter biddingExporter) *BiddingHandler {
	return &BiddingHandler{service: service, exporter: exporter}
}

// Create godoc
// @Summary Open a bidding process
// @Tags Biddings
// @Accept json
// @Produce json
// @Param payload body dto.CreateBiddingRequest true "Process payload"
// @Success 201 {object} response.Envelope
// @Router /biddings [post]
func (h *BiddingHandler) Create(c *gin.Context) {
	var req dto.CreateBiddingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid bidding payload"))
		return
	}
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	process, err := h.service.Create(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, process)
}

// List godoc
// @Summary List bidding processes
// @Tags Biddings
// @Produce json
// @Param sectorId query string false "Sector"
// @Param status query string false "Status"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /biddings [get]
func (h *BiddingHandler) List(c *gin.Context) {
	filter := models.BiddingFilter{
		SectorID: strings.TrimSpace(c.Query("sectorId")),
		Status:   models.BiddingStatus(strings.ToUpper(c.Query("status"))),
	}
	filter.Limit, filter.Offset = pageParams(c)
	items, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get a bidding process
// @Tags Biddings
// @Produce json
// @Param id path string true "Process ID"
// @Success 200 {object} response.Envelope
// @Router /biddings/{id} [get]
func (h *BiddingHandler) Get(c *gin.Context) {
	process, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, process)
}

// ViewStage godoc
// @Summary View one stage with its editability
// @Tags Biddings
// @Produce json
// @Param id path string true "Process ID"
// @Param index path int true "Stage index"
// @Success 200 {object} response.Envelope
// @Router /biddings/{id}/stages/{index} [get]
func (h *BiddingHandler) ViewStage(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid stage index"))
		return
	}
	view, err := h.service.ViewStage(c.Request.Context(), c.Param("id"), index)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, view)
}

// UpdateBody godoc
// @Summary Edit the current stage body
// @Tags Biddings
// @Accept json
// @Produce json
// @Param id path string true "Process ID"
// @Param payload body dto.UpdateStageBodyRequest true "Body payload"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /biddings/{id}/body [put]
func (h *BiddingHandler) UpdateBody(c *gin.Context) {
	var req dto.UpdateStageBodyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid body payload"))
		return
	}
	h.mutate(c, func(ctx context.Context, actor service.Actor, id string) (*models.BiddingProcess, error) {
		return h.service.UpdateBody(ctx, actor, id, req)
	})
}

// AddSignature godoc
// @Summary Add a signer to the current stage
// @Tags Biddings
// @Accept json
// @Produce json
// @Param id path string true "Process ID"
// @Param payload body dto.AddSignatureRequest true "Signature payload"
// @Success 200 {object} response.Envelope
// @Router /biddings/{id}/signatures [post]
func (h *BiddingHandler) AddSignature(c *gin.Context) {
	var req dto.AddSignatureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid signature payload"))
		return
	}
	h.mutate(c, func(ctx context.Context, actor service.Actor, id string) (*models.BiddingProcess, error) {
		return h.service.AddSignature(ctx, actor, id, req)
	})
}

// Advance godoc
// @Summary Finalize the current stage and open the next
// @Tags Biddings
// @Accept json
// @Produce json
// @Param id path string true "Process ID"
// @Param payload body dto.AdvanceStageRequest true "Advance payload"
// @Success 200 {object} response.Envelope
// @Router /biddings/{id}/advance [post]
func (h *BiddingHandler) Advance(c *gin.Context) {
	var req dto.AdvanceStageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid advance payload"))
		return
	}
	h.mutate(c, func(ctx context.Context, actor service.Actor, id string) (*models.BiddingProcess, error) {
		return h.service.Advance(ctx, actor, id, req)
	})
}

// UpdateStatus godoc
// @Summary Change the process status
// @Tags Biddings
// @Accept json
// @Produce json
// @Param id path string true "Process ID"
// @Param payload body dto.UpdateBiddingStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Router /biddings/{id}/status [patch]
func (h *BiddingHandler) UpdateStatus(c *gin.Context) {
	var req dto.UpdateBiddingStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid status payload"))
		return
	}
	h.mutate(c, func(ctx context.Context, actor service.Actor, id string) (*models.BiddingProcess, error) {
		return h.service.UpdateStatus(ctx, actor, id, req)
	})
}

// Export godoc
// @Summary Render the process to PDF
// @Tags Biddings
// @Produce json
// @Param id path string true "Process ID"
// @Success 200 {object} response.Envelope
// @Router /biddings/{id}/export [post]
func (h *BiddingHandler) Export(c *gin.Context) {
	if h.exporter == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnavailable, "export not configured"))
		return
	}
	result, err := h.exporter.Export(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "cache_hit", result.Cached)
	response.JSON(c, http.StatusOK, result, nil, middleware.Meta(c))
}

func (h *BiddingHandler) mutate(c *gin.Context, fn func(ctx context.Context, actor service.Actor, id string) (*models.BiddingProcess, error)) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	process, err := fn(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, process)
}
