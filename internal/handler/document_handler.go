package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gestao-docs-api/internal/dto"
	"github.com/noah-isme/gestao-docs-api/internal/models"
	"github.com/noah-isme/gestao-docs-api/internal/service"
	appErrors "github.com/noah-isme/gestao-docs-api/pkg/errors"
	"github.com/noah-isme/gestao-docs-api/pkg/response"
)

type documentService interface {
	Create(ctx context.Context, actor service.Actor, req dto.CreateDocumentRequest) (*models.ProtocolDocument, error)
	PreviewNext(ctx context.Context, kind models.DocumentKind, sectorID string, year int) (*dto.CounterPreview, error)
	Get(ctx context.Context, id string) (*models.ProtocolDocument, error)
	List(ctx context.Context, filter models.DocumentFilter) ([]models.ProtocolDocument, *models.Pagination, error)
	ExportRegister(ctx context.Context, filter models.DocumentFilter) ([]byte, error)
}

// DocumentHandler exposes protocolled documents.
type DocumentHandler struct {
	service documentService
}

// NewDocumentHandler builds a DocumentHandler.
func NewDocumentHandler(service documentService) *DocumentHandler {
	return &DocumentHandler{service: service}
}

// Create godoc
// @Summary Issue a protocolled document
// @Tags Documents
// @Accept json
// @Produce json
// @Param payload body dto.CreateDocumentRequest true "Document payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /documents [post]
func (h *DocumentHandler) Create(c *gin.Context) {
	var req dto.CreateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid document payload"))
		return
	}
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	doc, err := h.service.Create(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, doc)
}

// List godoc
// @Summary List protocolled documents
// @Tags Documents
// @Produce json
// @Param sectorId query string false "Sector"
// @Param year query int false "Year"
// @Param kind query string false "Document kind"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /documents [get]
func (h *DocumentHandler) List(c *gin.Context) {
	filter, err := documentFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	docs, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, docs, pagination)
}

// Get godoc
// @Summary Get a protocolled document
// @Tags Documents
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Router /documents/{id} [get]
func (h *DocumentHandler) Get(c *gin.Context) {
	doc, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, doc)
}

// Preview godoc
// @Summary Preview the protocol the next document would receive
// @Tags Documents
// @Produce json
// @Param kind query string true "Document kind"
// @Param sectorId query string false "Sector, defaults to the caller's"
// @Param year query int false "Year"
// @Success 200 {object} response.Envelope
// @Router /documents/preview [get]
func (h *DocumentHandler) Preview(c *gin.Context) {
	year, err := service.ParseYear(c.Query("year"))
	if err != nil {
		response.Error(c, err)
		return
	}
	sectorID := strings.TrimSpace(c.Query("sectorId"))
	if sectorID == "" {
		if actor, ok := actorFromContext(c); ok {
			sectorID = actor.SectorID
		}
	}
	kind := models.DocumentKind(strings.ToUpper(c.Query("kind")))
	preview, err := h.service.PreviewNext(c.Request.Context(), kind, sectorID, year)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, preview)
}

// Register godoc
// @Summary Download the protocol register as CSV
// @Tags Documents
// @Produce text/csv
// @Param sectorId query string false "Sector"
// @Param year query int false "Year"
// @Param kind query string false "Document kind"
// @Success 200 {file} file
// @Router /documents/register.csv [get]
func (h *DocumentHandler) Register(c *gin.Context) {
	filter, err := documentFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	data, err := h.service.ExportRegister(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	filename := fmt.Sprintf("protocolos-%s.csv", time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "text/csv; charset=utf-8", data)
}

func documentFilter(c *gin.Context) (models.DocumentFilter, error) {
	year, err := service.ParseYear(c.Query("year"))
	if err != nil {
		return models.DocumentFilter{}, err
	}
	filter := models.DocumentFilter{
		SectorID: strings.TrimSpace(c.Query("sectorId")),
		Year:     year,
	}
	if raw := c.Query("kind"); raw != "" {
		filter.Kind = models.DocumentKind(strings.ToUpper(raw))
		if !filter.Kind.Valid() {
			return models.DocumentFilter{}, appErrors.Clone(appErrors.ErrValidation, "unknown document kind")
		}
	}
	filter.Limit, filter.Offset = pageParams(c)
	return filter, nil
}
