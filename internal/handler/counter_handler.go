package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gestao-docs-api/internal/dto"
	"github.com/noah-isme/gestao-docs-api/internal/models"
	"github.com/noah-isme/gestao-docs-api/internal/service"
	appErrors "github.com/noah-isme/gestao-docs-api/pkg/errors"
	"github.com/noah-isme/gestao-docs-api/pkg/response"
)

type counterService interface {
	PeekNext(ctx context.Context, scope models.CounterScope) (int64, bool)
	IncrementAndGet(ctx context.Context, scope models.CounterScope) (int64, bool)
}

// CounterHandler exposes the sequential counters.
type CounterHandler struct {
	service counterService
}

// NewCounterHandler builds a CounterHandler.
func NewCounterHandler(service counterService) *CounterHandler {
	return &CounterHandler{service: service}
}

// Peek godoc
// @Summary Preview the next counter value
// @Description Value is null when the counter cannot be read.
// @Tags Counters
// @Produce json
// @Param category path string true "Counter category"
// @Param year path int true "Year"
// @Success 200 {object} response.Envelope
// @Router /counters/{category}/{year}/peek [get]
func (h *CounterHandler) Peek(c *gin.Context) {
	scope, err := scopeFromPath(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	preview := dto.CounterPreview{ScopeID: scope.Key()}
	if next, ok := h.service.PeekNext(c.Request.Context(), scope); ok {
		setPreviewValue(&preview, next, scope.Year)
	}
	response.JSON(c, http.StatusOK, preview, nil)
}

// Increment godoc
// @Summary Reserve the next counter value
// @Tags Counters
// @Produce json
// @Param category path string true "Counter category"
// @Param year path int true "Year"
// @Success 200 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /counters/{category}/{year}/increment [post]
func (h *CounterHandler) Increment(c *gin.Context) {
	scope, err := scopeFromPath(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	value, ok := h.service.IncrementAndGet(c.Request.Context(), scope)
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrUnavailable, "counter unavailable"))
		return
	}
	preview := dto.CounterPreview{ScopeID: scope.Key()}
	setPreviewValue(&preview, value, scope.Year)
	response.JSON(c, http.StatusOK, preview, nil)
}

func scopeFromPath(c *gin.Context) (models.CounterScope, error) {
	year, err := service.ParseYear(c.Param("year"))
	if err != nil {
		return models.CounterScope{}, err
	}
	scope := models.CounterScope{Category: strings.TrimSpace(c.Param("category")), Year: year}
	if !scope.Valid() {
		return models.CounterScope{}, appErrors.Clone(appErrors.ErrValidation, "category and year are required")
	}
	return scope, nil
}

func setPreviewValue(p *dto.CounterPreview, value int64, year int) {
	protocol := models.FormatProtocol(value, year)
	p.Value = &value
	p.Protocol = &protocol
}
