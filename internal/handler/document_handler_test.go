package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gestao-docs-api/internal/dto"
	"github.com/noah-isme/gestao-docs-api/internal/models"
	"github.com/noah-isme/gestao-docs-api/internal/service"
	appErrors "github.com/noah-isme/gestao-docs-api/pkg/errors"
)

type documentServiceMock struct {
	createErr   error
	actor       service.Actor
	filter      models.DocumentFilter
	previewArgs []interface{}
	register    []byte
}

func (m *documentServiceMock) Create(_ context.Context, actor service.Actor, req dto.CreateDocumentRequest) (*models.ProtocolDocument, error) {
	m.actor = actor
	if m.createErr != nil {
		return nil, m.createErr
	}
	return &models.ProtocolDocument{ID: "doc-1", Kind: req.Kind, Protocol: "001/2024"}, nil
}

func (m *documentServiceMock) PreviewNext(_ context.Context, kind models.DocumentKind, sectorID string, year int) (*dto.CounterPreview, error) {
	m.previewArgs = []interface{}{kind, sectorID, year}
	return &dto.CounterPreview{ScopeID: "x"}, nil
}

func (m *documentServiceMock) Get(_ context.Context, id string) (*models.ProtocolDocument, error) {
	return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
}

func (m *documentServiceMock) List(_ context.Context, filter models.DocumentFilter) ([]models.ProtocolDocument, *models.Pagination, error) {
	m.filter = filter
	return []models.ProtocolDocument{}, &models.Pagination{Page: 2, PageSize: filter.Limit, TotalCount: 11}, nil
}

func (m *documentServiceMock) ExportRegister(_ context.Context, filter models.DocumentFilter) ([]byte, error) {
	m.filter = filter
	return m.register, nil
}

func TestDocumentHandlerCreate(t *testing.T) {
	svc := &documentServiceMock{}
	h := NewDocumentHandler(svc)
	c, w := newContext(http.MethodPost, "/documents", dto.CreateDocumentRequest{Kind: models.DocumentOfficialLetter}, employee)
	c.Request.Header.Set("User-Agent", "test-agent")

	h.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "user-1", svc.actor.UserID)
	assert.Equal(t, "sector-1", svc.actor.SectorID)
	assert.Equal(t, "test-agent", svc.actor.UserAgent)
}

func TestDocumentHandlerCreateErrors(t *testing.T) {
	h := NewDocumentHandler(&documentServiceMock{})

	c, w := newContext(http.MethodPost, "/documents", `{"kind":`, employee)
	h.Create(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	c, w = newContext(http.MethodPost, "/documents", dto.CreateDocumentRequest{Kind: models.DocumentMemo}, nil)
	h.Create(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	h = NewDocumentHandler(&documentServiceMock{createErr: appErrors.ErrProtocolExhausted})
	c, w = newContext(http.MethodPost, "/documents", dto.CreateDocumentRequest{Kind: models.DocumentMemo}, employee)
	h.Create(c)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "PROTOCOL_EXHAUSTED", errorCode(t, w))
}

func TestDocumentHandlerListFilter(t *testing.T) {
	svc := &documentServiceMock{}
	h := NewDocumentHandler(svc)
	c, w := newContext(http.MethodGet, "/documents?sectorId=s1&year=2024&kind=memo&page=2&page_size=10", nil, employee)

	h.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.DocumentFilter{SectorID: "s1", Year: 2024, Kind: models.DocumentMemo, Limit: 10, Offset: 10}, svc.filter)
	env := decodeEnvelope(t, w, nil)
	require.NotNil(t, env.Pagination)
	assert.Equal(t, 11, env.Pagination.TotalCount)

	c, w = newContext(http.MethodGet, "/documents?kind=letter", nil, employee)
	h.List(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDocumentHandlerPreviewDefaultsToCallerSector(t *testing.T) {
	svc := &documentServiceMock{}
	h := NewDocumentHandler(svc)
	c, w := newContext(http.MethodGet, "/documents/preview?kind=oficio&year=2024", nil, employee)

	h.Preview(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []interface{}{models.DocumentOfficialLetter, "sector-1", 2024}, svc.previewArgs)
}

func TestDocumentHandlerGetNotFound(t *testing.T) {
	h := NewDocumentHandler(&documentServiceMock{})
	c, w := newContext(http.MethodGet, "/documents/missing", nil, employee)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}

	h.Get(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDocumentHandlerRegister(t *testing.T) {
	svc := &documentServiceMock{register: []byte("Protocolo;Tipo\n001/2024;Memorando\n")}
	h := NewDocumentHandler(svc)
	c, w := newContext(http.MethodGet, "/documents/register.csv?year=2024", nil, employee)

	h.Register(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "protocolos-")
	assert.Equal(t, string(svc.register), w.Body.String())
	assert.Equal(t, 2024, svc.filter.Year)
}
