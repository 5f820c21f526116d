package dto

import "github.com/noah-isme/gestao-docs-api/internal/models"

// CreateDocumentRequest is the payload for issuing a protocolled document.
type CreateDocumentRequest struct {
	Kind     models.DocumentKind    `json:"kind" validate:"required,oneof=OFICIO PURCHASE_REQUEST PER_DIEM SERVICE_ORDER MEMO"`
	SectorID string                 `json:"sectorId"`
	Year     int                    `json:"year" validate:"omitempty,min=2000,max=2100"`
	Content  models.DocumentContent `json:"content"`
}

// CounterPreview is returned by the counter endpoints. Value is nil when unknown.
type CounterPreview struct {
	ScopeID  string  `json:"scopeId"`
	Value    *int64  `json:"value"`
	Protocol *string `json:"protocol"`
}
