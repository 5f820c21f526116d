package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DocumentKind enumerates protocolled administrative documents.
type DocumentKind string

const (
	DocumentOfficialLetter  DocumentKind = "OFICIO"
	DocumentPurchaseRequest DocumentKind = "PURCHASE_REQUEST"
	DocumentPerDiem         DocumentKind = "PER_DIEM"
	DocumentServiceOrder    DocumentKind = "SERVICE_ORDER"
	DocumentMemo            DocumentKind = "MEMO"
)

// Label returns the heading used in the document's protocol block.
func (k DocumentKind) Label() string {
	switch k {
	case DocumentOfficialLetter:
		return "Ofício"
	case DocumentPurchaseRequest:
		return "Solicitação de Compra"
	case DocumentPerDiem:
		return "Solicitação de Diária"
	case DocumentServiceOrder:
		return "Ordem de Serviço"
	case DocumentMemo:
		return "Memorando"
	default:
		return string(k)
	}
}

// Valid reports whether the kind is supported.
func (k DocumentKind) Valid() bool {
	switch k {
	case DocumentOfficialLetter, DocumentPurchaseRequest, DocumentPerDiem, DocumentServiceOrder, DocumentMemo:
		return true
	}
	return false
}

// DocumentContent is the rendered payload of a protocolled document.
type DocumentContent struct {
	LeftBlockText  string            `json:"leftBlockText"`
	RightBlockText string            `json:"rightBlockText,omitempty"`
	Title          string            `json:"title"`
	Body           string            `json:"body"`
	Recipient      string            `json:"recipient,omitempty"`
	SignerName     string            `json:"signerName,omitempty"`
	SignerRole     string            `json:"signerRole,omitempty"`
	Fields         map[string]string `json:"fields,omitempty"`
}

// Value implements driver.Valuer for JSONB storage.
func (c DocumentContent) Value() (driver.Value, error) {
	return json.Marshal(c)
}

// Scan implements sql.Scanner for JSONB storage.
func (c *DocumentContent) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*c = DocumentContent{}
		return nil
	case []byte:
		return json.Unmarshal(v, c)
	case string:
		return json.Unmarshal([]byte(v), c)
	default:
		return fmt.Errorf("unsupported document content type %T", src)
	}
}

// ProtocolDocument is a persisted document identified by a unique protocol.
type ProtocolDocument struct {
	ID        string          `db:"id" json:"id"`
	Kind      DocumentKind    `db:"kind" json:"kind"`
	SectorID  string          `db:"sector_id" json:"sectorId"`
	Year      int             `db:"year" json:"year"`
	Sequence  int64           `db:"sequence" json:"sequence"`
	Protocol  string          `db:"protocol" json:"protocol"`
	Content   DocumentContent `db:"content" json:"content"`
	CreatedBy string          `db:"created_by" json:"createdBy"`
	CreatedAt time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time       `db:"updated_at" json:"updatedAt"`
}

// CounterScope returns the numbering scope the document's protocol is drawn from.
func (d *ProtocolDocument) CounterScope() CounterScope {
	return CounterScope{Category: fmt.Sprintf("%s:%s", strings.ToLower(string(d.Kind)), d.SectorID), Year: d.Year}
}

// DocumentFilter constrains listing queries.
type DocumentFilter struct {
	SectorID string
	Year     int
	Kind     DocumentKind
	Limit    int
	Offset   int
}
