package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/gestao-docs-api/internal/models"
)

const documentProtocolConstraint = "protocol_documents_protocol_key"

const documentColumns = "id, kind, sector_id, year, sequence, protocol, content, created_by, created_at, updated_at"

// DocumentRepository manages protocolled documents.
type DocumentRepository struct {
	db *sqlx.DB
}

// NewDocumentRepository constructs a DocumentRepository.
func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Create inserts the document. A clash on the protocol constraint yields ErrDuplicateProtocol.
func (r *DocumentRepository) Create(ctx context.Context, doc *models.ProtocolDocument) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	const query = `INSERT INTO protocol_documents (id, kind, sector_id, year, sequence, protocol, content, created_by, created_at, updated_at)
		VALUES (:id, :kind, :sector_id, :year, :sequence, :protocol, :content, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, doc); err != nil {
		if isUniqueViolation(err, documentProtocolConstraint) {
			return fmt.Errorf("create document %s: %w", doc.Protocol, ErrDuplicateProtocol)
		}
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

// FindByID fetches a document by ID.
func (r *DocumentRepository) FindByID(ctx context.Context, id string) (*models.ProtocolDocument, error) {
	query := "SELECT " + documentColumns + " FROM protocol_documents WHERE id = $1"
	var doc models.ProtocolDocument
	if err := r.db.GetContext(ctx, &doc, query, id); err != nil {
		return nil, err
	}
	return &doc, nil
}

// List returns documents matching the filter, newest protocol first, with the total count.
func (r *DocumentRepository) List(ctx context.Context, filter models.DocumentFilter) ([]models.ProtocolDocument, int, error) {
	base := "FROM protocol_documents WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.SectorID != "" {
		conditions = append(conditions, fmt.Sprintf("sector_id = $%d", len(args)+1))
		args = append(args, filter.SectorID)
	}
	if filter.Year > 0 {
		conditions = append(conditions, fmt.Sprintf("year = $%d", len(args)+1))
		args = append(args, filter.Year)
	}
	if filter.Kind != "" {
		conditions = append(conditions, fmt.Sprintf("kind = $%d", len(args)+1))
		args = append(args, filter.Kind)
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf("SELECT %s %s ORDER BY year DESC, sequence DESC LIMIT %d OFFSET %d", documentColumns, base, limit, offset)
	var docs []models.ProtocolDocument
	if err := r.db.SelectContext(ctx, &docs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list documents: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count documents: %w", err)
	}
	return docs, total, nil
}
