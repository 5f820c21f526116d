package service

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/gestao-docs-api/internal/dto"
	"github.com/noah-isme/gestao-docs-api/internal/models"
	appErrors "github.com/noah-isme/gestao-docs-api/pkg/errors"
	"github.com/noah-isme/gestao-docs-api/pkg/export"
)

const documentsResource = "protocol_documents"

type documentStore interface {
	Create(ctx context.Context, doc *models.ProtocolDocument) error
	FindByID(ctx context.Context, id string) (*models.ProtocolDocument, error)
	List(ctx context.Context, filter models.DocumentFilter) ([]models.ProtocolDocument, int, error)
}

type counterPeeker interface {
	PeekNext(ctx context.Context, scope models.CounterScope) (int64, bool)
}

// DocumentService issues protocolled documents.
type DocumentService struct {
	repo        documentStore
	counter     counterPeeker
	coordinator *ProtocolCoordinator
	audit       auditLogger
	validator   *validator.Validate
	csv         *export.CSVExporter
	logger      *zap.Logger
	now         func() time.Time
}

// NewDocumentService constructs a DocumentService.
func NewDocumentService(repo documentStore, counter counterPeeker, coordinator *ProtocolCoordinator, audit auditLogger, validate *validator.Validate, logger *zap.Logger) *DocumentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentService{
		repo:        repo,
		counter:     counter,
		coordinator: coordinator,
		audit:       audit,
		validator:   validate,
		csv:         export.NewCSVExporter(),
		logger:      logger,
		now:         time.Now,
	}
}

// Create mints a protocol for the document and stores it, re-minting on collisions.
func (s *DocumentService) Create(ctx context.Context, actor Actor, req dto.CreateDocumentRequest) (*models.ProtocolDocument, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid document payload")
	}
	doc := &models.ProtocolDocument{
		Kind:      req.Kind,
		SectorID:  strings.TrimSpace(req.SectorID),
		Year:      req.Year,
		Content:   req.Content,
		CreatedBy: actor.UserID,
	}
	if doc.SectorID == "" {
		doc.SectorID = actor.SectorID
	}
	if doc.SectorID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "sectorId is required")
	}
	if doc.Year == 0 {
		doc.Year = s.now().Year()
	}

	if err := s.coordinator.Mint(ctx, doc); err != nil {
		return nil, err
	}
	err := s.coordinator.Save(ctx, doc, func(ctx context.Context) error {
		return s.repo.Create(ctx, doc)
	})
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create document")
	}

	s.logger.Info("protocol issued", zap.String("protocol", doc.Protocol), zap.String("kind", string(doc.Kind)), zap.String("sector_id", doc.SectorID))
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionProtocolIssue, documentsResource, doc.ID, nil, doc)
	return doc, nil
}

// PreviewNext returns the protocol the next document of kind would receive.
// Value and Protocol are nil when the counter cannot be read.
func (s *DocumentService) PreviewNext(ctx context.Context, kind models.DocumentKind, sectorID string, year int) (*dto.CounterPreview, error) {
	if !kind.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown document kind")
	}
	if year == 0 {
		year = s.now().Year()
	}
	shell := &models.ProtocolDocument{Kind: kind, SectorID: sectorID, Year: year}
	scope := shell.CounterScope()
	if !scope.Valid() || sectorID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "sectorId and year are required")
	}
	preview := &dto.CounterPreview{ScopeID: scope.Key()}
	if next, ok := s.counter.PeekNext(ctx, scope); ok {
		protocol := models.FormatProtocol(next, year)
		preview.Value = &next
		preview.Protocol = &protocol
	}
	return preview, nil
}

// Get returns a document by id.
func (s *DocumentService) Get(ctx context.Context, id string) (*models.ProtocolDocument, error) {
	doc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}
	return doc, nil
}

// List returns documents matching the filter.
func (s *DocumentService) List(ctx context.Context, filter models.DocumentFilter) ([]models.ProtocolDocument, *models.Pagination, error) {
	docs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list documents")
	}
	return docs, paginationFor(filter.Limit, filter.Offset, total), nil
}

// ExportRegister renders the protocol register of the filter as CSV.
func (s *DocumentService) ExportRegister(ctx context.Context, filter models.DocumentFilter) ([]byte, error) {
	filter.Limit, filter.Offset = 200, 0
	docs, _, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list documents")
	}
	dataset := export.Dataset{Headers: []string{"Protocolo", "Tipo", "Setor", "Título", "Emitido em"}}
	for _, doc := range docs {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Protocolo":  doc.Protocol,
			"Tipo":       doc.Kind.Label(),
			"Setor":      doc.SectorID,
			"Título":     doc.Content.Title,
			"Emitido em": doc.CreatedAt.Format("02/01/2006"),
		})
	}
	return s.csv.Render(dataset)
}

func paginationFor(limit, offset, total int) *models.Pagination {
	if limit <= 0 {
		limit = 20
	}
	return &models.Pagination{Page: offset/limit + 1, PageSize: limit, TotalCount: total}
}

// ParseYear parses a path year, returning 0 for blanks.
func ParseYear(raw string) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, nil
	}
	year, err := strconv.Atoi(raw)
	if err != nil || year < 2000 || year > 2100 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "invalid year")
	}
	return year, nil
}
