package service

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/gestao-docs-api/internal/dto"
	"github.com/noah-isme/gestao-docs-api/internal/models"
	appErrors "github.com/noah-isme/gestao-docs-api/pkg/errors"
	"github.com/noah-isme/gestao-docs-api/pkg/export"
	"github.com/noah-isme/gestao-docs-api/pkg/storage"
)

// Blob buckets.
const (
	BucketAttachments = "attachments"
	BucketExports     = "exports"
)

type biddingLoader interface {
	Get(ctx context.Context, id string) (*models.BiddingProcess, error)
}

type documentRenderer interface {
	Render(doc export.Document) ([]byte, error)
}

// BiddingExportService renders bidding processes to PDF.
type BiddingExportService struct {
	biddings biddingLoader
	blobs    *storage.BlobStore
	pdf      documentRenderer
	cache    *AssetCacheService
	logger   *zap.Logger
}

// NewBiddingExportService constructs the exporter. cache may be nil.
func NewBiddingExportService(biddings biddingLoader, blobs *storage.BlobStore, pdf documentRenderer, cache *AssetCacheService, logger *zap.Logger) *BiddingExportService {
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BiddingExportService{biddings: biddings, blobs: blobs, pdf: pdf, cache: cache, logger: logger}
}

// Export renders every stage of the process and returns a signed download URL.
// Renders are cached per process version.
func (s *BiddingExportService) Export(ctx context.Context, id string) (*dto.ExportResponse, error) {
	process, err := s.biddings.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("bidding:%s:v%d", process.ID, process.Version)
	if asset, hit := s.cache.Get(ctx, key); hit && s.blobs.Exists(BucketExports, asset.Value) {
		obj, err := s.blobs.Sign(BucketExports, asset.Value)
		if err == nil {
			return exportResponse(obj, true), nil
		}
		s.logger.Warn("re-signing cached export failed", zap.String("key", key), zap.Error(err))
	}

	data, err := s.pdf.Render(BiddingDocument(process))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render bidding process")
	}
	path := fmt.Sprintf("biddings/%s/v%d.pdf", process.ID, process.Version)
	obj, err := s.blobs.Put(BucketExports, path, bytes.NewReader(data))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}
	_ = s.cache.Put(ctx, key, path, obj.URL)
	s.logger.Info("bidding process exported", zap.String("bidding_id", process.ID), zap.Int("version", process.Version), zap.Int64("bytes", obj.Size))
	return exportResponse(obj, false), nil
}

// BiddingDocument lays the process stages out for rendering.
func BiddingDocument(process *models.BiddingProcess) export.Document {
	doc := export.Document{Title: process.Title}
	if process.Protocol != "" {
		doc.Subtitle = "Processo nº " + process.Protocol
	}
	for i := 0; i <= process.CurrentStageIndex; i++ {
		stage, ok := process.StageAt(i)
		if !ok {
			continue
		}
		section := export.Section{
			Heading:  fmt.Sprintf("Etapa %d - %s", i+1, stage.Title),
			BodyHTML: stage.Body,
			ReadOnly: i < process.CurrentStageIndex,
		}
		if i == 0 {
			for _, sig := range stage.Signatures {
				section.Signatures = append(section.Signatures, signerLine(sig))
			}
		}
		doc.Sections = append(doc.Sections, section)
	}
	return doc
}

func signerLine(sig models.Signature) string {
	parts := []string{sig.Name}
	for _, p := range []string{sig.Role, sig.Sector} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " - ")
}

func exportResponse(obj *storage.Object, cached bool) *dto.ExportResponse {
	return &dto.ExportResponse{URL: obj.URL, Cached: cached, ExpiresAt: obj.ExpiresAt.Format(time.RFC3339)}
}
