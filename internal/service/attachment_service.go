package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/gestao-docs-api/internal/models"
	appErrors "github.com/noah-isme/gestao-docs-api/pkg/errors"
	"github.com/noah-isme/gestao-docs-api/pkg/storage"
)

// AttachmentConfig limits accepted uploads.
type AttachmentConfig struct {
	MaxBytes     int64
	AllowedMIMEs []string
}

// AttachmentService stores chat attachments and serves signed downloads.
type AttachmentService struct {
	blobs  *storage.BlobStore
	cfg    AttachmentConfig
	audit  auditLogger
	logger *zap.Logger
}

// NewAttachmentService constructs an AttachmentService.
func NewAttachmentService(blobs *storage.BlobStore, cfg AttachmentConfig, audit auditLogger, logger *zap.Logger) *AttachmentService {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 10 * 1024 * 1024
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttachmentService{blobs: blobs, cfg: cfg, audit: audit, logger: logger}
}

// Upload validates and stores a file, returning the attachment to put on a message.
func (s *AttachmentService) Upload(ctx context.Context, actor Actor, filename string, size int64, r io.Reader) (*models.Attachment, error) {
	name := sanitizeFilename(filename)
	if name == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file name is required")
	}
	if size > s.cfg.MaxBytes {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds %d bytes", s.cfg.MaxBytes))
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "could not read upload")
	}
	head = head[:n]
	mimeType := detectMIME(name, head)
	if !s.allowed(mimeType) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file type %s is not allowed", mimeType))
	}

	path := fmt.Sprintf("chat/%s/%s-%s", actor.UserID, uuid.NewString(), name)
	body := io.LimitReader(io.MultiReader(bytes.NewReader(head), r), s.cfg.MaxBytes+1)
	obj, err := s.blobs.Put(BucketAttachments, path, body)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store attachment")
	}
	if obj.Size > s.cfg.MaxBytes {
		if err := s.blobs.Delete(BucketAttachments, path); err != nil {
			s.logger.Warn("failed to remove oversized upload", zap.String("path", path), zap.Error(err))
		}
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds %d bytes", s.cfg.MaxBytes))
	}

	attachment := &models.Attachment{URL: obj.URL, Name: name, MimeType: mimeType}
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionAttachmentSave, BucketAttachments, path, nil, attachment)
	return attachment, nil
}

// Open resolves a signed token to the stored file.
func (s *AttachmentService) Open(token string) (*os.File, string, error) {
	file, path, err := s.blobs.Resolve(token)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "file not found")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "invalid or expired link")
	}
	return file, filepath.Base(path), nil
}

func (s *AttachmentService) allowed(mimeType string) bool {
	if len(s.cfg.AllowedMIMEs) == 0 {
		return true
	}
	for _, m := range s.cfg.AllowedMIMEs {
		if strings.EqualFold(m, mimeType) {
			return true
		}
	}
	return false
}

var officeTypes = map[string]string{
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".odt":  "application/vnd.oasis.opendocument.text",
	".ods":  "application/vnd.oasis.opendocument.spreadsheet",
}

// detectMIME prefers the extension so office formats are not reported as zip.
func detectMIME(name string, head []byte) string {
	ext := strings.ToLower(filepath.Ext(name))
	if office, ok := officeTypes[ext]; ok {
		return office
	}
	if byExt := mime.TypeByExtension(ext); byExt != "" {
		mediaType, _, err := mime.ParseMediaType(byExt)
		if err == nil {
			return mediaType
		}
	}
	mediaType, _, _ := mime.ParseMediaType(http.DetectContentType(head))
	return mediaType
}

func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r == ' ':
			return '_'
		case r < 32 || strings.ContainsRune(`/\:*?"<>|`, r):
			return -1
		}
		return r
	}, name)
}
