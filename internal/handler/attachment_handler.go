package handler

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gestao-docs-api/internal/models"
	"github.com/noah-isme/gestao-docs-api/internal/service"
	appErrors "github.com/noah-isme/gestao-docs-api/pkg/errors"
	"github.com/noah-isme/gestao-docs-api/pkg/response"
)

type attachmentService interface {
	Upload(ctx context.Context, actor service.Actor, filename string, size int64, r io.Reader) (*models.Attachment, error)
	Open(token string) (*os.File, string, error)
}

// AttachmentHandler uploads chat attachments and serves signed downloads.
type AttachmentHandler struct {
	service attachmentService
}

// NewAttachmentHandler builds an AttachmentHandler.
func NewAttachmentHandler(service attachmentService) *AttachmentHandler {
	return &AttachmentHandler{service: service}
}

// Upload godoc
// @Summary Upload an attachment
// @Tags Attachments
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "File"
// @Success 201 {object} response.Envelope
// @Router /attachments [post]
func (h *AttachmentHandler) Upload(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file is required"))
		return
	}
	src, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file"))
		return
	}
	defer src.Close()

	attachment, err := h.service.Upload(c.Request.Context(), actor, fileHeader.Filename, fileHeader.Size, src)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, attachment)
}

// Download godoc
// @Summary Download a stored file via signed token
// @Tags Attachments
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Router /files/{token} [get]
func (h *AttachmentHandler) Download(c *gin.Context) {
	file, name, err := h.service.Open(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read file"))
		return
	}
	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", name))
	c.Header("Cache-Control", "private, max-age=300")
	c.DataFromReader(http.StatusOK, info.Size(), contentType, file, nil)
}
