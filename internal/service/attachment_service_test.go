package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gestao-docs-api/internal/models"
	appErrors "github.com/noah-isme/gestao-docs-api/pkg/errors"
)

var pdfHeader = []byte("%PDF-1.4\n%âãÏÓ\n1 0 obj\n<<>>\nendobj\n")

func newAttachmentFixture(t *testing.T, maxBytes int64) (*AttachmentService, *auditStub) {
	t.Helper()
	audit := &auditStub{}
	svc := NewAttachmentService(newBlobStore(t), AttachmentConfig{
		MaxBytes:     maxBytes,
		AllowedMIMEs: []string{"application/pdf", "image/png", "application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
	}, audit, nil)
	return svc, audit
}

func TestAttachmentUploadAndOpen(t *testing.T) {
	svc, audit := newAttachmentFixture(t, 1024)

	att, err := svc.Upload(context.Background(), Actor{UserID: "u1"}, "Ofício final.pdf", int64(len(pdfHeader)), bytes.NewReader(pdfHeader))
	require.NoError(t, err)
	assert.Equal(t, "Ofício_final.pdf", att.Name)
	assert.Equal(t, "application/pdf", att.MimeType)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionAttachmentSave, audit.entries[0].Action)

	token := att.URL[strings.LastIndex(att.URL, "/")+1:]
	file, name, err := svc.Open(token)
	require.NoError(t, err)
	defer file.Close()
	data, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.Equal(t, pdfHeader, data)
	assert.True(t, strings.HasSuffix(name, "-Ofício_final.pdf"))
}

func TestAttachmentOfficeTypeByExtension(t *testing.T) {
	svc, _ := newAttachmentFixture(t, 1024)
	att, err := svc.Upload(context.Background(), Actor{UserID: "u1"}, "edital.docx", 4, strings.NewReader("PK\x03\x04"))
	require.NoError(t, err)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.wordprocessingml.document", att.MimeType)
}

func TestAttachmentRejections(t *testing.T) {
	svc, audit := newAttachmentFixture(t, 16)
	ctx := context.Background()

	_, err := svc.Upload(ctx, Actor{UserID: "u1"}, "big.pdf", 17, bytes.NewReader(pdfHeader))
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = svc.Upload(ctx, Actor{UserID: "u1"}, "lied.pdf", 4, bytes.NewReader(pdfHeader))
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = svc.Upload(ctx, Actor{UserID: "u1"}, "script.sh", 9, strings.NewReader("#!/bin/sh"))
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = svc.Upload(ctx, Actor{UserID: "u1"}, "", 1, strings.NewReader("x"))
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	assert.Empty(t, audit.entries)
}

func TestAttachmentOpenInvalidToken(t *testing.T) {
	svc, _ := newAttachmentFixture(t, 1024)
	_, _, err := svc.Open("attachments.1.abc.bad")
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
}
