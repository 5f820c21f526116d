package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignedURLSignerGenerateAndParse(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, expiresAt, err := signer.Generate("attachments", "chat/u1/file.pdf")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.False(t, expiresAt.IsZero())

	bucket, path, parsedExpiry, err := signer.Parse(token)
	require.NoError(t, err)
	require.Equal(t, "attachments", bucket)
	require.Equal(t, "chat/u1/file.pdf", path)
	require.WithinDuration(t, expiresAt, parsedExpiry, time.Second)
}

func TestSignedURLSignerRejectsTamperingAndExpiry(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, _, err := signer.Generate("exports", "biddings/p1.pdf")
	require.NoError(t, err)

	other := NewSignedURLSigner("other", time.Hour)
	_, _, _, err = other.Parse(token)
	require.Error(t, err)

	signer.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, _, _, err = signer.Parse(token)
	require.Error(t, err)

	_, _, _, err = signer.Parse("a.b.c")
	require.Error(t, err)
}
