package storage

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlobStorePutAndResolve(t *testing.T) {
	local, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	store := NewBlobStore(NewSignedURLSigner("secret", time.Hour), "http://files.local/api/v1").Mount("attachments", local)

	obj, err := store.Put("attachments", "chat/u1/memo.txt", strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), obj.Size)
	assert.True(t, strings.HasPrefix(obj.URL, "http://files.local/api/v1/files/"))
	assert.True(t, store.Exists("attachments", "chat/u1/memo.txt"))

	token := strings.TrimPrefix(obj.URL, "http://files.local/api/v1/files/")
	file, name, err := store.Resolve(token)
	require.NoError(t, err)
	defer file.Close()
	data, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, "chat/u1/memo.txt", name)

	_, err = store.Put("missing", "x", strings.NewReader(""))
	assert.Error(t, err)
}

func TestLocalStorageRejectsTraversal(t *testing.T) {
	local, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	_, err = local.Save("../escape.txt", []byte("x"))
	assert.ErrorIs(t, err, ErrInvalidPath)
	_, err = local.Save("", []byte("x"))
	assert.ErrorIs(t, err, ErrInvalidPath)
}
