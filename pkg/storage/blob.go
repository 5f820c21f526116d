package storage

import (
	"fmt"
	"io"
	"os"
	"time"
)

// Object describes a stored blob and its publicly resolvable URL.
type Object struct {
	Bucket    string    `json:"bucket"`
	Path      string    `json:"path"`
	URL       string    `json:"url"`
	Size      int64     `json:"size"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// BlobStore groups local buckets behind signed download URLs.
type BlobStore struct {
	buckets map[string]*LocalStorage
	signer  *SignedURLSigner
	baseURL string
}

// NewBlobStore constructs a store serving signed URLs under baseURL + "/files/".
func NewBlobStore(signer *SignedURLSigner, baseURL string) *BlobStore {
	return &BlobStore{buckets: make(map[string]*LocalStorage), signer: signer, baseURL: baseURL}
}

// Mount registers a bucket backed by storage.
func (b *BlobStore) Mount(bucket string, storage *LocalStorage) *BlobStore {
	b.buckets[bucket] = storage
	return b
}

// Put stores the stream and returns a signed URL for it.
func (b *BlobStore) Put(bucket, path string, r io.Reader) (*Object, error) {
	store, ok := b.buckets[bucket]
	if !ok {
		return nil, fmt.Errorf("unknown bucket %q", bucket)
	}
	size, err := store.SaveStream(path, r)
	if err != nil {
		return nil, err
	}
	obj, err := b.Sign(bucket, path)
	if err != nil {
		return nil, err
	}
	obj.Size = size
	return obj, nil
}

// Sign issues a fresh signed URL for an existing object.
func (b *BlobStore) Sign(bucket, path string) (*Object, error) {
	token, expiresAt, err := b.signer.Generate(bucket, path)
	if err != nil {
		return nil, fmt.Errorf("sign object: %w", err)
	}
	return &Object{
		Bucket:    bucket,
		Path:      path,
		URL:       fmt.Sprintf("%s/files/%s", b.baseURL, token),
		ExpiresAt: expiresAt,
	}, nil
}

// Exists reports whether the object is stored.
func (b *BlobStore) Exists(bucket, path string) bool {
	store, ok := b.buckets[bucket]
	return ok && store.Exists(path)
}

// Delete removes an object.
func (b *BlobStore) Delete(bucket, path string) error {
	store, ok := b.buckets[bucket]
	if !ok {
		return fmt.Errorf("unknown bucket %q", bucket)
	}
	return store.Delete(path)
}

// Resolve validates a token and opens the referenced object.
func (b *BlobStore) Resolve(token string) (*os.File, string, error) {
	bucket, path, _, err := b.signer.Parse(token)
	if err != nil {
		return nil, "", err
	}
	store, ok := b.buckets[bucket]
	if !ok {
		return nil, "", fmt.Errorf("unknown bucket %q", bucket)
	}
	file, err := store.Open(path)
	if err != nil {
		return nil, "", err
	}
	return file, path, nil
}
