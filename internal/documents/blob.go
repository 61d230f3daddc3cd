package documents

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"docuchat-backend/internal/shared/storage/object"
)

// StoragePath derives the blob key for a file: {owner}/{epochMillis}-{name},
// with the name base64url-encoded so the key is transport safe whatever the
// display name contains.
func StoragePath(ownerID, name string, at time.Time) string {
	return fmt.Sprintf("%s/%d-%s", ownerID, at.UnixMilli(), base64.RawURLEncoding.EncodeToString([]byte(name)))
}

// DecodeStoragePathName recovers the display name embedded in a storage path.
func DecodeStoragePathName(path string) (string, error) {
	base := path[strings.LastIndex(path, "/")+1:]
	stamp, encoded, ok := strings.Cut(base, "-")
	if !ok {
		return "", fmt.Errorf("storage path %q: missing timestamp", path)
	}
	if _, err := strconv.ParseInt(stamp, 10, 64); err != nil {
		return "", fmt.Errorf("storage path %q: bad timestamp: %w", path, err)
	}
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("storage path %q: %w", path, err)
	}
	return string(raw), nil
}

// StoredBlob is a successfully written blob.
type StoredBlob struct {
	Path    string
	Locator string
	Size    int64
}

// BlobWriter stores submitted files in the object store.
type BlobWriter struct {
	store object.Store
	now   func() time.Time

	mu   sync.Mutex
	last int64
}

// NewBlobWriter builds a BlobWriter. now may be nil.
func NewBlobWriter(store object.Store, now func() time.Time) *BlobWriter {
	if now == nil {
		now = time.Now
	}
	return &BlobWriter{store: store, now: now}
}

// Store writes r under a fresh storage path and returns its locator. It never
// replaces an existing object.
func (w *BlobWriter) Store(ctx context.Context, ownerID, name, contentType string, size int64, r io.Reader) (StoredBlob, error) {
	path := StoragePath(ownerID, name, w.stamp())
	written, err := w.store.Put(ctx, path, contentType, size, r)
	if err != nil {
		return StoredBlob{}, &StorageError{Op: "write", Path: path, Err: err}
	}
	locator, err := w.store.Locate(ctx, path)
	if err != nil {
		return StoredBlob{}, &StorageError{Op: "locate", Path: path, Err: err}
	}
	return StoredBlob{Path: path, Locator: locator, Size: written}, nil
}

// Open reads a stored blob back.
func (w *BlobWriter) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	rc, err := w.store.Open(ctx, path)
	if err != nil {
		return nil, &StorageError{Op: "read", Path: path, Err: err}
	}
	return rc, nil
}

// Locate returns a locator for an existing path.
func (w *BlobWriter) Locate(ctx context.Context, path string) (string, error) {
	return w.store.Locate(ctx, path)
}

// stamp returns a strictly increasing time so two writes from this process
// never share a millisecond.
func (w *BlobWriter) stamp() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	ms := w.now().UnixMilli()
	if ms <= w.last {
		ms = w.last + 1
	}
	w.last = ms
	return time.UnixMilli(ms)
}
