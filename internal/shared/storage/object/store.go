package object

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

var (
	// ErrExists is returned by Put when the key is already occupied.
	ErrExists = errors.New("object already exists")
	// ErrNotFound is returned by Open when no object lives at the key.
	ErrNotFound = errors.New("object not found")
	// ErrInvalidKey is returned for keys that are empty or escape the store root.
	ErrInvalidKey = errors.New("invalid storage key")
)

// Store is a flat key/blob store. Keys are slash-separated paths.
type Store interface {
	// Put writes r under key and never replaces an existing object. size may
	// be -1 when unknown.
	Put(ctx context.Context, key, contentType string, size int64, r io.Reader) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Locate returns a URL a client can use to retrieve the object.
	Locate(ctx context.Context, key string) (string, error)
	// Check verifies the backing store is reachable.
	Check(ctx context.Context) error
}

// CleanKey validates key and returns its canonical form.
func CleanKey(key string) (string, error) {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return "", ErrInvalidKey
	}
	clean := path.Clean("/" + trimmed)[1:]
	if clean == "" || clean != strings.TrimPrefix(trimmed, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return clean, nil
}
