package documents

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound     = errors.New("document not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("missing identity")
)

// ValidationKind is the machine-readable reason a batch was rejected.
type ValidationKind string

const (
	KindEmptyBatch      ValidationKind = "empty_batch"
	KindUnsupportedType ValidationKind = "unsupported_type"
	KindTooLarge        ValidationKind = "too_large"
)

// ValidationError rejects a whole batch before anything is written.
type ValidationError struct {
	Kind   ValidationKind
	File   string
	Detail string
}

func (e *ValidationError) Error() string {
	if e.File == "" {
		return e.Detail
	}
	return fmt.Sprintf("%s: %s", e.File, e.Detail)
}

// StorageError is a failed blob write or read.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// CatalogError is a failed catalog batch. Orphaned lists the blobs that were
// stored but have no catalog row.
type CatalogError struct {
	Orphaned []string
	Err      error
}

func (e *CatalogError) Error() string {
	msg := fmt.Sprintf("catalog insert failed: %v", e.Err)
	if len(e.Orphaned) > 0 {
		msg += fmt.Sprintf(" (orphaned blobs: %s)", strings.Join(e.Orphaned, ", "))
	}
	return msg
}

func (e *CatalogError) Unwrap() error { return e.Err }

// DeletionError is a failed delete request. Message is the pipeline's own
// error text when it provided one.
type DeletionError struct {
	DocumentID string
	Message    string
	Err        error
}

func (e *DeletionError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "failed to delete document"
}

func (e *DeletionError) Unwrap() error { return e.Err }
