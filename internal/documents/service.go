package documents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"docuchat-backend/internal/pipeline"
	"docuchat-backend/internal/queue"
	"docuchat-backend/internal/shared/metrics"
	"docuchat-backend/internal/shared/telemetry"
)

// Service contains the ingest, listing and deletion logic for documents.
type Service struct {
	Policy     Policy
	Blobs      *BlobWriter
	Catalog    Catalog
	Dispatcher *Dispatcher
	Pipeline   Pipeline
	Now        func() time.Time
	// DeleteTimeout bounds the pipeline delete call. Zero uses the dispatch
	// default.
	DeleteTimeout time.Duration
}

// Ingest validates, stores, catalogues and dispatches a batch of files.
//
// Validation failures reject the batch before any effect. A file whose blob
// write fails is reported and skipped; if no file could be stored the call
// fails with a *StorageError. Stored files are catalogued in one batch; if that
// fails nothing is dispatched and a *CatalogError listing the orphaned blobs is
// returned. Dispatch failures are reported per file and never fail the call.
func (s *Service) Ingest(ctx context.Context, id Identity, files []FileInput) (Report, error) {
	if strings.TrimSpace(id.OwnerID) == "" {
		return Report{}, ErrUnauthorized
	}
	if err := s.Policy.ValidateBatch(files); err != nil {
		metrics.IncFileOutcome("rejected")
		metrics.IncBatch("rejected")
		return Report{}, err
	}

	submittedAt := s.now().UTC()
	report := Report{Files: make([]FileResult, len(files))}
	var (
		stored   []int
		firstErr error
	)
	for i, f := range files {
		res := &report.Files[i]
		res.Name = f.Name
		res.Size = f.Size
		res.MimeType = f.MimeType
		res.Dispatch = DispatchSkipped

		blob, err := s.storeFile(ctx, id.OwnerID, f)
		if err != nil {
			res.Err = err.Error()
			if firstErr == nil {
				firstErr = err
			}
			metrics.IncFileOutcome("storage_failed")
			telemetry.Warn("ingest.store.failed", map[string]any{
				"request_id": id.RequestID,
				"owner_id":   id.OwnerID,
				"file":       f.Name,
				"error":      err,
			})
			continue
		}
		res.StoragePath = blob.Path
		res.Locator = blob.Locator
		stored = append(stored, i)
		metrics.IncFileOutcome("stored")
	}
	report.Stored = len(stored)

	if len(stored) == 0 {
		metrics.IncBatch("storage_failed")
		var storageErr *StorageError
		if errors.As(firstErr, &storageErr) {
			return report, storageErr
		}
		return report, &StorageError{Op: "write", Err: firstErr}
	}

	docs := make([]Document, len(stored))
	for j, i := range stored {
		f := report.Files[i]
		docs[j] = Document{
			OwnerID:     id.OwnerID,
			Name:        f.Name,
			StoragePath: f.StoragePath,
			Size:        f.Size,
			MimeType:    f.MimeType,
			Status:      StatusProcessing,
			CreatedAt:   submittedAt,
		}
	}

	ids, err := s.Catalog.Record(ctx, docs)
	if err == nil && len(ids) != len(docs) {
		err = fmt.Errorf("catalog returned %d ids for %d rows", len(ids), len(docs))
	}
	if err != nil {
		orphaned := make([]string, len(docs))
		for j, doc := range docs {
			orphaned[j] = doc.StoragePath
			report.Files[stored[j]].Err = "catalog insert failed"
		}
		metrics.AddOrphanedBlobs(len(orphaned))
		metrics.IncBatch("catalog_failed")
		telemetry.Error("ingest.catalog.failed", map[string]any{
			"request_id": id.RequestID,
			"owner_id":   id.OwnerID,
			"orphaned":   orphaned,
			"error":      err,
		})
		return report, &CatalogError{Orphaned: orphaned, Err: err}
	}

	for j := range docs {
		docs[j].ID = ids[j]
		docID := ids[j]
		report.Files[stored[j]].DocumentID = &docID
	}

	results := s.Dispatcher.DispatchAll(ctx, docs, id)
	report.Attempted = len(results)
	for j, r := range results {
		res := &report.Files[stored[j]]
		res.Dispatch = r.Outcome
		if r.Outcome == DispatchTriggered {
			report.Triggered++
			continue
		}
		if r.Err != nil {
			res.Err = "processing dispatch failed: " + r.Err.Error()
		}
		telemetry.Warn("ingest.dispatch.failed", map[string]any{
			"request_id":  id.RequestID,
			"document_id": r.DocumentID,
			"error":       r.Err,
		})
	}

	result := "ok"
	if !report.Success() {
		result = "partial"
	}
	metrics.IncBatch(result)
	telemetry.Info("ingest.complete", map[string]any{
		"request_id": id.RequestID,
		"owner_id":   id.OwnerID,
		"files":      len(files),
		"stored":     report.Stored,
		"attempted":  report.Attempted,
		"triggered":  report.Triggered,
	})
	return report, nil
}

func (s *Service) storeFile(ctx context.Context, ownerID string, f FileInput) (StoredBlob, error) {
	if f.Open == nil {
		return StoredBlob{}, &StorageError{Op: "read", Err: errors.New("file has no content")}
	}
	rc, err := f.Open()
	if err != nil {
		return StoredBlob{}, &StorageError{Op: "read", Err: err}
	}
	defer rc.Close()
	return s.Blobs.Store(ctx, ownerID, f.Name, f.MimeType, f.Size, rc)
}

// List returns the owner's documents, newest first.
func (s *Service) List(ctx context.Context, ownerID string) ([]Document, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, ErrUnauthorized
	}
	return s.Catalog.ListByOwner(ctx, ownerID)
}

// Get returns one of the owner's documents.
func (s *Service) Get(ctx context.Context, ownerID, documentID string) (Document, error) {
	if strings.TrimSpace(ownerID) == "" {
		return Document{}, ErrUnauthorized
	}
	if strings.TrimSpace(documentID) == "" {
		return Document{}, ErrInvalidInput
	}
	return s.Catalog.GetByID(ctx, ownerID, documentID)
}

// Delete asks the pipeline to remove a document. The pipeline owns the catalog
// row and the blob; nothing is removed locally.
func (s *Service) Delete(ctx context.Context, id Identity, documentID string) error {
	doc, err := s.Get(ctx, id.OwnerID, documentID)
	if err != nil {
		return err
	}

	timeout := s.DeleteTimeout
	if timeout <= 0 {
		timeout = defaultDispatchTimeout
	}
	deleteCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err = s.Pipeline.DeleteDocument(deleteCtx, pipeline.DeleteRequest{
		Credential: id.Credential,
		DocumentID: doc.ID,
		FilePath:   doc.StoragePath,
	})
	if err != nil {
		metrics.IncDeletion("failed")
		delErr := &DeletionError{DocumentID: doc.ID, Err: err}
		var remote *pipeline.RemoteError
		if errors.As(err, &remote) {
			delErr.Message = remote.Message
		}
		telemetry.Warn("delete.failed", map[string]any{
			"request_id":  id.RequestID,
			"document_id": doc.ID,
			"error":       err,
		})
		return delErr
	}

	metrics.IncDeletion("requested")
	telemetry.Info("delete.requested", map[string]any{
		"request_id":  id.RequestID,
		"document_id": doc.ID,
		"path":        doc.StoragePath,
	})
	return nil
}

// Redispatch retries the pipeline hand-off for a queued document, reading the
// blob back from storage. Documents that are gone or no longer processing are
// skipped.
func (s *Service) Redispatch(ctx context.Context, msg queue.Message, credential string) error {
	doc, err := s.Catalog.GetByID(ctx, msg.OwnerID, msg.DocumentID)
	if errors.Is(err, ErrNotFound) {
		metrics.IncRedispatch("missing")
		return nil
	}
	if err != nil {
		return err
	}
	if doc.Status != StatusProcessing {
		metrics.IncRedispatch("settled")
		return nil
	}

	id := Identity{
		OwnerID:    msg.OwnerID,
		Email:      msg.OwnerEmail,
		Credential: credential,
		RequestID:  msg.RequestID,
	}
	if err := s.Dispatcher.Dispatch(ctx, doc, id); err != nil {
		metrics.IncRedispatch("failed")
		return err
	}
	metrics.IncRedispatch("triggered")
	return nil
}

// OpenBlob streams one of the owner's blobs. Paths outside the owner's prefix
// are reported as not found.
func (s *Service) OpenBlob(ctx context.Context, ownerID, path string) (io.ReadCloser, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, ErrUnauthorized
	}
	if !strings.HasPrefix(path, ownerID+"/") {
		return nil, ErrNotFound
	}
	return s.Blobs.Open(ctx, path)
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
