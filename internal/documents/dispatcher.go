package documents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"docuchat-backend/internal/pipeline"
	"docuchat-backend/internal/queue"
	"docuchat-backend/internal/shared/metrics"
	"docuchat-backend/internal/shared/resilience"
	"docuchat-backend/internal/shared/telemetry"
)

const (
	defaultDispatchTimeout     = 30 * time.Second
	defaultDispatchConcurrency = 8
)

// Pipeline is the external processing pipeline.
type Pipeline interface {
	NewDocument(ctx context.Context, req pipeline.NewDocumentRequest) error
	DeleteDocument(ctx context.Context, req pipeline.DeleteRequest) error
}

// BlobReader reads stored blobs back by storage path.
type BlobReader interface {
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

// DispatcherOptions tunes a Dispatcher. Zero values pick defaults.
type DispatcherOptions struct {
	Timeout     time.Duration
	Concurrency int
	// Retry, when set, receives a message for every failed dispatch so a
	// worker can try again from storage.
	Retry queue.Client
}

// Dispatcher hands catalogued documents to the pipeline.
type Dispatcher struct {
	blobs       BlobReader
	pipeline    Pipeline
	timeout     time.Duration
	concurrency int
	retry       queue.Client
}

// DispatchResult is the outcome for one document.
type DispatchResult struct {
	DocumentID string
	Outcome    DispatchOutcome
	Err        error
}

func NewDispatcher(blobs BlobReader, p Pipeline, opts DispatcherOptions) *Dispatcher {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultDispatchTimeout
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultDispatchConcurrency
	}
	return &Dispatcher{
		blobs:       blobs,
		pipeline:    p,
		timeout:     opts.Timeout,
		concurrency: opts.Concurrency,
		retry:       opts.Retry,
	}
}

// DispatchAll dispatches every document concurrently and waits for all of
// them to settle. A failure never cancels the other dispatches. results[i]
// always belongs to docs[i].
//
// Dispatch outlives the caller's cancellation: once a document is catalogued
// the job is attempted even if the client has gone away.
func (d *Dispatcher) DispatchAll(ctx context.Context, docs []Document, id Identity) []DispatchResult {
	results := make([]DispatchResult, len(docs))
	detached := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for i, doc := range docs {
		g.Go(func() error {
			err := d.Dispatch(detached, doc, id)
			res := DispatchResult{DocumentID: doc.ID, Outcome: DispatchTriggered}
			if err != nil {
				res.Outcome = DispatchFailed
				res.Err = err
				d.enqueueRetry(detached, doc, id, err)
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Dispatch reads the document's blob back from storage and posts it to the
// pipeline, bounded by the dispatch timeout.
func (d *Dispatcher) Dispatch(ctx context.Context, doc Document, id Identity) (err error) {
	start := time.Now()
	defer func() {
		outcome := string(DispatchTriggered)
		if err != nil {
			outcome = string(DispatchFailed)
			if resilience.IsCircuitOpen(err) {
				outcome = "circuit_open"
			}
		}
		metrics.ObserveDispatch(outcome, time.Since(start))
	}()

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	rc, err := d.blobs.Open(ctx, doc.StoragePath)
	if err != nil {
		return err
	}
	defer rc.Close()

	uploadedAt := doc.CreatedAt
	if uploadedAt.IsZero() {
		uploadedAt = time.Now().UTC()
	}
	err = d.pipeline.NewDocument(ctx, pipeline.NewDocumentRequest{
		Credential:   id.Credential,
		UserID:       doc.OwnerID,
		UserEmail:    id.Email,
		FileName:     doc.Name,
		FileSize:     doc.Size,
		FileType:     doc.MimeType,
		FilePath:     doc.StoragePath,
		OriginalName: doc.Name,
		DocumentID:   doc.ID,
		UploadedAt:   uploadedAt,
		File:         rc,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("dispatch timed out after %s: %w", d.timeout, err)
		}
		return err
	}
	return nil
}

func (d *Dispatcher) enqueueRetry(ctx context.Context, doc Document, id Identity, cause error) {
	if d.retry == nil {
		return
	}
	msg := queue.Message{
		DocumentID: doc.ID,
		OwnerID:    doc.OwnerID,
		OwnerEmail: id.Email,
		RequestID:  id.RequestID,
		Reason:     cause.Error(),
		Attempt:    1,
		EnqueuedAt: time.Now().UTC().Format(time.RFC3339),
		Version:    queue.MessageVersion,
	}
	if err := d.retry.Send(ctx, msg); err != nil {
		telemetry.Error("dispatch.retry.enqueue_failed", map[string]any{
			"document_id": doc.ID,
			"request_id":  id.RequestID,
			"error":       err,
		})
		return
	}
	telemetry.Info("dispatch.retry.enqueued", map[string]any{
		"document_id": doc.ID,
		"request_id":  id.RequestID,
	})
}
