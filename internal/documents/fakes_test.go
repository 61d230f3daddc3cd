package documents

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"

	"docuchat-backend/internal/pipeline"
	"docuchat-backend/internal/queue"
	"docuchat-backend/internal/shared/storage/object"
)

type receivedDocument struct {
	Request pipeline.NewDocumentRequest
	Body    []byte
}

// fakePipeline records calls. Documents whose name appears in failNames get
// failErr back. onDelete runs in place of the remote delete when set.
type fakePipeline struct {
	mu        sync.Mutex
	received  []receivedDocument
	deletes   []pipeline.DeleteRequest
	failNames map[string]bool
	failErr   error
	deleteErr error
	onDelete  func(context.Context, pipeline.DeleteRequest) error
	ctxErrs   []error
}

func (p *fakePipeline) NewDocument(ctx context.Context, req pipeline.NewDocumentRequest) error {
	body, err := io.ReadAll(req.File)
	if err != nil {
		return err
	}
	req.File = nil

	p.mu.Lock()
	defer p.mu.Unlock()
	p.received = append(p.received, receivedDocument{Request: req, Body: body})
	p.ctxErrs = append(p.ctxErrs, ctx.Err())
	if p.failNames[req.FileName] {
		if p.failErr != nil {
			return p.failErr
		}
		return errors.New("pipeline unavailable")
	}
	return nil
}

func (p *fakePipeline) DeleteDocument(ctx context.Context, req pipeline.DeleteRequest) error {
	p.mu.Lock()
	p.deletes = append(p.deletes, req)
	onDelete := p.onDelete
	p.mu.Unlock()

	if p.deleteErr != nil {
		return p.deleteErr
	}
	if onDelete != nil {
		return onDelete(ctx, req)
	}
	return nil
}

func (p *fakePipeline) calls() []receivedDocument {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]receivedDocument, len(p.received))
	copy(out, p.received)
	return out
}

// countingStore wraps a store, counts writes and fails Put for keys whose
// decoded name is in failNames.
type countingStore struct {
	object.Store
	mu        sync.Mutex
	puts      int
	failNames map[string]bool
}

func (s *countingStore) Put(ctx context.Context, key, contentType string, size int64, r io.Reader) (int64, error) {
	s.mu.Lock()
	s.puts++
	s.mu.Unlock()
	if name, err := DecodeStoragePathName(key); err == nil && s.failNames[name] {
		return 0, errors.New("disk full")
	}
	return s.Store.Put(ctx, key, contentType, size, r)
}

func (s *countingStore) putCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}

type recordingQueue struct {
	mu   sync.Mutex
	msgs []queue.Message
	err  error
}

func (q *recordingQueue) Send(ctx context.Context, msg queue.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.msgs = append(q.msgs, msg)
	return nil
}

func memFile(name, mimeType string, data []byte) FileInput {
	return FileInput{
		Name:     name,
		Size:     int64(len(data)),
		MimeType: mimeType,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

func textFile(name, content string) FileInput {
	return memFile(name, "text/plain", []byte(content))
}
