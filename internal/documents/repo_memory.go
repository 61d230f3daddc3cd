package documents

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo is an in-memory Catalog for dev and tests. Its SetStatus and
// Remove methods stand in for the external pipeline.
type MemoryRepo struct {
	mu   sync.RWMutex
	data map[string][]Document // ownerId -> documents
	now  func() time.Time
	fail error
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		data: make(map[string][]Document),
		now:  time.Now,
	}
}

// FailNextRecord makes the next Record call fail with err.
func (r *MemoryRepo) FailNextRecord(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = err
}

// Record assigns ids and stores the batch.
func (r *MemoryRepo) Record(ctx context.Context, docs []Document) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		err := r.fail
		r.fail = nil
		return nil, err
	}

	ids := make([]string, len(docs))
	now := r.now().UTC()
	for i, doc := range docs {
		doc.ID = uuid.NewString()
		if doc.Status == "" {
			doc.Status = StatusProcessing
		}
		// Later rows in a batch sort as newer.
		doc.CreatedAt = now.Add(time.Duration(i) * time.Microsecond)
		r.data[doc.OwnerID] = append(r.data[doc.OwnerID], doc)
		ids[i] = doc.ID
	}
	return ids, nil
}

// ListByOwner returns an owner's documents, newest first.
func (r *MemoryRepo) ListByOwner(ctx context.Context, ownerID string) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	docs := make([]Document, len(r.data[ownerID]))
	copy(docs, r.data[ownerID])
	r.mu.RUnlock()

	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].CreatedAt.After(docs[j].CreatedAt)
	})
	return docs, nil
}

// GetByID returns a document by ID for an owner.
func (r *MemoryRepo) GetByID(ctx context.Context, ownerID, documentID string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, doc := range r.data[ownerID] {
		if doc.ID == documentID {
			return doc, nil
		}
	}
	return Document{}, ErrNotFound
}

// SetStatus updates a document's status the way the pipeline would.
func (r *MemoryRepo) SetStatus(documentID string, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for owner, docs := range r.data {
		for i := range docs {
			if docs[i].ID == documentID {
				docs[i].Status = status
				docs[i].Vectorized = status == StatusReady
				r.data[owner] = docs
				return nil
			}
		}
	}
	return ErrNotFound
}

// Remove deletes a document the way the pipeline's delete step would.
func (r *MemoryRepo) Remove(documentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for owner, docs := range r.data {
		for i := range docs {
			if docs[i].ID == documentID {
				r.data[owner] = append(docs[:i:i], docs[i+1:]...)
				return nil
			}
		}
	}
	return ErrNotFound
}

var _ Catalog = (*MemoryRepo)(nil)
