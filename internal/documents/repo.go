package documents

import "context"

// Catalog persists documents. The core only ever inserts and reads; status
// changes and deletes are made by the external pipeline.
type Catalog interface {
	// Record inserts docs as one all-or-nothing batch and returns the assigned
	// ids in the same order as docs.
	Record(ctx context.Context, docs []Document) ([]string, error)
	ListByOwner(ctx context.Context, ownerID string) ([]Document, error)
	GetByID(ctx context.Context, ownerID, documentID string) (Document, error)
}
