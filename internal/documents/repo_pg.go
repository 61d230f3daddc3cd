package documents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PGRepo implements Catalog using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const documentColumns = `id, owner_id, name, storage_path, size_bytes, mime_type, status, vectorized, created_at`

// Record inserts every row in one transaction. Each insert returns its id so
// the result order always matches the input order. created_at uses
// clock_timestamp() so later rows of a batch list as newer.
func (r *PGRepo) Record(ctx context.Context, docs []Document) (ids []string, err error) {
	const query = `
INSERT INTO documents (owner_id, name, storage_path, size_bytes, mime_type, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, clock_timestamp())
RETURNING id`

	if len(docs) == 0 {
		return nil, nil
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	ids = make([]string, 0, len(docs))
	for i, doc := range docs {
		status := doc.Status
		if status == "" {
			status = StatusProcessing
		}
		var id string
		if err := tx.QueryRowContext(ctx, query,
			doc.OwnerID,
			doc.Name,
			doc.StoragePath,
			doc.Size,
			doc.MimeType,
			string(status),
		).Scan(&id); err != nil {
			return nil, fmt.Errorf("insert row %d: %w", i, err)
		}
		ids = append(ids, id)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return ids, nil
}

// ListByOwner lists an owner's documents, newest first.
func (r *PGRepo) ListByOwner(ctx context.Context, ownerID string) ([]Document, error) {
	query := `
SELECT ` + documentColumns + `
FROM documents
WHERE owner_id = $1
ORDER BY created_at DESC, id DESC`

	rows, err := r.DB.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// GetByID fetches a document by ID for an owner.
func (r *PGRepo) GetByID(ctx context.Context, ownerID, documentID string) (Document, error) {
	query := `
SELECT ` + documentColumns + `
FROM documents
WHERE owner_id = $1 AND id::text = $2
LIMIT 1`

	doc, err := scanDocument(r.DB.QueryRowContext(ctx, query, ownerID, documentID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	return doc, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (Document, error) {
	var doc Document
	var status sql.NullString
	var mimeType sql.NullString
	var vectorized sql.NullBool
	if err := row.Scan(
		&doc.ID,
		&doc.OwnerID,
		&doc.Name,
		&doc.StoragePath,
		&doc.Size,
		&mimeType,
		&status,
		&vectorized,
		&doc.CreatedAt,
	); err != nil {
		return Document{}, err
	}
	doc.MimeType = mimeType.String
	doc.Status = StatusProcessing
	if status.Valid && status.String != "" {
		doc.Status = Status(status.String)
	}
	doc.Vectorized = vectorized.Valid && vectorized.Bool
	return doc, nil
}

var _ Catalog = (*PGRepo)(nil)
