package documents

import (
	"fmt"
	"time"
)

// DocumentResponse is the outward-facing representation of a catalog row.
type DocumentResponse struct {
	DocumentID string    `json:"documentId"`
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	Size       int64     `json:"size"`
	MimeType   string    `json:"type"`
	Status     Status    `json:"status"`
	Vectorized bool      `json:"vectorized"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ListResponse wraps an owner's listing.
type ListResponse struct {
	Documents []DocumentResponse `json:"documents"`
}

// UploadedFile is one entry of an upload response.
type UploadedFile struct {
	Name         string          `json:"name"`
	Size         int64           `json:"size"`
	Type         string          `json:"type"`
	URL          string          `json:"url,omitempty"`
	Path         string          `json:"path,omitempty"`
	OriginalName string          `json:"originalName"`
	DocumentID   *string         `json:"documentId"`
	Dispatch     DispatchOutcome `json:"dispatch"`
	Error        string          `json:"error,omitempty"`
}

// UploadResponse is returned by a completed submission.
type UploadResponse struct {
	Success       bool           `json:"success"`
	Message       string         `json:"message"`
	Files         []UploadedFile `json:"files"`
	JobsTriggered int            `json:"jobsTriggered"`
	JobsAttempted int            `json:"jobsAttempted"`
}

// DeleteResponse acknowledges a forwarded deletion.
type DeleteResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func toResponse(doc Document) DocumentResponse {
	return DocumentResponse{
		DocumentID: doc.ID,
		Name:       doc.Name,
		Path:       doc.StoragePath,
		Size:       doc.Size,
		MimeType:   doc.MimeType,
		Status:     doc.Status,
		Vectorized: doc.Vectorized,
		CreatedAt:  doc.CreatedAt,
	}
}

func toUploadResponse(r Report) UploadResponse {
	files := make([]UploadedFile, 0, len(r.Files))
	for _, f := range r.Files {
		files = append(files, UploadedFile{
			Name:         f.Name,
			Size:         f.Size,
			Type:         f.MimeType,
			URL:          f.Locator,
			Path:         f.StoragePath,
			OriginalName: f.Name,
			DocumentID:   f.DocumentID,
			Dispatch:     f.Dispatch,
			Error:        f.Err,
		})
	}

	msg := fmt.Sprintf("Successfully uploaded %d document(s)", len(files))
	if !r.Success() {
		catalogued := 0
		for _, f := range r.Files {
			if f.DocumentID != nil {
				catalogued++
			}
		}
		msg = fmt.Sprintf("Uploaded %d of %d document(s)", catalogued, len(files))
	}
	return UploadResponse{
		Success:       r.Success(),
		Message:       msg,
		Files:         files,
		JobsTriggered: r.Triggered,
		JobsAttempted: r.Attempted,
	}
}
