package documents

import (
	"io"
	"time"
)

// Status is the processing state of a document. Only the external pipeline
// moves a document out of StatusProcessing.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusError      Status = "error"
)

// Document is a catalog row: one per ingested file.
type Document struct {
	ID          string
	OwnerID     string
	Name        string
	StoragePath string
	Size        int64
	MimeType    string
	Status      Status
	Vectorized  bool
	CreatedAt   time.Time
}

// FileInput is one submitted file. Open may be called more than once.
type FileInput struct {
	Name     string
	Size     int64
	MimeType string
	Open     func() (io.ReadCloser, error)
}

// Identity is the authenticated caller. Credential is forwarded verbatim as a
// bearer token to the pipeline and is never inspected.
type Identity struct {
	OwnerID    string
	Email      string
	Credential string
	RequestID  string
}

// DispatchOutcome records what happened when a document was handed to the
// pipeline.
type DispatchOutcome string

const (
	DispatchTriggered DispatchOutcome = "triggered"
	DispatchFailed    DispatchOutcome = "failed"
	// DispatchSkipped marks files that never got a catalog id.
	DispatchSkipped DispatchOutcome = "skipped"
)

// FileResult is the per-file outcome of an ingest.
type FileResult struct {
	Name        string
	Size        int64
	MimeType    string
	StoragePath string
	Locator     string
	DocumentID  *string
	Dispatch    DispatchOutcome
	Err         string
}

// Report is the result of Service.Ingest. Files holds one entry per accepted
// file in submission order.
type Report struct {
	Files     []FileResult
	Stored    int
	Attempted int
	Triggered int
}

// Success reports whether every file was stored and catalogued. Dispatch
// outcomes do not affect it.
func (r Report) Success() bool {
	if len(r.Files) == 0 {
		return false
	}
	for _, f := range r.Files {
		if f.DocumentID == nil {
			return false
		}
	}
	return true
}
