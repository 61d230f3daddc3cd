// Package pipeline talks to the external document processing pipeline: it
// triggers ingestion of new documents and asks for documents to be retired.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"docuchat-backend/internal/shared/resilience"
)

const (
	opNewDocument = "pipeline.new_document"
	opDelete      = "pipeline.delete"

	maxErrorBody = 64 << 10
)

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// ErrNotConfigured is returned when the endpoint for an operation is unset.
var ErrNotConfigured = errors.New("pipeline endpoint not configured")

// RemoteError is a non-2xx response from the pipeline. Message is the
// remote-provided error text when the body carried one.
type RemoteError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
}

// NewDocumentRequest carries one document and its metadata to the pipeline.
type NewDocumentRequest struct {
	Credential   string
	UserID       string
	UserEmail    string
	FileName     string
	FileSize     int64
	FileType     string
	FilePath     string
	OriginalName string
	DocumentID   string
	UploadedAt   time.Time
	File         io.Reader
}

// DeleteRequest asks the pipeline to retire a document and its blob.
type DeleteRequest struct {
	Credential string `json:"-"`
	DocumentID string `json:"documentId"`
	FilePath   string `json:"filePath"`
}

// Config holds the pipeline endpoints.
type Config struct {
	NewDocumentURL string
	DeleteURL      string
	Timeout        time.Duration
}

// Client is an HTTP client for the pipeline endpoints.
type Client struct {
	cfg        Config
	httpClient *http.Client
	exec       *resilience.Executor
}

// NewClient builds a Client. A nil executor uses resilience.DefaultConfig.
func NewClient(cfg Config, httpClient *http.Client, exec *resilience.Executor) *Client {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	if exec == nil {
		exec = resilience.NewExecutor(resilience.DefaultConfig())
	}
	return &Client{cfg: cfg, httpClient: httpClient, exec: exec}
}

// NewDocument posts the document as multipart/form-data. The boundary is
// chosen by mime/multipart.
func (c *Client) NewDocument(ctx context.Context, req NewDocumentRequest) error {
	if strings.TrimSpace(c.cfg.NewDocumentURL) == "" {
		return fmt.Errorf("%s: %w", opNewDocument, ErrNotConfigured)
	}
	if req.File == nil {
		return fmt.Errorf("%s: file content is required", opNewDocument)
	}

	var body bytes.Buffer
	contentType, err := writeMultipart(&body, req)
	if err != nil {
		return fmt.Errorf("%s: build body: %w", opNewDocument, err)
	}
	payload := body.Bytes()

	return c.exec.Execute(ctx, opNewDocument, func(ctx context.Context) error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.NewDocumentURL, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		httpReq.Header.Set("Content-Type", contentType)
		setBearer(httpReq, req.Credential)
		return c.do(httpReq, opNewDocument)
	}, classify)
}

// DeleteDocument sends DELETE with a JSON body {documentId, filePath}.
func (c *Client) DeleteDocument(ctx context.Context, req DeleteRequest) error {
	if strings.TrimSpace(c.cfg.DeleteURL) == "" {
		return fmt.Errorf("%s: %w", opDelete, ErrNotConfigured)
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("%s: encode body: %w", opDelete, err)
	}

	return c.exec.Execute(ctx, opDelete, func(ctx context.Context) error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.cfg.DeleteURL, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		setBearer(httpReq, req.Credential)
		return c.do(httpReq, opDelete)
	}, classify)
}

func (c *Client) do(req *http.Request, op string) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &RemoteError{Op: op, StatusCode: resp.StatusCode, Message: errorMessage(raw, resp.Status)}
}

func writeMultipart(w io.Writer, req NewDocumentRequest) (string, error) {
	mw := multipart.NewWriter(w)

	part, err := mw.CreatePart(filePartHeader(req.FileName, req.FileType))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, req.File); err != nil {
		return "", fmt.Errorf("copy file: %w", err)
	}

	uploadedAt := req.UploadedAt
	if uploadedAt.IsZero() {
		uploadedAt = time.Now()
	}
	originalName := req.OriginalName
	if originalName == "" {
		originalName = req.FileName
	}
	fields := [][2]string{
		{"userId", req.UserID},
		{"userEmail", req.UserEmail},
		{"fileName", req.FileName},
		{"fileSize", strconv.FormatInt(req.FileSize, 10)},
		{"fileType", req.FileType},
		{"filePath", req.FilePath},
		{"originalFileName", originalName},
		{"documentId", req.DocumentID},
		{"uploadedAt", uploadedAt.UTC().Format(time.RFC3339Nano)},
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return "", err
		}
	}
	if err := mw.Close(); err != nil {
		return "", err
	}
	return mw.FormDataContentType(), nil
}

func filePartHeader(fileName, contentType string) textproto.MIMEHeader {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(fileName)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)
	return h
}

func setBearer(req *http.Request, credential string) {
	if credential = strings.TrimSpace(credential); credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}
}

// errorMessage extracts {"error": "..."} or {"message": "..."} from a body,
// falling back to the raw text and then to the HTTP status line.
func errorMessage(body []byte, status string) string {
	var parsed struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Error != "" {
			return parsed.Error
		}
		if parsed.Message != "" {
			return parsed.Message
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" && !strings.HasPrefix(text, "{") {
		return text
	}
	return status
}

// classify keeps 4xx responses from tripping the breaker: they describe a bad
// request, not an unhealthy pipeline.
func classify(err error) resilience.Classification {
	var remote *RemoteError
	if errors.As(err, &remote) {
		if remote.StatusCode >= 500 || remote.StatusCode == http.StatusTooManyRequests {
			return resilience.Classification{Retryable: true, RecordFailure: true}
		}
		return resilience.Classification{Retryable: false, RecordFailure: false}
	}
	if errors.Is(err, context.Canceled) {
		return resilience.Classification{Retryable: false, RecordFailure: false}
	}
	return resilience.Classification{Retryable: true, RecordFailure: true}
}
