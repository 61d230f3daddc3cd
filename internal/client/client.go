// Package client talks to the document API on behalf of docctl.
package client

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
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"docuchat-backend/internal/documents"
	"docuchat-backend/internal/reconcile"
)

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Code       string
	Details    string
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s (%d): %s", e.Code, e.StatusCode, e.Details)
	}
	return fmt.Sprintf("%s (%d)", e.Code, e.StatusCode)
}

// Client calls the /api/v1 endpoints with a bearer token.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New builds a Client for baseURL, e.g. http://localhost:8080.
func New(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/") + "/api/v1",
		token:      strings.TrimSpace(token),
		httpClient: httpClient,
	}
}

// File is one local file to upload.
type File struct {
	Name    string
	Content io.Reader
}

// UploadPaths reads files from disk and uploads them as one batch.
func (c *Client) UploadPaths(ctx context.Context, paths []string) (documents.UploadResponse, error) {
	files := make([]File, 0, len(paths))
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return documents.UploadResponse{}, err
		}
		defer f.Close()
		files = append(files, File{Name: filepath.Base(p), Content: f})
	}
	return c.Upload(ctx, files)
}

// Upload submits files as one multipart batch.
func (c *Client) Upload(ctx context.Context, files []File) (documents.UploadResponse, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fileDisposition(f.Name))
		h.Set("Content-Type", "application/octet-stream")
		part, err := mw.CreatePart(h)
		if err != nil {
			return documents.UploadResponse{}, err
		}
		if _, err := io.Copy(part, f.Content); err != nil {
			return documents.UploadResponse{}, fmt.Errorf("read %s: %w", f.Name, err)
		}
	}
	if err := mw.Close(); err != nil {
		return documents.UploadResponse{}, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/documents/upload", &body)
	if err != nil {
		return documents.UploadResponse{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out documents.UploadResponse
	err = c.do(req, &out)
	return out, err
}

// List returns the caller's documents, newest first.
func (c *Client) List(ctx context.Context) ([]documents.DocumentResponse, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/documents", nil)
	if err != nil {
		return nil, err
	}
	var out documents.ListResponse
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return out.Documents, nil
}

// Get returns one document.
func (c *Client) Get(ctx context.Context, documentID string) (documents.DocumentResponse, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/documents/"+url.PathEscape(documentID), nil)
	if err != nil {
		return documents.DocumentResponse{}, err
	}
	var out documents.DocumentResponse
	err = c.do(req, &out)
	return out, err
}

// Delete asks the API to delete a document.
func (c *Client) Delete(ctx context.Context, documentID string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/documents/"+url.PathEscape(documentID), nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// Lister adapts the listing endpoint for reconcile.Watcher.
func (c *Client) Lister() reconcile.Lister {
	return reconcile.ListerFunc(func(ctx context.Context) ([]reconcile.Entry, error) {
		docs, err := c.List(ctx)
		if err != nil {
			return nil, err
		}
		entries := make([]reconcile.Entry, len(docs))
		for i, d := range docs {
			entries[i] = reconcile.Entry{ID: d.DocumentID, Name: d.Name, Status: string(d.Status)}
		}
		return entries, nil
	})
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Code: http.StatusText(resp.StatusCode)}
		var body struct {
			Error   string `json:"error"`
			Details string `json:"details"`
		}
		if json.Unmarshal(raw, &body) == nil && body.Error != "" {
			apiErr.Code = body.Error
			apiErr.Details = body.Details
		}
		return apiErr
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", req.Method, req.URL.Path, err)
	}
	return nil
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func fileDisposition(name string) string {
	return fmt.Sprintf(`form-data; name="files"; filename="%s"`, quoteEscaper.Replace(name))
}
