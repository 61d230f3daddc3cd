package documents

import (
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"docuchat-backend/internal/shared/server/middleware"
	"docuchat-backend/internal/shared/server/respond"
	"docuchat-backend/internal/shared/storage/object"
	"docuchat-backend/internal/shared/util"
)

const (
	defaultMaxRequestBytes = 50 << 20 // 50MB
	multipartMemory        = 32 << 20
)

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc *Service
	// MaxRequestBytes caps the whole multipart body.
	MaxRequestBytes int64
	// ExposeDetails includes underlying error text in 5xx responses.
	ExposeDetails bool
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, maxRequestBytes int64, exposeDetails bool) *Handler {
	if maxRequestBytes <= 0 {
		maxRequestBytes = defaultMaxRequestBytes
	}
	return &Handler{Svc: svc, MaxRequestBytes: maxRequestBytes, ExposeDetails: exposeDetails}
}

// RegisterRoutes attaches document routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/documents/upload", h.upload)
	rg.GET("/documents", h.list)
	rg.GET("/documents/:id", h.get)
	rg.DELETE("/documents/:id", h.delete)
	rg.GET("/files/*path", h.download)
}

func (h *Handler) upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxRequestBytes)
	if err := c.Request.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			respond.Error(c, http.StatusBadRequest, string(KindTooLarge), "request body exceeds the upload limit")
			return
		}
		respond.Error(c, http.StatusBadRequest, "invalid_request", "expected a multipart form")
		return
	}
	defer c.Request.MultipartForm.RemoveAll()

	headers := c.Request.MultipartForm.File["files"]
	if len(headers) == 0 {
		headers = c.Request.MultipartForm.File["file"]
	}
	c.Set("batchSize", len(headers))

	files := make([]FileInput, 0, len(headers))
	for _, fh := range headers {
		files = append(files, fileInput(fh))
	}

	report, err := h.Svc.Ingest(c.Request.Context(), h.identity(c), files)
	if err != nil {
		h.writeError(c, err)
		return
	}
	respond.JSON(c, http.StatusOK, toUploadResponse(report))
}

func fileInput(fh *multipart.FileHeader) FileInput {
	contentType := strings.TrimSpace(fh.Header.Get("Content-Type"))
	if contentType == "" || contentType == "application/octet-stream" {
		if byExt := mime.TypeByExtension(filepath.Ext(fh.Filename)); byExt != "" {
			contentType = byExt
		}
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return FileInput{
		Name:     fh.Filename,
		Size:     fh.Size,
		MimeType: contentType,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

func (h *Handler) list(c *gin.Context) {
	docs, err := h.Svc.List(c.Request.Context(), middleware.UserIDFromContext(c))
	if err != nil {
		h.writeError(c, err)
		return
	}

	resp := ListResponse{Documents: make([]DocumentResponse, 0, len(docs))}
	for _, doc := range docs {
		resp.Documents = append(resp.Documents, toResponse(doc))
	}
	respond.JSON(c, http.StatusOK, resp)
}

func (h *Handler) get(c *gin.Context) {
	documentID := c.Param("id")
	c.Set("documentId", documentID)

	doc, err := h.Svc.Get(c.Request.Context(), middleware.UserIDFromContext(c), documentID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	respond.JSON(c, http.StatusOK, toResponse(doc))
}

func (h *Handler) delete(c *gin.Context) {
	documentID := c.Param("id")
	c.Set("documentId", documentID)

	if err := h.Svc.Delete(c.Request.Context(), h.identity(c), documentID); err != nil {
		h.writeError(c, err)
		return
	}
	respond.JSON(c, http.StatusOK, DeleteResponse{Success: true, Message: "Document deletion requested"})
}

func (h *Handler) download(c *gin.Context) {
	path := strings.TrimPrefix(c.Param("path"), "/")

	rc, err := h.Svc.OpenBlob(c.Request.Context(), middleware.UserIDFromContext(c), path)
	if err != nil {
		h.writeError(c, err)
		return
	}
	defer rc.Close()

	contentType := "application/octet-stream"
	extra := map[string]string{}
	if decoded, err := DecodeStoragePathName(path); err == nil {
		name, err := util.SanitizeFileName(decoded)
		if err != nil {
			name = "download"
		}
		if byExt := mime.TypeByExtension(filepath.Ext(name)); byExt != "" {
			contentType = byExt
		}
		extra["Content-Disposition"] = mime.FormatMediaType("inline", map[string]string{"filename": name})
	}
	c.DataFromReader(http.StatusOK, -1, contentType, rc, extra)
}

func (h *Handler) identity(c *gin.Context) Identity {
	return Identity{
		OwnerID:    middleware.UserIDFromContext(c),
		Email:      middleware.UserEmailFromContext(c),
		Credential: middleware.CredentialFromContext(c),
		RequestID:  middleware.RequestIDFromContext(c),
	}
}

func (h *Handler) writeError(c *gin.Context, err error) {
	var (
		validationErr *ValidationError
		storageErr    *StorageError
		catalogErr    *CatalogError
		deletionErr   *DeletionError
	)
	switch {
	case errors.As(err, &validationErr):
		respond.Error(c, http.StatusBadRequest, string(validationErr.Kind), validationErr.Error())
	case errors.Is(err, ErrUnauthorized):
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "authentication required")
	case errors.Is(err, ErrInvalidInput):
		respond.Error(c, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, ErrNotFound), errors.Is(err, object.ErrNotFound), errors.Is(err, object.ErrInvalidKey):
		respond.Error(c, http.StatusNotFound, "not_found", "document not found")
	case errors.As(err, &deletionErr):
		respond.Error(c, http.StatusBadGateway, "deletion_failed", deletionErr.Error())
	case errors.As(err, &catalogErr):
		msg := "Failed to save document metadata"
		if len(catalogErr.Orphaned) > 0 {
			msg += " (orphaned blobs: " + strings.Join(catalogErr.Orphaned, ", ") + ")"
		}
		respond.Error(c, http.StatusInternalServerError, "catalog_failure", h.details(msg, catalogErr.Err))
	case errors.As(err, &storageErr):
		respond.Error(c, http.StatusInternalServerError, "storage_failure", h.details("Failed to upload file to storage", err))
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", h.details("unexpected server error", err))
	}
}

func (h *Handler) details(msg string, err error) string {
	if !h.ExposeDetails || err == nil {
		return msg
	}
	return msg + ": " + err.Error()
}
