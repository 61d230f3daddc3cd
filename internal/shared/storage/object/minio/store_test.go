package minio

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"

	"docuchat-backend/internal/shared/storage/object"
)

type recordingServer struct {
	mu      sync.Mutex
	methods []string
}

func (r *recordingServer) record(method string) {
	r.mu.Lock()
	r.methods = append(r.methods, method)
	r.mu.Unlock()
}

func (r *recordingServer) seen(method string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.methods {
		if m == method {
			return true
		}
	}
	return false
}

func newTestStore(t *testing.T, handler http.HandlerFunc) *Store {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	store, err := New(Options{
		Endpoint:   u.Host,
		AccessKey:  "key",
		SecretKey:  "secret",
		Bucket:     "docs",
		Region:     "us-east-1",
		LocatorTTL: time.Minute,
	})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func TestPutRefusesExistingKey(t *testing.T) {
	rec := &recordingServer{}
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		rec.record(r.Method)
		if r.Method == http.MethodHead {
			w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
			w.Header().Set("ETag", `"abc"`)
			w.Header().Set("Content-Length", "3")
			w.Header().Set("Content-Type", "application/pdf")
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	_, err := store.Put(context.Background(), "owner-1/1-YQ", "application/pdf", 3, bytes.NewReader([]byte("abc")))
	if !errors.Is(err, object.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	if rec.seen(http.MethodPut) {
		t.Fatalf("store must not upload over an existing key")
	}
}

func TestOpenMissingKey(t *testing.T) {
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message><Key>owner-1/missing</Key><BucketName>docs</BucketName></Error>`))
	})

	_, err := store.Open(context.Background(), "owner-1/missing")
	if !errors.Is(err, object.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLocatePresigns(t *testing.T) {
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	got, err := store.Locate(context.Background(), "owner-1/1-YQ")
	if err != nil {
		t.Fatalf("locate: %v", err)
	}
	if !strings.Contains(got, "/docs/owner-1/1-YQ") || !strings.Contains(got, "X-Amz-Signature=") {
		t.Fatalf("unexpected locator %q", got)
	}
}

func TestIsNoSuchKey(t *testing.T) {
	if !isNoSuchKey(minio.ErrorResponse{Code: "NoSuchKey"}) {
		t.Fatalf("expected NoSuchKey to match")
	}
	if isNoSuchKey(minio.ErrorResponse{Code: "AccessDenied", StatusCode: http.StatusForbidden}) {
		t.Fatalf("expected AccessDenied not to match")
	}
}
