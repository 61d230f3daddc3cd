package bootstrap

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"docuchat-backend/internal/documents"
	"docuchat-backend/internal/pipeline"
	"docuchat-backend/internal/shared/config"
	"docuchat-backend/internal/shared/telemetry"
)

// stalledPipeline accepts connections and never answers until released.
func stalledPipeline(t *testing.T) *httptest.Server {
	t.Helper()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})
	return srv
}

func buildWithStalledPipeline(t *testing.T) (*App, *documents.MemoryRepo) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	t.Setenv("ENV", "dev")
	t.Cleanup(telemetry.SetOutput(io.Discard))

	srv := stalledPipeline(t)
	cfg := config.Defaults()
	cfg.LocalStoreDir = t.TempDir()
	cfg.Pipeline.NewDocumentURL = srv.URL + "/new"
	cfg.Pipeline.DeleteURL = srv.URL + "/delete"
	cfg.Pipeline.DispatchTimeout = 200 * time.Millisecond

	repo := documents.NewMemoryRepo()
	app, err := BuildWith(context.Background(), cfg, Options{Catalog: repo})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return app, repo
}

func TestPipelineClientHonoursDispatchTimeout(t *testing.T) {
	app, _ := buildWithStalledPipeline(t)

	done := make(chan error, 1)
	go func() {
		done <- app.Pipeline.DeleteDocument(context.Background(), pipeline.DeleteRequest{DocumentID: "doc-1", FilePath: "owner-1/1-YQ"})
	}()
	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected timeout error from stalled pipeline")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("delete still blocked after the dispatch timeout")
	}
}

func TestServiceDeleteReturnsWhenPipelineStalls(t *testing.T) {
	app, repo := buildWithStalledPipeline(t)
	ids, err := repo.Record(context.Background(), []documents.Document{{OwnerID: "owner-1", Name: "a.pdf", StoragePath: "owner-1/1-YS5wZGY"}})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- app.DocumentsService.Delete(context.Background(), documents.Identity{OwnerID: "owner-1", Credential: "tok"}, ids[0])
	}()
	select {
	case err := <-done:
		var dErr *documents.DeletionError
		if !errors.As(err, &dErr) {
			t.Fatalf("expected DeletionError, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("service delete still blocked after the dispatch timeout")
	}
}
