package documents

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"docuchat-backend/internal/pipeline"
	"docuchat-backend/internal/queue"
	"docuchat-backend/internal/shared/storage/object/local"
	"docuchat-backend/internal/shared/telemetry"
)

type serviceFixture struct {
	svc      *Service
	repo     *MemoryRepo
	store    *countingStore
	pipeline *fakePipeline
	retry    *recordingQueue
	dir      string
}

func newServiceFixture(t *testing.T, now func() time.Time) *serviceFixture {
	t.Helper()
	restore := telemetry.SetOutput(&bytes.Buffer{})
	t.Cleanup(restore)

	dir := t.TempDir()
	store := &countingStore{Store: local.New(dir, "http://localhost:8080/api/v1/files")}
	blobs := NewBlobWriter(store, now)
	repo := NewMemoryRepo()
	p := &fakePipeline{}
	retry := &recordingQueue{}

	return &serviceFixture{
		svc: &Service{
			Policy:     DefaultPolicy(),
			Blobs:      blobs,
			Catalog:    repo,
			Dispatcher: NewDispatcher(blobs, p, DispatcherOptions{Timeout: 5 * time.Second, Retry: retry}),
			Pipeline:   p,
		},
		repo:     repo,
		store:    store,
		pipeline: p,
		retry:    retry,
		dir:      dir,
	}
}

func testIdentity() Identity {
	return Identity{OwnerID: "owner-1", Email: "owner@example.com", Credential: "tok-123", RequestID: "req-1"}
}

func TestIngestStoresCataloguesAndDispatches(t *testing.T) {
	f := newServiceFixture(t, nil)
	content := bytes.Repeat([]byte("a"), 2<<20)

	report, err := f.svc.Ingest(context.Background(), testIdentity(), []FileInput{memFile("report.pdf", "application/pdf", content)})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !report.Success() || report.Stored != 1 || report.Attempted != 1 || report.Triggered != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}

	res := report.Files[0]
	if res.DocumentID == nil || res.Dispatch != DispatchTriggered {
		t.Fatalf("unexpected file result: %+v", res)
	}

	doc, err := f.repo.GetByID(context.Background(), "owner-1", *res.DocumentID)
	if err != nil {
		t.Fatalf("catalog lookup: %v", err)
	}
	if doc.Status != StatusProcessing || doc.StoragePath != res.StoragePath || doc.Size != int64(len(content)) {
		t.Fatalf("unexpected catalog row: %+v", doc)
	}

	calls := f.pipeline.calls()
	if len(calls) != 1 {
		t.Fatalf("expected one dispatch, got %d", len(calls))
	}
	got := calls[0]
	if !bytes.Equal(got.Body, content) {
		t.Fatalf("pipeline received %d bytes, want %d", len(got.Body), len(content))
	}
	if got.Request.DocumentID != doc.ID || got.Request.FilePath != doc.StoragePath {
		t.Fatalf("dispatch metadata mismatch: %+v", got.Request)
	}
	if got.Request.Credential != "tok-123" || got.Request.UserEmail != "owner@example.com" || got.Request.UserID != "owner-1" {
		t.Fatalf("identity not forwarded: %+v", got.Request)
	}
	if got.Request.UploadedAt.IsZero() {
		t.Fatalf("expected uploadedAt to be set")
	}
	if res.Locator != "http://localhost:8080/api/v1/files/"+res.StoragePath {
		t.Fatalf("unexpected locator %q", res.Locator)
	}
}

func TestIngestRejectsUnsupportedTypeWithoutEffects(t *testing.T) {
	f := newServiceFixture(t, nil)

	_, err := f.svc.Ingest(context.Background(), testIdentity(), []FileInput{
		textFile("notes.txt", "ok"),
		memFile("setup.exe", "application/octet-stream", []byte("MZ")),
	})
	var vErr *ValidationError
	if !errors.As(err, &vErr) || vErr.Kind != KindUnsupportedType {
		t.Fatalf("expected unsupported_type, got %v", err)
	}
	if f.store.putCount() != 0 {
		t.Fatalf("expected no storage writes, got %d", f.store.putCount())
	}
	docs, _ := f.repo.ListByOwner(context.Background(), "owner-1")
	if len(docs) != 0 {
		t.Fatalf("expected empty catalog, got %d rows", len(docs))
	}
	if len(f.pipeline.calls()) != 0 {
		t.Fatalf("expected no dispatch")
	}
	entries, _ := os.ReadDir(f.dir)
	if len(entries) != 0 {
		t.Fatalf("expected empty store dir, got %d entries", len(entries))
	}
}

func TestIngestRejectsEmptyBatch(t *testing.T) {
	f := newServiceFixture(t, nil)

	_, err := f.svc.Ingest(context.Background(), testIdentity(), nil)
	var vErr *ValidationError
	if !errors.As(err, &vErr) || vErr.Kind != KindEmptyBatch {
		t.Fatalf("expected empty_batch, got %v", err)
	}
}

func TestIngestRequiresOwner(t *testing.T) {
	f := newServiceFixture(t, nil)

	_, err := f.svc.Ingest(context.Background(), Identity{}, []FileInput{textFile("a.txt", "a")})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestIngestSameNameSameInstantGetsDistinctPaths(t *testing.T) {
	fixed := time.UnixMilli(1700000000000)
	f := newServiceFixture(t, func() time.Time { return fixed })

	report, err := f.svc.Ingest(context.Background(), testIdentity(), []FileInput{
		textFile("same.txt", "one"),
		textFile("same.txt", "two"),
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	a, b := report.Files[0], report.Files[1]
	if a.StoragePath == b.StoragePath {
		t.Fatalf("expected distinct paths, both %q", a.StoragePath)
	}
	if *a.DocumentID == *b.DocumentID {
		t.Fatalf("expected distinct ids")
	}
	if len(f.pipeline.calls()) != 2 {
		t.Fatalf("expected two dispatches")
	}
}

func TestIngestCatalogFailureSkipsDispatch(t *testing.T) {
	f := newServiceFixture(t, nil)
	f.repo.FailNextRecord(errors.New("connection reset"))

	report, err := f.svc.Ingest(context.Background(), testIdentity(), []FileInput{
		textFile("a.txt", "a"),
		textFile("b.txt", "b"),
	})
	var cErr *CatalogError
	if !errors.As(err, &cErr) {
		t.Fatalf("expected CatalogError, got %v", err)
	}
	if len(cErr.Orphaned) != 2 {
		t.Fatalf("expected two orphaned paths, got %v", cErr.Orphaned)
	}
	for _, p := range cErr.Orphaned {
		if _, err := os.Stat(filepath.Join(f.dir, filepath.FromSlash(p))); err != nil {
			t.Fatalf("orphaned blob %q should still exist: %v", p, err)
		}
	}
	if len(f.pipeline.calls()) != 0 {
		t.Fatalf("expected no dispatch after catalog failure")
	}
	for _, res := range report.Files {
		if res.DocumentID != nil || res.Dispatch != DispatchSkipped {
			t.Fatalf("unexpected result after catalog failure: %+v", res)
		}
	}
}

func TestIngestDispatchFailureDoesNotFailBatch(t *testing.T) {
	f := newServiceFixture(t, nil)
	f.pipeline.failNames = map[string]bool{"b.txt": true}

	report, err := f.svc.Ingest(context.Background(), testIdentity(), []FileInput{
		textFile("a.txt", "a"),
		textFile("b.txt", "b"),
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !report.Success() {
		t.Fatalf("dispatch failures must not affect success")
	}
	if report.Attempted != 2 || report.Triggered != 1 {
		t.Fatalf("attempted=%d triggered=%d", report.Attempted, report.Triggered)
	}
	if report.Files[0].Dispatch != DispatchTriggered {
		t.Fatalf("a: %+v", report.Files[0])
	}
	if report.Files[1].Dispatch != DispatchFailed || report.Files[1].Err == "" {
		t.Fatalf("b: %+v", report.Files[1])
	}

	if len(f.retry.msgs) != 1 {
		t.Fatalf("expected one retry message, got %d", len(f.retry.msgs))
	}
	msg := f.retry.msgs[0]
	if msg.DocumentID != *report.Files[1].DocumentID || msg.OwnerID != "owner-1" || msg.Version != queue.MessageVersion {
		t.Fatalf("unexpected retry message: %+v", msg)
	}
}

func TestIngestReportHasEntryPerFile(t *testing.T) {
	f := newServiceFixture(t, nil)
	files := []FileInput{
		textFile("one.txt", "1"),
		memFile("two.pdf", "application/pdf", []byte("%PDF")),
		memFile("three.docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document", []byte("PK")),
		memFile("four.doc", "application/msword", []byte("doc")),
	}

	report, err := f.svc.Ingest(context.Background(), testIdentity(), files)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if len(report.Files) != len(files) {
		t.Fatalf("expected %d entries, got %d", len(files), len(report.Files))
	}
	for i, res := range report.Files {
		if res.Name != files[i].Name || res.Size != files[i].Size || res.MimeType != files[i].MimeType {
			t.Fatalf("entry %d does not echo its input: %+v", i, res)
		}
	}
}

func TestIngestPartialStorageFailure(t *testing.T) {
	f := newServiceFixture(t, nil)
	f.store.failNames = map[string]bool{"bad.txt": true}

	report, err := f.svc.Ingest(context.Background(), testIdentity(), []FileInput{
		textFile("good.txt", "g"),
		textFile("bad.txt", "b"),
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if report.Success() || report.Stored != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.Files[1].Err == "" || report.Files[1].Dispatch != DispatchSkipped || report.Files[1].DocumentID != nil {
		t.Fatalf("bad.txt: %+v", report.Files[1])
	}
	if len(f.pipeline.calls()) != 1 {
		t.Fatalf("expected only good.txt dispatched")
	}
}

func TestIngestAllStorageFailuresIsStorageError(t *testing.T) {
	f := newServiceFixture(t, nil)
	f.store.failNames = map[string]bool{"bad.txt": true}

	_, err := f.svc.Ingest(context.Background(), testIdentity(), []FileInput{textFile("bad.txt", "b")})
	var sErr *StorageError
	if !errors.As(err, &sErr) {
		t.Fatalf("expected StorageError, got %v", err)
	}
	docs, _ := f.repo.ListByOwner(context.Background(), "owner-1")
	if len(docs) != 0 {
		t.Fatalf("nothing should be catalogued")
	}
}

func TestIngestDispatchSurvivesCallerCancellation(t *testing.T) {
	f := newServiceFixture(t, nil)
	blobs := f.svc.Blobs

	ctx, cancel := context.WithCancel(context.Background())
	docs := []Document{}
	for _, name := range []string{"a.txt", "b.txt"} {
		blob, err := blobs.Store(context.Background(), "owner-1", name, "text/plain", 1, bytes.NewReader([]byte("x")))
		if err != nil {
			t.Fatalf("store: %v", err)
		}
		docs = append(docs, Document{ID: name + "-id", OwnerID: "owner-1", Name: name, StoragePath: blob.Path, Size: 1})
	}
	cancel()

	results := f.svc.Dispatcher.DispatchAll(ctx, docs, testIdentity())
	for i, r := range results {
		if r.Outcome != DispatchTriggered || r.DocumentID != docs[i].ID {
			t.Fatalf("result %d: %+v", i, r)
		}
	}
	for _, ctxErr := range f.pipeline.ctxErrs {
		if ctxErr != nil {
			t.Fatalf("dispatch context was cancelled: %v", ctxErr)
		}
	}
}

func TestDeleteForwardsToPipeline(t *testing.T) {
	f := newServiceFixture(t, nil)
	f.pipeline.onDelete = func(_ context.Context, req pipeline.DeleteRequest) error {
		return f.repo.Remove(req.DocumentID)
	}

	report, err := f.svc.Ingest(context.Background(), testIdentity(), []FileInput{textFile("a.txt", "a")})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	docID := *report.Files[0].DocumentID

	if err := f.svc.Delete(context.Background(), testIdentity(), docID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(f.pipeline.deletes) != 1 {
		t.Fatalf("expected one delete call")
	}
	req := f.pipeline.deletes[0]
	if req.DocumentID != docID || req.FilePath != report.Files[0].StoragePath || req.Credential != "tok-123" {
		t.Fatalf("unexpected delete request: %+v", req)
	}

	docs, _ := f.svc.List(context.Background(), "owner-1")
	if len(docs) != 0 {
		t.Fatalf("expected document gone from listing, got %d", len(docs))
	}
}

func TestDeleteIsBoundedByTimeout(t *testing.T) {
	f := newServiceFixture(t, nil)
	f.svc.DeleteTimeout = 20 * time.Millisecond
	f.pipeline.onDelete = func(ctx context.Context, _ pipeline.DeleteRequest) error {
		<-ctx.Done()
		return ctx.Err()
	}

	report, err := f.svc.Ingest(context.Background(), testIdentity(), []FileInput{textFile("a.txt", "a")})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- f.svc.Delete(context.Background(), testIdentity(), *report.Files[0].DocumentID)
	}()
	select {
	case err = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("delete did not return after its timeout")
	}
	var dErr *DeletionError
	if !errors.As(err, &dErr) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeletionError wrapping deadline, got %v", err)
	}
}

func TestDeleteSurfacesRemoteMessage(t *testing.T) {
	f := newServiceFixture(t, nil)
	f.pipeline.deleteErr = &pipeline.RemoteError{Op: "delete", StatusCode: 500, Message: "vector store unavailable"}

	report, err := f.svc.Ingest(context.Background(), testIdentity(), []FileInput{textFile("a.txt", "a")})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	err = f.svc.Delete(context.Background(), testIdentity(), *report.Files[0].DocumentID)
	var dErr *DeletionError
	if !errors.As(err, &dErr) {
		t.Fatalf("expected DeletionError, got %v", err)
	}
	if dErr.Error() != "vector store unavailable" {
		t.Fatalf("expected remote message verbatim, got %q", dErr.Error())
	}
	docs, _ := f.svc.List(context.Background(), "owner-1")
	if len(docs) != 1 {
		t.Fatalf("catalog must be untouched on failure")
	}
}

func TestDeleteUnknownDocument(t *testing.T) {
	f := newServiceFixture(t, nil)

	err := f.svc.Delete(context.Background(), testIdentity(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(f.pipeline.deletes) != 0 {
		t.Fatalf("pipeline must not be called for unknown documents")
	}
}

func TestRedispatch(t *testing.T) {
	f := newServiceFixture(t, nil)
	f.pipeline.failNames = map[string]bool{"a.txt": true}

	report, err := f.svc.Ingest(context.Background(), testIdentity(), []FileInput{textFile("a.txt", "a")})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	msg := f.retry.msgs[0]

	f.pipeline.failNames = nil
	if err := f.svc.Redispatch(context.Background(), msg, "worker-token"); err != nil {
		t.Fatalf("redispatch: %v", err)
	}
	calls := f.pipeline.calls()
	if len(calls) != 2 || calls[1].Request.Credential != "worker-token" {
		t.Fatalf("unexpected calls: %+v", calls)
	}

	if err := f.repo.SetStatus(*report.Files[0].DocumentID, StatusReady); err != nil {
		t.Fatalf("set status: %v", err)
	}
	if err := f.svc.Redispatch(context.Background(), msg, "worker-token"); err != nil {
		t.Fatalf("redispatch settled: %v", err)
	}
	if len(f.pipeline.calls()) != 2 {
		t.Fatalf("settled documents must not be dispatched again")
	}

	msg.DocumentID = "gone"
	if err := f.svc.Redispatch(context.Background(), msg, "worker-token"); err != nil {
		t.Fatalf("missing document should be dropped, got %v", err)
	}
}

func TestOpenBlobChecksOwner(t *testing.T) {
	f := newServiceFixture(t, nil)

	report, err := f.svc.Ingest(context.Background(), testIdentity(), []FileInput{textFile("a.txt", "hello")})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	path := report.Files[0].StoragePath

	if _, err := f.svc.OpenBlob(context.Background(), "someone-else", path); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign owner, got %v", err)
	}
	rc, err := f.svc.OpenBlob(context.Background(), "owner-1", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rc.Close()
}
