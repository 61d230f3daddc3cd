package workerproc

import (
	"context"
	"errors"
	"testing"

	"docuchat-backend/internal/queue"
	"docuchat-backend/internal/shared/auth"
)

type fakeRedispatcher struct {
	err        error
	credential string
	msg        queue.Message
}

func (f *fakeRedispatcher) Redispatch(ctx context.Context, msg queue.Message, credential string) error {
	f.msg = msg
	f.credential = credential
	return f.err
}

func TestParseMessage(t *testing.T) {
	if _, _, err := ParseMessage("  "); !errors.As(err, new(ErrEmptyBody)) {
		t.Fatalf("expected ErrEmptyBody, got %v", err)
	}
	if _, meta, err := ParseMessage("{bad"); !errors.As(err, new(ErrDecode)) || meta.BodySHA == "" {
		t.Fatalf("expected ErrDecode with meta, got %v %+v", err, meta)
	}
	if _, _, err := ParseMessage(`{"documentId":"d1"}`); !errors.As(err, new(ErrMissingDocument)) {
		t.Fatalf("expected ErrMissingDocument, got %v", err)
	}
	msg, _, err := ParseMessage(`{"documentId":"d1","ownerId":"o1","attempt":1,"version":1}`)
	if err != nil || msg.DocumentID != "d1" || msg.OwnerID != "o1" {
		t.Fatalf("unexpected parse: %+v %v", msg, err)
	}
}

func TestHandleMessageMintsOwnerCredential(t *testing.T) {
	t.Setenv("ENV", "dev")
	t.Setenv("JWT_SECRET", "worker-secret")
	svc := &fakeRedispatcher{}

	msg := queue.Message{DocumentID: "d1", OwnerID: "owner-1", OwnerEmail: "o@example.com", RequestID: "r1"}
	if err := HandleMessage(context.Background(), svc, msg); err != nil {
		t.Fatalf("handle: %v", err)
	}
	claims, err := auth.VerifyJWT(svc.credential)
	if err != nil {
		t.Fatalf("verify minted credential: %v", err)
	}
	if claims.Subject != "owner-1" || claims.Email != "o@example.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.ExpiresAt == nil || claims.ExpiresAt.Sub(claims.IssuedAt.Time) != CredentialTTL {
		t.Fatalf("expected %s lifetime", CredentialTTL)
	}
}

func TestHandleMessageWrapsFailures(t *testing.T) {
	t.Setenv("ENV", "dev")
	svc := &fakeRedispatcher{err: errors.New("pipeline down")}

	err := HandleMessage(context.Background(), svc, queue.Message{DocumentID: "d1", OwnerID: "o1", RequestID: "r1"})
	var procErr ErrProcess
	if !errors.As(err, &procErr) || procErr.DocumentID != "d1" || procErr.RequestID != "r1" {
		t.Fatalf("expected ErrProcess, got %v", err)
	}
}
