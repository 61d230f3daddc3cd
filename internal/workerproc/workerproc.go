package workerproc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"docuchat-backend/internal/queue"
	"docuchat-backend/internal/shared/auth"
)

// CredentialTTL bounds the token minted for a single re-dispatch.
const CredentialTTL = 10 * time.Minute

// Redispatcher retries the pipeline hand-off for a queued document.
type Redispatcher interface {
	Redispatch(ctx context.Context, msg queue.Message, credential string) error
}

// MessageMeta captures details useful for logging and diagnostics.
type MessageMeta struct {
	BodyLen int
	BodySHA string
}

// ComputeMeta returns the body length and SHA-256 hash.
func ComputeMeta(body string) MessageMeta {
	if body == "" {
		return MessageMeta{BodyLen: 0, BodySHA: ""}
	}
	sum := sha256.Sum256([]byte(body))
	return MessageMeta{BodyLen: len(body), BodySHA: hex.EncodeToString(sum[:])}
}

// ErrEmptyBody indicates an empty queue payload.
type ErrEmptyBody struct {
	Meta MessageMeta
}

func (e ErrEmptyBody) Error() string { return "empty message body" }

// ErrDecode indicates a JSON decode failure.
type ErrDecode struct {
	Meta MessageMeta
	Err  error
}

func (e ErrDecode) Error() string {
	if e.Err == nil {
		return "decode message"
	}
	return "decode message: " + e.Err.Error()
}

// ErrMissingDocument indicates a message without a document or owner id.
type ErrMissingDocument struct {
	Meta      MessageMeta
	RequestID string
}

func (e ErrMissingDocument) Error() string { return "missing document or owner id" }

// ErrProcess indicates the re-dispatch failed after successful parsing. The
// message should stay on the queue.
type ErrProcess struct {
	DocumentID string
	RequestID  string
	Err        error
}

func (e ErrProcess) Error() string {
	if e.Err == nil {
		return "redispatch document"
	}
	return "redispatch document: " + e.Err.Error()
}

func (e ErrProcess) Unwrap() error { return e.Err }

// ParseMessage validates and decodes the queue payload.
func ParseMessage(body string) (queue.Message, MessageMeta, error) {
	meta := ComputeMeta(body)
	if strings.TrimSpace(body) == "" {
		return queue.Message{}, meta, ErrEmptyBody{Meta: meta}
	}

	msg, err := queue.DecodeMessage([]byte(body))
	if err != nil {
		return queue.Message{}, meta, ErrDecode{Meta: meta, Err: err}
	}
	if strings.TrimSpace(msg.DocumentID) == "" || strings.TrimSpace(msg.OwnerID) == "" {
		return msg, meta, ErrMissingDocument{Meta: meta, RequestID: msg.RequestID}
	}
	return msg, meta, nil
}

// MintCredential signs a short-lived token for the document owner. The
// original caller's token is never queued, so the worker issues its own.
func MintCredential(msg queue.Message) (string, error) {
	return auth.SignJWTFor(auth.Claims{
		Email:            msg.OwnerEmail,
		RegisteredClaims: jwt.RegisteredClaims{Subject: msg.OwnerID},
	}, CredentialTTL)
}

// HandleMessage re-dispatches an already parsed message.
func HandleMessage(ctx context.Context, svc Redispatcher, msg queue.Message) error {
	if svc == nil {
		return errors.New("document service not configured")
	}
	if strings.TrimSpace(msg.DocumentID) == "" || strings.TrimSpace(msg.OwnerID) == "" {
		return ErrMissingDocument{RequestID: msg.RequestID}
	}

	credential, err := MintCredential(msg)
	if err != nil {
		return ErrProcess{DocumentID: msg.DocumentID, RequestID: msg.RequestID, Err: err}
	}
	if err := svc.Redispatch(ctx, msg, credential); err != nil {
		return ErrProcess{DocumentID: msg.DocumentID, RequestID: msg.RequestID, Err: err}
	}
	return nil
}
