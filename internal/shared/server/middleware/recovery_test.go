package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"docuchat-backend/internal/shared/telemetry"
)

func TestRecoveryConvertsPanic(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var logs bytes.Buffer
	restore := telemetry.SetOutput(&logs)
	defer restore()

	router := gin.New()
	router.Use(RequestID(), Recovery(false))
	router.GET("/boom", func(c *gin.Context) {
		panic("kaboom")
	})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/boom", nil))

	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "internal_error" {
		t.Fatalf("unexpected error code %q", body["error"])
	}
	if body["details"] != "unexpected server error" {
		t.Fatalf("panic value leaked into details: %q", body["details"])
	}
	if !bytes.Contains(logs.Bytes(), []byte("kaboom")) {
		t.Fatalf("expected panic value in logs")
	}
}

func TestRecoveryExposesDetailsWhenEnabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	restore := telemetry.SetOutput(&bytes.Buffer{})
	defer restore()

	router := gin.New()
	router.Use(RequestID(), Recovery(true))
	router.GET("/boom", func(c *gin.Context) {
		panic("kaboom")
	})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/boom", nil))

	var body map[string]string
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["details"] != "unexpected server error: kaboom" {
		t.Fatalf("unexpected details %q", body["details"])
	}
}
