package respond

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"docuchat-backend/internal/shared/telemetry"
)

func TestErrorWritesFlatBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var logs bytes.Buffer
	restore := telemetry.SetOutput(&logs)
	defer restore()

	r := gin.New()
	r.GET("/x", func(c *gin.Context) {
		Error(c, http.StatusBadRequest, "unsupported_type", "report.exe: extension exe is not allowed")
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "unsupported_type" {
		t.Fatalf("error = %q", body["error"])
	}
	if body["details"] == "" {
		t.Fatalf("expected details")
	}
	if !bytes.Contains(logs.Bytes(), []byte(`"level":"WARN"`)) {
		t.Fatalf("expected warn log for client error, got %s", logs.String())
	}
}
