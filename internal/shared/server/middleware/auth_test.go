package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"docuchat-backend/internal/shared/auth"
)

func TestAuthAllowsOptionsWithoutIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Auth())
	router.OPTIONS("/api/v1/documents", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/documents", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
}

func TestAuthRejectsMissingToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Auth("/api/v1/health"))
	router.GET("/api/v1/documents", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/api/v1/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/documents", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected public path to pass, got %d", resp.Code)
	}
}

func TestAuthStoresIdentityAndCredential(t *testing.T) {
	gin.SetMode(gin.TestMode)
	t.Setenv("ENV", "dev")
	t.Setenv("JWT_SECRET", "test-secret")

	token, err := auth.SignJWT(auth.Claims{
		Email:            "ada@example.com",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "owner-1"},
	})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	var gotID, gotEmail, gotCred string
	router := gin.New()
	router.Use(Auth())
	router.GET("/api/v1/me", func(c *gin.Context) {
		gotID = UserIDFromContext(c)
		gotEmail = UserEmailFromContext(c)
		gotCred = CredentialFromContext(c)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if gotID != "owner-1" || gotEmail != "ada@example.com" || gotCred != token {
		t.Fatalf("unexpected identity: %q %q %q", gotID, gotEmail, gotCred)
	}
}
