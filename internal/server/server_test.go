package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/whisperhq/whisper/backend/internal/config"
	"github.com/whisperhq/whisper/backend/internal/ledger"
	"github.com/whisperhq/whisper/backend/internal/middleware"
)

type stubDB struct{ status string }

func (s stubDB) Health() map[string]string { return map[string]string{"status": s.status} }
func (stubDB) Close() error                { return nil }
func (stubDB) GetDB() *gorm.DB             { return nil }

func testRouter(t *testing.T, status string, origins ...string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		Server:         config.ServerConfig{Host: "127.0.0.1", Port: 9090},
		JWTSecret:      "test-secret",
		AllowedOrigins: origins,
		Debug:          true,
	}
	return New(cfg, stubDB{status: status}, ledger.New(ledger.NewMemoryStore()), nil).RegisterRoutes()
}

func TestHealth(t *testing.T) {
	for status, code := range map[string]int{"up": http.StatusOK, "down": http.StatusServiceUnavailable} {
		w := httptest.NewRecorder()
		testRouter(t, status).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, code, w.Code, status)
		assert.Contains(t, w.Body.String(), status)
	}
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	r := testRouter(t, "up")
	routes := []struct{ method, path string }{
		{http.MethodPost, "/api/zones"},
		{http.MethodGet, "/api/memberships"},
		{http.MethodPost, "/api/zones/gophers/join"},
		{http.MethodPost, "/api/zones/gophers/leave"},
		{http.MethodPost, "/api/zones/gophers/invites"},
		{http.MethodPost, "/api/zones/gophers/invites/accept"},
		{http.MethodPost, "/api/points"},
		{http.MethodDelete, "/api/points/1"},
		{http.MethodPost, "/api/points/1/boosts"},
		{http.MethodPost, "/api/points/1/boost"},
		{http.MethodPost, "/api/points/1/reduce"},
		{http.MethodPost, "/api/comments/1/boost"},
		{http.MethodPut, "/api/comments/1"},
	}
	for _, rt := range routes {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(rt.method, rt.path, nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code, "%s %s", rt.method, rt.path)
	}

	// A forged token is rejected before any handler runs.
	token, err := middleware.GenerateToken([]byte("other-secret"), 1, "ada", time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/points/1/boost", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCORS(t *testing.T) {
	preflight := func(r http.Handler, origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/api/points", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := preflight(testRouter(t, "up"), "https://anywhere.example")
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	r := testRouter(t, "up", "https://whisper.example")
	w = preflight(r, "https://whisper.example")
	assert.Equal(t, "https://whisper.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	w = preflight(r, "https://evil.example")
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestHTTPServer(t *testing.T) {
	cfg := &config.Config{Server: config.ServerConfig{Host: "127.0.0.1", Port: 9090}}
	srv := New(cfg, stubDB{status: "up"}, ledger.New(ledger.NewMemoryStore()), nil).HTTPServer()
	assert.Equal(t, "127.0.0.1:9090", srv.Addr)
	assert.Equal(t, 10*time.Second, srv.ReadTimeout)
	assert.Equal(t, 30*time.Second, srv.WriteTimeout)
}
