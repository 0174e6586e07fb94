package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"banking-ledger/internal/config"
)

func memoryConfig() *config.Config {
	return &config.Config{
		ServerPort:             "0",
		StorageDriver:          config.StorageDriverMemory,
		JWTSecret:              "test-secret",
		JWTIssuer:              "banking-ledger",
		JWTExpiry:              time.Hour,
		OracleTimeout:          time.Second,
		FraudMaxAmount:         decimal.NewFromInt(10000),
		StartingBalance:        decimal.NewFromInt(1000),
		DefaultCurrency:        "USD",
		FraudHistoryWindow:     20,
		RateLimit:              "1000-M",
		BootstrapAdminEmail:    "admin@example.com",
		BootstrapAdminPassword: "correct-horse",
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	s, err := NewServer(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return s
}

func TestHealthWithMemoryStore(t *testing.T) {
	s := newTestServer(t, memoryConfig())

	rec := httptest.NewRecorder()
	s.GetRouter().ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRequestIDIsEchoed(t *testing.T) {
	s := newTestServer(t, memoryConfig())

	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	s.GetRouter().ServeHTTP(rec, req)

	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
}

func TestBootstrapAdminCanLogin(t *testing.T) {
	s := newTestServer(t, memoryConfig())

	body, _ := json.Marshal(map[string]string{"email": "admin@example.com", "password": "correct-horse"})
	rec := httptest.NewRecorder()
	s.GetRouter().ServeHTTP(rec, httptest.NewRequest("POST", "/auth/login", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Data struct {
			Token   string `json:"token"`
			Account struct {
				IsAdmin bool `json:"is_admin"`
			} `json:"account"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Data.Account.IsAdmin)

	req := httptest.NewRequest("GET", "/admin/pending", nil)
	req.Header.Set("Authorization", "Bearer "+resp.Data.Token)
	rec = httptest.NewRecorder()
	s.GetRouter().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUnknownRouteIsNotFound(t *testing.T) {
	s := newTestServer(t, memoryConfig())

	rec := httptest.NewRecorder()
	s.GetRouter().ServeHTTP(rec, httptest.NewRequest("GET", "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInvalidRateLimitIsRejected(t *testing.T) {
	cfg := memoryConfig()
	cfg.RateLimit = "lots"

	_, err := NewServer(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}

func TestStartAndStop(t *testing.T) {
	s, port, err := StartServer(memoryConfig())
	require.NoError(t, err)
	assert.NotEqual(t, "0", port)
	assert.Equal(t, "http://localhost:"+port, s.GetBaseURL())

	resp, err := http.Get(s.GetBaseURL() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}
