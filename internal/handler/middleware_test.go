package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"banking-ledger/internal/domain"
	"banking-ledger/internal/errors"
)

type stubResolver struct {
	principal *domain.Principal
	err       error
	gotToken  string
}

func (r *stubResolver) ResolvePrincipal(ctx context.Context, token string) (*domain.Principal, error) {
	r.gotToken = token
	return r.principal, r.err
}

func echoPrincipal(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFromContext(r.Context())
	if !ok {
		w.WriteHeader(http.StatusTeapot)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"account_id": p.AccountID.String()})
}

func TestAuthMiddleware(t *testing.T) {
	accountID := uuid.New()
	resolver := &stubResolver{principal: &domain.Principal{AccountID: accountID}}
	h := AuthMiddleware(resolver)(http.HandlerFunc(echoPrincipal))

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{name: "missing header", header: "", wantStatus: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", wantStatus: http.StatusUnauthorized},
		{name: "empty token", header: "Bearer  ", wantStatus: http.StatusUnauthorized},
		{name: "valid token", header: "Bearer good-token", wantStatus: http.StatusOK},
		{name: "lowercase scheme", header: "bearer good-token", wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, "good-token", resolver.gotToken)
				assert.Contains(t, rec.Body.String(), accountID.String())
			}
		})
	}
}

func TestAuthMiddlewarePropagatesResolverError(t *testing.T) {
	resolver := &stubResolver{err: errors.ErrUnauthenticated.WithDetails("token is expired")}
	h := AuthMiddleware(resolver)(http.HandlerFunc(echoPrincipal))

	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Bearer stale")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "unauthenticated", resp.Error.Code)
	assert.Equal(t, "token is expired", resp.Error.Details)
}

func TestRateLimitMiddleware(t *testing.T) {
	rate, err := limiter.NewRateFromFormatted("2-M")
	require.NoError(t, err)
	l := limiter.New(memory.NewStore(), rate)

	router := mux.NewRouter()
	router.Use(RateLimitMiddleware(l, slog.New(slog.NewTextHandler(io.Discard, nil))))
	router.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, "pong")
	})

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("GET", "/ping", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/ping", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Contains(t, rec.Body.String(), "rate_limited")
}
