package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/ulule/limiter/v3"

	"banking-ledger/internal/domain"
	"banking-ledger/internal/errors"
)

type contextKey string

const principalKey contextKey = "principal"

// PrincipalResolver turns a bearer token into an authenticated principal.
type PrincipalResolver interface {
	ResolvePrincipal(ctx context.Context, token string) (*domain.Principal, error)
}

// AuthMiddleware rejects requests without a valid bearer token and stores the
// caller's principal in the request context.
func AuthMiddleware(resolver PrincipalResolver) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
				writeError(w, errors.ErrUnauthenticated.WithDetails("authorization header must be Bearer {token}"))
				return
			}

			principal, err := resolver.ResolvePrincipal(r.Context(), strings.TrimSpace(parts[1]))
			if err != nil {
				writeServiceError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), principalKey, *principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func PrincipalFromContext(ctx context.Context) (domain.Principal, bool) {
	p, ok := ctx.Value(principalKey).(domain.Principal)
	return p, ok
}

func principalOrReject(w http.ResponseWriter, r *http.Request) (domain.Principal, bool) {
	p, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, errors.ErrUnauthenticated)
	}
	return p, ok
}

// RateLimitMiddleware throttles callers by client IP.
func RateLimitMiddleware(l *limiter.Limiter, logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := l.GetIPKey(r)
			limit, err := l.Get(r.Context(), key)
			if err != nil {
				logger.Error("Failed to get rate limit context", "ip", key, "error", err)
				writeError(w, errors.ErrInternal.WithDetails("rate limit check failed"))
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(limit.Limit, 10))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(limit.Remaining, 10))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(limit.Reset, 10))

			if limit.Reached {
				logger.Warn("Rate limit exceeded", "ip", key, "limit", limit.Limit)
				writeError(w, errors.ErrRateLimited)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
