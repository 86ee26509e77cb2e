package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/chorepoints/internal/api/shared"
	"github.com/phrazzld/chorepoints/internal/domain"
	"github.com/phrazzld/chorepoints/internal/mocks"
	"github.com/phrazzld/chorepoints/internal/platform/redis"
	"github.com/phrazzld/chorepoints/internal/service/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	actor := domain.Actor{ID: uuid.New(), Role: domain.RoleMember}
	jwtService := &mocks.MockJWTService{
		ValidateTokenFn: func(_ context.Context, token string) (*auth.Claims, error) {
			switch token {
			case "good":
				return &auth.Claims{UserID: actor.ID, Role: actor.Role}, nil
			case "expired":
				return nil, auth.ErrExpiredToken
			case "broken":
				return nil, errors.New("key store offline")
			default:
				return nil, auth.ErrInvalidToken
			}
		},
	}
	mw := NewAuthMiddleware(jwtService)

	var seen domain.Actor
	handler := mw.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok := GetActor(r)
		require.True(t, ok)
		seen = got
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"no token", "Bearer", http.StatusUnauthorized},
		{"expired", "Bearer expired", http.StatusUnauthorized},
		{"invalid", "Bearer forged", http.StatusUnauthorized},
		{"validator failure", "Bearer broken", http.StatusInternalServerError},
		{"valid", "Bearer good", http.StatusNoContent},
		{"lowercase scheme", "bearer good", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			assert.Equal(t, tt.want, rr.Code)
		})
	}
	assert.Equal(t, actor, seen)
}

func TestTraceMiddleware(t *testing.T) {
	t.Parallel()

	var traceID string
	handler := TraceMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID = shared.GetTraceID(r.Context())
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Len(t, traceID, 32)
	assert.Equal(t, traceID, rr.Header().Get("X-Trace-ID"))
}

type stubLimiter struct {
	keys   []string
	result *redis.RateLimitResult
	err    error
}

func (s *stubLimiter) Allow(_ context.Context, key string) (*redis.RateLimitResult, error) {
	s.keys = append(s.keys, key)
	return s.result, s.err
}

func TestRateLimit(t *testing.T) {
	t.Parallel()

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	t.Run("allowed sets headers", func(t *testing.T) {
		limiter := &stubLimiter{result: &redis.RateLimitResult{
			Allowed: true, Remaining: 4, Limit: 5, ResetAt: time.Now().Add(time.Minute),
		}}
		req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
		req.RemoteAddr = "10.0.0.7:5123"
		rr := httptest.NewRecorder()

		RateLimit(limiter)(ok).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "5", rr.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "4", rr.Header().Get("X-RateLimit-Remaining"))
		assert.Equal(t, []string{"ip:10.0.0.7"}, limiter.keys)
	})

	t.Run("denied", func(t *testing.T) {
		limiter := &stubLimiter{result: &redis.RateLimitResult{
			Allowed: false, Remaining: 0, Limit: 5, ResetAt: time.Now().Add(30 * time.Second),
		}}
		actor := domain.Actor{ID: uuid.New(), Role: domain.RoleMember}
		req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
		req = req.WithContext(shared.WithActor(req.Context(), actor))
		rr := httptest.NewRecorder()

		RateLimit(limiter)(ok).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusTooManyRequests, rr.Code)
		assert.NotEmpty(t, rr.Header().Get("Retry-After"))
		assert.Equal(t, []string{"actor:" + actor.ID.String()}, limiter.keys)
	})

	t.Run("fails open", func(t *testing.T) {
		limiter := &stubLimiter{err: errors.New("connection refused")}
		rr := httptest.NewRecorder()

		RateLimit(limiter)(ok).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/tasks", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("nil limiter is a no-op", func(t *testing.T) {
		rr := httptest.NewRecorder()
		RateLimit(nil)(ok).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
	})
}
