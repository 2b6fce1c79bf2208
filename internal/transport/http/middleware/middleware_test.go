package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticTokens map[string]uuid.UUID

func (s staticTokens) ParseToken(token string) (uuid.UUID, error) {
	if id, ok := s[token]; ok {
		return id, nil
	}
	return uuid.Nil, errors.New("bad token")
}

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(GetUserID(r.Context()).String()))
	})
}

func TestAuth(t *testing.T) {
	userID := uuid.New()
	h := Auth(staticTokens{"good": userID})(echoUser())

	cases := []struct {
		name    string
		header  string
		status  int
		message string
	}{
		{"missing", "", http.StatusUnauthorized, "Missing or invalid token"},
		{"not bearer", "Basic abc", http.StatusUnauthorized, "Missing or invalid token"},
		{"invalid", "Bearer nope", http.StatusUnauthorized, "Invalid or expired token"},
		{"valid", "Bearer good", http.StatusOK, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusOK {
				assert.Equal(t, userID.String(), rec.Body.String())
			} else {
				assert.JSONEq(t, `{"error":{"code":"UNAUTHORIZED","message":"`+tc.message+`"}}`, rec.Body.String())
			}
		})
	}
}

type memCounter struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func (c *memCounter) Incr(_ context.Context, key string, _ time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return 0, c.err
	}
	if c.counts == nil {
		c.counts = make(map[string]int64)
	}
	c.counts[key]++
	return c.counts[key], nil
}

func limitedRequest(h http.Handler, method string, userID uuid.UUID) int {
	req := httptest.NewRequest(method, "/", nil)
	req = req.WithContext(WithUserID(req.Context(), userID))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestRateLimit(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	h := RateLimit(&memCounter{}, 2, time.Hour, zap.NewNop())(ok)
	alice, bob := uuid.New(), uuid.New()

	assert.Equal(t, http.StatusOK, limitedRequest(h, http.MethodPost, alice))
	assert.Equal(t, http.StatusOK, limitedRequest(h, http.MethodPost, alice))
	assert.Equal(t, http.StatusTooManyRequests, limitedRequest(h, http.MethodPost, alice))

	// reads and other users are unaffected
	assert.Equal(t, http.StatusOK, limitedRequest(h, http.MethodGet, alice))
	assert.Equal(t, http.StatusOK, limitedRequest(h, http.MethodPost, bob))
}

func TestRateLimitFailsOpen(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	h := RateLimit(&memCounter{err: errors.New("redis down")}, 1, time.Minute, zap.NewNop())(ok)

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, limitedRequest(h, http.MethodPost, uuid.New()))
	}
}

func TestRateLimitDisabled(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	h := RateLimit(nil, 10, time.Minute, zap.NewNop())(ok)
	assert.Equal(t, http.StatusOK, limitedRequest(h, http.MethodPost, uuid.New()))
}

func TestLoggingRecordsStatus(t *testing.T) {
	h := Logging(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	h := CORS([]string{"http://localhost:5173"})(http.NotFoundHandler())

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/groups", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Less(t, rec.Code, 300)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}
