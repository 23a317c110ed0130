package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Harshitk-cp/tenet/internal/domain"
	"github.com/Harshitk-cp/tenet/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type stubTenants struct {
	tenant *domain.Tenant
	err    error
}

func (s *stubTenants) Create(context.Context, *domain.Tenant) error { return nil }

func (s *stubTenants) GetByAPIKeyHash(_ context.Context, hash string) (*domain.Tenant, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.tenant == nil || s.tenant.APIKeyHash != hash {
		return nil, store.ErrNotFound
	}
	return s.tenant, nil
}

func okHandler(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }

func TestAPIKeyAuth(t *testing.T) {
	tenant := &domain.Tenant{ID: uuid.New(), APIKeyHash: HashAPIKey("tk_good")}
	var seen *domain.Tenant
	h := APIKeyAuth(&stubTenants{tenant: tenant})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = TenantFromContext(r.Context())
	}))

	tests := []struct {
		header string
		want   int
	}{
		{"", http.StatusUnauthorized},
		{"tk_good", http.StatusUnauthorized},
		{"Bearer tk_bad", http.StatusUnauthorized},
		{"Bearer tk_good", http.StatusOK},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/v1/beliefs", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, tt.want, rec.Code, "header %q", tt.header)
	}
	require.NotNil(t, seen)
	assert.Equal(t, tenant.ID, seen.ID)
}

func TestAPIKeyAuth_StoreFailure(t *testing.T) {
	h := APIKeyAuth(&stubTenants{err: context.DeadlineExceeded})(http.HandlerFunc(okHandler))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer x")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRequestID(t *testing.T) {
	var got string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "req-123", got)
	assert.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestLoggingSeesAuthenticatedTenant(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	tenant := &domain.Tenant{ID: uuid.New(), APIKeyHash: HashAPIKey("tk")}

	chain := RequestID(Logging(zap.New(core))(APIKeyAuth(&stubTenants{tenant: tenant})(http.HandlerFunc(okHandler))))
	req := httptest.NewRequest(http.MethodGet, "/v1/escalations", nil)
	req.Header.Set("Authorization", "Bearer tk")
	chain.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.FilterMessage("http request").All()
	require.Len(t, entries, 1)
	assert.Equal(t, tenant.ID.String(), entries[0].ContextMap()["tenant_id"])
	assert.EqualValues(t, http.StatusOK, entries[0].ContextMap()["status"])
}

func TestRequestCounters(t *testing.T) {
	var c RequestCounters
	status := http.StatusOK
	h := c.Count(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(status) }))

	for _, s := range []int{http.StatusOK, http.StatusNotFound, http.StatusInternalServerError, http.StatusConflict} {
		status = s
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	}
	assert.EqualValues(t, 4, c.Requests.Load())
	assert.EqualValues(t, 2, c.ClientErrors.Load())
	assert.EqualValues(t, 1, c.ServerErrors.Load())
}

func TestRateLimit(t *testing.T) {
	stop := make(chan struct{})
	defer close(stop)
	h := RateLimit(1, 2, stop)(http.HandlerFunc(okHandler))

	codes := make([]int, 3)
	for i := range codes {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes[i] = rec.Code
	}
	assert.Equal(t, []int{200, 200, 429}, codes)

	other := httptest.NewRequest(http.MethodGet, "/", nil)
	other.RemoteAddr = "10.0.0.2"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, other)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiter_CleanupDropsIdle(t *testing.T) {
	rl := NewRateLimiter(10, 10)
	now := time.Now()
	rl.now = func() time.Time { return now }
	rl.Allow("a")
	now = now.Add(time.Hour)
	rl.Allow("b")

	rl.Cleanup(10 * time.Minute)
	assert.Equal(t, 1, rl.size())
}

func TestNewAPIKey(t *testing.T) {
	key, hash, err := NewAPIKey()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, APIKeyPrefix))
	assert.Equal(t, HashAPIKey(key), hash)
	assert.NotContains(t, hash, key)

	other, _, err := NewAPIKey()
	require.NoError(t, err)
	assert.NotEqual(t, key, other)
}
