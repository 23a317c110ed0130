package middleware

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"
)

const (
	// RequestIDHeader is the header name for request ID.
	RequestIDHeader = "X-Request-ID"
	requestInfoKey  = contextKey("request_info")
)

// requestInfo is filled in as the request moves through the chain, so
// outer middleware can see what inner middleware learned.
type requestInfo struct {
	mu       sync.Mutex
	id       string
	tenantID string
}

func infoFromContext(ctx context.Context) *requestInfo {
	info, _ := ctx.Value(requestInfoKey).(*requestInfo)
	return info
}

// RequestIDFromContext returns the request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if info := infoFromContext(ctx); info != nil {
		return info.id
	}
	return ""
}

func setRequestTenant(ctx context.Context, tenantID string) {
	if info := infoFromContext(ctx); info != nil {
		info.mu.Lock()
		info.tenantID = tenantID
		info.mu.Unlock()
	}
}

func requestTenant(ctx context.Context) string {
	info := infoFromContext(ctx)
	if info == nil {
		return ""
	}
	info.mu.Lock()
	defer info.mu.Unlock()
	return info.tenantID
}

// RequestID extracts X-Request-ID or generates one, echoes it in the
// response and stores it in the request context.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)

		ctx := context.WithValue(r.Context(), requestInfoKey, &requestInfo{id: requestID})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
