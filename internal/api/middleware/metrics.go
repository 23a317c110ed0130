package middleware

import (
	"net/http"
	"sync/atomic"
)

// RequestCounters are the totals reported by /stats.
type RequestCounters struct {
	Requests     atomic.Int64
	ClientErrors atomic.Int64
	ServerErrors atomic.Int64
}

// Count returns middleware that updates c for every request.
func (c *RequestCounters) Count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.Requests.Add(1)
		rw := newResponseWriter(w)
		next.ServeHTTP(rw, r)

		switch {
		case rw.statusCode >= 500:
			c.ServerErrors.Add(1)
		case rw.statusCode >= 400:
			c.ClientErrors.Add(1)
		}
	})
}
