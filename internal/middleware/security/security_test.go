package security

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestHeadersMiddleware(t *testing.T) {
	h := NewHeadersMiddleware(DefaultHeadersConfig()).Middleware(okHandler)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/summary", nil))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/summary", nil)
	req.TLS = &tls.ConnectionState{}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "max-age=31536000; includeSubDomains", rec.Header().Get("Strict-Transport-Security"))
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name       string
		config     string
		method     string
		origin     string
		wantOrigin string
		wantCode   int
	}{
		{name: "any origin", config: "*", method: http.MethodGet, origin: "https://a.example", wantOrigin: "*", wantCode: http.StatusOK},
		{name: "preflight", config: "*", method: http.MethodOptions, origin: "https://a.example", wantOrigin: "*", wantCode: http.StatusNoContent},
		{name: "listed origin", config: "https://a.example, https://b.example", method: http.MethodPost, origin: "https://b.example", wantOrigin: "https://b.example", wantCode: http.StatusOK},
		{name: "unlisted origin", config: "https://a.example", method: http.MethodPost, origin: "https://evil.example", wantOrigin: "", wantCode: http.StatusOK},
		{name: "unlisted preflight", config: "https://a.example", method: http.MethodOptions, origin: "https://evil.example", wantOrigin: "", wantCode: http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewCORS(tt.config).Middleware(okHandler)
			req := httptest.NewRequest(tt.method, "/api/v1/actions", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
			if tt.wantOrigin != "" {
				assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
			}
		})
	}
}

func TestClientIP(t *testing.T) {
	c := NewClientIP()
	require.NoError(t, c.AddTrustedProxy("100.64.0.0/10"))
	require.Error(t, c.AddTrustedProxy("not-a-cidr"))

	tests := []struct {
		name   string
		remote string
		xff    string
		xri    string
		want   string
	}{
		{name: "direct", remote: "203.0.113.5:4000", want: "203.0.113.5"},
		{name: "untrusted peer ignores headers", remote: "203.0.113.5:4000", xff: "198.51.100.1", want: "203.0.113.5"},
		{name: "trusted proxy forwards", remote: "10.0.0.2:80", xff: "198.51.100.1, 10.0.0.2", want: "198.51.100.1"},
		{name: "added proxy range", remote: "100.64.1.1:80", xff: "198.51.100.7", want: "198.51.100.7"},
		{name: "real ip fallback", remote: "127.0.0.1:80", xff: "garbage", xri: "198.51.100.2", want: "198.51.100.2"},
		{name: "no port", remote: "192.0.2.1", want: "192.0.2.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}
			assert.Equal(t, tt.want, c.Extract(req))
		})
	}
}
