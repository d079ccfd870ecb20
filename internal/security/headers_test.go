package security_test

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sejoli-chipin/internal/security"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestHeadersMiddlewareSetsSecurityHeaders(t *testing.T) {
	mw := security.Headers{Enable: true, EnableHSTS: true, HSTSIncludeSubdomains: true, ContentSecurityPolicy: security.DefaultContentSecurityPolicy}
	req := httptest.NewRequest(http.MethodGet, "https://shop.example.com/checkout/thank-you?order_id=1", nil)
	req.TLS = &tls.ConnectionState{}
	rr := httptest.NewRecorder()
	mw.Middleware(okHandler()).ServeHTTP(rr, req)

	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "max-age=31536000; includeSubDomains", rr.Header().Get("Strict-Transport-Security"))
	require.Equal(t, security.DefaultContentSecurityPolicy, rr.Header().Get("Content-Security-Policy"))
}

func TestHeadersHSTSBehindProxy(t *testing.T) {
	mw := security.Headers{Enable: true, EnableHSTS: true, HSTSMaxAge: 60}
	req := httptest.NewRequest(http.MethodGet, "http://shop.example.com/", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	rr := httptest.NewRecorder()
	mw.Middleware(okHandler()).ServeHTTP(rr, req)
	require.Equal(t, "max-age=60", rr.Header().Get("Strict-Transport-Security"))
}

func TestHeadersMiddlewareDisabled(t *testing.T) {
	rr := httptest.NewRecorder()
	security.Headers{EnableHSTS: true}.Middleware(okHandler()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "http://example.com", nil))
	require.Empty(t, rr.Header().Get("X-Content-Type-Options"))
}

func TestHeadersSkipHSTSOverPlainHTTP(t *testing.T) {
	mw := security.Headers{Enable: true, EnableHSTS: true}
	rr := httptest.NewRecorder()
	mw.Middleware(okHandler()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "http://shop.example.com/chip-in/webhook", nil))

	require.Empty(t, rr.Header().Get("Strict-Transport-Security"))
	require.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	require.Empty(t, rr.Header().Get("Content-Security-Policy"))
}
