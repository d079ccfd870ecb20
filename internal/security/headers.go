package security

import (
	"net/http"
	"strconv"
)

// DefaultContentSecurityPolicy suits the server-rendered thank-you and
// error pages, which only carry inline styles and product images.
const DefaultContentSecurityPolicy = "default-src 'none'; style-src 'unsafe-inline'; img-src 'self' data: https:; frame-ancestors 'none'"

const defaultHSTSMaxAge = 365 * 24 * 60 * 60

// Headers configures the security headers put on every response.
type Headers struct {
	Enable                bool
	EnableHSTS            bool
	HSTSMaxAge            int
	HSTSIncludeSubdomains bool
	ContentSecurityPolicy string
}

func (h Headers) static() [][2]string {
	out := [][2]string{
		{"X-Content-Type-Options", "nosniff"},
		{"X-Frame-Options", "DENY"},
		// Chip In receives no referrer from our redirect hops.
		{"Referrer-Policy", "no-referrer"},
		{"Permissions-Policy", "geolocation=(), microphone=(), payment=()"},
	}
	if h.ContentSecurityPolicy != "" {
		out = append(out, [2]string{"Content-Security-Policy", h.ContentSecurityPolicy})
	}
	return out
}

func (h Headers) hsts() string {
	maxAge := h.HSTSMaxAge
	if maxAge <= 0 {
		maxAge = defaultHSTSMaxAge
	}
	v := "max-age=" + strconv.Itoa(maxAge)
	if h.HSTSIncludeSubdomains {
		v += "; includeSubDomains"
	}
	return v
}

// Middleware sets the headers. HSTS is only sent for requests that arrived
// over TLS, directly or through a proxy that reports it.
func (h Headers) Middleware(next http.Handler) http.Handler {
	if !h.Enable {
		return next
	}
	static := h.static()
	hsts := h.hsts()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hdr := w.Header()
		for _, kv := range static {
			hdr.Set(kv[0], kv[1])
		}
		if h.EnableHSTS && (r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https") {
			hdr.Set("Strict-Transport-Security", hsts)
		}
		next.ServeHTTP(w, r)
	})
}
