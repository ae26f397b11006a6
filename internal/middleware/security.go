package middleware

import "net/http"

// apiHeaders are set on every response. The API only serves JSON, so
// nothing may be framed, sniffed, embedded cross-origin, indexed or cached:
// responses carry session tokens and private research.
var apiHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	{"Cross-Origin-Resource-Policy", "same-origin"},
	{"Referrer-Policy", "no-referrer"},
	{"X-Robots-Tag", "noindex"},
	{"Cache-Control", "no-store"},
}

// SecurityHeaders adds the API's response headers.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		for _, kv := range apiHeaders {
			h.Set(kv[0], kv[1])
		}
		next.ServeHTTP(w, r)
	})
}
