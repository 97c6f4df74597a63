package httpmw

import "net/http"

// Security note: CSRF protection is not implemented because it is not
// applicable. The API is stateless: no cookies, no sessions, no auth.

// SecurityHeaders is middleware that adds common security headers to HTTP
// responses. The CSP permits inline scripts and styles because uploaded
// site bundles routinely inline both and we do not rewrite their HTML.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")

		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'; img-src 'self' data:; font-src 'self'; base-uri 'self'; frame-ancestors 'none'; object-src 'none'")

		// Disable MIME type sniffing for integrity/security
		w.Header().Set("X-Content-Type-Options", "nosniff")

		// Clickjacking protection - dont allow embedding in frames
		w.Header().Set("X-Frame-Options", "DENY")

		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		w.Header().Set("Permissions-Policy", "accelerometer=(), camera=(), geolocation=(), gyroscope=(), magnetometer=(), microphone=(), payment=(), usb=()")

		w.Header().Set("X-Permitted-Cross-Domain-Policies", "none")

		next.ServeHTTP(w, r)
	})
}
