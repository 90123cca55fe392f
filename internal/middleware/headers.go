package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// apiHeaders are set on every admin API response. Responses carry per-user
// quota data and are never rendered as documents.
var apiHeaders = map[string]string{
	"X-Content-Type-Options":  "nosniff",
	"X-Frame-Options":         "DENY",
	"Cache-Control":           "no-store",
	"Referrer-Policy":         "no-referrer",
	"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
}

// SecurityHeaders adds apiHeaders to every response.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		for k, v := range apiHeaders {
			h.Set(k, v)
		}
		next.ServeHTTP(w, r)
	})
}

// CORS returns the cors.Options for the admin API. Without configured origins
// only same-origin callers (curl, the CLI) are served, since go-chi/cors treats an
// empty origin list as "*". Credentials are never allowed with a wildcard origin.
func CORS(allowedOrigins []string) cors.Options {
	opts := cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", RequestIDHeader},
		ExposedHeaders: []string{RequestIDHeader},
		MaxAge:         300,
	}

	if len(allowedOrigins) == 0 {
		opts.AllowOriginFunc = func(*http.Request, string) bool { return false }
		return opts
	}

	opts.AllowedOrigins = allowedOrigins
	opts.AllowCredentials = true
	for _, o := range allowedOrigins {
		if o == "*" {
			opts.AllowCredentials = false
			break
		}
	}
	return opts
}
