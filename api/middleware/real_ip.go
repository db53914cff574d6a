package middleware

import (
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// RealIP takes the client address from True-Client-IP, X-Real-IP or
// X-Forwarded-For when the server sits behind a proxy that sets them. Without
// trust the headers are caller-controlled, so RemoteAddr is left alone.
func RealIP(trustProxy bool) func(http.Handler) http.Handler {
	if trustProxy {
		return chimw.RealIP
	}
	return func(next http.Handler) http.Handler { return next }
}
