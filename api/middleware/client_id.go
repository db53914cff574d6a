package middleware

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/petalpost/storefront-backend/api/responses"
	pkgerrors "github.com/petalpost/storefront-backend/pkg/errors"
	"github.com/petalpost/storefront-backend/pkg/logger"
)

const clientIDHeader = "X-Client-Id"

var clientIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{8,64}$`)

// ClientID records the storefront device id when the header is well formed.
// Malformed values are ignored rather than rejected.
func ClientID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get(clientIDHeader))
			if !clientIDPattern.MatchString(id) {
				next.ServeHTTP(w, r)
				return
			}
			ctx := WithClientID(r.Context(), id)
			if logg != nil {
				ctx = logg.WithClientID(ctx, id)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireClientID rejects requests that did not carry a usable X-Client-Id.
func RequireClientID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ClientIDFromContext(r.Context()) == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "X-Client-Id header required").
					WithDetails(map[string]string{"header": clientIDHeader}))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
