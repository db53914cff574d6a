package middleware

import (
	"fmt"
	"net/http"

	"github.com/petalpost/storefront-backend/api/responses"
	pkgerrors "github.com/petalpost/storefront-backend/pkg/errors"
	"github.com/petalpost/storefront-backend/pkg/logger"
)

// Recoverer turns a handler panic into a logged INTERNAL_ERROR envelope.
// http.ErrAbortHandler is re-raised so net/http can drop the connection.
func Recoverer(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				switch {
				case rec == nil:
					return
				case rec == http.ErrAbortHandler:
					panic(rec)
				}
				ctx := logg.WithField(r.Context(), "panic", fmt.Sprint(rec))
				logg.Error(ctx, "request.panic", fmt.Errorf("panic: %v", rec))
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "internal error"))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
