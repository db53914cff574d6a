package validators

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	pkgerrors "github.com/petalpost/storefront-backend/pkg/errors"
	"github.com/petalpost/storefront-backend/pkg/validate"
)

const maxBodyBytes = 1 << 20

// DecodeJSONBody decodes the request body into dest and runs its validate tags.
// Unknown fields are tolerated because the storefront sends extra UI state.
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dest any) error {
	defer func() {
		_, _ = io.Copy(io.Discard, r.Body)
	}()
	if w != nil {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	}
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "request body too large")
		}
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid request body").WithDetails(map[string]any{"error": err.Error()})
	}
	return validate.Struct(dest)
}
