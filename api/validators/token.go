package validators

import (
	"net/http"
	"strings"
)

// BearerToken extracts the token from an Authorization header. A bare token
// without the scheme is accepted too.
func BearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(raw) >= 7 && strings.EqualFold(raw[:7], "bearer ") {
		return strings.TrimSpace(raw[7:])
	}
	return raw
}
