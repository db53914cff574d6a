package validators

import (
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/petalpost/storefront-backend/pkg/errors"
)

func queryValue(r *http.Request, key string) string {
	return strings.TrimSpace(r.URL.Query().Get(key))
}

func badQuery(key, message string, extra map[string]any) error {
	details := map[string]any{"field": key}
	for k, v := range extra {
		details[k] = v
	}
	return pkgerrors.New(pkgerrors.CodeValidation, message).WithDetails(details)
}

// ParseQueryInt reads key as an integer in [lo, hi], falling back to def
// when the parameter is absent.
func ParseQueryInt(r *http.Request, key string, def, lo, hi int) (int, error) {
	raw := queryValue(r, key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badQuery(key, "query parameter must be numeric", nil)
	}
	if n < lo || n > hi {
		return 0, badQuery(key, "query parameter out of range", map[string]any{"min": lo, "max": hi})
	}
	return n, nil
}

// ParseQueryString returns the trimmed value, cut to at most maxLen bytes.
func ParseQueryString(r *http.Request, key string, maxLen int) string {
	value := queryValue(r, key)
	if maxLen > 0 && len(value) > maxLen {
		value = value[:maxLen]
	}
	return value
}

// ParseQueryEnum runs parse over an optional parameter. A nil result with a
// nil error means the parameter was not sent.
func ParseQueryEnum[T any](r *http.Request, key string, parse func(string) (T, error)) (*T, error) {
	raw := ParseQueryString(r, key, 64)
	if raw == "" {
		return nil, nil
	}
	value, err := parse(raw)
	if err != nil {
		return nil, badQuery(key, "query parameter is not an accepted value", map[string]any{"value": raw})
	}
	return &value, nil
}
