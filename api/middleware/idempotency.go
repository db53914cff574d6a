package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/petalpost/storefront-backend/api/responses"
	pkgerrors "github.com/petalpost/storefront-backend/pkg/errors"
	"github.com/petalpost/storefront-backend/pkg/logger"
	pkgredis "github.com/petalpost/storefront-backend/pkg/redis"
)

const (
	idempotencyHeader      = "Idempotency-Key"
	idempotentReplayHeader = "Idempotent-Replayed"
	maxIdempotencyKeyLen   = 128
	maxIdempotentBody      = 1 << 20

	standardReplayWindow = 24 * time.Hour
	orderReplayWindow    = 7 * 24 * time.Hour
	// A reservation outlives any sane handler but frees the key if the
	// process dies mid-request.
	reservationTTL = 2 * time.Minute
)

type idempotentRoute struct {
	method string
	match  func(path string) bool
	window time.Duration
}

func exactPath(want string) func(string) bool {
	return func(path string) bool { return path == want }
}

var idempotentRoutes = []idempotentRoute{
	{http.MethodPost, exactPath("/create-razorpay-order"), standardReplayWindow},
	{http.MethodPost, exactPath("/verify-payment"), standardReplayWindow},
	// Checkout retries the order submit with the gateway payment id as key,
	// possibly long after the payment itself.
	{http.MethodPost, exactPath("/orders"), orderReplayWindow},
	{http.MethodPut, exactPath("/api/v1/cart"), standardReplayWindow},
	{http.MethodPost, exactPath("/api/v1/cart/migrate"), standardReplayWindow},
	{http.MethodPatch, func(path string) bool {
		rest, ok := strings.CutPrefix(path, "/api/admin/v1/orders/")
		return ok && strings.HasSuffix(rest, "/status") && strings.Count(rest, "/") == 1
	}, standardReplayWindow},
}

// replayWindow reports how long a response for method and path is kept, and
// whether the route takes an Idempotency-Key at all.
func replayWindow(method, path string) (time.Duration, bool) {
	if path == "" {
		return 0, false
	}
	for _, route := range idempotentRoutes {
		if route.method == method && route.match(path) {
			return route.window, true
		}
	}
	return 0, false
}

// storedResponse is what a key maps to. While the first request is still
// running only Fingerprint is set and Pending is true.
type storedResponse struct {
	Pending     bool   `json:"pending,omitempty"`
	Fingerprint string `json:"fingerprint"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        string `json:"body,omitempty"`
}

// Idempotency replays the first response for a repeated Idempotency-Key on
// the mutating storefront routes. Requests without a key pass through, as do
// all requests when store is nil. A concurrent duplicate gets CONFLICT; the
// same key with a different body gets IDEMPOTENCY_KEY_REUSED. Server errors
// release the key so the client may retry.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	if logg == nil {
		logg = logger.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			window, ok := replayWindow(r.Method, requestPath(r))
			clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if !ok || store == nil || clientKey == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			if len(clientKey) > maxIdempotencyKeyLen {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key too long").
					WithDetails(map[string]any{"max": maxIdempotencyKeyLen}))
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxIdempotentBody+1))
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			if len(body) > maxIdempotentBody {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "request body too large"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			fingerprint := fingerprintBody(body)
			key := store.IdempotencyKey(requestScope(r), clientKey)
			reservation, _ := json.Marshal(storedResponse{Pending: true, Fingerprint: fingerprint})

			reserved, err := store.SetNX(ctx, key, string(reservation), reservationTTL)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key"))
				return
			}
			if !reserved {
				replayStored(ctx, w, store, key, fingerprint, logg.WithField(ctx, "idempotency_key", clientKey), logg)
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)

			if !replayable(capture.statusCode()) {
				if err := store.Del(context.WithoutCancel(ctx), key); err != nil {
					logg.Error(ctx, "idempotency.release_failed", err)
				}
				return
			}
			record, _ := json.Marshal(storedResponse{
				Fingerprint: fingerprint,
				Status:      capture.statusCode(),
				ContentType: capture.Header().Get("Content-Type"),
				Body:        base64.StdEncoding.EncodeToString(capture.body.Bytes()),
			})
			if err := store.Set(context.WithoutCancel(ctx), key, string(record), window); err != nil {
				logg.Error(ctx, "idempotency.persist_failed", err)
			}
		})
	}
}

// replayable reports whether a response is stored for replay. Successes and
// body-determined rejections are; answers that depend on state which can
// change before the retry release the key instead.
func replayable(status int) bool {
	switch {
	case status < http.StatusBadRequest:
		return true
	case status >= http.StatusInternalServerError:
		return false
	}
	switch status {
	case http.StatusBadRequest, http.StatusNotFound, http.StatusRequestEntityTooLarge:
		return true
	default:
		return false
	}
}

func replayStored(ctx context.Context, w http.ResponseWriter, store pkgredis.IdempotencyStore, key, fingerprint string, logCtx context.Context, logg *logger.Logger) {
	raw, err := store.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		// Released between SetNX and Get: the earlier attempt failed.
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "previous attempt with this key failed, retry"))
		return
	}
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read idempotency record"))
		return
	}
	var stored storedResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode idempotency record"))
		return
	}
	switch {
	case stored.Fingerprint != fingerprint:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
	case stored.Pending:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "a request with this idempotency key is in progress"))
	default:
		decoded, err := base64.StdEncoding.DecodeString(stored.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode idempotency body"))
			return
		}
		logg.Info(logCtx, "idempotency.replay")
		if stored.ContentType != "" {
			w.Header().Set("Content-Type", stored.ContentType)
		}
		w.Header().Set(idempotentReplayHeader, "true")
		w.WriteHeader(stored.Status)
		_, _ = w.Write(decoded)
	}
}

// requestScope keeps one caller's keys apart from another's and stops a key
// reused across endpoints from colliding. It runs ahead of the auth
// middleware, so the caller is the device id plus a digest of the
// Authorization header.
func requestScope(r *http.Request) string {
	caller := ""
	if auth := strings.TrimSpace(r.Header.Get("Authorization")); auth != "" {
		caller = fingerprintBody([]byte(auth))[:16]
	}
	return strings.Join([]string{
		ClientIDFromContext(r.Context()),
		caller,
		r.Method,
		r.URL.Path,
	}, "|")
}

func requestPath(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

func fingerprintBody(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *responseCapture) statusCode() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}
