package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/petalpost/storefront-backend/api/responses"
	"github.com/petalpost/storefront-backend/pkg/config"
	pkgerrors "github.com/petalpost/storefront-backend/pkg/errors"
	"github.com/petalpost/storefront-backend/pkg/logger"
)

// RateLimiter counts hits in a fixed window; *redis.Client implements it.
type RateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// RateRule counts requests sharing one key. Key returns "" when the request
// has nothing to count by.
type RateRule struct {
	Kind  string
	Limit int
	Key   func(r *http.Request, body []byte) string
	// NeedsBody makes the middleware buffer the body for Key.
	NeedsBody bool
}

// RatePolicy is a named set of rules sharing one fixed window.
type RatePolicy struct {
	Name   string
	Window time.Duration
	Rules  []RateRule
}

// LoginPolicy limits login attempts per IP and per email.
func LoginPolicy(cfg config.AuthRateLimitConfig) RatePolicy {
	return RatePolicy{
		Name:   "login",
		Window: cfg.LoginWindow,
		Rules: []RateRule{
			{Kind: "ip", Limit: cfg.LoginIPLimit, Key: byClientIP},
			{Kind: "email", Limit: cfg.LoginEmailLimit, Key: byBodyEmail, NeedsBody: true},
		},
	}
}

// CreateOrderPolicy limits gateway order creation per device and per IP, so
// one browser cannot flood the gateway with orders.
func CreateOrderPolicy(cfg config.CheckoutConfig) RatePolicy {
	return RatePolicy{
		Name:   "create_order",
		Window: cfg.CreateOrderWindow,
		Rules: []RateRule{
			{Kind: "client", Limit: cfg.CreateOrderClientLimit, Key: byClientID},
			{Kind: "ip", Limit: cfg.CreateOrderIPLimit, Key: byClientIP},
		},
	}
}

func (p RatePolicy) active() []RateRule {
	if p.Window <= 0 {
		return nil
	}
	var rules []RateRule
	for _, rule := range p.Rules {
		if rule.Limit > 0 && rule.Key != nil {
			rules = append(rules, rule)
		}
	}
	return rules
}

// RateLimit applies policy with limiter. A nil limiter or a policy with no
// active rules leaves next untouched. Blocked requests get RATE_LIMIT_EXCEEDED
// and a Retry-After of one window.
func RateLimit(policy RatePolicy, limiter RateLimiter, logg *logger.Logger) func(http.Handler) http.Handler {
	rules := policy.active()
	needsBody := false
	for _, rule := range rules {
		needsBody = needsBody || rule.NeedsBody
	}
	return func(next http.Handler) http.Handler {
		if len(rules) == 0 || limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			var body []byte
			if needsBody {
				var err error
				if body, err = io.ReadAll(io.LimitReader(r.Body, 64<<10)); err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))
			}

			for _, rule := range rules {
				key := rule.Key(r, body)
				if key == "" {
					continue
				}
				scope := policy.Name + ":" + rule.Kind + ":" + key
				allowed, count, err := limiter.FixedWindowAllow(ctx, scope, int64(rule.Limit), policy.Window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
					return
				}
				if !allowed {
					logg.Warn(logg.WithFields(ctx, map[string]any{
						"policy":   policy.Name,
						"scope":    rule.Kind,
						"attempts": count,
						"limit":    rule.Limit,
					}), "rate_limit.blocked")
					w.Header().Set("Retry-After", strconv.Itoa(int(policy.Window.Round(time.Second).Seconds())))
					responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many requests, slow down"))
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func byClientID(r *http.Request, _ []byte) string {
	return ClientIDFromContext(r.Context())
}

// byClientIP counts by the socket peer. Behind a trusted proxy, RealIP has
// already rewritten RemoteAddr from the forwarding headers.
func byClientIP(r *http.Request, _ []byte) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// byBodyEmail hashes the case-folded email so addresses never land in redis.
func byBodyEmail(_ *http.Request, body []byte) string {
	var login struct {
		Email string `json:"email"`
	}
	if json.Unmarshal(body, &login) != nil {
		return ""
	}
	email := strings.ToLower(strings.TrimSpace(login.Email))
	if email == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(email))
	return hex.EncodeToString(sum[:])
}
