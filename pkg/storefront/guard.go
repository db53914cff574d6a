package storefront

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/petalpost/storefront-backend/pkg/enums"
	"github.com/petalpost/storefront-backend/pkg/kv"
	"github.com/petalpost/storefront-backend/pkg/logger"
)

type GuardState string

const (
	GuardChecking        GuardState = "checking"
	GuardAuthenticated   GuardState = "authenticated"
	GuardUnauthenticated GuardState = "unauthenticated"
)

type Decision string

const (
	DecisionAllow         Decision = "allow"
	DecisionRedirectLogin Decision = "redirect_login"
)

const (
	// SessionKey holds the single session document in the persistent store.
	SessionKey = "session"
	// RecoveryKey holds a session stashed in the short-lived store across an
	// external payment redirect.
	RecoveryKey = "auth_recovery"
	// MockTokenPrefix marks development tokens that skip the server check.
	MockTokenPrefix = "dev-mock-"
)

// Keys written by older storefront builds, folded into the session once.
var legacySessionKeys = []string{"token", "user", "isAuthenticated", "admin_session_id", "admin_login_time"}

// Session is the one source of truth for who is signed in on this device.
type Session struct {
	Token          string       `json:"token"`
	User           *SessionUser `json:"user,omitempty"`
	AdminSessionID string       `json:"adminSessionId,omitempty"`
	LoginAt        *time.Time   `json:"loginAt,omitempty"`
}

// TokenChecker is the server side of the guard; *Client satisfies it.
type TokenChecker interface {
	CheckToken(ctx context.Context, token string) (*TokenCheck, error)
}

type GuardParams struct {
	// Persistent outlives the browser tab; ShortLived does not.
	Persistent kv.Store
	ShortLived kv.Store
	Checker    TokenChecker
	// AllowMockToken lets MockTokenPrefix tokens through. Development only.
	AllowMockToken bool
	Logger         *logger.Logger
}

// Guard gates routes on the device session. Evaluations are serialized so
// recovery always finishes before the token check reads the session.
type Guard struct {
	mu         sync.Mutex
	state      GuardState
	persistent kv.Store
	shortLived kv.Store
	checker    TokenChecker
	allowMock  bool
	logg       *logger.Logger
}

func NewGuard(params GuardParams) (*Guard, error) {
	switch {
	case params.Persistent == nil:
		return nil, fmt.Errorf("persistent store required")
	case params.ShortLived == nil:
		return nil, fmt.Errorf("short-lived store required")
	case params.Checker == nil:
		return nil, fmt.Errorf("token checker required")
	}
	g := &Guard{
		state:      GuardChecking,
		persistent: params.Persistent,
		shortLived: params.ShortLived,
		checker:    params.Checker,
		allowMock:  params.AllowMockToken,
		logg:       params.Logger,
	}
	if g.logg == nil {
		g.logg = logger.Nop()
	}
	return g, nil
}

func (g *Guard) State() GuardState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Evaluate decides whether the current device session may see a route that
// needs requiredRole. An empty role admits any signed-in user. A failed token
// check redirects without clearing the session, so a later call can retry.
func (g *Guard) Evaluate(ctx context.Context, requiredRole enums.UserRole) (Decision, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = GuardChecking

	if err := g.recover(ctx); err != nil {
		g.logg.Warn(g.logg.WithField(ctx, "error", err.Error()), "storefront.guard.recovery_failed")
		return g.signOut(ctx)
	}

	session, err := g.foldLegacy(ctx)
	if err != nil {
		g.state = GuardUnauthenticated
		return DecisionRedirectLogin, err
	}
	if session == nil || strings.TrimSpace(session.Token) == "" {
		return g.signOut(ctx)
	}

	if !(g.allowMock && strings.HasPrefix(session.Token, MockTokenPrefix)) {
		check, err := g.checker.CheckToken(ctx, session.Token)
		if err != nil {
			g.state = GuardUnauthenticated
			return DecisionRedirectLogin, fmt.Errorf("check token: %w", err)
		}
		if !check.Authenticated {
			return g.signOut(ctx)
		}
		if check.User != nil && (session.User == nil || *session.User != *check.User) {
			session.User = check.User
			if err := g.save(ctx, g.persistent, SessionKey, session); err != nil {
				return DecisionRedirectLogin, err
			}
		}
	}

	g.state = GuardAuthenticated
	if requiredRole == "" {
		return DecisionAllow, nil
	}
	if session.User == nil || session.User.Role != requiredRole {
		logCtx := g.logg.WithField(ctx, "required_role", string(requiredRole))
		g.logg.Warn(logCtx, "storefront.guard.role_mismatch")
		return DecisionRedirectLogin, nil
	}
	return DecisionAllow, nil
}

// SignIn stores the session issued by a login.
func (g *Guard) SignIn(ctx context.Context, login LoginResult) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := time.Now().UTC()
	return g.save(ctx, g.persistent, SessionKey, &Session{Token: login.Token, User: login.User, LoginAt: &now})
}

// SignOut removes the session.
func (g *Guard) SignOut(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, err := g.signOut(ctx)
	return err
}

// StashForRedirect copies the session into the short-lived store before the
// shopper leaves for an external payment page.
func (g *Guard) StashForRedirect(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	session, err := g.load(ctx, g.persistent, SessionKey)
	if err != nil || session == nil {
		return err
	}
	return g.save(ctx, g.shortLived, RecoveryKey, session)
}

// Token returns the stored bearer token, for Client's token source.
func (g *Guard) Token(ctx context.Context) string {
	session, err := g.load(ctx, g.persistent, SessionKey)
	if err != nil || session == nil {
		return ""
	}
	return session.Token
}

func (g *Guard) signOut(ctx context.Context) (Decision, error) {
	g.state = GuardUnauthenticated
	if err := g.persistent.Delete(ctx, SessionKey); err != nil {
		return DecisionRedirectLogin, fmt.Errorf("clear session: %w", err)
	}
	return DecisionRedirectLogin, nil
}

// recover moves a stashed session into the persistent store. An unreadable
// stash is dropped and reported.
func (g *Guard) recover(ctx context.Context) error {
	raw, err := g.shortLived.Get(ctx, RecoveryKey)
	if errors.Is(err, kv.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read recovery: %w", err)
	}
	if err := g.shortLived.Delete(ctx, RecoveryKey); err != nil {
		return fmt.Errorf("delete recovery: %w", err)
	}
	var session Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil || strings.TrimSpace(session.Token) == "" {
		return fmt.Errorf("recovery payload unreadable")
	}
	if err := g.save(ctx, g.persistent, SessionKey, &session); err != nil {
		return err
	}
	g.logg.Info(ctx, "storefront.guard.session_recovered")
	return nil
}

// foldLegacy merges the old per-field keys into the session document and
// removes them. Fields already in the document win.
func (g *Guard) foldLegacy(ctx context.Context) (*Session, error) {
	session, err := g.load(ctx, g.persistent, SessionKey)
	if err != nil {
		return nil, err
	}

	legacy := map[string]string{}
	for _, key := range legacySessionKeys {
		value, err := g.persistent.Get(ctx, key)
		if errors.Is(err, kv.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", key, err)
		}
		legacy[key] = value
	}
	if len(legacy) == 0 {
		return session, nil
	}

	if session == nil {
		session = &Session{}
	}
	if session.Token == "" {
		session.Token = strings.TrimSpace(legacy["token"])
	}
	if session.User == nil && legacy["user"] != "" {
		var user SessionUser
		if err := json.Unmarshal([]byte(legacy["user"]), &user); err == nil && user.ID != "" {
			session.User = &user
		}
	}
	if session.AdminSessionID == "" {
		session.AdminSessionID = legacy["admin_session_id"]
	}
	if session.LoginAt == nil {
		session.LoginAt = parseLegacyTime(legacy["admin_login_time"])
	}

	if session.Token != "" {
		if err := g.save(ctx, g.persistent, SessionKey, session); err != nil {
			return nil, err
		}
	}
	for key := range legacy {
		if err := g.persistent.Delete(ctx, key); err != nil {
			return nil, fmt.Errorf("delete %s: %w", key, err)
		}
	}
	g.logg.Info(g.logg.WithField(ctx, "legacy_keys", len(legacy)), "storefront.guard.legacy_folded")
	return session, nil
}

func (g *Guard) load(ctx context.Context, store kv.Store, key string) (*Session, error) {
	raw, err := store.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	var session Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		g.logg.Warn(g.logg.WithField(ctx, "key", key), "storefront.guard.session_malformed")
		return nil, nil
	}
	return &session, nil
}

func (g *Guard) save(ctx context.Context, store kv.Store, key string, session *Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := store.Set(ctx, key, string(payload)); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// parseLegacyTime reads RFC 3339 or unix milliseconds.
func parseLegacyTime(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		t = t.UTC()
		return &t
	}
	if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
		t := time.UnixMilli(ms).UTC()
		return &t
	}
	return nil
}
