package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/petalpost/storefront-backend/pkg/kv"
	"github.com/petalpost/storefront-backend/pkg/logger"
)

// Manager loads and stores carts through a key-value store. Concurrent writers
// are last-write-wins.
type Manager struct {
	store kv.Store
	logg  *logger.Logger
}

func NewManager(store kv.Store, logg *logger.Logger) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("cart store required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Manager{store: store, logg: logg}, nil
}

// Load returns the valid items stored for userID. Missing or unreadable data
// is an empty cart; only store failures are returned as errors.
func (m *Manager) Load(ctx context.Context, userID string) ([]Item, error) {
	key := StorageKey(userID)
	payload, err := m.store.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return []Item{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cart %s: %w", key, err)
	}

	items, dropped, ok := decodeItems(payload)
	if !ok {
		m.logg.Warn(m.logg.WithField(ctx, "cart_key", key), "cart.load.malformed")
		return []Item{}, nil
	}
	if dropped > 0 {
		logCtx := m.logg.WithFields(ctx, map[string]any{"cart_key": key, "dropped": dropped})
		m.logg.Warn(logCtx, "cart.load.dropped_invalid_items")
	}
	return items, nil
}

// Save overwrites the cart stored for userID.
func (m *Manager) Save(ctx context.Context, userID string, items []Item) error {
	if items == nil {
		items = []Item{}
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	return m.store.Set(ctx, StorageKey(userID), string(payload))
}

// Clear removes the cart stored for userID.
func (m *Manager) Clear(ctx context.Context, userID string) error {
	return m.store.Delete(ctx, StorageKey(userID))
}

// MigrateResult describes what Migrate did.
type MigrateResult struct {
	// Migrated is true when the anonymous cart became the user cart.
	Migrated bool `json:"migrated"`
	// Discarded counts anonymous items dropped because the user cart already had items.
	Discarded int `json:"discarded"`
	// Items is the user cart after migration.
	Items []Item `json:"items"`
}

// Migrate moves the anonymous cart under the user's key the first time the
// user is seen. A non-empty user cart wins and the anonymous items are
// discarded. The anonymous key is always removed, so a second call is a no-op.
func (m *Manager) Migrate(ctx context.Context, userID string) (*MigrateResult, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("user id required")
	}

	raw, err := m.store.Get(ctx, anonymousKey)
	if errors.Is(err, kv.ErrNotFound) {
		items, loadErr := m.Load(ctx, userID)
		if loadErr != nil {
			return nil, loadErr
		}
		return &MigrateResult{Items: items}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load anonymous cart: %w", err)
	}

	anonymous, _, _ := decodeItems(raw)
	userItems, err := m.Load(ctx, userID)
	if err != nil {
		return nil, err
	}

	result := &MigrateResult{Items: userItems}
	switch {
	case len(userItems) > 0:
		result.Discarded = len(anonymous)
	case len(anonymous) > 0:
		if err := m.Save(ctx, userID, anonymous); err != nil {
			return nil, err
		}
		result.Migrated = true
		result.Items = anonymous
	}

	if err := m.store.Delete(ctx, anonymousKey); err != nil {
		return nil, fmt.Errorf("delete anonymous cart: %w", err)
	}

	logCtx := m.logg.WithFields(ctx, map[string]any{
		"user_id":   userID,
		"migrated":  result.Migrated,
		"discarded": result.Discarded,
	})
	m.logg.Info(logCtx, "cart.migrated")
	return result, nil
}
