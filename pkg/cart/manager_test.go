package cart

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petalpost/storefront-backend/pkg/kv"
	"github.com/petalpost/storefront-backend/pkg/logger"
)

func newTestManager(t *testing.T) (*Manager, *kv.MemoryStore) {
	t.Helper()
	store := kv.NewMemoryStore()
	mgr, err := NewManager(store, logger.Nop())
	require.NoError(t, err)
	return mgr, store
}

func TestStorageKey(t *testing.T) {
	assert.Equal(t, "cart", StorageKey(""))
	assert.Equal(t, "cart", StorageKey("   "))
	assert.Equal(t, "cart_42", StorageKey("42"))
	assert.Equal(t, "cart_u-1", StorageKey(" u-1 "))
}

func TestLoadMissingIsEmpty(t *testing.T) {
	mgr, _ := newTestManager(t)
	items, err := mgr.Load(context.Background(), "")
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestLoadMalformedJSONIsEmpty(t *testing.T) {
	buf := &bytes.Buffer{}
	store := kv.NewMemoryStore()
	mgr, err := NewManager(store, logger.New(logger.Options{ServiceName: "test", Output: buf}))
	require.NoError(t, err)
	ctx := context.Background()

	for _, payload := range []string{"{not json", `{"id":"1"}`, `"cart"`, ""} {
		require.NoError(t, store.Set(ctx, "cart_7", payload))
		items, err := mgr.Load(ctx, "7")
		require.NoError(t, err, payload)
		assert.Empty(t, items, payload)
	}
	assert.Contains(t, buf.String(), "cart.load.malformed")
}

func TestLoadDropsInvalidItems(t *testing.T) {
	mgr, store := newTestManager(t)
	ctx := context.Background()
	payload := `[
		{"id":"rose-12","title":"Dozen Red Roses","price":1499,"quantity":1,"image":"https://cdn/rose.jpg"},
		{"id":17,"title":"Lily Vase","price":899.5,"quantity":2,"metadata":{"color":"white"}},
		{"title":"No Id","price":10,"quantity":1},
		{"id":"x","price":10,"quantity":1},
		{"id":"y","title":"String Price","price":"10","quantity":1},
		{"id":"z","title":"No Quantity","price":10},
		{"id":"","title":"Blank Id","price":10,"quantity":1},
		42
	]`
	require.NoError(t, store.Set(ctx, "cart", payload))

	items, err := mgr.Load(ctx, "")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "rose-12", items[0].ID)
	assert.Equal(t, 1499.0, items[0].Price)
	assert.Equal(t, "17", items[1].ID)
	assert.Equal(t, 2, items[1].Quantity)
	assert.Equal(t, "white", items[1].Metadata["color"])
}

func TestSaveLoadClear(t *testing.T) {
	mgr, store := newTestManager(t)
	ctx := context.Background()
	items := []Item{{ID: "tulip", Title: "Tulips", Price: 699, Quantity: 3}}

	require.NoError(t, mgr.Save(ctx, "u1", items))
	got, err := mgr.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, items, got)

	require.NoError(t, mgr.Save(ctx, "u1", nil))
	raw, err := store.Get(ctx, "cart_u1")
	require.NoError(t, err)
	assert.Equal(t, "[]", raw)

	require.NoError(t, mgr.Clear(ctx, "u1"))
	_, err = store.Get(ctx, "cart_u1")
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func TestMigrateMovesAnonymousCart(t *testing.T) {
	mgr, store := newTestManager(t)
	ctx := context.Background()
	anon := []Item{{ID: "orchid", Title: "Orchid", Price: 1299, Quantity: 1}}
	require.NoError(t, mgr.Save(ctx, "", anon))

	res, err := mgr.Migrate(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, res.Migrated)
	assert.Equal(t, anon, res.Items)

	_, err = store.Get(ctx, "cart")
	assert.ErrorIs(t, err, kv.ErrNotFound)
	got, err := mgr.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, anon, got)
}

func TestMigrateUserCartWins(t *testing.T) {
	mgr, store := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, mgr.Save(ctx, "", []Item{{ID: "a", Title: "A", Price: 1, Quantity: 1}, {ID: "b", Title: "B", Price: 1, Quantity: 1}}))
	userItems := []Item{{ID: "c", Title: "C", Price: 2, Quantity: 1}}
	require.NoError(t, mgr.Save(ctx, "u1", userItems))

	res, err := mgr.Migrate(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, res.Migrated)
	assert.Equal(t, 2, res.Discarded)
	assert.Equal(t, userItems, res.Items)

	_, err = store.Get(ctx, "cart")
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func TestMigrateTwiceIsNoop(t *testing.T) {
	mgr, store := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, mgr.Save(ctx, "", []Item{{ID: "a", Title: "A", Price: 1, Quantity: 1}}))

	first, err := mgr.Migrate(ctx, "u1")
	require.NoError(t, err)
	require.True(t, first.Migrated)
	before, err := store.Get(ctx, "cart_u1")
	require.NoError(t, err)

	second, err := mgr.Migrate(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, second.Migrated)
	assert.Zero(t, second.Discarded)
	assert.Equal(t, first.Items, second.Items)

	after, err := store.Get(ctx, "cart_u1")
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, 1, store.Len())
}

func TestMigrateRequiresUser(t *testing.T) {
	mgr, _ := newTestManager(t)
	_, err := mgr.Migrate(context.Background(), " ")
	assert.Error(t, err)
}

type failingStore struct{ kv.Store }

func (failingStore) Get(context.Context, string) (string, error) {
	return "", errors.New("redis down")
}

func TestLoadSurfacesStoreFailure(t *testing.T) {
	mgr, err := NewManager(failingStore{}, nil)
	require.NoError(t, err)
	_, err = mgr.Load(context.Background(), "u1")
	assert.Error(t, err)
}
