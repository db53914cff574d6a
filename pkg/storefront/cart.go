package storefront

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/multierr"

	"github.com/petalpost/storefront-backend/pkg/cart"
	"github.com/petalpost/storefront-backend/pkg/kv"
	"github.com/petalpost/storefront-backend/pkg/logger"
)

// RemoteCart is the server copy of a device cart.
type RemoteCart struct {
	Key   string      `json:"key"`
	Items []cart.Item `json:"items"`
}

func (c *Client) GetCart(ctx context.Context) (*RemoteCart, error) {
	var out envelope[RemoteCart]
	if err := c.do(ctx, http.MethodGet, "/api/v1/cart", nil, &out, requestOptions{}); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

func (c *Client) PutCart(ctx context.Context, items []cart.Item) (*RemoteCart, error) {
	if items == nil {
		items = []cart.Item{}
	}
	body := map[string][]cart.Item{"items": items}
	var out envelope[RemoteCart]
	if err := c.do(ctx, http.MethodPut, "/api/v1/cart", body, &out, requestOptions{}); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

func (c *Client) ClearCart(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/cart", nil, nil, requestOptions{})
}

// MigrateCart folds the anonymous server cart into the signed-in user's cart.
func (c *Client) MigrateCart(ctx context.Context) (*cart.MigrateResult, error) {
	var out envelope[cart.MigrateResult]
	if err := c.do(ctx, http.MethodPost, "/api/v1/cart/migrate", nil, &out, requestOptions{}); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// Cart keeps the cart on the device and mirrors writes to the server when a
// client is attached. The device copy is read first, so the cart survives
// offline use.
type Cart struct {
	local  *cart.Manager
	remote *Client
	logg   *logger.Logger
}

// NewCart builds a device cart over store. remote may be nil.
func NewCart(store kv.Store, remote *Client, logg *logger.Logger) (*Cart, error) {
	if logg == nil {
		logg = logger.Nop()
	}
	local, err := cart.NewManager(store, logg)
	if err != nil {
		return nil, err
	}
	return &Cart{local: local, remote: remote, logg: logg}, nil
}

func (c *Cart) Load(ctx context.Context, userID string) ([]cart.Item, error) {
	return c.local.Load(ctx, userID)
}

// Save writes the device copy, then the server copy. A server failure leaves
// the device copy in place.
func (c *Cart) Save(ctx context.Context, userID string, items []cart.Item) error {
	if err := c.local.Save(ctx, userID, items); err != nil {
		return err
	}
	if c.remote == nil {
		return nil
	}
	if _, err := c.remote.PutCart(ctx, items); err != nil {
		return fmt.Errorf("sync cart: %w", err)
	}
	return nil
}

func (c *Cart) Clear(ctx context.Context, userID string) error {
	err := c.local.Clear(ctx, userID)
	if c.remote != nil {
		err = multierr.Append(err, c.remote.ClearCart(ctx))
	}
	return err
}

// SignedIn runs the anonymous-to-user migration on the device and on the
// server. Both sides are no-ops on a second call.
func (c *Cart) SignedIn(ctx context.Context, userID string) (*cart.MigrateResult, error) {
	result, err := c.local.Migrate(ctx, userID)
	if err != nil {
		return nil, err
	}
	if c.remote == nil {
		return result, nil
	}
	if _, err := c.remote.MigrateCart(ctx); err != nil {
		c.logg.Warn(c.logg.WithField(ctx, "user_id", userID), "storefront.cart.remote_migrate_failed")
		return result, fmt.Errorf("migrate server cart: %w", err)
	}
	return result, nil
}
