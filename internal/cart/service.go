package cart

import (
	"fmt"

	pkgcart "github.com/petalpost/storefront-backend/pkg/cart"
	"github.com/petalpost/storefront-backend/pkg/kv"
	"github.com/petalpost/storefront-backend/pkg/logger"
)

// StoreFactory returns the store that holds one device's carts.
type StoreFactory func(clientID string) kv.Store

// Service hands out per-device cart managers on the server side.
type Service struct {
	factory StoreFactory
	logg    *logger.Logger
}

func NewService(factory StoreFactory, logg *logger.Logger) (*Service, error) {
	if factory == nil {
		return nil, fmt.Errorf("cart store factory required")
	}
	return &Service{factory: factory, logg: logg}, nil
}

// ForClient returns a manager scoped to clientID.
func (s *Service) ForClient(clientID string) (*pkgcart.Manager, error) {
	mgr, err := pkgcart.NewManager(s.factory(clientID), s.logg)
	if err != nil {
		return nil, fmt.Errorf("cart for client %s: %w", clientID, err)
	}
	return mgr, nil
}
