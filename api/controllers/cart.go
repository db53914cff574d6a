package controllers

import (
	"net/http"

	"github.com/petalpost/storefront-backend/api/middleware"
	"github.com/petalpost/storefront-backend/api/responses"
	"github.com/petalpost/storefront-backend/api/validators"
	"github.com/petalpost/storefront-backend/pkg/cart"
	pkgerrors "github.com/petalpost/storefront-backend/pkg/errors"
	"github.com/petalpost/storefront-backend/pkg/logger"
)

// CartStore hands out the cart manager for one storefront device.
type CartStore interface {
	ForClient(clientID string) (*cart.Manager, error)
}

type putCartRequest struct {
	Items []cart.Item `json:"items" validate:"max=100,dive"`
}

type cartResponse struct {
	Key   string      `json:"key"`
	Items []cart.Item `json:"items"`
}

// CartGet returns the caller's cart; a missing or unreadable cart is empty.
func CartGet(store CartStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		manager, userID, ok := cartScope(store, logg, w, r)
		if !ok {
			return
		}
		items, err := manager.Load(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart"))
			return
		}
		responses.WriteSuccess(w, cartResponse{Key: cart.StorageKey(userID), Items: items})
	}
}

// CartPut overwrites the caller's cart.
func CartPut(store CartStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		manager, userID, ok := cartScope(store, logg, w, r)
		if !ok {
			return
		}
		var body putCartRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if body.Items == nil {
			body.Items = []cart.Item{}
		}
		if err := manager.Save(r.Context(), userID, body.Items); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save cart"))
			return
		}
		responses.WriteSuccess(w, cartResponse{Key: cart.StorageKey(userID), Items: body.Items})
	}
}

func CartDelete(store CartStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		manager, userID, ok := cartScope(store, logg, w, r)
		if !ok {
			return
		}
		if err := manager.Clear(r.Context(), userID); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart"))
			return
		}
		responses.WriteSuccess(w, cartResponse{Key: cart.StorageKey(userID), Items: []cart.Item{}})
	}
}

// CartMigrate folds the anonymous device cart into the signed-in user's cart.
func CartMigrate(store CartStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		manager, userID, ok := cartScope(store, logg, w, r)
		if !ok {
			return
		}
		if userID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}
		result, err := manager.Migrate(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "migrate cart"))
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func cartScope(store CartStore, logg *logger.Logger, w http.ResponseWriter, r *http.Request) (*cart.Manager, string, bool) {
	if store == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
		return nil, "", false
	}
	clientID := middleware.ClientIDFromContext(r.Context())
	if clientID == "" {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "X-Client-Id header required"))
		return nil, "", false
	}
	manager, err := store.ForClient(clientID)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "open cart"))
		return nil, "", false
	}
	return manager, middleware.UserIDFromContext(r.Context()), true
}
