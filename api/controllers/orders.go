package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/petalpost/storefront-backend/api/middleware"
	"github.com/petalpost/storefront-backend/api/responses"
	"github.com/petalpost/storefront-backend/api/validators"
	"github.com/petalpost/storefront-backend/internal/orders"
	"github.com/petalpost/storefront-backend/pkg/enums"
	pkgerrors "github.com/petalpost/storefront-backend/pkg/errors"
	"github.com/petalpost/storefront-backend/pkg/logger"
)

type submitOrderResponse struct {
	Success bool             `json:"success"`
	Order   *orders.OrderDTO `json:"order"`
}

// SubmitOrder serves POST /orders: 201 when the order is written, 200 when an
// earlier submission for the same payment is replayed.
func SubmitOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		var body orders.SubmitInput
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Submit(r.Context(), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status := http.StatusOK
		if result.Created {
			status = http.StatusCreated
		}
		responses.WriteJSON(w, status, submitOrderResponse{Success: true, Order: orders.FromModel(result.Order)})
	}
}

// GetOrder serves GET /api/v1/orders/{orderNumber} for the confirmation page.
// Order numbers are guessable, so the full order is only returned to staff or
// to a caller whose ?email= matches the shipping email. Everyone else gets the
// summary.
func GetOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}
		order, err := svc.Get(r.Context(), chi.URLParam(r, "orderNumber"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !canViewOrder(r, order.ShippingDetails.Email) {
			responses.WriteSuccess(w, orders.SummaryFromModel(order))
			return
		}
		responses.WriteSuccess(w, orders.FromModel(order))
	}
}

func canViewOrder(r *http.Request, shippingEmail string) bool {
	switch enums.UserRole(middleware.RoleFromContext(r.Context())) {
	case enums.UserRoleAdmin, enums.UserRoleVendor:
		return true
	}
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	return email != "" && strings.EqualFold(email, strings.TrimSpace(shippingEmail))
}
