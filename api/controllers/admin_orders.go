package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/petalpost/storefront-backend/api/responses"
	"github.com/petalpost/storefront-backend/api/validators"
	"github.com/petalpost/storefront-backend/internal/orders"
	"github.com/petalpost/storefront-backend/pkg/enums"
	pkgerrors "github.com/petalpost/storefront-backend/pkg/errors"
	"github.com/petalpost/storefront-backend/pkg/logger"
	"github.com/petalpost/storefront-backend/pkg/pagination"
)

type updateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// AdminListOrders returns one page of orders, newest first.
func AdminListOrders(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := validators.ParseQueryEnum(r, "status", enums.ParseOrderStatus)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filters := orders.ListFilters{
			Limit:  limit,
			Cursor: validators.ParseQueryString(r, "cursor", 256),
			Status: status,
		}

		list, err := svc.List(r.Context(), filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, orders.ListFromModel(list))
	}
}

// AdminUpdateOrderStatus moves an order forward through fulfilment.
func AdminUpdateOrderStatus(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		var body updateStatusRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		next, err := enums.ParseOrderStatus(body.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}

		order, err := svc.UpdateStatus(r.Context(), chi.URLParam(r, "orderNumber"), next)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, orders.FromModel(order))
	}
}
