package controllers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/petalpost/storefront-backend/api/responses"
	"github.com/petalpost/storefront-backend/api/validators"
	"github.com/petalpost/storefront-backend/internal/orders"
	"github.com/petalpost/storefront-backend/internal/payments"
	"github.com/petalpost/storefront-backend/pkg/enums"
	pkgerrors "github.com/petalpost/storefront-backend/pkg/errors"
	"github.com/petalpost/storefront-backend/pkg/logger"
)

// createOrderRequest keeps amount raw so "12.5", "abc" and 12.5 are all
// rejected by the same integer check.
type createOrderRequest struct {
	Amount   json.RawMessage    `json:"amount"`
	Currency string             `json:"currency" validate:"omitempty,len=3"`
	Order    *orders.OrderDraft `json:"order,omitempty"`
}

type createOrderResponse struct {
	Success     bool   `json:"success"`
	ID          string `json:"id"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	KeyID       string `json:"keyId,omitempty"`
	OrderNumber string `json:"orderNumber,omitempty"`
}

type verifyPaymentRequest struct {
	OrderID   string `json:"razorpay_order_id"`
	PaymentID string `json:"razorpay_payment_id"`
	Signature string `json:"razorpay_signature"`
}

type verifyPaymentResponse struct {
	Success     bool              `json:"success"`
	OrderNumber string            `json:"orderNumber,omitempty"`
	OrderStatus enums.OrderStatus `json:"orderStatus,omitempty"`
}

// CreateRazorpayOrder serves POST /create-razorpay-order.
func CreateRazorpayOrder(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		var body createOrderRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CreateGatewayOrder(r.Context(), payments.CreateOrderInput{
			Amount:   rawLiteral(body.Amount),
			Currency: body.Currency,
			Draft:    body.Order,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteJSON(w, http.StatusOK, createOrderResponse{
			Success:     true,
			ID:          result.ID,
			Amount:      result.Amount,
			Currency:    result.Currency,
			KeyID:       result.KeyID,
			OrderNumber: result.OrderNumber,
		})
	}
}

// VerifyPayment serves POST /verify-payment. A wrong signature is a normal
// `{success:false}` answer, not an error.
func VerifyPayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		var body verifyPaymentRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.VerifyPayment(r.Context(), payments.VerifyInput{
			OrderID:   body.OrderID,
			PaymentID: body.PaymentID,
			Signature: body.Signature,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteJSON(w, http.StatusOK, verifyPaymentResponse{
			Success:     result.Verified,
			OrderNumber: result.OrderNumber,
			OrderStatus: result.OrderStatus,
		})
	}
}

// rawLiteral turns a JSON number or string into the text the amount parser sees.
func rawLiteral(raw json.RawMessage) string {
	value := strings.TrimSpace(string(raw))
	if value == "" || value == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return value
}
