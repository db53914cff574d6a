package storefront

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/petalpost/storefront-backend/pkg/enums"
	"github.com/petalpost/storefront-backend/pkg/types"
)

// OrderDraft is the order known before payment; sent with the gateway order
// request so the server can hold a pending order.
type OrderDraft struct {
	ShippingDetails types.ShippingDetails `json:"shippingDetails"`
	Items           types.OrderItems      `json:"items"`
	TotalAmount     decimal.Decimal       `json:"totalAmount"`
	GiftDetails     *types.GiftDetails    `json:"giftDetails,omitempty"`
}

type GatewayOrderRequest struct {
	Amount   int64       `json:"amount"`
	Currency string      `json:"currency,omitempty"`
	Order    *OrderDraft `json:"order,omitempty"`
}

type GatewayOrder struct {
	Success     bool   `json:"success"`
	ID          string `json:"id"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	KeyID       string `json:"keyId,omitempty"`
	OrderNumber string `json:"orderNumber,omitempty"`
}

// PaymentResult is what the hosted payment UI hands back on success.
type PaymentResult struct {
	OrderID   string `json:"razorpay_order_id"`
	PaymentID string `json:"razorpay_payment_id"`
	Signature string `json:"razorpay_signature"`
}

type Verification struct {
	Success     bool              `json:"success"`
	OrderNumber string            `json:"orderNumber,omitempty"`
	OrderStatus enums.OrderStatus `json:"orderStatus,omitempty"`
}

type PaymentDetails struct {
	Method           enums.PaymentMethod `json:"method,omitempty"`
	GatewayOrderID   string              `json:"razorpayOrderId"`
	GatewayPaymentID string              `json:"razorpayPaymentId"`
	Signature        string              `json:"razorpaySignature,omitempty"`
}

// OrderPayload is the body of POST /orders.
type OrderPayload struct {
	ShippingDetails types.ShippingDetails `json:"shippingDetails"`
	Items           types.OrderItems      `json:"items"`
	PaymentDetails  PaymentDetails        `json:"paymentDetails"`
	TotalAmount     decimal.Decimal       `json:"totalAmount"`
	GiftDetails     *types.GiftDetails    `json:"giftDetails,omitempty"`
}

type Order struct {
	ID               string                `json:"id"`
	OrderNumber      string                `json:"orderNumber"`
	Status           enums.OrderStatus     `json:"status"`
	ShippingDetails  types.ShippingDetails `json:"shippingDetails"`
	Items            types.OrderItems      `json:"items"`
	PaymentMethod    enums.PaymentMethod   `json:"paymentMethod"`
	GatewayOrderID   string                `json:"razorpayOrderId"`
	GatewayPaymentID *string               `json:"razorpayPaymentId,omitempty"`
	TotalAmount      decimal.Decimal       `json:"totalAmount"`
	Currency         enums.Currency        `json:"currency"`
	GiftDetails      *types.GiftDetails    `json:"giftDetails,omitempty"`
	ConfirmedAt      *time.Time            `json:"confirmedAt,omitempty"`
	CreatedAt        time.Time             `json:"createdAt"`
}

type submitResponse struct {
	Success bool   `json:"success"`
	Order   *Order `json:"order"`
}

// SessionUser is the identity the token check reports.
type SessionUser struct {
	ID    string         `json:"id"`
	Email string         `json:"email,omitempty"`
	Role  enums.UserRole `json:"role"`
}

type TokenCheck struct {
	Authenticated bool         `json:"authenticated"`
	User          *SessionUser `json:"user,omitempty"`
}

type LoginResult struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      *SessionUser `json:"user"`
}

// CreateGatewayOrder calls POST /create-razorpay-order.
func (c *Client) CreateGatewayOrder(ctx context.Context, req GatewayOrderRequest) (*GatewayOrder, error) {
	var out GatewayOrder
	if err := c.do(ctx, http.MethodPost, "/create-razorpay-order", req, &out, requestOptions{}); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyPayment calls POST /verify-payment. A signature mismatch is not an
// error; it comes back as Success=false.
func (c *Client) VerifyPayment(ctx context.Context, result PaymentResult) (*Verification, error) {
	var out Verification
	if err := c.do(ctx, http.MethodPost, "/verify-payment", result, &out, requestOptions{}); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitOrder calls POST /orders keyed by the gateway payment id, so a retry
// replays the first answer instead of writing a second order.
func (c *Client) SubmitOrder(ctx context.Context, payload OrderPayload) (*Order, error) {
	var out submitResponse
	ro := requestOptions{idempotencyKey: payload.PaymentDetails.GatewayPaymentID}
	if err := c.do(ctx, http.MethodPost, "/orders", payload, &out, ro); err != nil {
		return nil, err
	}
	return out.Order, nil
}

// GetOrder reads an order back. The server only includes shipping and payment
// details when email matches the order's shipping email or the client holds a
// staff token; otherwise those fields come back empty.
func (c *Client) GetOrder(ctx context.Context, orderNumber, email string) (*Order, error) {
	var out envelope[*Order]
	path := "/api/v1/orders/" + url.PathEscape(orderNumber)
	if email != "" {
		path += "?" + url.Values{"email": {email}}.Encode()
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out, requestOptions{}); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	body := map[string]string{"email": email, "password": password}
	var out envelope[*LoginResult]
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/login", body, &out, requestOptions{}); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// CheckToken asks the server whether token is still good.
func (c *Client) CheckToken(ctx context.Context, token string) (*TokenCheck, error) {
	var out envelope[TokenCheck]
	if err := c.do(ctx, http.MethodGet, "/api/v1/auth/check", nil, &out, requestOptions{token: token}); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

func (c *Client) Logout(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/auth/logout", nil, nil, requestOptions{token: token})
}
