package storefront

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"

	"github.com/petalpost/storefront-backend/pkg/enums"
	"github.com/petalpost/storefront-backend/pkg/logger"
	"github.com/petalpost/storefront-backend/pkg/types"
)

var (
	// ErrPaymentNotVerified means the server rejected the payment signature.
	// Nothing was persisted.
	ErrPaymentNotVerified = errors.New("storefront: payment not verified")
	// ErrPaymentAbandoned is returned by a PaymentUI when the shopper closes
	// the hosted payment page.
	ErrPaymentAbandoned = errors.New("storefront: payment abandoned")
)

const (
	defaultSubmitRetries   = 4
	defaultSubmitBaseDelay = 250 * time.Millisecond
	maxSubmitDelay         = 5 * time.Second
)

// PaymentUI hands the shopper to the hosted gateway page and reports the
// signed result.
type PaymentUI interface {
	Collect(ctx context.Context, order GatewayOrder) (*PaymentResult, error)
}

type CheckoutRequest struct {
	ShippingDetails types.ShippingDetails
	Items           types.OrderItems
	GiftDetails     *types.GiftDetails
	// TotalAmount defaults to the sum of the item lines.
	TotalAmount   decimal.Decimal
	Currency      string
	PaymentMethod enums.PaymentMethod
}

type CheckoutResult struct {
	GatewayOrderID string
	PaymentID      string
	Order          *Order
}

type CheckoutParams struct {
	Client *Client
	UI     PaymentUI
	Logger *logger.Logger
	// SubmitRetries bounds the retries of the final order submission.
	SubmitRetries   uint64
	SubmitBaseDelay time.Duration
}

// Checkout runs the payment sequence: gateway order, hosted payment,
// signature verification, order submission.
type Checkout struct {
	client    *Client
	ui        PaymentUI
	logg      *logger.Logger
	retries   uint64
	baseDelay time.Duration
}

func NewCheckout(params CheckoutParams) (*Checkout, error) {
	if params.Client == nil {
		return nil, fmt.Errorf("storefront client required")
	}
	if params.UI == nil {
		return nil, fmt.Errorf("payment ui required")
	}
	c := &Checkout{
		client:    params.Client,
		ui:        params.UI,
		logg:      params.Logger,
		retries:   params.SubmitRetries,
		baseDelay: params.SubmitBaseDelay,
	}
	if c.logg == nil {
		c.logg = logger.Nop()
	}
	if c.retries == 0 {
		c.retries = defaultSubmitRetries
	}
	if c.baseDelay <= 0 {
		c.baseDelay = defaultSubmitBaseDelay
	}
	return c, nil
}

func (c *Checkout) Run(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	total := req.TotalAmount
	if total.IsZero() {
		total = req.Items.Subtotal()
	}
	minor := total.Shift(2)
	if !minor.IsInteger() || !minor.IsPositive() {
		return nil, fmt.Errorf("storefront: total %s is not a positive amount with at most two decimals", total)
	}

	gwOrder, err := c.client.CreateGatewayOrder(ctx, GatewayOrderRequest{
		Amount:   minor.IntPart(),
		Currency: req.Currency,
		Order: &OrderDraft{
			ShippingDetails: req.ShippingDetails,
			Items:           req.Items,
			TotalAmount:     total,
			GiftDetails:     req.GiftDetails,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create gateway order: %w", err)
	}
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"gateway_order_id": gwOrder.ID,
		"pending_order":    gwOrder.OrderNumber,
	})

	payment, err := c.ui.Collect(ctx, *gwOrder)
	if err != nil {
		return nil, fmt.Errorf("collect payment: %w", err)
	}
	if payment == nil || strings.TrimSpace(payment.PaymentID) == "" {
		return nil, ErrPaymentAbandoned
	}
	if payment.OrderID == "" {
		payment.OrderID = gwOrder.ID
	}
	logCtx = c.logg.WithField(logCtx, "gateway_payment_id", payment.PaymentID)

	verification, err := c.client.VerifyPayment(ctx, *payment)
	if err != nil {
		return nil, fmt.Errorf("verify payment: %w", err)
	}
	if !verification.Success {
		c.logg.Warn(logCtx, "storefront.checkout.not_verified")
		return nil, ErrPaymentNotVerified
	}

	order, err := c.submit(ctx, OrderPayload{
		ShippingDetails: req.ShippingDetails,
		Items:           req.Items,
		PaymentDetails: PaymentDetails{
			Method:           req.PaymentMethod,
			GatewayOrderID:   payment.OrderID,
			GatewayPaymentID: payment.PaymentID,
			Signature:        payment.Signature,
		},
		TotalAmount: total,
		GiftDetails: req.GiftDetails,
	})
	if err != nil {
		// The payment is confirmed server side; the operator can find it by
		// gateway payment id.
		c.logg.Error(logCtx, "storefront.checkout.submit_failed", err)
		return nil, fmt.Errorf("submit order: %w", err)
	}

	c.logg.Info(c.logg.WithField(logCtx, "order_number", order.OrderNumber), "storefront.checkout.completed")
	return &CheckoutResult{
		GatewayOrderID: payment.OrderID,
		PaymentID:      payment.PaymentID,
		Order:          order,
	}, nil
}

func (c *Checkout) submit(ctx context.Context, payload OrderPayload) (*Order, error) {
	backoff := retry.NewExponential(c.baseDelay)
	backoff = retry.WithCappedDuration(maxSubmitDelay, backoff)
	backoff = retry.WithJitterPercent(20, backoff)
	backoff = retry.WithMaxRetries(c.retries, backoff)

	var order *Order
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		var err error
		order, err = c.client.SubmitOrder(ctx, payload)
		if err == nil {
			return nil
		}
		if ctx.Err() == nil && retryableSubmit(err) {
			c.logg.Warn(c.logg.WithField(ctx, "attempt", attempt), "storefront.checkout.submit_retry")
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("server returned no order")
	}
	return order, nil
}

// retryableSubmit accepts transport failures and 5xx/429 answers.
func retryableSubmit(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
