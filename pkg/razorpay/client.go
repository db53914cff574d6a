package razorpay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	rzp "github.com/razorpay/razorpay-go"

	"github.com/petalpost/storefront-backend/pkg/config"
	pkgerrors "github.com/petalpost/storefront-backend/pkg/errors"
	"github.com/petalpost/storefront-backend/pkg/logger"
)

const defaultTimeout = 10 * time.Second

var (
	errKeyIDRequired  = errors.New("razorpay key id is required")
	errSecretRequired = errors.New("razorpay key secret is required")
)

// orderAPI is the slice of the Razorpay SDK the storefront calls.
type orderAPI interface {
	CreateOrder(data map[string]interface{}) (map[string]interface{}, error)
	OrderPayments(orderID string) (map[string]interface{}, error)
}

type sdkOrderAPI struct {
	client *rzp.Client
}

func (s sdkOrderAPI) CreateOrder(data map[string]interface{}) (map[string]interface{}, error) {
	return s.client.Order.Create(data, nil)
}

func (s sdkOrderAPI) OrderPayments(orderID string) (map[string]interface{}, error) {
	return s.client.Order.Payments(orderID, nil, nil)
}

// Client is a thin call-through to the Razorpay orders API. It shapes
// parameters, bounds each call by a context deadline, and maps provider
// failures onto PAYMENT_GATEWAY_ERROR. Nothing is retried.
type Client struct {
	api     orderAPI
	keyID   string
	mode    string
	timeout time.Duration
	logger  *logger.Logger
}

// NewClient builds the wrapper from validated config.
func NewClient(ctx context.Context, cfg config.RazorpayConfig, logg *logger.Logger) (*Client, error) {
	keyID := strings.TrimSpace(cfg.KeyID)
	if keyID == "" {
		return nil, errKeyIDRequired
	}
	secret := strings.TrimSpace(cfg.KeySecret)
	if secret == "" {
		return nil, errSecretRequired
	}

	c := newClient(sdkOrderAPI{client: rzp.NewClient(keyID, secret)}, keyID, cfg.Environment(), cfg.Timeout, logg)
	if logg != nil {
		logg.Info(logg.WithField(ctx, "mode", c.mode), "razorpay client initialized")
	}
	return c, nil
}

func newClient(api orderAPI, keyID, mode string, timeout time.Duration, logg *logger.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{api: api, keyID: keyID, mode: mode, timeout: timeout, logger: logg}
}

// KeyID is the public key the hosted checkout needs.
func (c *Client) KeyID() string {
	if c == nil {
		return ""
	}
	return c.keyID
}

// Mode reports test or live.
func (c *Client) Mode() string {
	if c == nil {
		return ""
	}
	return c.mode
}

// OrderRequest is the input for CreateOrder. Amount is in the smallest unit.
type OrderRequest struct {
	Amount   int64
	Currency string
	Receipt  string
	Notes    map[string]string
}

// Order is the provider's view of an order.
type Order struct {
	ID       string
	Amount   int64
	Currency string
	Receipt  string
	Status   string
}

// Payment is one payment attempt against an order.
type Payment struct {
	ID       string
	OrderID  string
	Amount   int64
	Currency string
	Status   string
	Method   string
	Captured bool
}

// Settled reports whether the payment moved money (authorized or captured).
func (p Payment) Settled() bool {
	return p.Captured || p.Status == "captured" || p.Status == "authorized"
}

// CreateOrder creates a provider order.
func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	data := map[string]interface{}{
		"amount":   req.Amount,
		"currency": req.Currency,
		"receipt":  req.Receipt,
	}
	if len(req.Notes) > 0 {
		data["notes"] = req.Notes
	}
	c.log(ctx, "request", "create_order", map[string]any{"amount": req.Amount, "currency": req.Currency, "receipt": req.Receipt})

	body, err := callWithContext(ctx, c.timeout, func() (map[string]interface{}, error) {
		return c.api.CreateOrder(data)
	})
	if err != nil {
		c.log(ctx, "error", "create_order", map[string]any{"error": err.Error()})
		return nil, mapProviderError(err, "create order")
	}

	order := &Order{
		ID:       stringField(body, "id"),
		Amount:   intField(body, "amount"),
		Currency: stringField(body, "currency"),
		Receipt:  stringField(body, "receipt"),
		Status:   stringField(body, "status"),
	}
	if order.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeGateway, "razorpay create order returned no id")
	}
	c.log(ctx, "response", "create_order", map[string]any{"gateway_order_id": order.ID, "status": order.Status})
	return order, nil
}

// OrderPayments lists payment attempts for a provider order.
func (c *Client) OrderPayments(ctx context.Context, orderID string) ([]Payment, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	body, err := callWithContext(ctx, c.timeout, func() (map[string]interface{}, error) {
		return c.api.OrderPayments(orderID)
	})
	if err != nil {
		c.log(ctx, "error", "order_payments", map[string]any{"gateway_order_id": orderID, "error": err.Error()})
		return nil, mapProviderError(err, "fetch order payments")
	}

	rawItems, _ := body["items"].([]interface{})
	payments := make([]Payment, 0, len(rawItems))
	for _, raw := range rawItems {
		item, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		captured, _ := item["captured"].(bool)
		payments = append(payments, Payment{
			ID:       stringField(item, "id"),
			OrderID:  stringField(item, "order_id"),
			Amount:   intField(item, "amount"),
			Currency: stringField(item, "currency"),
			Status:   stringField(item, "status"),
			Method:   stringField(item, "method"),
			Captured: captured,
		})
	}
	return payments, nil
}

// callWithContext runs a blocking SDK call and gives up when ctx or the
// timeout ends first. The SDK call itself cannot be cancelled; its result is
// dropped.
func callWithContext(ctx context.Context, timeout time.Duration, fn func() (map[string]interface{}, error)) (map[string]interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		body map[string]interface{}
		err  error
	}
	done := make(chan result, 1)
	go func() {
		body, err := fn()
		done <- result{body: body, err: err}
	}()

	select {
	case res := <-done:
		return res.body, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ProviderError carries the provider's failure description.
type ProviderError struct {
	Operation   string `json:"operation"`
	Description string `json:"description"`
}

func mapProviderError(err error, op string) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return pkgerrors.Wrap(pkgerrors.CodeGateway, err, fmt.Sprintf("razorpay %s timed out", op)).
			WithDetails(ProviderError{Operation: op, Description: err.Error()})
	}
	return pkgerrors.Wrap(pkgerrors.CodeGateway, err, fmt.Sprintf("razorpay %s failed: %s", op, err.Error())).
		WithDetails(ProviderError{Operation: op, Description: err.Error()})
}

func stringField(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func intField(m map[string]interface{}, key string) int64 {
	switch v := m[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	default:
		return 0
	}
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{"operation": op, "phase": phase}
	for k, v := range fields {
		logFields[k] = v
	}
	ctx = c.logger.WithFields(ctx, logFields)
	if phase == "error" {
		c.logger.Error(ctx, "razorpay "+op, errors.New(fmt.Sprint(fields["error"])))
		return
	}
	c.logger.Info(ctx, "razorpay "+phase)
}
