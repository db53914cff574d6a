package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/petalpost/storefront-backend/internal/orders"
	dbpkg "github.com/petalpost/storefront-backend/pkg/db"
	"github.com/petalpost/storefront-backend/pkg/db/dbtest"
	"github.com/petalpost/storefront-backend/pkg/db/models"
	"github.com/petalpost/storefront-backend/pkg/enums"
	pkgerrors "github.com/petalpost/storefront-backend/pkg/errors"
	"github.com/petalpost/storefront-backend/pkg/outbox"
	"github.com/petalpost/storefront-backend/pkg/razorpay"
	"github.com/petalpost/storefront-backend/pkg/types"
)

type stubGateway struct {
	calls    int
	lastReq  razorpay.OrderRequest
	order    *razorpay.Order
	err      error
	payments []razorpay.Payment
}

func (s *stubGateway) CreateOrder(_ context.Context, req razorpay.OrderRequest) (*razorpay.Order, error) {
	s.calls++
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	if s.order != nil {
		return s.order, nil
	}
	return &razorpay.Order{ID: "order_IluGWxBm9U8zJ8", Amount: req.Amount, Currency: req.Currency, Receipt: req.Receipt, Status: "created"}, nil
}

func (s *stubGateway) OrderPayments(context.Context, string) ([]razorpay.Payment, error) {
	return s.payments, s.err
}

func (s *stubGateway) KeyID() string { return "rzp_test_abc" }

type paymentsFixture struct {
	db      *gorm.DB
	gateway *stubGateway
	orders  orders.Service
	svc     Service
	now     time.Time
}

func newPaymentsFixture(t *testing.T) *paymentsFixture {
	t.Helper()
	conn := dbtest.Open(t, &models.Order{}, &models.GatewayOrder{}, &models.OutboxEvent{})
	tx := dbpkg.NewFromConn(conn)
	orderSvc, err := orders.NewService(orders.ServiceParams{
		Repo:   orders.NewRepository(conn),
		Tx:     tx,
		Outbox: outbox.NewService(outbox.NewRepository(conn), nil),
	})
	require.NoError(t, err)

	verifier, err := NewSignatureVerifier(testSecret)
	require.NoError(t, err)

	f := &paymentsFixture{db: conn, gateway: &stubGateway{}, orders: orderSvc, now: time.UnixMilli(1700000000000).UTC()}
	f.svc, err = NewService(ServiceParams{
		Repo:     NewRepository(conn),
		Tx:       tx,
		Gateway:  f.gateway,
		Verifier: verifier,
		Orders:   orderSvc,
		Now:      func() time.Time { return f.now },
	})
	require.NoError(t, err)
	return f
}

func (f *paymentsFixture) gatewayOrder(t *testing.T, id string) *models.GatewayOrder {
	t.Helper()
	gw, err := NewRepository(f.db).FindByID(context.Background(), id)
	require.NoError(t, err)
	return gw
}

func draft() *orders.OrderDraft {
	return &orders.OrderDraft{
		ShippingDetails: types.ShippingDetails{
			FullName: "Asha Rao", Email: "asha@example.com", Phone: "+919876543210",
			AddressLine1: "12 MG Road", City: "Bengaluru", State: "KA", PostalCode: "560001", Country: "IN",
		},
		Items:       types.OrderItems{{ProductID: "roses-12", Title: "Dozen red roses", Quantity: 1, UnitPrice: decimal.NewFromInt(500)}},
		TotalAmount: decimal.NewFromInt(500),
	}
}

func TestCreateGatewayOrderEchoesProvider(t *testing.T) {
	f := newPaymentsFixture(t)

	res, err := f.svc.CreateGatewayOrder(context.Background(), CreateOrderInput{Amount: "50000", Currency: "INR"})
	require.NoError(t, err)
	assert.Equal(t, "order_IluGWxBm9U8zJ8", res.ID)
	assert.Equal(t, int64(50000), res.Amount)
	assert.Equal(t, "INR", res.Currency)
	assert.Equal(t, "rzp_test_abc", res.KeyID)
	assert.Empty(t, res.OrderNumber)
	assert.Equal(t, "order_1700000000000", f.gateway.lastReq.Receipt)

	gw := f.gatewayOrder(t, res.ID)
	assert.Equal(t, enums.GatewayOrderStatusCreated, gw.Status)
	assert.Equal(t, int64(50000), gw.Amount)
}

func TestCreateGatewayOrderDefaultsCurrency(t *testing.T) {
	f := newPaymentsFixture(t)
	res, err := f.svc.CreateGatewayOrder(context.Background(), CreateOrderInput{Amount: "100"})
	require.NoError(t, err)
	assert.Equal(t, "INR", f.gateway.lastReq.Currency)
	assert.Equal(t, "INR", res.Currency)
}

func TestCreateGatewayOrderRejectsBadAmountWithoutCallingUpstream(t *testing.T) {
	f := newPaymentsFixture(t)
	for _, amount := range []string{"0", "-100", "abc", "12.5", ""} {
		_, err := f.svc.CreateGatewayOrder(context.Background(), CreateOrderInput{Amount: amount, Currency: "INR"})
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), amount)
	}
	_, err := f.svc.CreateGatewayOrder(context.Background(), CreateOrderInput{Amount: "100", Currency: "XYZ"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Zero(t, f.gateway.calls)
}

func TestCreateGatewayOrderSurfacesProviderError(t *testing.T) {
	f := newPaymentsFixture(t)
	f.gateway.err = pkgerrors.Wrap(pkgerrors.CodeGateway, errors.New("BAD_REQUEST_ERROR"), "razorpay create order failed")

	_, err := f.svc.CreateGatewayOrder(context.Background(), CreateOrderInput{Amount: "100", Currency: "INR"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGateway))
	assert.Equal(t, 1, f.gateway.calls)

	var count int64
	require.NoError(t, f.db.Model(&models.GatewayOrder{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCreateGatewayOrderWithDraftCreatesPendingOrder(t *testing.T) {
	f := newPaymentsFixture(t)
	res, err := f.svc.CreateGatewayOrder(context.Background(), CreateOrderInput{Amount: "50000", Currency: "INR", Draft: draft()})
	require.NoError(t, err)
	require.NotEmpty(t, res.OrderNumber)

	order, err := f.orders.Get(context.Background(), res.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPending, order.Status)
	assert.Equal(t, res.ID, order.GatewayOrderID)
}

func TestVerifyPaymentMismatchCreatesNothing(t *testing.T) {
	f := newPaymentsFixture(t)
	ctx := context.Background()
	created, err := f.svc.CreateGatewayOrder(ctx, CreateOrderInput{Amount: "50000", Currency: "INR", Draft: draft()})
	require.NoError(t, err)

	res, err := f.svc.VerifyPayment(ctx, VerifyInput{OrderID: created.ID, PaymentID: "pay_1", Signature: "deadbeef"})
	require.NoError(t, err)
	assert.False(t, res.Verified)
	assert.Empty(t, res.OrderNumber)

	gw := f.gatewayOrder(t, created.ID)
	assert.Equal(t, enums.GatewayOrderStatusCreated, gw.Status)
	assert.Equal(t, 1, gw.FailedVerifications)

	order, err := f.orders.Get(ctx, created.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPending, order.Status)
}

func TestVerifyPaymentConfirmsPendingOrder(t *testing.T) {
	f := newPaymentsFixture(t)
	ctx := context.Background()
	created, err := f.svc.CreateGatewayOrder(ctx, CreateOrderInput{Amount: "50000", Currency: "INR", Draft: draft()})
	require.NoError(t, err)
	sig := referenceSignature(testSecret, created.ID, "pay_1")

	res, err := f.svc.VerifyPayment(ctx, VerifyInput{OrderID: created.ID, PaymentID: "pay_1", Signature: sig})
	require.NoError(t, err)
	assert.True(t, res.Verified)
	assert.Equal(t, created.OrderNumber, res.OrderNumber)

	gw := f.gatewayOrder(t, created.ID)
	assert.Equal(t, enums.GatewayOrderStatusPaid, gw.Status)
	require.NotNil(t, gw.PaymentID)
	assert.Equal(t, "pay_1", *gw.PaymentID)

	order, err := f.orders.Get(ctx, created.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusConfirmed, order.Status)

	replay, err := f.svc.VerifyPayment(ctx, VerifyInput{OrderID: created.ID, PaymentID: "pay_1", Signature: sig})
	require.NoError(t, err)
	assert.True(t, replay.Verified)

	_, err = f.svc.VerifyPayment(ctx, VerifyInput{OrderID: created.ID, PaymentID: "pay_2", Signature: referenceSignature(testSecret, created.ID, "pay_2")})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestVerifyPaymentUnknownGatewayOrder(t *testing.T) {
	f := newPaymentsFixture(t)
	res, err := f.svc.VerifyPayment(context.Background(), VerifyInput{
		OrderID:   "order_unknown",
		PaymentID: "pay_1",
		Signature: referenceSignature(testSecret, "order_unknown", "pay_1"),
	})
	require.NoError(t, err)
	assert.False(t, res.Verified)

	_, err = f.svc.VerifyPayment(context.Background(), VerifyInput{OrderID: "order_unknown"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestFullCheckoutWithoutDraft(t *testing.T) {
	f := newPaymentsFixture(t)
	ctx := context.Background()
	created, err := f.svc.CreateGatewayOrder(ctx, CreateOrderInput{Amount: "50000", Currency: "INR"})
	require.NoError(t, err)

	verified, err := f.svc.VerifyPayment(ctx, VerifyInput{OrderID: created.ID, PaymentID: "pay_9", Signature: referenceSignature(testSecret, created.ID, "pay_9")})
	require.NoError(t, err)
	require.True(t, verified.Verified)

	d := draft()
	submitted, err := f.orders.Submit(ctx, orders.SubmitInput{
		ShippingDetails: d.ShippingDetails,
		Items:           d.Items,
		PaymentDetails:  orders.PaymentDetails{GatewayOrderID: created.ID, GatewayPaymentID: "pay_9"},
		TotalAmount:     d.TotalAmount,
	})
	require.NoError(t, err)
	assert.True(t, submitted.Created)
	assert.Equal(t, enums.OrderStatusConfirmed, submitted.Order.Status)
	assert.Regexp(t, `^ORD\d+$`, submitted.Order.OrderNumber)
}

func TestSettleFromGateway(t *testing.T) {
	f := newPaymentsFixture(t)
	ctx := context.Background()
	created, err := f.svc.CreateGatewayOrder(ctx, CreateOrderInput{Amount: "50000", Currency: "INR", Draft: draft()})
	require.NoError(t, err)

	f.gateway.payments = []razorpay.Payment{{ID: "pay_failed", Status: "failed"}}
	res, err := f.svc.SettleFromGateway(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, res.Settled)

	f.gateway.payments = append(f.gateway.payments, razorpay.Payment{ID: "pay_ok", Status: "captured", Captured: true})
	res, err = f.svc.SettleFromGateway(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, res.Settled)
	assert.Equal(t, "pay_ok", res.PaymentID)
	require.NotNil(t, res.Order)
	assert.Equal(t, enums.OrderStatusConfirmed, res.Order.Status)
	assert.Equal(t, enums.GatewayOrderStatusPaid, f.gatewayOrder(t, created.ID).Status)
}

func TestExpireGatewayOrder(t *testing.T) {
	f := newPaymentsFixture(t)
	ctx := context.Background()
	created, err := f.svc.CreateGatewayOrder(ctx, CreateOrderInput{Amount: "100", Currency: "INR"})
	require.NoError(t, err)

	require.NoError(t, f.svc.ExpireGatewayOrder(ctx, created.ID))
	assert.Equal(t, enums.GatewayOrderStatusExpired, f.gatewayOrder(t, created.ID).Status)
}

func TestPaymentCapturedAfterExpiryReopensOrder(t *testing.T) {
	f := newPaymentsFixture(t)
	ctx := context.Background()
	created, err := f.svc.CreateGatewayOrder(ctx, CreateOrderInput{Amount: "50000", Currency: "INR", Draft: draft()})
	require.NoError(t, err)

	pending, err := f.orders.Get(ctx, created.OrderNumber)
	require.NoError(t, err)
	expired, err := f.orders.ExpirePending(ctx, pending.ID, "payment_timeout")
	require.NoError(t, err)
	require.True(t, expired)
	require.NoError(t, f.svc.ExpireGatewayOrder(ctx, created.ID))

	res, err := f.svc.VerifyPayment(ctx, VerifyInput{OrderID: created.ID, PaymentID: "pay_late", Signature: referenceSignature(testSecret, created.ID, "pay_late")})
	require.NoError(t, err)
	assert.True(t, res.Verified)
	assert.Equal(t, created.OrderNumber, res.OrderNumber)
	assert.Equal(t, enums.OrderStatusConfirmed, res.OrderStatus)

	order, err := f.orders.Get(ctx, created.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusConfirmed, order.Status)
	require.NotNil(t, order.GatewayPaymentID)
	assert.Equal(t, "pay_late", *order.GatewayPaymentID)
	assert.NotNil(t, order.ConfirmedAt)
	assert.Nil(t, order.CancelledAt)

	var confirmedEvents int64
	require.NoError(t, f.db.Model(&models.OutboxEvent{}).
		Where("event_type = ? AND aggregate_id = ?", enums.EventOrderConfirmed, order.ID).
		Count(&confirmedEvents).Error)
	assert.Equal(t, int64(1), confirmedEvents)

	d := draft()
	submitted, err := f.orders.Submit(ctx, orders.SubmitInput{
		ShippingDetails: d.ShippingDetails,
		Items:           d.Items,
		PaymentDetails:  orders.PaymentDetails{GatewayOrderID: created.ID, GatewayPaymentID: "pay_late"},
		TotalAmount:     d.TotalAmount,
	})
	require.NoError(t, err)
	assert.False(t, submitted.Created)
	assert.Equal(t, created.OrderNumber, submitted.Order.OrderNumber)
	assert.Equal(t, enums.OrderStatusConfirmed, submitted.Order.Status)
}
