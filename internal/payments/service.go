package payments

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/petalpost/storefront-backend/internal/orders"
	"github.com/petalpost/storefront-backend/pkg/checkout"
	"github.com/petalpost/storefront-backend/pkg/db/models"
	"github.com/petalpost/storefront-backend/pkg/enums"
	pkgerrors "github.com/petalpost/storefront-backend/pkg/errors"
	"github.com/petalpost/storefront-backend/pkg/logger"
	"github.com/petalpost/storefront-backend/pkg/metrics"
	"github.com/petalpost/storefront-backend/pkg/razorpay"
)

// Gateway is the provider surface the payment flow needs.
type Gateway interface {
	CreateOrder(ctx context.Context, req razorpay.OrderRequest) (*razorpay.Order, error)
	OrderPayments(ctx context.Context, orderID string) ([]razorpay.Payment, error)
	KeyID() string
}

// OrderConfirmer is the slice of the order service that payment events drive.
type OrderConfirmer interface {
	CreatePending(ctx context.Context, tx *gorm.DB, input orders.PendingInput) (*models.Order, error)
	ConfirmPayment(ctx context.Context, tx *gorm.DB, gatewayOrderID, paymentID, source string) (*models.Order, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// CreateOrderInput carries the raw amount literal so that "12.5" and "abc"
// can be told apart from valid integers before anything is sent upstream.
type CreateOrderInput struct {
	Amount   string
	Currency string
	Draft    *orders.OrderDraft
}

type CreateOrderResult struct {
	ID          string
	Amount      int64
	Currency    string
	KeyID       string
	OrderNumber string
}

type VerifyInput struct {
	OrderID   string
	PaymentID string
	Signature string
}

// VerifyResult carries the order state after the payment was applied, so a
// payment that lands on a cancelled order is not reported as a plain success.
type VerifyResult struct {
	Verified    bool
	OrderNumber string
	OrderStatus enums.OrderStatus
}

// SettleResult reports what reconciliation found upstream.
type SettleResult struct {
	Settled   bool
	PaymentID string
	Order     *models.Order
}

type Service interface {
	CreateGatewayOrder(ctx context.Context, input CreateOrderInput) (*CreateOrderResult, error)
	VerifyPayment(ctx context.Context, input VerifyInput) (*VerifyResult, error)
	SettleFromGateway(ctx context.Context, gatewayOrderID string) (*SettleResult, error)
	ExpireGatewayOrder(ctx context.Context, gatewayOrderID string) error
}

type ServiceParams struct {
	Repo            Repository
	Tx              txRunner
	Gateway         Gateway
	Verifier        *SignatureVerifier
	Orders          OrderConfirmer
	DefaultCurrency string
	Logger          *logger.Logger
	Metrics         *metrics.CheckoutMetrics
	Now             func() time.Time
}

type service struct {
	repo            Repository
	tx              txRunner
	gateway         Gateway
	verifier        *SignatureVerifier
	orders          OrderConfirmer
	defaultCurrency enums.Currency
	logg            *logger.Logger
	metrics         *metrics.CheckoutMetrics
	now             func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("gateway order repository required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Gateway == nil:
		return nil, fmt.Errorf("payment gateway required")
	case params.Verifier == nil:
		return nil, fmt.Errorf("signature verifier required")
	case params.Orders == nil:
		return nil, fmt.Errorf("order service required")
	}
	currency := enums.CurrencyINR
	if strings.TrimSpace(params.DefaultCurrency) != "" {
		parsed, err := enums.ParseCurrency(params.DefaultCurrency)
		if err != nil {
			return nil, err
		}
		currency = parsed
	}
	svc := &service{
		repo:            params.Repo,
		tx:              params.Tx,
		gateway:         params.Gateway,
		verifier:        params.Verifier,
		orders:          params.Orders,
		defaultCurrency: currency,
		logg:            params.Logger,
		metrics:         params.Metrics,
		now:             params.Now,
	}
	if svc.logg == nil {
		svc.logg = logger.Nop()
	}
	if svc.now == nil {
		svc.now = func() time.Time { return time.Now().UTC() }
	}
	return svc, nil
}

func (s *service) CreateGatewayOrder(ctx context.Context, input CreateOrderInput) (*CreateOrderResult, error) {
	amount, err := checkout.ParseMinorAmount(input.Amount)
	if err != nil {
		return nil, err
	}
	currency := s.defaultCurrency
	if strings.TrimSpace(input.Currency) != "" {
		currency, err = enums.ParseCurrency(input.Currency)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported currency").
				WithDetails(map[string]string{"currency": "unsupported"})
		}
	}
	if input.Draft != nil {
		if err := checkout.ValidateItems(input.Draft.Items); err != nil {
			return nil, err
		}
	}

	receipt := "order_" + strconv.FormatInt(s.now().UnixMilli(), 10)
	created, err := s.gateway.CreateOrder(ctx, razorpay.OrderRequest{
		Amount:   amount,
		Currency: string(currency),
		Receipt:  receipt,
	})
	s.metrics.GatewayOrder(err)
	if err != nil {
		return nil, err
	}

	result := &CreateOrderResult{
		ID:       created.ID,
		Amount:   created.Amount,
		Currency: created.Currency,
		KeyID:    s.gateway.KeyID(),
	}
	if result.Amount == 0 {
		result.Amount = amount
	}
	if result.Currency == "" {
		result.Currency = string(currency)
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, &models.GatewayOrder{
			ID:       created.ID,
			Receipt:  receipt,
			Amount:   result.Amount,
			Currency: currency,
			Status:   enums.GatewayOrderStatusCreated,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record gateway order")
		}
		if input.Draft == nil {
			return nil
		}
		pending, err := s.orders.CreatePending(ctx, tx, orders.PendingInput{
			GatewayOrderID: created.ID,
			Amount:         result.Amount,
			Currency:       currency,
			Draft:          *input.Draft,
		})
		if err != nil {
			return err
		}
		result.OrderNumber = pending.OrderNumber
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"gateway_order_id": result.ID,
		"amount":           result.Amount,
		"currency":         result.Currency,
		"receipt":          receipt,
		"pending_order":    result.OrderNumber,
	}), "payment.gateway_order_created")
	return result, nil
}

func (s *service) VerifyPayment(ctx context.Context, input VerifyInput) (*VerifyResult, error) {
	valid, err := s.verifier.Verify(input.OrderID, input.PaymentID, input.Signature)
	if err != nil {
		return nil, err
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"gateway_order_id":   input.OrderID,
		"gateway_payment_id": input.PaymentID,
	})

	result := &VerifyResult{}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		gw, err := repo.FindByID(ctx, input.OrderID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logg.Warn(logCtx, "payment.verify.unknown_gateway_order")
			return nil
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup gateway order")
		}

		if !valid {
			s.logg.Warn(s.logg.WithField(logCtx, "failed_verifications", gw.FailedVerifications+1), "payment.verify.signature_mismatch")
			return repo.IncrementFailedVerifications(ctx, gw.ID)
		}

		if gw.Status == enums.GatewayOrderStatusPaid && gw.PaymentID != nil && *gw.PaymentID != input.PaymentID {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "gateway order already paid by another payment")
		}
		if _, err := repo.MarkPaid(ctx, gw.ID, input.PaymentID, s.now()); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark gateway order paid")
		}
		order, err := s.orders.ConfirmPayment(ctx, tx, gw.ID, input.PaymentID, metrics.SourceVerify)
		if err != nil {
			return err
		}
		result.Verified = true
		if order != nil {
			result.OrderNumber = order.OrderNumber
			result.OrderStatus = order.Status
		}
		return nil
	})
	switch {
	case err != nil:
		s.metrics.Verification("error")
		return nil, err
	case result.Verified:
		s.metrics.Verification("valid")
		s.logg.Info(logCtx, "payment.verified")
	default:
		s.metrics.Verification("invalid")
	}
	return result, nil
}

func (s *service) SettleFromGateway(ctx context.Context, gatewayOrderID string) (*SettleResult, error) {
	payments, err := s.gateway.OrderPayments(ctx, gatewayOrderID)
	if err != nil {
		return nil, err
	}
	var settled *razorpay.Payment
	for i := range payments {
		if payments[i].Settled() {
			settled = &payments[i]
			break
		}
	}
	if settled == nil {
		return &SettleResult{}, nil
	}

	result := &SettleResult{Settled: true, PaymentID: settled.ID}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.repo.WithTx(tx).MarkPaid(ctx, gatewayOrderID, settled.ID, s.now()); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark gateway order paid")
		}
		order, err := s.orders.ConfirmPayment(ctx, tx, gatewayOrderID, settled.ID, metrics.SourceReconcile)
		if err != nil {
			return err
		}
		result.Order = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) ExpireGatewayOrder(ctx context.Context, gatewayOrderID string) error {
	if _, err := s.repo.MarkExpired(ctx, gatewayOrderID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "expire gateway order")
	}
	return nil
}
