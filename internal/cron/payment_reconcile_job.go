package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/petalpost/storefront-backend/internal/payments"
	"github.com/petalpost/storefront-backend/pkg/db/models"
	"github.com/petalpost/storefront-backend/pkg/logger"
)

const (
	paymentReconcileJobName = "payment-reconcile"
	defaultReconcileBatch   = 100
	expiredReason           = "payment_timeout"
)

type pendingOrders interface {
	PendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
	ExpirePending(ctx context.Context, orderID uuid.UUID, reason string) (bool, error)
}

type gatewaySettler interface {
	SettleFromGateway(ctx context.Context, gatewayOrderID string) (*payments.SettleResult, error)
	ExpireGatewayOrder(ctx context.Context, gatewayOrderID string) error
}

type PaymentReconcileJobParams struct {
	Logger   *logger.Logger
	Orders   pendingOrders
	Payments gatewaySettler
	// Grace is how old a pending order must be before the gateway is asked
	// about it; younger ones are usually mid-checkout.
	Grace time.Duration
	// TTL is the age at which an unpaid pending order is cancelled.
	TTL       time.Duration
	BatchSize int
	Now       func() time.Time
}

// NewPaymentReconcileJob confirms pending orders whose capture never reached
// /verify-payment and cancels the ones that stayed unpaid past the TTL.
func NewPaymentReconcileJob(params PaymentReconcileJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.Orders == nil:
		return nil, fmt.Errorf("order service required")
	case params.Payments == nil:
		return nil, fmt.Errorf("payment service required")
	case params.Grace <= 0:
		return nil, fmt.Errorf("pending grace must be positive")
	case params.TTL < params.Grace:
		return nil, fmt.Errorf("pending ttl %s shorter than grace %s", params.TTL, params.Grace)
	}
	job := &paymentReconcileJob{
		logg:     params.Logger,
		orders:   params.Orders,
		payments: params.Payments,
		grace:    params.Grace,
		ttl:      params.TTL,
		batch:    params.BatchSize,
		now:      params.Now,
	}
	if job.batch <= 0 {
		job.batch = defaultReconcileBatch
	}
	if job.now == nil {
		job.now = func() time.Time { return time.Now().UTC() }
	}
	return job, nil
}

type paymentReconcileJob struct {
	logg     *logger.Logger
	orders   pendingOrders
	payments gatewaySettler
	grace    time.Duration
	ttl      time.Duration
	batch    int
	now      func() time.Time
}

func (j *paymentReconcileJob) Name() string { return paymentReconcileJobName }

func (j *paymentReconcileJob) Run(ctx context.Context) error {
	now := j.now()
	pending, err := j.orders.PendingBefore(ctx, now.Add(-j.grace), j.batch)
	if err != nil {
		return fmt.Errorf("list pending orders: %w", err)
	}

	var (
		errs      error
		confirmed int
		cancelled int
	)
	for _, order := range pending {
		outcome, err := j.reconcile(ctx, order, now)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("order %s: %w", order.OrderNumber, err))
			continue
		}
		switch outcome {
		case outcomeConfirmed:
			confirmed++
		case outcomeCancelled:
			cancelled++
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"scanned":   len(pending),
		"confirmed": confirmed,
		"cancelled": cancelled,
		"failed":    len(multierr.Errors(errs)),
	}), "payment.reconcile.summary")
	return errs
}

type reconcileOutcome int

const (
	outcomeUntouched reconcileOutcome = iota
	outcomeConfirmed
	outcomeCancelled
)

func (j *paymentReconcileJob) reconcile(ctx context.Context, order models.Order, now time.Time) (reconcileOutcome, error) {
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"order_number":     order.OrderNumber,
		"gateway_order_id": order.GatewayOrderID,
	})

	settled, err := j.payments.SettleFromGateway(ctx, order.GatewayOrderID)
	if err != nil {
		return outcomeUntouched, err
	}
	if settled.Settled {
		j.logg.Info(j.logg.WithField(logCtx, "gateway_payment_id", settled.PaymentID), "payment.reconcile.confirmed")
		return outcomeConfirmed, nil
	}

	if now.Sub(order.CreatedAt) < j.ttl {
		return outcomeUntouched, nil
	}
	expired, err := j.orders.ExpirePending(ctx, order.ID, expiredReason)
	if err != nil {
		return outcomeUntouched, err
	}
	if !expired {
		return outcomeUntouched, nil
	}
	if err := j.payments.ExpireGatewayOrder(ctx, order.GatewayOrderID); err != nil {
		return outcomeCancelled, err
	}
	j.logg.Info(logCtx, "payment.reconcile.cancelled")
	return outcomeCancelled, nil
}
