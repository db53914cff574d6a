package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/petalpost/storefront-backend/pkg/checkout"
	dbpkg "github.com/petalpost/storefront-backend/pkg/db"
	"github.com/petalpost/storefront-backend/pkg/db/models"
	"github.com/petalpost/storefront-backend/pkg/enums"
	pkgerrors "github.com/petalpost/storefront-backend/pkg/errors"
	"github.com/petalpost/storefront-backend/pkg/logger"
	"github.com/petalpost/storefront-backend/pkg/metrics"
	"github.com/petalpost/storefront-backend/pkg/outbox"
	"github.com/petalpost/storefront-backend/pkg/outbox/payloads"
	"github.com/petalpost/storefront-backend/pkg/pagination"
	"github.com/petalpost/storefront-backend/pkg/validate"
)

const (
	maxOrderNumberAttempts = 3
	orderNumberSavepoint   = "order_number"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service covers the order lifecycle from pending draft to delivery.
type Service interface {
	Submit(ctx context.Context, input SubmitInput) (*SubmitResult, error)
	CreatePending(ctx context.Context, tx *gorm.DB, input PendingInput) (*models.Order, error)
	ConfirmPayment(ctx context.Context, tx *gorm.DB, gatewayOrderID, paymentID, source string) (*models.Order, error)
	Get(ctx context.Context, orderNumber string) (*models.Order, error)
	List(ctx context.Context, filters ListFilters) (*OrderList, error)
	UpdateStatus(ctx context.Context, orderNumber string, next enums.OrderStatus) (*models.Order, error)
	PendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
	ExpirePending(ctx context.Context, orderID uuid.UUID, reason string) (bool, error)
}

// ServiceParams wires the order service.
type ServiceParams struct {
	Repo    Repository
	Tx      txRunner
	Outbox  outboxPublisher
	Logger  *logger.Logger
	Metrics *metrics.CheckoutMetrics
	Now     func() time.Time
	// NewNumber overrides order number generation in tests.
	NewNumber func(time.Time) string
}

type service struct {
	repo      Repository
	tx        txRunner
	outbox    outboxPublisher
	logg      *logger.Logger
	metrics   *metrics.CheckoutMetrics
	now       func() time.Time
	newNumber func(time.Time) string
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	svc := &service{
		repo:      params.Repo,
		tx:        params.Tx,
		outbox:    params.Outbox,
		logg:      params.Logger,
		metrics:   params.Metrics,
		now:       params.Now,
		newNumber: params.NewNumber,
	}
	if svc.logg == nil {
		svc.logg = logger.Nop()
	}
	if svc.now == nil {
		svc.now = func() time.Time { return time.Now().UTC() }
	}
	if svc.newNumber == nil {
		svc.newNumber = NewOrderNumber
	}
	return svc, nil
}

func (s *service) Submit(ctx context.Context, input SubmitInput) (*SubmitResult, error) {
	gatewayOrderID := strings.TrimSpace(input.PaymentDetails.GatewayOrderID)
	paymentID := strings.TrimSpace(input.PaymentDetails.GatewayPaymentID)
	if gatewayOrderID == "" || paymentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "paymentDetails.razorpayOrderId and razorpayPaymentId are required")
	}
	if err := validate.Struct(&input); err != nil {
		return nil, err
	}
	if err := checkout.ValidateItems(input.Items); err != nil {
		return nil, err
	}
	minor, err := checkout.ToMinorUnits(input.TotalAmount)
	if err != nil {
		return nil, err
	}

	var result *SubmitResult
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		existing, err := repo.FindByPaymentID(ctx, paymentID)
		if err == nil {
			if existing.GatewayOrderID != gatewayOrderID {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "payment belongs to a different gateway order")
			}
			result = &SubmitResult{Order: existing}
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup order by payment")
		}

		gw, err := s.requirePaidGatewayOrder(ctx, repo, gatewayOrderID, paymentID)
		if err != nil {
			return err
		}
		if minor != gw.Amount {
			return pkgerrors.New(pkgerrors.CodeValidation, "totalAmount does not match the amount charged").WithDetails(map[string]any{
				"totalAmount":   input.TotalAmount.StringFixed(2),
				"chargedAmount": checkout.FromMinorUnits(gw.Amount).StringFixed(2),
			})
		}

		now := s.now()
		method := input.PaymentDetails.Method
		if method == "" {
			method = enums.PaymentMethodRazorpay
		}

		order, err := repo.FindByGatewayOrderID(ctx, gatewayOrderID)
		switch {
		case err == nil:
			if order.Status != enums.OrderStatusPending && !reopenable(order) {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "order for this payment is no longer pending").WithDetails(map[string]any{
					"orderNumber": order.OrderNumber,
					"status":      order.Status,
				})
			}
			order.ShippingDetails = input.ShippingDetails
			order.Items = input.Items
			order.GiftDetails = input.GiftDetails
			order.TotalAmount = input.TotalAmount
			order.PaymentMethod = method
			order.GatewayPaymentID = &paymentID
			order.Status = enums.OrderStatusConfirmed
			order.ConfirmedAt = &now
			order.CancelledAt = nil
			if err := repo.Save(ctx, order); err != nil {
				return s.mapWriteError(err)
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			order = &models.Order{
				Status:           enums.OrderStatusConfirmed,
				ShippingDetails:  input.ShippingDetails,
				Items:            input.Items,
				PaymentMethod:    method,
				GatewayOrderID:   gatewayOrderID,
				GatewayPaymentID: &paymentID,
				TotalAmount:      input.TotalAmount,
				Currency:         gw.Currency,
				GiftDetails:      input.GiftDetails,
				ConfirmedAt:      &now,
			}
			if err := s.createWithNumber(ctx, tx, repo, order); err != nil {
				return err
			}
		default:
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup order by gateway order")
		}

		if err := s.emitConfirmed(ctx, tx, order, metrics.SourceSubmit); err != nil {
			return err
		}
		result = &SubmitResult{Order: order, Created: true}
		return nil
	})
	if err != nil {
		// A concurrent submit for the same payment won the unique index; hand back its order.
		if isPaymentCollision(err) {
			if existing, findErr := s.repo.FindByPaymentID(ctx, paymentID); findErr == nil {
				return &SubmitResult{Order: existing}, nil
			}
		}
		return nil, err
	}

	if result.Created {
		s.metrics.OrderConfirmed(metrics.SourceSubmit)
		s.logg.Info(s.orderCtx(ctx, result.Order), "order.submitted")
	}
	return result, nil
}

func (s *service) requirePaidGatewayOrder(ctx context.Context, repo Repository, gatewayOrderID, paymentID string) (*models.GatewayOrder, error) {
	gw, err := repo.FindGatewayOrder(ctx, gatewayOrderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment not verified").WithDetails(map[string]string{
			"razorpayOrderId": "unknown gateway order",
		})
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup gateway order")
	}
	if gw.Status != enums.GatewayOrderStatusPaid || gw.PaymentID == nil || *gw.PaymentID != paymentID {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment not verified").WithDetails(map[string]string{
			"razorpayPaymentId": "no verified payment for this gateway order",
		})
	}
	return gw, nil
}

func (s *service) CreatePending(ctx context.Context, tx *gorm.DB, input PendingInput) (*models.Order, error) {
	if err := validate.Struct(&input.Draft); err != nil {
		return nil, err
	}
	if err := checkout.ValidateItems(input.Draft.Items); err != nil {
		return nil, err
	}
	minor, err := checkout.ToMinorUnits(input.Draft.TotalAmount)
	if err != nil {
		return nil, err
	}
	if input.Amount > 0 && minor != input.Amount {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order total does not match the requested amount").WithDetails(map[string]any{
			"totalAmount": input.Draft.TotalAmount.StringFixed(2),
			"amount":      input.Amount,
		})
	}

	order := &models.Order{
		Status:          enums.OrderStatusPending,
		ShippingDetails: input.Draft.ShippingDetails,
		Items:           input.Draft.Items,
		PaymentMethod:   enums.PaymentMethodRazorpay,
		GatewayOrderID:  input.GatewayOrderID,
		TotalAmount:     input.Draft.TotalAmount,
		Currency:        input.Currency,
		GiftDetails:     input.Draft.GiftDetails,
	}
	create := func(tx *gorm.DB) error {
		return s.createWithNumber(ctx, tx, s.repo.WithTx(tx), order)
	}
	if tx != nil {
		err = create(tx)
	} else {
		err = s.tx.WithTx(ctx, create)
	}
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.orderCtx(ctx, order), "order.pending_created")
	return order, nil
}

func (s *service) ConfirmPayment(ctx context.Context, tx *gorm.DB, gatewayOrderID, paymentID, source string) (*models.Order, error) {
	var confirmed *models.Order
	confirm := func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByGatewayOrderID(ctx, gatewayOrderID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup order by gateway order")
		}

		now := s.now()
		from := order.Status
		updates := map[string]any{
			"gateway_payment_id": paymentID,
			"confirmed_at":       now,
		}
		switch {
		case from == enums.OrderStatusPending:
		case reopenable(order):
			// Expired while unpaid, then captured anyway.
			updates["cancelled_at"] = nil
			s.logg.Warn(s.orderCtx(ctx, order), "order.reopened_after_payment")
		default:
			if from == enums.OrderStatusCancelled {
				s.logg.Warn(s.orderCtx(ctx, order), "order.paid_after_cancel")
			}
			confirmed = order
			return nil
		}

		ok, err := repo.TransitionStatus(ctx, order.ID, from, enums.OrderStatusConfirmed, updates)
		if err != nil {
			return s.mapWriteError(err)
		}
		if !ok {
			confirmed, err = repo.FindByID(ctx, order.ID)
			return err
		}
		order.Status = enums.OrderStatusConfirmed
		order.GatewayPaymentID = &paymentID
		order.ConfirmedAt = &now
		order.CancelledAt = nil
		if err := s.emitConfirmed(ctx, tx, order, source); err != nil {
			return err
		}
		confirmed = order
		s.metrics.OrderConfirmed(source)
		return nil
	}

	var err error
	if tx != nil {
		err = confirm(tx)
	} else {
		err = s.tx.WithTx(ctx, confirm)
	}
	if err != nil {
		return nil, err
	}
	if confirmed != nil {
		s.logg.Info(s.logg.WithField(s.orderCtx(ctx, confirmed), "source", source), "order.payment_confirmed")
	}
	return confirmed, nil
}

// reopenable reports whether a cancelled order was never paid, which is the
// state left behind by pending-order expiry.
func reopenable(order *models.Order) bool {
	return order.Status == enums.OrderStatusCancelled && order.GatewayPaymentID == nil && order.ConfirmedAt == nil
}

func (s *service) Get(ctx context.Context, orderNumber string) (*models.Order, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	if !OrderNumberPattern.MatchString(orderNumber) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order number")
	}
	order, err := s.repo.FindByNumber(ctx, orderNumber)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup order")
	}
	return order, nil
}

func (s *service) List(ctx context.Context, filters ListFilters) (*OrderList, error) {
	if filters.Status != nil && !filters.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
	}
	if _, err := pagination.ParseCursor(filters.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	list, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}
	return list, nil
}

func (s *service) UpdateStatus(ctx context.Context, orderNumber string, next enums.OrderStatus) (*models.Order, error) {
	if !next.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status")
	}
	if next == enums.OrderStatusConfirmed {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "orders are confirmed by payment only")
	}
	order, err := s.Get(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	from := order.Status
	if !from.CanTransitionTo(next) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "status transition not allowed").WithDetails(map[string]any{
			"from": from,
			"to":   next,
		})
	}

	now := s.now()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		updates := map[string]any{}
		if next == enums.OrderStatusCancelled {
			updates["cancelled_at"] = now
		}
		ok, err := s.repo.WithTx(tx).TransitionStatus(ctx, order.ID, from, next, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order status")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed concurrently")
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{Source: "admin"},
			Data: payloads.OrderStatusChangedEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				From:        from,
				To:          next,
				ChangedAt:   now,
			},
			OccurredAt: now,
		}); err != nil {
			return err
		}
		if next == enums.OrderStatusCancelled {
			return s.emitCancelled(ctx, tx, order, "admin", now)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	order.Status = next
	if next == enums.OrderStatusCancelled {
		order.CancelledAt = &now
	}
	s.logg.Info(s.logg.WithFields(s.orderCtx(ctx, order), map[string]any{"from": from, "to": next}), "order.status_changed")
	return order, nil
}

func (s *service) PendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	return s.repo.FindPendingBefore(ctx, cutoff, limit)
}

func (s *service) ExpirePending(ctx context.Context, orderID uuid.UUID, reason string) (bool, error) {
	var expired bool
	now := s.now()
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.TransitionStatus(ctx, orderID, enums.OrderStatusPending, enums.OrderStatusCancelled, map[string]any{
			"cancelled_at": now,
		})
		if err != nil || !ok {
			return err
		}
		order, err := repo.FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		expired = true
		return s.emitCancelled(ctx, tx, order, reason, now)
	})
	return expired, err
}

func (s *service) createWithNumber(ctx context.Context, tx *gorm.DB, repo Repository, order *models.Order) error {
	for attempt := 1; attempt <= maxOrderNumberAttempts; attempt++ {
		order.OrderNumber = s.newNumber(s.now())
		if err := tx.SavePoint(orderNumberSavepoint).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create savepoint")
		}
		err := repo.Create(ctx, order)
		if err == nil {
			return nil
		}
		if !isOrderNumberCollision(err) {
			return s.mapWriteError(err)
		}
		if rbErr := tx.RollbackTo(orderNumberSavepoint).Error; rbErr != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, rbErr, "rollback savepoint")
		}
		s.logg.Warn(s.logg.WithField(ctx, "attempt", attempt), "order.number_collision")
	}
	return pkgerrors.New(pkgerrors.CodeConflict, "could not allocate a unique order number").WithDetails(map[string]any{
		"constraint": "ux_orders_order_number",
		"attempts":   maxOrderNumberAttempts,
	})
}

func (s *service) emitConfirmed(ctx context.Context, tx *gorm.DB, order *models.Order, source string) error {
	paymentID := ""
	if order.GatewayPaymentID != nil {
		paymentID = *order.GatewayPaymentID
	}
	confirmedAt := s.now()
	if order.ConfirmedAt != nil {
		confirmedAt = *order.ConfirmedAt
	}
	var delivery *time.Time
	if d, err := time.Parse("2006-01-02", order.ShippingDetails.DeliveryDate); err == nil {
		delivery = &d
	}
	return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderConfirmed,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{Source: source},
		Data: payloads.OrderConfirmedEvent{
			OrderID:          order.ID,
			OrderNumber:      order.OrderNumber,
			GatewayOrderID:   order.GatewayOrderID,
			GatewayPaymentID: paymentID,
			TotalAmount:      order.TotalAmount,
			Currency:         order.Currency,
			ItemCount:        len(order.Items),
			CustomerEmail:    order.ShippingDetails.Email,
			DeliveryDate:     delivery,
			Source:           source,
			ConfirmedAt:      confirmedAt,
		},
		OccurredAt: confirmedAt,
	})
}

func (s *service) emitCancelled(ctx context.Context, tx *gorm.DB, order *models.Order, reason string, at time.Time) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderCancelled,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{Source: reason},
		Data: payloads.OrderCancelledEvent{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			Reason:      reason,
			CancelledAt: at,
		},
		OccurredAt: at,
	})
}

func (s *service) mapWriteError(err error) error {
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	switch {
	case isPaymentCollision(err):
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "payment already recorded").WithDetails(map[string]string{"constraint": "ux_orders_gateway_payment"})
	case dbpkg.IsUniqueViolation(err, "ux_orders_gateway_order") || dbpkg.IsUniqueViolation(err, "orders.gateway_order_id"):
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "gateway order already has an order").WithDetails(map[string]string{"constraint": "ux_orders_gateway_order"})
	default:
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "write order")
	}
}

func (s *service) orderCtx(ctx context.Context, order *models.Order) context.Context {
	return s.logg.WithFields(ctx, map[string]any{
		"order_id":         order.ID.String(),
		"order_number":     order.OrderNumber,
		"gateway_order_id": order.GatewayOrderID,
		"status":           order.Status,
	})
}

func isOrderNumberCollision(err error) bool {
	return dbpkg.IsUniqueViolation(err, "ux_orders_order_number") || dbpkg.IsUniqueViolation(err, "orders.order_number")
}

func isPaymentCollision(err error) bool {
	if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeConflict {
		if details, ok := typed.Details().(map[string]string); ok && details["constraint"] == "ux_orders_gateway_payment" {
			return true
		}
	}
	return dbpkg.IsUniqueViolation(err, "ux_orders_gateway_payment") || dbpkg.IsUniqueViolation(err, "orders.gateway_payment_id")
}
