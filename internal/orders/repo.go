package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/petalpost/storefront-backend/pkg/db/models"
	"github.com/petalpost/storefront-backend/pkg/enums"
	"github.com/petalpost/storefront-backend/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) Save(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Save(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *repository) FindByNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	return r.first(ctx, "order_number = ?", orderNumber)
}

func (r *repository) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.Order, error) {
	return r.first(ctx, "gateway_order_id = ?", gatewayOrderID)
}

func (r *repository) FindByPaymentID(ctx context.Context, paymentID string) (*models.Order, error) {
	return r.first(ctx, "gateway_payment_id = ?", paymentID)
}

func (r *repository) first(ctx context.Context, query string, args ...any) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where(query, args...).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) List(ctx context.Context, filters ListFilters) (*OrderList, error) {
	cursor, err := pagination.ParseCursor(filters.Cursor)
	if err != nil {
		return nil, err
	}

	q := r.db.WithContext(ctx).Model(&models.Order{})
	if filters.Status != nil {
		q = q.Where("status = ?", *filters.Status)
	}
	var rows []models.Order
	if err := q.Scopes(pagination.Keyset(cursor, filters.Limit)).Find(&rows).Error; err != nil {
		return nil, err
	}

	page, next := pagination.Page(rows, filters.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	return &OrderList{Orders: page, NextCursor: next}, nil
}

func (r *repository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus, updates map[string]any) (bool, error) {
	values := map[string]any{"status": to}
	for k, v := range updates {
		values[k] = v
	}
	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ?", id, from).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) FindPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	var rows []models.Order
	q := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", enums.OrderStatusPending, cutoff).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) FindGatewayOrder(ctx context.Context, gatewayOrderID string) (*models.GatewayOrder, error) {
	var gw models.GatewayOrder
	if err := r.db.WithContext(ctx).Where("id = ?", gatewayOrderID).First(&gw).Error; err != nil {
		return nil, err
	}
	return &gw, nil
}
