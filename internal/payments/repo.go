package payments

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/petalpost/storefront-backend/pkg/db/models"
	"github.com/petalpost/storefront-backend/pkg/enums"
)

// Repository persists gateway orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, gw *models.GatewayOrder) error
	FindByID(ctx context.Context, id string) (*models.GatewayOrder, error)
	// MarkPaid records the verified payment unless the row is already paid.
	MarkPaid(ctx context.Context, id, paymentID string, at time.Time) (bool, error)
	IncrementFailedVerifications(ctx context.Context, id string) error
	MarkExpired(ctx context.Context, id string) (bool, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, gw *models.GatewayOrder) error {
	return r.db.WithContext(ctx).Create(gw).Error
}

func (r *repository) FindByID(ctx context.Context, id string) (*models.GatewayOrder, error) {
	var gw models.GatewayOrder
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&gw).Error; err != nil {
		return nil, err
	}
	return &gw, nil
}

func (r *repository) MarkPaid(ctx context.Context, id, paymentID string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.GatewayOrder{}).
		Where("id = ? AND status <> ?", id, enums.GatewayOrderStatusPaid).
		Updates(map[string]any{
			"status":      enums.GatewayOrderStatusPaid,
			"payment_id":  paymentID,
			"verified_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) IncrementFailedVerifications(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&models.GatewayOrder{}).
		Where("id = ?", id).
		UpdateColumn("failed_verifications", gorm.Expr("failed_verifications + 1")).Error
}

func (r *repository) MarkExpired(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.GatewayOrder{}).
		Where("id = ? AND status = ?", id, enums.GatewayOrderStatusCreated).
		Update("status", enums.GatewayOrderStatusExpired)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
