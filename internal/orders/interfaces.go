package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/petalpost/storefront-backend/pkg/db/models"
	"github.com/petalpost/storefront-backend/pkg/enums"
)

// Repository defines persistence operations for orders and the gateway order rows they hang off.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	Save(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByNumber(ctx context.Context, orderNumber string) (*models.Order, error)
	FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.Order, error)
	FindByPaymentID(ctx context.Context, paymentID string) (*models.Order, error)
	List(ctx context.Context, filters ListFilters) (*OrderList, error)
	// TransitionStatus updates status only if the row is still in from. It
	// reports false when another writer moved the order first.
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus, updates map[string]any) (bool, error)
	FindPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
	FindGatewayOrder(ctx context.Context, gatewayOrderID string) (*models.GatewayOrder, error)
}
