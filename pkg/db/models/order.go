package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/petalpost/storefront-backend/pkg/enums"
	"github.com/petalpost/storefront-backend/pkg/types"
)

// Order is a customer purchase. Everything except status and its timestamps is
// written once when the order is confirmed.
type Order struct {
	ID               uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber      string                `gorm:"column:order_number;type:text;not null;uniqueIndex:ux_orders_order_number"`
	Status           enums.OrderStatus     `gorm:"column:status;type:text;not null"`
	ShippingDetails  types.ShippingDetails `gorm:"column:shipping_details;type:jsonb;serializer:json;not null"`
	Items            types.OrderItems      `gorm:"column:items;type:jsonb;serializer:json;not null"`
	PaymentMethod    enums.PaymentMethod   `gorm:"column:payment_method;type:text;not null"`
	GatewayOrderID   string                `gorm:"column:gateway_order_id;type:text;not null;uniqueIndex:ux_orders_gateway_order"`
	GatewayPaymentID *string               `gorm:"column:gateway_payment_id;type:text;uniqueIndex:ux_orders_gateway_payment"`
	TotalAmount      decimal.Decimal       `gorm:"column:total_amount;type:numeric(12,2);not null"`
	Currency         enums.Currency        `gorm:"column:currency;type:text;not null"`
	GiftDetails      *types.GiftDetails    `gorm:"column:gift_details;type:jsonb;serializer:json"`
	ConfirmedAt      *time.Time            `gorm:"column:confirmed_at"`
	CancelledAt      *time.Time            `gorm:"column:cancelled_at"`
	CreatedAt        time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (Order) TableName() string { return "orders" }

func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}
