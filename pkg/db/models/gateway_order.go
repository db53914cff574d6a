package models

import (
	"time"

	"github.com/petalpost/storefront-backend/pkg/enums"
)

// GatewayOrder records a provider order so the amount charged can be checked
// against the order total and verification can be correlated server side.
type GatewayOrder struct {
	ID                  string                   `gorm:"column:id;type:text;primaryKey"`
	Receipt             string                   `gorm:"column:receipt;type:text;not null"`
	Amount              int64                    `gorm:"column:amount;not null"`
	Currency            enums.Currency           `gorm:"column:currency;type:text;not null"`
	Status              enums.GatewayOrderStatus `gorm:"column:status;type:text;not null"`
	PaymentID           *string                  `gorm:"column:payment_id;type:text"`
	VerifiedAt          *time.Time               `gorm:"column:verified_at"`
	FailedVerifications int                      `gorm:"column:failed_verifications;not null;default:0"`
	CreatedAt           time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

func (GatewayOrder) TableName() string { return "gateway_orders" }
