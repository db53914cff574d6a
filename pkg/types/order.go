package types

import "github.com/shopspring/decimal"

// ShippingDetails is where and when the bouquet goes.
type ShippingDetails struct {
	FullName     string `json:"fullName" validate:"required,max=120"`
	Email        string `json:"email" validate:"required,email"`
	Phone        string `json:"phone" validate:"required,min=7,max=20"`
	AddressLine1 string `json:"addressLine1" validate:"required,max=200"`
	AddressLine2 string `json:"addressLine2,omitempty" validate:"omitempty,max=200"`
	City         string `json:"city" validate:"required,max=80"`
	State        string `json:"state" validate:"required,max=80"`
	PostalCode   string `json:"postalCode" validate:"required,max=12"`
	Country      string `json:"country" validate:"required,len=2"`
	DeliveryDate string `json:"deliveryDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
	DeliverySlot string `json:"deliverySlot,omitempty" validate:"omitempty,max=40"`
}

// GiftDetails is the optional card that rides along with the order.
type GiftDetails struct {
	RecipientName string `json:"recipientName,omitempty" validate:"omitempty,max=120"`
	SenderName    string `json:"senderName,omitempty" validate:"omitempty,max=120"`
	Message       string `json:"message,omitempty" validate:"omitempty,max=500"`
	Anonymous     bool   `json:"anonymous,omitempty"`
}

// OrderItem is a line item snapshot taken at checkout.
type OrderItem struct {
	ProductID string          `json:"productId" validate:"required,max=64"`
	Title     string          `json:"title" validate:"required,max=200"`
	Quantity  int             `json:"quantity" validate:"required,min=1,max=999"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Image     string          `json:"image,omitempty" validate:"omitempty,url"`
}

// OrderItems is stored as a single JSON document.
type OrderItems []OrderItem

// Subtotal sums quantity * unit price.
func (items OrderItems) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}
