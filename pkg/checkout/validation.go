package checkout

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/petalpost/storefront-backend/pkg/errors"
	"github.com/petalpost/storefront-backend/pkg/types"
)

var hundred = decimal.NewFromInt(100)

// ItemViolation describes one rejected line item.
type ItemViolation struct {
	Index     int    `json:"index"`
	ProductID string `json:"product_id,omitempty"`
	Reason    string `json:"reason"`
}

// ParseMinorAmount accepts an amount literal in the smallest currency unit
// (paise for INR). Fractional, non-numeric and non-positive values are rejected.
func ParseMinorAmount(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "amount is required")
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "amount must be numeric").
			WithDetails(map[string]string{"amount": "must be numeric"})
	}
	if !amount.IsInteger() {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "amount must be a whole number of the smallest currency unit").
			WithDetails(map[string]string{"amount": "must be an integer"})
	}
	if !amount.IsPositive() {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "amount must be greater than zero").
			WithDetails(map[string]string{"amount": "must be greater than zero"})
	}
	if !amount.LessThanOrEqual(decimal.NewFromInt(1<<53)) {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "amount is too large").
			WithDetails(map[string]string{"amount": "is too large"})
	}
	return amount.IntPart(), nil
}

// ToMinorUnits converts a major-unit total (e.g. 499.50) into the gateway amount (49950).
func ToMinorUnits(total decimal.Decimal) (int64, error) {
	if !total.IsPositive() {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "totalAmount must be greater than zero").
			WithDetails(map[string]string{"totalAmount": "must be greater than zero"})
	}
	minor := total.Mul(hundred)
	if !minor.IsInteger() {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "totalAmount has more than two decimal places").
			WithDetails(map[string]string{"totalAmount": "at most two decimal places"})
	}
	return minor.IntPart(), nil
}

// FromMinorUnits is the inverse of ToMinorUnits.
func FromMinorUnits(amount int64) decimal.Decimal {
	return decimal.NewFromInt(amount).Div(hundred)
}

// ValidateItems checks the line items the struct tags cannot: prices must be
// positive and a product may appear only once.
func ValidateItems(items types.OrderItems) error {
	if len(items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required").
			WithDetails(map[string]string{"items": "is required"})
	}
	var violations []ItemViolation
	seen := map[string]int{}
	for i, item := range items {
		if !item.UnitPrice.IsPositive() {
			violations = append(violations, ItemViolation{Index: i, ProductID: item.ProductID, Reason: "unitPrice must be greater than zero"})
		}
		if first, dup := seen[item.ProductID]; dup {
			violations = append(violations, ItemViolation{Index: i, ProductID: item.ProductID, Reason: fmt.Sprintf("duplicate of item %d", first)})
			continue
		}
		seen[item.ProductID] = i
	}
	if len(violations) == 0 {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%d item(s) failed validation", len(violations))).WithDetails(map[string]any{
		"violations": violations,
	})
}
