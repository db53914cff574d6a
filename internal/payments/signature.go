package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"regexp"
	"strings"

	pkgerrors "github.com/petalpost/storefront-backend/pkg/errors"
)

var secretPattern = regexp.MustCompile(`^[A-Za-z0-9]{16,64}$`)

// ErrInvalidSecret is returned when the configured key secret has the wrong shape.
var ErrInvalidSecret = errors.New("razorpay key secret must be 16-64 alphanumeric characters")

// SignatureVerifier checks the checkout callback signature:
// lowercase hex HMAC-SHA256(secret, orderID + "|" + paymentID).
type SignatureVerifier struct {
	secret []byte
}

func NewSignatureVerifier(secret string) (*SignatureVerifier, error) {
	if !secretPattern.MatchString(secret) {
		return nil, ErrInvalidSecret
	}
	return &SignatureVerifier{secret: []byte(secret)}, nil
}

// Sign computes the signature the gateway would send for this pair.
func (v *SignatureVerifier) Sign(orderID, paymentID string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches. Blank inputs are a validation
// error, not a mismatch.
func (v *SignatureVerifier) Verify(orderID, paymentID, signature string) (bool, error) {
	missing := map[string]string{}
	if strings.TrimSpace(orderID) == "" {
		missing["razorpay_order_id"] = "is required"
	}
	if strings.TrimSpace(paymentID) == "" {
		missing["razorpay_payment_id"] = "is required"
	}
	if strings.TrimSpace(signature) == "" {
		missing["razorpay_signature"] = "is required"
	}
	if len(missing) > 0 {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "payment verification fields are required").WithDetails(missing)
	}
	expected := v.Sign(orderID, paymentID)
	return hmac.Equal([]byte(expected), []byte(signature)), nil
}
