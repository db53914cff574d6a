package enums

// PaymentMethod is the instrument the shopper picked in the hosted checkout.
// "razorpay" is recorded when the callback does not say which one.
type PaymentMethod string

const (
	PaymentMethodRazorpay   PaymentMethod = "razorpay"
	PaymentMethodCard       PaymentMethod = "card"
	PaymentMethodUPI        PaymentMethod = "upi"
	PaymentMethodNetbanking PaymentMethod = "netbanking"
	PaymentMethodWallet     PaymentMethod = "wallet"
)

var paymentMethods = newValueSet("payment method",
	PaymentMethodRazorpay, PaymentMethodCard, PaymentMethodUPI, PaymentMethodNetbanking, PaymentMethodWallet,
).folding(lowerTrim)

func (m PaymentMethod) String() string { return string(m) }

func (m PaymentMethod) IsValid() bool { return paymentMethods.has(m) }

func ParsePaymentMethod(value string) (PaymentMethod, error) { return paymentMethods.parse(value) }
