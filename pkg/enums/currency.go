package enums

// Currency is an ISO-4217 code the gateway account accepts.
type Currency string

const (
	CurrencyINR Currency = "INR"
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
	CurrencyAED Currency = "AED"
	CurrencySGD Currency = "SGD"
)

var currencies = newValueSet("currency",
	CurrencyINR, CurrencyUSD, CurrencyEUR, CurrencyGBP, CurrencyAED, CurrencySGD,
).folding(upperTrim)

func (c Currency) String() string { return string(c) }

func (c Currency) IsValid() bool { return currencies.has(c) }

// ParseCurrency accepts any case and surrounding space.
func ParseCurrency(value string) (Currency, error) { return currencies.parse(value) }
