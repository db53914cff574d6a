package config

// EnvPrefix is empty because every field carries its full variable name.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	RazorpayModeTest = "test"
	RazorpayModeLive = "live"
)

const (
	EnvAppEnv = "STOREFRONT_APP_ENV"
	EnvPort   = "STOREFRONT_APP_PORT"

	EnvDBDSN  = "STOREFRONT_DB_DSN"
	EnvDBHost = "STOREFRONT_DB_HOST"
	EnvDBUser = "STOREFRONT_DB_USER"
	EnvDBName = "STOREFRONT_DB_NAME"

	EnvRedisURL = "STOREFRONT_REDIS_URL"

	EnvJWTSecret  = "STOREFRONT_JWT_SECRET"
	EnvJWTIssuer  = "STOREFRONT_JWT_ISSUER"
	EnvJWTExpMins = "STOREFRONT_JWT_EXPIRATION_MINUTES"

	EnvRazorpayKeyID     = "STOREFRONT_RAZORPAY_KEY_ID"
	EnvRazorpayKeySecret = "STOREFRONT_RAZORPAY_KEY_SECRET"
	EnvRazorpayMode      = "STOREFRONT_RAZORPAY_MODE"

	EnvLegacyRazorpayKeyID     = "RAZORPAY_KEY_ID"
	EnvLegacyRazorpayKeySecret = "RAZORPAY_KEY_SECRET"
	EnvLegacyRazorpaySecret    = "RAZORPAY_SECRET"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
