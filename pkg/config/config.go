package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Razorpay      RazorpayConfig
	Checkout      CheckoutConfig
	Cart          CartConfig
	CORS          CORSConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	Outbox        OutboxConfig
	Cron          CronConfig
	Bootstrap     BootstrapConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = "sqlite"
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Razorpay.ensureCredentials(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STOREFRONT_APP_ENV" required:"true"`
	Port         string `envconfig:"STOREFRONT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
	// TrustProxy reads the client address from forwarding headers. Enable only
	// when every request arrives through a proxy that overwrites them.
	TrustProxy   bool   `envconfig:"STOREFRONT_APP_TRUST_PROXY" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"STOREFRONT_DB_DSN"`
	Driver string `envconfig:"STOREFRONT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"STOREFRONT_DB_HOST"`
	LegacyPort     int    `envconfig:"STOREFRONT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STOREFRONT_DB_USER"`
	LegacyPassword string `envconfig:"STOREFRONT_DB_PASSWORD"`
	LegacyName     string `envconfig:"STOREFRONT_DB_NAME"`
	LegacySSLMode  string `envconfig:"STOREFRONT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STOREFRONT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOREFRONT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	// SlowQuery is the duration above which a statement is logged at warn.
	SlowQuery time.Duration `envconfig:"STOREFRONT_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL" required:"true"`
	Password     string        `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"STOREFRONT_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"STOREFRONT_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"STOREFRONT_JWT_EXPIRATION_MINUTES" required:"true"`
}

// Expiration returns the access token lifetime.
func (j JWTConfig) Expiration() time.Duration {
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"STOREFRONT_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"STOREFRONT_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"STOREFRONT_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"STOREFRONT_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"STOREFRONT_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow     time.Duration `envconfig:"STOREFRONT_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit int           `envconfig:"STOREFRONT_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit    int           `envconfig:"STOREFRONT_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"STOREFRONT_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"STOREFRONT_AUTO_MIGRATE" default:"false"`
}

// RazorpayConfig carries the gateway credentials. The canonical names are the
// STOREFRONT_ ones; the bare RAZORPAY_* names are read as fallbacks so older
// deployments keep working.
type RazorpayConfig struct {
	KeyID     string        `envconfig:"STOREFRONT_RAZORPAY_KEY_ID"`
	KeySecret string        `envconfig:"STOREFRONT_RAZORPAY_KEY_SECRET"`
	Mode      string        `envconfig:"STOREFRONT_RAZORPAY_MODE" default:"test"`
	Timeout   time.Duration `envconfig:"STOREFRONT_RAZORPAY_TIMEOUT" default:"10s"`

	LegacyKeyID     string `envconfig:"RAZORPAY_KEY_ID"`
	LegacyKeySecret string `envconfig:"RAZORPAY_KEY_SECRET"`
	LegacySecret    string `envconfig:"RAZORPAY_SECRET"`
}

var razorpaySecretPattern = regexp.MustCompile(`^[A-Za-z0-9]{16,64}$`)

// Environment returns the normalized gateway mode (test/live).
func (r RazorpayConfig) Environment() string {
	mode := strings.TrimSpace(strings.ToLower(r.Mode))
	if mode == "" {
		return RazorpayModeTest
	}
	return mode
}

func (r *RazorpayConfig) ensureCredentials() error {
	if r.KeyID == "" {
		r.KeyID = strings.TrimSpace(r.LegacyKeyID)
	}
	if r.KeySecret == "" {
		r.KeySecret = strings.TrimSpace(r.LegacyKeySecret)
	}
	if r.KeySecret == "" {
		r.KeySecret = strings.TrimSpace(r.LegacySecret)
	}

	missing := []string{}
	if r.KeyID == "" {
		missing = append(missing, EnvRazorpayKeyID)
	}
	if r.KeySecret == "" {
		missing = append(missing, EnvRazorpayKeySecret)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s required (legacy %s, %s, %s also accepted)",
			strings.Join(missing, ", "), EnvLegacyRazorpayKeyID, EnvLegacyRazorpayKeySecret, EnvLegacyRazorpaySecret)
	}

	mode := r.Environment()
	switch mode {
	case RazorpayModeTest, RazorpayModeLive:
	default:
		return fmt.Errorf("%s must be %q or %q", EnvRazorpayMode, RazorpayModeTest, RazorpayModeLive)
	}
	if prefix := "rzp_" + mode + "_"; !strings.HasPrefix(r.KeyID, prefix) {
		return fmt.Errorf("%s must start with %s in %s mode", EnvRazorpayKeyID, prefix, mode)
	}
	if !razorpaySecretPattern.MatchString(r.KeySecret) {
		return fmt.Errorf("%s has an unexpected format", EnvRazorpayKeySecret)
	}
	return nil
}

type CheckoutConfig struct {
	DefaultCurrency string        `envconfig:"STOREFRONT_CHECKOUT_DEFAULT_CURRENCY" default:"INR"`
	PendingGrace    time.Duration `envconfig:"STOREFRONT_CHECKOUT_PENDING_GRACE" default:"15m"`
	PendingTTL      time.Duration `envconfig:"STOREFRONT_CHECKOUT_PENDING_TTL" default:"24h"`

	// Gateway order creation is throttled per device and per IP.
	CreateOrderWindow      time.Duration `envconfig:"STOREFRONT_CHECKOUT_CREATE_ORDER_WINDOW" default:"1m"`
	CreateOrderClientLimit int           `envconfig:"STOREFRONT_CHECKOUT_CREATE_ORDER_CLIENT_LIMIT" default:"10"`
	CreateOrderIPLimit     int           `envconfig:"STOREFRONT_CHECKOUT_CREATE_ORDER_IP_LIMIT" default:"30"`
}

type CartConfig struct {
	TTL time.Duration `envconfig:"STOREFRONT_CART_TTL" default:"720h"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"STOREFRONT_CORS_ALLOWED_ORIGINS" default:"http://localhost:5173"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"STOREFRONT_GCP_PROJECT_ID"`
	ApplicationCredentials string `envconfig:"STOREFRONT_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic string `envconfig:"STOREFRONT_PUBSUB_ORDERS_TOPIC" default:"storefront-order-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"STOREFRONT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"STOREFRONT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"STOREFRONT_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CronConfig struct {
	Interval   time.Duration `envconfig:"STOREFRONT_CRON_INTERVAL" default:"5m"`
	LockTTL    time.Duration `envconfig:"STOREFRONT_CRON_LOCK_TTL" default:"4m"`
	JobTimeout time.Duration `envconfig:"STOREFRONT_CRON_JOB_TIMEOUT" default:"1m"`
}

// BootstrapConfig seeds a single admin account on dev startup.
type BootstrapConfig struct {
	AdminEmail    string `envconfig:"STOREFRONT_BOOTSTRAP_ADMIN_EMAIL"`
	AdminPassword string `envconfig:"STOREFRONT_BOOTSTRAP_ADMIN_PASSWORD"`
}

func (b BootstrapConfig) Enabled() bool {
	return strings.TrimSpace(b.AdminEmail) != "" && b.AdminPassword != ""
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
