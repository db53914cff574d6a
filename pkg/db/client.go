// Package db owns the GORM connection shared by the API, the cron worker and
// the outbox publisher.
package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/petalpost/storefront-backend/pkg/config"
	"github.com/petalpost/storefront-backend/pkg/logger"
)

const DriverSQLite = "sqlite"

// Pinger exposes the health check surface.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Client wraps the shared GORM connection.
type Client struct {
	conn *gorm.DB
}

// New opens postgres (or, with Driver "sqlite", a local sqlite file), applies
// the pool limits and verifies the connection.
func New(ctx context.Context, cfg config.DBConfig, logg *logger.Logger) (*Client, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("database DSN is required")
	}
	dialector := postgres.New(postgres.Config{DSN: dsn, PreferSimpleProtocol: true})
	if strings.EqualFold(cfg.Driver, DriverSQLite) {
		dialector = sqlite.Open(dsn)
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 newQueryLogger(logg, cfg.SlowQuery),
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialector.Name(), err)
	}
	pool, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("sql handle: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		pool.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		pool.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	pool.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	pool.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	if err := pool.PingContext(ctx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("ping %s: %w", dialector.Name(), err)
	}

	logg.Info(logg.WithField(ctx, "driver", dialector.Name()), "database connection established")
	return &Client{conn: conn}, nil
}

// NewFromConn wraps an already opened connection, used by tests and tools.
func NewFromConn(conn *gorm.DB) *Client {
	return &Client{conn: conn}
}

// DB returns the underlying GORM connection.
func (c *Client) DB() *gorm.DB {
	return c.conn
}

func (c *Client) Ping(ctx context.Context) error {
	pool, err := c.conn.DB()
	if err != nil {
		return err
	}
	return pool.PingContext(ctx)
}

func (c *Client) Close() error {
	pool, err := c.conn.DB()
	if err != nil {
		return err
	}
	return pool.Close()
}

// WithTx runs fn in a transaction. An error or panic from fn rolls back; a
// panic is re-raised after the rollback.
func (c *Client) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return c.conn.WithContext(ctx).Transaction(fn)
}

// queryWriter routes GORM's slow-query and error lines into zerolog.
type queryWriter struct {
	logg *logger.Logger
}

func (w queryWriter) Printf(format string, args ...any) {
	ctx := w.logg.WithField(context.Background(), "detail", strings.TrimSpace(fmt.Sprintf(format, args...)))
	w.logg.Warn(ctx, "db.query")
}

func newQueryLogger(logg *logger.Logger, slow time.Duration) gormlogger.Interface {
	if logg == nil {
		return gormlogger.Discard
	}
	if slow <= 0 {
		slow = 500 * time.Millisecond
	}
	return gormlogger.New(queryWriter{logg: logg}, gormlogger.Config{
		SlowThreshold:             slow,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
		ParameterizedQueries:      true,
	})
}
