// Command checkout-smoke walks one checkout through a test-mode deployment.
// It signs the payment callback itself, so it only works against a server
// holding the same test key secret.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"

	"github.com/petalpost/storefront-backend/internal/payments"
	"github.com/petalpost/storefront-backend/pkg/config"
	"github.com/petalpost/storefront-backend/pkg/enums"
	"github.com/petalpost/storefront-backend/pkg/logger"
	"github.com/petalpost/storefront-backend/pkg/storefront"
	"github.com/petalpost/storefront-backend/pkg/types"
)

type smokeConfig struct {
	BaseURL   string        `envconfig:"SMOKE_BASE_URL" default:"http://localhost:8080"`
	KeySecret string        `envconfig:"STOREFRONT_RAZORPAY_KEY_SECRET" required:"true"`
	Mode      string        `envconfig:"STOREFRONT_RAZORPAY_MODE" default:"test"`
	Timeout   time.Duration `envconfig:"SMOKE_TIMEOUT" default:"30s"`
	LogLevel  string        `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
}

// sandboxUI stands in for the hosted payment page: it invents a payment id
// and signs it the way the gateway would.
type sandboxUI struct {
	signer *payments.SignatureVerifier
}

func (s sandboxUI) Collect(_ context.Context, order storefront.GatewayOrder) (*storefront.PaymentResult, error) {
	paymentID := "pay_smoke" + strings.ReplaceAll(uuid.NewString(), "-", "")[:14]
	return &storefront.PaymentResult{
		OrderID:   order.ID,
		PaymentID: paymentID,
		Signature: s.signer.Sign(order.ID, paymentID),
	}, nil
}

func main() {
	amount := flag.String("amount", "499.00", "order total in major units")
	flag.Parse()

	_ = godotenv.Load()
	var cfg smokeConfig
	if err := envconfig.Process("", &cfg); err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	logg := logger.New(logger.Options{ServiceName: "checkout-smoke", Level: logger.ParseLevel(cfg.LogLevel)})

	if err := run(cfg, logg, *amount); err != nil {
		logg.Error(context.Background(), "checkout smoke failed", err)
		os.Exit(1)
	}
}

func run(cfg smokeConfig, logg *logger.Logger, amount string) error {
	if strings.ToLower(strings.TrimSpace(cfg.Mode)) != config.RazorpayModeTest {
		return errors.New("refusing to run against a live gateway")
	}
	total, err := decimal.NewFromString(amount)
	if err != nil {
		return fmt.Errorf("parse amount: %w", err)
	}
	signer, err := payments.NewSignatureVerifier(cfg.KeySecret)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	client, err := storefront.NewClient(cfg.BaseURL, storefront.WithClientID("smoke-"+uuid.NewString()))
	if err != nil {
		return err
	}
	checkout, err := storefront.NewCheckout(storefront.CheckoutParams{
		Client: client,
		UI:     sandboxUI{signer: signer},
		Logger: logg,
	})
	if err != nil {
		return err
	}

	result, err := checkout.Run(ctx, storefront.CheckoutRequest{
		ShippingDetails: types.ShippingDetails{
			FullName:     "Smoke Test",
			Email:        "smoke@example.com",
			Phone:        "9000000000",
			AddressLine1: "1 Test Street",
			City:         "Bengaluru",
			State:        "KA",
			PostalCode:   "560001",
			Country:      "IN",
		},
		Items: types.OrderItems{
			{ProductID: "smoke-bouquet", Title: "Smoke test bouquet", Quantity: 1, UnitPrice: total},
		},
		TotalAmount:   total,
		PaymentMethod: enums.PaymentMethodRazorpay,
	})
	if err != nil {
		return err
	}

	fetched, err := client.GetOrder(ctx, result.Order.OrderNumber, result.Order.ShippingDetails.Email)
	if err != nil {
		return fmt.Errorf("read back order: %w", err)
	}
	if fetched.Status != enums.OrderStatusConfirmed {
		return fmt.Errorf("order %s is %s, want confirmed", fetched.OrderNumber, fetched.Status)
	}

	logg.Info(logg.WithFields(ctx, map[string]any{
		"order_number":       fetched.OrderNumber,
		"gateway_order_id":   result.GatewayOrderID,
		"gateway_payment_id": result.PaymentID,
	}), "checkout smoke passed")
	return nil
}
