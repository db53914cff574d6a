package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	legacypgconn "github.com/jackc/pgconn"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestMetadataRegistry(t *testing.T) {
	want := map[Code]Metadata{
		CodeValidation:    {HTTPStatus: http.StatusBadRequest, PublicMessage: "validation failed", DetailsAllowed: true},
		CodeUnauthorized:  {HTTPStatus: http.StatusUnauthorized, PublicMessage: "authentication required"},
		CodeForbidden:     {HTTPStatus: http.StatusForbidden, PublicMessage: "access denied"},
		CodeNotFound:      {HTTPStatus: http.StatusNotFound, PublicMessage: "resource not found"},
		CodeConflict:      {HTTPStatus: http.StatusConflict, PublicMessage: "conflict detected", DetailsAllowed: true},
		CodeStateConflict: {HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "state transition disallowed", DetailsAllowed: true},
		CodeIdempotency:   {HTTPStatus: http.StatusConflict, PublicMessage: "idempotency key reused", DetailsAllowed: true},
		CodeRateLimit:     {HTTPStatus: http.StatusTooManyRequests, PublicMessage: "rate limit exceeded"},
		CodeInternal:      {HTTPStatus: http.StatusInternalServerError, PublicMessage: "internal server error", Retryable: true},
		CodeDependency:    {HTTPStatus: http.StatusServiceUnavailable, PublicMessage: "dependency unavailable", Retryable: true, DetailsAllowed: true},
		CodeGateway:       {HTTPStatus: http.StatusInternalServerError, PublicMessage: "payment gateway error", DetailsAllowed: true},
	}
	if len(want) != len(registry) {
		t.Fatalf("registry has %d codes, test covers %d", len(registry), len(want))
	}
	for code, meta := range want {
		if got := MetadataFor(code); got != meta {
			t.Errorf("%s: got %+v want %+v", code, got, meta)
		}
	}
	if got := MetadataFor("SOMETHING_UNKNOWN"); got != want[CodeInternal] {
		t.Fatalf("unknown codes should map to internal, got %+v", got)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "amount must be positive")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}
	base.WithDetails(map[string]any{"field": "amount"})
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeGateway, cause, "create razorpay order")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Error() != "PAYMENT_GATEWAY_ERROR: create razorpay order: boom" {
		t.Fatalf("unexpected error text %q", wrapped.Error())
	}
}

func TestAsAndIsCode(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(CodeStateConflict, "payment not verified"))
	if got := As(err); got == nil || got.Code() != CodeStateConflict {
		t.Fatalf("As failed to return typed error")
	}
	if !IsCode(err, CodeStateConflict) {
		t.Fatal("expected IsCode to match")
	}
	if IsCode(stdErrors.New("plain"), CodeStateConflict) {
		t.Fatal("plain error should not match")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestDumpExtractsPostgresFields(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "orders_order_number_key", TableName: "orders"}
	d := Dump(Wrap(CodeConflict, pgErr, "insert order"))
	if d.PGCode != "23505" || d.PGConstraint != "orders_order_number_key" {
		t.Fatalf("unexpected dump %+v", d)
	}
	if d.Code != CodeConflict {
		t.Fatalf("expected conflict code, got %s", d.Code)
	}
	if len(d.Chain) != 2 {
		t.Fatalf("expected 2 chain entries, got %v", d.Chain)
	}

	pqErr := &pq.Error{Code: "23505", Constraint: "ux_orders_gateway_payment"}
	d = Dump(pqErr)
	if d.PGConstraint != "ux_orders_gateway_payment" {
		t.Fatalf("unexpected pq dump %+v", d)
	}
	if _, ok := d.Fields()["pg_code"]; !ok {
		t.Fatal("expected pg_code field")
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(fmt.Errorf("save: %w", New(CodeDependency, "redis down"))) {
		t.Fatal("dependency errors are retryable")
	}
	if Retryable(New(CodeGateway, "razorpay refused")) {
		t.Fatal("gateway errors must not be retried")
	}
	if !Retryable(stdErrors.New("plain")) {
		t.Fatal("untyped errors count as internal")
	}
	if Retryable(nil) {
		t.Fatal("nil is not retryable")
	}
	if got := Newf(CodeNotFound, "order %s", "ORD1").Error(); got != "NOT_FOUND: order ORD1" {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestDumpCarriesDetailsAndLegacyDriver(t *testing.T) {
	legacy := &legacypgconn.PgError{Code: "23505", ConstraintName: "ux_outbox_events_event_aggregate"}
	d := Dump(Wrap(CodeGateway, legacy, "razorpay create order failed").WithDetails(map[string]string{"operation": "create order"}))
	if d.PGConstraint != "ux_outbox_events_event_aggregate" {
		t.Fatalf("legacy pgconn error not extracted: %+v", d)
	}
	if _, ok := d.Fields()["error_details"]; !ok {
		t.Fatal("expected error_details field")
	}
}
