package db

import (
	"errors"
	"strings"

	legacypgconn "github.com/jackc/pgconn"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

const uniqueViolationCode = "23505"

// IsUniqueViolation reports whether err is a unique constraint violation. When
// constraintName is set, the violated constraint must match it as well.
// Postgres errors from pgx (v4 and v5) and lib/pq are matched by SQLSTATE;
// anything else (sqlite in tests) falls back to the driver message.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}

	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgxErr.Code == uniqueViolationCode && constraintMatches(pgxErr.ConstraintName, constraintName)
	}
	var legacyErr *legacypgconn.PgError
	if errors.As(err, &legacyErr) {
		return legacyErr.Code == uniqueViolationCode && constraintMatches(legacyErr.ConstraintName, constraintName)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolationCode && constraintMatches(pqErr.Constraint, constraintName)
	}

	msg := err.Error()
	if !strings.Contains(msg, "duplicate key value") && !strings.Contains(msg, "UNIQUE constraint failed") {
		return false
	}
	return constraintName == "" || strings.Contains(msg, constraintName)
}

func constraintMatches(actual, want string) bool {
	return want == "" || actual == want
}
