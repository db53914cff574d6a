package errors

import (
	"errors"
	"fmt"

	legacypgconn "github.com/jackc/pgconn"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// ErrorDump is the structured view of an error written to logs. It never
// reaches a client.
type ErrorDump struct {
	TopMessage string   `json:"top_message"`
	Code       Code     `json:"code,omitempty"`
	Details    any      `json:"details,omitempty"`
	Chain      []string `json:"chain,omitempty"`

	PGCode       string `json:"pg_code,omitempty"`
	PGConstraint string `json:"pg_constraint,omitempty"`
	PGTable      string `json:"pg_table,omitempty"`
	PGDetail     string `json:"pg_detail,omitempty"`
}

// Dump walks err's chain, recording each link and the first postgres error
// found from any of the three drivers in use.
func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	d := ErrorDump{TopMessage: err.Error()}
	if typed := As(err); typed != nil {
		d.Code = typed.Code()
		d.Details = typed.Details()
	}
	for link := err; link != nil; link = errors.Unwrap(link) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", link, link))
	}
	d.fillPostgres(err)
	return d
}

func (d *ErrorDump) fillPostgres(err error) {
	var v5 *pgconn.PgError
	var v4 *legacypgconn.PgError
	var pqErr *pq.Error
	switch {
	case errors.As(err, &v5):
		d.PGCode, d.PGConstraint, d.PGTable, d.PGDetail = v5.Code, v5.ConstraintName, v5.TableName, v5.Detail
	case errors.As(err, &v4):
		d.PGCode, d.PGConstraint, d.PGTable, d.PGDetail = v4.Code, v4.ConstraintName, v4.TableName, v4.Detail
	case errors.As(err, &pqErr):
		d.PGCode, d.PGConstraint, d.PGTable, d.PGDetail = string(pqErr.Code), pqErr.Constraint, pqErr.Table, pqErr.Detail
	}
}

// Fields renders the dump as a logger field map.
func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{"error_chain": d.Chain}
	if d.Code != "" {
		fields["error_code"] = d.Code
	}
	if d.Details != nil {
		fields["error_details"] = d.Details
	}
	if d.PGCode == "" {
		return fields
	}
	fields["pg_code"] = d.PGCode
	fields["pg_constraint"] = d.PGConstraint
	fields["pg_table"] = d.PGTable
	fields["pg_detail"] = d.PGDetail
	return fields
}
