package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// Report is the loggable breakdown of an error chain. The SQL fields are
// populated when a postgres driver error is found anywhere in the chain, so a
// constraint violation logs its constraint name (ux_assignments_driver_date,
// ux_bids_window_user, ...) instead of a bare SQLSTATE.
type Report struct {
	Message string `json:"message"`
	Code    Code   `json:"code,omitempty"`

	Chain []string `json:"chain,omitempty"`

	SQLState      string `json:"sql_state,omitempty"`
	Constraint    string `json:"constraint,omitempty"`
	Table         string `json:"table,omitempty"`
	Column        string `json:"column,omitempty"`
	Detail        string `json:"detail,omitempty"`
	DriverMessage string `json:"driver_message,omitempty"`
}

// Describe flattens err for structured logging. Both postgres drivers in use
// are recognized: pgx (gorm's driver) and lib/pq.
func Describe(err error) Report {
	if err == nil {
		return Report{}
	}

	r := Report{Message: err.Error()}
	if te := As(err); te != nil {
		r.Code = te.Code()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		r.Chain = append(r.Chain, fmt.Sprintf("%T: %v", e, e))
	}

	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		r.setSQL(pgxErr.Code, pgxErr.ConstraintName, pgxErr.TableName, pgxErr.ColumnName, pgxErr.Detail, pgxErr.Message)
		return r
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		r.setSQL(string(pqErr.Code), pqErr.Constraint, pqErr.Table, pqErr.Column, pqErr.Detail, pqErr.Message)
	}
	return r
}

func (r *Report) setSQL(state, constraint, table, column, detail, message string) {
	r.SQLState = state
	r.Constraint = constraint
	r.Table = table
	r.Column = column
	r.Detail = detail
	r.DriverMessage = message
}
