package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// PostgresDetail is the server-side part of a failed statement, from either driver.
type PostgresDetail struct {
	SQLState   string
	Constraint string
	Table      string
	Column     string
	Detail     string
	Message    string
}

// Transient reports SQLSTATE classes worth retrying: serialization failures,
// deadlocks, and dropped connections.
func (p PostgresDetail) Transient() bool {
	switch {
	case p.SQLState == "40001", p.SQLState == "40P01":
		return true
	case strings.HasPrefix(p.SQLState, "08"):
		return true
	}
	return false
}

// Diagnosis flattens an error chain for request logs.
type Diagnosis struct {
	Message  string
	Code     Code
	Causes   []string
	Postgres *PostgresDetail
}

func Diagnose(err error) Diagnosis {
	if err == nil {
		return Diagnosis{}
	}
	d := Diagnosis{Message: err.Error()}
	if typed := As(err); typed != nil {
		d.Code = typed.Code()
	}
	for cause := errors.Unwrap(err); cause != nil; cause = errors.Unwrap(cause) {
		d.Causes = append(d.Causes, fmt.Sprintf("%T: %v", cause, cause))
	}
	d.Postgres = postgresDetail(err)
	return d
}

func postgresDetail(err error) *PostgresDetail {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return &PostgresDetail{
			SQLState:   pgxErr.Code,
			Constraint: pgxErr.ConstraintName,
			Table:      pgxErr.TableName,
			Column:     pgxErr.ColumnName,
			Detail:     pgxErr.Detail,
			Message:    pgxErr.Message,
		}
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return &PostgresDetail{
			SQLState:   string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Column:     pqErr.Column,
			Detail:     pqErr.Detail,
			Message:    pqErr.Message,
		}
	}
	return nil
}

// Fields renders the diagnosis as log fields; postgres keys appear only when a
// driver error is in the chain.
func (d Diagnosis) Fields() map[string]any {
	fields := map[string]any{"error": d.Message}
	if d.Code != "" {
		fields["error_code"] = d.Code
	}
	if len(d.Causes) > 0 {
		fields["error_causes"] = d.Causes
	}
	if p := d.Postgres; p != nil {
		fields["pg_sqlstate"] = p.SQLState
		fields["pg_transient"] = p.Transient()
		if p.Constraint != "" {
			fields["pg_constraint"] = p.Constraint
		}
		if p.Table != "" {
			fields["pg_table"] = p.Table
		}
		if p.Column != "" {
			fields["pg_column"] = p.Column
		}
		if p.Detail != "" {
			fields["pg_detail"] = p.Detail
		}
		if p.Message != "" {
			fields["pg_message"] = p.Message
		}
	}
	return fields
}
