package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// retryable is implemented by transport-level errors such as *gateway.Error.
type retryable interface {
	Retryable() bool
}

// LogFields flattens err into structured log fields: the typed code when
// present, the unwrap chain, retryability, and Postgres diagnostics when a
// driver error sits anywhere in the chain.
func LogFields(err error) map[string]any {
	if err == nil {
		return map[string]any{}
	}
	fields := map[string]any{"error_message": err.Error()}

	if typed := As(err); typed != nil {
		fields["error_code"] = string(typed.Code())
		fields["retryable"] = MetadataFor(typed.Code()).Retryable
	}
	var r retryable
	if errors.As(err, &r) {
		fields["retryable"] = r.Retryable()
	}

	var chain []string
	for e := err; e != nil; e = errors.Unwrap(e) {
		chain = append(chain, fmt.Sprintf("%T", e))
	}
	fields["error_chain"] = chain

	for k, v := range postgresFields(err) {
		fields[k] = v
	}
	return fields
}

func postgresFields(err error) map[string]any {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return compact(map[string]string{
			"pg_code":       pgxErr.Code,
			"pg_constraint": pgxErr.ConstraintName,
			"pg_table":      pgxErr.TableName,
			"pg_detail":     pgxErr.Detail,
		})
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return compact(map[string]string{
			"pg_code":       string(pqErr.Code),
			"pg_constraint": pqErr.Constraint,
			"pg_table":      pqErr.Table,
			"pg_detail":     pqErr.Detail,
		})
	}
	return nil
}

func compact(in map[string]string) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if v != "" {
			out[k] = v
		}
	}
	return out
}
