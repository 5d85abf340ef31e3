// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package store implements the catalog persistence layer: the category tree,
// book records and derived statistics over PostgreSQL. Every method returns
// the typed errors from the models package so callers can branch with
// errors.Is / errors.As.
package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"librarybot/internal/metrics"
	"librarybot/internal/models"
)

var tracer = otel.Tracer("librarybot/store")

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// bookReferenceIndex keeps live file references unique.
const bookReferenceIndex = "idx_books_live_file_reference"

// DBTX is the subset of database/sql used by the stores.
// Both *sql.DB and *sql.Tx satisfy this interface.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx runs fn inside a transaction, committing on success and rolling
// back on error or panic. Panics are rethrown after the rollback.
func withTx(ctx context.Context, db *sql.DB, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	return fn(ctx, tx)
}

// InvalidateFunc is called after every successful mutation so derived
// data such as the statistics memo can be dropped.
type InvalidateFunc func(ctx context.Context)

// Option configures a store.
type Option func(*options)

type options struct {
	invalidate InvalidateFunc
}

// WithInvalidation registers a hook fired after each successful mutation.
func WithInvalidation(fn InvalidateFunc) Option {
	return func(o *options) { o.invalidate = fn }
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) changed(ctx context.Context) {
	if o.invalidate != nil {
		o.invalidate(ctx)
	}
}

// observe starts a span for a store operation. The returned function must
// be deferred with a pointer to the method's named error result.
func observe(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(*error)) {
	started := time.Now()
	ctx, span := tracer.Start(ctx, "store."+op, trace.WithAttributes(attrs...))
	return ctx, func(errp *error) {
		var err error
		if errp != nil {
			err = *errp
		}
		outcome := outcomeOf(err)
		if err != nil && outcome == metrics.OutcomeError {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.String("outcome", outcome))
		span.End()
		metrics.ObserveStore(op, outcome, started)
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, models.ErrNotFound):
		return metrics.OutcomeNotFound
	case errors.Is(err, models.ErrValidation):
		return metrics.OutcomeInvalid
	case errors.Is(err, models.ErrDuplicate), errors.Is(err, models.ErrConflict):
		return metrics.OutcomeConflict
	default:
		return metrics.OutcomeError
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// violatedIndex names the constraint behind a PostgreSQL error, or "".
func violatedIndex(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}

// kindArg converts an optional file kind into a query argument that is
// either NULL or the kind's text.
func kindArg(kind *models.FileKind) any {
	if kind == nil {
		return nil
	}
	return string(*kind)
}

// uuidArg converts an optional UUID into NULL or its value.
func uuidArg(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return *id
}

// trimOptional trims an optional text field; blank values become NULL.
func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// escapeLike escapes LIKE wildcards so user input matches literally.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
