package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-kit/kit/metrics/prometheus"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	fluxmetrics "github.com/fluxcd/circles/pkg/metrics"
	"github.com/fluxcd/circles/pkg/store"
)

var requestDuration = prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
	Namespace: "circles",
	Subsystem: "store",
	Name:      "request_duration_seconds",
	Help:      "Request duration in seconds.",
	Buckets:   stdprometheus.DefBuckets,
}, []string{fluxmetrics.LabelMethod, fluxmetrics.LabelSuccess})

// DatabaseStore is a store.Store backed by a sqlx.DB.
type DatabaseStore struct {
	db   *sqlx.DB
	conn dbProxy
}

// dbProxy is satisfied by both *sqlx.DB and *sqlx.Tx.
type dbProxy interface {
	sqlx.ExtContext
}

var _ store.Store = &DatabaseStore{}

// New returns a store using the database, which must already be
// migrated; see Open.
func New(db *sqlx.DB) *DatabaseStore {
	return &DatabaseStore{db: db, conn: db}
}

func (s *DatabaseStore) Ping(ctx context.Context) error {
	return persistence(s.db.PingContext(ctx), "pinging database")
}

func (s *DatabaseStore) Transaction(ctx context.Context, f func(store.Store) error) error {
	if _, ok := s.conn.(*sqlx.Tx); ok {
		// Already in a nested transaction
		return f(s)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return persistence(err, "beginning transaction")
	}
	err = f(&DatabaseStore{
		db:   s.db,
		conn: tx,
	})
	if err != nil {
		// Rollback error is ignored as we already have an error in progress
		tx.Rollback()
		return err
	}
	return persistence(tx.Commit(), "committing transaction")
}

// tx runs f in a transaction of its own, unless already in one.
func (s *DatabaseStore) tx(ctx context.Context, f func(*DatabaseStore) error) error {
	return s.Transaction(ctx, func(st store.Store) error {
		return f(st.(*DatabaseStore))
	})
}

func (s *DatabaseStore) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return s.conn.ExecContext(ctx, s.conn.Rebind(query), args...)
}

func (s *DatabaseStore) query(ctx context.Context, query string, args ...interface{}) (*sqlx.Rows, error) {
	return s.conn.QueryxContext(ctx, s.conn.Rebind(query), args...)
}

func (s *DatabaseStore) queryRow(ctx context.Context, query string, args ...interface{}) *sqlx.Row {
	return s.conn.QueryRowxContext(ctx, s.conn.Rebind(query), args...)
}

// in expands slice arguments into IN lists, then runs the query.
func (s *DatabaseStore) queryIn(ctx context.Context, query string, args ...interface{}) (*sqlx.Rows, error) {
	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return nil, err
	}
	return s.query(ctx, query, args...)
}

func (s *DatabaseStore) execIn(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return nil, err
	}
	return s.exec(ctx, query, args...)
}

// count runs a query returning a single integer.
func (s *DatabaseStore) count(ctx context.Context, query string, args ...interface{}) (int, error) {
	var n int
	err := s.queryRow(ctx, query, args...).Scan(&n)
	return n, err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func persistence(err error, msg string) error {
	if err == nil {
		return nil
	}
	return store.PersistenceError(errors.Wrap(err, msg))
}

func isUniqueViolation(err error) bool {
	if pqErr, ok := errors.Cause(err).(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func observe(method string, begin time.Time, err error) {
	requestDuration.With(
		fluxmetrics.LabelMethod, method,
		fluxmetrics.LabelSuccess, fmt.Sprint(err == nil),
	).Observe(time.Since(begin).Seconds())
}
