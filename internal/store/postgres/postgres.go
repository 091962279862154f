package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"fakturin/backend/internal/store"
)

type Store struct {
	db *sqlx.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sqlx.Open("pgx", databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, store.Unavailable("ping postgres", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return store.Unavailable("ping postgres", err)
	}
	return nil
}

func (s *Store) PeekNextSequence(ctx context.Context, identifier string, dateKey string) (int64, error) {
	var seq int64
	err := s.db.GetContext(ctx, &seq, `
		SELECT seq
		FROM invoice_counters
		WHERE identifier = $1 AND date_key = $2
	`, identifier, dateKey)
	if errors.Is(err, sql.ErrNoRows) {
		return 1, nil
	}
	if err != nil {
		return 0, classify("peek sequence", err)
	}
	return seq + 1, nil
}

// AllocateSequence relies on the row lock taken by the upsert: concurrent
// callers on the same (identifier, date_key) are serialized by postgres.
func (s *Store) AllocateSequence(ctx context.Context, identifier string, dateKey string) (int64, error) {
	if identifier == "" || dateKey == "" {
		return 0, store.Invalid("counter", "identifier and date key are required")
	}
	var seq int64
	err := s.db.GetContext(ctx, &seq, `
		INSERT INTO invoice_counters (identifier, date_key, seq, updated_at)
		VALUES ($1, $2, 1, now())
		ON CONFLICT (identifier, date_key)
		DO UPDATE SET seq = invoice_counters.seq + 1, updated_at = now()
		RETURNING seq
	`, identifier, dateKey)
	if err != nil {
		return 0, classify("allocate sequence", err)
	}
	return seq, nil
}

// classify maps driver failures onto the store sentinels. Anything that is
// neither missing nor an availability problem is returned wrapped with op.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if isUnavailable(err) {
		return store.Unavailable(op, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return store.Invalid(uniqueField(pgErr.ConstraintName), "already exists")
		case "23502", "23514", "22P02":
			return store.Invalid(pgErr.ColumnName, pgErr.Message)
		}
	}
	return errors.Wrap(err, op)
}

func isUnavailable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if strings.HasPrefix(pgErr.Code, "08") {
			return true
		}
		switch pgErr.Code {
		case "57P01", "57014", "53300":
			return true
		}
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func uniqueField(constraint string) string {
	switch constraint {
	case "products_sku_code_key":
		return "sku_code"
	case "invoices_pkey", "customers_pkey", "products_pkey":
		return "id"
	}
	return constraint
}
