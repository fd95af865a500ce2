package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

const defaultBusyTimeoutMs = 5000

var ErrConcurrentModification = errors.New("concurrent modification")

type DB struct {
	*sql.DB
	path   string
	logger *zerolog.Logger
}

type Option func(*options)

type options struct {
	busyTimeoutMs int
}

// WithBusyTimeout sets how long a writer waits for the database lock.
func WithBusyTimeout(ms int) Option {
	return func(o *options) {
		if ms > 0 {
			o.busyTimeoutMs = ms
		}
	}
}

// NewDB opens the SQLite store and creates the schema. Transactions start
// with BEGIN IMMEDIATE, so concurrent writers serialize on the database lock.
func NewDB(path string, logger *zerolog.Logger, opts ...Option) (*DB, error) {
	o := options{busyTimeoutMs: defaultBusyTimeoutMs}
	for _, opt := range opts {
		opt(&o)
	}

	memory := path == ":memory:" || strings.Contains(path, "mode=memory")
	if !memory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	params := fmt.Sprintf("_txlock=immediate&_busy_timeout=%d&_foreign_keys=on", o.busyTimeoutMs)
	if !memory {
		params += "&_journal_mode=WAL"
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}

	sqlDB, err := sql.Open("sqlite3", path+sep+params)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if memory {
		// each connection to :memory: is a separate database
		sqlDB.SetMaxOpenConns(1)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return &DB{DB: sqlDB, path: path, logger: logger}, nil
}

func (db *DB) Path() string {
	return db.path
}

// Tx wraps a write transaction. All reservation and settlement writes go
// through InTx so that a failure anywhere rolls back everything.
type Tx struct {
	tx *sql.Tx
}

// InTx runs fn in a single transaction, committing when fn returns nil.
func (db *DB) InTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	if err := fn(&Tx{tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS hotels (
            id INTEGER PRIMARY KEY,
            name TEXT NOT NULL,
            commission_rate REAL NOT NULL DEFAULT 0,
            hourly_min_hours INTEGER NOT NULL DEFAULT 0,
            hourly_max_hours INTEGER NOT NULL DEFAULT 0,
            hourly_open_hour INTEGER NOT NULL DEFAULT 0,
            hourly_close_hour INTEGER NOT NULL DEFAULT 0,
            is_active BOOLEAN NOT NULL DEFAULT 1,
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS room_types (
            id INTEGER PRIMARY KEY,
            hotel_id INTEGER NOT NULL REFERENCES hotels(id),
            name TEXT NOT NULL,
            base_price_daily INTEGER NOT NULL,
            base_price_hourly INTEGER,
            max_guests INTEGER NOT NULL DEFAULT 2,
            max_extra_guests INTEGER NOT NULL DEFAULT 0,
            extra_guest_charge INTEGER NOT NULL DEFAULT 0,
            total_rooms INTEGER NOT NULL CHECK (total_rooms >= 0),
            min_hours INTEGER,
            max_hours INTEGER,
            is_active BOOLEAN NOT NULL DEFAULT 1,
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS room_inventory (
            room_type_id INTEGER NOT NULL REFERENCES room_types(id),
            date TEXT NOT NULL,
            available_count INTEGER NOT NULL CHECK (available_count >= 0),
            price_override INTEGER,
            min_stay_nights INTEGER NOT NULL DEFAULT 1,
            is_closed BOOLEAN NOT NULL DEFAULT 0,
            version INTEGER NOT NULL DEFAULT 1,
            PRIMARY KEY (room_type_id, date)
        )`,
		`CREATE TABLE IF NOT EXISTS hourly_slots (
            room_type_id INTEGER NOT NULL REFERENCES room_types(id),
            date TEXT NOT NULL,
            slot_start TEXT NOT NULL,
            slot_end TEXT NOT NULL,
            available_count INTEGER NOT NULL CHECK (available_count >= 0),
            price_override INTEGER,
            is_closed BOOLEAN NOT NULL DEFAULT 0,
            version INTEGER NOT NULL DEFAULT 1,
            PRIMARY KEY (room_type_id, date, slot_start)
        )`,
		`CREATE TABLE IF NOT EXISTS bookings (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            idempotency_key TEXT NOT NULL UNIQUE,
            guest_name TEXT NOT NULL,
            guest_email TEXT,
            guest_phone TEXT,
            hotel_id INTEGER NOT NULL REFERENCES hotels(id),
            room_type_id INTEGER NOT NULL REFERENCES room_types(id),
            booking_type TEXT NOT NULL,
            check_in TEXT NOT NULL,
            check_out TEXT NOT NULL,
            start_time TEXT,
            num_hours INTEGER NOT NULL DEFAULT 0,
            num_rooms INTEGER NOT NULL CHECK (num_rooms >= 1),
            num_guests INTEGER NOT NULL,
            room_total INTEGER NOT NULL,
            extra_guest_total INTEGER NOT NULL DEFAULT 0,
            taxes INTEGER NOT NULL DEFAULT 0,
            total_amount INTEGER NOT NULL,
            commission_rate REAL NOT NULL,
            commission_amount INTEGER NOT NULL,
            hotel_payout INTEGER NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            payment_status TEXT NOT NULL DEFAULT 'unpaid',
            cancellation_reason TEXT,
            inventory_released BOOLEAN NOT NULL DEFAULT 0,
            expires_at DATETIME,
            confirmed_at DATETIME,
            cancelled_at DATETIME,
            checked_in_at DATETIME,
            checked_out_at DATETIME,
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL,
            version INTEGER NOT NULL DEFAULT 1
        )`,
		`CREATE TABLE IF NOT EXISTS payments (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            booking_id INTEGER NOT NULL REFERENCES bookings(id),
            gateway TEXT NOT NULL,
            gateway_order_id TEXT NOT NULL,
            gateway_payment_id TEXT,
            method TEXT,
            amount INTEGER NOT NULL,
            currency TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'created',
            refund_amount INTEGER NOT NULL DEFAULT 0,
            metadata TEXT,
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL,
            CHECK (refund_amount >= 0 AND refund_amount <= amount)
        )`,
		`CREATE TABLE IF NOT EXISTS commissions (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            booking_id INTEGER NOT NULL UNIQUE REFERENCES bookings(id),
            hotel_id INTEGER NOT NULL,
            rate REAL NOT NULL,
            gross_amount INTEGER NOT NULL,
            commission_amount INTEGER NOT NULL,
            hotel_payout INTEGER NOT NULL,
            refunded_amount INTEGER NOT NULL DEFAULT 0,
            status TEXT NOT NULL DEFAULT 'accrued',
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS event_outbox (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            event_type TEXT NOT NULL,
            booking_id INTEGER,
            payload TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            retry_count INTEGER NOT NULL DEFAULT 0,
            last_error TEXT,
            created_at DATETIME NOT NULL,
            processed_at DATETIME,
            next_retry_at DATETIME
        )`,

		`CREATE INDEX IF NOT EXISTS idx_room_types_hotel ON room_types(hotel_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_status_expires ON bookings(status, expires_at)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_hotel_check_in ON bookings(hotel_id, check_in)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_booking ON payments(booking_id)`,
		`CREATE INDEX IF NOT EXISTS idx_commissions_hotel ON commissions(hotel_id)`,
		`CREATE INDEX IF NOT EXISTS idx_event_outbox_status ON event_outbox(status, next_retry_at)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}
