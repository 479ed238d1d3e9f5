package revocation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/tokenauth/revocation/migrations"
	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	_ "modernc.org/sqlite"
)

const (
	stateConsumed = "consumed"
	stateRevoked  = "revoked"
)

// SQLite is a RevocationGateway backed by a SQLite ledger of spent and revoked
// identifiers. The jti primary key makes Refresh single-use.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens the database at dsn and applies pending migrations.
func OpenSQLite(ctx context.Context, dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// One writer at a time.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLite{db: db, now: time.Now}
	if err := s.Migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply revocation migrations: %w", err)
	}
	return s, nil
}

// Migrate applies any pending embedded migrations.
func (s *SQLite) Migrate() error {
	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return err
	}

	source, err := iofs.New(migrations.Migrations, ".")
	if err != nil {
		return err
	}

	instance, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return err
	}

	if err := instance.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Close closes the database.
func (s *SQLite) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Refresh consumes jti. It answers true exactly once per jti and never for a
// jti recorded by Logout.
func (s *SQLite) Refresh(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, ErrEmptyJTI
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO jti_ledger (jti, state, recorded_at) VALUES (?, ?, ?)
		 ON CONFLICT (jti) DO NOTHING`,
		jti, stateConsumed, s.now().Unix(),
	)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n == 1, nil
}

// Logout records jti as revoked. It is idempotent.
func (s *SQLite) Logout(ctx context.Context, jti string) error {
	if jti == "" {
		return ErrEmptyJTI
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jti_ledger (jti, state, recorded_at) VALUES (?, ?, ?)
		 ON CONFLICT (jti) DO UPDATE SET state = excluded.state, recorded_at = excluded.recorded_at`,
		jti, stateRevoked, s.now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Revoked reports whether jti was recorded by Logout.
func (s *SQLite) Revoked(ctx context.Context, jti string) (bool, error) {
	var state string
	err := s.db.QueryRowContext(ctx, `SELECT state FROM jti_ledger WHERE jti = ?`, jti).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return state == stateRevoked, nil
}

// Purge deletes ledger rows recorded before the cutoff and returns how many were removed.
func (s *SQLite) Purge(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jti_ledger WHERE recorded_at < ?`, before.Unix())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return res.RowsAffected()
}
