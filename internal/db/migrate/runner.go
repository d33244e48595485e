// Package migrate applies the embedded SQL migrations with golang-migrate.
package migrate

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"crm/internal/db"
)

var (
	ErrNoChange = migrate.ErrNoChange
	ErrNoURL    = errors.New("database.url is not set")
)

// ValidateDirection accepts "up" and "down" only.
func ValidateDirection(direction string) error {
	if direction != "up" && direction != "down" {
		return fmt.Errorf("direction must be up or down, got %q", direction)
	}
	return nil
}

// DriverURL rewrites a postgres:// connection string to the pgx5:// scheme
// the migration driver is registered under.
func DriverURL(dsn string) (string, error) {
	if dsn == "" {
		return "", ErrNoURL
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse database url: %w", err)
	}
	switch u.Scheme {
	case "postgres", "postgresql", "pgx", "pgx5":
		u.Scheme = "pgx5"
	default:
		return "", fmt.Errorf("unsupported database url scheme %q", u.Scheme)
	}
	return u.String(), nil
}

// Run applies migrations against dsn in the given direction. The migrator
// opens and closes its own connection. Being already at the target version
// is not an error.
func Run(dsn, direction string) error {
	if err := ValidateDirection(direction); err != nil {
		return err
	}

	m, err := newMigrate(dsn)
	if err != nil {
		return err
	}
	defer func() { _, _ = m.Close() }()

	switch direction {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Version reports the applied version and whether the last run left the
// schema dirty.
func Version(dsn string) (uint, bool, error) {
	m, err := newMigrate(dsn)
	if err != nil {
		return 0, false, err
	}
	defer func() { _, _ = m.Close() }()

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func newMigrate(dsn string) (*migrate.Migrate, error) {
	driverURL, err := DriverURL(dsn)
	if err != nil {
		return nil, err
	}

	sourceDriver, err := iofs.New(db.MigrationFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("migrate source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", sourceDriver, driverURL)
	if err != nil {
		_ = sourceDriver.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return m, nil
}
