package postgres

import (
	"embed"
	"errors"
	"fmt"
	"net/url"
	"path"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationsFS embed.FS

// Schemas with migrations under migrations/<schema>.
const (
	OrderSchema     = "order"
	InventorySchema = "inventory"
	PaymentSchema   = "payment"
)

// Migrate applies the embedded migrations of schema to the database at
// databaseURL. Each schema tracks its version in its own table so services
// may share a database.
func Migrate(databaseURL, schema string) (err error) {
	src, err := iofs.New(migrationsFS, path.Join("migrations", schema))
	if err != nil {
		return fmt.Errorf("iofs.New: %w", err)
	}

	dsn, err := migrateDSN(databaseURL, schema)
	if err != nil {
		return err
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return fmt.Errorf("migrate.NewWithSourceInstance: %w", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		err = errors.Join(err, srcErr, dbErr)
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("m.Up: %w", err)
	}

	return nil
}

func migrateDSN(databaseURL, schema string) (string, error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("url.Parse: %w", err)
	}

	switch u.Scheme {
	case "postgres", "postgresql":
		u.Scheme = "pgx5"
	default:
		return "", fmt.Errorf("unsupported database scheme %q", u.Scheme)
	}

	q := u.Query()
	q.Set("x-migrations-table", schema+"_schema_migrations")
	u.RawQuery = q.Encode()

	return u.String(), nil
}
