package guardian

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// RepositoryManager owns the relational database and exposes the stores
// built on it.
type RepositoryManager interface {
	Accounts() AccountStore
	// Migrate applies pending schema migrations. Call it, and check its
	// error, before serving requests.
	Migrate(ctx context.Context) error
	RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error
	// AccountsTx returns an account store bound to tx
	AccountsTx(tx bun.Tx) AccountStore
	Validate() error
	MustValidate()
	Close() error
}

// OpenDatabase opens a bun database for driver, either "sqlite" or
// "postgres".
func OpenDatabase(driver, dsn string) (*bun.DB, error) {
	switch driver {
	case DriverSQLite, "":
		sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return bun.NewDB(sqldb, sqlitedialect.New()), nil
	case DriverPostgres:
		sqldb, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return bun.NewDB(sqldb, pgdialect.New()), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

type mngr struct {
	db       *bun.DB
	driver   string
	accounts AccountStore
	opts     []BunAccountStoreOption
	logger   Logger
}

// NewRepositoryManager wraps db opened for driver
func NewRepositoryManager(db *bun.DB, driver string, opts ...BunAccountStoreOption) RepositoryManager {
	if driver == "" {
		driver = DriverSQLite
	}
	m := &mngr{
		db:     db,
		driver: driver,
		opts:   opts,
		logger: newDefLogger(),
	}
	m.accounts = NewBunAccountStore(db, opts...)
	return m
}

func (m *mngr) Accounts() AccountStore {
	return m.accounts
}

func (m *mngr) AccountsTx(tx bun.Tx) AccountStore {
	return NewBunAccountStore(tx, m.opts...)
}

func (m *mngr) Migrate(ctx context.Context) error {
	dialect := goose.DialectSQLite3
	if m.driver == DriverPostgres {
		dialect = goose.DialectPostgres
	}

	fsys, err := fs.Sub(migrationsFS, "data/sql/migrations/"+m.driver)
	if err != nil {
		return NewInternalError(err, "migrations not found")
	}

	provider, err := goose.NewProvider(dialect, m.db.DB, fsys)
	if err != nil {
		return NewInternalError(err, "failed to build migration provider")
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return NewInternalError(err, "failed to apply migrations")
	}
	m.logger.Info("migrations applied", "driver", m.driver, "count", len(results))
	return nil
}

func (m *mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m *mngr) Validate() error {
	if m.db == nil {
		return errors.New("repository database should be initialized")
	}
	if m.accounts == nil {
		return errors.New("repository accounts should be initialized")
	}
	return nil
}

func (m *mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m *mngr) Close() error {
	return m.db.Close()
}
