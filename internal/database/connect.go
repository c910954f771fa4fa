package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/hbomb79/Marquee/pkg/logger"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	sqldblogger "github.com/simukti/sqldb-logger"
)

const (
	SqlDialect = "postgres"

	retryInterval = 3 * time.Second
	migrationsDir = "migrations"
)

var (
	//go:embed migrations/*.sql
	migrations embed.FS

	dbLogger = logger.Get("DB")

	ErrNotConnected = errors.New("database is not connected")
)

type (
	// Queryable is satisfied by both *sqlx.DB and *sqlx.Tx.
	Queryable interface {
		sqlx.ExtContext
		GetContext(ctx context.Context, dest any, query string, args ...any) error
		SelectContext(ctx context.Context, dest any, query string, args ...any) error
	}

	Manager interface {
		Connect(DatabaseConfig) error
		GetSqlxDb() *sqlx.DB
		WrapTx(context.Context, func(*sqlx.Tx) error) error
		Close() error
	}

	manager struct {
		conn *sql.DB
		db   *sqlx.DB
	}
)

func New() *manager { return &manager{} }

func (mgr *manager) Connect(config DatabaseConfig) error {
	return mgr.ConnectDSN(config.DSN(), max(config.ConnectAttempts, 1))
}

// ConnectDSN connects to the server described by the DSN (key/value or URL
// form) and applies any pending migrations. The server is pinged up to
// 'attempts' times before the connection is abandoned.
func (mgr *manager) ConnectDSN(dsn string, attempts int) error {
	opened, err := sql.Open(SqlDialect, dsn)
	if err != nil {
		return fmt.Errorf("failed to open postgres connection: %w", err)
	}

	conn := sqldblogger.OpenDriver(dsn, opened.Driver(), &SqlLogger{dbLogger})
	if err := awaitServer(conn, attempts); err != nil {
		_ = conn.Close()
		return err
	}

	mgr.conn = conn
	mgr.db = sqlx.NewDb(conn, SqlDialect)
	if err := mgr.ExecuteMigrations(); err != nil {
		return err
	}

	dbLogger.Emit(logger.SUCCESS, "Connected to database\n")
	return nil
}

func awaitServer(conn *sql.DB, attempts int) error {
	for attempt := 1; ; attempt++ {
		err := conn.Ping()
		if err == nil {
			return nil
		}

		if attempt >= attempts {
			dbLogger.Emit(logger.ERROR, "Database unreachable after %d attempts: %v\n", attempts, err)
			return fmt.Errorf("database unreachable: %w", err)
		}

		dbLogger.Emit(logger.WARNING, "Database ping %d/%d failed, retrying in %s\n", attempt, attempts, retryInterval)
		time.Sleep(retryInterval)
	}
}

// ExecuteMigrations applies the embedded goose migrations. Connect calls
// this automatically.
func (mgr *manager) ExecuteMigrations() error {
	if mgr.conn == nil {
		return fmt.Errorf("cannot migrate: %w", ErrNotConnected)
	}

	goose.SetBaseFS(migrations)
	goose.SetLogger(dbLogger)
	if err := goose.SetDialect(SqlDialect); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}

	if err := goose.Up(mgr.conn, migrationsDir); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	return nil
}

// GetSqlxDb returns nil until Connect succeeds.
func (mgr *manager) GetSqlxDb() *sqlx.DB { return mgr.db }

func (mgr *manager) WrapTx(ctx context.Context, f func(*sqlx.Tx) error) error {
	if mgr.db == nil {
		return ErrNotConnected
	}

	return WrapTx(ctx, mgr.db, f)
}

func (mgr *manager) Close() error {
	if mgr.db == nil {
		return nil
	}

	dbLogger.Emit(logger.STOP, "Closing database connection\n")
	return mgr.db.Close()
}
