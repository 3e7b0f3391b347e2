package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"
	"time"

	invitemigrations "github.com/goliatone/go-invites/migrations"
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"

	defaultPingTimeout = 5 * time.Second
)

// PersistenceConfig satisfies the go-persistence-bun config contract. The
// driver must already be registered with database/sql by the caller.
type PersistenceConfig struct {
	Driver         string        `yaml:"driver" koanf:"driver"`
	DSN            string        `yaml:"dsn" koanf:"dsn"`
	Debug          bool          `yaml:"debug" koanf:"debug"`
	PingTimeout    time.Duration `yaml:"ping_timeout" koanf:"ping_timeout"`
	OtelIdentifier string        `yaml:"otel_identifier" koanf:"otel_identifier"`
	MaxOpenConns   int           `yaml:"max_open_conns" koanf:"max_open_conns"`
}

func (c PersistenceConfig) GetDebug() bool { return c.Debug }

func (c PersistenceConfig) GetDriver() string { return strings.TrimSpace(c.Driver) }

func (c PersistenceConfig) GetServer() string { return strings.TrimSpace(c.DSN) }

func (c PersistenceConfig) GetPingTimeout() time.Duration {
	if c.PingTimeout <= 0 {
		return defaultPingTimeout
	}
	return c.PingTimeout
}

func (c PersistenceConfig) GetOtelIdentifier() string {
	if strings.TrimSpace(c.OtelIdentifier) == "" {
		return "go-invites"
	}
	return c.OtelIdentifier
}

// MigrationDialect maps a database/sql driver name to the migration dialect.
func MigrationDialect(driver string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverSQLite, "sqlite":
		return invitemigrations.DialectSQLite, nil
	case DriverPostgres, "pgx", "pg":
		return invitemigrations.DialectPostgres, nil
	default:
		return "", fmt.Errorf("sqlstore: unsupported driver %q", driver)
	}
}

func bunDialect(dialect string) schema.Dialect {
	if dialect == invitemigrations.DialectSQLite {
		return sqlitedialect.New()
	}
	return pgdialect.New()
}

// OpenClient opens the database, registers the embedded migrations for the
// driver's dialect and, when migrate is set, applies them.
func OpenClient(ctx context.Context, cfg PersistenceConfig, migrate bool) (*persistence.Client, error) {
	dialect, err := MigrationDialect(cfg.Driver)
	if err != nil {
		return nil, err
	}
	if cfg.GetServer() == "" {
		return nil, fmt.Errorf("sqlstore: dsn is required")
	}
	sqlDB, err := sql.Open(cfg.GetDriver(), cfg.GetServer())
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", cfg.GetDriver(), err)
	}
	switch {
	case cfg.MaxOpenConns > 0:
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	case dialect == invitemigrations.DialectSQLite:
		// conditional writes rely on one writer at a time
		sqlDB.SetMaxOpenConns(1)
	}

	client, err := persistence.New(cfg, sqlDB, bunDialect(dialect))
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlstore: persistence client: %w", err)
	}

	_, err = invitemigrations.Register(ctx, func(_ context.Context, fsDialect string, _ string, fsys fs.FS) error {
		if fsDialect != dialect {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, invitemigrations.WithValidationTargets(dialect))
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("sqlstore: register migrations: %w", err)
	}
	if migrate {
		if err := client.Migrate(ctx); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("sqlstore: migrate: %w", err)
		}
	}
	return client, nil
}
