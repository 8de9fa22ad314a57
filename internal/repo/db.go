// Package repo implements the persistence layer of the translation
// dictionary on top of GORM. Functions take a *gorm.DB so callers can pass
// either the root handle or a transaction.
package repo

import (
	"database/sql/driver"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	gosqlite "github.com/glebarez/go-sqlite"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/go-translation-backend/internal/domain"
	"github.com/tbourn/go-translation-backend/internal/normalize"
)

// Supported values for Open's driver argument.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// sqlitePragmas are applied to every pooled connection through the DSN.
var sqlitePragmas = []string{
	"foreign_keys(1)",
	"busy_timeout(5000)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
}

// sqliteLowerFunc is registered on every SQLite connection. SQLite's own
// LOWER() maps ASCII letters only, so "ÉCOLE" would become "École".
const sqliteLowerFunc = "unicode_lower"

func init() {
	gosqlite.MustRegisterDeterministicScalarFunction(sqliteLowerFunc, 1, unicodeLower)
}

func unicodeLower(_ *gosqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case string:
		return normalize.Lower(v), nil
	case []byte:
		return normalize.Lower(string(v)), nil
	default:
		return v, nil
	}
}

// lowerFunc names the SQL function that lower-cases text the same way
// normalize.Lower does. PostgreSQL's LOWER() is Unicode-aware already.
func lowerFunc(db *gorm.DB) string {
	if db.Dialector != nil && db.Dialector.Name() == DriverSQLite {
		return sqliteLowerFunc
	}
	return "LOWER"
}

// Open connects to the configured store. For sqlite dsn is a file path,
// for postgres a libpq connection string or URL.
func Open(driver, dsn string) (*gorm.DB, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverSQLite:
		return OpenSQLite(dsn)
	case DriverPostgres:
		return OpenPostgres(dsn)
	default:
		return nil, fmt.Errorf("unsupported DB driver %q", driver)
	}
}

// OpenSQLite opens (or creates) a SQLite database file with WAL, foreign
// keys and a busy timeout enabled on every connection.
func OpenSQLite(path string) (*gorm.DB, error) {
	// Fail early if the parent directory is missing instead of surfacing
	// sqlite's "out of memory (14)".
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	q := url.Values{}
	for _, p := range sqlitePragmas {
		q.Add("_pragma", p)
	}
	db, err := gorm.Open(sqlite.Open(path+"?"+q.Encode()), gormConfig())
	if err != nil {
		return nil, err
	}
	tune(db, 10)
	if err := instrument(db); err != nil {
		return nil, err
	}
	return db, nil
}

// OpenPostgres opens a PostgreSQL connection pool.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres DSN is empty")
	}
	db, err := gorm.Open(postgres.Open(dsn), gormConfig())
	if err != nil {
		return nil, err
	}
	tune(db, 25)
	if err := instrument(db); err != nil {
		return nil, err
	}
	return db, nil
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	}
}

func tune(db *gorm.DB, maxOpen int) {
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(maxOpen)
		sqlDB.SetMaxIdleConns(maxOpen)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
}

// instrument adds OpenTelemetry spans for every GORM statement. Spans go to
// the global tracer provider, so this is a no-op until tracing is set up.
func instrument(db *gorm.DB) error {
	return db.Use(tracing.NewPlugin(tracing.WithoutMetrics()))
}

// AutoMigrate creates or updates every table of the dictionary.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.TranslationKey{},
		&domain.Translation{},
		&domain.Tag{},
		&domain.KeyTag{},
		&domain.Idempotency{},
		&domain.CacheGeneration{},
	)
}

// MissingTables returns the dictionary tables that do not exist yet.
func MissingTables(db *gorm.DB) []string {
	m := db.Migrator()
	var missing []string
	for _, model := range []interface{ TableName() string }{
		domain.TranslationKey{}, domain.Translation{}, domain.Tag{}, domain.KeyTag{},
		domain.CacheGeneration{},
	} {
		if !m.HasTable(model.TableName()) {
			missing = append(missing, model.TableName())
		}
	}
	return missing
}
