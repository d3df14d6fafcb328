// Package repo is the GORM persistence layer: SQLite bootstrap, schema
// migration, and the user and idempotency record queries.
package repo

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/go-user-api/internal/domain"
)

// connPragmas run on every pooled connection, not just the first one.
var connPragmas = []string{
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"foreign_keys(1)",
	"busy_timeout(5000)",
}

// sqliteDSN turns a file path into a DSN carrying connPragmas. DSNs that
// already use the file: scheme or name an in-memory database pass through.
func sqliteDSN(path string) string {
	if path == ":memory:" || strings.HasPrefix(path, "file:") {
		return path
	}
	q := url.Values{"_pragma": connPragmas}
	return "file:" + path + "?" + q.Encode()
}

// OpenSQLite opens (creating if needed) the database at path. The parent
// directory must exist. Driver errors are translated, so unique violations
// surface as gorm.ErrDuplicatedKey.
func OpenSQLite(path string) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, fmt.Errorf("sqlite directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(sqliteDSN(path)), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// EnableTracing installs the GORM OpenTelemetry plugin. Query variables are
// left out of spans because inserts carry password hashes.
func EnableTracing(db *gorm.DB) error {
	return db.Use(tracing.NewPlugin(tracing.WithoutQueryVariables()))
}

// emailLowerIndex keeps emails unique regardless of case, even for rows
// written without normalization.
const emailLowerIndex = `CREATE UNIQUE INDEX IF NOT EXISTS ux_users_email_lower ON users (lower(email))`

// AutoMigrate creates or updates the users and idempotency tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&domain.User{}, &domain.Idempotency{}); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	if err := db.Exec(emailLowerIndex).Error; err != nil {
		return fmt.Errorf("email index: %w", err)
	}
	return nil
}
