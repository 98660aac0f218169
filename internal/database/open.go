package database

import (
	"strings"

	"github.com/vkozii/authgate/internal/config"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects using the driver implied by the DSN. Postgres is the
// production store; sqlite carries local development and tests.
func Open(cfg *config.Config) (*gorm.DB, error) {
	gormCfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}
	if isSQLiteDSN(cfg.DatabaseURL) {
		return gorm.Open(sqlite.Open(cfg.DatabaseURL), gormCfg)
	}
	return gorm.Open(postgres.Open(cfg.DatabaseURL), gormCfg)
}

func isSQLiteDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "file:") ||
		strings.HasSuffix(dsn, ".db") ||
		strings.Contains(dsn, ":memory:")
}
