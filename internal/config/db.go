package config

import (
	"fmt"
	"time"
)

const (
	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

type DBConfig struct {
	Driver          string        `envconfig:"DB_DRIVER" default:"postgres"`
	Host            string        `envconfig:"DB_HOST" default:"postgres"`
	Port            int           `envconfig:"DB_PORT" default:"5432"`
	User            string        `envconfig:"DB_USER" default:"scheduler"`
	Password        string        `envconfig:"DB_PASSWORD" default:"scheduler"`
	Name            string        `envconfig:"DB_NAME" default:"scheduler_db"`
	SSLMode         string        `envconfig:"DB_SSLMODE" default:"disable"`
	TimeZone        string        `envconfig:"DB_TIMEZONE" default:"UTC"`
	SqlitePath      string        `envconfig:"DB_SQLITE_PATH" default:"scheduler.db"`
	MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"30m"`
	AutoMigrate     bool          `envconfig:"DB_AUTO_MIGRATE" default:"true"`
}

// DSN: строка подключения в формате libpq key=value для gorm и pgx.
func (c DBConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%d sslmode=%s TimeZone=%s",
		c.Host,
		c.User,
		c.Password,
		c.Name,
		c.Port,
		c.SSLMode,
		c.TimeZone,
	)
}

func (c DBConfig) validate() []error {
	var errs []error
	switch c.Driver {
	case DBDriverPostgres:
		if c.Host == "" || c.User == "" || c.Name == "" {
			errs = append(errs, fmt.Errorf("DB_HOST, DB_USER and DB_NAME must not be empty for postgres"))
		}
		if c.Port <= 0 || c.Port > 65535 {
			errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.Port))
		}
		if !isValidSSLMode(c.SSLMode) {
			errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.SSLMode))
		}
	case DBDriverSQLite:
		if c.SqlitePath == "" {
			errs = append(errs, fmt.Errorf("DB_SQLITE_PATH is required for sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER must be postgres or sqlite, got %q", c.Driver))
	}
	return errs
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}
