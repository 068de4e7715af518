package db

import (
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/neka-nat/lecturia/internal/domain"
	"github.com/neka-nat/lecturia/internal/platform/envutil"
	"github.com/neka-nat/lecturia/internal/platform/logger"
)

// Open connects the run-status database. DB_DRIVER selects postgres or
// sqlite; sqlite is the default so local runs need no external service.
func Open(log *logger.Logger) (*gorm.DB, error) {
	serviceLog := log.With("service", "DB")

	cfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}

	var (
		conn *gorm.DB
		err  error
	)
	driver := strings.ToLower(envutil.Str("DB_DRIVER", "sqlite"))
	switch driver {
	case "postgres":
		host := envutil.Str("POSTGRES_HOST", "localhost")
		port := envutil.Str("POSTGRES_PORT", "5432")
		user := envutil.Str("POSTGRES_USER", "postgres")
		password := envutil.Str("POSTGRES_PASSWORD", "")
		name := envutil.Str("POSTGRES_NAME", "lecturia")
		dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port, name)
		conn, err = gorm.Open(postgres.Open(dsn), cfg)
	case "sqlite":
		path := envutil.Str("SQLITE_PATH", "lecturia.db")
		conn, err = gorm.Open(sqlite.Open(path), cfg)
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect %s: %w", driver, err)
	}

	if err := conn.AutoMigrate(&domain.TaskStatus{}); err != nil {
		return nil, fmt.Errorf("failed to migrate task_status: %w", err)
	}
	serviceLog.Info("Status database ready", "driver", driver)
	return conn, nil
}
