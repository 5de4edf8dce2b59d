package db

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Open picks the dialector for driver. dsn is a file path for sqlite.
func Open(driver, dsn string, log *zap.Logger) (*gorm.DB, error) {
	switch driver {
	case DriverSQLite:
		// WAL keeps readers off the writer's lock; busy_timeout absorbs short contention.
		return open(sqlite.Open(dsn+"?_journal_mode=WAL&_busy_timeout=5000"), 1, log)
	case DriverMySQL:
		return open(mysql.Open(dsn), 30, log)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", driver)
	}
}

// OpenGormWithDialector opens and pings using an already built dialector.
func OpenGormWithDialector(dial gorm.Dialector) (*gorm.DB, error) {
	return open(dial, 30, zap.NewNop())
}

func open(dial gorm.Dialector, maxOpen int, log *zap.Logger) (*gorm.DB, error) {
	cfg := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
		// pinged explicitly below, after pool tuning
		DisableAutomaticPing: true,
	}
	db, err := gorm.Open(dial, cfg)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(min(maxOpen, 10))
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, err
	}
	log.Info("gorm: connected", zap.String("dialect", dial.Name()))
	return db, nil
}
