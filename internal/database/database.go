package database

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/stackpilot/stackpilot/internal/models"
)

var (
	db   *gorm.DB
	once sync.Once
)

// Connect opens the embedded database and creates the schema on first use.
func Connect(path string) error {
	var err error
	once.Do(func() {
		db, err = open(path)
	})
	return err
}

func open(path string) (*gorm.DB, error) {
	newLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)

	conn, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: newLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	// SQLite tolerates a single writer; keep the pool to one connection.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	if err := conn.AutoMigrate(&models.DeploymentRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return conn, nil
}

// OpenEphemeral returns an in-memory database, used by tests.
func OpenEphemeral() (*gorm.DB, error) {
	return open(":memory:")
}

// GetDatabase returns the database instance
func GetDatabase() *gorm.DB {
	return db
}

// SetDatabase sets the database instance (for testing purposes only)
func SetDatabase(database *gorm.DB) {
	db = database
}
