// Package postgres implements the storage.Backend interface on a PostgreSQL
// connection, reusing the queue-based GORM backend for writes.
package postgres

import (
	"fmt"

	"github.com/OCAP2/racetrack/internal/config"
	"github.com/OCAP2/racetrack/internal/database"
	"github.com/OCAP2/racetrack/internal/logging"
	gormstorage "github.com/OCAP2/racetrack/internal/storage/gorm"

	"gorm.io/gorm"
)

// MaxOpenConns caps the connection pool.
const MaxOpenConns = 10

// Backend wraps the GORM backend with a Postgres connection opened on Init.
type Backend struct {
	*gormstorage.Backend
}

// New creates a new Postgres storage backend. Nothing is dialled until Init.
func New(cfg config.DBConfig, logManager *logging.SlogManager) *Backend {
	return &Backend{
		Backend: gormstorage.New(gormstorage.Dependencies{
			Open:       func() (*gorm.DB, error) { return open(cfg) },
			LogManager: logManager,
		}),
	}
}

// open connects and validates the connection before handing it over.
func open(cfg config.DBConfig) (*gorm.DB, error) {
	db, err := database.GetPostgresDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access sql interface: %w", err)
	}
	if err = sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to validate connection: %w", err)
	}
	sqlDB.SetMaxOpenConns(MaxOpenConns)
	return db, nil
}
