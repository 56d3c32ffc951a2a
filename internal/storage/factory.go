// internal/storage/factory.go
package storage

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/OCAP2/racetrack/internal/config"
	"github.com/OCAP2/racetrack/internal/logging"
	"github.com/OCAP2/racetrack/internal/storage/memory"
	"github.com/OCAP2/racetrack/internal/storage/postgres"
	sqlitestorage "github.com/OCAP2/racetrack/internal/storage/sqlite"
	"github.com/OCAP2/racetrack/internal/storage/websocket"
)

// Compile-time interface checks
var (
	_ Backend       = (*memory.Backend)(nil)
	_ Uploadable    = (*memory.Backend)(nil)
	_ Backend       = (*sqlitestorage.Backend)(nil)
	_ QueueReporter = (*sqlitestorage.Backend)(nil)
	_ Relational    = (*sqlitestorage.Backend)(nil)
	_ Backend       = (*postgres.Backend)(nil)
	_ QueueReporter = (*postgres.Backend)(nil)
	_ Relational    = (*postgres.Backend)(nil)
	_ Backend       = (*websocket.Backend)(nil)
)

// Dependencies holds shared collaborators handed to backends.
type Dependencies struct {
	LogManager *logging.SlogManager
	// SessionStart names the sqlite dump file.
	SessionStart time.Time
}

// NewBackend creates a storage backend based on configuration
func NewBackend(cfg config.StorageConfig, deps Dependencies) (Backend, error) {
	switch cfg.Type {
	case "postgres":
		return postgres.New(cfg.DB, deps.LogManager), nil
	case "sqlite":
		start := deps.SessionStart
		if start.IsZero() {
			start = time.Now()
		}
		b, err := sqlitestorage.New(sqlitestorage.Config{
			DumpInterval: cfg.SQLite.DumpInterval,
			DumpPath:     filepath.Join(cfg.SQLite.Dir, fmt.Sprintf("racetrack_%s.db", start.Format("20060102_150405"))),
		}, deps.LogManager)
		if err != nil {
			return nil, err
		}
		return b, nil
	case "websocket":
		return websocket.New(websocket.Config{URL: cfg.WebSocket.URL, Secret: cfg.WebSocket.Secret}), nil
	case "memory":
		return memory.New(cfg.Memory), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
