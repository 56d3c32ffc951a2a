// internal/storage/storage.go
package storage

import (
	"github.com/OCAP2/racetrack/pkg/core"
	"gorm.io/gorm"
)

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Race management (StartRace assigns ID to the passed pointer where the backend has one)
	StartRace(race *core.Race) error
	EndRace(results *core.Results) error

	// Roster
	AddRacer(r *core.Racer) error
	RemoveRacer(name string) error

	// Progress recording
	RecordProgress(s *core.ProgressState) error
	RecordCheckpoint(e *core.CheckpointEvent) error
	RecordFinish(e *core.FinishEvent) error
}

// Uploadable is an optional interface for storage backends that produce
// a results file suitable for upload to the results server.
type Uploadable interface {
	GetExportedFilePath() string
	GetExportMetadata() core.UploadMetadata
}

// QueueReporter is an optional interface for backends that batch writes.
type QueueReporter interface {
	QueueLengths() (progress, checkpoints, finishes int)
	GetLastDBWriteDuration() float32
}

// Relational is an optional interface for backends writing to a gorm database.
// RaceID is the row id of the race being recorded, 0 before StartRace.
type Relational interface {
	DB() *gorm.DB
	RaceID() uint
}
