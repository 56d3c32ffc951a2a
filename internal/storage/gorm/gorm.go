// Package gormstorage implements the storage.Backend interface on GORM with
// internal queues and a background DB writer goroutine. The sqlite and
// postgres backends wrap it and only differ in how the connection is made.
package gormstorage

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/OCAP2/racetrack/internal/database"
	"github.com/OCAP2/racetrack/internal/logging"
	"github.com/OCAP2/racetrack/internal/model"
	"github.com/OCAP2/racetrack/internal/model/convert"
	"github.com/OCAP2/racetrack/internal/queue"
	"github.com/OCAP2/racetrack/pkg/core"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultWriteInterval is how often queued records are flushed.
const DefaultWriteInterval = 2 * time.Second

// Dependencies holds all dependencies for the GORM storage backend.
// Open is used by Init when DB is nil.
type Dependencies struct {
	DB            *gorm.DB
	Open          func() (*gorm.DB, error)
	LogManager    *logging.SlogManager
	WriteInterval time.Duration
}

// maxPendingProgress bounds progress samples held while the DB is not
// keeping up. Checkpoints and finishes are never evicted.
const maxPendingProgress = 100_000

// queues holds all the write queues for batch DB insertion.
type queues struct {
	Progress    *queue.Batch[model.ProgressState]
	Checkpoints *queue.Batch[model.CheckpointEvent]
	Finishes    *queue.Batch[model.FinishRecord]
}

func newQueues() *queues {
	return &queues{
		Progress:    queue.NewBounded[model.ProgressState](maxPendingProgress),
		Checkpoints: queue.New[model.CheckpointEvent](),
		Finishes:    queue.New[model.FinishRecord](),
	}
}

// Backend implements storage.Backend using GORM with queue-based batch writes.
type Backend struct {
	deps     Dependencies
	queues   *queues
	raceID   atomic.Uint64
	stopChan chan struct{}
	done     chan struct{}

	flushMu       sync.Mutex
	lastWriteNano atomic.Int64
	reportedDrops int64
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.LogManager == nil {
		deps.LogManager = logging.NewSlogManager()
	}
	if deps.WriteInterval <= 0 {
		deps.WriteInterval = DefaultWriteInterval
	}
	return &Backend{
		deps:   deps,
		queues: newQueues(),
	}
}

// Init opens the connection if needed, runs schema migration and starts the
// DB writer goroutine. Without any DB the backend only queues.
func (b *Backend) Init() error {
	b.stopChan = make(chan struct{})

	if b.deps.DB == nil && b.deps.Open != nil {
		db, err := b.deps.Open()
		if err != nil {
			return err
		}
		b.deps.DB = db
	}
	if b.deps.DB == nil {
		return nil
	}

	if err := database.Migrate(b.deps.DB); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}
	b.deps.LogManager.WriteLog("gorm:Init", "Database setup complete", "INFO")

	b.done = make(chan struct{})
	go b.writeLoop()
	return nil
}

// Close stops the DB writer goroutine after a final flush.
func (b *Backend) Close() error {
	if b.stopChan != nil {
		select {
		case <-b.stopChan:
		default:
			close(b.stopChan)
		}
	}
	if b.done != nil {
		<-b.done
	}
	return nil
}

// DB returns the underlying connection, nil in queue-only mode.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// RaceID returns the database ID of the current race.
func (b *Backend) RaceID() uint {
	return uint(b.raceID.Load())
}

// SetRaceID sets the current race ID for subsequent records (used by CLI tools).
func (b *Backend) SetRaceID(id uint) {
	b.raceID.Store(uint64(id))
}

// StartRace inserts the race row and assigns its ID back to r.
func (b *Backend) StartRace(r *core.Race) error {
	if b.deps.DB == nil {
		return nil
	}

	gormRace, err := convert.CoreToRace(*r)
	if err != nil {
		return fmt.Errorf("failed to convert race: %w", err)
	}
	gormRace.ID = 0
	if err := b.deps.DB.Create(&gormRace).Error; err != nil {
		return fmt.Errorf("failed to insert new race: %w", err)
	}

	r.ID = gormRace.ID
	b.raceID.Store(uint64(gormRace.ID))
	return nil
}

// EndRace flushes every queue and stores the results snapshot.
func (b *Backend) EndRace(results *core.Results) error {
	if b.deps.DB == nil {
		return nil
	}
	raceID := b.RaceID()
	if raceID == 0 {
		return errors.New("no race started")
	}

	b.flush()

	if results == nil {
		return nil
	}
	row := convert.CoreToRaceResult(raceID, *results)
	err := b.deps.DB.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to store results: %w", err)
	}
	return nil
}

// AddRacer upserts the racer synchronously (not queued) because racers are
// low-volume and a rejoin must clear the left marker.
func (b *Backend) AddRacer(r *core.Racer) error {
	raceID := b.RaceID()
	if b.deps.DB == nil || raceID == 0 {
		return nil
	}

	row := convert.CoreToRacer(raceID, *r)
	err := b.deps.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "race_id"}, {Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"join_time", "is_local", "left_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to insert racer: %w", err)
	}
	return nil
}

// RemoveRacer stamps the racer's left time.
func (b *Backend) RemoveRacer(name string) error {
	raceID := b.RaceID()
	if b.deps.DB == nil || raceID == 0 {
		return nil
	}

	err := b.deps.DB.Model(&model.Racer{}).
		Where("race_id = ? AND name = ?", raceID, name).
		Update("left_at", time.Now()).Error
	if err != nil {
		return fmt.Errorf("failed to mark racer left: %w", err)
	}
	return nil
}

// RecordProgress converts and queues a progress tick.
func (b *Backend) RecordProgress(s *core.ProgressState) error {
	if raceID := b.RaceID(); raceID != 0 || b.deps.DB == nil {
		row, err := convert.CoreToProgressState(raceID, *s)
		if err != nil {
			return fmt.Errorf("failed to convert progress: %w", err)
		}
		b.queues.Progress.Push(row)
	}
	return nil
}

// RecordCheckpoint converts and queues a checkpoint event.
func (b *Backend) RecordCheckpoint(e *core.CheckpointEvent) error {
	if raceID := b.RaceID(); raceID != 0 || b.deps.DB == nil {
		b.queues.Checkpoints.Push(convert.CoreToCheckpointEvent(raceID, *e))
	}
	return nil
}

// RecordFinish converts and queues a finish record.
func (b *Backend) RecordFinish(e *core.FinishEvent) error {
	if raceID := b.RaceID(); raceID != 0 || b.deps.DB == nil {
		b.queues.Finishes.Push(convert.CoreToFinishRecord(raceID, *e))
	}
	return nil
}

// QueueLengths reports how many records wait for the writer.
func (b *Backend) QueueLengths() (progress, checkpoints, finishes int) {
	return b.queues.Progress.Len(), b.queues.Checkpoints.Len(), b.queues.Finishes.Len()
}

// GetLastDBWriteDuration returns the duration of the last flush in milliseconds.
func (b *Backend) GetLastDBWriteDuration() float32 {
	return float32(time.Duration(b.lastWriteNano.Load()).Microseconds()) / 1000
}

// writeQueue writes all pending records of a batch in one transaction.
// Failed records go back to the front of the batch for the next cycle.
func writeQueue[T any](db *gorm.DB, q *queue.Batch[T], name string, log func(string, string, string)) {
	items := q.Take()
	if len(items) == 0 {
		return
	}

	tx := db.Begin()
	if err := tx.Create(&items).Error; err != nil {
		log(":DB:WRITER:", fmt.Sprintf("Error creating %s: %v", name, err), "ERROR")
		tx.Rollback()
		q.Requeue(items)
		return
	}
	tx.Commit()
}

// flush drains every queue into the DB.
func (b *Backend) flush() {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	start := time.Now()
	log := b.deps.LogManager.WriteLog

	writeQueue(b.deps.DB, b.queues.Progress, "progress states", log)
	writeQueue(b.deps.DB, b.queues.Checkpoints, "checkpoint events", log)
	writeQueue(b.deps.DB, b.queues.Finishes, "finish records", log)

	if d := b.queues.Progress.Dropped(); d > b.reportedDrops {
		log(":DB:WRITER:", fmt.Sprintf("Dropped %d progress states, writer is behind", d-b.reportedDrops), "WARN")
		b.reportedDrops = d
	}

	b.lastWriteNano.Store(int64(time.Since(start)))
}

// writeLoop periodically drains queues into the DB until Close.
func (b *Backend) writeLoop() {
	defer close(b.done)

	ticker := time.NewTicker(b.deps.WriteInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			b.flush()
			return
		case <-ticker.C:
			b.flush()
		}
	}
}
