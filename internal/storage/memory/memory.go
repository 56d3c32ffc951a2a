// internal/storage/memory/memory.go
package memory

import (
	"errors"
	"sync"

	"github.com/OCAP2/racetrack/internal/config"
	"github.com/OCAP2/racetrack/pkg/core"
)

// ErrNoRace is returned when a race-scoped call arrives before StartRace.
var ErrNoRace = errors.New("no race started")

// RacerRecord groups a racer with all its time-series data
type RacerRecord struct {
	Racer       core.Racer
	Progress    []core.ProgressState
	Checkpoints []core.CheckpointEvent
	Finish      *core.FinishEvent
	Left        bool
}

// Backend stores race data in memory and exports to JSON
type Backend struct {
	cfg  config.MemoryConfig
	race *core.Race

	racers map[string]*RacerRecord // keyed by racer name
	order  []string                // join order

	results *core.Results

	lastExportPath string
	lastExportMeta core.UploadMetadata

	mu sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg:    cfg,
		racers: make(map[string]*RacerRecord),
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// StartRace begins recording a new race
func (b *Backend) StartRace(r *core.Race) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.race = r
	b.racers = make(map[string]*RacerRecord)
	b.order = nil
	b.results = nil
	return nil
}

// EndRace stores the final standings and exports the race
func (b *Backend) EndRace(results *core.Results) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.race == nil {
		return ErrNoRace
	}
	if results != nil {
		res := *results
		res.Entries = append([]core.ResultEntry(nil), results.Entries...)
		b.results = &res
	}
	return b.exportJSON()
}

// AddRacer registers a racer. A racer that left and rejoins keeps its history.
func (b *Backend) AddRacer(r *core.Racer) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if rec, ok := b.racers[r.Name]; ok {
		rec.Racer = *r
		rec.Left = false
		return nil
	}
	b.racers[r.Name] = &RacerRecord{
		Racer:       *r,
		Progress:    make([]core.ProgressState, 0),
		Checkpoints: make([]core.CheckpointEvent, 0),
	}
	b.order = append(b.order, r.Name)
	return nil
}

// RemoveRacer marks a racer as gone; its records stay in the export.
func (b *Backend) RemoveRacer(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if rec, ok := b.racers[name]; ok {
		rec.Left = true
	}
	return nil
}

// GetRacer looks up a racer record by name
func (b *Backend) GetRacer(name string) (*RacerRecord, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	rec, ok := b.racers[name]
	return rec, ok
}

// RecordProgress records a progress tick. Ticks for unknown racers are dropped.
func (b *Backend) RecordProgress(s *core.ProgressState) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if rec, ok := b.racers[s.RacerName]; ok {
		rec.Progress = append(rec.Progress, *s)
	}
	return nil
}

// RecordCheckpoint records a checkpoint entry
func (b *Backend) RecordCheckpoint(e *core.CheckpointEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if rec, ok := b.racers[e.RacerName]; ok {
		rec.Checkpoints = append(rec.Checkpoints, *e)
	}
	return nil
}

// RecordFinish records a racer crossing the line
func (b *Backend) RecordFinish(e *core.FinishEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if rec, ok := b.racers[e.RacerName]; ok {
		f := *e
		rec.Finish = &f
	}
	return nil
}

// GetExportedFilePath returns the path of the last export
func (b *Backend) GetExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}

// GetExportMetadata returns metadata describing the last export
func (b *Backend) GetExportMetadata() core.UploadMetadata {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportMeta
}
