package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/OCAP2/racetrack/internal/config"
	"github.com/OCAP2/racetrack/internal/logging"
	"github.com/OCAP2/racetrack/internal/parser"
	"github.com/OCAP2/racetrack/internal/race"
	"github.com/OCAP2/racetrack/internal/session"
	"github.com/OCAP2/racetrack/internal/storage"
	"github.com/OCAP2/racetrack/pkg/core"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
)

// ErrNoRace is returned by race commands that arrive before :RACE:START:.
var ErrNoRace = errors.New("no race started")

// ErrRaceInProgress is returned when results are asked for before the race concludes.
var ErrRaceInProgress = errors.New("race still in progress")

// MetricsWriter receives split and finish points.
type MetricsWriter interface {
	WritePoint(ctx context.Context, bucket string, point *influxdb2_write.Point) error
	RaceBucket() string
}

// Uploader sends an exported results file to the results server.
type Uploader interface {
	Upload(filePath string, meta core.UploadMetadata) error
}

// Flusher exports buffered telemetry, e.g. the OTel provider.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Dependencies holds all dependencies for the worker manager
type Dependencies struct {
	LogManager *logging.SlogManager
	Parser     *parser.Parser
	Session    *session.Context
	RaceConfig config.RaceConfig

	// HasAuthority reports whether this host currently holds state
	// authority. Nil means it always does.
	HasAuthority func() bool

	// Optional sinks
	Metrics   MetricsWriter
	Uploader  Uploader
	Telemetry Flusher
}

type concluded struct {
	race *core.Race
	snap race.ResultsSnapshot
}

// Manager turns race commands into controller calls and storage writes.
type Manager struct {
	deps    Dependencies
	backend storage.Backend

	// conclusions raised by controller hooks, handed to storage once the
	// command that caused them has recorded its own events
	pendingMu sync.Mutex
	pending   []concluded
}

// NewManager creates a new worker manager
func NewManager(deps Dependencies, backend storage.Backend) *Manager {
	return &Manager{
		deps:    deps,
		backend: backend,
	}
}

// Role is the role this host acts in right now.
func (m *Manager) Role() race.Role {
	if m.deps.HasAuthority == nil {
		return race.Authority
	}
	return race.RoleFor(m.deps.HasAuthority())
}

// GetLastDBWriteDuration returns the duration of the last DB write cycle in
// milliseconds, or 0 if the backend does not batch writes.
func (m *Manager) GetLastDBWriteDuration() float32 {
	if p, ok := m.backend.(storage.QueueReporter); ok {
		return p.GetLastDBWriteDuration()
	}
	return 0
}

func (m *Manager) controller() (*race.Controller, error) {
	ctrl := m.deps.Session.Controller()
	if ctrl == nil {
		return nil, ErrNoRace
	}
	return ctrl, nil
}

// queueConclusion is registered as the controller's OnConcluded hook.
func (m *Manager) queueConclusion(snap race.ResultsSnapshot) {
	m.pendingMu.Lock()
	m.pending = append(m.pending, concluded{race: m.deps.Session.Race(), snap: snap})
	m.pendingMu.Unlock()
}

// handleConclusions ends the recording for every race concluded since the
// last call and uploads the export where the backend produced one.
func (m *Manager) handleConclusions() {
	m.pendingMu.Lock()
	pending := m.pending
	m.pending = nil
	m.pendingMu.Unlock()

	logger := m.deps.LogManager.Logger()
	for _, c := range pending {
		results := ResultsToCore(c.snap)
		if err := m.backend.EndRace(&results); err != nil {
			logger.Error("Failed to end race in storage", "error", err)
			continue
		}
		logger.Info("Race recorded",
			"race", c.race.RaceName,
			"finishers", len(results.Entries),
			"reason", results.Reason)

		m.upload()
		m.flushTelemetry()
	}
}

// flushTelemetry exports the finished race's logs and metrics together.
func (m *Manager) flushTelemetry() {
	if m.deps.Telemetry == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.deps.Telemetry.Flush(ctx); err != nil {
		m.deps.LogManager.Logger().Warn("Failed to flush telemetry", "error", err)
	}
}

func (m *Manager) upload() {
	if m.deps.Uploader == nil {
		return
	}
	u, ok := m.backend.(storage.Uploadable)
	if !ok {
		return
	}
	path := u.GetExportedFilePath()
	if path == "" {
		return
	}
	logger := m.deps.LogManager.Logger()
	if err := m.deps.Uploader.Upload(path, u.GetExportMetadata()); err != nil {
		logger.Error("Failed to upload results", "file", path, "error", err)
		return
	}
	logger.Info("Results uploaded", "file", path)
}

func (m *Manager) writeMetric(point *influxdb2_write.Point) {
	if m.deps.Metrics == nil {
		return
	}
	if err := m.deps.Metrics.WritePoint(context.Background(), m.deps.Metrics.RaceBucket(), point); err != nil {
		m.deps.LogManager.Logger().Warn("Failed to write race metric", "error", err)
	}
}

// ResultsToCore converts a results snapshot to its storage form.
func ResultsToCore(snap race.ResultsSnapshot) core.Results {
	records := snap.Records()
	entries := make([]core.ResultEntry, len(records))
	for i, r := range records {
		entries[i] = core.ResultEntry{
			Name:           r.Name,
			FinishPosition: r.FinishPosition,
			ElapsedTime:    r.ElapsedTime,
		}
	}
	return core.Results{
		ConcludedAt: snap.ConcludedAt(),
		Reason:      string(snap.Reason()),
		Entries:     entries,
	}
}
