package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/OCAP2/racetrack/internal/hud"
	"github.com/OCAP2/racetrack/internal/influx"
	"github.com/OCAP2/racetrack/internal/logging"
	"github.com/OCAP2/racetrack/internal/model"
	"github.com/OCAP2/racetrack/internal/session"
	"github.com/OCAP2/racetrack/internal/storage"
	"github.com/OCAP2/racetrack/internal/worker"
)

// StatusFileName is written to the status directory on every refresh.
const StatusFileName = "status.txt"

// DefaultInterval is the refresh period when none is configured.
const DefaultInterval = time.Second

// BufferReporter exposes how many events wait in a dispatcher buffer.
type BufferReporter interface {
	QueueLen(command string) int
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	LogManager *logging.SlogManager
	Session    *session.Context
	Storage    storage.Backend
	Buffers    BufferReporter  // optional
	Influx     *influx.Manager // optional
	StatusDir  string
	Interval   time.Duration
}

// Service refreshes the leaderboard display and samples host performance,
// on its own cadence independent of the tick rate.
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = DefaultInterval
	}
	return &Service{
		deps:     deps,
		stopChan: make(chan struct{}),
	}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

func marshalStatus(label string, v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		b = []byte(fmt.Sprintf(`{"error": "%s"}`, err))
	}
	return label + ": " + string(b)
}

// GetStatus renders the status display and the matching performance sample.
// It reports false while no race is loaded.
func (s *Service) GetStatus() (output []string, perf model.HostPerformance, ok bool) {
	ctrl := s.deps.Session.Controller()
	if ctrl == nil {
		return nil, perf, false
	}
	r := s.deps.Session.Race()

	perf = model.HostPerformance{
		Time:      time.Now(),
		Racers:    uint16(len(ctrl.Players())),
		Finishers: uint16(ctrl.FinishedCount()),
	}
	if s.deps.Buffers != nil {
		perf.BufferLengths.Ticks = uint16(s.deps.Buffers.QueueLen(worker.CmdTick))
	}
	if q, ok := s.deps.Storage.(storage.QueueReporter); ok {
		p, c, f := q.QueueLengths()
		perf.WriteQueueLengths = model.WriteQueueLengths{
			ProgressStates:   uint16(p),
			CheckpointEvents: uint16(c),
			FinishRecords:    uint16(f),
		}
		perf.LastWriteDurationMs = q.GetLastDBWriteDuration()
	}
	if rel, ok := s.deps.Storage.(storage.Relational); ok {
		perf.RaceID = rel.RaceID()
	}

	state := "racing"
	if ctrl.IsRaceConcluded() {
		state = "concluded"
	}
	output = append(output,
		fmt.Sprintf("%s - %s (%s)", r.RaceName, r.TrackName, r.RaceID),
		fmt.Sprintf("State: %s  Racers: %d  Finished: %d", state, perf.Racers, perf.Finishers),
		"",
	)
	output = append(output, hud.LeaderboardLines(ctrl.Leaderboard())...)
	if snap, concluded := ctrl.BuildResultsSnapshot(); concluded {
		output = append(output, "", "Results:")
		output = append(output, hud.ResultsLines(snap)...)
	}
	output = append(output,
		"",
		marshalStatus("Buffers", perf.BufferLengths),
		marshalStatus("Write queues", perf.WriteQueueLengths),
		fmt.Sprintf("Last write: %.1f ms", perf.LastWriteDurationMs),
	)

	return output, perf, true
}

// Refresh writes one status update: the status file, a performance row when
// a database is attached and a performance point when influx is up.
func (s *Service) Refresh(statusFile *os.File) {
	logger := s.deps.LogManager.Logger()

	lines, perf, ok := s.GetStatus()
	if !ok {
		return
	}

	if statusFile != nil {
		if err := writeStatus(statusFile, lines); err != nil {
			logger.Error("Error writing status file", "error", err)
		}
	}

	if rel, ok := s.deps.Storage.(storage.Relational); ok && rel.DB() != nil && perf.RaceID != 0 {
		if err := rel.DB().Create(&perf).Error; err != nil {
			logger.Error("Error writing host performance", "error", err)
		}
	}

	if s.deps.Influx != nil {
		point := influx.PerformancePoint(s.deps.Session.Race(),
			int(perf.Racers), int(perf.Finishers), int(perf.BufferLengths.Ticks), perf.LastWriteDurationMs, perf.Time)
		if err := s.deps.Influx.WritePoint(context.Background(), influx.PerformanceBucket, point); err != nil {
			logger.Debug("Host performance not sent to influx", "error", err)
		}
	}
}

func writeStatus(f *os.File, lines []string) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	for _, line := range lines {
		if _, err := f.WriteString(line + "\n"); err != nil {
			return err
		}
	}
	return nil
}

// StatusPath is the status file location.
func (s *Service) StatusPath() string {
	return filepath.Join(s.deps.StatusDir, StatusFileName)
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}

	statusFile, err := os.Create(s.StatusPath())
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("error creating status file: %w", err)
	}

	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer statusFile.Close()
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()

		s.deps.LogManager.Logger().Debug("Starting status monitor goroutine", "interval", s.deps.Interval)

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.Refresh(statusFile)
			}
		}
	}()

	return nil
}

// Stop stops the status monitor and waits for the last refresh to finish.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()

	<-done
}
