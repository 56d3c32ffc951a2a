package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/OCAP2/racetrack/internal/dispatcher"
	"github.com/OCAP2/racetrack/internal/geo"
	"github.com/OCAP2/racetrack/internal/hud"
	"github.com/OCAP2/racetrack/internal/influx"
	"github.com/OCAP2/racetrack/internal/race"
	"github.com/OCAP2/racetrack/internal/session"
	"github.com/OCAP2/racetrack/pkg/core"
)

// Race commands.
const (
	CmdStart       = ":RACE:START:"
	CmdJoin        = ":RACE:JOIN:"
	CmdLeave       = ":RACE:LEAVE:"
	CmdTick        = ":RACE:TICK:"
	CmdCheckpoint  = ":RACE:CHECKPOINT:"
	CmdFinish      = ":RACE:FINISH:"
	CmdConclude    = ":RACE:CONCLUDE:"
	CmdReset       = ":RACE:RESET:"
	CmdLeaderboard = ":RACE:LEADERBOARD:"
	CmdResults     = ":RACE:RESULTS:"
	CmdHUD         = ":RACE:HUD:"
	CmdMetric      = ":RACE:METRIC:"
)

// RegisterHandlers registers all race command handlers with the dispatcher.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	// Race lifecycle - sync, after queued ticks for the old state are applied
	d.Register(CmdStart, m.handleStart, dispatcher.DrainFirst(CmdTick), dispatcher.Logged())
	d.Register(CmdReset, m.handleReset, dispatcher.DrainFirst(CmdTick), dispatcher.Logged())
	d.Register(CmdConclude, m.handleConclude, dispatcher.DrainFirst(CmdTick), dispatcher.Logged())

	// Roster - sync
	d.Register(CmdJoin, m.handleJoin, dispatcher.Logged())
	d.Register(CmdLeave, m.handleLeave, dispatcher.DrainFirst(CmdTick), dispatcher.Logged())

	// High-volume progress samples - buffered
	d.Register(CmdTick, m.handleTick, dispatcher.Buffered(10000), dispatcher.Logged())

	// Course events need the racer's latest tick applied first
	d.Register(CmdCheckpoint, m.handleCheckpoint, dispatcher.DrainFirst(CmdTick), dispatcher.Logged())
	d.Register(CmdFinish, m.handleFinish, dispatcher.DrainFirst(CmdTick), dispatcher.Logged())

	// Display queries
	d.Register(CmdLeaderboard, m.handleLeaderboard)
	d.Register(CmdResults, m.handleResults)
	d.Register(CmdHUD, m.handleHUD)

	// Script metrics - buffered
	d.Register(CmdMetric, m.handleMetric, dispatcher.Buffered(1000), dispatcher.Logged())
}

func (m *Manager) handleStart(e dispatcher.Event) (any, error) {
	r, err := m.deps.Parser.ParseStart(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to start race: %w", err)
	}

	cfg := m.deps.RaceConfig
	if r.Policy == "" {
		r.Policy = cfg.Policy
	}
	if r.FinishMode == "" {
		r.FinishMode = cfg.FinishMode
	}
	if r.Course.FinishRadius <= 0 {
		r.Course.FinishRadius = cfg.FinishRadius
	}
	if r.Tag == "" {
		r.Tag = cfg.DefaultTag
	}
	policy, err := race.ParseConclusionPolicy(r.Policy)
	if err != nil {
		return nil, fmt.Errorf("failed to start race: %w", err)
	}
	mode, err := race.ParseFinishMode(r.FinishMode)
	if err != nil {
		return nil, fmt.Errorf("failed to start race: %w", err)
	}
	r.Policy = policy.String()
	r.FinishMode = mode.String()
	r.RaceID = session.NewRaceID()
	r.StartTime = e.Timestamp

	logger := m.deps.LogManager.Logger()

	// a race still running is concluded before it is replaced
	if prev := m.deps.Session.Controller(); prev != nil && !prev.IsRaceConcluded() {
		if _, err := prev.Conclude(m.Role(), race.ReasonSignal); err != nil {
			logger.Warn("Could not conclude previous race", "error", err)
		}
		m.handleConclusions()
	}

	course := race.NewCourse(geo.Vec3s(r.Course.Checkpoints), geo.Vec3(r.Course.Finish), r.Course.FinishRadius)
	ctrl, err := race.NewController(course,
		race.WithPolicy(policy),
		race.WithFinishMode(mode),
		race.WithLogger(logger.With("raceId", r.RaceID)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create race controller: %w", err)
	}
	ctrl.OnConcluded(m.queueConclusion)
	m.deps.Session.Start(&r, ctrl)

	logger.Info("Race started",
		"raceId", r.RaceID,
		"name", r.RaceName,
		"track", r.TrackName,
		"checkpoints", course.Len(),
		"policy", r.Policy,
		"finishMode", r.FinishMode)

	if err := m.backend.StartRace(&r); err != nil {
		return r.RaceID, fmt.Errorf("failed to record race start: %w", err)
	}
	return r.RaceID, nil
}

func (m *Manager) handleReset(e dispatcher.Event) (any, error) {
	ctrl, err := m.controller()
	if err != nil {
		return nil, err
	}

	if !ctrl.IsRaceConcluded() {
		if _, err := ctrl.Conclude(m.Role(), race.ReasonSignal); err != nil {
			return nil, fmt.Errorf("failed to reset race: %w", err)
		}
		m.handleConclusions()
	}
	if err := ctrl.Reset(m.Role()); err != nil {
		return nil, fmt.Errorf("failed to reset race: %w", err)
	}

	next := *m.deps.Session.Race()
	next.ID = 0
	next.RaceID = session.NewRaceID()
	next.StartTime = e.Timestamp
	m.deps.Session.Start(&next, ctrl)

	if err := m.backend.StartRace(&next); err != nil {
		return next.RaceID, fmt.Errorf("failed to record race start: %w", err)
	}
	for _, p := range ctrl.Players() {
		if err := m.backend.AddRacer(&core.Racer{Name: p.Name, IsLocal: p.Local, JoinTime: e.Timestamp}); err != nil {
			return next.RaceID, fmt.Errorf("failed to record racer: %w", err)
		}
	}
	return next.RaceID, nil
}

func (m *Manager) handleConclude(e dispatcher.Event) (any, error) {
	ctrl, err := m.controller()
	if err != nil {
		return nil, err
	}

	reason := m.deps.Parser.ParseConclude(e.Args)
	snap, err := ctrl.Conclude(m.Role(), race.ConclusionReason(reason))
	if err != nil {
		return nil, fmt.Errorf("failed to conclude race: %w", err)
	}
	m.handleConclusions()
	return strings.Join(hud.ResultsLines(snap), "\n"), nil
}

func (m *Manager) handleJoin(e dispatcher.Event) (any, error) {
	ctrl, err := m.controller()
	if err != nil {
		return nil, err
	}

	cmd, err := m.deps.Parser.ParseJoin(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to register racer: %w", err)
	}

	err = ctrl.RegisterPlayer(m.Role(), race.NewPlayerProgress(cmd.Name, geo.Vec3(cmd.Position), cmd.Local))
	switch {
	case errors.Is(err, race.ErrDuplicateRegistration):
		return cmd.Name, nil
	case err != nil:
		return nil, fmt.Errorf("failed to register racer: %w", err)
	}

	if err := m.backend.AddRacer(&core.Racer{Name: cmd.Name, IsLocal: cmd.Local, JoinTime: e.Timestamp}); err != nil {
		return cmd.Name, fmt.Errorf("failed to record racer: %w", err)
	}
	return cmd.Name, nil
}

func (m *Manager) handleLeave(e dispatcher.Event) (any, error) {
	ctrl, err := m.controller()
	if err != nil {
		return nil, err
	}

	name, err := m.deps.Parser.ParsePlayer(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to remove racer: %w", err)
	}
	if err := ctrl.RemovePlayer(m.Role(), name); err != nil {
		return nil, fmt.Errorf("failed to remove racer: %w", err)
	}
	if err := m.backend.RemoveRacer(name); err != nil {
		m.deps.LogManager.Logger().Error("Failed to record racer leaving", "racer", name, "error", err)
	}

	m.handleConclusions()
	return nil, nil
}

func (m *Manager) handleTick(e dispatcher.Event) (any, error) {
	// observers follow the authority's state, their own samples are not applied
	role := m.Role()
	if !role.CanMutate() {
		return nil, nil
	}
	ctrl, err := m.controller()
	if err != nil {
		return nil, err
	}

	cmd, err := m.deps.Parser.ParseTick(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to log tick: %w", err)
	}
	if err := ctrl.UpdateProgress(role, cmd.Name, geo.Vec3(cmd.Position), cmd.ElapsedTime, cmd.Speed); err != nil {
		return nil, fmt.Errorf("failed to log tick: %w", err)
	}

	p, ok := ctrl.Player(cmd.Name)
	if !ok {
		return nil, nil
	}
	state := core.ProgressState{
		RacerName:       p.Name,
		Time:            e.Timestamp,
		Tick:            cmd.Tick,
		Position:        cmd.Position,
		CheckpointIndex: p.CheckpointIndex,
		ElapsedTime:     p.ElapsedTime,
		Speed:           p.Speed,
	}
	if !p.Finished {
		state.Distance = ctrl.Course().RemainingCourseDistance(p)
	}
	return nil, m.backend.RecordProgress(&state)
}

func (m *Manager) handleCheckpoint(e dispatcher.Event) (any, error) {
	ctrl, err := m.controller()
	if err != nil {
		return nil, err
	}

	cmd, err := m.deps.Parser.ParseCheckpoint(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to advance checkpoint: %w", err)
	}
	before, ok := ctrl.Player(cmd.Name)
	if !ok {
		return nil, fmt.Errorf("failed to advance checkpoint: %w: %s", race.ErrUnknownPlayer, cmd.Name)
	}

	var idx int
	if cmd.HasIndex {
		idx, err = ctrl.AdvanceToCheckpoint(m.Role(), cmd.Name, cmd.Index)
	} else {
		idx, err = ctrl.AdvanceCheckpoint(m.Role(), cmd.Name)
	}
	if err != nil {
		return idx, fmt.Errorf("failed to advance checkpoint: %w", err)
	}
	if idx == before.CheckpointIndex {
		// same trigger fired twice
		return idx, nil
	}

	p, _ := ctrl.Player(cmd.Name)
	ev := core.CheckpointEvent{
		RacerName:       cmd.Name,
		Time:            e.Timestamp,
		CheckpointIndex: idx,
		ElapsedTime:     p.ElapsedTime,
	}
	if err := m.backend.RecordCheckpoint(&ev); err != nil {
		m.deps.LogManager.Logger().Error("Failed to record checkpoint", "racer", cmd.Name, "error", err)
	}
	m.writeMetric(influx.CheckpointPoint(m.deps.Session.Race(), ev))

	if ctrl.FinishMode() == race.FinishAtLastCheckpoint {
		if _, err := m.evaluateFinish(ctrl, cmd.Name, e.Timestamp); err != nil {
			return idx, err
		}
	}

	m.handleConclusions()
	return idx, nil
}

func (m *Manager) handleFinish(e dispatcher.Event) (any, error) {
	ctrl, err := m.controller()
	if err != nil {
		return nil, err
	}

	name, err := m.deps.Parser.ParsePlayer(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate finish: %w", err)
	}
	pos, err := m.evaluateFinish(ctrl, name, e.Timestamp)
	m.handleConclusions()
	return pos, err
}

// evaluateFinish returns the racer's finish position, 0 while still racing.
func (m *Manager) evaluateFinish(ctrl *race.Controller, name string, t time.Time) (int, error) {
	finished, err := ctrl.EvaluateFinish(m.Role(), name)
	if err != nil {
		return 0, fmt.Errorf("failed to evaluate finish: %w", err)
	}
	p, _ := ctrl.Player(name)
	if !finished {
		return p.FinishPosition, nil
	}

	ev := core.FinishEvent{
		RacerName:      name,
		Time:           t,
		FinishPosition: p.FinishPosition,
		ElapsedTime:    p.ElapsedTime,
	}
	if err := m.backend.RecordFinish(&ev); err != nil {
		m.deps.LogManager.Logger().Error("Failed to record finish", "racer", name, "error", err)
	}
	m.writeMetric(influx.FinishPoint(m.deps.Session.Race(), ev))
	return p.FinishPosition, nil
}

func (m *Manager) handleLeaderboard(e dispatcher.Event) (any, error) {
	ctrl, err := m.controller()
	if err != nil {
		return nil, err
	}
	return strings.Join(hud.LeaderboardLines(ctrl.Leaderboard()), "\n"), nil
}

func (m *Manager) handleResults(e dispatcher.Event) (any, error) {
	ctrl, err := m.controller()
	if err != nil {
		return nil, err
	}
	snap, ok := ctrl.BuildResultsSnapshot()
	if !ok {
		return nil, ErrRaceInProgress
	}
	return strings.Join(hud.ResultsLines(snap), "\n"), nil
}

// handleHUD renders the heads-up line for one racer.
// Args: [name]
func (m *Manager) handleHUD(e dispatcher.Event) (any, error) {
	ctrl, err := m.controller()
	if err != nil {
		return nil, err
	}
	name, err := m.deps.Parser.ParsePlayer(e.Args)
	if err != nil {
		return nil, err
	}
	p, ok := ctrl.Player(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", race.ErrUnknownPlayer, name)
	}
	rank, total, _ := ctrl.PositionOf(name)
	return strings.Join([]string{
		hud.PositionLine(rank, total),
		hud.SpeedLine(p.Speed),
		hud.FormatRaceTime(p.ElapsedTime),
	}, " | "), nil
}

func (m *Manager) handleMetric(e dispatcher.Event) (any, error) {
	if m.deps.Metrics == nil {
		return nil, nil
	}
	bucket, point, err := influx.ParseMetric(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to log metric: %w", err)
	}
	return nil, m.deps.Metrics.WritePoint(context.Background(), bucket, point)
}
