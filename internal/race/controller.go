package race

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Option configures a Controller.
type Option func(*Controller)

// WithPolicy sets the automatic conclusion policy. Default AllFinished.
func WithPolicy(p ConclusionPolicy) Option {
	return func(c *Controller) { c.policy = p }
}

// WithFinishMode sets what counts as crossing the line. Default FinishTrigger.
func WithFinishMode(m FinishMode) Option {
	return func(c *Controller) { c.finishMode = m }
}

// WithLogger sets the logger for diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithClock replaces time.Now, used to stamp the conclusion time.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// Controller owns the canonical state of one race: the roster, checkpoint
// progress, finish order and conclusion.
//
// Every mutation takes the caller's Role and is refused for observers.
// Reads are safe from any goroutine and return copies.
type Controller struct {
	course     *Course
	policy     ConclusionPolicy
	finishMode FinishMode
	logger     *slog.Logger
	now        func() time.Time

	mu        sync.RWMutex
	order     []*PlayerProgress // registration order
	byName    map[string]*PlayerProgress
	finishes  []FinishRecord // arrival order, survives player removal
	concluded bool
	results   ResultsSnapshot

	hooksMu sync.Mutex
	hooks   []func(ResultsSnapshot)

	// OTEL metrics
	diagnostics metric.Int64Counter
	checkpoints metric.Int64Counter
	finished    metric.Int64Counter
}

// NewController creates a controller for the given course.
// A nil course is treated as a course with no checkpoints.
func NewController(course *Course, opts ...Option) (*Controller, error) {
	if course == nil {
		course = NewCourse(nil, mgl64.Vec3{}, 0)
	}
	c := &Controller{
		course: course,
		logger: slog.Default(),
		now:    time.Now,
		byName: make(map[string]*PlayerProgress),
	}
	for _, opt := range opts {
		opt(c)
	}

	m := meter()
	var err error
	c.diagnostics, err = m.Int64Counter(
		"race.diagnostics",
		metric.WithDescription("Rejected or ignored race mutations"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create diagnostics counter: %w", err)
	}
	c.checkpoints, err = m.Int64Counter(
		"race.checkpoints",
		metric.WithDescription("Checkpoints reached"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkpoints counter: %w", err)
	}
	c.finished, err = m.Int64Counter(
		"race.finishes",
		metric.WithDescription("Players that crossed the finish"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create finishes counter: %w", err)
	}

	if err := course.Ready(); err != nil {
		c.logger.Warn("course not ready, distances fall back to the finish waypoint", "error", err)
	}
	return c, nil
}

// Course returns the race course.
func (c *Controller) Course() *Course { return c.course }

// Policy returns the conclusion policy.
func (c *Controller) Policy() ConclusionPolicy { return c.policy }

// FinishMode returns the finish mode.
func (c *Controller) FinishMode() FinishMode { return c.finishMode }

func (c *Controller) diagnose(op string, err error, args ...any) error {
	c.diagnostics.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("op", op), attribute.String("reason", err.Error())))

	level := slog.LevelDebug
	if errors.Is(err, ErrUnauthorizedMutation) {
		level = slog.LevelWarn
	}
	c.logger.Log(context.Background(), level, op+" ignored", append([]any{"error", err}, args...)...)
	return fmt.Errorf("%s: %w", op, err)
}

func (c *Controller) authorize(role Role, op string, args ...any) error {
	if role.CanMutate() {
		return nil
	}
	return c.diagnose(op, ErrUnauthorizedMutation, append([]any{"role", role.String()}, args...)...)
}

// lookupLocked returns the named player, or a diagnostic error if the
// player is unknown or the race is over.
func (c *Controller) lookupLocked(op, name string) (*PlayerProgress, error) {
	if c.concluded {
		return nil, c.diagnose(op, ErrRaceConcluded, "player", name)
	}
	p, ok := c.byName[name]
	if !ok {
		return nil, c.diagnose(op, ErrUnknownPlayer, "player", name)
	}
	return p, nil
}

// RegisterPlayer adds a player to the roster at the start of the course. The
// controller takes over the progress, finish fields and state; a duplicate
// name leaves the existing record alone. A name that already finished rejoins
// as finished.
func (c *Controller) RegisterPlayer(role Role, p PlayerProgress) error {
	const op = "register player"
	if err := c.authorize(role, op, "player", p.Name); err != nil {
		return err
	}
	if p.Name == "" {
		return c.diagnose(op, ErrUnnamedPlayer)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.concluded {
		return c.diagnose(op, ErrRaceConcluded, "player", p.Name)
	}
	if _, ok := c.byName[p.Name]; ok {
		return c.diagnose(op, ErrDuplicateRegistration, "player", p.Name)
	}

	p.CheckpointIndex = NoCheckpoint
	p.Finished = false
	p.FinishPosition = 0
	p.State = NotStarted
	if p.ElapsedTime < 0 || math.IsNaN(p.ElapsedTime) {
		p.ElapsedTime = 0
	}
	if fr, ok := c.finishRecordLocked(p.Name); ok {
		// a finisher who left and came back keeps the original result
		p.CheckpointIndex = c.course.LastIndex()
		p.Finished = true
		p.FinishPosition = fr.FinishPosition
		p.ElapsedTime = fr.ElapsedTime
		p.State = Finished
	}

	rec := &p
	c.order = append(c.order, rec)
	c.byName[p.Name] = rec
	c.logger.Debug("player registered", "player", p.Name, "local", p.Local)
	return nil
}

func (c *Controller) finishRecordLocked(name string) (FinishRecord, bool) {
	for _, fr := range c.finishes {
		if fr.Name == name {
			return fr, true
		}
	}
	return FinishRecord{}, false
}

// RemovePlayer drops a player from the roster. A finisher's record stays in
// the results. Removing the last unfinished player can conclude the race.
func (c *Controller) RemovePlayer(role Role, name string) error {
	const op = "remove player"
	if err := c.authorize(role, op, "player", name); err != nil {
		return err
	}

	c.mu.Lock()
	if _, ok := c.byName[name]; !ok {
		c.mu.Unlock()
		return c.diagnose(op, ErrUnknownPlayer, "player", name)
	}
	delete(c.byName, name)
	for i, p := range c.order {
		if p.Name == name {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	snap, concluded := c.checkConclusionLocked()
	c.mu.Unlock()

	c.logger.Debug("player removed", "player", name)
	if concluded {
		c.fireConcluded(snap)
	}
	return nil
}

// UpdateProgress records a player's latest position, elapsed time and speed.
// Elapsed time never goes backwards and is frozen once the player finishes.
func (c *Controller) UpdateProgress(role Role, name string, pos mgl64.Vec3, elapsed, speed float64) error {
	const op = "update progress"
	if err := c.authorize(role, op, "player", name); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	p, err := c.lookupLocked(op, name)
	if err != nil {
		return err
	}

	p.Position = pos
	if !math.IsNaN(speed) {
		p.Speed = speed
	}
	if p.Finished {
		return nil
	}
	if elapsed > p.ElapsedTime {
		p.ElapsedTime = elapsed
	}
	if p.State == NotStarted {
		p.State = Racing
	}
	return nil
}

// AdvanceCheckpoint moves a player to its next checkpoint and returns the
// new index. At the last checkpoint the index stays put.
func (c *Controller) AdvanceCheckpoint(role Role, name string) (int, error) {
	const op = "advance checkpoint"
	if err := c.authorize(role, op, "player", name); err != nil {
		return NoCheckpoint, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	p, err := c.lookupLocked(op, name)
	if err != nil {
		return NoCheckpoint, err
	}
	if p.CheckpointIndex >= c.course.LastIndex() {
		return p.CheckpointIndex, c.diagnose(op, ErrOutOfRangeCheckpoint,
			"player", name, "index", p.CheckpointIndex+1)
	}
	c.advanceLocked(p, p.CheckpointIndex+1)
	return p.CheckpointIndex, nil
}

// AdvanceToCheckpoint moves a player onto the checkpoint with the given
// index, as reported by a trigger. Only the next checkpoint is accepted; a
// repeat of the current one is a silent no-op.
func (c *Controller) AdvanceToCheckpoint(role Role, name string, index int) (int, error) {
	const op = "advance to checkpoint"
	if err := c.authorize(role, op, "player", name); err != nil {
		return NoCheckpoint, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	p, err := c.lookupLocked(op, name)
	if err != nil {
		return NoCheckpoint, err
	}
	switch {
	case index < 0 || index > c.course.LastIndex():
		return p.CheckpointIndex, c.diagnose(op, ErrOutOfRangeCheckpoint, "player", name, "index", index)
	case index == p.CheckpointIndex:
		return p.CheckpointIndex, nil
	case index != p.CheckpointIndex+1:
		return p.CheckpointIndex, c.diagnose(op, ErrOutOfOrderCheckpoint,
			"player", name, "index", index, "current", p.CheckpointIndex)
	}
	c.advanceLocked(p, index)
	return p.CheckpointIndex, nil
}

func (c *Controller) advanceLocked(p *PlayerProgress, index int) {
	p.CheckpointIndex = index
	if p.State == NotStarted {
		p.State = Racing
	}
	c.checkpoints.Add(context.Background(), 1)
	c.logger.Debug("checkpoint reached", "player", p.Name, "index", index)
}

// EvaluateFinish checks whether a player has crossed the line and, if so,
// assigns the next finish position. It reports true only on the call that
// finished the player.
func (c *Controller) EvaluateFinish(role Role, name string) (bool, error) {
	const op = "evaluate finish"
	if err := c.authorize(role, op, "player", name); err != nil {
		return false, err
	}

	c.mu.Lock()
	p, err := c.lookupLocked(op, name)
	if err != nil {
		c.mu.Unlock()
		return false, err
	}
	if !c.crossedLocked(p) {
		c.mu.Unlock()
		return false, nil
	}

	p.Finished = true
	p.State = Finished
	p.FinishPosition = len(c.finishes) + 1
	c.finishes = append(c.finishes, FinishRecord{
		Name:           p.Name,
		FinishPosition: p.FinishPosition,
		ElapsedTime:    p.ElapsedTime,
	})
	c.finished.Add(context.Background(), 1)
	c.logger.Info("player finished", "player", p.Name, "position", p.FinishPosition, "elapsed", p.ElapsedTime)

	snap, concluded := c.checkConclusionLocked()
	c.mu.Unlock()

	if concluded {
		c.fireConcluded(snap)
	}
	return true, nil
}

func (c *Controller) crossedLocked(p *PlayerProgress) bool {
	if p.Finished || p.CheckpointIndex != c.course.LastIndex() {
		return false
	}
	if c.finishMode == FinishAtLastCheckpoint {
		return true
	}
	return c.course.InFinishVolume(p.Position)
}

// checkConclusionLocked applies the conclusion policy.
func (c *Controller) checkConclusionLocked() (ResultsSnapshot, bool) {
	if c.concluded || len(c.finishes) == 0 {
		return ResultsSnapshot{}, false
	}
	switch c.policy {
	case FirstFinisher:
		return c.concludeLocked(ReasonFirstFinisher), true
	case AllFinished:
		for _, p := range c.order {
			if !p.Finished {
				return ResultsSnapshot{}, false
			}
		}
		return c.concludeLocked(ReasonAllFinished), true
	default:
		return ResultsSnapshot{}, false
	}
}

func (c *Controller) concludeLocked(reason ConclusionReason) ResultsSnapshot {
	c.concluded = true
	c.results = newResultsSnapshot(c.finishes, c.now(), reason)
	c.logger.Info("race concluded", "reason", string(reason), "finishers", c.results.Len())
	return c.results
}

// Conclude ends the race now, whatever the policy, and returns the results.
// Concluding an already concluded race returns the existing results.
func (c *Controller) Conclude(role Role, reason ConclusionReason) (ResultsSnapshot, error) {
	const op = "conclude"
	if err := c.authorize(role, op); err != nil {
		return ResultsSnapshot{}, err
	}
	if reason == "" {
		reason = ReasonSignal
	}

	c.mu.Lock()
	if c.concluded {
		snap := c.results
		c.mu.Unlock()
		return snap, nil
	}
	snap := c.concludeLocked(reason)
	c.mu.Unlock()

	c.fireConcluded(snap)
	return snap, nil
}

// Reset puts the race back to its pre-start state, keeping the roster.
// Conclusion hooks stay registered.
func (c *Controller) Reset(role Role) error {
	if err := c.authorize(role, "reset"); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, p := range c.order {
		*p = NewPlayerProgress(p.Name, p.Position, p.Local)
	}
	c.finishes = nil
	c.concluded = false
	c.results = ResultsSnapshot{}
	c.logger.Info("race reset", "players", len(c.order))
	return nil
}

// OnConcluded registers fn to run once each time the race concludes.
// Hooks run on the goroutine that concluded the race, outside the state lock.
func (c *Controller) OnConcluded(fn func(ResultsSnapshot)) {
	c.hooksMu.Lock()
	c.hooks = append(c.hooks, fn)
	c.hooksMu.Unlock()
}

func (c *Controller) fireConcluded(snap ResultsSnapshot) {
	c.hooksMu.Lock()
	hooks := append(([]func(ResultsSnapshot))(nil), c.hooks...)
	c.hooksMu.Unlock()

	for _, fn := range hooks {
		fn(snap)
	}
}

// IsRaceConcluded reports whether the race has concluded.
func (c *Controller) IsRaceConcluded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.concluded
}

// BuildResultsSnapshot returns the final results. It reports false until
// the race concludes; after that every call returns the same snapshot.
func (c *Controller) BuildResultsSnapshot() (ResultsSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.results, c.concluded
}

// FinishedCount returns how many players have finished, including removed ones.
func (c *Controller) FinishedCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.finishes)
}

// Player returns a copy of the named player's progress.
func (c *Controller) Player(name string) (PlayerProgress, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.byName[name]
	if !ok {
		return PlayerProgress{}, false
	}
	return *p, true
}

// Players returns copies of all registered players in registration order.
func (c *Controller) Players() []PlayerProgress {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]PlayerProgress, len(c.order))
	for i, p := range c.order {
		out[i] = *p
	}
	return out
}

// LocalPlayer returns the first player flagged as local to this host.
func (c *Controller) LocalPlayer() (PlayerProgress, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, p := range c.order {
		if p.Local {
			return *p, true
		}
	}
	return PlayerProgress{}, false
}

// Leaderboard ranks the current roster.
func (c *Controller) Leaderboard() []LeaderboardEntry {
	return Rank(c.course, c.Players())
}

// PositionOf returns the named player's current rank and the roster size.
func (c *Controller) PositionOf(name string) (rank, total int, ok bool) {
	board := c.Leaderboard()
	for _, e := range board {
		if e.Name == name {
			return e.Rank, len(board), true
		}
	}
	return 0, len(board), false
}
