package session

import (
	"log/slog"
	"sync"

	"github.com/OCAP2/racetrack/internal/race"
	"github.com/OCAP2/racetrack/pkg/core"
	"github.com/segmentio/ksuid"
)

// NoRaceName is the placeholder name before any race has started.
const NoRaceName = "No race loaded"

// NewRaceID returns a new time-sortable race identifier.
func NewRaceID() string {
	return ksuid.New().String()
}

// Context holds the race currently being run and its controller.
type Context struct {
	mu         sync.RWMutex
	race       *core.Race
	controller *race.Controller
}

// NewContext creates a new Context with no race loaded.
func NewContext() *Context {
	return &Context{
		race: &core.Race{RaceName: NoRaceName},
	}
}

// Race returns the current race record.
func (c *Context) Race() *core.Race {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.race
}

// Controller returns the current race controller, or nil before a race starts.
func (c *Context) Controller() *race.Controller {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.controller
}

// Active reports whether a race has been started.
func (c *Context) Active() bool {
	return c.Controller() != nil
}

// Start installs a new race, replacing any previous one.
func (c *Context) Start(r *core.Race, ctrl *race.Controller) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.race = r
	c.controller = ctrl
}

// Clear drops the current race.
func (c *Context) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.race = &core.Race{RaceName: NoRaceName}
	c.controller = nil
}

// LogAttrs returns the attributes stamped on every log record while a race runs.
func (c *Context) LogAttrs() []slog.Attr {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.controller == nil {
		return nil
	}
	return []slog.Attr{
		slog.String("id", c.race.RaceID),
		slog.String("name", c.race.RaceName),
		slog.String("track", c.race.TrackName),
	}
}
