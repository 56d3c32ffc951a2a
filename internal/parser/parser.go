package parser

import (
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/OCAP2/racetrack/internal/util"
)

// parseUintFromFloat parses a string that may be an integer ("32") or float ("32.00") into uint64.
// Game scripts have no integer type, so tick counters may arrive as floats.
func parseUintFromFloat(s string) (uint64, error) {
	if v, err := strconv.ParseUint(s, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f < 0 || f != float64(uint64(f)) {
		return 0, fmt.Errorf("parseUintFromFloat: %q is not a valid uint64", s)
	}
	return uint64(f), nil
}

// parseIntFromFloat parses a string that may be an integer or float into int64.
func parseIntFromFloat(s string) (int64, error) {
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f != float64(int64(f)) {
		return 0, fmt.Errorf("parseIntFromFloat: %q is not a valid int64", s)
	}
	return int64(f), nil
}

// parseBool accepts the usual strconv forms.
func parseBool(s string) (bool, error) {
	if s == "" {
		return false, nil
	}
	return strconv.ParseBool(s)
}

func clean(data []string) []string {
	out := make([]string, len(data))
	for i, v := range data {
		out[i] = util.CleanArg(v)
	}
	return out
}

func requireArgs(data []string, n int, what string) error {
	if len(data) < n {
		return fmt.Errorf("%s: expected at least %d args, got %d", what, n, len(data))
	}
	return nil
}

// Parser provides pure []string -> command conversion.
// It has zero external dependencies beyond a logger.
type Parser struct {
	logger *slog.Logger

	// Static config set at creation time
	extensionVersion string

	joinSeq atomic.Uint64

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewParser creates a new parser with only a logger dependency
func NewParser(logger *slog.Logger, extensionVersion string, seed int64) *Parser {
	return &Parser{
		logger:           logger,
		extensionVersion: extensionVersion,
		rng:              rand.New(rand.NewSource(seed)),
	}
}

// spawnName makes a unique display name for a racer that joined without one.
func (p *Parser) spawnName() string {
	id := p.joinSeq.Add(1)
	p.rngMu.Lock()
	suffix := p.rng.Intn(10000)
	p.rngMu.Unlock()
	return fmt.Sprintf("Player %d_%04d", id, suffix)
}
