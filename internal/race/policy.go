package race

import (
	"fmt"
	"strings"
)

// ConclusionPolicy decides when a race concludes on its own.
// An explicit Conclude call ends the race under every policy.
type ConclusionPolicy uint8

const (
	// AllFinished concludes once every registered player has finished.
	AllFinished ConclusionPolicy = iota
	// FirstFinisher concludes as soon as anybody finishes.
	FirstFinisher
	// OpenEnded keeps recording arrivals until Conclude is called.
	OpenEnded
)

// ParseConclusionPolicy parses a policy name as written in config.
func ParseConclusionPolicy(s string) (ConclusionPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all-finished":
		return AllFinished, nil
	case "first-finisher":
		return FirstFinisher, nil
	case "open-ended":
		return OpenEnded, nil
	default:
		return AllFinished, fmt.Errorf("unknown conclusion policy: %s", s)
	}
}

func (p ConclusionPolicy) String() string {
	switch p {
	case FirstFinisher:
		return "first-finisher"
	case OpenEnded:
		return "open-ended"
	default:
		return "all-finished"
	}
}

// FinishMode decides what counts as crossing the line.
type FinishMode uint8

const (
	// FinishTrigger requires the last checkpoint and a position inside the finish volume.
	FinishTrigger FinishMode = iota
	// FinishAtLastCheckpoint finishes a player on reaching the last checkpoint.
	FinishAtLastCheckpoint
)

// ParseFinishMode parses a finish mode name as written in config.
func ParseFinishMode(s string) (FinishMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "trigger":
		return FinishTrigger, nil
	case "checkpoint":
		return FinishAtLastCheckpoint, nil
	default:
		return FinishTrigger, fmt.Errorf("unknown finish mode: %s", s)
	}
}

func (m FinishMode) String() string {
	if m == FinishAtLastCheckpoint {
		return "checkpoint"
	}
	return "trigger"
}

// ConclusionReason records why a race concluded.
type ConclusionReason string

const (
	ReasonAllFinished   ConclusionReason = "all-finished"
	ReasonFirstFinisher ConclusionReason = "first-finisher"
	ReasonSignal        ConclusionReason = "signal"
)
