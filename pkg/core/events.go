// pkg/core/events.go
package core

import "time"

// ProgressState is one simulation tick worth of progress for a racer.
type ProgressState struct {
	RacerName       string
	Time            time.Time
	Tick            uint
	Position        Position3D
	CheckpointIndex int
	ElapsedTime     float64
	Speed           float64
	Distance        float64 // remaining course distance at this tick
}

// CheckpointEvent records a racer entering the next checkpoint.
type CheckpointEvent struct {
	RacerName       string
	Time            time.Time
	CheckpointIndex int
	ElapsedTime     float64
}

// FinishEvent records a racer crossing the finish line.
type FinishEvent struct {
	RacerName      string
	Time           time.Time
	FinishPosition int
	ElapsedTime    float64
}

// ResultEntry is one row of the final standings.
type ResultEntry struct {
	Name           string
	FinishPosition int
	ElapsedTime    float64
}

// Results is the frozen final standings of a concluded race.
type Results struct {
	ConcludedAt time.Time
	Reason      string
	Entries     []ResultEntry
}
