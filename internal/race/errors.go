package race

import "errors"

// Diagnostics reported by the controller. None of them are fatal: the
// offending call is a no-op and the race carries on.
var (
	// ErrDuplicateRegistration is informational; registration is idempotent.
	ErrDuplicateRegistration = errors.New("player already registered")
	// ErrOutOfRangeCheckpoint means the checkpoint index would leave the course and was clamped.
	ErrOutOfRangeCheckpoint = errors.New("checkpoint index out of range")
	// ErrOutOfOrderCheckpoint means a trigger skipped ahead of the next checkpoint.
	ErrOutOfOrderCheckpoint = errors.New("checkpoint out of order")
	// ErrUnauthorizedMutation is returned when an observer tries to write race state.
	ErrUnauthorizedMutation = errors.New("mutation requires state authority")
	// ErrQueryBeforeCourseReady is reported for courses without checkpoints;
	// distance queries then fall back to the finish waypoint.
	ErrQueryBeforeCourseReady = errors.New("course has no checkpoints")
	// ErrUnknownPlayer is returned for updates naming a player that never registered.
	ErrUnknownPlayer = errors.New("unknown player")
	// ErrUnnamedPlayer is returned when registering a player without a name.
	ErrUnnamedPlayer = errors.New("player name is empty")
	// ErrRaceConcluded is returned for mutations after the race has concluded.
	ErrRaceConcluded = errors.New("race already concluded")
)
