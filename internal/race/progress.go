package race

import "github.com/go-gl/mathgl/mgl64"

// NoCheckpoint is the checkpoint index of a player that has not reached any checkpoint.
const NoCheckpoint = -1

// PlayerState is where a player is in its own race lifecycle.
type PlayerState uint8

const (
	NotStarted PlayerState = iota
	Racing
	Finished
)

func (s PlayerState) String() string {
	switch s {
	case Racing:
		return "racing"
	case Finished:
		return "finished"
	default:
		return "not-started"
	}
}

// PlayerProgress is the per-player race record.
//
// Position, CheckpointIndex (through the controller), ElapsedTime and Speed
// are fed by vehicle control. Finished, FinishPosition and State are owned by
// the controller.
type PlayerProgress struct {
	Name            string
	Position        mgl64.Vec3
	CheckpointIndex int
	ElapsedTime     float64
	Speed           float64
	Local           bool

	State          PlayerState
	Finished       bool
	FinishPosition int // 0 until the player finishes
}

// NewPlayerProgress returns a fresh record for a player about to join.
func NewPlayerProgress(name string, position mgl64.Vec3, local bool) PlayerProgress {
	return PlayerProgress{
		Name:            name,
		Position:        position,
		CheckpointIndex: NoCheckpoint,
		Local:           local,
	}
}
