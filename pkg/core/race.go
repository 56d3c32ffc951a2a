// pkg/core/race.go
package core

import "time"

// Course is the checkpoint layout a race is run on.
type Course struct {
	Name         string
	Checkpoints  []Position3D
	Finish       Position3D
	FinishRadius float64
}

// Race represents one recorded race session.
// ID is assigned by storage backends that have one; RaceID is the session identifier.
type Race struct {
	ID               uint
	RaceID           string
	RaceName         string
	TrackName        string
	StartTime        time.Time
	Policy           string
	FinishMode       string
	Course           Course
	ExtensionVersion string
	Tag              string
}

// Racer is a participant registered with the race.
type Racer struct {
	Name     string
	IsLocal  bool
	JoinTime time.Time
}
