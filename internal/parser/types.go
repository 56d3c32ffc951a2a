package parser

import "github.com/OCAP2/racetrack/pkg/core"

// CourseDefinition is the JSON course layout carried by :RACE:START:.
// Points are [x,y] or [x,y,z]. With SRID 4326 they are lon/lat/elevation
// and get projected to metres.
type CourseDefinition struct {
	Name         string      `json:"name"`
	Checkpoints  [][]float64 `json:"checkpoints"`
	Finish       []float64   `json:"finish"`
	FinishRadius float64     `json:"finishRadius"`
	SRID         int         `json:"srid"`
}

// JoinCommand registers a racer.
type JoinCommand struct {
	Name      string
	Local     bool
	Position  core.Position3D
	Generated bool // name was generated because the join carried none
}

// TickCommand is one progress sample from vehicle control.
type TickCommand struct {
	Name        string
	Tick        uint
	Position    core.Position3D
	ElapsedTime float64
	Speed       float64 // m/s
}

// CheckpointCommand reports a checkpoint trigger. Without an index the
// racer simply moves on to its next checkpoint.
type CheckpointCommand struct {
	Name     string
	Index    int
	HasIndex bool
}
