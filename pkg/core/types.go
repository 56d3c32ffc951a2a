// pkg/core/types.go
package core

// Position3D is a position in course space (metres).
type Position3D struct {
	X float64
	Y float64
	Z float64
}

// UploadMetadata contains metadata sent alongside an exported results file.
type UploadMetadata struct {
	RaceID       string
	RaceName     string
	TrackName    string
	RaceDuration float64
	Finishers    int
	Tag          string
}
