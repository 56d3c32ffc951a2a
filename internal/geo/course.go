package geo

import (
	"encoding/json"
	"fmt"

	"github.com/OCAP2/racetrack/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
)

// ParseCheckpoints parses a JSON array of coordinates.
// Input format: "[[x1,y1,z1],[x2,y2],...]"; a missing z is 0.
func ParseCheckpoints(input string) ([]core.Position3D, error) {
	var coords [][]float64
	if err := json.Unmarshal([]byte(input), &coords); err != nil {
		return nil, fmt.Errorf("failed to parse checkpoints JSON: %w", err)
	}

	out := make([]core.Position3D, len(coords))
	for i, coord := range coords {
		if len(coord) < 2 {
			return nil, fmt.Errorf("coordinate %d has insufficient values", i)
		}
		out[i] = core.Position3D{X: coord[0], Y: coord[1]}
		if len(coord) > 2 {
			out[i].Z = coord[2]
		}
	}
	return out, nil
}

// CourseLineString builds the racing line through every checkpoint and on to
// the finish. A course without checkpoints yields an empty line string. The
// line must be valid geometry: finite and with at least two distinct points.
func CourseLineString(c core.Course) (geom.LineString, error) {
	if len(c.Checkpoints) == 0 {
		return geom.LineString{}, nil
	}
	flat := make([]float64, 0, (len(c.Checkpoints)+1)*3)
	for _, p := range c.Checkpoints {
		flat = append(flat, p.X, p.Y, p.Z)
	}
	flat = append(flat, c.Finish.X, c.Finish.Y, c.Finish.Z)

	ls, err := geom.NewLineString(geom.NewSequence(flat, geom.DimXYZ))
	if err != nil {
		return geom.LineString{}, fmt.Errorf("%w: course line: %v", ErrInvalidCoordinates, err)
	}
	return ls, nil
}

// CourseFromLineString is the inverse of CourseLineString.
func CourseFromLineString(ls geom.LineString) (checkpoints []core.Position3D, finish core.Position3D) {
	seq := ls.Coordinates()
	n := seq.Length()
	if n == 0 {
		return nil, core.Position3D{}
	}
	checkpoints = make([]core.Position3D, 0, n-1)
	for i := 0; i < n; i++ {
		c := seq.Get(i)
		p := core.Position3D{X: c.X, Y: c.Y, Z: c.Z}
		if i == n-1 {
			finish = p
		} else {
			checkpoints = append(checkpoints, p)
		}
	}
	return checkpoints, finish
}
