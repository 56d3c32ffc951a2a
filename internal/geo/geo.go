package geo

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/OCAP2/racetrack/pkg/core"
	"github.com/go-gl/mathgl/mgl64"
	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// GEO POINTS
// Course space is metres. Courses authored on a real map come in as EPSG:4326
// lon/lat and are projected to EPSG:3857 so distances make sense. Geometry is
// stored as WKB in both sqlite and postgres.

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// Position3DFromString parses "x,y" or "x,y,z" into a core.Position3D.
func Position3DFromString(coords string) (core.Position3D, error) {
	split := strings.Split(strings.Trim(strings.TrimSpace(coords), "[]"), ",")
	if len(split) < 2 {
		return core.Position3D{}, ErrInvalidCoordinates
	}
	var vals [3]float64
	for i := 0; i < len(split) && i < 3; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(split[i]), 64)
		if err != nil {
			return core.Position3D{}, ErrInvalidCoordinates
		}
		vals[i] = v
	}
	return core.Position3D{X: vals[0], Y: vals[1], Z: vals[2]}, nil
}

// Vec3FromString parses "x,y" or "x,y,z" into a vector.
func Vec3FromString(coords string) (mgl64.Vec3, error) {
	p, err := Position3DFromString(coords)
	if err != nil {
		return mgl64.Vec3{}, err
	}
	return Vec3(p), nil
}

// Vec3 converts a stored position to a vector.
func Vec3(p core.Position3D) mgl64.Vec3 {
	return mgl64.Vec3{p.X, p.Y, p.Z}
}

// Position converts a vector to a stored position.
func Position(v mgl64.Vec3) core.Position3D {
	return core.Position3D{X: v.X(), Y: v.Y(), Z: v.Z()}
}

// Vec3s converts a slice of stored positions.
func Vec3s(ps []core.Position3D) []mgl64.Vec3 {
	out := make([]mgl64.Vec3, len(ps))
	for i, p := range ps {
		out[i] = Vec3(p)
	}
	return out
}

// Point3857 builds an XYZ point from a course-space position. Non-finite
// coordinates are rejected with ErrInvalidCoordinates.
func Point3857(p core.Position3D) (geom.Point, error) {
	pt, err := geom.NewPoint(
		geom.Coordinates{
			XY:   geom.XY{X: p.X, Y: p.Y},
			Z:    p.Z,
			Type: geom.CoordinatesType(geom.DimXYZ),
		},
	)
	if err != nil {
		return geom.Point{}, fmt.Errorf("%w: %v", ErrInvalidCoordinates, err)
	}
	return pt, nil
}

// PositionFromPoint reads a point back into course space. Empty points yield the origin.
func PositionFromPoint(pt geom.Point) core.Position3D {
	c, ok := pt.Coordinates()
	if !ok {
		return core.Position3D{}
	}
	return core.Position3D{X: c.X, Y: c.Y, Z: c.Z}
}

// From4326 projects a lon/lat/elevation position to EPSG:3857 metres.
// Elevation passes through unchanged.
func From4326(p core.Position3D) core.Position3D {
	f := wgs84.EPSG().Transform(4326, 3857)
	x, y, _ := f(p.X, p.Y, 0)
	return core.Position3D{X: x, Y: y, Z: p.Z}
}

// CourseFrom4326 projects every checkpoint and the finish of a course
// authored in lon/lat.
func CourseFrom4326(c core.Course) core.Course {
	out := c
	out.Checkpoints = make([]core.Position3D, len(c.Checkpoints))
	for i, p := range c.Checkpoints {
		out.Checkpoints[i] = From4326(p)
	}
	out.Finish = From4326(c.Finish)
	return out
}
