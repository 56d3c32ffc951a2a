package race

import "github.com/go-gl/mathgl/mgl64"

// Course is the ordered checkpoint layout of a race plus its finish waypoint.
// It is immutable once built and safe for concurrent readers.
type Course struct {
	checkpoints  []mgl64.Vec3
	finish       mgl64.Vec3
	finishRadius float64

	// remaining[i] is the path length from checkpoint i through the last
	// checkpoint to the finish.
	remaining []float64
}

// NewCourse builds a course. The checkpoint slice is copied.
func NewCourse(checkpoints []mgl64.Vec3, finish mgl64.Vec3, finishRadius float64) *Course {
	if finishRadius < 0 {
		finishRadius = 0
	}
	c := &Course{
		checkpoints:  append([]mgl64.Vec3(nil), checkpoints...),
		finish:       finish,
		finishRadius: finishRadius,
		remaining:    make([]float64, len(checkpoints)),
	}
	if n := len(c.checkpoints); n > 0 {
		c.remaining[n-1] = c.finish.Sub(c.checkpoints[n-1]).Len()
	}
	for i := len(c.checkpoints) - 2; i >= 0; i-- {
		c.remaining[i] = c.remaining[i+1] + c.checkpoints[i+1].Sub(c.checkpoints[i]).Len()
	}
	return c
}

// Len returns the number of checkpoints.
func (c *Course) Len() int {
	if c == nil {
		return 0
	}
	return len(c.checkpoints)
}

// LastIndex is the highest checkpoint index a player can reach (-1 on an empty course).
func (c *Course) LastIndex() int {
	return c.Len() - 1
}

// Checkpoints returns a copy of the checkpoint positions.
func (c *Course) Checkpoints() []mgl64.Vec3 {
	if c == nil {
		return nil
	}
	return append([]mgl64.Vec3(nil), c.checkpoints...)
}

// Finish returns the finish waypoint.
func (c *Course) Finish() mgl64.Vec3 {
	if c == nil {
		return mgl64.Vec3{}
	}
	return c.finish
}

// FinishRadius returns the radius of the finish trigger volume.
func (c *Course) FinishRadius() float64 {
	if c == nil {
		return 0
	}
	return c.finishRadius
}

// Ready reports ErrQueryBeforeCourseReady for a course without checkpoints.
// Queries still work on such a course; they measure against the finish.
func (c *Course) Ready() error {
	if c.Len() == 0 {
		return ErrQueryBeforeCourseReady
	}
	return nil
}

func (c *Course) nextIndex(index int) int {
	next := index + 1
	if next < 0 {
		next = 0
	}
	if last := c.LastIndex(); next > last {
		next = last
	}
	return next
}

// DistanceToNextCheckpoint is the straight-line distance from the player to
// the checkpoint after its current one. On an empty course it is the distance
// to the finish.
func (c *Course) DistanceToNextCheckpoint(p PlayerProgress) float64 {
	if c.Len() == 0 {
		return p.Position.Sub(c.Finish()).Len()
	}
	return p.Position.Sub(c.checkpoints[c.nextIndex(p.CheckpointIndex)]).Len()
}

// RemainingCourseDistance is DistanceToNextCheckpoint plus the path length
// from the next checkpoint through the last one to the finish. Once the last
// checkpoint is reached only the leg to the finish is left.
func (c *Course) RemainingCourseDistance(p PlayerProgress) float64 {
	if c.Len() == 0 || p.CheckpointIndex >= c.LastIndex() {
		return p.Position.Sub(c.Finish()).Len()
	}
	next := c.nextIndex(p.CheckpointIndex)
	return p.Position.Sub(c.checkpoints[next]).Len() + c.remaining[next]
}

// InFinishVolume reports whether pos is inside the finish trigger.
func (c *Course) InFinishVolume(pos mgl64.Vec3) bool {
	return pos.Sub(c.Finish()).Len() <= c.FinishRadius()
}
