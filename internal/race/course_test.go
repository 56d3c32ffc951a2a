package race

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
)

func straightCourse() *Course {
	return NewCourse([]mgl64.Vec3{
		{10, 0, 0},
		{20, 0, 0},
		{30, 0, 0},
	}, mgl64.Vec3{35, 0, 0}, 5)
}

func TestCourse_RemainingDistance(t *testing.T) {
	c := straightCourse()

	p := NewPlayerProgress("a", mgl64.Vec3{0, 0, 0}, false)
	assert.InDelta(t, 10.0, c.DistanceToNextCheckpoint(p), 1e-9)
	assert.InDelta(t, 35.0, c.RemainingCourseDistance(p), 1e-9)

	p.Position = mgl64.Vec3{15, 0, 0}
	p.CheckpointIndex = 0
	assert.InDelta(t, 5.0, c.DistanceToNextCheckpoint(p), 1e-9)
	assert.InDelta(t, 20.0, c.RemainingCourseDistance(p), 1e-9)
}

func TestCourse_FinalLegMeasuresToFinish(t *testing.T) {
	c := straightCourse()

	p := NewPlayerProgress("a", mgl64.Vec3{31, 0, 0}, false)
	p.CheckpointIndex = 2
	assert.InDelta(t, 1.0, c.DistanceToNextCheckpoint(p), 1e-9)
	assert.InDelta(t, 4.0, c.RemainingCourseDistance(p), 1e-9)

	p.Position = mgl64.Vec3{33, 0, 0}
	assert.InDelta(t, 3.0, c.DistanceToNextCheckpoint(p), 1e-9)
	assert.InDelta(t, 2.0, c.RemainingCourseDistance(p), 1e-9)

	// approaching the last checkpoint counts the leg beyond it
	p.Position = mgl64.Vec3{29, 0, 0}
	p.CheckpointIndex = 1
	assert.InDelta(t, 6.0, c.RemainingCourseDistance(p), 1e-9)
}

func TestCourse_EmptyCourseMeasuresToFinish(t *testing.T) {
	c := NewCourse(nil, mgl64.Vec3{3, 4, 0}, 1)
	assert.ErrorIs(t, c.Ready(), ErrQueryBeforeCourseReady)
	assert.Equal(t, -1, c.LastIndex())

	p := NewPlayerProgress("a", mgl64.Vec3{0, 0, 0}, false)
	assert.InDelta(t, 5.0, c.RemainingCourseDistance(p), 1e-9)
	assert.InDelta(t, 5.0, c.DistanceToNextCheckpoint(p), 1e-9)
}

func TestCourse_NilCourse(t *testing.T) {
	var c *Course
	assert.Equal(t, 0, c.Len())
	p := NewPlayerProgress("a", mgl64.Vec3{0, 3, 4}, false)
	assert.InDelta(t, 5.0, c.RemainingCourseDistance(p), 1e-9)
}

func TestCourse_RemainingDecreasesMovingForward(t *testing.T) {
	c := straightCourse()
	p := NewPlayerProgress("a", mgl64.Vec3{}, false)

	prev := c.RemainingCourseDistance(p)
	for x := 3.0; x <= 34; x += 3 {
		p.Position = mgl64.Vec3{x, 0, 0}
		for p.CheckpointIndex < c.LastIndex() && x >= c.checkpoints[p.CheckpointIndex+1].X() {
			p.CheckpointIndex++
		}
		cur := c.RemainingCourseDistance(p)
		assert.Less(t, cur, prev, "x=%v index=%d", x, p.CheckpointIndex)
		prev = cur
	}
}

func TestCourse_InFinishVolume(t *testing.T) {
	c := straightCourse()
	assert.True(t, c.InFinishVolume(mgl64.Vec3{35, 0, 0}))
	assert.True(t, c.InFinishVolume(mgl64.Vec3{31, 3, 0}))
	assert.False(t, c.InFinishVolume(mgl64.Vec3{29, 0, 0}))
}

func TestCourse_CheckpointsAreCopied(t *testing.T) {
	src := []mgl64.Vec3{{1, 0, 0}}
	c := NewCourse(src, mgl64.Vec3{}, -1)
	src[0] = mgl64.Vec3{9, 9, 9}

	assert.Equal(t, mgl64.Vec3{1, 0, 0}, c.Checkpoints()[0])
	assert.Zero(t, c.FinishRadius())
}
