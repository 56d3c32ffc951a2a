package race

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func names(entries []LeaderboardEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name
	}
	return out
}

func TestRank_FinishedFirstThenByDistance(t *testing.T) {
	c := straightCourse()

	far := NewPlayerProgress("far", mgl64.Vec3{1, 0, 0}, false)
	near := NewPlayerProgress("near", mgl64.Vec3{25, 0, 0}, true)
	near.CheckpointIndex = 1
	second := NewPlayerProgress("second", mgl64.Vec3{35, 0, 0}, false)
	second.Finished, second.FinishPosition, second.CheckpointIndex = true, 2, 2
	first := NewPlayerProgress("first", mgl64.Vec3{40, 0, 0}, false)
	first.Finished, first.FinishPosition, first.CheckpointIndex = true, 1, 2

	board := Rank(c, []PlayerProgress{far, near, second, first})
	require.Len(t, board, 4)
	assert.Equal(t, []string{"first", "second", "near", "far"}, names(board))
	for i, e := range board {
		assert.Equal(t, i+1, e.Rank)
	}
	assert.Zero(t, board[0].DistanceToFinish)
	assert.True(t, board[2].IsLocal)
	assert.InDelta(t, 10.0, board[2].DistanceToFinish, 1e-9)
}

func TestRank_TiesKeepInputOrder(t *testing.T) {
	c := straightCourse()

	a := NewPlayerProgress("a", mgl64.Vec3{0, 10, 0}, false)
	b := NewPlayerProgress("b", mgl64.Vec3{0, -10, 0}, false)

	assert.Equal(t, []string{"a", "b"}, names(Rank(c, []PlayerProgress{a, b})))
	assert.Equal(t, []string{"b", "a"}, names(Rank(c, []PlayerProgress{b, a})))
}

func TestRank_NaNPositionSortsLast(t *testing.T) {
	c := straightCourse()

	bad := NewPlayerProgress("bad", mgl64.Vec3{math.NaN(), 0, 0}, false)
	ok := NewPlayerProgress("ok", mgl64.Vec3{0, 0, 0}, false)

	board := Rank(c, []PlayerProgress{bad, ok})
	assert.Equal(t, []string{"ok", "bad"}, names(board))
	assert.True(t, math.IsInf(board[1].DistanceToFinish, 1))
}

func TestRank_Empty(t *testing.T) {
	assert.Empty(t, Rank(straightCourse(), nil))
}
