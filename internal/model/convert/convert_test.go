package convert

import (
	"math"
	"testing"
	"time"

	"github.com/OCAP2/racetrack/internal/geo"
	"github.com/OCAP2/racetrack/internal/model"
	"github.com/OCAP2/racetrack/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func testRace() core.Race {
	return core.Race{
		ID:         7,
		RaceID:     "2Nf3b1SZ6q0lqWJHm4jD7fBzY6p",
		RaceName:   "Sunday Cup",
		TrackName:  "Harbour Loop",
		StartTime:  time.Now().Truncate(time.Millisecond),
		Policy:     "all-finished",
		FinishMode: "trigger",
		Course: core.Course{
			Name: "Harbour Loop",
			Checkpoints: []core.Position3D{
				{X: 10, Y: 0, Z: 1},
				{X: 20, Y: 5, Z: 2},
			},
			Finish:       core.Position3D{X: 30, Y: 5, Z: 3},
			FinishRadius: 8,
		},
		ExtensionVersion: "1.0.0",
		Tag:              "Race",
	}
}

// Round-trip: Core → GORM → Core
func TestRaceRoundTrip(t *testing.T) {
	original := testRace()

	gormRace, err := CoreToRace(original)
	require.NoError(t, err)
	assert.Equal(t, original.RaceID, gormRace.SessionID)
	assert.Equal(t, uint(7), gormRace.ID)
	assert.Equal(t, 3, gormRace.Course.Coordinates().Length())

	back := RaceToCore(gormRace)
	assert.Equal(t, original, back)
}

func TestRaceRoundTrip_EmptyCourse(t *testing.T) {
	original := testRace()
	original.Course = core.Course{Name: original.TrackName}

	gormRace, err := CoreToRace(original)
	require.NoError(t, err)
	assert.True(t, gormRace.Course.IsEmpty())

	back := RaceToCore(gormRace)
	assert.Empty(t, back.Course.Checkpoints)
	assert.Equal(t, core.Position3D{}, back.Course.Finish)
}

func TestCoreToRace_DegenerateCourse(t *testing.T) {
	original := testRace()
	original.Course.Checkpoints = []core.Position3D{original.Course.Finish}

	_, err := CoreToRace(original)
	assert.ErrorIs(t, err, geo.ErrInvalidCoordinates)
}

func TestRacerRoundTrip(t *testing.T) {
	now := time.Now()
	original := core.Racer{Name: "alice", IsLocal: true, JoinTime: now}

	gormRacer := CoreToRacer(3, original)
	assert.Equal(t, uint(3), gormRacer.RaceID)
	assert.False(t, gormRacer.LeftAt.Valid)

	assert.Equal(t, original, RacerToCore(gormRacer))
}

func TestProgressStateRoundTrip(t *testing.T) {
	original := core.ProgressState{
		RacerName:       "bob",
		Time:            time.Now(),
		Tick:            42,
		Position:        core.Position3D{X: 1.5, Y: 2.5, Z: 3.5},
		CheckpointIndex: 1,
		ElapsedTime:     12.3,
		Speed:           20,
		Distance:        150,
	}

	gormState, err := CoreToProgressState(9, original)
	require.NoError(t, err)
	assert.Equal(t, uint(9), gormState.RaceID)
	coord, ok := gormState.Position.Coordinates()
	require.True(t, ok)
	assert.Equal(t, 3.5, coord.Z)

	assert.Equal(t, original, ProgressStateToCore(gormState))
}

func TestCoreToProgressState_NonFinitePosition(t *testing.T) {
	s := core.ProgressState{RacerName: "bob", Position: core.Position3D{X: math.Inf(1), Y: 2}}
	_, err := CoreToProgressState(9, s)
	assert.ErrorIs(t, err, geo.ErrInvalidCoordinates)
}

func TestCheckpointEventRoundTrip(t *testing.T) {
	original := core.CheckpointEvent{RacerName: "bob", Time: time.Now(), CheckpointIndex: 2, ElapsedTime: 30}
	gormEvent := CoreToCheckpointEvent(1, original)
	assert.Equal(t, uint(1), gormEvent.RaceID)
	assert.Equal(t, original, CheckpointEventToCore(gormEvent))
}

func TestFinishRecordRoundTrip(t *testing.T) {
	original := core.FinishEvent{RacerName: "bob", Time: time.Now(), FinishPosition: 2, ElapsedTime: 61.5}
	gormRecord := CoreToFinishRecord(1, original)
	assert.Equal(t, uint(1), gormRecord.RaceID)
	assert.Equal(t, original, FinishRecordToCore(gormRecord))
}

func TestRaceResultRoundTrip(t *testing.T) {
	original := core.Results{
		ConcludedAt: time.Now(),
		Reason:      "all-finished",
		Entries: []core.ResultEntry{
			{Name: "alice", FinishPosition: 1, ElapsedTime: 60},
			{Name: "bob", FinishPosition: 2, ElapsedTime: 61.5},
		},
	}

	gormResult := CoreToRaceResult(4, original)
	assert.Equal(t, 2, gormResult.Finishers)
	assert.JSONEq(t,
		`[{"name":"alice","finishPosition":1,"elapsedTime":60},{"name":"bob","finishPosition":2,"elapsedTime":61.5}]`,
		string(gormResult.Standings))

	assert.Equal(t, original, RaceResultToCore(gormResult))
}

func TestRaceResult_EmptyStandings(t *testing.T) {
	gormResult := CoreToRaceResult(4, core.Results{Reason: "signal"})
	assert.Equal(t, datatypes.JSON("[]"), gormResult.Standings)
	assert.Empty(t, RaceResultToCore(gormResult).Entries)
}

func TestRaceResultToCore_BadJSON(t *testing.T) {
	res := RaceResultToCore(model.RaceResult{Reason: "x", Standings: datatypes.JSON("{nope")})
	assert.Empty(t, res.Entries)
	assert.Equal(t, "x", res.Reason)
}
