package convert

import (
	"encoding/json"

	"github.com/OCAP2/racetrack/internal/geo"
	"github.com/OCAP2/racetrack/internal/model"
	"github.com/OCAP2/racetrack/pkg/core"
)

// RaceToCore converts a GORM Race to a core.Race.
// The course line string holds the checkpoints followed by the finish.
func RaceToCore(r model.Race) core.Race {
	cps, finish := geo.CourseFromLineString(r.Course)
	return core.Race{
		ID:         r.ID,
		RaceID:     r.SessionID,
		RaceName:   r.RaceName,
		TrackName:  r.TrackName,
		StartTime:  r.StartTime,
		Policy:     r.Policy,
		FinishMode: r.FinishMode,
		Course: core.Course{
			Name:         r.TrackName,
			Checkpoints:  cps,
			Finish:       finish,
			FinishRadius: r.FinishRadius,
		},
		ExtensionVersion: r.ExtensionVersion,
		Tag:              r.Tag,
	}
}

// RacerToCore converts a GORM Racer to a core.Racer.
func RacerToCore(r model.Racer) core.Racer {
	return core.Racer{
		Name:     r.Name,
		IsLocal:  r.IsLocal,
		JoinTime: r.JoinTime,
	}
}

// ProgressStateToCore converts a GORM ProgressState to a core.ProgressState.
func ProgressStateToCore(s model.ProgressState) core.ProgressState {
	return core.ProgressState{
		RacerName:       s.RacerName,
		Time:            s.Time,
		Tick:            s.Tick,
		Position:        geo.PositionFromPoint(s.Position),
		CheckpointIndex: s.CheckpointIndex,
		ElapsedTime:     s.ElapsedTime,
		Speed:           s.Speed,
		Distance:        s.Distance,
	}
}

// CheckpointEventToCore converts a GORM CheckpointEvent to a core.CheckpointEvent.
func CheckpointEventToCore(e model.CheckpointEvent) core.CheckpointEvent {
	return core.CheckpointEvent{
		RacerName:       e.RacerName,
		Time:            e.Time,
		CheckpointIndex: e.CheckpointIndex,
		ElapsedTime:     e.ElapsedTime,
	}
}

// FinishRecordToCore converts a GORM FinishRecord to a core.FinishEvent.
func FinishRecordToCore(f model.FinishRecord) core.FinishEvent {
	return core.FinishEvent{
		RacerName:      f.RacerName,
		Time:           f.Time,
		FinishPosition: f.FinishPosition,
		ElapsedTime:    f.ElapsedTime,
	}
}

// RaceResultToCore converts a GORM RaceResult to core.Results.
// Unreadable standings yield an empty entry list.
func RaceResultToCore(r model.RaceResult) core.Results {
	var rows []standingRow
	if len(r.Standings) > 0 {
		_ = json.Unmarshal(r.Standings, &rows)
	}
	entries := make([]core.ResultEntry, len(rows))
	for i, row := range rows {
		entries[i] = core.ResultEntry(row)
	}
	return core.Results{
		ConcludedAt: r.ConcludedAt,
		Reason:      r.Reason,
		Entries:     entries,
	}
}
