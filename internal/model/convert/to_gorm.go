// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"encoding/json"

	"github.com/OCAP2/racetrack/internal/geo"
	"github.com/OCAP2/racetrack/internal/model"
	"github.com/OCAP2/racetrack/pkg/core"
	"gorm.io/datatypes"
)

// standingRow is the stored shape of one standings entry.
type standingRow struct {
	Name           string  `json:"name"`
	FinishPosition int     `json:"finishPosition"`
	ElapsedTime    float64 `json:"elapsedTime"`
}

// standingsToJSON converts result entries to datatypes.JSON for DB storage.
func standingsToJSON(entries []core.ResultEntry) datatypes.JSON {
	if len(entries) == 0 {
		return datatypes.JSON("[]")
	}
	rows := make([]standingRow, len(entries))
	for i, e := range entries {
		rows[i] = standingRow(e)
	}
	data, _ := json.Marshal(rows)
	return datatypes.JSON(data)
}

// CoreToRace converts a core.Race to a GORM model.Race.
// core.Race.RaceID maps to GORM Race.SessionID.
func CoreToRace(r core.Race) (model.Race, error) {
	course, err := geo.CourseLineString(r.Course)
	if err != nil {
		return model.Race{}, err
	}
	out := model.Race{
		SessionID:        r.RaceID,
		RaceName:         r.RaceName,
		TrackName:        r.TrackName,
		StartTime:        r.StartTime,
		Policy:           r.Policy,
		FinishMode:       r.FinishMode,
		FinishRadius:     r.Course.FinishRadius,
		Course:           course,
		ExtensionVersion: r.ExtensionVersion,
		Tag:              r.Tag,
	}
	out.ID = r.ID
	return out, nil
}

// CoreToRacer converts a core.Racer to a GORM model.Racer.
func CoreToRacer(raceID uint, r core.Racer) model.Racer {
	return model.Racer{
		RaceID:   raceID,
		Name:     r.Name,
		JoinTime: r.JoinTime,
		IsLocal:  r.IsLocal,
	}
}

// CoreToProgressState converts a core.ProgressState to a GORM model.ProgressState.
func CoreToProgressState(raceID uint, s core.ProgressState) (model.ProgressState, error) {
	pos, err := geo.Point3857(s.Position)
	if err != nil {
		return model.ProgressState{}, err
	}
	return model.ProgressState{
		Time:            s.Time,
		RaceID:          raceID,
		RacerName:       s.RacerName,
		Tick:            s.Tick,
		Position:        pos,
		CheckpointIndex: s.CheckpointIndex,
		ElapsedTime:     s.ElapsedTime,
		Speed:           s.Speed,
		Distance:        s.Distance,
	}, nil
}

// CoreToCheckpointEvent converts a core.CheckpointEvent to a GORM model.CheckpointEvent.
func CoreToCheckpointEvent(raceID uint, e core.CheckpointEvent) model.CheckpointEvent {
	return model.CheckpointEvent{
		Time:            e.Time,
		RaceID:          raceID,
		RacerName:       e.RacerName,
		CheckpointIndex: e.CheckpointIndex,
		ElapsedTime:     e.ElapsedTime,
	}
}

// CoreToFinishRecord converts a core.FinishEvent to a GORM model.FinishRecord.
func CoreToFinishRecord(raceID uint, e core.FinishEvent) model.FinishRecord {
	return model.FinishRecord{
		RaceID:         raceID,
		RacerName:      e.RacerName,
		Time:           e.Time,
		FinishPosition: e.FinishPosition,
		ElapsedTime:    e.ElapsedTime,
	}
}

// CoreToRaceResult converts frozen core.Results to a GORM model.RaceResult.
func CoreToRaceResult(raceID uint, r core.Results) model.RaceResult {
	return model.RaceResult{
		RaceID:      raceID,
		ConcludedAt: r.ConcludedAt,
		Reason:      r.Reason,
		Finishers:   len(r.Entries),
		Standings:   standingsToJSON(r.Entries),
	}
}
