package model

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestTableNames(t *testing.T) {
	tests := []struct {
		name     string
		model    interface{ TableName() string }
		expected string
	}{
		{"HostPerformance", &HostPerformance{}, "host_performances"},
		{"Race", &Race{}, "races"},
		{"Racer", &Racer{}, "racers"},
		{"ProgressState", &ProgressState{}, "progress_states"},
		{"CheckpointEvent", &CheckpointEvent{}, "checkpoint_events"},
		{"FinishRecord", &FinishRecord{}, "finish_records"},
		{"RaceResult", &RaceResult{}, "race_results"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.model.TableName())
		})
	}
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(DatabaseModels...))
	return db
}

func TestMigrateAndLookup(t *testing.T) {
	db := openTestDB(t)

	older := Race{SessionID: "older", RaceName: "A", StartTime: time.Now().Add(-time.Hour)}
	newer := Race{SessionID: "newer", RaceName: "B", StartTime: time.Now()}
	require.NoError(t, db.Create(&older).Error)
	require.NoError(t, db.Create(&newer).Error)

	latest, err := LatestRace(db)
	require.NoError(t, err)
	assert.Equal(t, "newer", latest.SessionID)

	found, err := RaceBySessionID(db, "older")
	require.NoError(t, err)
	assert.Equal(t, "A", found.RaceName)

	_, err = RaceBySessionID(db, "missing")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestFinishPositionUniquePerRace(t *testing.T) {
	db := openTestDB(t)

	r := Race{SessionID: "x", StartTime: time.Now()}
	require.NoError(t, db.Create(&r).Error)

	require.NoError(t, db.Create(&FinishRecord{RaceID: r.ID, RacerName: "a", FinishPosition: 1, Time: time.Now()}).Error)
	assert.Error(t, db.Create(&FinishRecord{RaceID: r.ID, RacerName: "b", FinishPosition: 1, Time: time.Now()}).Error)
}

func TestRaceResultStandingsJSON(t *testing.T) {
	db := openTestDB(t)

	r := Race{SessionID: "y", StartTime: time.Now()}
	require.NoError(t, db.Create(&r).Error)

	res := RaceResult{RaceID: r.ID, Reason: "all-finished", Finishers: 1, Standings: datatypes.JSON(`[{"name":"a"}]`)}
	require.NoError(t, db.Create(&res).Error)

	var got RaceResult
	require.NoError(t, db.First(&got, "race_id = ?", r.ID).Error)
	assert.JSONEq(t, `[{"name":"a"}]`, string(got.Standings))
}
