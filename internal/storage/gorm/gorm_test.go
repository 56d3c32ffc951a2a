package gormstorage

import (
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/OCAP2/racetrack/internal/database"
	"github.com/OCAP2/racetrack/internal/model"
	"github.com/OCAP2/racetrack/internal/queue"
	"github.com/OCAP2/racetrack/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// newTestBackend creates a Backend with no DB (queue-only mode for unit testing).
func newTestBackend() *Backend {
	return New(Dependencies{})
}

// newTestDB creates a file-backed SQLite DB with one connection so the
// writer goroutine and the test never contend for locks.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.GetSqliteDB(filepath.Join(t.TempDir(), "race.db"))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

func newDBBackend(t *testing.T) (*Backend, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	b := New(Dependencies{DB: db, WriteInterval: 50 * time.Millisecond})
	require.NoError(t, b.Init())
	t.Cleanup(func() { b.Close() })
	return b, db
}

func testRace() *core.Race {
	return &core.Race{
		RaceID:    "2Nf3b1SZ6q0lqWJHm4jD7fBzY6p",
		RaceName:  "Sunday Cup",
		TrackName: "Harbour Loop",
		StartTime: time.Now(),
		Course: core.Course{
			Checkpoints:  []core.Position3D{{X: 10}, {X: 20}},
			Finish:       core.Position3D{X: 30},
			FinishRadius: 5,
		},
	}
}

func TestInitClose_NoDB(t *testing.T) {
	b := newTestBackend()
	require.NoError(t, b.Init())
	require.NotNil(t, b.queues)
	require.NotNil(t, b.stopChan)
	assert.Nil(t, b.DB())
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
}

func TestInit_OpenError(t *testing.T) {
	b := New(Dependencies{Open: func() (*gorm.DB, error) { return nil, errors.New("refused") }})
	assert.ErrorContains(t, b.Init(), "refused")
}

func TestInit_UsesOpen(t *testing.T) {
	db := newTestDB(t)
	b := New(Dependencies{Open: func() (*gorm.DB, error) { return db, nil }})
	require.NoError(t, b.Init())
	defer b.Close()

	assert.Same(t, db, b.DB())
	assert.True(t, db.Migrator().HasTable(&model.Race{}))
}

func TestRecord_QueuesInQueueOnlyMode(t *testing.T) {
	b := newTestBackend()
	require.NoError(t, b.Init())
	defer b.Close()

	require.NoError(t, b.StartRace(testRace()))
	require.NoError(t, b.AddRacer(&core.Racer{Name: "alice"}))
	require.NoError(t, b.RemoveRacer("alice"))
	require.NoError(t, b.RecordProgress(&core.ProgressState{RacerName: "alice"}))
	require.NoError(t, b.RecordCheckpoint(&core.CheckpointEvent{RacerName: "alice"}))
	require.NoError(t, b.RecordFinish(&core.FinishEvent{RacerName: "alice", FinishPosition: 1}))
	require.NoError(t, b.EndRace(&core.Results{}))

	p, c, f := b.QueueLengths()
	assert.Equal(t, 1, p)
	assert.Equal(t, 1, c)
	assert.Equal(t, 1, f)
}

func TestRecord_DroppedBeforeStartRace(t *testing.T) {
	b, _ := newDBBackend(t)

	require.NoError(t, b.RecordProgress(&core.ProgressState{RacerName: "alice"}))
	require.NoError(t, b.AddRacer(&core.Racer{Name: "alice"}))

	p, _, _ := b.QueueLengths()
	assert.Equal(t, 0, p)
	assert.ErrorContains(t, b.EndRace(&core.Results{}), "no race started")
}

func TestStartRace_AssignsID(t *testing.T) {
	b, db := newDBBackend(t)

	r := testRace()
	require.NoError(t, b.StartRace(r))
	assert.NotZero(t, r.ID)
	assert.Equal(t, r.ID, b.RaceID())

	stored, err := model.RaceBySessionID(db, r.RaceID)
	require.NoError(t, err)
	assert.Equal(t, "Sunday Cup", stored.RaceName)
	assert.Equal(t, 3, stored.Course.Coordinates().Length())
}

func TestAddRemoveRacer(t *testing.T) {
	b, db := newDBBackend(t)
	require.NoError(t, b.StartRace(testRace()))

	require.NoError(t, b.AddRacer(&core.Racer{Name: "alice", JoinTime: time.Now()}))
	require.NoError(t, b.RemoveRacer("alice"))

	var racer model.Racer
	require.NoError(t, db.First(&racer, "race_id = ? AND name = ?", b.RaceID(), "alice").Error)
	assert.True(t, racer.LeftAt.Valid)

	// rejoin clears the left marker instead of failing on the primary key
	require.NoError(t, b.AddRacer(&core.Racer{Name: "alice", IsLocal: true, JoinTime: time.Now()}))
	require.NoError(t, db.First(&racer, "race_id = ? AND name = ?", b.RaceID(), "alice").Error)
	assert.False(t, racer.LeftAt.Valid)
	assert.True(t, racer.IsLocal)

	var count int64
	db.Model(&model.Racer{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestEndRace_FlushesAndStoresResults(t *testing.T) {
	b, db := newDBBackend(t)
	require.NoError(t, b.StartRace(testRace()))
	require.NoError(t, b.AddRacer(&core.Racer{Name: "alice", JoinTime: time.Now()}))

	now := time.Now()
	require.NoError(t, b.RecordProgress(&core.ProgressState{RacerName: "alice", Time: now, Tick: 1, Position: core.Position3D{X: 5}}))
	require.NoError(t, b.RecordCheckpoint(&core.CheckpointEvent{RacerName: "alice", Time: now, CheckpointIndex: 0}))
	require.NoError(t, b.RecordFinish(&core.FinishEvent{RacerName: "alice", Time: now, FinishPosition: 1, ElapsedTime: 61}))

	results := &core.Results{
		ConcludedAt: now,
		Reason:      "all-finished",
		Entries:     []core.ResultEntry{{Name: "alice", FinishPosition: 1, ElapsedTime: 61}},
	}
	require.NoError(t, b.EndRace(results))

	p, c, f := b.QueueLengths()
	assert.Zero(t, p+c+f)

	var progress, checkpoints, finishes int64
	db.Model(&model.ProgressState{}).Count(&progress)
	db.Model(&model.CheckpointEvent{}).Count(&checkpoints)
	db.Model(&model.FinishRecord{}).Count(&finishes)
	assert.Equal(t, int64(1), progress)
	assert.Equal(t, int64(1), checkpoints)
	assert.Equal(t, int64(1), finishes)

	var res model.RaceResult
	require.NoError(t, db.First(&res, "race_id = ?", b.RaceID()).Error)
	assert.Equal(t, 1, res.Finishers)
	assert.Equal(t, "all-finished", res.Reason)

	// concluding twice overwrites the snapshot
	results.Reason = "signal"
	require.NoError(t, b.EndRace(results))
	require.NoError(t, db.First(&res, "race_id = ?", b.RaceID()).Error)
	assert.Equal(t, "signal", res.Reason)
}

func TestWriterLoop_DrainsQueues(t *testing.T) {
	b, db := newDBBackend(t)
	require.NoError(t, b.StartRace(testRace()))

	for i := uint(0); i < 5; i++ {
		require.NoError(t, b.RecordProgress(&core.ProgressState{RacerName: "alice", Time: time.Now(), Tick: i}))
	}

	require.Eventually(t, func() bool {
		var count int64
		db.Model(&model.ProgressState{}).Count(&count)
		return count == 5
	}, 5*time.Second, 20*time.Millisecond)
	assert.GreaterOrEqual(t, b.GetLastDBWriteDuration(), float32(0))
}

func noopLog(_, _, _ string) {}

func TestWriteQueue_Success(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, database.Migrate(db))
	q := queue.New[model.CheckpointEvent]()

	q.Push(model.CheckpointEvent{RaceID: 1, RacerName: "a", Time: time.Now()})
	q.Push(model.CheckpointEvent{RaceID: 1, RacerName: "b", Time: time.Now()})

	writeQueue(db, q, "checkpoint events", noopLog)

	assert.Equal(t, 0, q.Len(), "queue should be drained after successful write")
	var count int64
	db.Model(&model.CheckpointEvent{}).Count(&count)
	assert.Equal(t, int64(2), count)
}

func TestWriteQueue_EmptyQueue(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, database.Migrate(db))
	q := queue.New[model.CheckpointEvent]()

	writeQueue(db, q, "checkpoint events", noopLog)

	var count int64
	db.Model(&model.CheckpointEvent{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestWriteQueue_FailureRequeues(t *testing.T) {
	db := newTestDB(t)
	// no migration, so the insert fails

	q := queue.New[model.CheckpointEvent]()
	q.Push(model.CheckpointEvent{RaceID: 1, RacerName: "a", Time: time.Now()})

	var logged atomic.Bool
	writeQueue(db, q, "checkpoint events", func(_, _, _ string) { logged.Store(true) })

	assert.True(t, logged.Load(), "error should be logged")
	assert.Equal(t, 1, q.Len(), "failed items should be re-queued")
}

func TestWriteQueue_RequeuedBeforeNewer(t *testing.T) {
	db := newTestDB(t)
	q := queue.New[model.CheckpointEvent]()
	q.Push(model.CheckpointEvent{RaceID: 1, RacerName: "a", CheckpointIndex: 0, Time: time.Now()})

	writeQueue(db, q, "checkpoint events", noopLog)
	q.Push(model.CheckpointEvent{RaceID: 1, RacerName: "a", CheckpointIndex: 1, Time: time.Now()})

	require.NoError(t, database.Migrate(db))
	writeQueue(db, q, "checkpoint events", noopLog)

	var got []model.CheckpointEvent
	require.NoError(t, db.Order("id").Find(&got).Error)
	require.Len(t, got, 2)
	assert.Equal(t, 0, got[0].CheckpointIndex)
	assert.Equal(t, 1, got[1].CheckpointIndex)
}
