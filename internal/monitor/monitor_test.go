package monitor

import (
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/OCAP2/racetrack/internal/config"
	"github.com/OCAP2/racetrack/internal/database"
	"github.com/OCAP2/racetrack/internal/influx"
	"github.com/OCAP2/racetrack/internal/logging"
	"github.com/OCAP2/racetrack/internal/model"
	"github.com/OCAP2/racetrack/internal/race"
	"github.com/OCAP2/racetrack/internal/session"
	gormstorage "github.com/OCAP2/racetrack/internal/storage/gorm"
	"github.com/OCAP2/racetrack/internal/storage/memory"
	"github.com/OCAP2/racetrack/internal/worker"
	"github.com/OCAP2/racetrack/pkg/core"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBuffers map[string]int

func (f fakeBuffers) QueueLen(cmd string) int { return f[cmd] }

func startRace(t *testing.T, sess *session.Context) *race.Controller {
	t.Helper()
	ctrl, err := race.NewController(
		race.NewCourse([]mgl64.Vec3{{10, 0, 0}}, mgl64.Vec3{20, 0, 0}, 5),
		race.WithPolicy(race.OpenEnded),
	)
	require.NoError(t, err)
	require.NoError(t, ctrl.RegisterPlayer(race.Authority, race.NewPlayerProgress("alice", mgl64.Vec3{}, true)))
	require.NoError(t, ctrl.RegisterPlayer(race.Authority, race.NewPlayerProgress("bob", mgl64.Vec3{}, false)))
	sess.Start(&core.Race{RaceID: "r1", RaceName: "Sunday Cup", TrackName: "Harbour Loop", StartTime: time.Now()}, ctrl)
	return ctrl
}

func newDBStorage(t *testing.T) *gormstorage.Backend {
	t.Helper()
	db, err := database.GetSqliteDB(filepath.Join(t.TempDir(), "race.db"))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	b := gormstorage.New(gormstorage.Dependencies{DB: db, WriteInterval: 50 * time.Millisecond})
	require.NoError(t, b.Init())
	t.Cleanup(func() { b.Close() })
	return b
}

func TestGetStatus_NoRace(t *testing.T) {
	s := NewService(Dependencies{
		LogManager: logging.NewSlogManager(),
		Session:    session.NewContext(),
		Storage:    memory.New(config.MemoryConfig{}),
	})
	lines, _, ok := s.GetStatus()
	assert.False(t, ok)
	assert.Nil(t, lines)
}

func TestGetStatus(t *testing.T) {
	sess := session.NewContext()
	ctrl := startRace(t, sess)

	s := NewService(Dependencies{
		LogManager: logging.NewSlogManager(),
		Session:    sess,
		Storage:    memory.New(config.MemoryConfig{}),
		Buffers:    fakeBuffers{worker.CmdTick: 7},
	})

	lines, perf, ok := s.GetStatus()
	require.True(t, ok)
	assert.Equal(t, "Sunday Cup - Harbour Loop (r1)", lines[0])
	assert.Equal(t, "State: racing  Racers: 2  Finished: 0", lines[1])
	assert.Equal(t, uint16(2), perf.Racers)
	assert.Equal(t, uint16(7), perf.BufferLengths.Ticks)
	assert.Contains(t, lines, `Buffers: {"ticks":7}`)
	assert.NotContains(t, lines, "Results:")

	_, err := ctrl.Conclude(race.Authority, race.ReasonSignal)
	require.NoError(t, err)

	lines, _, ok = s.GetStatus()
	require.True(t, ok)
	assert.Equal(t, "State: concluded  Racers: 2  Finished: 0", lines[1])
	assert.Contains(t, lines, "Results:")
	assert.Contains(t, lines, "No finishers")
}

func TestRefresh_WritesStatusFile(t *testing.T) {
	sess := session.NewContext()
	startRace(t, sess)

	dir := t.TempDir()
	s := NewService(Dependencies{
		LogManager: logging.NewSlogManager(),
		Session:    sess,
		Storage:    memory.New(config.MemoryConfig{}),
		StatusDir:  dir,
	})

	f, err := os.Create(s.StatusPath())
	require.NoError(t, err)
	defer f.Close()

	s.Refresh(f)
	s.Refresh(f)

	data, err := os.ReadFile(s.StatusPath())
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "Sunday Cup - Harbour Loop"), "status file is rewritten, not appended")
	assert.Contains(t, string(data), "alice")
	assert.Contains(t, string(data), "bob")
}

func TestRefresh_WritesHostPerformanceRow(t *testing.T) {
	sess := session.NewContext()
	startRace(t, sess)

	b := newDBStorage(t)
	require.NoError(t, b.StartRace(sess.Race()))

	s := NewService(Dependencies{
		LogManager: logging.NewSlogManager(),
		Session:    sess,
		Storage:    b,
	})
	s.Refresh(nil)

	var rows []model.HostPerformance
	require.NoError(t, b.DB().Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, b.RaceID(), rows[0].RaceID)
	assert.Equal(t, uint16(2), rows[0].Racers)
}

func TestRefresh_NoRaceRowSkipsDB(t *testing.T) {
	sess := session.NewContext()
	startRace(t, sess)
	b := newDBStorage(t)

	s := NewService(Dependencies{
		LogManager: logging.NewSlogManager(),
		Session:    sess,
		Storage:    b,
	})
	s.Refresh(nil)

	var count int64
	require.NoError(t, b.DB().Model(&model.HostPerformance{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestRefresh_InfluxBackup(t *testing.T) {
	sess := session.NewContext()
	startRace(t, sess)

	backup := filepath.Join(t.TempDir(), "influx_backup.log.gz")
	im := influx.NewManager(config.InfluxConfig{
		Enabled:  true,
		Protocol: "http",
		Host:     "127.0.0.1",
		Port:     "1",
		Org:      "racetrack",
	}, zerolog.Nop(), backup)
	require.NoError(t, im.Connect())

	s := NewService(Dependencies{
		LogManager: logging.NewSlogManager(),
		Session:    sess,
		Storage:    memory.New(config.MemoryConfig{}),
		Influx:     im,
	})
	s.Refresh(nil)
	require.NoError(t, im.Close())

	f, err := os.Open(backup)
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	data, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "host_performance,race_id=r1"))
	assert.Contains(t, string(data), "racers=2i")
}

func TestStartStop(t *testing.T) {
	sess := session.NewContext()
	startRace(t, sess)

	s := NewService(Dependencies{
		LogManager: logging.NewSlogManager(),
		Session:    sess,
		Storage:    memory.New(config.MemoryConfig{}),
		StatusDir:  t.TempDir(),
		Interval:   10 * time.Millisecond,
	})
	assert.False(t, s.IsRunning())

	require.NoError(t, s.Start())
	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(s.StatusPath())
		return err == nil && strings.Contains(string(data), "Sunday Cup")
	}, time.Second, 10*time.Millisecond)

	s.Stop()
	assert.False(t, s.IsRunning())
	s.Stop()
}

func TestStart_BadDir(t *testing.T) {
	s := NewService(Dependencies{
		LogManager: logging.NewSlogManager(),
		Session:    session.NewContext(),
		StatusDir:  filepath.Join(t.TempDir(), "missing"),
	})
	assert.ErrorContains(t, s.Start(), "error creating status file")
	assert.False(t, s.IsRunning())
}
