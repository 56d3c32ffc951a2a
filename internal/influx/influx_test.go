package influx

import (
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/OCAP2/racetrack/internal/config"
	"github.com/OCAP2/racetrack/pkg/core"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testRace = &core.Race{RaceID: "abc", RaceName: "Cup", TrackName: "Harbour"}

func lineProtocol(p *influxdb2_write.Point) string {
	return influxdb2_write.PointToLineProtocol(p, time.Nanosecond)
}

func TestConnect_Disabled(t *testing.T) {
	m := NewManager(config.InfluxConfig{}, zerolog.Nop(), "")
	assert.ErrorIs(t, m.Connect(), ErrDisabled)
	assert.False(t, m.IsValid)
}

func TestNewManager_Buckets(t *testing.T) {
	m := NewManager(config.InfluxConfig{Bucket: "race-metrics"}, zerolog.Nop(), "")
	assert.Equal(t, []string{"race-metrics", PerformanceBucket}, m.BucketNames)
	assert.Equal(t, "race-metrics", m.RaceBucket())

	m = NewManager(config.InfluxConfig{}, zerolog.Nop(), "")
	assert.Equal(t, []string{PerformanceBucket}, m.BucketNames)
}

func TestConnect_UnreachableWritesBackup(t *testing.T) {
	backup := filepath.Join(t.TempDir(), "influx_backup.log.gz")
	m := NewManager(config.InfluxConfig{
		Enabled:  true,
		Protocol: "http",
		Host:     "127.0.0.1",
		Port:     "1",
		Org:      "racetrack",
		Bucket:   "race-metrics",
	}, zerolog.Nop(), backup)

	require.NoError(t, m.Connect())
	assert.False(t, m.IsValid)
	require.NotNil(t, m.BackupWriter)

	at := time.Unix(1700000000, 0)
	require.NoError(t, m.WritePoint(context.Background(), "race-metrics",
		FinishPoint(testRace, core.FinishEvent{RacerName: "alice", FinishPosition: 1, ElapsedTime: 61, Time: at})))
	require.NoError(t, m.WritePoint(context.Background(), "race-metrics",
		CheckpointPoint(testRace, core.CheckpointEvent{RacerName: "alice", CheckpointIndex: 0, ElapsedTime: 20, Time: at})))
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	f, err := os.Open(backup)
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	data, err := io.ReadAll(zr)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "race_finish,"))
	assert.True(t, strings.HasPrefix(lines[1], "race_checkpoint,"))
}

func TestWritePoint_NotConnected(t *testing.T) {
	m := NewManager(config.InfluxConfig{}, zerolog.Nop(), "")
	err := m.WritePoint(context.Background(), "x", influxdb2_write.NewPointWithMeasurement("m"))
	assert.ErrorContains(t, err, "backup writer not available")
}

func TestFinishPoint(t *testing.T) {
	lp := lineProtocol(FinishPoint(testRace, core.FinishEvent{
		RacerName:      "alice",
		FinishPosition: 2,
		ElapsedTime:    61.5,
		Time:           time.Unix(1700000000, 0),
	}))
	assert.Contains(t, lp, "race_finish,")
	assert.Contains(t, lp, "race_id=abc")
	assert.Contains(t, lp, "racer=alice")
	assert.Contains(t, lp, "track=Harbour")
	assert.Contains(t, lp, "position=2i")
	assert.Contains(t, lp, "elapsed_time=61.5")
	assert.Contains(t, lp, "1700000000000000000")
}

func TestCheckpointPoint_NilRace(t *testing.T) {
	lp := lineProtocol(CheckpointPoint(nil, core.CheckpointEvent{RacerName: "bob", CheckpointIndex: 3}))
	assert.Contains(t, lp, "race_checkpoint,racer=bob")
	assert.Contains(t, lp, "checkpoint=3i")
	assert.NotContains(t, lp, "race_id")
}

func TestPerformancePoint(t *testing.T) {
	lp := lineProtocol(PerformancePoint(testRace, 4, 1, 12, 3.5, time.Unix(1, 0)))
	assert.Contains(t, lp, "host_performance,race_id=abc")
	assert.Contains(t, lp, "racers=4i")
	assert.Contains(t, lp, "buffer_ticks=12i")
}

func TestParseMetric(t *testing.T) {
	tests := []struct {
		name     string
		data     []string
		bucket   string
		measure  string
		contains []string
		tags     map[string]string
		fields   map[string]any
		wantErr  string
	}{
		{
			name:     "tags and fields",
			data:     []string{`"race-metrics"`, `"lap"`, `"tag::racer::alice"`, `"field::int::lap::2"`, `"field::float::time::31.5"`, `"field::string::car::red"`},
			bucket:   "race-metrics",
			contains: []string{"lap,racer=alice", "lap=2i", "time=31.5", `car="red"`},
		},
		{
			name:    "malformed pieces are skipped",
			data:    []string{"b", "m", "tag::only", "field::int::x", "noise", "field::float::y::1"},
			bucket:  "b",
			measure: "m",
			tags:    map[string]string{},
			fields:  map[string]any{"y": 1.0},
		},
		{
			name:    "bad int",
			data:    []string{"b", "m", "field::int::x::nope"},
			wantErr: "to int",
		},
		{
			name:    "bad float",
			data:    []string{"b", "m", "field::float::x::nope"},
			wantErr: "to float",
		},
		{
			name:    "too short",
			data:    []string{"b"},
			wantErr: "expected at least 2 args",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bucket, point, err := ParseMetric(tt.data)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.bucket, bucket)
			lp := lineProtocol(point)
			for _, c := range tt.contains {
				assert.Contains(t, lp, c)
			}
			if tt.measure != "" {
				assert.Equal(t, tt.measure, point.Name())
			}
			if tt.tags != nil {
				tags := map[string]string{}
				for _, tag := range point.TagList() {
					tags[tag.Key] = tag.Value
				}
				assert.Equal(t, tt.tags, tags)
			}
			if tt.fields != nil {
				fields := map[string]any{}
				for _, f := range point.FieldList() {
					fields[f.Key] = f.Value
				}
				assert.Equal(t, tt.fields, fields)
			}
		})
	}
}
