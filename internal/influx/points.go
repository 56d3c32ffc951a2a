package influx

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/OCAP2/racetrack/internal/util"
	"github.com/OCAP2/racetrack/pkg/core"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
)

func raceTags(r *core.Race, racer string) map[string]string {
	tags := map[string]string{"racer": racer}
	if r != nil {
		tags["race_id"] = r.RaceID
		tags["race_name"] = r.RaceName
		tags["track"] = r.TrackName
	}
	return tags
}

// CheckpointPoint is a split time: a racer reaching a checkpoint.
func CheckpointPoint(r *core.Race, e core.CheckpointEvent) *influxdb2_write.Point {
	return influxdb2_write.NewPoint(
		"race_checkpoint",
		raceTags(r, e.RacerName),
		map[string]any{
			"checkpoint":   e.CheckpointIndex,
			"elapsed_time": e.ElapsedTime,
		},
		e.Time,
	)
}

// FinishPoint records a racer crossing the line.
func FinishPoint(r *core.Race, e core.FinishEvent) *influxdb2_write.Point {
	return influxdb2_write.NewPoint(
		"race_finish",
		raceTags(r, e.RacerName),
		map[string]any{
			"position":     e.FinishPosition,
			"elapsed_time": e.ElapsedTime,
		},
		e.Time,
	)
}

// PerformancePoint is one host performance sample.
func PerformancePoint(r *core.Race, racers, finishers, tickBuffer int, writeMs float32, t time.Time) *influxdb2_write.Point {
	tags := map[string]string{}
	if r != nil {
		tags["race_id"] = r.RaceID
	}
	return influxdb2_write.NewPoint(
		"host_performance",
		tags,
		map[string]any{
			"racers":        racers,
			"finishers":     finishers,
			"buffer_ticks":  tickBuffer,
			"last_write_ms": writeMs,
		},
		t,
	)
}

// ParseMetric turns a :RACE:METRIC: command into a bucket and point.
//
// Format: [bucket, measurement, "tag::name::value"..., "field::type::name::value"...]
// where type is string, int or float.
func ParseMetric(data []string) (bucket string, point *influxdb2_write.Point, err error) {
	if len(data) < 2 {
		return "", nil, fmt.Errorf("metric: expected at least 2 args, got %d", len(data))
	}
	args := make([]string, len(data))
	for i, v := range data {
		args[i] = util.CleanArg(v)
	}

	bucket = args[0]
	point = influxdb2_write.NewPointWithMeasurement(args[1])

	for _, arg := range args[2:] {
		switch {
		case strings.HasPrefix(arg, "tag::"):
			parts := strings.Split(arg, "::")
			if len(parts) >= 3 {
				point.AddTag(parts[1], parts[2])
			}
		case strings.HasPrefix(arg, "field::"):
			parts := strings.Split(arg, "::")
			if len(parts) < 4 {
				continue
			}
			fieldType, fieldName, fieldValue := parts[1], parts[2], parts[3]
			switch fieldType {
			case "string":
				point.AddField(fieldName, fieldValue)
			case "int":
				v, err := strconv.Atoi(fieldValue)
				if err != nil {
					return "", nil, fmt.Errorf("error converting field value '%s' to int: %w", fieldValue, err)
				}
				point.AddField(fieldName, v)
			case "float":
				v, err := strconv.ParseFloat(fieldValue, 64)
				if err != nil {
					return "", nil, fmt.Errorf("error converting field value '%s' to float: %w", fieldValue, err)
				}
				point.AddField(fieldName, v)
			}
		}
	}
	point.SetTime(time.Now())

	return bucket, point, nil
}
