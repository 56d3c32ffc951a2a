// internal/storage/memory/export.go
package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/OCAP2/racetrack/pkg/core"
)

// RaceExport is the root JSON structure
type RaceExport struct {
	ExtensionVersion string       `json:"extensionVersion"`
	RaceID           string       `json:"raceId"`
	RaceName         string       `json:"raceName"`
	TrackName        string       `json:"trackName"`
	Tag              string       `json:"tag"`
	Policy           string       `json:"policy"`
	FinishMode       string       `json:"finishMode"`
	StartTime        time.Time    `json:"startTime"`
	Duration         float64      `json:"duration"`
	Course           CourseJSON   `json:"course"`
	Racers           []RacerJSON  `json:"racers"`
	Results          *ResultsJSON `json:"results"`
}

// CourseJSON is the course layout as [x, y, z] triples
type CourseJSON struct {
	Checkpoints  [][3]float64 `json:"checkpoints"`
	Finish       [3]float64   `json:"finish"`
	FinishRadius float64      `json:"finishRadius"`
}

// RacerJSON represents a racer and its recorded history.
// Positions rows are [tick, [x, y, z], checkpointIndex, elapsed, speed];
// checkpoint rows are [checkpointIndex, elapsed].
type RacerJSON struct {
	Name        string      `json:"name"`
	IsLocal     int         `json:"isLocal"`
	JoinTime    time.Time   `json:"joinTime"`
	Left        int         `json:"left"`
	Positions   [][]any     `json:"positions"`
	Checkpoints [][]any     `json:"checkpoints"`
	Finish      *FinishJSON `json:"finish"`
}

// FinishJSON is a racer's finish record
type FinishJSON struct {
	Position    int     `json:"position"`
	ElapsedTime float64 `json:"elapsedTime"`
}

// ResultsJSON is the frozen results snapshot
type ResultsJSON struct {
	ConcludedAt time.Time      `json:"concludedAt"`
	Reason      string         `json:"reason"`
	Standings   []StandingJSON `json:"standings"`
}

// StandingJSON is one row of the standings
type StandingJSON struct {
	Name           string  `json:"name"`
	FinishPosition int     `json:"finishPosition"`
	ElapsedTime    float64 `json:"elapsedTime"`
}

// exportJSON writes the race data to a (gzipped) JSON file
func (b *Backend) exportJSON() error {
	export := b.buildExport()

	// Build filename
	raceName := strings.ReplaceAll(b.race.RaceName, " ", "_")
	raceName = strings.ReplaceAll(raceName, ":", "_")
	if raceName == "" {
		raceName = "race"
	}
	timestamp := b.race.StartTime.Format("20060102_150405")

	var filename string
	if b.cfg.CompressOutput {
		filename = fmt.Sprintf("%s_%s.json.gz", raceName, timestamp)
	} else {
		filename = fmt.Sprintf("%s_%s.json", raceName, timestamp)
	}

	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	// Ensure output directory exists
	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var err error
	if b.cfg.CompressOutput {
		err = writeGzipJSON(outputPath, export)
	} else {
		err = writeJSON(outputPath, export)
	}
	if err != nil {
		return err
	}

	finishers := 0
	if export.Results != nil {
		finishers = len(export.Results.Standings)
	}
	b.lastExportPath = outputPath
	b.lastExportMeta = core.UploadMetadata{
		RaceID:       b.race.RaceID,
		RaceName:     b.race.RaceName,
		TrackName:    b.race.TrackName,
		RaceDuration: export.Duration,
		Finishers:    finishers,
		Tag:          b.race.Tag,
	}
	return nil
}

func (b *Backend) buildExport() RaceExport {
	r := b.race
	export := RaceExport{
		ExtensionVersion: r.ExtensionVersion,
		RaceID:           r.RaceID,
		RaceName:         r.RaceName,
		TrackName:        r.TrackName,
		Tag:              r.Tag,
		Policy:           r.Policy,
		FinishMode:       r.FinishMode,
		StartTime:        r.StartTime,
		Course: CourseJSON{
			Checkpoints:  make([][3]float64, 0, len(r.Course.Checkpoints)),
			Finish:       triple(r.Course.Finish),
			FinishRadius: r.Course.FinishRadius,
		},
		Racers: make([]RacerJSON, 0, len(b.order)),
	}
	for _, cp := range r.Course.Checkpoints {
		export.Course.Checkpoints = append(export.Course.Checkpoints, triple(cp))
	}

	var duration float64

	for _, name := range b.order {
		rec := b.racers[name]
		racer := RacerJSON{
			Name:        rec.Racer.Name,
			IsLocal:     boolToInt(rec.Racer.IsLocal),
			JoinTime:    rec.Racer.JoinTime,
			Left:        boolToInt(rec.Left),
			Positions:   make([][]any, 0, len(rec.Progress)),
			Checkpoints: make([][]any, 0, len(rec.Checkpoints)),
		}

		for _, s := range rec.Progress {
			racer.Positions = append(racer.Positions, []any{
				s.Tick,
				triple(s.Position),
				s.CheckpointIndex,
				s.ElapsedTime,
				s.Speed,
			})
			if s.ElapsedTime > duration {
				duration = s.ElapsedTime
			}
		}

		for _, c := range rec.Checkpoints {
			racer.Checkpoints = append(racer.Checkpoints, []any{c.CheckpointIndex, c.ElapsedTime})
		}

		if rec.Finish != nil {
			racer.Finish = &FinishJSON{Position: rec.Finish.FinishPosition, ElapsedTime: rec.Finish.ElapsedTime}
			if rec.Finish.ElapsedTime > duration {
				duration = rec.Finish.ElapsedTime
			}
		}

		export.Racers = append(export.Racers, racer)
	}

	if b.results != nil {
		res := &ResultsJSON{
			ConcludedAt: b.results.ConcludedAt,
			Reason:      b.results.Reason,
			Standings:   make([]StandingJSON, 0, len(b.results.Entries)),
		}
		for _, e := range b.results.Entries {
			res.Standings = append(res.Standings, StandingJSON(e))
			if e.ElapsedTime > duration {
				duration = e.ElapsedTime
			}
		}
		export.Results = res
	}

	export.Duration = duration
	return export
}

func writeJSON(path string, data RaceExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	return json.NewEncoder(f).Encode(data)
}

func writeGzipJSON(path string, data RaceExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gzWriter := gzip.NewWriter(f)
	if err := json.NewEncoder(gzWriter).Encode(data); err != nil {
		gzWriter.Close()
		return err
	}
	return gzWriter.Close()
}

func triple(p core.Position3D) [3]float64 {
	return [3]float64{p.X, p.Y, p.Z}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
