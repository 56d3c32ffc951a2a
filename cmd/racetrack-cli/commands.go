package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/OCAP2/racetrack/internal/database"
	"github.com/OCAP2/racetrack/internal/model"
	"github.com/OCAP2/racetrack/internal/model/convert"
	"github.com/OCAP2/racetrack/pkg/core"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// latestRace selects the most recently started race in the results command.
const latestRace = "latest"

// raceResults is the JSON document printed by the results command.
type raceResults struct {
	RaceID      string             `json:"raceId"`
	RaceName    string             `json:"raceName"`
	TrackName   string             `json:"trackName"`
	StartTime   time.Time          `json:"startTime"`
	Tag         string             `json:"tag"`
	Concluded   bool               `json:"concluded"`
	ConcludedAt time.Time          `json:"concludedAt,omitzero"`
	Reason      string             `json:"reason,omitempty"`
	Standings   []core.ResultEntry `json:"standings"`
}

func listRaces(db *gorm.DB, w io.Writer) error {
	var races []model.Race
	if err := db.Order("start_time DESC").Find(&races).Error; err != nil {
		return fmt.Errorf("error getting races: %w", err)
	}

	var finishers []struct {
		RaceID uint
		Count  int
	}
	if err := db.Model(&model.FinishRecord{}).
		Select("race_id, count(*) as count").
		Group("race_id").
		Scan(&finishers).Error; err != nil {
		return fmt.Errorf("error counting finishers: %w", err)
	}
	byRace := make(map[uint]int, len(finishers))
	for _, f := range finishers {
		byRace[f.RaceID] = f.Count
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RACE ID\tNAME\tTRACK\tSTARTED\tFINISHERS")
	for _, r := range races {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n",
			r.SessionID, r.RaceName, r.TrackName, r.StartTime.Format(time.RFC3339), byRace[r.ID])
	}
	return tw.Flush()
}

func printResults(db *gorm.DB, w io.Writer, raceIDs []string) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	for _, id := range raceIDs {
		var r model.Race
		var err error
		if id == latestRace {
			r, err = model.LatestRace(db)
		} else {
			r, err = model.RaceBySessionID(db, id)
		}
		if err != nil {
			return fmt.Errorf("race %s: %w", id, err)
		}
		out := raceResults{
			RaceID:    r.SessionID,
			RaceName:  r.RaceName,
			TrackName: r.TrackName,
			StartTime: r.StartTime,
			Tag:       r.Tag,
			Standings: []core.ResultEntry{},
		}

		var row model.RaceResult
		err = db.Where("race_id = ?", r.ID).First(&row).Error
		switch {
		case err == nil:
			res := convert.RaceResultToCore(row)
			out.Concluded = true
			out.ConcludedAt = res.ConcludedAt
			out.Reason = res.Reason
			out.Standings = res.Entries
		case errors.Is(err, gorm.ErrRecordNotFound):
			// still running or never concluded: report the finishes so far
			var records []model.FinishRecord
			if err := db.Where("race_id = ?", r.ID).Order("finish_position ASC").Find(&records).Error; err != nil {
				return fmt.Errorf("race %s: error getting finish records: %w", id, err)
			}
			for _, f := range records {
				e := convert.FinishRecordToCore(f)
				out.Standings = append(out.Standings, core.ResultEntry{
					Name:           e.RacerName,
					FinishPosition: e.FinishPosition,
					ElapsedTime:    e.ElapsedTime,
				})
			}
		default:
			return fmt.Errorf("race %s: error getting results: %w", id, err)
		}

		if err := enc.Encode(out); err != nil {
			return err
		}
	}
	return nil
}

// importDumps copies every race in the sqlite dumps at paths into dst under
// fresh row ids. Races whose session id already exists are skipped. A dump
// that imports cleanly is renamed with a .migrated suffix.
func importDumps(dst *gorm.DB, paths []string, logger *slog.Logger) error {
	if err := database.Migrate(dst); err != nil {
		return err
	}

	var migrated []string
	for _, path := range paths {
		src, err := database.GetSqliteDB(path)
		if err != nil {
			return fmt.Errorf("error opening %s: %w", path, err)
		}

		err = dst.Transaction(func(tx *gorm.DB) error {
			return importRaces(src, tx, logger)
		})

		if sqlDB, dbErr := src.DB(); dbErr == nil {
			sqlDB.Close()
		}
		if err != nil {
			return fmt.Errorf("error importing %s: %w", path, err)
		}

		if err := os.Rename(path, path+".migrated"); err != nil {
			logger.Error("Error renaming sqlite file", "error", err, "path", path)
		}
		migrated = append(migrated, path)
	}

	logger.Info("Successfully imported dumps", "count", len(migrated), "paths", migrated)
	return nil
}

func importRaces(src, tx *gorm.DB, logger *slog.Logger) error {
	var races []model.Race
	if err := src.Find(&races).Error; err != nil {
		return fmt.Errorf("error reading races: %w", err)
	}

	for _, r := range races {
		oldID := r.ID
		r.Model = gorm.Model{CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Omit(clause.Associations).Create(&r)
		if res.Error != nil {
			return fmt.Errorf("error inserting race %s: %w", r.SessionID, res.Error)
		}
		if res.RowsAffected == 0 {
			logger.Info("Race already imported", "raceId", r.SessionID)
			continue
		}
		newID := r.ID

		if err := copyRows(src, tx, oldID, func(x *model.Racer) { x.RaceID = newID }); err != nil {
			return fmt.Errorf("racers: %w", err)
		}
		if err := copyRows(src, tx, oldID, func(x *model.ProgressState) { x.ID = 0; x.RaceID = newID }); err != nil {
			return fmt.Errorf("progress states: %w", err)
		}
		if err := copyRows(src, tx, oldID, func(x *model.CheckpointEvent) { x.ID = 0; x.RaceID = newID }); err != nil {
			return fmt.Errorf("checkpoint events: %w", err)
		}
		if err := copyRows(src, tx, oldID, func(x *model.FinishRecord) { x.RaceID = newID }); err != nil {
			return fmt.Errorf("finish records: %w", err)
		}
		if err := copyRows(src, tx, oldID, func(x *model.RaceResult) { x.RaceID = newID }); err != nil {
			return fmt.Errorf("results: %w", err)
		}
		if err := copyRows(src, tx, oldID, func(x *model.HostPerformance) { x.RaceID = newID }); err != nil {
			return fmt.Errorf("host performance: %w", err)
		}

		logger.Info("Imported race", "raceId", r.SessionID, "name", r.RaceName)
	}
	return nil
}

// copyRows moves the rows of one race between databases, rewriting each
// row with rekey before insert.
func copyRows[M any](src, dst *gorm.DB, oldID uint, rekey func(*M)) error {
	var rows []M
	if err := src.Where("race_id = ?", oldID).Find(&rows).Error; err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	for i := range rows {
		rekey(&rows[i])
	}
	return dst.Omit(clause.Associations).CreateInBatches(&rows, 1000).Error
}
