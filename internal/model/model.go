package model

import (
	"database/sql"
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&Race{},
	&Racer{},
	&ProgressState{},
	&CheckpointEvent{},
	&FinishRecord{},
	&RaceResult{},
	&HostPerformance{},
}

////////////////////////
// SYSTEM MODELS
////////////////////////

// HostPerformance is the model for race host performance metrics, written
// by the monitor on every refresh.
type HostPerformance struct {
	Time                time.Time         `json:"time" gorm:"index:idx_hostperformance_time"`
	RaceID              uint              `json:"raceId" gorm:"index:idx_hostperformance_race_id"`
	Race                Race              `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:RaceID;"`
	Racers              uint16            `json:"racers"`
	Finishers           uint16            `json:"finishers"`
	BufferLengths       BufferLengths     `json:"bufferLengths" gorm:"embedded;embeddedPrefix:buffer_"`
	WriteQueueLengths   WriteQueueLengths `json:"writeQueueLengths" gorm:"embedded;embeddedPrefix:writequeue_"`
	LastWriteDurationMs float32           `json:"lastWriteDurationMs"`
}

func (*HostPerformance) TableName() string {
	return "host_performances"
}

// BufferLengths is the model for the dispatcher buffer lengths
type BufferLengths struct {
	Ticks uint16 `json:"ticks"`
}

// WriteQueueLengths is the model for the storage write queue lengths
type WriteQueueLengths struct {
	ProgressStates   uint16 `json:"progressStates"`
	CheckpointEvents uint16 `json:"checkpointEvents"`
	FinishRecords    uint16 `json:"finishRecords"`
}

////////////////////////
// RACE MODELS
////////////////////////

// Race is one race session run on a course.
//
// Command: :RACE:START:
// Args: [raceName, courseJSON, policy?, finishMode?, tag?]
type Race struct {
	gorm.Model
	SessionID        string          `json:"sessionId" gorm:"size:27;uniqueIndex:idx_race_session_id"` // ksuid
	RaceName         string          `json:"raceName" gorm:"size:200"`
	TrackName        string          `json:"trackName" gorm:"size:200"`
	StartTime        time.Time       `json:"raceStart" gorm:"index:idx_race_start"`
	Policy           string          `json:"policy" gorm:"size:32;default:all-finished"`
	FinishMode       string          `json:"finishMode" gorm:"size:32;default:trigger"`
	FinishRadius     float64         `json:"finishRadius"`
	Course           geom.LineString `json:"-"` // checkpoints in order, then the finish
	ExtensionVersion string          `json:"extensionVersion" gorm:"size:64"`
	Tag              string          `json:"tag" gorm:"size:127"`

	Racers           []Racer
	CheckpointEvents []CheckpointEvent
	FinishRecords    []FinishRecord
}

func (*Race) TableName() string {
	return "races"
}

// Racer is a participant in a race.
// Uses composite primary key (RaceID, Name); names are unique per race.
//
// Command: :RACE:JOIN:
// Args: [name, isLocal?, "x,y,z"?]
type Racer struct {
	RaceID   uint         `json:"raceId" gorm:"primaryKey;autoIncrement:false"`
	Name     string       `json:"name" gorm:"primaryKey;size:64"`
	Race     Race         `gorm:"foreignkey:RaceID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	JoinTime time.Time    `json:"joinTime" gorm:"NOT NULL"`
	IsLocal  bool         `json:"isLocal" gorm:"default:false"`
	LeftAt   sql.NullTime `json:"leftAt"` // set by :RACE:LEAVE:
}

func (*Racer) TableName() string {
	return "racers"
}

// ProgressState is one tick of a racer's progress.
//
// Command: :RACE:TICK:
// Args: [name, tick, "x,y,z", elapsedSeconds, speedMetresPerSecond]
type ProgressState struct {
	ID              uint       `json:"id" gorm:"primarykey;autoIncrement;"`
	Time            time.Time  `json:"time" gorm:"NOT NULL;index:idx_progress_time"`
	RaceID          uint       `json:"raceId" gorm:"index:idx_progress_race_id"`
	Race            Race       `gorm:"foreignkey:RaceID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	RacerName       string     `json:"racerName" gorm:"size:64;index:idx_progress_racer"`
	Tick            uint       `json:"tick" gorm:"index:idx_progress_tick"`
	Position        geom.Point `json:"position"`
	CheckpointIndex int        `json:"checkpointIndex"`
	ElapsedTime     float64    `json:"elapsedTime"`
	Speed           float64    `json:"speed"`    // m/s
	Distance        float64    `json:"distance"` // remaining course distance
}

func (*ProgressState) TableName() string {
	return "progress_states"
}

// CheckpointEvent records a racer entering its next checkpoint.
//
// Command: :RACE:CHECKPOINT:
// Args: [name, index?]
type CheckpointEvent struct {
	ID              uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time            time.Time `json:"time" gorm:"NOT NULL"`
	RaceID          uint      `json:"raceId" gorm:"index:idx_checkpoint_race_id"`
	RacerName       string    `json:"racerName" gorm:"size:64"`
	CheckpointIndex int       `json:"checkpointIndex"`
	ElapsedTime     float64   `json:"elapsedTime"`
}

func (*CheckpointEvent) TableName() string {
	return "checkpoint_events"
}

// FinishRecord is a racer crossing the line. Finish positions are unique per race.
//
// Command: :RACE:FINISH:
// Args: [name]
type FinishRecord struct {
	RaceID         uint      `json:"raceId" gorm:"primaryKey;autoIncrement:false;uniqueIndex:idx_finish_position,priority:1"`
	RacerName      string    `json:"racerName" gorm:"primaryKey;size:64"`
	Time           time.Time `json:"time" gorm:"NOT NULL"`
	FinishPosition int       `json:"finishPosition" gorm:"uniqueIndex:idx_finish_position,priority:2"`
	ElapsedTime    float64   `json:"elapsedTime"`
}

func (*FinishRecord) TableName() string {
	return "finish_records"
}

// RaceResult is the frozen results snapshot of a concluded race.
// Standings holds the ordered finish records as JSON.
type RaceResult struct {
	RaceID      uint           `json:"raceId" gorm:"primaryKey;autoIncrement:false"`
	Race        Race           `gorm:"foreignkey:RaceID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	ConcludedAt time.Time      `json:"concludedAt"`
	Reason      string         `json:"reason" gorm:"size:64"`
	Finishers   int            `json:"finishers"`
	Standings   datatypes.JSON `json:"standings"`
}

func (*RaceResult) TableName() string {
	return "race_results"
}

// LatestRace returns the most recently started race.
func LatestRace(db *gorm.DB) (Race, error) {
	var r Race
	err := db.Order("start_time DESC").First(&r).Error
	return r, err
}

// RaceBySessionID looks a race up by its ksuid.
func RaceBySessionID(db *gorm.DB, sessionID string) (Race, error) {
	var r Race
	err := db.Where("session_id = ?", sessionID).First(&r).Error
	return r, err
}
