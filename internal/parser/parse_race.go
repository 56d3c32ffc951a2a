package parser

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/OCAP2/racetrack/internal/geo"
	"github.com/OCAP2/racetrack/pkg/core"
)

func positionFromSlice(v []float64) (core.Position3D, error) {
	if len(v) < 2 {
		return core.Position3D{}, geo.ErrInvalidCoordinates
	}
	p := core.Position3D{X: v[0], Y: v[1]}
	if len(v) > 2 {
		p.Z = v[2]
	}
	return p, nil
}

// ParseCourse decodes a course definition, projecting lon/lat courses to metres.
// A bare coordinate array is a metric course finishing at its last checkpoint.
func (p *Parser) ParseCourse(raw string) (core.Course, error) {
	if strings.HasPrefix(strings.TrimSpace(raw), "[") {
		checkpoints, err := geo.ParseCheckpoints(raw)
		if err != nil {
			return core.Course{}, err
		}
		course := core.Course{Checkpoints: checkpoints}
		if len(checkpoints) > 0 {
			course.Finish = checkpoints[len(checkpoints)-1]
		}
		return course, nil
	}

	var def CourseDefinition
	if err := json.Unmarshal([]byte(raw), &def); err != nil {
		return core.Course{}, fmt.Errorf("error unmarshalling course: %w", err)
	}

	course := core.Course{
		Name:         def.Name,
		Checkpoints:  make([]core.Position3D, len(def.Checkpoints)),
		FinishRadius: def.FinishRadius,
	}
	for i, cp := range def.Checkpoints {
		pos, err := positionFromSlice(cp)
		if err != nil {
			return core.Course{}, fmt.Errorf("checkpoint %d: %w", i, err)
		}
		course.Checkpoints[i] = pos
	}

	switch {
	case len(def.Finish) > 0:
		finish, err := positionFromSlice(def.Finish)
		if err != nil {
			return core.Course{}, fmt.Errorf("finish: %w", err)
		}
		course.Finish = finish
	case len(course.Checkpoints) > 0:
		// no explicit finish: the line is at the last checkpoint
		course.Finish = course.Checkpoints[len(course.Checkpoints)-1]
	}

	switch def.SRID {
	case 0, 3857:
	case 4326:
		course = geo.CourseFrom4326(course)
	default:
		return core.Course{}, fmt.Errorf("unsupported course SRID: %d", def.SRID)
	}
	return course, nil
}

// ParseStart parses :RACE:START: args.
// Format: [raceName, courseJSON, policy?, finishMode?, tag?]
func (p *Parser) ParseStart(data []string) (core.Race, error) {
	var race core.Race
	data = clean(data)
	if err := requireArgs(data, 2, "start"); err != nil {
		return race, err
	}

	course, err := p.ParseCourse(data[1])
	if err != nil {
		return race, err
	}

	race.RaceName = data[0]
	race.TrackName = course.Name
	race.Course = course
	race.StartTime = time.Now()
	race.ExtensionVersion = p.extensionVersion
	if len(data) > 2 {
		race.Policy = data[2]
	}
	if len(data) > 3 {
		race.FinishMode = data[3]
	}
	if len(data) > 4 {
		race.Tag = data[4]
	}

	p.logger.Debug("Parsed race start",
		"raceName", race.RaceName,
		"track", race.TrackName,
		"checkpoints", len(course.Checkpoints))

	return race, nil
}

// ParseJoin parses :RACE:JOIN: args.
// Format: [name, isLocal?, "x,y,z"?]. An empty name gets a generated one.
func (p *Parser) ParseJoin(data []string) (JoinCommand, error) {
	var cmd JoinCommand
	data = clean(data)

	if len(data) > 0 {
		cmd.Name = data[0]
	}
	if cmd.Name == "" {
		cmd.Name = p.spawnName()
		cmd.Generated = true
	}

	if len(data) > 1 {
		local, err := parseBool(data[1])
		if err != nil {
			return cmd, fmt.Errorf("error converting isLocal to bool: %w", err)
		}
		cmd.Local = local
	}
	if len(data) > 2 && data[2] != "" {
		pos, err := geo.Position3DFromString(data[2])
		if err != nil {
			return cmd, fmt.Errorf("error parsing spawn position: %w", err)
		}
		cmd.Position = pos
	}
	return cmd, nil
}

// ParsePlayer parses commands that only name a racer (:RACE:LEAVE:, :RACE:FINISH:).
func (p *Parser) ParsePlayer(data []string) (string, error) {
	data = clean(data)
	if err := requireArgs(data, 1, "player"); err != nil {
		return "", err
	}
	if data[0] == "" {
		return "", fmt.Errorf("player: empty name")
	}
	return data[0], nil
}

// ParseTick parses :RACE:TICK: args.
// Format: [name, tick, "x,y,z", elapsedSeconds, speedMetresPerSecond]
func (p *Parser) ParseTick(data []string) (TickCommand, error) {
	var cmd TickCommand
	data = clean(data)
	if err := requireArgs(data, 5, "tick"); err != nil {
		return cmd, err
	}

	cmd.Name = data[0]
	tick, err := parseUintFromFloat(data[1])
	if err != nil {
		return cmd, fmt.Errorf("error converting tick to uint: %w", err)
	}
	cmd.Tick = uint(tick)

	cmd.Position, err = geo.Position3DFromString(data[2])
	if err != nil {
		return cmd, fmt.Errorf("error parsing position: %w", err)
	}
	cmd.ElapsedTime, err = strconv.ParseFloat(data[3], 64)
	if err != nil {
		return cmd, fmt.Errorf("error converting elapsed time to float: %w", err)
	}
	cmd.Speed, err = strconv.ParseFloat(data[4], 64)
	if err != nil {
		return cmd, fmt.Errorf("error converting speed to float: %w", err)
	}
	return cmd, nil
}

// ParseCheckpoint parses :RACE:CHECKPOINT: args.
// Format: [name, index?]
func (p *Parser) ParseCheckpoint(data []string) (CheckpointCommand, error) {
	var cmd CheckpointCommand
	name, err := p.ParsePlayer(data)
	if err != nil {
		return cmd, err
	}
	cmd.Name = name

	data = clean(data)
	if len(data) > 1 && data[1] != "" {
		idx, err := parseIntFromFloat(data[1])
		if err != nil {
			return cmd, fmt.Errorf("error converting checkpoint index to int: %w", err)
		}
		cmd.Index = int(idx)
		cmd.HasIndex = true
	}
	return cmd, nil
}

// ParseConclude parses :RACE:CONCLUDE: args. Format: [reason?]
func (p *Parser) ParseConclude(data []string) string {
	data = clean(data)
	if len(data) == 0 {
		return ""
	}
	return data[0]
}
