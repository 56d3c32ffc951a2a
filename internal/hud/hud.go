// Package hud formats race state for display: the leaderboard panel, the
// position and speed readouts and the final results list.
package hud

import (
	"fmt"
	"math"

	"github.com/OCAP2/racetrack/internal/race"
)

// NoTime is shown for a time that cannot be displayed.
const NoTime = "--:--.-"

// LocalMarker prefixes the leaderboard row of the local player.
const LocalMarker = ">"

// FormatRaceTime renders seconds as MM:SS.d. Tenths are truncated.
func FormatRaceTime(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return NoTime
	}
	if seconds < 0 {
		seconds = 0
	}
	tenths := int64(math.Floor(seconds*10 + 1e-9))
	return fmt.Sprintf("%02d:%02d.%d", tenths/600, (tenths/10)%60, tenths%10)
}

// SpeedKmh converts metres per second to kilometres per hour.
func SpeedKmh(metresPerSecond float64) float64 {
	return metresPerSecond * 3.6
}

// SpeedLine is the speedometer readout.
func SpeedLine(metresPerSecond float64) string {
	return fmt.Sprintf("%.0f km/h", SpeedKmh(metresPerSecond))
}

// PositionLine is the "Position p / total" readout.
func PositionLine(rank, total int) string {
	if rank <= 0 || total <= 0 {
		return fmt.Sprintf("Position - / %d", max(total, 0))
	}
	return fmt.Sprintf("Position %d / %d", rank, total)
}

func formatDistance(d float64) string {
	if math.IsInf(d, 0) || math.IsNaN(d) {
		return "---"
	}
	return fmt.Sprintf("%.1f m", d)
}

// LeaderboardLines renders one row per entry. Finished racers show their
// final time; everyone else shows the distance still to go.
func LeaderboardLines(entries []race.LeaderboardEntry) []string {
	lines := make([]string, len(entries))
	for i, e := range entries {
		marker := " "
		if e.IsLocal {
			marker = LocalMarker
		}
		status := formatDistance(e.DistanceToFinish)
		if e.Finished {
			status = "FINISHED"
		}
		lines[i] = fmt.Sprintf("%s %2d. %-16s %10s  %s", marker, e.Rank, e.Name, status, FormatRaceTime(e.ElapsedTime))
	}
	return lines
}

// ResultsLines renders the final standings as "pos. name - time".
func ResultsLines(snap race.ResultsSnapshot) []string {
	records := snap.Records()
	if len(records) == 0 {
		return []string{"No finishers"}
	}
	lines := make([]string, len(records))
	for i, r := range records {
		lines[i] = fmt.Sprintf("%d. %s - %s", r.FinishPosition, r.Name, FormatRaceTime(r.ElapsedTime))
	}
	return lines
}
