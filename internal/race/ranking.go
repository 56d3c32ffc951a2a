package race

import (
	"math"
	"sort"
)

// LeaderboardEntry is one row of the live standings. It is recomputed on
// every query and never stored.
type LeaderboardEntry struct {
	Rank             int
	Name             string
	DistanceToFinish float64
	ElapsedTime      float64
	Speed            float64
	IsLocal          bool
	Finished         bool
}

// Rank orders players for display.
//
// Finished players come first in finish order. Everyone else is ordered by
// remaining course distance, closest to the finish first. The sort is stable
// over the input order, so players passed in registration order keep their
// relative order on exact ties.
func Rank(course *Course, players []PlayerProgress) []LeaderboardEntry {
	type ranked struct {
		p    PlayerProgress
		dist float64
	}

	rs := make([]ranked, len(players))
	for i, p := range players {
		var dist float64
		if !p.Finished {
			dist = course.RemainingCourseDistance(p)
			if math.IsNaN(dist) {
				dist = math.Inf(1)
			}
		}
		rs[i] = ranked{p: p, dist: dist}
	}

	sort.SliceStable(rs, func(i, j int) bool {
		a, b := rs[i], rs[j]
		if a.p.Finished != b.p.Finished {
			return a.p.Finished
		}
		if a.p.Finished {
			return a.p.FinishPosition < b.p.FinishPosition
		}
		return a.dist < b.dist
	})

	entries := make([]LeaderboardEntry, len(rs))
	for i, r := range rs {
		entries[i] = LeaderboardEntry{
			Rank:             i + 1,
			Name:             r.p.Name,
			DistanceToFinish: r.dist,
			ElapsedTime:      r.p.ElapsedTime,
			Speed:            r.p.Speed,
			IsLocal:          r.p.Local,
			Finished:         r.p.Finished,
		}
	}
	return entries
}
