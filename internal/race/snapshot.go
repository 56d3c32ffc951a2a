package race

import (
	"sort"
	"time"
)

// FinishRecord is one finisher in the final results.
type FinishRecord struct {
	Name           string
	FinishPosition int
	ElapsedTime    float64 // seconds, non-negative
}

// ResultsSnapshot is the frozen final standings of a race, ordered by
// finish position. It is built once when the race concludes.
type ResultsSnapshot struct {
	records     []FinishRecord
	concludedAt time.Time
	reason      ConclusionReason
}

func newResultsSnapshot(records []FinishRecord, concludedAt time.Time, reason ConclusionReason) ResultsSnapshot {
	rs := append([]FinishRecord(nil), records...)
	sort.SliceStable(rs, func(i, j int) bool {
		return rs[i].FinishPosition < rs[j].FinishPosition
	})
	return ResultsSnapshot{records: rs, concludedAt: concludedAt, reason: reason}
}

// Records returns a copy of the finish records.
func (s ResultsSnapshot) Records() []FinishRecord {
	return append([]FinishRecord(nil), s.records...)
}

// Len returns the number of finishers.
func (s ResultsSnapshot) Len() int {
	return len(s.records)
}

// Winner returns the first-placed finisher, if anyone finished.
func (s ResultsSnapshot) Winner() (FinishRecord, bool) {
	if len(s.records) == 0 {
		return FinishRecord{}, false
	}
	return s.records[0], true
}

// ConcludedAt is when the race concluded.
func (s ResultsSnapshot) ConcludedAt() time.Time {
	return s.concludedAt
}

// Reason is why the race concluded.
func (s ResultsSnapshot) Reason() ConclusionReason {
	return s.reason
}
