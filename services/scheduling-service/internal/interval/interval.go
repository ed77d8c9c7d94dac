package interval

import "time"

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether [aStart,aEnd) and [bStart,bEnd) intersect.
// Half-open semantics: intervals that merely touch (aEnd == bStart) do not
// overlap. Every interval comparison in the service uses this convention.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// OverlapsAny reports whether [start,end) intersects any of the given intervals.
func OverlapsAny(start, end time.Time, intervals []Interval) bool {
	for _, iv := range intervals {
		if Overlaps(start, end, iv.Start, iv.End) {
			return true
		}
	}
	return false
}
