package core

import (
	"fmt"
	"time"
)

// DateRange is a closed time interval [Start, End].
type DateRange struct {
	Start time.Time
	End   time.Time
}

// NewDateRange returns the range, swapping bounds given in the wrong order.
func NewDateRange(start, end time.Time) DateRange {
	if end.Before(start) {
		start, end = end, start
	}
	return DateRange{Start: start, End: end}
}

// Encloses reports whether other lies entirely within r.
func (r DateRange) Encloses(other DateRange) bool {
	return !other.Start.Before(r.Start) && !other.End.After(r.End)
}

// Contains reports whether t lies within r.
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

func (r DateRange) String() string {
	return fmt.Sprintf("[%s, %s]", r.Start.Format(time.RFC3339), r.End.Format(time.RFC3339))
}
