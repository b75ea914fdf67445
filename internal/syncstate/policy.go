// Package syncstate holds the per-resource bookkeeping of the mirror: cursor,
// covered range, failure count and the backoff clock. Everything here is pure;
// persistence is the store's job and mutation is the orchestrator's.
package syncstate

import (
	"time"

	"github.com/theakshaypant/calmirror/internal/core"
)

// Policy parameterizes the rolling window and the retry schedule.
type Policy struct {
	// Months covered before now by a full calendar sync.
	PastMonths int
	// Months covered after now by a full calendar sync.
	FutureMonths int
	// Slack before the synced range stops enclosing the rolling window.
	FullSyncCutoff time.Duration

	CalendarInterval time.Duration
	ListInterval     time.Duration

	// MaxBackoff caps the delay after a failure. Zero leaves it unbounded.
	MaxBackoff time.Duration

	// FreshFor is how recently a calendar must have synced to be fresh.
	FreshFor time.Duration
}

// DefaultPolicy returns the production defaults.
func DefaultPolicy() Policy {
	return Policy{
		PastMonths:       6,
		FutureMonths:     3,
		FullSyncCutoff:   7 * 24 * time.Hour,
		CalendarInterval: time.Minute,
		ListInterval:     5 * time.Minute,
		FreshFor:         10 * time.Minute,
	}
}

// Window returns the range a full calendar sync covers.
func (p Policy) Window(now time.Time) core.DateRange {
	return core.NewDateRange(now.AddDate(0, -p.PastMonths, 0), now.AddDate(0, p.FutureMonths, 0))
}

// MandatoryWindow returns the range a previous full sync must still enclose
// for incremental syncs to be allowed.
func (p Policy) MandatoryWindow(now time.Time) core.DateRange {
	w := p.Window(now)
	end := w.End.Add(-p.FullSyncCutoff)
	if end.Before(w.Start) {
		end = w.Start
	}
	return core.DateRange{Start: w.Start, End: end}
}

// backoff returns interval × n², capped by MaxBackoff when set.
func (p Policy) backoff(interval time.Duration, n int) time.Duration {
	if n <= 0 {
		return interval
	}
	factor := time.Duration(n) * time.Duration(n)
	d := interval * factor
	// overflow guard: interval × n² wrapped around
	if interval > 0 && d/factor != interval {
		d = time.Duration(1<<63 - 1)
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}
