package core

import (
	"context"
	"time"
)

// EventReader is the read side of the local mirror. Readers run concurrently
// with syncs and must tolerate eventual consistency.
type EventReader interface {
	// ListEvents returns mirrored events sorted by Start time.
	ListEvents(ctx context.Context, filter EventFilter) ([]Event, error)
}

// EventFilter defines criteria for querying the mirror.
type EventFilter struct {
	AccountID string
	Start     time.Time
	End       time.Time
	// If empty, return all calendars of the account
	CalendarIDs []string
}
