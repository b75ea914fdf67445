package core

import (
	"time"
)

// EventStatus is the provider-side lifecycle status of an event.
type EventStatus string

const (
	EventConfirmed EventStatus = "confirmed"
	EventTentative EventStatus = "tentative"
	EventCancelled EventStatus = "cancelled"
)

// Live reports whether an event with this status belongs in the mirror.
// Anything that is not confirmed or tentative is treated as a removal.
func (s EventStatus) Live() bool {
	return s == EventConfirmed || s == EventTentative
}

// ResponseStatus represents the user's response to an event invitation.
type ResponseStatus int

const (
	ResponseAccepted ResponseStatus = iota
	// User declined
	ResponseDeclined
	// User marked as tentative
	ResponseTentative
	// Awaiting user's response
	ResponseAwaiting
	// No response needed (subscribed calendars, self-created events)
	ResponseNone
)

// EventType represents the kind of calendar entry.
type EventType int

const (
	TypeDefault      EventType = iota // Regular meeting/event
	TypeOutOfOffice                   // Out of office block
	TypeFocusTime                     // Focus time block
	TypeWorkLocation                  // Working location (home/office)
)

// EventKey identifies a mirrored event.
type EventKey struct {
	AccountID  string
	CalendarID string
	EventID    string
}

// Event is the provider-neutral shape of a mirrored event.
// All adapters (Google, Outlook) convert their data to this format.
type Event struct {
	AccountID  string
	CalendarID string
	// Unique ID (provided by the source)
	ID     string
	Status EventStatus
	Type   EventType
	// Details
	Title       string
	Description string
	Location    string
	Response    ResponseStatus
	// Calendar event page URL
	URL string
	// Video conferencing link (Google Meet, Zoom, Teams, etc.)
	MeetingLink string
	// Timing
	Start    time.Time
	End      time.Time
	IsAllDay bool
	// Zone reported by the provider for the calendar the event came from.
	TimeZone string
	Updated  time.Time
}

// Key returns the identity of the event in the mirror.
func (e Event) Key() EventKey {
	return EventKey{AccountID: e.AccountID, CalendarID: e.CalendarID, EventID: e.ID}
}

// Duration returns the length of the event.
func (e Event) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// InProgress checks if the event is happening right now.
func (e Event) InProgress(now time.Time) bool {
	return now.After(e.Start) && now.Before(e.End)
}

// PartitionEvents splits an incremental feed into events to upsert and keys to
// remove from the mirror.
func PartitionEvents(events []Event) (upserts []Event, removals []EventKey) {
	for _, e := range events {
		if e.Status.Live() {
			upserts = append(upserts, e)
			continue
		}
		removals = append(removals, e.Key())
	}
	return upserts, removals
}
