package core

import (
	"context"
	"time"

	"github.com/samber/mo"
)

// ResourceType is the granularity of a synchronized resource.
type ResourceType string

const (
	ResourceCalendarList ResourceType = "CALENDAR_LIST"
	ResourceCalendar     ResourceType = "CALENDAR"
)

// CalendarListRequest asks for one page of the calendar list. An empty
// SyncToken requests the full list.
type CalendarListRequest struct {
	SyncToken string
	PageToken string
}

// CalendarListPage is one page of calendar list entries. NextSyncToken is
// only set on the last page.
type CalendarListPage struct {
	Items         []CalendarListEntry
	NextPageToken string
	NextSyncToken string
}

// EventsRequest asks for one page of events. Exactly one of SyncToken or
// Range is meaningful: a SyncToken asks for changes since the cursor, a Range
// asks for a full listing of the window.
type EventsRequest struct {
	CalendarID string
	SyncToken  string
	Range      mo.Option[DateRange]
	PageToken  string
}

// EventsPage is one page of events.
type EventsPage struct {
	Items         []Event
	TimeZone      string
	NextPageToken string
	NextSyncToken string
}

// SubscriptionRequest asks the provider to push change notifications for a
// resource to CallbackURL.
type SubscriptionRequest struct {
	ResourceType ResourceType
	// Calendar id; empty for account-level resources.
	ResourceID  string
	CallbackURL string
	ChannelID   string
	Token       string
	TTL         time.Duration
}

// Subscription is what the provider answered for an opened channel. ChannelID
// and Token are the values echoed back by the provider.
type Subscription struct {
	ChannelID          string
	Token              string
	ExternalResourceID string
	ExpiresAt          time.Time
}

// Provider represents a remote calendar source (Google, Outlook).
type Provider interface {
	// ID returns the unique identifier of the provider kind (e.g. "google").
	ID() string
	// ListCalendars fetches one page of the calendar list.
	ListCalendars(ctx context.Context, req CalendarListRequest) (CalendarListPage, error)
	// ListEvents fetches one page of events of a calendar.
	ListEvents(ctx context.Context, req EventsRequest) (EventsPage, error)
	// OpenSubscription creates a push channel.
	OpenSubscription(ctx context.Context, req SubscriptionRequest) (Subscription, error)
	// CloseSubscription stops a push channel.
	CloseSubscription(ctx context.Context, sub Subscription) error
}
