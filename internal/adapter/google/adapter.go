package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/time/rate"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/theakshaypant/calmirror/internal/core"
	"github.com/theakshaypant/calmirror/internal/token"
)

// ProviderID names the Google provider in callback URLs and account config.
const ProviderID = "google"

const pageSize = 250

// Adapter implements core.Provider for Google Calendar.
type Adapter struct {
	service *calendar.Service
	limiter *rate.Limiter
	now     func() time.Time
}

var _ core.Provider = (*Adapter)(nil)

// Option configures an Adapter.
type Option func(*Adapter)

// WithRateLimit bounds the API requests issued per second.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(a *Adapter) {
		if perSecond > 0 {
			a.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
		}
	}
}

// OAuthConfig parses the client credentials downloaded from the Google Cloud console.
func OAuthConfig(credsFile string) (*oauth2.Config, error) {
	b, err := os.ReadFile(credsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}
	config, err := google.ConfigFromJSON(b, calendar.CalendarReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	return config, nil
}

// New loads credentials and token, then initializes the Calendar service.
// Run `calmirror auth` first to generate the token file.
func New(ctx context.Context, credsFile, tokenFile string, opts ...Option) (*Adapter, error) {
	config, err := OAuthConfig(credsFile)
	if err != nil {
		return nil, err
	}
	src, err := token.NewFileSource(ctx, config, tokenFile)
	if err != nil {
		return nil, err
	}
	service, err := calendar.NewService(ctx, option.WithTokenSource(src))
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	return NewWithService(service, opts...), nil
}

// NewWithService wraps an existing Calendar service.
func NewWithService(service *calendar.Service, opts ...Option) *Adapter {
	a := &Adapter{
		service: service,
		limiter: rate.NewLimiter(rate.Inf, 1),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) ID() string { return ProviderID }

// ListCalendars fetches one page of the calendar list. With a sync token
// only changed entries are returned, deleted ones flagged.
func (a *Adapter) ListCalendars(ctx context.Context, req core.CalendarListRequest) (core.CalendarListPage, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return core.CalendarListPage{}, classify("list calendars", err)
	}

	call := a.service.CalendarList.List().MaxResults(pageSize).Context(ctx)
	if req.SyncToken != "" {
		call = call.SyncToken(req.SyncToken).ShowDeleted(true)
	}
	if req.PageToken != "" {
		call = call.PageToken(req.PageToken)
	}

	result, err := call.Do()
	if err != nil {
		return core.CalendarListPage{}, classify("list calendars", err)
	}

	page := core.CalendarListPage{
		NextPageToken: result.NextPageToken,
		NextSyncToken: result.NextSyncToken,
	}
	for _, item := range result.Items {
		page.Items = append(page.Items, parseListEntry(item))
	}
	return page, nil
}

// ListEvents fetches one page of events, either changes since the sync token
// or every event of the range. Recurring events are expanded into instances.
func (a *Adapter) ListEvents(ctx context.Context, req core.EventsRequest) (core.EventsPage, error) {
	op := "list events of " + req.CalendarID
	if err := a.limiter.Wait(ctx); err != nil {
		return core.EventsPage{}, classify(op, err)
	}

	call := a.service.Events.List(req.CalendarID).
		SingleEvents(true).
		MaxResults(pageSize).
		Context(ctx)
	if req.SyncToken != "" {
		call = call.SyncToken(req.SyncToken)
	} else if window, ok := req.Range.Get(); ok {
		// Google API requires RFC3339 format
		call = call.TimeMin(window.Start.Format(time.RFC3339)).TimeMax(window.End.Format(time.RFC3339))
	}
	if req.PageToken != "" {
		call = call.PageToken(req.PageToken)
	}

	result, err := call.Do()
	if err != nil {
		return core.EventsPage{}, classify(op, err)
	}

	page := core.EventsPage{
		TimeZone:      result.TimeZone,
		NextPageToken: result.NextPageToken,
		NextSyncToken: result.NextSyncToken,
	}
	for _, item := range result.Items {
		page.Items = append(page.Items, parseEvent(item))
	}
	return page, nil
}

// OpenSubscription registers a web_hook channel for the calendar list or for
// the events of one calendar.
func (a *Adapter) OpenSubscription(ctx context.Context, req core.SubscriptionRequest) (core.Subscription, error) {
	op := fmt.Sprintf("watch %s %s", req.ResourceType, req.ResourceID)
	if err := a.limiter.Wait(ctx); err != nil {
		return core.Subscription{}, classify(op, err)
	}

	channel := &calendar.Channel{
		Id:      req.ChannelID,
		Token:   req.Token,
		Type:    "web_hook",
		Address: req.CallbackURL,
	}
	if req.TTL > 0 {
		channel.Expiration = a.now().Add(req.TTL).UnixMilli()
	}

	var (
		created *calendar.Channel
		err     error
	)
	switch req.ResourceType {
	case core.ResourceCalendarList:
		created, err = a.service.CalendarList.Watch(channel).Context(ctx).Do()
	case core.ResourceCalendar:
		created, err = a.service.Events.Watch(req.ResourceID, channel).Context(ctx).Do()
	default:
		return core.Subscription{}, fmt.Errorf("%s: unsupported resource type", op)
	}
	if err != nil {
		return core.Subscription{}, classify(op, err)
	}
	return subscriptionFrom(created), nil
}

// CloseSubscription stops a channel. Google forgets expired channels on its
// own, so a 404 counts as closed.
func (a *Adapter) CloseSubscription(ctx context.Context, sub core.Subscription) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return classify("stop channel", err)
	}
	err := a.service.Channels.Stop(&calendar.Channel{
		Id:         sub.ChannelID,
		ResourceId: sub.ExternalResourceID,
	}).Context(ctx).Do()
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == 404 {
		return nil
	}
	if err != nil {
		return classify("stop channel "+sub.ChannelID, err)
	}
	return nil
}

func subscriptionFrom(ch *calendar.Channel) core.Subscription {
	sub := core.Subscription{
		ChannelID:          ch.Id,
		Token:              ch.Token,
		ExternalResourceID: ch.ResourceId,
	}
	if ch.Expiration > 0 {
		sub.ExpiresAt = time.UnixMilli(ch.Expiration).UTC()
	}
	return sub
}

func parseListEntry(item *calendar.CalendarListEntry) core.CalendarListEntry {
	summary := item.Summary
	if item.SummaryOverride != "" {
		summary = item.SummaryOverride
	}
	return core.CalendarListEntry{
		ID:       item.Id,
		Summary:  summary,
		TimeZone: item.TimeZone,
		Selected: item.Selected || item.Primary,
		IsOwner:  item.AccessRole == "owner",
		Deleted:  item.Deleted,
	}
}

// parseEvent converts a Google Calendar event to our unified Event type.
// Cancelled events in an incremental feed carry little more than their id.
func parseEvent(item *calendar.Event) core.Event {
	// Event type
	eventType := core.TypeDefault
	switch item.EventType {
	case "outOfOffice":
		eventType = core.TypeOutOfOffice
	case "focusTime":
		eventType = core.TypeFocusTime
	case "workingLocation":
		eventType = core.TypeWorkLocation
	}

	status := core.EventConfirmed
	switch item.Status {
	case "tentative":
		status = core.EventTentative
	case "cancelled":
		status = core.EventCancelled
	}

	startTime, endTime, isAllDay := parseTiming(item.Start, item.End)
	updated, _ := time.Parse(time.RFC3339, item.Updated)

	return core.Event{
		ID:          item.Id,
		Status:      status,
		Type:        eventType,
		Title:       item.Summary,
		Description: item.Description,
		Location:    item.Location,
		Response:    parseResponse(item),
		URL:         item.HtmlLink,
		MeetingLink: extractMeetingLink(item),
		Start:       startTime,
		End:         endTime,
		IsAllDay:    isAllDay,
		TimeZone:    eventTimeZone(item.Start),
		Updated:     updated,
	}
}

func parseTiming(start, end *calendar.EventDateTime) (time.Time, time.Time, bool) {
	if start == nil || end == nil {
		return time.Time{}, time.Time{}, false
	}
	if start.DateTime != "" {
		s, _ := time.Parse(time.RFC3339, start.DateTime)
		e, _ := time.Parse(time.RFC3339, end.DateTime)
		return s, e, false
	}
	// All day event (YYYY-MM-DD); the end date is exclusive
	s, _ := time.Parse(time.DateOnly, start.Date)
	e, _ := time.Parse(time.DateOnly, end.Date)
	return s, e, true
}

func eventTimeZone(start *calendar.EventDateTime) string {
	if start == nil {
		return ""
	}
	return start.TimeZone
}

// extractMeetingLink gets the video conferencing link from Google Calendar event.
func extractMeetingLink(item *calendar.Event) string {
	// First check ConferenceData (Google Meet, Zoom, etc.)
	if item.ConferenceData != nil {
		for _, entry := range item.ConferenceData.EntryPoints {
			if entry.EntryPointType == "video" {
				return entry.Uri
			}
		}
	}

	// Fallback to legacy HangoutLink
	return item.HangoutLink
}

// parseResponse determines the user's response from the attendees list.
func parseResponse(item *calendar.Event) core.ResponseStatus {
	for _, attendee := range item.Attendees {
		if !attendee.Self {
			continue
		}
		switch attendee.ResponseStatus {
		case "declined":
			return core.ResponseDeclined
		case "tentative":
			return core.ResponseTentative
		case "needsAction":
			return core.ResponseAwaiting
		case "accepted":
			return core.ResponseAccepted
		}
	}

	// Self-created, subscribed or imported events need no response
	return core.ResponseNone
}

// classify maps Calendar API failures onto provider error kinds.
func classify(op string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 410:
			return core.NewProviderError(core.KindCursorInvalidated, op, err)
		case apiErr.Code == 401:
			return core.NewProviderError(core.KindCredentials, op, err)
		case apiErr.Code == 403 && !rateLimited(apiErr):
			return core.NewProviderError(core.KindCredentials, op, err)
		}
		return core.NewProviderError(core.KindTransient, op, err)
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return core.NewProviderError(core.KindCredentials, op, err)
	}
	return core.NewProviderError(core.KindTransient, op, err)
}

func rateLimited(apiErr *googleapi.Error) bool {
	for _, item := range apiErr.Errors {
		switch item.Reason {
		case "rateLimitExceeded", "userRateLimitExceeded", "quotaExceeded":
			return true
		}
	}
	return false
}
