package outlook

import (
	"context"
	"errors"
	"strings"
	"time"

	abstractions "github.com/microsoft/kiota-abstractions-go"
	"github.com/microsoftgraph/msgraph-sdk-go/models"
	"github.com/microsoftgraph/msgraph-sdk-go/users"

	"github.com/theakshaypant/calmirror/internal/core"
)

var errNoRange = errors.New("initial calendar view delta needs a date range")

// ListEvents fetches one page of the calendar view delta. Graph hands out
// opaque links for both continuation and resumption, so the page token is
// the next link and the sync token is the delta link.
func (a *Adapter) ListEvents(ctx context.Context, req core.EventsRequest) (core.EventsPage, error) {
	op := "list events of " + req.CalendarID
	if err := a.limiter.Wait(ctx); err != nil {
		return core.EventsPage{}, classify(op, err)
	}

	headers := abstractions.NewRequestHeaders()
	headers.Add("Prefer", `outlook.timezone="UTC"`)
	headers.Add("Prefer", "odata.maxpagesize=100")

	var (
		result users.ItemCalendarsItemCalendarViewDeltaGetResponseable
		err    error
	)
	switch {
	case req.PageToken != "":
		result, err = users.NewItemCalendarsItemCalendarViewDeltaRequestBuilder(req.PageToken, a.client.GetAdapter()).
			GetAsDeltaGetResponse(ctx, &users.ItemCalendarsItemCalendarViewDeltaRequestBuilderGetRequestConfiguration{Headers: headers})
	case req.SyncToken != "":
		result, err = users.NewItemCalendarsItemCalendarViewDeltaRequestBuilder(req.SyncToken, a.client.GetAdapter()).
			GetAsDeltaGetResponse(ctx, &users.ItemCalendarsItemCalendarViewDeltaRequestBuilderGetRequestConfiguration{Headers: headers})
	default:
		window, ok := req.Range.Get()
		if !ok {
			return core.EventsPage{}, core.NewProviderError(core.KindCursorInvalidated, op, errNoRange)
		}
		startStr := window.Start.UTC().Format(time.RFC3339)
		endStr := window.End.UTC().Format(time.RFC3339)
		config := &users.ItemCalendarsItemCalendarViewDeltaRequestBuilderGetRequestConfiguration{
			QueryParameters: &users.ItemCalendarsItemCalendarViewDeltaRequestBuilderGetQueryParameters{
				StartDateTime: &startStr,
				EndDateTime:   &endStr,
			},
			Headers: headers,
		}
		result, err = a.client.Me().Calendars().ByCalendarId(req.CalendarID).CalendarView().Delta().
			GetAsDeltaGetResponse(ctx, config)
	}
	if err != nil {
		return core.EventsPage{}, classify(op, err)
	}

	page := core.EventsPage{
		TimeZone:      "UTC",
		NextPageToken: derefStr(result.GetOdataNextLink()),
		NextSyncToken: derefStr(result.GetOdataDeltaLink()),
	}
	for _, item := range result.GetValue() {
		page.Items = append(page.Items, parseGraphEvent(item))
	}
	return page, nil
}

// parseGraphEvent converts a Graph SDK event into our unified core.Event.
// Delta feeds report deletions as bare ids annotated with @removed.
func parseGraphEvent(item models.Eventable) core.Event {
	if _, removed := item.GetAdditionalData()["@removed"]; removed {
		return core.Event{ID: derefStr(item.GetId()), Status: core.EventCancelled}
	}

	// Event type: map from Outlook's showAs + categories
	eventType := core.TypeDefault
	status := core.EventConfirmed
	if showAs := item.GetShowAs(); showAs != nil {
		switch *showAs {
		case models.OOF_FREEBUSYSTATUS:
			eventType = core.TypeOutOfOffice
		case models.WORKINGELSEWHERE_FREEBUSYSTATUS:
			eventType = core.TypeWorkLocation
		case models.TENTATIVE_FREEBUSYSTATUS:
			status = core.EventTentative
		}
	}
	for _, cat := range item.GetCategories() {
		lower := strings.ToLower(cat)
		if lower == "focus time" || lower == "focustime" {
			eventType = core.TypeFocusTime
		}
	}
	if derefBool(item.GetIsCancelled()) {
		status = core.EventCancelled
	}

	// Meeting link (Teams, Zoom, etc.)
	meetingLink := ""
	if om := item.GetOnlineMeeting(); om != nil {
		meetingLink = derefStr(om.GetJoinUrl())
	}

	// Description: body.content may be HTML or text
	description := ""
	if body := item.GetBody(); body != nil {
		description = derefStr(body.GetContent())
	}

	location := ""
	if loc := item.GetLocation(); loc != nil {
		location = derefStr(loc.GetDisplayName())
	}

	var updated time.Time
	if modified := item.GetLastModifiedDateTime(); modified != nil {
		updated = modified.UTC()
	}

	return core.Event{
		ID:          derefStr(item.GetId()),
		Status:      status,
		Type:        eventType,
		Title:       derefStr(item.GetSubject()),
		Description: description,
		Location:    location,
		Response:    parseSDKResponse(item),
		URL:         derefStr(item.GetWebLink()),
		MeetingLink: meetingLink,
		Start:       parseSDKDateTime(item.GetStart()),
		End:         parseSDKDateTime(item.GetEnd()),
		IsAllDay:    derefBool(item.GetIsAllDay()),
		TimeZone:    derefStr(item.GetOriginalStartTimeZone()),
		Updated:     updated,
	}
}

// parseSDKDateTime converts a Graph SDK DateTimeTimeZone to time.Time.
// Times are in UTC because we set the Prefer: outlook.timezone="UTC" header.
func parseSDKDateTime(dt models.DateTimeTimeZoneable) time.Time {
	if dt == nil {
		return time.Time{}
	}
	dateTimeStr := dt.GetDateTime()
	if dateTimeStr == nil {
		return time.Time{}
	}
	layouts := []string{
		"2006-01-02T15:04:05.0000000",
		"2006-01-02T15:04:05",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, *dateTimeStr); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// parseSDKResponse maps the Outlook response status to ours.
func parseSDKResponse(item models.Eventable) core.ResponseStatus {
	rs := item.GetResponseStatus()
	if rs == nil || rs.GetResponse() == nil {
		return core.ResponseNone
	}
	switch *rs.GetResponse() {
	case models.ACCEPTED_RESPONSETYPE, models.ORGANIZER_RESPONSETYPE:
		return core.ResponseAccepted
	case models.DECLINED_RESPONSETYPE:
		return core.ResponseDeclined
	case models.TENTATIVELYACCEPTED_RESPONSETYPE:
		return core.ResponseTentative
	case models.NOTRESPONDED_RESPONSETYPE:
		return core.ResponseAwaiting
	default:
		return core.ResponseNone
	}
}
