// Package export renders mirrored events as iCalendar data.
package export

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-ical"

	"github.com/theakshaypant/calmirror/internal/core"
)

const productID = "-//calmirror//Calendar Mirror//EN"

// Options tunes the generated calendar.
type Options struct {
	// Name becomes the calendar NAME property when set.
	Name string
	// Stamp is written as DTSTAMP on every event. Zero means time.Now.
	Stamp time.Time
}

// Calendar builds a VCALENDAR holding one VEVENT per live event.
// Cancelled events are skipped.
func Calendar(events []core.Event, opts Options) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropProductID, productID)
	cal.Props.SetText(ical.PropVersion, "2.0")
	if opts.Name != "" {
		cal.Props.SetText(ical.PropName, opts.Name)
	}

	stamp := opts.Stamp
	if stamp.IsZero() {
		stamp = time.Now()
	}
	for _, e := range events {
		if !e.Status.Live() {
			continue
		}
		cal.Children = append(cal.Children, vevent(e, stamp).Component)
	}
	return cal
}

// Write encodes events as an iCalendar stream.
func Write(w io.Writer, events []core.Event, opts Options) error {
	if err := ical.NewEncoder(w).Encode(Calendar(events, opts)); err != nil {
		return fmt.Errorf("encode calendar: %w", err)
	}
	return nil
}

// Export reads the mirror through r and writes the matching events to w.
func Export(ctx context.Context, r core.EventReader, filter core.EventFilter, w io.Writer, opts Options) (int, error) {
	events, err := r.ListEvents(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("read mirror: %w", err)
	}
	n := 0
	for _, e := range events {
		if e.Status.Live() {
			n++
		}
	}
	return n, Write(w, events, opts)
}

func vevent(e core.Event, stamp time.Time) *ical.Event {
	event := ical.NewEvent()
	event.Props.SetText(ical.PropUID, UID(e))
	event.Props.SetDateTime(ical.PropDateTimeStamp, stamp.UTC())
	if e.IsAllDay {
		event.Props.SetDate(ical.PropDateTimeStart, e.Start)
		event.Props.SetDate(ical.PropDateTimeEnd, e.End)
	} else {
		event.Props.SetDateTime(ical.PropDateTimeStart, e.Start.UTC())
		event.Props.SetDateTime(ical.PropDateTimeEnd, e.End.UTC())
	}
	event.Props.SetText(ical.PropSummary, e.Title)
	if e.Description != "" {
		event.Props.SetText(ical.PropDescription, e.Description)
	}
	if e.Location != "" {
		event.Props.SetText(ical.PropLocation, e.Location)
	}
	if e.URL != "" {
		event.Props.SetText(ical.PropURL, e.URL)
	}
	if !e.Updated.IsZero() {
		event.Props.SetDateTime(ical.PropLastModified, e.Updated.UTC())
	}
	if e.Status == core.EventTentative {
		event.Props.SetText(ical.PropStatus, "TENTATIVE")
	} else {
		event.Props.SetText(ical.PropStatus, "CONFIRMED")
	}
	// Free/busy blocks without attendees
	if e.Type == core.TypeFocusTime || e.Type == core.TypeOutOfOffice {
		event.Props.SetText(ical.PropTransparency, "OPAQUE")
	}
	if e.MeetingLink != "" {
		prop := ical.NewProp("X-MEETING-LINK")
		prop.SetText(e.MeetingLink)
		event.Props.Set(prop)
	}
	return event
}

// UID is stable across exports so calendar clients update events in place.
func UID(e core.Event) string {
	return fmt.Sprintf("%s/%s/%s@calmirror", e.AccountID, e.CalendarID, e.ID)
}
