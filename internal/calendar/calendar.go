// Package calendar renders shift events as iCalendar objects and pushes them
// to a remote calendar.
package calendar

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/emersion/go-ical"

	"shiftbot/internal/fingerprint"
)

// ProductID identifies the generator in every rendered VCALENDAR
const ProductID = "-//dienstplan-automation//EN"

// Handle points at one remote calendar
type Handle struct {
	ID   string
	Name string
}

// Entry is what a shift looks like on the calendar
type Entry struct {
	UID         string
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
}

// Payload is a rendered entry ready to push
type Payload struct {
	Entry
	Calendar *ical.Calendar
	Data     []byte
	Checksum string
}

// Transport pushes payloads to a calendar provider
type Transport interface {
	// FindCalendar returns nil and no error when no calendar has that name
	FindCalendar(ctx context.Context, name string) (*Handle, error)
	// Push stores the payload and returns the provider's id for it
	Push(ctx context.Context, cal *Handle, p Payload) (string, error)
	Provider() string
}

// Render builds a single-event VCALENDAR stamped at now
func Render(e Entry, now time.Time) (Payload, error) {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, ProductID)

	event := ical.NewEvent()
	event.Props.SetText(ical.PropUID, e.UID)
	event.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
	event.Props.SetDateTime(ical.PropDateTimeStart, e.Start.UTC())
	event.Props.SetDateTime(ical.PropDateTimeEnd, e.End.UTC())
	event.Props.SetText(ical.PropSummary, e.Summary)
	if e.Description != "" {
		event.Props.SetText(ical.PropDescription, e.Description)
	}
	if e.Location != "" {
		event.Props.SetText(ical.PropLocation, e.Location)
	}
	cal.Children = append(cal.Children, event.Component)

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return Payload{}, fmt.Errorf("failed to encode event %s: %w", e.UID, err)
	}

	return Payload{
		Entry:    e,
		Calendar: cal,
		Data:     buf.Bytes(),
		Checksum: fingerprint.Sum(buf.Bytes()),
	}, nil
}
