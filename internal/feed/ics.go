package feed

import (
	"io"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"civicfeed/internal/model"
)

// WriteICS renders the upcoming, non-canceled part of the feed as a
// VCALENDAR, so the feed can be subscribed to from calendar clients. The
// newline-delimited JSON blob remains the authoritative contract; this is a
// convenience rendering.
func WriteICS(w io.Writer, meetings []model.Meeting, now time.Time) error {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//civicfeed//meeting feed//EN")

	for _, m := range meetings {
		if m.Status == model.StatusCanceled {
			continue
		}
		if m.StartTime.Before(now) {
			continue
		}

		ev := cal.AddEvent(m.ID)
		ev.SetSummary(m.Name)
		ev.SetDtStampTime(now)
		if m.AllDay {
			ev.SetAllDayStartAt(m.StartTime)
		} else {
			ev.SetStartAt(m.StartTime)
		}
		if m.EndTime != nil {
			ev.SetEndAt(*m.EndTime)
		}
		if m.Description != "" {
			ev.SetDescription(m.Description)
		}
		if venue := formatVenue(m.Location); venue != "" {
			ev.SetLocation(venue)
		}
		if len(m.Sources) > 0 && m.Sources[0].URL != "" {
			ev.SetURL(m.Sources[0].URL)
		}
	}

	return cal.SerializeTo(w)
}

func formatVenue(loc model.Location) string {
	parts := make([]string, 0, 2)
	if strings.TrimSpace(loc.Name) != "" {
		parts = append(parts, strings.TrimSpace(loc.Name))
	}
	if strings.TrimSpace(loc.Address) != "" {
		parts = append(parts, strings.TrimSpace(loc.Address))
	}
	return strings.Join(parts, ", ")
}
