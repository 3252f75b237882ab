package ical

import (
	"fmt"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/stephanedenis/pensine-plugin-calendar/internal/models"
)

const productID = "-//pensine//calendar//FR"

// Format converts a calendar model to iCalendar text. Events are all-day
// entries on their date; events whose date does not parse are skipped.
func Format(cal *models.Calendar, stamp time.Time) string {
	out := ics.NewCalendar()
	out.SetMethod(ics.MethodPublish)
	out.SetProductId(productID)
	out.SetXWRCalName(cal.Name)
	if cal.Description != "" {
		out.SetXWRCalDesc(cal.Description)
	}

	for _, event := range cal.Events {
		formatEvent(out, event, stamp)
	}

	return out.Serialize()
}

func formatEvent(cal *ics.Calendar, event models.Event, stamp time.Time) {
	day, err := time.Parse(models.DateLayout, event.Date)
	if err != nil {
		return
	}

	ev := cal.AddEvent(fmt.Sprintf("%s@pensine", event.ID))
	ev.SetDtStampTime(stamp.UTC())
	ev.SetAllDayStartAt(day)
	ev.SetAllDayEndAt(day.AddDate(0, 0, 1))

	if title := event.Title(); title != "" {
		ev.SetSummary(title)
	} else {
		ev.SetSummary(event.ID)
	}
	if s := stringField(event, "description"); s != "" {
		ev.SetDescription(s)
	}
	if s := stringField(event, "location"); s != "" {
		ev.SetLocation(s)
	}
	if s := stringField(event, "url"); s != "" {
		ev.SetURL(s)
	}
}

func stringField(event models.Event, key string) string {
	s, _ := event.Fields[key].(string)
	return s
}
