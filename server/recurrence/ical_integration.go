package recurrence

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cyp0633/libtasking/server/storage"
	"github.com/emersion/go-ical"
	"github.com/samber/mo"
)

// ProductID identifies calendars exported by this package.
const ProductID = "-//libtasking//Task Occurrences//EN"

// TimingRuleFromComponent builds a timing rule from the DTSTART, RRULE, RDATE
// and EXDATE of an iCalendar component (VEVENT or VTODO). DTSTART keeps its
// TZID or VALUE=DATE parameter so the rule's start time-of-day is preserved;
// RDATE and EXDATE keep their TZID.
func TimingRuleFromComponent(comp *ical.Component) (string, error) {
	rruleProp := comp.Props.Get(ical.PropRecurrenceRule)
	if rruleProp == nil || rruleProp.Value == "" {
		return "", fmt.Errorf("%w: %s has no RRULE", ErrInvalidRule, comp.Name)
	}

	var b strings.Builder
	if dtstart := comp.Props.Get(ical.PropDateTimeStart); dtstart != nil && dtstart.Value != "" {
		b.WriteString("DTSTART")
		if tzid := dtstart.Params.Get(ical.ParamTimezoneID); tzid != "" {
			b.WriteString(";TZID=" + tzid)
		} else if strings.EqualFold(dtstart.Params.Get(ical.ParamValue), "DATE") {
			b.WriteString(";VALUE=DATE")
		}
		b.WriteString(":" + dtstart.Value + "\n")
	}
	b.WriteString("RRULE:" + rruleProp.Value)

	for _, name := range []string{ical.PropRecurrenceDates, ical.PropExceptionDates} {
		for _, prop := range comp.Props[name] {
			if prop.Value == "" {
				continue
			}
			b.WriteString("\n" + name)
			if tzid := prop.Params.Get(ical.ParamTimezoneID); tzid != "" {
				b.WriteString(";TZID=" + tzid)
			}
			b.WriteString(":" + prop.Value)
		}
	}

	return b.String(), nil
}

// WindowFromComponent returns the start and end of an iCalendar component.
// The end comes from DTEND, then DURATION, then DUE (for VTODO). Floating
// values are read in loc.
func WindowFromComponent(comp *ical.Component, loc *time.Location) (start time.Time, end mo.Option[time.Time], err error) {
	if loc == nil {
		loc = time.UTC
	}

	dtstart := comp.Props.Get(ical.PropDateTimeStart)
	if dtstart == nil {
		return time.Time{}, mo.None[time.Time](), fmt.Errorf("%s has no DTSTART", comp.Name)
	}
	start, err = dtstart.DateTime(loc)
	if err != nil {
		return time.Time{}, mo.None[time.Time](), fmt.Errorf("invalid DTSTART: %w", err)
	}

	if dtend := comp.Props.Get(ical.PropDateTimeEnd); dtend != nil {
		t, err := dtend.DateTime(loc)
		if err != nil {
			return time.Time{}, mo.None[time.Time](), fmt.Errorf("invalid DTEND: %w", err)
		}
		return start, mo.Some(t), nil
	}

	if durationProp := comp.Props.Get(ical.PropDuration); durationProp != nil {
		d, err := durationProp.Duration()
		if err != nil {
			return time.Time{}, mo.None[time.Time](), fmt.Errorf("invalid DURATION: %w", err)
		}
		return start, mo.Some(start.Add(d)), nil
	}

	if comp.Name == ical.CompToDo {
		if due := comp.Props.Get(ical.PropDue); due != nil {
			t, err := due.DateTime(loc)
			if err != nil {
				return time.Time{}, mo.None[time.Time](), fmt.Errorf("invalid DUE: %w", err)
			}
			return start, mo.Some(t), nil
		}
	}

	return start, mo.None[time.Time](), nil
}

// CalendarFromOccurrences renders a task's occurrences as VEVENTs. Times are
// anchored in loc and written in UTC.
func CalendarFromOccurrences(task *storage.Task, occurrences []*storage.Occurrence, loc *time.Location, stamp time.Time) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, ProductID)

	for _, occ := range occurrences {
		event := ical.NewEvent()
		event.Props.SetText(ical.PropUID, occ.ID)
		event.Props.SetDateTime(ical.PropDateTimeStamp, stamp.UTC())
		event.Props.SetText(ical.PropSummary, task.Name)
		if task.Description != "" {
			event.Props.SetText(ical.PropDescription, task.Description)
		}
		event.Props.SetDateTime(ical.PropDateTimeStart, occ.StartAt(loc).UTC())
		event.Props.SetDateTime(ical.PropDateTimeEnd, occ.EndAt(loc).UTC())
		if occ.LocationID != nil {
			event.Props.SetText(ical.PropLocation, *occ.LocationID)
		}
		cal.Children = append(cal.Children, event.Component)
	}

	return cal
}

// EncodeCalendar writes cal as iCalendar text.
func EncodeCalendar(w io.Writer, cal *ical.Calendar) error {
	return ical.NewEncoder(w).Encode(cal)
}
