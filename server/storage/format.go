package storage

import (
	"fmt"
)

// TimeString renders the occurrence for people, e.g.
// "24th May 2018, 7 a.m. to 2:30 p.m.".
func (o *Occurrence) TimeString() string {
	return fmt.Sprintf("%s, %s to %s", formatDate(o), formatClock(o.StartTime), formatClock(o.EndTime))
}

// OccurrenceLabel names an occurrence using its task and, if any, location names.
func OccurrenceLabel(o *Occurrence, taskName, locationName string) string {
	if o.LocationID != nil && locationName != "" {
		return fmt.Sprintf("%s at %s - %s", taskName, locationName, o.TimeString())
	}
	return fmt.Sprintf("%s - %s", taskName, o.TimeString())
}

func formatDate(o *Occurrence) string {
	day := o.Date.Day()
	return fmt.Sprintf("%d%s %s %d", day, ordinalSuffix(day), o.Date.Month(), o.Date.Year())
}

func ordinalSuffix(day int) string {
	if day%100 >= 11 && day%100 <= 13 {
		return "th"
	}
	switch day % 10 {
	case 1:
		return "st"
	case 2:
		return "nd"
	case 3:
		return "rd"
	}
	return "th"
}

// formatClock uses 12-hour time, drops zero minutes and spells out midnight and noon.
func formatClock(t TimeOfDay) string {
	hour, min := t.Hour(), t.Minute()
	if min == 0 {
		switch hour {
		case 0:
			return "midnight"
		case 12:
			return "noon"
		}
	}

	suffix := "a.m."
	if hour >= 12 {
		suffix = "p.m."
	}
	h := hour % 12
	if h == 0 {
		h = 12
	}
	if min == 0 {
		return fmt.Sprintf("%d %s", h, suffix)
	}
	return fmt.Sprintf("%d:%02d %s", h, min, suffix)
}
