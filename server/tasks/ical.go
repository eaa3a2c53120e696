package tasks

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cyp0633/libtasking/server/recurrence"
	"github.com/emersion/go-ical"
)

// InputFromComponent builds a TaskInput from a VEVENT or VTODO. The
// component's RRULE becomes the timing rule; without one the task has no
// schedule. Floating times are read in loc.
func InputFromComponent(comp *ical.Component, loc *time.Location) (TaskInput, error) {
	start, end, err := recurrence.WindowFromComponent(comp, loc)
	if err != nil {
		return TaskInput{}, err
	}

	in := TaskInput{Start: &start}
	if e, ok := end.Get(); ok {
		in.End = &e
	}

	if summary := comp.Props.Get(ical.PropSummary); summary != nil {
		if in.Name, err = summary.Text(); err != nil {
			return TaskInput{}, fmt.Errorf("invalid SUMMARY: %w", err)
		}
	}
	if description := comp.Props.Get(ical.PropDescription); description != nil {
		if in.Description, err = description.Text(); err != nil {
			return TaskInput{}, fmt.Errorf("invalid DESCRIPTION: %w", err)
		}
	}

	if comp.Props.Get(ical.PropRecurrenceRule) != nil {
		if in.TimingRule, err = recurrence.TimingRuleFromComponent(comp); err != nil {
			return TaskInput{}, err
		}
	}

	return in, nil
}

// DecodeInputs reads an iCalendar stream and returns one TaskInput per VEVENT
// or VTODO, in document order.
func DecodeInputs(r io.Reader, loc *time.Location) ([]TaskInput, error) {
	cal, err := ical.NewDecoder(r).Decode()
	if err != nil {
		return nil, fmt.Errorf("failed to decode calendar: %w", err)
	}

	var inputs []TaskInput
	for _, child := range cal.Children {
		if child.Name != ical.CompEvent && child.Name != ical.CompToDo {
			continue
		}
		in, err := InputFromComponent(child, loc)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", child.Name, err)
		}
		inputs = append(inputs, in)
	}
	if len(inputs) == 0 {
		return nil, errors.New("no events or todos found in calendar")
	}
	return inputs, nil
}
