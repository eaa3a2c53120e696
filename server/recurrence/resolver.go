package recurrence

import (
	"github.com/cyp0633/libtasking/server/storage"
	"github.com/samber/mo"
)

// StartTimeFor returns the start time-of-day for a rule's occurrences: the
// explicit value if given, otherwise the time-of-day of the rule's start.
func StartTimeFor(rule *Rule, explicit mo.Option[storage.TimeOfDay]) storage.TimeOfDay {
	if t, ok := explicit.Get(); ok {
		return t
	}
	return storage.TimeOfDayOf(StartOf(rule))
}

// EndTimeFor returns the end time-of-day used for the last occurrence. In
// order of preference: the explicit value, the rule's end, the task's end.
func EndTimeFor(task *storage.Task, rule *Rule, explicit mo.Option[storage.TimeOfDay]) mo.Option[storage.TimeOfDay] {
	if t, ok := explicit.Get(); ok {
		return mo.Some(t)
	}
	if until, ok := rule.Until().Get(); ok {
		return mo.Some(storage.TimeOfDayOf(until))
	}
	// A COUNT rule always ends at end of day; no need to walk it.
	if rule.Count().IsPresent() {
		return mo.Some(storage.EndOfDay)
	}
	if task != nil && task.End != nil {
		return mo.Some(storage.TimeOfDayOf(*task.End))
	}
	return mo.None[storage.TimeOfDay]()
}
