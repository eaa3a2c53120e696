package recurrence

import (
	"time"

	"github.com/cyp0633/libtasking/server/storage"
	"github.com/samber/mo"
)

// StartOf returns the rule's declared start.
func StartOf(rule *Rule) time.Time {
	return rule.Start()
}

// EndOf returns when the whole schedule ends. UNTIL wins when present;
// otherwise a COUNT-bounded rule ends on the day of its last candidate at
// 23:59:59.999999. Rules with neither, and COUNT rules too long to walk, have
// no end.
func EndOf(rule *Rule) mo.Option[time.Time] {
	if until, ok := rule.Until().Get(); ok {
		return mo.Some(until)
	}
	if !rule.Count().IsPresent() {
		return mo.None[time.Time]()
	}

	last, ok := rule.last()
	if !ok {
		return mo.None[time.Time]()
	}
	return mo.Some(storage.EndOfDay.On(last, last.Location()))
}
