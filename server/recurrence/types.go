package recurrence

import (
	"time"

	"github.com/cyp0633/libtasking/server/storage"
	"github.com/samber/mo"
)

// Request describes one expansion: a timing rule on behalf of a task, with
// optional time-of-day overrides (e.g. from a TaskLocation).
type Request struct {
	Task       *storage.Task                // Owning task; its End bounds the expansion
	TimingRule string                       // RRULE text, optionally with DTSTART
	Start      mo.Option[storage.TimeOfDay] // Start time stamped on every occurrence
	End        mo.Option[storage.TimeOfDay] // End time stamped on every occurrence
	LocationID *string                      // Location stamped on every occurrence
}

func (r Request) taskID() string {
	if r.Task == nil {
		return ""
	}
	return r.Task.ID
}

// LocationRequest derives a request from a task's per-location schedule.
func LocationRequest(task *storage.Task, tl *storage.TaskLocation) Request {
	locationID := tl.LocationID
	return Request{
		Task:       task,
		TimingRule: tl.TimingRule,
		Start:      mo.Some(tl.Start),
		End:        mo.Some(tl.End),
		LocationID: &locationID,
	}
}

// slot is an occurrence before it is bound to a task: what the rule alone decides.
type slot struct {
	Date  time.Time
	Start storage.TimeOfDay
	End   storage.TimeOfDay
}
