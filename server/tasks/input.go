package tasks

import (
	"time"

	"github.com/cyp0633/libtasking/server/storage"
	"github.com/cyp0633/libtasking/server/targets"
	"github.com/samber/mo"
)

// LocationInput schedules a task at one location.
type LocationInput struct {
	LocationID string
	TimingRule string
	Start      storage.TimeOfDay
	End        storage.TimeOfDay
}

// TaskInput carries the writable fields of a task.
type TaskInput struct {
	ParentID    *string
	Name        string
	Description string

	// Start and End may be left nil when TimingRule can supply them.
	Start      *time.Time
	End        *time.Time
	TimingRule string

	TotalSubmissionTarget *int
	UserSubmissionTarget  *int
	Status                storage.TaskStatus
	EstimatedTime         *time.Duration
	Target                targets.Reference
	SegmentRuleIDs        []string

	// Locations replaces the task's TaskLocations when present. On update,
	// an absent value leaves them unchanged.
	Locations mo.Option[[]LocationInput]
}

func (in LocationInput) taskLocation(taskID string) *storage.TaskLocation {
	return &storage.TaskLocation{
		TaskID:     taskID,
		LocationID: in.LocationID,
		TimingRule: in.TimingRule,
		Start:      in.Start,
		End:        in.End,
	}
}

// apply copies the input onto task. Start and End must already be resolved.
func (in TaskInput) apply(task *storage.Task, start time.Time, end *time.Time) {
	task.ParentID = in.ParentID
	task.Name = in.Name
	task.Description = in.Description
	task.Start = start
	task.End = end
	task.TimingRule = in.TimingRule
	task.TotalSubmissionTarget = in.TotalSubmissionTarget
	task.UserSubmissionTarget = in.UserSubmissionTarget
	task.Status = in.Status
	if task.Status == "" {
		task.Status = storage.StatusDraft
	}
	task.EstimatedTime = in.EstimatedTime
	task.Target = in.Target
	task.SegmentRuleIDs = in.SegmentRuleIDs
}
