package storage

import (
	"context"
)

// OccurrenceStore persists generated occurrences. It is the only storage the
// recurrence engine needs.
type OccurrenceStore interface {
	// ListOccurrences returns matching occurrences ordered by task, location, date and start time.
	ListOccurrences(ctx context.Context, filter OccurrenceFilter) ([]*Occurrence, error)
	// CreateOccurrences inserts all occurrences in one batch.
	CreateOccurrences(ctx context.Context, occurrences []*Occurrence) error
	// DeleteOccurrences removes matching occurrences and reports how many were removed.
	DeleteOccurrences(ctx context.Context, filter OccurrenceFilter) (int, error)
	// ReplaceOccurrences deletes matching occurrences and inserts the given ones
	// as a single unit: either both happen or neither does.
	ReplaceOccurrences(ctx context.Context, filter OccurrenceFilter, occurrences []*Occurrence) error
}

// Storage connects your backend storage (e.g. database) with the tasking
// service. Please use the error types provided.
type Storage interface {
	OccurrenceStore

	// Task operations
	GetTask(ctx context.Context, taskID string) (*Task, error)
	ListTasks(ctx context.Context, opts *TaskListOptions) ([]*Task, error)
	CreateTask(ctx context.Context, task *Task) error
	UpdateTask(ctx context.Context, task *Task) error
	// DeleteTask removes the task with its TaskLocations and occurrences.
	// Children of the task lose their parent.
	DeleteTask(ctx context.Context, taskID string) error

	// Task location operations
	ListTaskLocations(ctx context.Context, taskID string) ([]*TaskLocation, error)
	// ReplaceTaskLocations makes locations the complete set of TaskLocations for the task.
	ReplaceTaskLocations(ctx context.Context, taskID string, locations []*TaskLocation) error

	// Location operations
	GetLocation(ctx context.Context, locationID string) (*Location, error)
	ListLocations(ctx context.Context) ([]*Location, error)
	CreateLocation(ctx context.Context, location *Location) error
	CreateLocationType(ctx context.Context, locationType *LocationType) error
	GetLocationType(ctx context.Context, locationTypeID string) (*LocationType, error)

	// Project operations
	GetProject(ctx context.Context, projectID string) (*Project, error)
	ListProjects(ctx context.Context) ([]*Project, error)
	CreateProject(ctx context.Context, project *Project) error

	// Segment rule operations
	GetSegmentRule(ctx context.Context, ruleID string) (*SegmentRule, error)
	ListSegmentRules(ctx context.Context) ([]*SegmentRule, error)
	CreateSegmentRule(ctx context.Context, rule *SegmentRule) error

	// Submission operations
	CreateSubmission(ctx context.Context, submission *Submission) error
	ListSubmissions(ctx context.Context, taskID string) ([]*Submission, error)
}
