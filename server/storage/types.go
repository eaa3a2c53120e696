package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/cyp0633/libtasking/server/targets"
)

// Error types
type ErrorType string

const (
	ErrNotFound      ErrorType = "not_found"
	ErrAlreadyExists ErrorType = "already_exists"
	ErrInvalidInput  ErrorType = "invalid_input"
)

// Error represents a storage-related error
type Error struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a storage error of type ErrNotFound.
func IsNotFound(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Type == ErrNotFound
}

// TaskStatus is the lifecycle state of a Task.
type TaskStatus string

const (
	StatusActive      TaskStatus = "a"
	StatusDeactivated TaskStatus = "b"
	StatusExpired     TaskStatus = "c"
	StatusDraft       TaskStatus = "d"
	StatusScheduled   TaskStatus = "s"
	StatusArchived    TaskStatus = "e"
)

// Valid reports whether s is one of the known statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusActive, StatusDeactivated, StatusExpired, StatusDraft, StatusScheduled, StatusArchived:
		return true
	}
	return false
}

// String provides a human-readable representation of the status.
func (s TaskStatus) String() string {
	switch s {
	case StatusActive:
		return "Active"
	case StatusDeactivated:
		return "Deactivated"
	case StatusExpired:
		return "Expired"
	case StatusDraft:
		return "Draft"
	case StatusScheduled:
		return "Scheduled"
	case StatusArchived:
		return "Archived"
	default:
		return "Unknown"
	}
}

// Task is a unit of work. Tasks form a tree through ParentID.
type Task struct {
	ID       string    `gorm:"primarykey;size:36" json:"id"`
	Created  time.Time `gorm:"autoCreateTime" json:"created"`
	Modified time.Time `gorm:"autoUpdateTime" json:"modified"`
	ParentID *string   `gorm:"size:36;index" json:"parent,omitempty"`

	Name        string `gorm:"size:255;not null" json:"name"`
	Description string `json:"description"`

	Start time.Time  `gorm:"not null;index" json:"start"`
	End   *time.Time `json:"end,omitempty"`
	// TimingRule holds the RRULE text. Empty means the task has no schedule.
	TimingRule string `json:"timing_rule,omitempty"`

	// Nil targets mean there is no maximum.
	TotalSubmissionTarget *int `json:"total_submission_target,omitempty"`
	UserSubmissionTarget  *int `json:"user_submission_target,omitempty"`

	Status        TaskStatus     `gorm:"size:1;not null;default:'d'" json:"status"`
	EstimatedTime *time.Duration `json:"estimated_time,omitempty"`

	Target         targets.Reference `gorm:"embedded;embeddedPrefix:target_" json:"target"`
	SegmentRuleIDs []string          `gorm:"serializer:json" json:"segment_rules,omitempty"`
}

// TableName returns the table name for Task.
func (Task) TableName() string {
	return "tasks"
}

// TaskLocation says that a task runs at a location on its own sub-schedule.
// Start and End are times of day applied to every occurrence at that location.
type TaskLocation struct {
	ID         string    `gorm:"primarykey;size:36" json:"id"`
	Created    time.Time `gorm:"autoCreateTime" json:"created"`
	Modified   time.Time `gorm:"autoUpdateTime" json:"modified"`
	TaskID     string    `gorm:"size:36;not null;index" json:"task"`
	LocationID string    `gorm:"size:36;not null;index" json:"location"`
	TimingRule string    `gorm:"not null" json:"timing_rule"`
	Start      TimeOfDay `gorm:"size:15;not null" json:"start"`
	End        TimeOfDay `gorm:"size:15;not null" json:"end"`
}

// TableName returns the table name for TaskLocation.
func (TaskLocation) TableName() string {
	return "task_locations"
}

// Occurrence is one concrete, dated instance of a task's schedule.
// Occurrences are derived data: they are only ever created in bulk by the
// recurrence engine and deleted in bulk when the schedule changes.
type Occurrence struct {
	ID         string    `gorm:"primarykey;size:36" json:"id"`
	Created    time.Time `gorm:"autoCreateTime" json:"created"`
	Modified   time.Time `gorm:"autoUpdateTime" json:"modified"`
	TaskID     string    `gorm:"size:36;not null;index" json:"task"`
	LocationID *string   `gorm:"size:36;index" json:"location,omitempty"`
	// Date is the calendar date at midnight UTC; see DateOf.
	Date      time.Time `gorm:"not null;index" json:"date"`
	StartTime TimeOfDay `gorm:"size:15;not null" json:"start_time"`
	EndTime   TimeOfDay `gorm:"size:15;not null" json:"end_time"`
}

// TableName returns the table name for Occurrence.
func (Occurrence) TableName() string {
	return "task_occurrences"
}

// StartAt returns the instant the occurrence starts, read in loc.
func (o *Occurrence) StartAt(loc *time.Location) time.Time {
	return o.StartTime.On(o.Date, loc)
}

// EndAt returns the instant the occurrence ends, read in loc.
func (o *Occurrence) EndAt(loc *time.Location) time.Time {
	return o.EndTime.On(o.Date, loc)
}

// LocationType classifies locations, e.g. "Waterfront".
type LocationType struct {
	ID       string    `gorm:"primarykey;size:36" json:"id"`
	Created  time.Time `gorm:"autoCreateTime" json:"created"`
	Modified time.Time `gorm:"autoUpdateTime" json:"modified"`
	Name     string    `gorm:"size:255;not null" json:"name"`
}

// TableName returns the table name for LocationType.
func (LocationType) TableName() string {
	return "location_types"
}

// Location is a place where tasks run. Locations form a tree through ParentID.
type Location struct {
	ID             string    `gorm:"primarykey;size:36" json:"id"`
	Created        time.Time `gorm:"autoCreateTime" json:"created"`
	Modified       time.Time `gorm:"autoUpdateTime" json:"modified"`
	ParentID       *string   `gorm:"size:36;index" json:"parent,omitempty"`
	Name           string    `gorm:"size:255;not null" json:"name"`
	Country        string    `gorm:"size:2" json:"country"`
	Latitude       *float64  `json:"latitude,omitempty"`
	Longitude      *float64  `json:"longitude,omitempty"`
	Radius         *float64  `json:"radius,omitempty"`
	Description    string    `json:"description"`
	LocationTypeID *string   `gorm:"size:36" json:"location_type,omitempty"`
}

// TableName returns the table name for Location.
func (Location) TableName() string {
	return "locations"
}

// Project groups tasks.
type Project struct {
	ID       string            `gorm:"primarykey;size:36" json:"id"`
	Created  time.Time         `gorm:"autoCreateTime" json:"created"`
	Modified time.Time         `gorm:"autoUpdateTime" json:"modified"`
	Name     string            `gorm:"size:255;not null" json:"name"`
	Target   targets.Reference `gorm:"embedded;embeddedPrefix:target_" json:"target"`
	TaskIDs  []string          `gorm:"serializer:json" json:"tasks,omitempty"`
}

// TableName returns the table name for Project.
func (Project) TableName() string {
	return "projects"
}

// SegmentRule is a dynamic filter over the target kind, e.g. target
// tasking.task, field "id", value "6".
type SegmentRule struct {
	ID               string    `gorm:"primarykey;size:36" json:"id"`
	Created          time.Time `gorm:"autoCreateTime" json:"created"`
	Modified         time.Time `gorm:"autoUpdateTime" json:"modified"`
	Name             string    `gorm:"size:255;not null" json:"name"`
	Description      string    `json:"description"`
	TargetAppLabel   string    `gorm:"size:100" json:"target_app_label"`
	TargetModel      string    `gorm:"size:100" json:"target_model"`
	TargetField      string    `gorm:"size:255;index" json:"target_field"`
	TargetFieldValue string    `gorm:"size:255" json:"target_field_value"`
	Active           bool      `json:"active"`
}

// TableName returns the table name for SegmentRule.
func (SegmentRule) TableName() string {
	return "segment_rules"
}

// TargetType returns the kind of entity this rule filters.
func (r *SegmentRule) TargetType() targets.TargetType {
	return targets.TargetType{AppLabel: r.TargetAppLabel, Model: r.TargetModel}
}

// Submission records a user's work on a task.
type Submission struct {
	ID             string            `gorm:"primarykey;size:36" json:"id"`
	Created        time.Time         `gorm:"autoCreateTime" json:"created"`
	Modified       time.Time         `gorm:"autoUpdateTime" json:"modified"`
	TaskID         string            `gorm:"size:36;not null;index" json:"task"`
	LocationID     *string           `gorm:"size:36" json:"location,omitempty"`
	UserID         string            `gorm:"size:36;not null" json:"user"`
	SubmissionTime time.Time         `gorm:"not null" json:"submission_time"`
	Valid          bool              `json:"valid"`
	Approved       bool              `json:"approved"`
	Comments       string            `json:"comments"`
	Target         targets.Reference `gorm:"embedded;embeddedPrefix:target_" json:"target"`
}

// TableName returns the table name for Submission.
func (Submission) TableName() string {
	return "submissions"
}

// TaskListOptions filters ListTasks. Zero values do not filter.
type TaskListOptions struct {
	// ParentID selects direct children of a task.
	ParentID *string
	// RootsOnly selects tasks without a parent. Ignored when ParentID is set.
	RootsOnly bool
	Status    TaskStatus
}

// OccurrenceFilter selects occurrences for list and delete operations.
// Zero values do not filter; DateFrom and DateTo are inclusive.
type OccurrenceFilter struct {
	TaskID     string
	LocationID *string
	DateFrom   *time.Time
	DateTo     *time.Time
}

// Matches reports whether o satisfies the filter.
func (f OccurrenceFilter) Matches(o *Occurrence) bool {
	if f.TaskID != "" && o.TaskID != f.TaskID {
		return false
	}
	if f.LocationID != nil && (o.LocationID == nil || *o.LocationID != *f.LocationID) {
		return false
	}
	if f.DateFrom != nil && o.Date.Before(DateOf(*f.DateFrom)) {
		return false
	}
	if f.DateTo != nil && o.Date.After(DateOf(*f.DateTo)) {
		return false
	}
	return true
}
