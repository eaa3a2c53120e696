package storage

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockStorage implements the Storage interface for testing
type MockStorage struct {
	mock.Mock
}

// ListOccurrences implements the OccurrenceStore interface
func (m *MockStorage) ListOccurrences(ctx context.Context, filter OccurrenceFilter) ([]*Occurrence, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Occurrence), args.Error(1)
}

// CreateOccurrences implements the OccurrenceStore interface
func (m *MockStorage) CreateOccurrences(ctx context.Context, occurrences []*Occurrence) error {
	args := m.Called(ctx, occurrences)
	return args.Error(0)
}

// DeleteOccurrences implements the OccurrenceStore interface
func (m *MockStorage) DeleteOccurrences(ctx context.Context, filter OccurrenceFilter) (int, error) {
	args := m.Called(ctx, filter)
	return args.Int(0), args.Error(1)
}

// ReplaceOccurrences implements the OccurrenceStore interface
func (m *MockStorage) ReplaceOccurrences(ctx context.Context, filter OccurrenceFilter, occurrences []*Occurrence) error {
	args := m.Called(ctx, filter, occurrences)
	return args.Error(0)
}

func (m *MockStorage) GetTask(ctx context.Context, taskID string) (*Task, error) {
	args := m.Called(ctx, taskID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Task), args.Error(1)
}

func (m *MockStorage) ListTasks(ctx context.Context, opts *TaskListOptions) ([]*Task, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Task), args.Error(1)
}

func (m *MockStorage) CreateTask(ctx context.Context, task *Task) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}

func (m *MockStorage) UpdateTask(ctx context.Context, task *Task) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}

func (m *MockStorage) DeleteTask(ctx context.Context, taskID string) error {
	args := m.Called(ctx, taskID)
	return args.Error(0)
}

func (m *MockStorage) ListTaskLocations(ctx context.Context, taskID string) ([]*TaskLocation, error) {
	args := m.Called(ctx, taskID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*TaskLocation), args.Error(1)
}

func (m *MockStorage) ReplaceTaskLocations(ctx context.Context, taskID string, locations []*TaskLocation) error {
	args := m.Called(ctx, taskID, locations)
	return args.Error(0)
}

func (m *MockStorage) GetLocation(ctx context.Context, locationID string) (*Location, error) {
	args := m.Called(ctx, locationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Location), args.Error(1)
}

func (m *MockStorage) ListLocations(ctx context.Context) ([]*Location, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Location), args.Error(1)
}

func (m *MockStorage) CreateLocation(ctx context.Context, location *Location) error {
	args := m.Called(ctx, location)
	return args.Error(0)
}

func (m *MockStorage) CreateLocationType(ctx context.Context, locationType *LocationType) error {
	args := m.Called(ctx, locationType)
	return args.Error(0)
}

func (m *MockStorage) GetLocationType(ctx context.Context, locationTypeID string) (*LocationType, error) {
	args := m.Called(ctx, locationTypeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*LocationType), args.Error(1)
}

func (m *MockStorage) GetProject(ctx context.Context, projectID string) (*Project, error) {
	args := m.Called(ctx, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Project), args.Error(1)
}

func (m *MockStorage) ListProjects(ctx context.Context) ([]*Project, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Project), args.Error(1)
}

func (m *MockStorage) CreateProject(ctx context.Context, project *Project) error {
	args := m.Called(ctx, project)
	return args.Error(0)
}

func (m *MockStorage) GetSegmentRule(ctx context.Context, ruleID string) (*SegmentRule, error) {
	args := m.Called(ctx, ruleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*SegmentRule), args.Error(1)
}

func (m *MockStorage) ListSegmentRules(ctx context.Context) ([]*SegmentRule, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*SegmentRule), args.Error(1)
}

func (m *MockStorage) CreateSegmentRule(ctx context.Context, rule *SegmentRule) error {
	args := m.Called(ctx, rule)
	return args.Error(0)
}

func (m *MockStorage) CreateSubmission(ctx context.Context, submission *Submission) error {
	args := m.Called(ctx, submission)
	return args.Error(0)
}

func (m *MockStorage) ListSubmissions(ctx context.Context, taskID string) ([]*Submission, error) {
	args := m.Called(ctx, taskID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Submission), args.Error(1)
}

var _ Storage = (*MockStorage)(nil)

// --- Helper methods for creating test data ---

// NewMockTask creates a test Task with a timing rule and no end.
func NewMockTask(id, name, timingRule string, start time.Time) *Task {
	return &Task{
		ID:         id,
		Name:       name,
		Start:      start,
		TimingRule: timingRule,
		Status:     StatusActive,
	}
}

// NewMockTaskLocation creates a test TaskLocation.
func NewMockTaskLocation(id, taskID, locationID, timingRule, start, end string) *TaskLocation {
	return &TaskLocation{
		ID:         id,
		TaskID:     taskID,
		LocationID: locationID,
		TimingRule: timingRule,
		Start:      MustParseTimeOfDay(start),
		End:        MustParseTimeOfDay(end),
	}
}
