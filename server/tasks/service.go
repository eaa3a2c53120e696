// Package tasks implements task write operations: input validation,
// TaskLocation replacement and occurrence regeneration.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cyp0633/libtasking/server/recurrence"
	"github.com/cyp0633/libtasking/server/storage"
	"github.com/cyp0633/libtasking/server/targets"
)

// Service manages tasks and keeps their occurrences in step with their schedules.
type Service struct {
	store    storage.Storage
	engine   *recurrence.Engine
	registry *targets.Registry
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger for the service
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock replaces time.Now for calendar timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a task service. A nil engine or registry gets the defaults.
func NewService(store storage.Storage, engine *recurrence.Engine, registry *targets.Registry, opts ...Option) *Service {
	if engine == nil {
		engine = recurrence.NewEngine()
	}
	if registry == nil {
		registry = targets.NewRegistry(nil)
	}

	s := &Service{
		store:    store,
		engine:   engine,
		registry: registry,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns a task by ID.
func (s *Service) Get(ctx context.Context, id string) (*storage.Task, error) {
	return s.store.GetTask(ctx, id)
}

// Create validates in, stores the task with its locations and generates its occurrences.
func (s *Service) Create(ctx context.Context, in TaskInput) (*storage.Task, error) {
	start, end, err := s.validate(ctx, in, nil)
	if err != nil {
		return nil, err
	}

	task := &storage.Task{}
	in.apply(task, start, end)
	if err := s.store.CreateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	if locations, ok := in.Locations.Get(); ok {
		if err := s.replaceLocations(ctx, task.ID, locations); err != nil {
			return nil, err
		}
	}

	if err := s.Regenerate(ctx, task); err != nil {
		return nil, err
	}

	s.logger.Info("task created", "task_id", task.ID, "name", task.Name)
	return task, nil
}

// Update replaces the task's fields with in and regenerates its occurrences.
// Start and End left nil keep their current values unless the timing rule
// supplies them.
func (s *Service) Update(ctx context.Context, id string, in TaskInput) (*storage.Task, error) {
	existing, err := s.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}

	start, end, err := s.validate(ctx, in, existing)
	if err != nil {
		return nil, err
	}

	task := *existing
	in.apply(&task, start, end)
	if err := s.store.UpdateTask(ctx, &task); err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}

	if locations, ok := in.Locations.Get(); ok {
		if err := s.replaceLocations(ctx, task.ID, locations); err != nil {
			return nil, err
		}
	}

	if err := s.Regenerate(ctx, &task); err != nil {
		return nil, err
	}

	s.logger.Info("task updated", "task_id", task.ID)
	return &task, nil
}

// Delete removes a task together with its locations and occurrences.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteTask(ctx, id); err != nil {
		return err
	}
	s.logger.Info("task deleted", "task_id", id)
	return nil
}

// Regenerate recomputes every occurrence of task, from its own timing rule and
// from each TaskLocation, and swaps them in for the stored ones in one step.
func (s *Service) Regenerate(ctx context.Context, task *storage.Task) error {
	occurrences := s.engine.Expand(recurrence.Request{Task: task, TimingRule: task.TimingRule})

	locations, err := s.store.ListTaskLocations(ctx, task.ID)
	if err != nil {
		return fmt.Errorf("failed to list task locations: %w", err)
	}
	for _, tl := range locations {
		occurrences = append(occurrences, s.engine.Expand(recurrence.LocationRequest(task, tl))...)
	}

	if err := s.store.ReplaceOccurrences(ctx, storage.OccurrenceFilter{TaskID: task.ID}, occurrences); err != nil {
		return fmt.Errorf("failed to replace occurrences: %w", err)
	}

	s.logger.Info("regenerated occurrences",
		"task_id", task.ID,
		"locations", len(locations),
		"occurrences", len(occurrences))
	return nil
}

// Occurrences lists a task's occurrences, optionally limited to a date range.
func (s *Service) Occurrences(ctx context.Context, id string, from, to *time.Time) ([]*storage.Occurrence, error) {
	if _, err := s.store.GetTask(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListOccurrences(ctx, storage.OccurrenceFilter{TaskID: id, DateFrom: from, DateTo: to})
}

// Descendants returns every task below id in the task tree, breadth first.
func (s *Service) Descendants(ctx context.Context, id string) ([]*storage.Task, error) {
	if _, err := s.store.GetTask(ctx, id); err != nil {
		return nil, err
	}

	var descendants []*storage.Task
	seen := map[string]bool{id: true}
	queue := []string{id}
	for len(queue) > 0 {
		parentID := queue[0]
		queue = queue[1:]

		children, err := s.store.ListTasks(ctx, &storage.TaskListOptions{ParentID: &parentID})
		if err != nil {
			return nil, fmt.Errorf("failed to list child tasks: %w", err)
		}
		for _, child := range children {
			if seen[child.ID] {
				continue
			}
			seen[child.ID] = true
			descendants = append(descendants, child)
			queue = append(queue, child.ID)
		}
	}
	return descendants, nil
}

// SubmissionCount returns how many submissions were made against a task.
func (s *Service) SubmissionCount(ctx context.Context, id string) (int, error) {
	submissions, err := s.store.ListSubmissions(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("failed to list submissions: %w", err)
	}
	return len(submissions), nil
}

// Describe labels an occurrence with its task and location names, e.g.
// "Survey at Kibera - 24th May 2018, 7 a.m. to 2:30 p.m.".
func (s *Service) Describe(ctx context.Context, occ *storage.Occurrence) (string, error) {
	task, err := s.store.GetTask(ctx, occ.TaskID)
	if err != nil {
		return "", err
	}

	var locationName string
	if occ.LocationID != nil {
		location, err := s.store.GetLocation(ctx, *occ.LocationID)
		if err != nil && !storage.IsNotFound(err) {
			return "", err
		}
		if location != nil {
			locationName = location.Name
		}
	}
	return storage.OccurrenceLabel(occ, task.Name, locationName), nil
}

// ExportCalendar writes a task's occurrences to w as an iCalendar stream.
func (s *Service) ExportCalendar(ctx context.Context, id string, w io.Writer) error {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return err
	}
	occurrences, err := s.store.ListOccurrences(ctx, storage.OccurrenceFilter{TaskID: id})
	if err != nil {
		return fmt.Errorf("failed to list occurrences: %w", err)
	}

	cal := recurrence.CalendarFromOccurrences(task, occurrences, s.engine.Config().Location, s.now())
	if err := recurrence.EncodeCalendar(w, cal); err != nil {
		return fmt.Errorf("failed to encode calendar: %w", err)
	}
	return nil
}

// ImportCalendar creates one task per VEVENT or VTODO in r. Tasks created
// before a failing component are kept.
func (s *Service) ImportCalendar(ctx context.Context, r io.Reader) ([]*storage.Task, error) {
	inputs, err := DecodeInputs(r, s.engine.Config().Location)
	if err != nil {
		return nil, err
	}

	created := make([]*storage.Task, 0, len(inputs))
	for _, in := range inputs {
		task, err := s.Create(ctx, in)
		if err != nil {
			return created, err
		}
		created = append(created, task)
	}
	return created, nil
}

func (s *Service) replaceLocations(ctx context.Context, taskID string, locations []LocationInput) error {
	tls := make([]*storage.TaskLocation, 0, len(locations))
	for _, in := range locations {
		tls = append(tls, in.taskLocation(taskID))
	}
	if err := s.store.ReplaceTaskLocations(ctx, taskID, tls); err != nil {
		return fmt.Errorf("failed to replace task locations: %w", err)
	}
	return nil
}

// validate checks in and resolves the task's start and end. existing is nil on create.
func (s *Service) validate(ctx context.Context, in TaskInput, existing *storage.Task) (time.Time, *time.Time, error) {
	if in.Name == "" {
		return time.Time{}, nil, invalid("name", MsgMissingName)
	}
	if in.Status != "" && !in.Status.Valid() {
		return time.Time{}, nil, invalid("status", MsgInvalidStatus)
	}

	if err := s.validateLocations(ctx, in); err != nil {
		return time.Time{}, nil, err
	}
	if err := s.validateParent(ctx, in, existing); err != nil {
		return time.Time{}, nil, err
	}
	if err := s.validateTarget(in.Target); err != nil {
		return time.Time{}, nil, err
	}

	return s.resolveWindow(in, existing)
}

func (s *Service) validateLocations(ctx context.Context, in TaskInput) error {
	locations, ok := in.Locations.Get()
	if !ok {
		return nil
	}
	for _, loc := range locations {
		if !s.engine.Validate(loc.TimingRule) {
			return invalid("locations", MsgInvalidRule)
		}
		if _, err := s.store.GetLocation(ctx, loc.LocationID); err != nil {
			if storage.IsNotFound(err) {
				return invalid("locations", MsgLocationNotFound)
			}
			return err
		}
	}
	return nil
}

func (s *Service) validateParent(ctx context.Context, in TaskInput, existing *storage.Task) error {
	if in.ParentID == nil {
		return nil
	}
	if existing != nil && *in.ParentID == existing.ID {
		return invalid("parent", MsgParentDoesNotExist)
	}
	if _, err := s.store.GetTask(ctx, *in.ParentID); err != nil {
		if storage.IsNotFound(err) {
			return invalid("parent", MsgParentDoesNotExist)
		}
		return err
	}
	return nil
}

func (s *Service) validateTarget(ref targets.Reference) error {
	err := s.registry.Validate(ref)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, targets.ErrTargetDoesNotExist):
		return invalid("target_content_type", MsgTargetDoesNotExist)
	case errors.Is(err, targets.ErrTargetNotAllowed):
		return invalid("target_content_type", MsgTargetNotAllowed)
	default:
		return err
	}
}

// resolveWindow fills in start and end from the timing rule when they were
// not given. On update a missing start or end falls back to the stored one.
func (s *Service) resolveWindow(in TaskInput, existing *storage.Task) (time.Time, *time.Time, error) {
	var rule *recurrence.Rule
	if in.TimingRule != "" {
		r, err := s.engine.ParseRule(in.TimingRule)
		if err != nil {
			return time.Time{}, nil, invalid("timing_rule", MsgInvalidRule)
		}
		rule = r
	}

	var start time.Time
	switch {
	case in.Start != nil:
		start = *in.Start
	case rule != nil && (existing == nil || rule.HasExplicitStart()):
		start = recurrence.StartOf(rule)
	case existing != nil:
		start = existing.Start
	default:
		return time.Time{}, nil, invalid("start", MsgMissingStart)
	}

	end := in.End
	storedEnd := false
	if end == nil && rule != nil {
		if e, ok := recurrence.EndOf(rule).Get(); ok {
			end = &e
		}
	}
	if end == nil && existing != nil && existing.End != nil {
		e := *existing.End
		end, storedEnd = &e, true
	}

	if end != nil && end.Before(start) {
		if storedEnd {
			return time.Time{}, nil, invalid("start", MsgStartAfterEnd)
		}
		return time.Time{}, nil, invalid("end", MsgEndBeforeStart)
	}
	return start, end, nil
}
