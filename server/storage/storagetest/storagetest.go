// Package storagetest checks storage.Storage implementations against the
// behavior the tasking service relies on.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cyp0633/libtasking/server/storage"
	"github.com/cyp0633/libtasking/server/targets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty store. It is called once per subtest.
type Factory func(t *testing.T) storage.Storage

// Run exercises every Storage operation against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("Tasks", func(t *testing.T) { testTasks(t, newStore(t)) })
	t.Run("DeleteTask", func(t *testing.T) { testDeleteTask(t, newStore(t)) })
	t.Run("TaskLocations", func(t *testing.T) { testTaskLocations(t, newStore(t)) })
	t.Run("Occurrences", func(t *testing.T) { testOccurrences(t, newStore(t)) })
	t.Run("ReplaceOccurrences", func(t *testing.T) { testReplaceOccurrences(t, newStore(t)) })
	t.Run("Locations", func(t *testing.T) { testLocations(t, newStore(t)) })
	t.Run("Projects", func(t *testing.T) { testProjects(t, newStore(t)) })
	t.Run("SegmentRules", func(t *testing.T) { testSegmentRules(t, newStore(t)) })
	t.Run("Submissions", func(t *testing.T) { testSubmissions(t, newStore(t)) })
}

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func errorType(err error) storage.ErrorType {
	var se *storage.Error
	if errors.As(err, &se) {
		return se.Type
	}
	return ""
}

func ptr[T any](v T) *T { return &v }

func mustCreateTask(t *testing.T, s storage.Storage, task *storage.Task) *storage.Task {
	t.Helper()
	require.NoError(t, s.CreateTask(context.Background(), task))
	return task
}

func mustCreateLocation(t *testing.T, s storage.Storage, location *storage.Location) *storage.Location {
	t.Helper()
	require.NoError(t, s.CreateLocation(context.Background(), location))
	return location
}

func occurrence(taskID string, locationID *string, date time.Time, start, end string) *storage.Occurrence {
	return &storage.Occurrence{
		TaskID:     taskID,
		LocationID: locationID,
		Date:       date,
		StartTime:  storage.MustParseTimeOfDay(start),
		EndTime:    storage.MustParseTimeOfDay(end),
	}
}

func testTasks(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	end := time.Date(2024, 2, 1, 17, 0, 0, 0, time.UTC)
	estimate := 90 * time.Minute
	task := mustCreateTask(t, s, &storage.Task{
		Name:           "Water survey",
		Start:          time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		End:            &end,
		TimingRule:     "RRULE:FREQ=DAILY;COUNT=5",
		EstimatedTime:  &estimate,
		Target:         targets.Reference{AppLabel: "tasking", Model: "project", ObjectID: "p-1"},
		SegmentRuleIDs: []string{"rule-1", "rule-2"},
	})
	require.NotEmpty(t, task.ID)

	got, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Water survey", got.Name)
	assert.Equal(t, storage.StatusDraft, got.Status)
	assert.True(t, task.Start.Equal(got.Start))
	require.NotNil(t, got.End)
	assert.True(t, end.Equal(*got.End))
	assert.Equal(t, estimate, *got.EstimatedTime)
	assert.Equal(t, task.Target, got.Target)
	assert.Equal(t, []string{"rule-1", "rule-2"}, got.SegmentRuleIDs)
	assert.False(t, got.Created.IsZero())

	_, err = s.GetTask(ctx, "missing")
	assert.True(t, storage.IsNotFound(err))

	err = s.CreateTask(ctx, &storage.Task{ID: task.ID, Name: "Duplicate", Start: task.Start})
	assert.Equal(t, storage.ErrAlreadyExists, errorType(err))

	child := mustCreateTask(t, s, &storage.Task{
		Name:     "Child",
		ParentID: &task.ID,
		Start:    time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC),
		Status:   storage.StatusActive,
	})

	all, err := s.ListTasks(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, child.ID, all[0].ID, "tasks are ordered by start")

	roots, err := s.ListTasks(ctx, &storage.TaskListOptions{RootsOnly: true})
	require.NoError(t, err)
	require.Len(t, roots, 1)
	assert.Equal(t, task.ID, roots[0].ID)

	children, err := s.ListTasks(ctx, &storage.TaskListOptions{ParentID: &task.ID})
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, child.ID, children[0].ID)

	active, err := s.ListTasks(ctx, &storage.TaskListOptions{Status: storage.StatusActive})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, child.ID, active[0].ID)

	// Updates can clear optional fields
	update := *got
	update.Name = "Renamed"
	update.End = nil
	update.TimingRule = ""
	require.NoError(t, s.UpdateTask(ctx, &update))

	got, err = s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
	assert.Nil(t, got.End)
	assert.Empty(t, got.TimingRule)

	err = s.UpdateTask(ctx, &storage.Task{ID: "missing", Name: "x"})
	assert.True(t, storage.IsNotFound(err))
}

func testDeleteTask(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	parent := mustCreateTask(t, s, &storage.Task{Name: "Parent", Start: day(1)})
	child := mustCreateTask(t, s, &storage.Task{Name: "Child", ParentID: &parent.ID, Start: day(1)})
	other := mustCreateTask(t, s, &storage.Task{Name: "Other", Start: day(1)})
	location := mustCreateLocation(t, s, &storage.Location{Name: "Kanyakwar", Country: "KE"})

	require.NoError(t, s.ReplaceTaskLocations(ctx, parent.ID, []*storage.TaskLocation{
		{LocationID: location.ID, TimingRule: "RRULE:FREQ=DAILY", Start: storage.NewTimeOfDay(8, 0, 0, 0), End: storage.NewTimeOfDay(9, 0, 0, 0)},
	}))
	require.NoError(t, s.CreateOccurrences(ctx, []*storage.Occurrence{
		occurrence(parent.ID, nil, day(1), "08:00", "09:00"),
		occurrence(other.ID, nil, day(1), "08:00", "09:00"),
	}))

	require.NoError(t, s.DeleteTask(ctx, parent.ID))

	_, err := s.GetTask(ctx, parent.ID)
	assert.True(t, storage.IsNotFound(err))

	orphan, err := s.GetTask(ctx, child.ID)
	require.NoError(t, err)
	assert.Nil(t, orphan.ParentID)

	tls, err := s.ListTaskLocations(ctx, parent.ID)
	require.NoError(t, err)
	assert.Empty(t, tls)

	occs, err := s.ListOccurrences(ctx, storage.OccurrenceFilter{})
	require.NoError(t, err)
	require.Len(t, occs, 1)
	assert.Equal(t, other.ID, occs[0].TaskID)

	assert.True(t, storage.IsNotFound(s.DeleteTask(ctx, parent.ID)))
}

func testTaskLocations(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	task := mustCreateTask(t, s, &storage.Task{Name: "Survey", Start: day(1)})
	a := mustCreateLocation(t, s, &storage.Location{ID: "loc-a", Name: "A", Country: "KE"})
	b := mustCreateLocation(t, s, &storage.Location{ID: "loc-b", Name: "B", Country: "KE"})

	first := []*storage.TaskLocation{
		{LocationID: b.ID, TimingRule: "RRULE:FREQ=DAILY", Start: storage.NewTimeOfDay(7, 0, 0, 0), End: storage.NewTimeOfDay(21, 0, 0, 0)},
		{LocationID: a.ID, TimingRule: "RRULE:FREQ=WEEKLY", Start: storage.NewTimeOfDay(9, 0, 0, 0), End: storage.NewTimeOfDay(10, 0, 0, 0)},
	}
	require.NoError(t, s.ReplaceTaskLocations(ctx, task.ID, first))

	got, err := s.ListTaskLocations(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, a.ID, got[0].LocationID)
	assert.Equal(t, task.ID, got[0].TaskID)
	assert.NotEmpty(t, got[0].ID)
	assert.Equal(t, storage.NewTimeOfDay(21, 0, 0, 0), got[1].End)

	require.NoError(t, s.ReplaceTaskLocations(ctx, task.ID, []*storage.TaskLocation{
		{LocationID: a.ID, TimingRule: "RRULE:FREQ=MONTHLY", Start: storage.NewTimeOfDay(6, 0, 0, 0), End: storage.NewTimeOfDay(7, 0, 0, 0)},
	}))
	got, err = s.ListTaskLocations(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "RRULE:FREQ=MONTHLY", got[0].TimingRule)

	err = s.ReplaceTaskLocations(ctx, task.ID, []*storage.TaskLocation{{LocationID: "nowhere"}})
	assert.True(t, storage.IsNotFound(err))
	got, err = s.ListTaskLocations(ctx, task.ID)
	require.NoError(t, err)
	assert.Len(t, got, 1, "a rejected replacement keeps the old set")

	assert.True(t, storage.IsNotFound(s.ReplaceTaskLocations(ctx, "missing", nil)))

	require.NoError(t, s.ReplaceTaskLocations(ctx, task.ID, nil))
	got, err = s.ListTaskLocations(ctx, task.ID)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testOccurrences(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	loc := ptr("loc-1")

	require.NoError(t, s.CreateOccurrences(ctx, []*storage.Occurrence{
		occurrence("task-1", loc, day(2), "07:00", "21:00"),
		occurrence("task-1", nil, day(3), "09:00", "23:59:59.999999"),
		occurrence("task-1", nil, day(1), "09:00", "23:59:59.999999"),
		occurrence("task-2", nil, day(1), "09:00", "10:00"),
	}))
	require.NoError(t, s.CreateOccurrences(ctx, nil))

	got, err := s.ListOccurrences(ctx, storage.OccurrenceFilter{TaskID: "task-1"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	// Occurrences without a location sort first
	assert.Nil(t, got[0].LocationID)
	assert.True(t, day(1).Equal(got[0].Date))
	assert.True(t, day(3).Equal(got[1].Date))
	require.NotNil(t, got[2].LocationID)
	assert.Equal(t, "loc-1", *got[2].LocationID)
	assert.Equal(t, storage.EndOfDay, got[0].EndTime)
	for _, occ := range got {
		assert.NotEmpty(t, occ.ID)
	}

	byLocation, err := s.ListOccurrences(ctx, storage.OccurrenceFilter{LocationID: loc})
	require.NoError(t, err)
	assert.Len(t, byLocation, 1)

	window, err := s.ListOccurrences(ctx, storage.OccurrenceFilter{
		TaskID:   "task-1",
		DateFrom: ptr(time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)),
		DateTo:   ptr(day(3)),
	})
	require.NoError(t, err)
	assert.Len(t, window, 2)

	err = s.CreateOccurrences(ctx, []*storage.Occurrence{
		occurrence("task-3", nil, day(1), "09:00", "10:00"),
		occurrence("task-3", nil, day(2), "10:00", "10:00"),
	})
	assert.Equal(t, storage.ErrInvalidInput, errorType(err))
	rejected, err := s.ListOccurrences(ctx, storage.OccurrenceFilter{TaskID: "task-3"})
	require.NoError(t, err)
	assert.Empty(t, rejected, "an invalid batch is not partially written")

	n, err := s.DeleteOccurrences(ctx, storage.OccurrenceFilter{TaskID: "task-1", LocationID: loc})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.DeleteOccurrences(ctx, storage.OccurrenceFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func testReplaceOccurrences(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	filter := storage.OccurrenceFilter{TaskID: "task-1"}

	require.NoError(t, s.CreateOccurrences(ctx, []*storage.Occurrence{
		occurrence("task-1", nil, day(1), "09:00", "10:00"),
		occurrence("task-1", nil, day(2), "09:00", "10:00"),
		occurrence("task-2", nil, day(1), "09:00", "10:00"),
	}))

	require.NoError(t, s.ReplaceOccurrences(ctx, filter, []*storage.Occurrence{
		occurrence("task-1", nil, day(5), "11:00", "12:00"),
	}))
	got, err := s.ListOccurrences(ctx, filter)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, day(5).Equal(got[0].Date))

	err = s.ReplaceOccurrences(ctx, filter, []*storage.Occurrence{
		occurrence("task-1", nil, day(6), "12:00", "11:00"),
	})
	require.Error(t, err)
	got, err = s.ListOccurrences(ctx, filter)
	require.NoError(t, err)
	require.Len(t, got, 1, "a failed replacement keeps the old rows")
	assert.True(t, day(5).Equal(got[0].Date))

	require.NoError(t, s.ReplaceOccurrences(ctx, filter, nil))
	got, err = s.ListOccurrences(ctx, filter)
	require.NoError(t, err)
	assert.Empty(t, got)

	others, err := s.ListOccurrences(ctx, storage.OccurrenceFilter{TaskID: "task-2"})
	require.NoError(t, err)
	assert.Len(t, others, 1)
}

func testLocations(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	lt := &storage.LocationType{Name: "Waterfront"}
	require.NoError(t, s.CreateLocationType(ctx, lt))
	gotType, err := s.GetLocationType(ctx, lt.ID)
	require.NoError(t, err)
	assert.Equal(t, "Waterfront", gotType.Name)

	parent := mustCreateLocation(t, s, &storage.Location{Name: "Nairobi", Country: "KE", LocationTypeID: &lt.ID})
	mustCreateLocation(t, s, &storage.Location{Name: "Kampala", Country: "UG"})
	mustCreateLocation(t, s, &storage.Location{
		Name:      "Kibera",
		Country:   "KE",
		ParentID:  &parent.ID,
		Latitude:  ptr(-1.3133),
		Longitude: ptr(36.7892),
	})

	err = s.CreateLocation(ctx, &storage.Location{Name: "Orphan", ParentID: ptr("missing")})
	assert.True(t, storage.IsNotFound(err))

	all, err := s.ListLocations(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"Kibera", "Nairobi", "Kampala"}, []string{all[0].Name, all[1].Name, all[2].Name})

	got, err := s.GetLocation(ctx, all[0].ID)
	require.NoError(t, err)
	require.NotNil(t, got.Latitude)
	assert.InDelta(t, -1.3133, *got.Latitude, 1e-9)

	_, err = s.GetLocation(ctx, "missing")
	assert.True(t, storage.IsNotFound(err))
	_, err = s.GetLocationType(ctx, "missing")
	assert.True(t, storage.IsNotFound(err))
}

func testProjects(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	require.NoError(t, s.CreateProject(ctx, &storage.Project{Name: "Water", TaskIDs: []string{"t-1"}}))
	project := &storage.Project{
		Name:   "Census",
		Target: targets.Reference{AppLabel: "auth", Model: "group", ObjectID: "g-1"},
	}
	require.NoError(t, s.CreateProject(ctx, project))

	got, err := s.GetProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, project.Target, got.Target)

	all, err := s.ListProjects(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Census", all[0].Name)
	assert.Equal(t, []string{"t-1"}, all[1].TaskIDs)

	_, err = s.GetProject(ctx, "missing")
	assert.True(t, storage.IsNotFound(err))
}

func testSegmentRules(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	rule := &storage.SegmentRule{
		Name:             "Task six",
		TargetAppLabel:   "tasking",
		TargetModel:      "task",
		TargetField:      "id",
		TargetFieldValue: "6",
		Active:           true,
	}
	require.NoError(t, s.CreateSegmentRule(ctx, rule))

	got, err := s.GetSegmentRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, targets.TypeTask, got.TargetType())
	assert.True(t, got.Active)

	all, err := s.ListSegmentRules(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = s.GetSegmentRule(ctx, "missing")
	assert.True(t, storage.IsNotFound(err))
}

func testSubmissions(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	task := mustCreateTask(t, s, &storage.Task{Name: "Survey", Start: day(1)})
	other := mustCreateTask(t, s, &storage.Task{Name: "Other", Start: day(1)})

	for i, taskID := range []string{task.ID, task.ID, other.ID} {
		require.NoError(t, s.CreateSubmission(ctx, &storage.Submission{
			TaskID:         taskID,
			UserID:         "user-1",
			SubmissionTime: day(10 - i),
			Valid:          true,
		}))
	}

	err := s.CreateSubmission(ctx, &storage.Submission{TaskID: "missing", UserID: "user-1", SubmissionTime: day(1)})
	assert.True(t, storage.IsNotFound(err))

	got, err := s.ListSubmissions(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, day(9).Equal(got[0].SubmissionTime))

	all, err := s.ListSubmissions(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
