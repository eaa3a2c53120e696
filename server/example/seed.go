package main

import (
	"context"
	"fmt"
	"time"

	"github.com/cyp0633/libtasking/server/storage"
	"github.com/cyp0633/libtasking/server/tasks"
	"github.com/cyp0633/libtasking/server/targets"
	"github.com/samber/mo"
)

// seed stores a small location tree and one scheduled task, and returns the task.
func seed(ctx context.Context, store storage.Storage, svc *tasks.Service) (*storage.Task, error) {
	settlement := &storage.LocationType{Name: "Settlement"}
	if err := store.CreateLocationType(ctx, settlement); err != nil {
		return nil, fmt.Errorf("failed to create location type: %w", err)
	}

	nairobi := &storage.Location{Name: "Nairobi", Country: "KE", LocationTypeID: &settlement.ID}
	if err := store.CreateLocation(ctx, nairobi); err != nil {
		return nil, fmt.Errorf("failed to create location: %w", err)
	}
	kibera := &storage.Location{Name: "Kibera", Country: "KE", ParentID: &nairobi.ID, LocationTypeID: &settlement.ID}
	if err := store.CreateLocation(ctx, kibera); err != nil {
		return nil, fmt.Errorf("failed to create location: %w", err)
	}

	project := &storage.Project{Name: "Water Access"}
	if err := store.CreateProject(ctx, project); err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	start := time.Now().UTC().Truncate(24 * time.Hour).Add(7 * time.Hour)
	rule := fmt.Sprintf("DTSTART:%s\nRRULE:FREQ=WEEKLY;BYDAY=MO,WE,FR;COUNT=6", start.Format("20060102T150405Z"))

	return svc.Create(ctx, tasks.TaskInput{
		Name:        "Water point survey",
		Description: "Record flow rate and queue length at each water point.",
		TimingRule:  rule,
		Status:      storage.StatusActive,
		Target:      targets.Reference{AppLabel: "tasking", Model: "project", ObjectID: project.ID},
		Locations: mo.Some([]tasks.LocationInput{{
			LocationID: kibera.ID,
			TimingRule: rule,
			Start:      storage.NewTimeOfDay(8, 0, 0, 0),
			End:        storage.NewTimeOfDay(11, 30, 0, 0),
		}}),
	})
}
