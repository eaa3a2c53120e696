package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/cyp0633/libtasking/server/config"
	"github.com/cyp0633/libtasking/server/recurrence"
	"github.com/cyp0633/libtasking/server/storage/sqlstore"
	"github.com/cyp0633/libtasking/server/tasks"
)

const configPath = "tasking.yaml" // optional; missing file means defaults

func main() {
	ctx := context.Background()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	store, err := sqlstore.Open(cfg.DatabaseDSN, sqlstore.WithLogger(logger))
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	engine := recurrence.NewEngineWithConfig(cfg.EngineConfig(), recurrence.WithLogger(logger))
	defer engine.Close()

	svc := tasks.NewService(store, engine, cfg.Registry(), tasks.WithLogger(logger))

	task, err := seed(ctx, store, svc)
	if err != nil {
		log.Fatalf("Failed to seed sample data: %v", err)
	}

	occurrences, err := svc.Occurrences(ctx, task.ID, nil, nil)
	if err != nil {
		log.Fatalf("Failed to list occurrences: %v", err)
	}
	for _, occ := range occurrences {
		label, err := svc.Describe(ctx, occ)
		if err != nil {
			log.Fatalf("Failed to describe occurrence: %v", err)
		}
		fmt.Fprintln(os.Stderr, label)
	}

	if err := svc.ExportCalendar(ctx, task.ID, os.Stdout); err != nil {
		log.Fatalf("Failed to export calendar: %v", err)
	}
}
