/*
Package server groups the tasking packages: recurring tasks whose schedules are
expanded into concrete, dated occurrences.

# Basic Usage

	cfg, err := config.Load("tasking.yaml")
	if err != nil {
		log.Fatal(err)
	}
	store, err := sqlstore.Open(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal(err)
	}
	engine := recurrence.NewEngineWithConfig(cfg.EngineConfig())
	defer engine.Close()

	svc := tasks.NewService(store, engine, cfg.Registry())
	task, err := svc.Create(ctx, tasks.TaskInput{
		Name:       "Water point survey",
		TimingRule: "DTSTART:20180524T070000Z\nRRULE:FREQ=DAILY;COUNT=5",
	})

Creating or updating a task replaces all of its occurrences: one set from the
task's own timing rule and one per TaskLocation.

# Timing Rules

A timing rule is RRULE text with an optional DTSTART line and any RDATE or
EXDATE lines:

	DTSTART;TZID=Africa/Nairobi:20180524T070000
	RRULE:FREQ=WEEKLY;BYDAY=MO,WE;UNTIL=20180630T170000Z
	EXDATE;TZID=Africa/Nairobi:20180528T070000

Without DTSTART the rule starts now. Each occurrence ends at 23:59:59.999999
except the last, which ends at the rule's end time, or the task's if the rule
has none. A TaskLocation's start and end times override both. Expansion stops
at recurrence.DefaultMaxOccurrences unless configured otherwise.

# Custom Storage Backend

Implement storage.Storage. storage/memory is a map based implementation for
tests; storage/sqlstore runs on gorm. storage/storagetest holds the behaviour
both are checked against:

	func TestMyStore(t *testing.T) {
		storagetest.Run(t, func(t *testing.T) storage.Storage {
			return newMyStore(t)
		})
	}

# Error Handling

Storage errors use storage.Error with one of:

	const (
		ErrNotFound      ErrorType = "not_found"
		ErrAlreadyExists ErrorType = "already_exists"
		ErrInvalidInput  ErrorType = "invalid_input"
	)

Rejected input is reported as *tasks.ValidationError naming the field.

See server/example for a complete program.
*/
package server
