package recurrence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cyp0633/libtasking/server/storage"
)

// ErrMissingTask is returned by Generate when the request has no persisted task.
var ErrMissingTask = errors.New("recurrence: request has no task")

// Engine expands timing rules into task occurrences.
type Engine struct {
	config EngineConfig
	cache  *ExpansionCache
	logger *slog.Logger
	now    func() time.Time
}

// NewEngine creates a new recurrence engine instance
func NewEngine(opts ...Option) *Engine {
	return NewEngineWithConfig(DefaultEngineConfig, opts...)
}

// Config returns the configuration the engine was built with.
func (e *Engine) Config() EngineConfig {
	return e.config
}

// ParseRule parses text in the engine's location and clock.
func (e *Engine) ParseRule(text string) (*Rule, error) {
	return Parse(text, e.config.location(), e.now())
}

// Validate reports whether text is a timing rule the engine can expand.
func (e *Engine) Validate(text string) bool {
	_, err := e.ParseRule(text)
	return err == nil
}

// Expand computes the occurrences of req without persisting them. An
// unparseable rule yields no occurrences.
func (e *Engine) Expand(req Request) []*storage.Occurrence {
	occurrences, _ := e.expand(req)
	return occurrences
}

// Generate expands req, stores the result and returns every occurrence the
// store holds for the task afterwards. An unparseable rule is not an error:
// nothing is written and the result is empty.
func (e *Engine) Generate(ctx context.Context, store storage.OccurrenceStore, req Request) ([]*storage.Occurrence, error) {
	if req.Task == nil || req.Task.ID == "" {
		return nil, ErrMissingTask
	}

	occurrences, ok := e.expand(req)
	if !ok {
		return []*storage.Occurrence{}, nil
	}

	if err := e.persist(ctx, store, occurrences); err != nil {
		return nil, fmt.Errorf("failed to create occurrences: %w", err)
	}

	all, err := store.ListOccurrences(ctx, storage.OccurrenceFilter{TaskID: req.Task.ID})
	if err != nil {
		return nil, fmt.Errorf("failed to list occurrences: %w", err)
	}

	e.logger.Debug("generated occurrences",
		"task_id", req.Task.ID,
		"created", len(occurrences),
		"total", len(all))
	return all, nil
}

// GenerateForLocation generates occurrences from a task's per-location
// schedule, using its start and end times for every occurrence.
func (e *Engine) GenerateForLocation(ctx context.Context, store storage.OccurrenceStore, task *storage.Task, tl *storage.TaskLocation) ([]*storage.Occurrence, error) {
	return e.Generate(ctx, store, LocationRequest(task, tl))
}

// Close releases the expansion cache, if any.
func (e *Engine) Close() {
	if e.cache != nil {
		e.cache.Close()
	}
}

// CacheStats reports expansion cache usage. It is zero when caching is off.
func (e *Engine) CacheStats() CacheStats {
	if e.cache == nil {
		return CacheStats{}
	}
	return e.cache.Stats()
}

func (e *Engine) persist(ctx context.Context, store storage.OccurrenceStore, occurrences []*storage.Occurrence) error {
	if len(occurrences) == 0 {
		return nil
	}
	if e.config.BulkCreate {
		return store.CreateOccurrences(ctx, occurrences)
	}
	for _, occ := range occurrences {
		if err := store.CreateOccurrences(ctx, []*storage.Occurrence{occ}); err != nil {
			return err
		}
	}
	return nil
}

// expand reports false when the rule could not be parsed.
func (e *Engine) expand(req Request) ([]*storage.Occurrence, bool) {
	rule, err := e.ParseRule(req.TimingRule)
	if err != nil {
		e.logger.Debug("not generating occurrences for invalid timing rule",
			"task_id", req.taskID(),
			"error", err)
		return nil, false
	}

	var (
		slots []slot
		key   string
		hit   bool
	)
	if e.cache != nil && rule.HasExplicitStart() {
		key = cacheKey(req, e.config)
		slots, hit = e.cache.Get(key)
	}
	if !hit {
		slots = e.expandRule(rule, req)
		if key != "" {
			e.cache.Set(key, slots)
		}
	}

	occurrences := make([]*storage.Occurrence, 0, len(slots))
	for _, s := range slots {
		occurrences = append(occurrences, &storage.Occurrence{
			TaskID:     req.taskID(),
			LocationID: copyString(req.LocationID),
			Date:       s.Date,
			StartTime:  s.Start,
			EndTime:    s.End,
		})
	}
	return occurrences, true
}

// expandRule walks the rule's candidates. Every occurrence but the last ends
// at end of day; the last ends at the resolved end time. Occurrences whose
// end is not after their start are dropped.
func (e *Engine) expandRule(rule *Rule, req Request) []slot {
	limit := e.config.maxOccurrences()
	count := rule.CountUpTo(limit + 1)
	if count > limit {
		e.logger.Debug("timing rule exceeds occurrence limit",
			"task_id", req.taskID(),
			"limit", limit)
		count = limit
	}

	startTime := StartTimeFor(rule, req.Start)
	endTime := EndTimeFor(req.Task, rule, req.End)

	var taskEnd *time.Time
	if req.Task != nil {
		taskEnd = req.Task.End
	}

	// At most count candidates are examined, so unbounded rules stop at the cap
	// even when every candidate is dropped.
	slots := make([]slot, 0, count)
	next := rule.Iterator()
	for examined := 0; examined < count; examined++ {
		candidate, ok := next()
		if !ok {
			break
		}
		date := storage.DateOf(candidate)
		if taskEnd != nil && date.After(storage.DateOf(taskEnd.In(candidate.Location()))) {
			break
		}

		end := storage.EndOfDay
		if override, ok := req.End.Get(); ok {
			end = override
		} else if len(slots)+1 == count {
			end = endTime.OrElse(storage.EndOfDay)
		}

		if !end.After(startTime) {
			e.logger.Debug("skipping occurrence that ends before it starts",
				"task_id", req.taskID(),
				"date", date.Format(time.DateOnly),
				"start_time", startTime.String(),
				"end_time", end.String())
			continue
		}

		slots = append(slots, slot{Date: date, Start: startTime, End: end})
	}
	return slots
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
