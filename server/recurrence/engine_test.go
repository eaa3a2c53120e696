package recurrence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cyp0633/libtasking/server/storage"
	"github.com/cyp0633/libtasking/server/storage/memory"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2018, 5, 24, 7, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func newTestEngine(config EngineConfig) *Engine {
	return NewEngineWithConfig(config, WithClock(fixedClock))
}

func TestEngine_Generate_Scenarios(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		rule      string
		start     mo.Option[storage.TimeOfDay]
		end       mo.Option[storage.TimeOfDay]
		wantCount int
		wantStart storage.TimeOfDay
		wantEnd   storage.TimeOfDay
	}{
		{
			name:      "count-bounded rule starting now",
			rule:      "RRULE:FREQ=DAILY;INTERVAL=10;COUNT=5",
			wantCount: 5,
			wantStart: storage.NewTimeOfDay(7, 0, 0, 0),
			wantEnd:   storage.EndOfDay,
		},
		{
			name:      "count above the cap",
			rule:      "RRULE:FREQ=DAILY;INTERVAL=10;COUNT=5000",
			wantCount: DefaultMaxOccurrences,
			wantStart: storage.NewTimeOfDay(7, 0, 0, 0),
			wantEnd:   storage.EndOfDay,
		},
		{
			name:      "location overrides apply to every occurrence",
			rule:      "RRULE:FREQ=DAILY;INTERVAL=10;COUNT=5",
			start:     mo.Some(storage.MustParseTimeOfDay("07:00:00")),
			end:       mo.Some(storage.MustParseTimeOfDay("21:00:00")),
			wantCount: 5,
			wantStart: storage.NewTimeOfDay(7, 0, 0, 0),
			wantEnd:   storage.NewTimeOfDay(21, 0, 0, 0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.New()
			task := storage.NewMockTask("task-1", "Survey", tt.rule, fixedNow)
			engine := newTestEngine(DefaultEngineConfig)

			occurrences, err := engine.Generate(ctx, store, Request{
				Task:       task,
				TimingRule: tt.rule,
				Start:      tt.start,
				End:        tt.end,
			})
			require.NoError(t, err)
			require.Len(t, occurrences, tt.wantCount)

			for _, occ := range occurrences {
				assert.Equal(t, "task-1", occ.TaskID)
				assert.Equal(t, tt.wantStart, occ.StartTime)
				assert.Equal(t, tt.wantEnd, occ.EndTime)
			}
		})
	}
}

func TestEngine_Expand_LastOccurrenceSkippedWhenItWouldBeEmpty(t *testing.T) {
	rule := "DTSTART:20180501T210000Z RRULE:FREQ=YEARLY;BYDAY=SU;BYSETPOS=1;BYMONTH=1;UNTIL=20280521T210000Z"
	engine := newTestEngine(DefaultEngineConfig)

	parsed, err := engine.ParseRule(rule)
	require.NoError(t, err)
	naive := parsed.CountUpTo(DefaultMaxOccurrences)
	require.Equal(t, 10, naive)

	occurrences := engine.Expand(Request{
		Task:       storage.NewMockTask("task-1", "Yearly", rule, fixedNow),
		TimingRule: rule,
	})
	require.Len(t, occurrences, naive-1)

	assert.Equal(t, time.Date(2019, 1, 6, 0, 0, 0, 0, time.UTC), occurrences[0].Date)
	assert.Equal(t, time.Date(2027, 1, 3, 0, 0, 0, 0, time.UTC), occurrences[len(occurrences)-1].Date)
	for _, occ := range occurrences {
		assert.Equal(t, storage.NewTimeOfDay(21, 0, 0, 0), occ.StartTime)
		assert.Equal(t, storage.EndOfDay, occ.EndTime)
	}
}

func TestEngine_Expand_DayBoundary(t *testing.T) {
	rule := "DTSTART:20240101T090000Z RRULE:FREQ=DAILY;UNTIL=20240105T170000Z"
	engine := newTestEngine(DefaultEngineConfig)

	occurrences := engine.Expand(Request{
		Task:       storage.NewMockTask("task-1", "Daily", rule, fixedNow),
		TimingRule: rule,
	})
	require.Len(t, occurrences, 5)

	for i, occ := range occurrences {
		assert.Equal(t, time.Date(2024, 1, 1+i, 0, 0, 0, 0, time.UTC), occ.Date)
		assert.Equal(t, storage.NewTimeOfDay(9, 0, 0, 0), occ.StartTime)
		if i < len(occurrences)-1 {
			assert.Equal(t, storage.EndOfDay, occ.EndTime, "occurrence %d", i)
		} else {
			assert.Equal(t, storage.NewTimeOfDay(17, 0, 0, 0), occ.EndTime)
		}
	}
}

func TestEngine_Expand_CountRuleEndsAtEndOfDay(t *testing.T) {
	rule := "DTSTART:20240101T090000Z\nRRULE:FREQ=DAILY;COUNT=5"
	engine := newTestEngine(DefaultEngineConfig)

	occurrences := engine.Expand(Request{
		Task:       storage.NewMockTask("task-1", "Daily", rule, fixedNow),
		TimingRule: rule,
	})
	require.Len(t, occurrences, 5)
	assert.Equal(t, storage.EndOfDay, occurrences[4].EndTime)
}

func TestEngine_Expand_StopsAtTaskEnd(t *testing.T) {
	rule := "DTSTART:20240101T090000Z RRULE:FREQ=DAILY;COUNT=10"
	task := storage.NewMockTask("task-1", "Daily", rule, fixedNow)
	end := time.Date(2024, 1, 3, 12, 0, 0, 0, time.UTC)
	task.End = &end

	occurrences := newTestEngine(DefaultEngineConfig).Expand(Request{Task: task, TimingRule: rule})
	require.Len(t, occurrences, 3)
	assert.Equal(t, time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), occurrences[2].Date)
	// The cut-off occurrence is not the rule's last, so it runs all day.
	assert.Equal(t, storage.EndOfDay, occurrences[2].EndTime)
}

func TestEngine_Expand_UnboundedRuleUsesTaskEndTime(t *testing.T) {
	rule := "DTSTART:20240101T090000Z RRULE:FREQ=DAILY"
	task := storage.NewMockTask("task-1", "Daily", rule, fixedNow)
	end := time.Date(2030, 1, 1, 15, 30, 0, 0, time.UTC)
	task.End = &end

	engine := newTestEngine(EngineConfig{MaxOccurrences: 3})
	occurrences := engine.Expand(Request{Task: task, TimingRule: rule})
	require.Len(t, occurrences, 3)
	assert.Equal(t, storage.EndOfDay, occurrences[0].EndTime)
	assert.Equal(t, storage.NewTimeOfDay(15, 30, 0, 0), occurrences[2].EndTime)
}

func TestEngine_Expand_ConfiguredCap(t *testing.T) {
	rule := "RRULE:FREQ=WEEKLY"
	engine := newTestEngine(EngineConfig{MaxOccurrences: 12})

	occurrences := engine.Expand(Request{
		Task:       storage.NewMockTask("task-1", "Weekly", rule, fixedNow),
		TimingRule: rule,
	})
	assert.Len(t, occurrences, 12)
}

func TestEngine_Expand_DegenerateOverride(t *testing.T) {
	rule := "RRULE:FREQ=DAILY;COUNT=5"
	engine := newTestEngine(DefaultEngineConfig)

	occurrences := engine.Expand(Request{
		Task:       storage.NewMockTask("task-1", "Empty", rule, fixedNow),
		TimingRule: rule,
		Start:      mo.Some(storage.NewTimeOfDay(10, 0, 0, 0)),
		End:        mo.Some(storage.NewTimeOfDay(10, 0, 0, 0)),
	})
	assert.Empty(t, occurrences)
}

func TestEngine_Expand_FloatingStartUsesEngineLocation(t *testing.T) {
	nairobi := time.FixedZone("EAT", 3*60*60)
	engine := newTestEngine(EngineConfig{Location: nairobi})

	floating := "DTSTART:20180524T070000 RRULE:FREQ=DAILY;COUNT=2"
	occurrences := engine.Expand(Request{
		Task:       storage.NewMockTask("task-1", "Floating", floating, fixedNow),
		TimingRule: floating,
	})
	require.Len(t, occurrences, 2)
	assert.Equal(t, storage.NewTimeOfDay(7, 0, 0, 0), occurrences[0].StartTime)

	utc := "DTSTART:20180524T070000Z RRULE:FREQ=DAILY;COUNT=2"
	occurrences = engine.Expand(Request{
		Task:       storage.NewMockTask("task-2", "UTC", utc, fixedNow),
		TimingRule: utc,
	})
	require.Len(t, occurrences, 2)
	assert.Equal(t, storage.NewTimeOfDay(7, 0, 0, 0), occurrences[0].StartTime)
}

func TestEngine_Generate_InvalidRuleIsSilent(t *testing.T) {
	rules := []string{
		"",
		"   ",
		"not a rule",
		"RRULE:FREQ=SOMETIMES",
		"DTSTART:20240101T090000Z",
		"EXRULE:FREQ=WEEKLY RRULE:FREQ=DAILY",
		"RRULE:FREQ=DAILY RRULE:FREQ=WEEKLY",
	}

	for _, rule := range rules {
		t.Run(rule, func(t *testing.T) {
			store := new(storage.MockStorage)
			engine := newTestEngine(DefaultEngineConfig)

			occurrences, err := engine.Generate(context.Background(), store, Request{
				Task:       storage.NewMockTask("task-1", "Invalid", rule, fixedNow),
				TimingRule: rule,
			})
			require.NoError(t, err)
			assert.NotNil(t, occurrences)
			assert.Empty(t, occurrences)
			store.AssertExpectations(t)
		})
	}
}

func TestEngine_Generate_ReturnsAllOccurrencesOfTask(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	engine := newTestEngine(DefaultEngineConfig)
	task := storage.NewMockTask("task-1", "Survey", "", fixedNow)

	locationID := "loc-1"
	tl := storage.NewMockTaskLocation("tl-1", task.ID, locationID, "RRULE:FREQ=DAILY;COUNT=2", "08:00", "12:00")
	byLocation, err := engine.GenerateForLocation(ctx, store, task, tl)
	require.NoError(t, err)
	require.Len(t, byLocation, 2)
	for _, occ := range byLocation {
		require.NotNil(t, occ.LocationID)
		assert.Equal(t, locationID, *occ.LocationID)
	}

	all, err := engine.Generate(ctx, store, Request{Task: task, TimingRule: "RRULE:FREQ=DAILY;COUNT=3"})
	require.NoError(t, err)
	assert.Len(t, all, 5)

	other, err := store.ListOccurrences(ctx, storage.OccurrenceFilter{TaskID: "task-2"})
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestEngine_Generate_BulkCreate(t *testing.T) {
	ctx := context.Background()
	task := storage.NewMockTask("task-1", "Survey", "", fixedNow)
	rule := "DTSTART:20240101T090000Z RRULE:FREQ=DAILY;COUNT=4"

	t.Run("single insert", func(t *testing.T) {
		store := new(storage.MockStorage)
		store.On("CreateOccurrences", ctx, mock.MatchedBy(func(occs []*storage.Occurrence) bool {
			return len(occs) == 4
		})).Return(nil).Once()
		store.On("ListOccurrences", ctx, storage.OccurrenceFilter{TaskID: "task-1"}).
			Return([]*storage.Occurrence{}, nil).Once()

		_, err := newTestEngine(DefaultEngineConfig).Generate(ctx, store, Request{Task: task, TimingRule: rule})
		require.NoError(t, err)
		store.AssertExpectations(t)
	})

	t.Run("one insert per occurrence", func(t *testing.T) {
		store := new(storage.MockStorage)
		store.On("CreateOccurrences", ctx, mock.MatchedBy(func(occs []*storage.Occurrence) bool {
			return len(occs) == 1
		})).Return(nil).Times(4)
		store.On("ListOccurrences", ctx, storage.OccurrenceFilter{TaskID: "task-1"}).
			Return([]*storage.Occurrence{}, nil).Once()

		config := DefaultEngineConfig
		config.BulkCreate = false
		_, err := newTestEngine(config).Generate(ctx, store, Request{Task: task, TimingRule: rule})
		require.NoError(t, err)
		store.AssertExpectations(t)
	})
}

func TestEngine_Generate_PropagatesStorageErrors(t *testing.T) {
	ctx := context.Background()
	task := storage.NewMockTask("task-1", "Survey", "", fixedNow)
	rule := "RRULE:FREQ=DAILY;COUNT=2"
	errDisk := errors.New("disk full")

	store := new(storage.MockStorage)
	store.On("CreateOccurrences", ctx, mock.Anything).Return(errDisk)

	occurrences, err := newTestEngine(DefaultEngineConfig).Generate(ctx, store, Request{Task: task, TimingRule: rule})
	require.Error(t, err)
	assert.ErrorIs(t, err, errDisk)
	assert.Nil(t, occurrences)
	store.AssertNotCalled(t, "ListOccurrences", mock.Anything, mock.Anything)
}

func TestEngine_Generate_RequiresTask(t *testing.T) {
	store := new(storage.MockStorage)
	_, err := NewEngine().Generate(context.Background(), store, Request{TimingRule: "RRULE:FREQ=DAILY"})
	assert.ErrorIs(t, err, ErrMissingTask)
}

func TestEngine_Expand_Cached(t *testing.T) {
	engine := newTestEngine(CachedEngineConfig)
	defer engine.Close()

	rule := "DTSTART:20240101T090000Z RRULE:FREQ=DAILY;COUNT=3"
	req := Request{Task: storage.NewMockTask("task-1", "Cached", rule, fixedNow), TimingRule: rule}

	first := engine.Expand(req)
	second := engine.Expand(req)
	require.Len(t, second, 3)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, engine.CacheStats().TotalEntries)

	// Results of rules without DTSTART depend on the clock.
	engine.Expand(Request{Task: req.Task, TimingRule: "RRULE:FREQ=DAILY;COUNT=3"})
	assert.Equal(t, 1, engine.CacheStats().TotalEntries)
}

func TestEngine_Validate(t *testing.T) {
	engine := NewEngine()
	assert.True(t, engine.Validate("RRULE:FREQ=DAILY;COUNT=5"))
	assert.False(t, engine.Validate("RRULE:FREQ=DAILY;COUNT=five"))
	assert.True(t, Validate("FREQ=WEEKLY;BYDAY=MO,WE"))
	assert.False(t, Validate(""))
}

func TestEngine_Expand_ExceptionAndExtraDates(t *testing.T) {
	rule := "DTSTART:20240101T090000Z\nRRULE:FREQ=DAILY;COUNT=4\nEXDATE:20240102T090000Z\nRDATE:20240108T090000Z"
	engine := newTestEngine(DefaultEngineConfig)

	occurrences := engine.Expand(Request{
		Task:       storage.NewMockTask("task-1", "Daily", rule, fixedNow),
		TimingRule: rule,
	})
	require.Len(t, occurrences, 4)

	var dates []time.Time
	for _, occ := range occurrences {
		dates = append(dates, occ.Date)
	}
	assert.Equal(t, []time.Time{
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC),
	}, dates)
	assert.Equal(t, storage.EndOfDay, occurrences[3].EndTime)
}

func TestEngine_Expand_HugeCountStopsAtCap(t *testing.T) {
	rule := "DTSTART:20240101T090000Z RRULE:FREQ=SECONDLY;COUNT=100000000"
	engine := newTestEngine(EngineConfig{MaxOccurrences: 5})

	occurrences := engine.Expand(Request{
		Task:       storage.NewMockTask("task-1", "Busy", rule, fixedNow),
		TimingRule: rule,
	})
	require.Len(t, occurrences, 5)
	assert.Equal(t, storage.EndOfDay, occurrences[4].EndTime)
}
