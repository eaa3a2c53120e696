package recurrence

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/cyp0633/libtasking/server/storage"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	newYork, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	tests := []struct {
		name      string
		text      string
		wantStart time.Time
		wantCount mo.Option[int]
		explicit  bool
	}{
		{
			name:      "newline separated",
			text:      "DTSTART:20180501T070000Z\nRRULE:FREQ=DAILY;COUNT=5",
			wantStart: time.Date(2018, 5, 1, 7, 0, 0, 0, time.UTC),
			wantCount: mo.Some(5),
			explicit:  true,
		},
		{
			name:      "space separated",
			text:      "DTSTART:20180501T070000Z RRULE:FREQ=WEEKLY",
			wantStart: time.Date(2018, 5, 1, 7, 0, 0, 0, time.UTC),
			wantCount: mo.None[int](),
			explicit:  true,
		},
		{
			name:      "bare rule body",
			text:      "FREQ=DAILY;COUNT=3",
			wantStart: time.Date(2018, 5, 24, 7, 0, 0, 0, time.UTC),
			wantCount: mo.Some(3),
		},
		{
			name:      "TZID start",
			text:      "DTSTART;TZID=America/New_York:20240101T090000 RRULE:FREQ=DAILY;COUNT=2",
			wantStart: time.Date(2024, 1, 1, 9, 0, 0, 0, newYork),
			wantCount: mo.Some(2),
			explicit:  true,
		},
		{
			name:      "date start",
			text:      "DTSTART;VALUE=DATE:20240101 RRULE:FREQ=DAILY;COUNT=2",
			wantStart: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			wantCount: mo.Some(2),
			explicit:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, err := Parse(tt.text, time.UTC, fixedNow)
			require.NoError(t, err)
			assert.True(t, tt.wantStart.Equal(rule.Start()), "start %s, want %s", rule.Start(), tt.wantStart)
			assert.Equal(t, tt.wantCount, rule.Count())
			assert.Equal(t, tt.explicit, rule.HasExplicitStart())
			assert.Equal(t, tt.text, rule.Text())
		})
	}
}

func TestParse_StartDefaultsToNowInLocation(t *testing.T) {
	loc := time.FixedZone("EAT", 3*60*60)
	now := time.Date(2024, 3, 10, 11, 30, 15, 500_000_000, time.UTC)

	rule, err := Parse("RRULE:FREQ=DAILY", loc, now)
	require.NoError(t, err)

	assert.Equal(t, loc, rule.Start().Location())
	assert.Equal(t, storage.NewTimeOfDay(14, 30, 15, 0), storage.TimeOfDayOf(rule.Start()))
	assert.False(t, rule.Bounded())
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"whitespace", " \n\t"},
		{"no rrule", "DTSTART:20240101T090000Z"},
		{"two rrules", "RRULE:FREQ=DAILY RRULE:FREQ=WEEKLY"},
		{"two starts", "DTSTART:20240101T090000Z DTSTART:20240102T090000Z RRULE:FREQ=DAILY"},
		{"unsupported property", "EXRULE:FREQ=WEEKLY RRULE:FREQ=DAILY"},
		{"bad exdate", "EXDATE:soon RRULE:FREQ=DAILY"},
		{"bad rdate zone", "RDATE;TZID=Mars/Olympus:20240101T090000 RRULE:FREQ=DAILY"},
		{"unknown frequency", "RRULE:FREQ=SOMETIMES"},
		{"missing frequency", "RRULE:COUNT=3"},
		{"bad start", "DTSTART:yesterday RRULE:FREQ=DAILY"},
		{"unknown zone", "DTSTART;TZID=Mars/Olympus:20240101T090000 RRULE:FREQ=DAILY"},
		{"empty option", "RRULE:FREQ=DAILY;COUNT="},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.text, time.UTC, fixedNow)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidRule)
		})
	}
}

func TestRule_CountUpTo(t *testing.T) {
	rule, err := Parse("DTSTART:20240101T090000Z RRULE:FREQ=DAILY;COUNT=5", time.UTC, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, 5, rule.CountUpTo(10))
	assert.Equal(t, 3, rule.CountUpTo(3))

	unbounded, err := Parse("DTSTART:20240101T090000Z RRULE:FREQ=HOURLY", time.UTC, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, 42, unbounded.CountUpTo(42))
}

func TestRule_ExceptionAndExtraDates(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 1, d, 9, 0, 0, 0, time.UTC) }

	tests := []struct {
		name    string
		text    string
		want    []time.Time
		wantEnd time.Time
	}{
		{
			name:    "exdate removes a candidate",
			text:    "DTSTART:20240101T090000Z\nRRULE:FREQ=DAILY;COUNT=5\nEXDATE:20240102T090000Z,20240104T090000Z",
			want:    []time.Time{day(1), day(3), day(5)},
			wantEnd: time.Date(2024, 1, 5, 23, 59, 59, 999_999_000, time.UTC),
		},
		{
			name:    "rdate adds a candidate",
			text:    "DTSTART:20240101T090000Z RRULE:FREQ=DAILY;COUNT=2 RDATE:20240110T090000Z",
			want:    []time.Time{day(1), day(2), day(10)},
			wantEnd: time.Date(2024, 1, 10, 23, 59, 59, 999_999_000, time.UTC),
		},
		{
			name:    "excluded last candidate moves the end",
			text:    "DTSTART:20240101T090000Z RRULE:FREQ=DAILY;COUNT=3 EXDATE:20240103T090000Z",
			want:    []time.Time{day(1), day(2)},
			wantEnd: time.Date(2024, 1, 2, 23, 59, 59, 999_999_000, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, Validate(tt.text))

			rule, err := Parse(tt.text, time.UTC, fixedNow)
			require.NoError(t, err)

			var got []time.Time
			next := rule.Iterator()
			for c, ok := next(); ok; c, ok = next() {
				got = append(got, c)
			}
			require.Len(t, got, len(tt.want))
			for i := range tt.want {
				assert.True(t, tt.want[i].Equal(got[i]), "candidate %d is %s, want %s", i, got[i], tt.want[i])
			}

			end, ok := EndOf(rule).Get()
			require.True(t, ok)
			assert.True(t, tt.wantEnd.Equal(end), "end %s, want %s", end, tt.wantEnd)
		})
	}
}

func TestEndOf_HugeCountIsBounded(t *testing.T) {
	rule, err := Parse("DTSTART:20240101T090000Z RRULE:FREQ=MINUTELY;COUNT=100000000", time.UTC, fixedNow)
	require.NoError(t, err)

	assert.False(t, EndOf(rule).IsPresent())
	assert.Equal(t, mo.Some(storage.EndOfDay), EndTimeFor(nil, rule, mo.None[storage.TimeOfDay]()))
}

func TestStartOfEndOf(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantEnd mo.Option[time.Time]
	}{
		{
			name:    "until",
			text:    "DTSTART:20240101T090000Z RRULE:FREQ=DAILY;UNTIL=20240105T170000Z",
			wantEnd: mo.Some(time.Date(2024, 1, 5, 17, 0, 0, 0, time.UTC)),
		},
		{
			name:    "count pins the last day to end of day",
			text:    "DTSTART:20240101T090000Z RRULE:FREQ=DAILY;COUNT=5",
			wantEnd: mo.Some(time.Date(2024, 1, 5, 23, 59, 59, 999_999_000, time.UTC)),
		},
		{
			name:    "unbounded",
			text:    "DTSTART:20240101T090000Z RRULE:FREQ=DAILY",
			wantEnd: mo.None[time.Time](),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, err := Parse(tt.text, time.UTC, fixedNow)
			require.NoError(t, err)

			assert.True(t, time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC).Equal(StartOf(rule)))

			end := EndOf(rule)
			require.Equal(t, tt.wantEnd.IsPresent(), end.IsPresent())
			if want, ok := tt.wantEnd.Get(); ok {
				assert.True(t, want.Equal(end.MustGet()), "end %s, want %s", end.MustGet(), want)
			}
		})
	}
}

func TestTimeResolver(t *testing.T) {
	countRule, err := Parse("RRULE:FREQ=DAILY;COUNT=5", time.UTC, fixedNow)
	require.NoError(t, err)
	untilRule, err := Parse("DTSTART:20240101T090000Z RRULE:FREQ=DAILY;UNTIL=20240105T170000Z", time.UTC, fixedNow)
	require.NoError(t, err)
	openRule, err := Parse("DTSTART:20240101T090000Z RRULE:FREQ=DAILY", time.UTC, fixedNow)
	require.NoError(t, err)

	noon := storage.NewTimeOfDay(12, 0, 0, 0)

	t.Run("start", func(t *testing.T) {
		assert.Equal(t, storage.NewTimeOfDay(7, 0, 0, 0), StartTimeFor(countRule, mo.None[storage.TimeOfDay]()))
		assert.Equal(t, storage.NewTimeOfDay(9, 0, 0, 0), StartTimeFor(untilRule, mo.None[storage.TimeOfDay]()))
		assert.Equal(t, noon, StartTimeFor(untilRule, mo.Some(noon)))
	})

	t.Run("end", func(t *testing.T) {
		task := storage.NewMockTask("task-1", "Resolver", "", fixedNow)

		assert.Equal(t, mo.Some(noon), EndTimeFor(task, untilRule, mo.Some(noon)))
		assert.Equal(t, mo.Some(storage.NewTimeOfDay(17, 0, 0, 0)), EndTimeFor(task, untilRule, mo.None[storage.TimeOfDay]()))
		assert.Equal(t, mo.Some(storage.EndOfDay), EndTimeFor(task, countRule, mo.None[storage.TimeOfDay]()))
		assert.Equal(t, mo.None[storage.TimeOfDay](), EndTimeFor(task, openRule, mo.None[storage.TimeOfDay]()))

		taskEnd := time.Date(2024, 6, 1, 18, 45, 0, 0, time.UTC)
		task.End = &taskEnd
		assert.Equal(t, mo.Some(storage.NewTimeOfDay(18, 45, 0, 0)), EndTimeFor(task, openRule, mo.None[storage.TimeOfDay]()))
	})
}
