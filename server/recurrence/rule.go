package recurrence

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/mo"
	"github.com/teambition/rrule-go"
)

// ErrInvalidRule is returned when a timing rule cannot be parsed
var ErrInvalidRule = errors.New("invalid timing rule")

const (
	dateTimeUTCLayout = "20060102T150405Z"
	dateTimeLayout    = "20060102T150405"
	dateLayout        = "20060102"
)

// Rule is a parsed timing rule: one RRULE plus any RDATE and EXDATE lines.
type Rule struct {
	text          string
	options       rrule.ROption
	set           *rrule.Set
	explicitStart bool
}

// Parse parses an RFC 5545 style timing rule such as
// "DTSTART:20180501T070000Z RRULE:FREQ=DAILY;COUNT=5 EXDATE:20180502T070000Z".
// Properties may be separated by spaces or newlines, and a bare "FREQ=..." is
// read as the RRULE. Floating values are read in loc. A rule without DTSTART
// starts at now, truncated to the second.
//
// RDATE and EXDATE are honoured. EXRULE and a second RRULE are rejected since
// the underlying set holds a single RRULE.
func Parse(text string, loc *time.Location, now time.Time) (*Rule, error) {
	if loc == nil {
		loc = time.UTC
	}

	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty rule", ErrInvalidRule)
	}

	var (
		body     string
		lines    []string
		dtstart  time.Time
		hasStart bool
	)
	for _, field := range fields {
		name, params, value := splitProperty(field)
		switch name {
		case "DTSTART":
			if hasStart {
				return nil, fmt.Errorf("%w: more than one DTSTART", ErrInvalidRule)
			}
			t, err := parseDateTime(value, params, loc)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
			}
			dtstart, hasStart = t, true
		case "RRULE":
			if body != "" {
				return nil, fmt.Errorf("%w: more than one RRULE", ErrInvalidRule)
			}
			body = value
			lines = append(lines, "RRULE:"+value)
		case "RDATE", "EXDATE":
			lines = append(lines, field)
		default:
			return nil, fmt.Errorf("%w: unsupported property %q", ErrInvalidRule, name)
		}
	}
	if body == "" {
		return nil, fmt.Errorf("%w: missing RRULE", ErrInvalidRule)
	}

	options, err := rrule.StrToROptionInLocation(body, loc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	set, err := rrule.StrSliceToRRuleSetInLoc(lines, loc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}

	if !hasStart {
		dtstart = now.In(loc)
	}
	dtstart = dtstart.Truncate(time.Second)
	options.Dtstart = dtstart
	set.DTStart(dtstart)

	return &Rule{
		text:          text,
		options:       *options,
		set:           set,
		explicitStart: hasStart,
	}, nil
}

// Validate reports whether text is a timing rule that Parse accepts.
func Validate(text string) bool {
	_, err := Parse(text, time.UTC, time.Now())
	return err == nil
}

// splitProperty splits "NAME;PARAM=x:VALUE" into its parts. A field with no
// property name, like "FREQ=DAILY;COUNT=5", is treated as an RRULE value.
func splitProperty(field string) (name string, params map[string]string, value string) {
	head, value, ok := strings.Cut(field, ":")
	if !ok {
		return "RRULE", nil, field
	}

	parts := strings.Split(head, ";")
	name = strings.ToUpper(parts[0])
	for _, p := range parts[1:] {
		k, v, _ := strings.Cut(p, "=")
		if params == nil {
			params = make(map[string]string)
		}
		params[strings.ToUpper(k)] = v
	}
	return name, params, value
}

// parseDateTime reads a DTSTART value. UTC ("Z") values stay in UTC, TZID
// values use that zone, and floating values use loc.
func parseDateTime(value string, params map[string]string, loc *time.Location) (time.Time, error) {
	if tzid := params["TZID"]; tzid != "" {
		tz, err := time.LoadLocation(tzid)
		if err != nil {
			return time.Time{}, fmt.Errorf("unknown TZID %q: %w", tzid, err)
		}
		loc = tz
	}

	if strings.EqualFold(params["VALUE"], "DATE") || len(value) == len(dateLayout) {
		return time.ParseInLocation(dateLayout, value, loc)
	}
	if strings.HasSuffix(value, "Z") {
		return time.Parse(dateTimeUTCLayout, value)
	}
	return time.ParseInLocation(dateTimeLayout, value, loc)
}

// Text returns the rule as it was given.
func (r *Rule) Text() string {
	return r.text
}

// Start returns DTSTART, or the parse time when the rule did not declare one.
func (r *Rule) Start() time.Time {
	return r.options.Dtstart
}

// HasExplicitStart reports whether the rule declared DTSTART. Expansions of
// rules without one depend on the clock.
func (r *Rule) HasExplicitStart() bool {
	return r.explicitStart
}

// Until returns the rule's UNTIL bound.
func (r *Rule) Until() mo.Option[time.Time] {
	if r.options.Until.IsZero() {
		return mo.None[time.Time]()
	}
	return mo.Some(r.options.Until)
}

// Count returns the rule's COUNT bound.
func (r *Rule) Count() mo.Option[int] {
	if r.options.Count <= 0 {
		return mo.None[int]()
	}
	return mo.Some(r.options.Count)
}

// Bounded reports whether the rule declares UNTIL or COUNT.
func (r *Rule) Bounded() bool {
	return r.Until().IsPresent() || r.Count().IsPresent()
}

// Iterator yields candidate date-times lazily, in chronological order. RDATE
// values are merged in and EXDATE values left out.
func (r *Rule) Iterator() rrule.Next {
	return r.set.Iterator()
}

// CountUpTo counts candidates, stopping once limit is reached. It is safe
// on rules that never end.
func (r *Rule) CountUpTo(limit int) int {
	next := r.Iterator()
	n := 0
	for n < limit {
		if _, ok := next(); !ok {
			break
		}
		n++
	}
	return n
}

// maxEndWalk bounds how many candidates last examines.
const maxEndWalk = 100_000

// last returns the final candidate of a bounded rule. It gives up on rules
// with more than maxEndWalk candidates.
func (r *Rule) last() (time.Time, bool) {
	if !r.Bounded() {
		return time.Time{}, false
	}

	var (
		last  time.Time
		found bool
	)
	next := r.Iterator()
	for n := 0; ; n++ {
		t, ok := next()
		if !ok {
			break
		}
		if n == maxEndWalk {
			return time.Time{}, false
		}
		last, found = t, true
	}
	return last, found
}
