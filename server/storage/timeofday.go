package storage

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock time with no date, kept at microsecond precision.
// It is the elapsed time since midnight, so ordinary comparison operators apply.
type TimeOfDay time.Duration

// EndOfDay is 23:59:59.999999, the last representable time of day.
const EndOfDay = TimeOfDay(24*time.Hour - time.Microsecond)

// NewTimeOfDay builds a time of day. Out-of-range values wrap around midnight.
func NewTimeOfDay(hour, min, sec, nsec int) TimeOfDay {
	d := time.Duration(hour)*time.Hour +
		time.Duration(min)*time.Minute +
		time.Duration(sec)*time.Second +
		time.Duration(nsec)
	return normalize(d)
}

// TimeOfDayOf returns the clock reading of t in t's own location.
func TimeOfDayOf(t time.Time) TimeOfDay {
	return NewTimeOfDay(t.Hour(), t.Minute(), t.Second(), t.Nanosecond())
}

func normalize(d time.Duration) TimeOfDay {
	d = d.Truncate(time.Microsecond) % (24 * time.Hour)
	if d < 0 {
		d += 24 * time.Hour
	}
	return TimeOfDay(d)
}

// ParseTimeOfDay accepts "15:04", "15:04:05" and "15:04:05.999999".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	min, err := strconv.Atoi(parts[1])
	if err != nil || min < 0 || min > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}

	sec, nsec := 0, 0
	if len(parts) == 3 {
		secStr, fracStr, hasFrac := strings.Cut(parts[2], ".")
		sec, err = strconv.Atoi(secStr)
		if err != nil || sec < 0 || sec > 59 {
			return 0, fmt.Errorf("invalid second in %q", s)
		}
		if hasFrac {
			if fracStr == "" || len(fracStr) > 9 {
				return 0, fmt.Errorf("invalid fraction in %q", s)
			}
			frac, err := strconv.Atoi(fracStr)
			if err != nil {
				return 0, fmt.Errorf("invalid fraction in %q", s)
			}
			for i := len(fracStr); i < 9; i++ {
				frac *= 10
			}
			nsec = frac
		}
	}

	return NewTimeOfDay(hour, min, sec, nsec), nil
}

// MustParseTimeOfDay is like ParseTimeOfDay but panics on error.
func MustParseTimeOfDay(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

func (t TimeOfDay) Hour() int   { return int(time.Duration(t) / time.Hour) }
func (t TimeOfDay) Minute() int { return int(time.Duration(t) % time.Hour / time.Minute) }
func (t TimeOfDay) Second() int { return int(time.Duration(t) % time.Minute / time.Second) }

// Microsecond returns the sub-second part in microseconds.
func (t TimeOfDay) Microsecond() int {
	return int(time.Duration(t) % time.Second / time.Microsecond)
}

// After reports whether t is strictly later than u.
func (t TimeOfDay) After(u TimeOfDay) bool { return t > u }

// Before reports whether t is strictly earlier than u.
func (t TimeOfDay) Before(u TimeOfDay) bool { return t < u }

// On combines the calendar date of date with t, in loc.
func (t TimeOfDay) On(date time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := date.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), t.Second(), t.Microsecond()*1000, loc)
}

// String formats as "15:04:05", adding ".999999" only when there are microseconds.
func (t TimeOfDay) String() string {
	s := fmt.Sprintf("%02d:%02d:%02d", t.Hour(), t.Minute(), t.Second())
	if us := t.Microsecond(); us != 0 {
		s += fmt.Sprintf(".%06d", us)
	}
	return s
}

func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TimeOfDay) UnmarshalText(b []byte) error {
	v, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// GormDataType stores times of day as strings so they sort lexically.
func (TimeOfDay) GormDataType() string {
	return "string"
}

// Value implements driver.Valuer.
func (t TimeOfDay) Value() (driver.Value, error) {
	return fmt.Sprintf("%02d:%02d:%02d.%06d", t.Hour(), t.Minute(), t.Second(), t.Microsecond()), nil
}

// Scan implements sql.Scanner.
func (t *TimeOfDay) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return t.UnmarshalText([]byte(v))
	case []byte:
		return t.UnmarshalText(v)
	case time.Time:
		*t = TimeOfDayOf(v)
		return nil
	case nil:
		*t = 0
		return nil
	default:
		return fmt.Errorf("cannot scan %T into TimeOfDay", src)
	}
}

// DateOf returns the calendar date of t, in t's own location, as midnight UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
