// Package period computes the keys that scope quest and streak state to a
// calendar day or an ISO 8601 week.
package period

import (
	"fmt"
	"time"
)

type Period string

const (
	Daily  Period = "daily"
	Weekly Period = "weekly"
)

const dailyLayout = "2006-01-02"

func (p Period) Valid() bool {
	return p == Daily || p == Weekly
}

// DailyKey returns the calendar date of t in its own location.
func DailyKey(t time.Time) string {
	return t.Format(dailyLayout)
}

// WeeklyKey returns weekly-{ISO year}-{ISO week}.
func WeeklyKey(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("weekly-%d-%02d", year, week)
}

func Key(p Period, t time.Time) (string, error) {
	switch p {
	case Daily:
		return DailyKey(t), nil
	case Weekly:
		return WeeklyKey(t), nil
	default:
		return "", fmt.Errorf("unknown period %q", p)
	}
}

// Start returns the first instant of the period identified by key, in UTC.
// Only the canonical form produced by Key is accepted.
func Start(p Period, key string) (time.Time, error) {
	switch p {
	case Daily:
		t, err := time.Parse(dailyLayout, key)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid daily key %q: %w", key, err)
		}
		if DailyKey(t) != key {
			return time.Time{}, fmt.Errorf("invalid daily key %q: not canonical", key)
		}
		return t, nil
	case Weekly:
		var year, week int
		if _, err := fmt.Sscanf(key, "weekly-%d-%d", &year, &week); err != nil {
			return time.Time{}, fmt.Errorf("invalid weekly key %q: %w", key, err)
		}
		if week < 1 || week > 53 {
			return time.Time{}, fmt.Errorf("invalid weekly key %q: week out of range", key)
		}
		// Jan 4th always falls in ISO week 1.
		jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
		offset := (int(jan4.Weekday()) + 6) % 7
		monday := jan4.AddDate(0, 0, -offset+(week-1)*7)
		if y, w := monday.ISOWeek(); y != year || w != week {
			return time.Time{}, fmt.Errorf("invalid weekly key %q: no such week", key)
		}
		if WeeklyKey(monday) != key {
			return time.Time{}, fmt.Errorf("invalid weekly key %q: not canonical", key)
		}
		return monday, nil
	default:
		return time.Time{}, fmt.Errorf("unknown period %q", p)
	}
}

// Next returns the key of the period immediately following key.
func Next(p Period, key string) (string, error) {
	start, err := Start(p, key)
	if err != nil {
		return "", err
	}
	if p == Daily {
		return DailyKey(start.AddDate(0, 0, 1)), nil
	}
	return WeeklyKey(start.AddDate(0, 0, 7)), nil
}

// Previous returns the key of the period immediately preceding key.
func Previous(p Period, key string) (string, error) {
	start, err := Start(p, key)
	if err != nil {
		return "", err
	}
	if p == Daily {
		return DailyKey(start.AddDate(0, 0, -1)), nil
	}
	return WeeklyKey(start.AddDate(0, 0, -7)), nil
}

// IsSuccessor reports whether next immediately follows prev.
func IsSuccessor(p Period, prev, next string) bool {
	if prev == "" {
		return false
	}
	want, err := Next(p, prev)
	return err == nil && want == next
}

// Clock yields "now" in the location period keys are cut in.
type Clock struct {
	Location *time.Location
	Now      func() time.Time
}

func NewClock(loc *time.Location) Clock {
	if loc == nil {
		loc = time.UTC
	}
	return Clock{Location: loc, Now: time.Now}
}

func (c Clock) now() time.Time {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}
	return now().In(loc)
}

// Current returns the key of the period containing now.
func (c Clock) Current(p Period) (string, error) {
	return Key(p, c.now())
}
