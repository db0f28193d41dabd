package reconcile

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ShadowAlejo/parqueadero/models"
)

// ClockTime is a wall-clock time of day with minute granularity.
// 24:00 is allowed and means end of day.
type ClockTime struct {
	Hour   int
	Minute int
}

// EndOfDay is the exclusive upper bound of a day.
var EndOfDay = ClockTime{Hour: 24}

// ParseClock parses a strict "HH:MM" value.
func ParseClock(s string) (ClockTime, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return ClockTime{}, fmt.Errorf("invalid clock time %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return ClockTime{}, fmt.Errorf("invalid hour in %q: %w", s, err)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return ClockTime{}, fmt.Errorf("invalid minute in %q: %w", s, err)
	}
	c := ClockTime{Hour: h, Minute: m}
	if h < 0 || h > 24 || m < 0 || m > 59 || (h == 24 && m != 0) {
		return ClockTime{}, fmt.Errorf("clock time %q out of range", s)
	}
	return c, nil
}

// MustParseClock is ParseClock for constants.
func MustParseClock(s string) ClockTime {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Minutes returns the minutes elapsed since midnight.
func (c ClockTime) Minutes() int {
	return c.Hour*60 + c.Minute
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// On returns the instant of c on the calendar day of day, in loc.
func (c ClockTime) On(day time.Time, loc *time.Location) time.Time {
	d := day.In(loc)
	return time.Date(d.Year(), d.Month(), d.Day(), c.Hour, c.Minute, 0, 0, loc)
}

// minuteOfDay returns the minute-of-day of t in loc.
func minuteOfDay(t time.Time, loc *time.Location) int {
	lt := t.In(loc)
	return lt.Hour()*60 + lt.Minute()
}

// Day is a half-open calendar range [Start, End) in the deployment zone.
type Day struct {
	Start time.Time
	End   time.Time
}

// EndSource tells how an effective end time was derived.
type EndSource int

const (
	EndFromTimeOfDay EndSource = iota
	EndFromTimestamp
	EndDefault
	// EndDefaultUnparsable means a time-of-day value was present but could not be parsed.
	EndDefaultUnparsable
)

// EndTime is the normalized end of a reservation's occupancy window.
type EndTime struct {
	At     time.Time
	Base   time.Time // Midnight of the reservation's day
	Source EndSource
	Raw    string // Offending value when Source is EndDefaultUnparsable
}

// Hours holds the deployment's operating-hours policy.
type Hours struct {
	Location *time.Location
	Open     ClockTime
	// Ceiling is the latest time any reservation may end on its day.
	Ceiling    ClockTime
	DefaultEnd ClockTime
}

// DayOf returns the calendar day containing t.
func (h Hours) DayOf(t time.Time) Day {
	start := ClockTime{}.On(t, h.Location)
	return Day{Start: start, End: start.AddDate(0, 0, 1)}
}

// CeilingOn returns the operating-hours ceiling on day's date.
func (h Hours) CeilingOn(day time.Time) time.Time {
	return h.Ceiling.On(day, h.Location)
}

// clamp bounds a time of day to the ceiling. An hour past the ceiling hour
// drops its minutes.
func (h Hours) clamp(c ClockTime) ClockTime {
	switch {
	case c.Hour > h.Ceiling.Hour:
		return ClockTime{Hour: h.Ceiling.Hour}
	case c.Hour == h.Ceiling.Hour && c.Minute > h.Ceiling.Minute:
		return h.Ceiling
	}
	return c
}

// EffectiveEnd normalizes the end of r's window into an absolute instant.
// It fails only when r carries neither a start nor an end timestamp.
func (h Hours) EffectiveEnd(r models.Reservation) (EndTime, error) {
	var base time.Time
	switch {
	case !r.End.IsZero():
		base = ClockTime{}.On(r.End, h.Location)
	case !r.Start.IsZero():
		base = ClockTime{}.On(r.Start, h.Location)
	default:
		return EndTime{}, ErrNoBaseDate
	}

	if r.EndTimeOfDay != nil {
		raw := strings.TrimSpace(*r.EndTimeOfDay)
		if raw == "" {
			return EndTime{At: h.clamp(h.DefaultEnd).On(base, h.Location), Base: base, Source: EndDefault}, nil
		}
		c, ok := parseTimeOfDay(raw)
		if !ok {
			return EndTime{At: h.clamp(h.DefaultEnd).On(base, h.Location), Base: base, Source: EndDefaultUnparsable, Raw: raw}, nil
		}
		return EndTime{At: h.clamp(c).On(base, h.Location), Base: base, Source: EndFromTimeOfDay}, nil
	}

	if !r.End.IsZero() && !r.End.In(h.Location).Equal(base) {
		end := r.End.In(h.Location)
		if ceiling := h.CeilingOn(base); end.After(ceiling) {
			end = ceiling
		}
		return EndTime{At: end, Base: base, Source: EndFromTimestamp}, nil
	}
	return EndTime{At: h.clamp(h.DefaultEnd).On(base, h.Location), Base: base, Source: EndDefault}, nil
}

// parseTimeOfDay reads a stored end-time value leniently: "17", "17:30" and
// "17:30:00" are accepted, an unreadable minute counts as zero.
func parseTimeOfDay(raw string) (ClockTime, bool) {
	parts := strings.Split(raw, ":")
	h, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || h < 0 || h > 23 {
		return ClockTime{}, false
	}
	m := 0
	if len(parts) > 1 {
		if v, err := strconv.Atoi(strings.TrimSpace(parts[1])); err == nil && v >= 0 && v <= 59 {
			m = v
		}
	}
	return ClockTime{Hour: h, Minute: m}, true
}
