package scheduler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidSchedule is returned for a malformed time of day or an unknown timezone.
var ErrInvalidSchedule = errors.New("invalid schedule")

// Schedule is a daily wall-clock time in a named timezone.
type Schedule struct {
	Hour     int
	Minute   int
	Location *time.Location
}

// ParseSchedule parses "HH:MM" and an IANA timezone name.
func ParseSchedule(hhmm, tz string) (Schedule, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(hhmm), ":")
	if !ok {
		return Schedule{}, fmt.Errorf("%w: time %q must be HH:MM", ErrInvalidSchedule, hhmm)
	}
	hour, err := strconv.Atoi(h)
	if err != nil || !digits(h, 1, 2) || hour > 23 {
		return Schedule{}, fmt.Errorf("%w: hour %q out of range", ErrInvalidSchedule, h)
	}
	minute, err := strconv.Atoi(m)
	if err != nil || !digits(m, 2, 2) || minute > 59 {
		return Schedule{}, fmt.Errorf("%w: minute %q out of range", ErrInvalidSchedule, m)
	}
	return NewSchedule(hour, minute, tz)
}

func digits(s string, lo, hi int) bool {
	if len(s) < lo || len(s) > hi {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// NewSchedule validates hour, minute and the timezone name.
func NewSchedule(hour, minute int, tz string) (Schedule, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return Schedule{}, fmt.Errorf("%w: %02d:%02d", ErrInvalidSchedule, hour, minute)
	}
	// LoadLocation accepts "" and "UTC"/"Local"; only real zone names are allowed here.
	if tz == "" || tz == "Local" {
		return Schedule{}, fmt.Errorf("%w: timezone is required", ErrInvalidSchedule)
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return Schedule{}, fmt.Errorf("%w: unknown timezone %q", ErrInvalidSchedule, tz)
	}
	return Schedule{Hour: hour, Minute: minute, Location: loc}, nil
}

// TZ is the timezone name.
func (s Schedule) TZ() string {
	return s.Location.String()
}

func (s Schedule) String() string {
	return fmt.Sprintf("%02d:%02d %s", s.Hour, s.Minute, s.TZ())
}

// NextFire is today at the configured time if that is still ahead of now,
// otherwise tomorrow at the configured time, both in the schedule's zone.
func NextFire(s Schedule, now time.Time) time.Time {
	local := now.In(s.Location)
	t := s.on(local.Year(), local.Month(), local.Day())
	if !t.After(now) {
		t = s.on(local.Year(), local.Month(), local.Day()+1)
	}
	return t
}

// following is the configured time on the civil day after prev. It follows
// the named zone, so DST shifts move the UTC instant, not the local time.
func following(s Schedule, prev time.Time) time.Time {
	local := prev.In(s.Location)
	return s.on(local.Year(), local.Month(), local.Day()+1)
}

func (s Schedule) on(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, s.Hour, s.Minute, 0, 0, s.Location)
}
