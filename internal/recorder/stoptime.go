package recorder

import (
	"fmt"
	"time"
)

// DefaultStopTolerance is the width of the daily stop window
const DefaultStopTolerance = time.Minute

type stopKind int

const (
	stopNever stopKind = iota
	stopDailyAt
)

// StopTime is either Never or DailyAt(hour, minute) local time
type StopTime struct {
	kind   stopKind
	hour   int
	minute int
}

// Never returns a stop time that never fires
func Never() StopTime {
	return StopTime{kind: stopNever}
}

// DailyAt returns a stop time firing every day at hour:minute local time
func DailyAt(hour, minute int) (StopTime, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return StopTime{}, fmt.Errorf("stop time %02d:%02d out of range", hour, minute)
	}
	return StopTime{kind: stopDailyAt, hour: hour, minute: minute}, nil
}

// StopTimeFromClock maps the configured hour and minute to a StopTime; hour -1 means Never
func StopTimeFromClock(hour, minute int) (StopTime, error) {
	if hour == -1 {
		return Never(), nil
	}
	return DailyAt(hour, minute)
}

// IsNever reports whether s never fires
func (s StopTime) IsNever() bool {
	return s.kind == stopNever
}

// Clock returns the configured hour and minute, or -1, 0 for Never
func (s StopTime) Clock() (hour, minute int) {
	if s.IsNever() {
		return -1, 0
	}
	return s.hour, s.minute
}

func (s StopTime) String() string {
	if s.IsNever() {
		return "never"
	}
	return fmt.Sprintf("%02d:%02d", s.hour, s.minute)
}

type civilDate struct {
	year  int
	month time.Month
	day   int
}

func dateOf(t time.Time) civilDate {
	y, m, d := t.Date()
	return civilDate{y, m, d}
}

// StopEvaluator decides when a session should end. It fires when the clock
// enters [HH:MM, HH:MM+tolerance) and at most once per calendar day, so a
// cadence shorter than the tolerance never misses the window and a fast loop
// never fires twice.
type StopEvaluator struct {
	stop      StopTime
	tolerance time.Duration
	lastFired civilDate
	fired     bool
}

// NewStopEvaluator returns an evaluator for stop. A non-positive tolerance
// uses DefaultStopTolerance; tolerances are capped at one day.
func NewStopEvaluator(stop StopTime, tolerance time.Duration) *StopEvaluator {
	if tolerance <= 0 {
		tolerance = DefaultStopTolerance
	}
	if tolerance > 24*time.Hour {
		tolerance = 24 * time.Hour
	}
	return &StopEvaluator{stop: stop, tolerance: tolerance}
}

// ShouldStop reports whether capture should terminate at now, in now's location
func (e *StopEvaluator) ShouldStop(now time.Time) bool {
	if e.stop.IsNever() {
		return false
	}

	// a window that starts yesterday may extend past midnight
	for _, day := range []time.Time{now, now.AddDate(0, 0, -1)} {
		target := time.Date(day.Year(), day.Month(), day.Day(), e.stop.hour, e.stop.minute, 0, 0, now.Location())
		if now.Before(target) || !now.Before(target.Add(e.tolerance)) {
			continue
		}
		date := dateOf(target)
		if e.fired && e.lastFired == date {
			return false
		}
		e.fired = true
		e.lastFired = date
		return true
	}

	return false
}
