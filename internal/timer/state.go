package timer

import (
	"errors"
	"time"
)

// ErrInvalidState is returned when a command does not apply to the phase's
// current run state, e.g. pausing a timer that is not running.
var ErrInvalidState = errors.New("invalid timer state")

// State is the persisted timer record of a single phase. StartTime is set
// while the timer is running; TotalTime holds seconds from closed intervals only.
type State struct {
	StartTime *time.Time
	TotalTime float64
}

// Running reports whether an interval is open.
func (s State) Running() bool {
	return s.StartTime != nil
}

// Start opens a new interval at now. Starting a running timer replaces the
// open interval without accumulating it.
func (s State) Start(now time.Time) State {
	t := now.UTC()
	return State{StartTime: &t, TotalTime: s.TotalTime}
}

// Close ends the open interval at now and folds its length into TotalTime.
func (s State) Close(now time.Time) (State, error) {
	if !s.Running() {
		return s, ErrInvalidState
	}
	return State{TotalTime: s.TotalTime + s.Elapsed(now)}, nil
}

// Elapsed returns the seconds spent in the open interval, or 0 when idle.
// A start time later than now yields 0.
func (s State) Elapsed(now time.Time) float64 {
	if !s.Running() {
		return 0
	}
	d := now.Sub(*s.StartTime).Seconds()
	if d < 0 {
		return 0
	}
	return d
}

// Apply runs a against s.
func (s State) Apply(a Action, now time.Time) (State, error) {
	switch a {
	case Start:
		return s.Start(now), nil
	case Pause, Stop:
		return s.Close(now)
	}
	return s, ErrInvalidState
}
