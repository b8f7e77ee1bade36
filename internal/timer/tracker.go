package timer

import (
	"context"
	"log"
	"time"
)

// Transition computes the next state of a phase from its current state. It
// may be called more than once per command if the store detects a concurrent
// writer and retries.
type Transition func(current State) (next State, err error)

// Store persists phase timers. UpdatePhase must apply next and status
// atomically with respect to other updates of the same machine, re-reading
// and re-running fn when the record changed underneath it.
type Store interface {
	UpdatePhase(ctx context.Context, machineID uint, phase Phase, status Status, fn Transition) (before, after State, err error)
}

// Event describes a completed timer command, successful or not.
type Event struct {
	MachineID uint
	Phase     Phase
	Action    Action
	Before    State
	After     State
	Err       error
}

// Observer is told about every timer command the tracker handles.
type Observer interface {
	PhaseUpdated(ctx context.Context, e Event)
}

// Tracker applies start/pause/stop commands to machine phases.
type Tracker struct {
	store     Store
	now       func() time.Time
	observers []Observer
}

// NewTracker creates a tracker backed by s. A nil clock means time.Now.
func NewTracker(s Store, clock func() time.Time, observers ...Observer) *Tracker {
	if clock == nil {
		clock = time.Now
	}
	return &Tracker{store: s, now: clock, observers: observers}
}

// Start opens an interval on phase p.
func (t *Tracker) Start(ctx context.Context, machineID uint, p Phase) (State, error) {
	return t.Apply(ctx, machineID, p, Start)
}

// Pause closes the running interval on phase p.
func (t *Tracker) Pause(ctx context.Context, machineID uint, p Phase) (State, error) {
	return t.Apply(ctx, machineID, p, Pause)
}

// Stop closes the running interval on phase p and marks the machine finished.
func (t *Tracker) Stop(ctx context.Context, machineID uint, p Phase) (State, error) {
	return t.Apply(ctx, machineID, p, Stop)
}

// Apply runs action a against phase p of the machine and returns the stored state.
func (t *Tracker) Apply(ctx context.Context, machineID uint, p Phase, a Action) (State, error) {
	before, after, err := t.store.UpdatePhase(ctx, machineID, p, a.Status(), func(cur State) (State, error) {
		return cur.Apply(a, t.now())
	})
	if err != nil {
		log.Printf("timer %s on machine %d phase %s failed: %v", a, machineID, p, err)
	}

	e := Event{MachineID: machineID, Phase: p, Action: a, Before: before, After: after, Err: err}
	for _, o := range t.observers {
		o.PhaseUpdated(ctx, e)
	}
	return after, err
}
