package timer

import "fmt"

// Phase identifies one of the independently timed activities on a machine.
type Phase string

const (
	General    Phase = "general"
	Inspection Phase = "inspection"
	Servicing  Phase = "servicing"
)

// Phases returns every phase in display order.
func Phases() []Phase {
	return []Phase{General, Inspection, Servicing}
}

// ParsePhase maps a phase name to its Phase. An empty name is the general phase.
func ParsePhase(name string) (Phase, error) {
	switch Phase(name) {
	case General, "":
		return General, nil
	case Inspection:
		return Inspection, nil
	case Servicing:
		return Servicing, nil
	}
	return "", fmt.Errorf("unknown phase %q", name)
}

// Action is a timer command.
type Action string

const (
	Start Action = "start"
	Pause Action = "pause"
	Stop  Action = "stop"
)

// ParseAction maps a command name to its Action.
func ParseAction(name string) (Action, error) {
	switch a := Action(name); a {
	case Start, Pause, Stop:
		return a, nil
	}
	return "", fmt.Errorf("unknown timer action %q", name)
}

// Status is the workflow label written to a machine after a timer command.
type Status string

const (
	StatusPending  Status = "Pending"
	StatusStarted  Status = "Started"
	StatusPaused   Status = "Paused"
	StatusFinished Status = "Finished"
)

// Status returns the machine status written once action a succeeds.
func (a Action) Status() Status {
	switch a {
	case Start:
		return StatusStarted
	case Pause:
		return StatusPaused
	case Stop:
		return StatusFinished
	}
	return ""
}
