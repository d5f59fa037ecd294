package backend

import "time"

// State is the supervisor lifecycle state. Transitions:
// idle -> starting -> ready on success; starting -> failed on spawn error,
// early exit, or timeout; ready -> stopped on explicit stop or process exit.
// There is no automatic return to starting.
type State string

const (
	StateIdle     State = "idle"
	StateStarting State = "starting"
	StateReady    State = "ready"
	StateFailed   State = "failed"
	StateStopped  State = "stopped"
)

func (s State) String() string { return string(s) }

// Status is a point-in-time snapshot of the supervisor.
type Status struct {
	Name      string    `json:"name"`
	State     State     `json:"state"`
	Ready     bool      `json:"ready"`
	PID       int       `json:"pid"`
	Port      int       `json:"port"`
	RunID     string    `json:"run_id,omitempty"`
	StartedAt time.Time `json:"started_at"`
	StoppedAt time.Time `json:"stopped_at"`
	ExitError string    `json:"exit_error,omitempty"`
}
