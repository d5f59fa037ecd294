package backend

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gantryhq/gantry/internal/metrics"
	"github.com/gantryhq/gantry/internal/portalloc"
)

// EventType labels lifecycle events emitted to the optional event hook.
type EventType string

const (
	EventReady   EventType = "ready"
	EventStopped EventType = "stopped"
	EventFailed  EventType = "failed"
)

// Event describes a backend lifecycle transition for history recording.
type Event struct {
	Type       EventType
	RunID      string
	Name       string
	PID        int
	Port       int
	OccurredAt time.Time
	Err        error
}

// Supervisor spawns, monitors, and terminates exactly one backend process.
// The child process handle is owned exclusively by the supervisor: Start
// assigns it, Stop and the monitor goroutine clear it, nothing else touches
// it. Construct one per hosting application; instances are independent.
type Supervisor struct {
	spec    Spec
	logger  *slog.Logger
	onEvent func(Event) // optional, called outside the lock

	mu        sync.Mutex
	state     State
	cmd       *exec.Cmd
	port      int
	ready     bool
	runID     string
	startedAt time.Time
	stoppedAt time.Time
	exitErr   error
	exitCh    chan struct{} // closed by the monitor when Wait returns
	outCloser io.WriteCloser
	errCloser io.WriteCloser
}

// New constructs a supervisor for spec. logger may be nil.
func New(spec Spec, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{spec: spec.withDefaults(), logger: logger, state: StateIdle}
}

// OnEvent registers a lifecycle event hook (history recording). Must be set
// before Start.
func (s *Supervisor) OnEvent(fn func(Event)) { s.onEvent = fn }

// Spec returns a copy of the effective spec (defaults applied).
func (s *Supervisor) Spec() Spec { return s.spec }

// Start allocates a port, spawns the backend bound to it, and blocks until a
// readiness signal is observed in the child's output, the child exits, the
// startup timeout elapses, or ctx is cancelled. It returns the effective port:
// normally the allocated one, but a "localhost:PORT" match in the output wins
// when the backend chose a different port on its own.
//
// All failures are terminal for this attempt; there is no internal retry.
// A second Start while one is in flight or the backend is running fails with
// ErrAlreadyStarted.
func (s *Supervisor) Start(ctx context.Context) (int, error) {
	s.mu.Lock()
	if s.state == StateStarting || s.state == StateReady {
		s.mu.Unlock()
		return 0, ErrAlreadyStarted
	}
	s.state = StateStarting
	s.ready = false
	s.exitErr = nil
	s.mu.Unlock()

	port, err := portalloc.Alloc(s.spec.StartPort, s.spec.PortAttempts)
	if err != nil {
		return 0, s.failStart(err, "no_port")
	}

	if _, err := os.Stat(s.spec.Path); err != nil {
		nfe := &NotFoundError{Path: s.spec.Path, Packaged: s.spec.Packaged}
		return 0, s.failStart(nfe, "not_found")
	}

	scanner := newOutputScanner(s.spec.ReadyMarkers)
	cmd := s.configureCmd(port, scanner)

	spawnedAt := time.Now()
	if err := cmd.Start(); err != nil {
		s.closeWriters()
		return 0, s.failStart(&SpawnError{Err: err}, "spawn")
	}

	runID := uuid.NewString()
	exitCh := make(chan struct{})
	s.mu.Lock()
	s.cmd = cmd
	s.runID = runID
	s.startedAt = spawnedAt
	s.stoppedAt = time.Time{}
	s.exitCh = exitCh
	s.mu.Unlock()

	s.logger.Info("backend spawned",
		"name", s.spec.Name, "pid", cmd.Process.Pid, "port", port, "run_id", runID)

	go s.monitor(cmd, exitCh)

	timer := time.NewTimer(s.spec.StartupTimeout)
	defer timer.Stop()

	select {
	case sig := <-scanner.Ready():
		effective := port
		if sig.FromURL && sig.Port != 0 {
			effective = sig.Port
		}
		s.mu.Lock()
		s.state = StateReady
		s.ready = true
		s.port = effective
		pid := cmd.Process.Pid
		s.mu.Unlock()

		metrics.IncStart(s.spec.Name)
		metrics.ObserveStartupDuration(s.spec.Name, time.Since(spawnedAt).Seconds())
		metrics.SetReady(s.spec.Name, true)
		metrics.SetPort(s.spec.Name, effective)
		s.logger.Info("backend ready", "name", s.spec.Name, "port", effective)
		s.emit(Event{Type: EventReady, RunID: runID, Name: s.spec.Name, PID: pid, Port: effective, OccurredAt: time.Now().UTC()})
		return effective, nil

	case <-exitCh:
		// Child died before readiness: fail fast instead of waiting out the
		// timeout.
		s.mu.Lock()
		exitErr := s.exitErr
		s.cmd = nil
		s.mu.Unlock()
		return 0, s.failStart(&EarlyExitError{Err: exitErr}, "early_exit")

	case <-timer.C:
		s.terminate(cmd, exitCh, s.spec.StopGrace)
		s.clearHandle(StateFailed)
		return 0, s.failStart(&StartupTimeoutError{Timeout: s.spec.StartupTimeout}, "timeout")

	case <-ctx.Done():
		s.terminate(cmd, exitCh, s.spec.StopGrace)
		s.clearHandle(StateFailed)
		return 0, ctx.Err()
	}
}

// Stop terminates the backend's process tree and clears the handle. It is a
// no-op when nothing is running, and it never reports signal delivery
// problems as a failure: termination is best-effort and the state is cleared
// regardless.
func (s *Supervisor) Stop() error { return s.StopWait(s.spec.StopGrace) }

// StopWait is Stop with an explicit SIGTERM->SIGKILL escalation window.
func (s *Supervisor) StopWait(grace time.Duration) error {
	s.mu.Lock()
	cmd := s.cmd
	exitCh := s.exitCh
	s.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if grace <= 0 {
		grace = s.spec.StopGrace
	}
	s.terminate(cmd, exitCh, grace)
	s.clearHandle(StateStopped)
	return nil
}

// Status returns a snapshot of the supervisor state.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		Name:      s.spec.Name,
		State:     s.state,
		Ready:     s.ready,
		Port:      s.port,
		RunID:     s.runID,
		StartedAt: s.startedAt,
		StoppedAt: s.stoppedAt,
	}
	if s.cmd != nil && s.cmd.Process != nil {
		st.PID = s.cmd.Process.Pid
	}
	if s.exitErr != nil {
		st.ExitError = s.exitErr.Error()
	}
	return st
}

// Port returns the effective port while the backend is ready, 0 otherwise.
func (s *Supervisor) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return 0
	}
	return s.port
}

// configureCmd builds the exec.Cmd: args with --port appended, workdir, env,
// a fresh process group, and captured output teed to rotating logs and the
// readiness scanner. Output is never inherited by the parent's console.
func (s *Supervisor) configureCmd(port int, scanner *outputScanner) *exec.Cmd {
	// #nosec G204 -- the executable path comes from the operator's config
	cmd := exec.Command(s.spec.Path, s.spec.buildArgs(port)...)
	if s.spec.WorkDir != "" {
		cmd.Dir = s.spec.WorkDir
	}
	if len(s.spec.Env) > 0 {
		cmd.Env = append(os.Environ(), s.spec.Env...)
	}
	configureSysProcAttr(cmd)

	outW, errW, _ := s.spec.Log.Writers(s.spec.Name)
	s.mu.Lock()
	s.outCloser = outW
	s.errCloser = errW
	s.mu.Unlock()
	cmd.Stdout = &teeWriter{sink: outW, scan: scanner.Scan}
	cmd.Stderr = &teeWriter{sink: errW, scan: scanner.Scan}
	return cmd
}

// monitor owns cmd.Wait for this run. On exit it records the error, closes
// the log writers, and, when the backend had been ready, transitions
// ready -> stopped so the caller sees the exit without polling the process.
func (s *Supervisor) monitor(cmd *exec.Cmd, exitCh chan struct{}) {
	err := cmd.Wait()

	s.mu.Lock()
	s.exitErr = err
	s.stoppedAt = time.Now()
	wasReady := s.ready
	runID := s.runID
	pid := 0
	if cmd.Process != nil {
		pid = cmd.Process.Pid
	}
	if wasReady {
		s.ready = false
		s.state = StateStopped
		s.cmd = nil
	}
	s.mu.Unlock()
	s.closeWriters()

	// Emit before releasing exitCh so a Stop/Close racing with this exit
	// cannot tear down the event sink mid-delivery.
	if wasReady {
		metrics.IncStop(s.spec.Name)
		metrics.SetReady(s.spec.Name, false)
		metrics.SetPort(s.spec.Name, 0)
		if err != nil {
			s.logger.Warn("backend exited", "name", s.spec.Name, "error", err)
		} else {
			s.logger.Info("backend exited", "name", s.spec.Name)
		}
		s.emit(Event{Type: EventStopped, RunID: runID, Name: s.spec.Name, PID: pid, OccurredAt: time.Now().UTC(), Err: err})
	}
	close(exitCh)
}

// terminate signals the whole process group: SIGTERM first, SIGKILL after the
// grace window. Any descendant the backend spawned (for example a browser
// automation helper) dies with the group, so no orphans survive.
func (s *Supervisor) terminate(cmd *exec.Cmd, exitCh chan struct{}, grace time.Duration) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	pid := cmd.Process.Pid
	if err := killTree(pid, false); err != nil {
		s.logger.Warn("terminate backend tree", "pid", pid, "error", err)
	}
	if exitCh != nil {
		select {
		case <-exitCh:
			return
		case <-time.After(grace):
		}
	} else {
		time.Sleep(grace)
	}
	if err := killTree(pid, true); err != nil {
		s.logger.Warn("kill backend tree", "pid", pid, "error", err)
	}
	if exitCh != nil {
		select {
		case <-exitCh:
		case <-time.After(500 * time.Millisecond):
			// best-effort; the monitor will reap eventually
		}
	}
}

// clearHandle drops the child handle and marks the terminal state. After this
// a subsequent Stop is a no-op.
func (s *Supervisor) clearHandle(final State) {
	s.mu.Lock()
	wasReady := s.ready
	runID := s.runID
	pid := 0
	if s.cmd != nil && s.cmd.Process != nil {
		pid = s.cmd.Process.Pid
	}
	s.cmd = nil
	s.ready = false
	s.state = final
	if s.stoppedAt.IsZero() {
		s.stoppedAt = time.Now()
	}
	s.mu.Unlock()

	if wasReady {
		metrics.IncStop(s.spec.Name)
		metrics.SetReady(s.spec.Name, false)
		metrics.SetPort(s.spec.Name, 0)
		s.logger.Info("backend stopped", "name", s.spec.Name)
		s.emit(Event{Type: EventStopped, RunID: runID, Name: s.spec.Name, PID: pid, OccurredAt: time.Now().UTC()})
	}
}

// failStart records a terminal start failure and returns err unchanged.
func (s *Supervisor) failStart(err error, reason string) error {
	s.mu.Lock()
	s.state = StateFailed
	s.ready = false
	runID := s.runID
	s.mu.Unlock()

	metrics.IncStartFailure(s.spec.Name, reason)
	s.logger.Error("backend start failed", "name", s.spec.Name, "reason", reason, "error", err)
	s.emit(Event{Type: EventFailed, RunID: runID, Name: s.spec.Name, OccurredAt: time.Now().UTC(), Err: err})
	return err
}

func (s *Supervisor) closeWriters() {
	s.mu.Lock()
	outW, errW := s.outCloser, s.errCloser
	s.outCloser, s.errCloser = nil, nil
	s.mu.Unlock()
	if outW != nil {
		_ = outW.Close()
	}
	if errW != nil {
		_ = errW.Close()
	}
}

func (s *Supervisor) emit(e Event) {
	if s.onEvent != nil {
		s.onEvent(e)
	}
}
