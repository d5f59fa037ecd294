package backend

import (
	"strconv"
	"time"

	"github.com/gantryhq/gantry/internal/logger"
	"github.com/gantryhq/gantry/internal/portalloc"
)

// DefaultStartupTimeout bounds the wait for a readiness signal.
const DefaultStartupTimeout = 60 * time.Second

// DefaultStopGrace is how long Stop waits after SIGTERM before escalating to
// SIGKILL on the process group.
const DefaultStopGrace = 2 * time.Second

// DefaultReadyMarkers are substrings the backend framework prints once its
// HTTP server is accepting connections. A "localhost:PORT" match in the
// output takes precedence and additionally overrides the requested port.
var DefaultReadyMarkers = []string{
	"Running on local URL",
	"Uvicorn running on",
}

// Spec describes the backend executable to supervise.
type Spec struct {
	Name           string        `json:"name" mapstructure:"name"`
	Path           string        `json:"path" mapstructure:"path"`                       // backend executable
	Args           []string      `json:"args" mapstructure:"args"`                       // extra args, placed before --port
	WorkDir        string        `json:"work_dir" mapstructure:"work_dir"`               // optional working dir
	Env            []string      `json:"env" mapstructure:"env"`                         // optional extra env (KEY=VALUE)
	StartPort      int           `json:"start_port" mapstructure:"start_port"`           // first port candidate (default 7861)
	PortAttempts   int           `json:"port_attempts" mapstructure:"port_attempts"`     // probe window size (default 10)
	StartupTimeout time.Duration `json:"startup_timeout" mapstructure:"startup_timeout"` // readiness deadline (default 60s)
	StopGrace      time.Duration `json:"stop_grace" mapstructure:"stop_grace"`           // SIGTERM->SIGKILL escalation window
	ReadyMarkers   []string      `json:"ready_markers" mapstructure:"ready_markers"`     // readiness substrings
	Packaged       bool          `json:"packaged" mapstructure:"packaged"`               // selects the missing-executable hint
	Log            logger.Config `json:"log" mapstructure:"log"`                         // captured output destinations
}

// withDefaults returns a copy with zero values replaced by defaults.
func (s Spec) withDefaults() Spec {
	if s.Name == "" {
		s.Name = "backend"
	}
	if s.StartPort <= 0 {
		s.StartPort = portalloc.DefaultStartPort
	}
	if s.PortAttempts <= 0 {
		s.PortAttempts = portalloc.DefaultAttempts
	}
	if s.StartupTimeout <= 0 {
		s.StartupTimeout = DefaultStartupTimeout
	}
	if s.StopGrace <= 0 {
		s.StopGrace = DefaultStopGrace
	}
	if len(s.ReadyMarkers) == 0 {
		s.ReadyMarkers = DefaultReadyMarkers
	}
	return s
}

// buildArgs returns the full argument list for the given port. The port is
// always appended last so spec args cannot shadow it.
func (s Spec) buildArgs(port int) []string {
	args := make([]string, 0, len(s.Args)+2)
	args = append(args, s.Args...)
	args = append(args, "--port", strconv.Itoa(port))
	return args
}
