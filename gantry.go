package gantry

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gantryhq/gantry/internal/backend"
	cfg "github.com/gantryhq/gantry/internal/config"
	"github.com/gantryhq/gantry/internal/daemon"
	"github.com/gantryhq/gantry/internal/history"
	hfactory "github.com/gantryhq/gantry/internal/history/factory"
	"github.com/gantryhq/gantry/internal/logger"
	"github.com/gantryhq/gantry/internal/metrics"
	iapi "github.com/gantryhq/gantry/internal/server"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Spec = backend.Spec

type Status = backend.Status

type State = backend.State

type Event = backend.Event

const (
	StateIdle     = backend.StateIdle
	StateStarting = backend.StateStarting
	StateReady    = backend.StateReady
	StateFailed   = backend.StateFailed
	StateStopped  = backend.StateStopped
)

// Error re-exports so embedders can match failures without importing
// internal packages.

var ErrAlreadyStarted = backend.ErrAlreadyStarted

type NotFoundError = backend.NotFoundError

type StartupTimeoutError = backend.StartupTimeoutError

type SpawnError = backend.SpawnError

type HistorySink = history.Sink

// Supervisor is a thin facade over internal/backend.Supervisor. It provides
// a stable public API for embedding gantry in a desktop shell.
type Supervisor struct{ inner *backend.Supervisor }

func New(spec Spec, log *slog.Logger) *Supervisor {
	return &Supervisor{inner: backend.New(spec, log)}
}

func (s *Supervisor) Start(ctx context.Context) (int, error) { return s.inner.Start(ctx) }
func (s *Supervisor) Stop() error                            { return s.inner.Stop() }
func (s *Supervisor) Status() Status                         { return s.inner.Status() }
func (s *Supervisor) Port() int                              { return s.inner.Port() }
func (s *Supervisor) OnEvent(fn func(Event))                 { s.inner.OnEvent(fn) }

// Daemon facade

type Daemon = daemon.Daemon

func NewDaemon(c *cfg.Config, log *slog.Logger) (*Daemon, error) {
	return daemon.New(c, log)
}

type Config = cfg.Config

func LoadConfig(path string) (*cfg.Config, error) {
	return cfg.Load(path)
}

// NewLogger builds gantry's own slog logger from a config level string.
func NewLogger(level string) *slog.Logger {
	return logger.New(logger.ParseLevel(level))
}

// NewHistorySink opens a run history sink from a DSN (sqlite path or
// postgres URL).
func NewHistorySink(dsn string) (HistorySink, error) {
	return hfactory.NewSinkFromDSN(dsn)
}

// NewHTTPServer starts the control API server wrapping the given supervisor.
func NewHTTPServer(addr, basePath string, s *Supervisor) (*http.Server, error) {
	return iapi.NewServer(addr, basePath, s.inner)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }
