package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/gantryhq/gantry/internal/backend"
	"github.com/gantryhq/gantry/internal/config"
	"github.com/gantryhq/gantry/internal/history"
	"github.com/gantryhq/gantry/internal/history/factory"
	"github.com/gantryhq/gantry/internal/metrics"
	"github.com/gantryhq/gantry/internal/server"
)

// historySendTimeout bounds each history write so a slow sink can never stall
// backend lifecycle handling.
const historySendTimeout = 3 * time.Second

// Daemon ties the supervisor, the control API server, and the optional run
// history sink into one lifecycle, with flock-based locking so only a single
// gantry instance manages the backend at a time.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	sup    *backend.Supervisor
	sink   history.Sink
	srv    *http.Server

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
}

// Status reports daemon runtime information for the status command.
type Status struct {
	Running      bool           `json:"running"`
	Backend      backend.Status `json:"backend"`
	Listen       string         `json:"listen"`
	LockFilePath string         `json:"lock_file_path"`
}

// New constructs a daemon from a loaded config. Metrics collectors are
// registered on the default prometheus registry; the history sink is opened
// eagerly so DSN problems surface before the backend spawns.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires a config")
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		sup:      backend.New(cfg.Backend, logger),
		lockPath: cfg.Daemon.LockFile,
		lock:     flock.New(cfg.Daemon.LockFile),
	}

	if cfg.History.Enabled {
		sink, err := factory.NewSinkFromDSN(cfg.History.DSN)
		if err != nil {
			return nil, fmt.Errorf("open history sink: %w", err)
		}
		d.sink = sink
		d.sup.OnEvent(d.recordEvent)
	}
	return d, nil
}

// Supervisor exposes the managed supervisor for embedding callers.
func (d *Daemon) Supervisor() *backend.Supervisor { return d.sup }

// Start acquires the instance lock, brings up the control API, and launches
// the backend. It blocks until the backend reports ready or its startup
// fails; on failure everything is torn down and the error returned.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", d.lockPath, err)
	}
	if !ok {
		return fmt.Errorf("another gantry instance is already running (lock %s)", d.lockPath)
	}

	srv, err := server.NewServer(d.cfg.Server.Listen, d.cfg.Server.BasePath, d.sup)
	if err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("start control server: %w", err)
	}
	d.srv = srv

	port, err := d.sup.Start(ctx)
	if err != nil {
		d.shutdownServer()
		_ = d.lock.Unlock()
		return fmt.Errorf("start backend: %w", err)
	}

	d.running.Store(true)
	d.logger.Info("gantry daemon started",
		slog.Int("backend_port", port),
		slog.String("listen", d.cfg.Server.Listen),
		slog.String("lock", d.lockPath))
	return nil
}

// Stop terminates the backend, shuts down the control API, and releases the
// instance lock. Safe to call when not running.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if err := d.sup.Stop(); err != nil {
		d.logger.Warn("backend stop", slog.String("error", err.Error()))
	}
	d.shutdownServer()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("release daemon lock", slog.String("error", err.Error()))
	}
	d.running.Store(false)
	d.logger.Info("gantry daemon stopped")
}

// Close stops the daemon and releases the history sink.
func (d *Daemon) Close() error {
	d.Stop()
	if d.sink != nil {
		return d.sink.Close()
	}
	return nil
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	return Status{
		Running:      d.running.Load(),
		Backend:      d.sup.Status(),
		Listen:       d.cfg.Server.Listen,
		LockFilePath: d.lockPath,
	}
}

func (d *Daemon) shutdownServer() {
	if d.srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := d.srv.Shutdown(ctx); err != nil {
		d.logger.Warn("control server shutdown", slog.String("error", err.Error()))
	}
	d.srv = nil
}

// recordEvent forwards supervisor lifecycle events to the history sink.
// Failures are logged and dropped; history never blocks the lifecycle.
func (d *Daemon) recordEvent(e backend.Event) {
	he := history.Event{
		Type:       history.EventType(e.Type),
		OccurredAt: e.OccurredAt,
		Record: history.Record{
			RunID: e.RunID,
			Name:  e.Name,
			PID:   e.PID,
			Port:  e.Port,
		},
	}
	if e.Err != nil {
		he.Record.Error = e.Err.Error()
	}
	ctx, cancel := context.WithTimeout(context.Background(), historySendTimeout)
	defer cancel()
	if err := d.sink.Send(ctx, he); err != nil {
		d.logger.Warn("record history event",
			slog.String("run_id", e.RunID),
			slog.String("type", string(e.Type)),
			slog.String("error", err.Error()))
	}
}
