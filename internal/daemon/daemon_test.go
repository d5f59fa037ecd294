package daemon

import (
	"context"
	"database/sql"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/gantryhq/gantry/internal/backend"
	"github.com/gantryhq/gantry/internal/config"
	"github.com/gantryhq/gantry/internal/logger"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
}

func testConfig(t *testing.T, script string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	cfg.Backend = backend.Spec{
		Name:           "backend",
		Path:           "/bin/sh",
		Args:           []string{"-c", script},
		StartPort:      45861,
		PortAttempts:   10,
		StartupTimeout: 10 * time.Second,
		StopGrace:      300 * time.Millisecond,
		Log:            logger.Config{Dir: dir},
	}
	cfg.Server.Listen = "127.0.0.1:0"
	cfg.Daemon.LockFile = filepath.Join(dir, "gantry.lock")
	return cfg
}

func TestSecondInstanceRejected(t *testing.T) {
	requireUnix(t)
	cfg := testConfig(t, `echo "Running on local URL"; sleep 30`)

	first, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("new first: %v", err)
	}
	defer func() { _ = first.Close() }()
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("start first: %v", err)
	}

	second := testConfig(t, "true")
	second.Daemon.LockFile = cfg.Daemon.LockFile
	d2, err := New(second, nil)
	if err != nil {
		t.Fatalf("new second: %v", err)
	}
	defer func() { _ = d2.Close() }()
	if err := d2.Start(context.Background()); err == nil {
		t.Fatal("expected second instance to be rejected")
	}
}

func TestRestartAfterStopReleasesLock(t *testing.T) {
	requireUnix(t)
	cfg := testConfig(t, `echo "Running on local URL"; sleep 30`)

	d, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = d.Close() }()

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if st := d.Status(); !st.Running || st.Backend.State != backend.StateReady {
		t.Fatalf("unexpected status: %+v", st)
	}
	d.Stop()
	if st := d.Status(); st.Running {
		t.Fatalf("still running after stop: %+v", st)
	}

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
}

func TestHistoryRecordsRunEvents(t *testing.T) {
	requireUnix(t)
	cfg := testConfig(t, `echo "Running on local URL"; sleep 30`)
	dbPath := filepath.Join(t.TempDir(), "history.db")
	cfg.History.Enabled = true
	cfg.History.DSN = "sqlite://" + dbPath

	d, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	d.Stop()
	if err := d.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer func() { _ = db.Close() }()

	var n int
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if err := db.QueryRow(`SELECT COUNT(*) FROM backend_runs`).Scan(&n); err == nil && n >= 2 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if n < 2 {
		t.Fatalf("expected ready and stopped events recorded, got %d rows", n)
	}

	var events int
	if err := db.QueryRow(`SELECT COUNT(DISTINCT event) FROM backend_runs`).Scan(&events); err != nil {
		t.Fatalf("query events: %v", err)
	}
	if events < 2 {
		t.Fatalf("expected at least 2 distinct event types, got %d", events)
	}
}
