package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gantryhq/gantry/internal/backend"
	"github.com/gantryhq/gantry/internal/logger"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
}

func shSpec(t *testing.T, script string) backend.Spec {
	t.Helper()
	return backend.Spec{
		Name:           "backend",
		Path:           "/bin/sh",
		Args:           []string{"-c", script},
		StartPort:      44861,
		PortAttempts:   10,
		StartupTimeout: 10 * time.Second,
		StopGrace:      300 * time.Millisecond,
		Log:            logger.Config{Dir: t.TempDir()},
	}
}

func setupRouter(t *testing.T, sup *backend.Supervisor, base string) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)
	return NewRouter(sup, base).Handler()
}

func doReq(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthzIdle(t *testing.T) {
	requireUnix(t)
	sup := backend.New(shSpec(t, "true"), nil)
	h := setupRouter(t, sup, "/api")

	rec := doReq(t, h, http.MethodGet, "/api/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var hr healthResp
	if err := json.Unmarshal(rec.Body.Bytes(), &hr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !hr.OK || hr.State != backend.StateIdle || hr.Ready {
		t.Fatalf("unexpected health: %+v", hr)
	}
}

func TestStartStopLifecycle(t *testing.T) {
	requireUnix(t)
	sup := backend.New(shSpec(t, `echo "Running on local URL"; sleep 30`), nil)
	h := setupRouter(t, sup, "")
	defer func() { _ = sup.Stop() }()

	rec := doReq(t, h, http.MethodPost, "/start")
	if rec.Code != http.StatusOK {
		t.Fatalf("start: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var sr startResp
	if err := json.Unmarshal(rec.Body.Bytes(), &sr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !sr.OK || sr.Port < 44861 || sr.Port >= 44861+10 {
		t.Fatalf("unexpected start response: %+v", sr)
	}

	rec = doReq(t, h, http.MethodGet, "/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: expected 200, got %d", rec.Code)
	}
	var st backend.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.State != backend.StateReady || !st.Ready || st.Port != sr.Port {
		t.Fatalf("unexpected status: %+v", st)
	}

	rec = doReq(t, h, http.MethodPost, "/stop")
	if rec.Code != http.StatusOK {
		t.Fatalf("stop: expected 200, got %d", rec.Code)
	}

	rec = doReq(t, h, http.MethodGet, "/status")
	_ = json.Unmarshal(rec.Body.Bytes(), &st)
	if st.Ready {
		t.Fatalf("expected not ready after stop: %+v", st)
	}
}

func TestStartConflictWhileReady(t *testing.T) {
	requireUnix(t)
	sup := backend.New(shSpec(t, `echo "Running on local URL"; sleep 30`), nil)
	h := setupRouter(t, sup, "/api")
	defer func() { _ = sup.Stop() }()

	if rec := doReq(t, h, http.MethodPost, "/api/start"); rec.Code != http.StatusOK {
		t.Fatalf("first start: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec := doReq(t, h, http.MethodPost, "/api/start"); rec.Code != http.StatusConflict {
		t.Fatalf("second start: expected 409, got %d", rec.Code)
	}
}

func TestStartFailureMapsToBadGateway(t *testing.T) {
	requireUnix(t)
	spec := shSpec(t, "true")
	spec.Path = "/nonexistent/gantry-backend"
	sup := backend.New(spec, nil)
	h := setupRouter(t, sup, "")

	rec := doReq(t, h, http.MethodPost, "/start")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d: %s", rec.Code, rec.Body.String())
	}
	var er errorResp
	if err := json.Unmarshal(rec.Body.Bytes(), &er); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if er.Error == "" {
		t.Fatal("expected error message in response")
	}
}

func TestStopRejectsBadWait(t *testing.T) {
	requireUnix(t)
	sup := backend.New(shSpec(t, "true"), nil)
	h := setupRouter(t, sup, "")

	if rec := doReq(t, h, http.MethodPost, "/stop?wait=banana"); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if rec := doReq(t, h, http.MethodPost, "/stop?wait=500ms"); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestStopIsNoOpWhenIdle(t *testing.T) {
	requireUnix(t)
	sup := backend.New(shSpec(t, "true"), nil)
	h := setupRouter(t, sup, "")

	if rec := doReq(t, h, http.MethodPost, "/stop"); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestBasePathSanitized(t *testing.T) {
	if got := sanitizeBase("api/"); got != "/api" {
		t.Fatalf("got %q", got)
	}
	if got := sanitizeBase("/api//"); got != "/api" {
		t.Fatalf("got %q", got)
	}
	if got := sanitizeBase("/"); got != "" {
		t.Fatalf("got %q", got)
	}
}
