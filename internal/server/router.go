package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gantryhq/gantry/internal/backend"
	"github.com/gantryhq/gantry/internal/metrics"
)

// Router exposes the local control API the hosting desktop shell uses to
// drive the supervisor. Endpoints (under basePath, default /api):
//
//	GET  {basePath}/healthz   liveness of gantry itself plus backend state
//	GET  {basePath}/status    full supervisor snapshot
//	POST {basePath}/start     start the backend; responds with the effective port
//	POST {basePath}/stop      terminate the backend process tree (always 200);
//	                          optional ?wait= overrides the kill grace window
//	GET  /metrics             prometheus metrics (outside basePath)
//
// The server binds loopback only; there is no auth layer.
type Router struct {
	sup      *backend.Supervisor
	basePath string
}

func NewRouter(sup *backend.Supervisor, basePath string) *Router {
	return &Router{sup: sup, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any
// server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/healthz", r.handleHealthz)
	group.GET("/status", r.handleStatus)
	group.POST("/start", r.handleStart)
	group.POST("/stop", r.handleStop)
	g.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr, basePath string, sup *backend.Supervisor) (*http.Server, error) {
	r := NewRouter(sup, basePath)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second, // start can block up to the startup timeout
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server, nil
}

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type startResp struct {
	OK   bool `json:"ok"`
	Port int  `json:"port"`
}

type healthResp struct {
	OK    bool          `json:"ok"`
	State backend.State `json:"state"`
	Ready bool          `json:"ready"`
}

func (r *Router) handleHealthz(c *gin.Context) {
	st := r.sup.Status()
	c.JSON(http.StatusOK, healthResp{OK: true, State: st.State, Ready: st.Ready})
}

func (r *Router) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, r.sup.Status())
}

func (r *Router) handleStart(c *gin.Context) {
	port, err := r.sup.Start(c.Request.Context())
	if err != nil {
		status := http.StatusBadGateway
		if err == backend.ErrAlreadyStarted {
			status = http.StatusConflict
		}
		c.JSON(status, errorResp{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, startResp{OK: true, Port: port})
}

func (r *Router) handleStop(c *gin.Context) {
	// Optional ?wait= overrides the SIGTERM->SIGKILL escalation window.
	if w := c.Query("wait"); w != "" {
		d, err := time.ParseDuration(w)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResp{Error: "invalid wait duration: " + w})
			return
		}
		_ = r.sup.StopWait(d)
		c.JSON(http.StatusOK, okResp{OK: true})
		return
	}
	// Stop is best-effort and never fails; state is cleared regardless.
	_ = r.sup.Stop()
	c.JSON(http.StatusOK, okResp{OK: true})
}

// sanitizeBase normalizes a base path: leading slash, no trailing slash.
func sanitizeBase(bp string) string {
	if bp == "" || bp == "/" {
		return ""
	}
	if bp[0] != '/' {
		bp = "/" + bp
	}
	for len(bp) > 1 && bp[len(bp)-1] == '/' {
		bp = bp[:len(bp)-1]
	}
	return bp
}
