// Package control implements the control plane adapter (spec §4.9 and
// §6): it translates the external REST/WebSocket surface into calls on
// the arbiter and supervisors, and aggregates their independent
// snapshots into one status response. The route-group/middleware
// wiring is grounded on api_sidecar/cmd/helmsman/main.go; the handler
// package shape (one receiver, one method per route) mirrors
// api_sidecar/internal/handlers/handlers.go.
package control

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mBelstad/preke-r58-recorder-sub003/internal/arbiter"
	"github.com/mBelstad/preke-r58-recorder-sub003/internal/config"
	"github.com/mBelstad/preke-r58-recorder-sub003/internal/events"
	"github.com/mBelstad/preke-r58-recorder-sub003/internal/ingest"
	"github.com/mBelstad/preke-r58-recorder-sub003/internal/mixer"
	"github.com/mBelstad/preke-r58-recorder-sub003/internal/obs"
	"github.com/mBelstad/preke-r58-recorder-sub003/internal/perr"
	"github.com/mBelstad/preke-r58-recorder-sub003/internal/platform"
	"github.com/mBelstad/preke-r58-recorder-sub003/internal/recording"
	"github.com/mBelstad/preke-r58-recorder-sub003/internal/registry"
)

const requestTimeout = 20 * time.Second

// Server is the composition root's handle to every component the REST
// surface needs to call. It holds no mutable state of its own beyond
// what's required to serve requests — every field is either immutable
// after construction or itself safe for concurrent use.
type Server struct {
	logger  obs.Logger
	metrics *obs.MetricsCollector
	health  *obs.HealthChecker
	bus     *events.Bus

	arb        *arbiter.Arbiter
	cameras    []config.CameraConfig
	supervisors map[string]*ingest.Supervisor
	rec        *recording.Supervisor
	mix        *mixer.Engine
	reg        *registry.Client

	wsBacklog int
	storagePath string
}

// New constructs a control plane Server. supervisors should contain an
// entry for every enabled camera; cameras is the full configured set
// (enabled or not). The handlers answer an unknown id and a disabled
// one with the same 404.
func New(
	logger obs.Logger,
	metrics *obs.MetricsCollector,
	health *obs.HealthChecker,
	bus *events.Bus,
	arb *arbiter.Arbiter,
	cameras []config.CameraConfig,
	supervisors map[string]*ingest.Supervisor,
	rec *recording.Supervisor,
	mix *mixer.Engine,
	reg *registry.Client,
	wsBacklog int,
	storagePath string,
) *Server {
	if wsBacklog <= 0 {
		wsBacklog = 256
	}
	return &Server{
		logger:      logger,
		metrics:     metrics,
		health:      health,
		bus:         bus,
		arb:         arb,
		cameras:     cameras,
		supervisors: supervisors,
		rec:         rec,
		mix:         mix,
		reg:         reg,
		wsBacklog:   wsBacklog,
		storagePath: storagePath,
	}
}

// Router builds the gin engine serving every route in spec §6, wired
// with the same middleware order obs.SetupRouter establishes for every
// service in this module (request id, structured log, recovery, CORS).
func (s *Server) Router() *gin.Engine {
	r := obs.SetupRouter(s.logger)
	if s.metrics != nil {
		r.Use(s.metrics.MetricsMiddleware())
		r.GET("/metrics", s.metrics.Handler())
	}
	if s.health != nil {
		r.GET("/health", s.health.Handler())
	}

	api := r.Group("/api")
	{
		api.GET("/mode", s.getMode)
		api.POST("/mode/:mode", s.postMode)

		api.GET("/ingest/status", s.getIngestStatus)
		api.POST("/ingest/start/:cam", s.postIngestStart)
		api.POST("/ingest/stop/:cam", s.postIngestStop)

		api.POST("/recording/start", s.postRecordingStart)
		api.POST("/recording/stop", s.postRecordingStop)
		api.GET("/recording/status", s.getRecordingStatus)

		api.POST("/mixer/start", s.postMixerStart)
		api.POST("/mixer/stop", s.postMixerStop)
		api.POST("/mixer/scene/:id", s.postMixerScene)
		api.POST("/mixer/overlay/:id", s.postMixerOverlay)

		api.GET("/status", s.getStatus)
	}

	hub := newHub(s.bus, s.wsBacklog, s.logger)
	r.GET("/ws/events", hub.serveHTTP)

	return r
}

func (s *Server) getMode(c *gin.Context) {
	mode := s.arb.CurrentMode()
	c.JSON(http.StatusOK, gin.H{"mode": mode, "degraded": s.arb.Degraded()})
}

func (s *Server) postMode(c *gin.Context) {
	target, ok := parseMode(c.Param("mode"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unrecognized mode"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	err := s.arb.SwitchTo(ctx, target)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"mode": s.arb.CurrentMode()})
	case errors.Is(err, perr.ErrBusy):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case s.arb.Degraded():
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "degraded": true})
	default:
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	}
}

func parseMode(s string) (arbiter.Mode, bool) {
	switch arbiter.Mode(s) {
	case arbiter.ModeRecorder:
		return arbiter.ModeRecorder, true
	case arbiter.ModePeerWebRTC:
		return arbiter.ModePeerWebRTC, true
	default:
		return "", false
	}
}

func (s *Server) getIngestStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"cameras": s.cameraSnapshots()})
}

func (s *Server) cameraSnapshots() map[string]ingest.RuntimeState {
	out := make(map[string]ingest.RuntimeState, len(s.supervisors))
	for id, sup := range s.supervisors {
		out[id] = sup.Snapshot()
	}
	return out
}

func (s *Server) postIngestStart(c *gin.Context) {
	sup, ok := s.supervisors[c.Param("cam")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown or disabled camera"})
		return
	}
	sup.EnsureRunning()
	c.JSON(http.StatusOK, gin.H{"camera_id": c.Param("cam"), "status": sup.Snapshot().Status})
}

func (s *Server) postIngestStop(c *gin.Context) {
	sup, ok := s.supervisors[c.Param("cam")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown or disabled camera"})
		return
	}
	sup.Stop()
	c.JSON(http.StatusOK, gin.H{"camera_id": c.Param("cam"), "status": sup.Snapshot().Status})
}

type recordingStartRequest struct {
	Cameras []string `json:"cameras"`
}

func (s *Server) postRecordingStart(c *gin.Context) {
	if s.rec == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "recording supervisor not configured"})
		return
	}
	var req recordingStartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	session, err := s.rec.Start(ctx, req.Cameras)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, session)
	case errors.Is(err, perr.ErrInsufficientDisk):
		c.JSON(http.StatusInsufficientStorage, gin.H{"error": err.Error()})
	case errors.Is(err, perr.ErrBusy), errors.Is(err, perr.ErrNoPublishers):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	}
}

func (s *Server) postRecordingStop(c *gin.Context) {
	if s.rec == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "recording supervisor not configured"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	session, err := s.rec.Stop(ctx)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, session)
}

func (s *Server) getRecordingStatus(c *gin.Context) {
	if s.rec == nil {
		c.JSON(http.StatusOK, recording.StatusSnapshot{})
		return
	}
	c.JSON(http.StatusOK, s.rec.Status())
}

func (s *Server) postMixerStart(c *gin.Context) {
	if s.mix == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "mixer engine not configured"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()
	if err := s.mix.Start(ctx); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.mix.Snapshot())
}

func (s *Server) postMixerStop(c *gin.Context) {
	if s.mix == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "mixer engine not configured"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()
	if err := s.mix.Stop(ctx); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.mix.Snapshot())
}

type mixerSceneRequest struct {
	Transition string `json:"transition"`
}

func (s *Server) postMixerScene(c *gin.Context) {
	if s.mix == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "mixer engine not configured"})
		return
	}
	var req mixerSceneRequest
	_ = c.ShouldBindJSON(&req)
	kind := mixer.TransitionCut
	switch req.Transition {
	case "fade":
		kind = mixer.TransitionFade
	case "wipe":
		kind = mixer.TransitionWipe
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()
	err := s.mix.SetScene(ctx, c.Param("id"), kind)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, s.mix.Snapshot())
	case errors.Is(err, perr.ErrConfigInvalid):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	}
}

type mixerOverlayRequest struct {
	Visible bool `json:"visible"`
}

func (s *Server) postMixerOverlay(c *gin.Context) {
	if s.mix == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "mixer engine not configured"})
		return
	}
	var req mixerOverlayRequest
	_ = c.ShouldBindJSON(&req)

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()
	if err := s.mix.SetOverlay(ctx, c.Param("id"), req.Visible); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.mix.Snapshot())
}

// getStatus implements spec §4.9's aggregate snapshot: every
// sub-snapshot is read independently, with no lock spanning more than
// one component, then combined here.
func (s *Server) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.Aggregate())
}

// StatusResponse is the /api/status aggregate payload.
type StatusResponse struct {
	Mode            string                          `json:"mode"`
	Degraded        bool                            `json:"degraded,omitempty"`
	Cameras         map[string]ingest.RuntimeState  `json:"cameras"`
	Recording       *recording.StatusSnapshot       `json:"recording,omitempty"`
	Mixer           *mixer.MixerState               `json:"mixer,omitempty"`
	Hardware        platform.HardwareSpecs          `json:"hardware"`
	RegistryHealthy bool                            `json:"registry_healthy"`
}

// Aggregate assembles the combined status snapshot without holding any
// cross-component lock (spec §4.9).
func (s *Server) Aggregate() StatusResponse {
	resp := StatusResponse{
		Mode:     string(s.arb.CurrentMode()),
		Degraded: s.arb.Degraded(),
		Cameras:  s.cameraSnapshots(),
		Hardware: platform.DetectHardware(s.storagePath),
	}
	if s.rec != nil {
		snap := s.rec.Status()
		resp.Recording = &snap
	}
	if s.mix != nil {
		snap := s.mix.Snapshot()
		resp.Mixer = &snap
	}
	if s.reg != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_, err := s.reg.ListPaths(ctx)
		cancel()
		resp.RegistryHealthy = err == nil
	}
	return resp
}
