// Command purser is the media-pipeline supervisor's process entry
// point: it loads configuration, builds the platform/pipeline/ingest/
// recording/mixer/arbiter stack, and serves the control plane's REST
// and WebSocket surface. The startup/shutdown shape — .env loading,
// health/metrics wiring, signal handling, graceful teardown — is
// grounded on api_sidecar/cmd/helmsman/main.go.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mBelstad/preke-r58-recorder-sub003/internal/arbiter"
	"github.com/mBelstad/preke-r58-recorder-sub003/internal/config"
	"github.com/mBelstad/preke-r58-recorder-sub003/internal/control"
	"github.com/mBelstad/preke-r58-recorder-sub003/internal/diskspace"
	"github.com/mBelstad/preke-r58-recorder-sub003/internal/events"
	"github.com/mBelstad/preke-r58-recorder-sub003/internal/ingest"
	"github.com/mBelstad/preke-r58-recorder-sub003/internal/mixer"
	"github.com/mBelstad/preke-r58-recorder-sub003/internal/obs"
	"github.com/mBelstad/preke-r58-recorder-sub003/internal/platform"
	"github.com/mBelstad/preke-r58-recorder-sub003/internal/recording"
	"github.com/mBelstad/preke-r58-recorder-sub003/internal/registry"
)

const serviceName = "purser"

func main() {
	configPath := flag.String("config", obs.GetEnv("PURSER_CONFIG", "config.yaml"), "path to the YAML configuration file")
	flag.Parse()

	logger := obs.NewLoggerWithComponent(serviceName)

	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file found, using environment variables")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("failed to load configuration")
	}

	logger.WithFields(obs.Fields{"cameras": len(cfg.Cameras), "mode_default": cfg.Mode.Default}).Info("starting purser media-pipeline supervisor")

	metrics := obs.NewMetricsCollector(serviceName)
	health := obs.NewHealthChecker(serviceName)
	bus := events.NewBus()

	regClient := registry.New(cfg.Registry.BaseURL, cfg.Registry.Username, cfg.Registry.Password, cfg.Registry.Timeout, logger)

	health.AddCheck("config", obs.ConfigurationHealthCheck(map[string]string{
		"recording.base_path": cfg.Recording.BasePath,
		"mode.default":        cfg.Mode.Default,
	}))
	health.AddCheck("stream-registry", registryHealthCheck(regClient))
	health.AddCheck("disk", diskHealthCheck(cfg.Recording.BasePath, cfg.Recording.MinFreeGBStop))

	scenes, err := config.LoadScenes(cfg.Mixer.ScenesPath)
	if err != nil {
		logger.WithError(err).Warn("some scene files failed to load; continuing with what did")
	}

	resolveCamera := func(cam config.CameraConfig, is4K bool) (platform.EncoderProfile, error) {
		return platform.Resolve(cam.Codec, is4K, cam.BitrateKbps, platform.GstElementFinder())
	}
	resolveMixer := func(codec config.Codec, is4K bool) (platform.EncoderProfile, error) {
		return platform.Resolve(codec, is4K, cfg.Mixer.OutputBitrate, platform.GstElementFinder())
	}

	supervisors := make(map[string]*ingest.Supervisor, len(cfg.Cameras))
	for _, cam := range cfg.Cameras {
		if !cam.Enabled {
			continue
		}
		sup := ingest.New(cam, cfg.Ingest, cfg.Registry.StreamBaseURL, platform.ProbeCapture, resolveCamera, regClient, bus, metrics, logger)
		sup.Run() // owning goroutine lives for the process; mode switches only Ensure/Stop it
		supervisors[cam.ID] = sup
	}

	status := &streamingStatus{supervisors: supervisors, registry: regClient}

	recSup := recording.New(cfg.Recording, cfg.Registry.StreamBaseURL, cfg.Cameras, status, bus, metrics, logger)
	mixEngine := mixer.New(cfg.Mixer, cfg.Registry.StreamBaseURL, scenes, status, resolveMixer, bus, metrics, logger)
	mixEngine.Run()

	devices := make([]string, 0, len(cfg.Cameras))
	for _, cam := range cfg.Cameras {
		if cam.Enabled {
			devices = append(devices, cam.Device)
		}
	}

	recorderMode := &recorderModeService{supervisors: supervisors, recording: recSup, mixer: mixEngine, logger: logger}
	peerMode := &peerModeService{baseURL: cfg.Peer.BaseURL, logger: logger}

	statePath := ""
	if cfg.Mode.PersistState {
		statePath = cfg.StatePath
	}
	services := map[arbiter.Mode]arbiter.Service{arbiter.ModeRecorder: recorderMode, arbiter.ModePeerWebRTC: peerMode}
	arb := arbiter.New(arbiter.Mode(cfg.Mode.Default), statePath, services, devices, bus, metrics, logger)

	// New() only records which mode is current (from the persisted
	// state file or cfg.Mode.Default); it never starts services —
	// SwitchTo(currentMode) is a same-mode no-op by design (spec §8's
	// idempotence property). Bring that mode's services up directly on
	// first boot, mirroring what SwitchTo's step 4 would have done.
	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := services[arb.CurrentMode()].Start(startCtx); err != nil {
		logger.WithError(err).Error("failed to start the persisted/default mode's services at startup")
	}
	startCancel()

	watcher, err := config.NewWatcher(*configPath, logger)
	if err != nil {
		logger.WithError(err).Warn("config hot-reload disabled: failed to start file watcher")
	} else {
		defer watcher.Close()
		go watchConfigChanges(watcher, bus, logger)
	}

	server := control.New(logger, metrics, health, bus, arb, cfg.Cameras, supervisors, recSup, mixEngine, regClient, cfg.HTTP.WebSocketBacklog, cfg.Recording.BasePath)
	httpServer := &http.Server{Addr: cfg.HTTP.Addr, Handler: server.Router()}

	go func() {
		logger.WithFields(obs.Fields{"addr": cfg.HTTP.Addr}).Info("serving control plane")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("control plane server failed")
		}
	}()

	waitForShutdown(httpServer, arb, supervisors, mixEngine, logger)
}

// streamingStatus answers both recording.CameraStatusSource and
// mixer.SourceStatus: a configured camera's status comes from its own
// ingest supervisor (no round trip needed); anything else (a guest or
// presentation stream path) is resolved against the stream registry,
// matching spec §4.6's "sources are either a camera_id... or a guest
// id" and §4.5's "subscribes to the camera's stream path, not the
// capture device directly".
type streamingStatus struct {
	supervisors map[string]*ingest.Supervisor
	registry    *registry.Client
}

func (s *streamingStatus) IsStreaming(cameraID string) bool {
	return s.Streaming(cameraID)
}

func (s *streamingStatus) Streaming(source string) bool {
	if sup, ok := s.supervisors[source]; ok {
		return sup.Snapshot().Status == ingest.StatusStreaming
	}
	if s.registry == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	path, err := s.registry.GetPath(ctx, source)
	return err == nil && path.Ready
}

// recorderModeService is the arbiter.Service bundle for recorder mode:
// every enabled camera's ingest supervisor, plus the recording and
// mixer supervisors the REST surface drives independently of mode.
type recorderModeService struct {
	supervisors map[string]*ingest.Supervisor
	recording   *recording.Supervisor
	mixer       *mixer.Engine
	logger      obs.Logger
}

func (r *recorderModeService) Start(ctx context.Context) error {
	for _, sup := range r.supervisors {
		sup.EnsureRunning()
	}
	return nil
}

func (r *recorderModeService) Stop(ctx context.Context) error {
	if _, err := r.recording.Stop(ctx); err != nil && !errors.Is(err, recording.ErrNoActiveSession) {
		r.logger.WithError(err).Warn("failed to stop recording session during mode switch")
	}
	_ = r.mixer.Stop(ctx)
	for _, sup := range r.supervisors {
		sup.Stop()
	}
	return nil
}

// peerModeService adapts the external peer WebRTC signalling daemon
// (spec §1: "treated as an external collaborator") to arbiter.Service
// via bounded HTTP lifecycle calls, the same request-with-short-
// timeout shape as helmsman's notifyFoghornShutdown.
type peerModeService struct {
	baseURL string
	logger  obs.Logger
	client  http.Client
}

func (p *peerModeService) Start(ctx context.Context) error {
	return p.call(ctx, "/start")
}

func (p *peerModeService) Stop(ctx context.Context) error {
	return p.call(ctx, "/stop")
}

func (p *peerModeService) call(ctx context.Context, path string) error {
	if p.baseURL == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("peer_webrtc signalling daemon %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("peer_webrtc signalling daemon %s: status %d", path, resp.StatusCode)
	}
	return nil
}

func registryHealthCheck(client *registry.Client) obs.HealthCheck {
	return func() obs.CheckResult {
		start := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := client.ListPaths(ctx); err != nil {
			return obs.CheckResult{Status: obs.StatusDegraded, Message: err.Error(), Latency: time.Since(start).String()}
		}
		return obs.CheckResult{Status: obs.StatusHealthy, Latency: time.Since(start).String()}
	}
}

func diskHealthCheck(basePath string, minFreeGB float64) obs.HealthCheck {
	return func() obs.CheckResult {
		start := time.Now()
		below, space, err := diskspace.BelowStopFloor(basePath, minFreeGB)
		if err != nil {
			return obs.CheckResult{Status: obs.StatusDegraded, Message: err.Error(), Latency: time.Since(start).String()}
		}
		if below {
			return obs.CheckResult{Status: obs.StatusDegraded, Message: fmt.Sprintf("free space %d bytes below floor", space.AvailableBytes), Latency: time.Since(start).String()}
		}
		return obs.CheckResult{Status: obs.StatusHealthy, Latency: time.Since(start).String()}
	}
}

// watchConfigChanges logs each hot-reloaded configuration and
// publishes a "config" event on the bus. It does not reconcile
// supervisors: no ingest supervisor is created or stopped for a camera
// added or removed by a reload, and running supervisors keep the
// configuration they were started with.
func watchConfigChanges(watcher *config.Watcher, bus *events.Bus, logger obs.Logger) {
	for cfg := range watcher.Changes() {
		logger.WithFields(obs.Fields{"cameras": len(cfg.Cameras)}).Info("configuration reloaded")
		bus.Publish(events.Event{Topic: "config", Payload: []byte(`{"reloaded":true}`)})
	}
}

func waitForShutdown(httpServer *http.Server, arb *arbiter.Arbiter, supervisors map[string]*ingest.Supervisor, mixEngine *mixer.Engine, logger obs.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.WithFields(obs.Fields{"signal": sig.String()}).Info("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.WithError(err).Warn("control plane server did not shut down cleanly")
	}

	_ = mixEngine.Stop(ctx)
	for _, sup := range supervisors {
		sup.Stop()
		sup.Close()
	}

	logger.Info("purser shut down")
}
