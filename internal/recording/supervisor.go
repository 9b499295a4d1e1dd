package recording

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mBelstad/preke-r58-recorder-sub003/internal/config"
	"github.com/mBelstad/preke-r58-recorder-sub003/internal/diskspace"
	"github.com/mBelstad/preke-r58-recorder-sub003/internal/events"
	"github.com/mBelstad/preke-r58-recorder-sub003/internal/obs"
	"github.com/mBelstad/preke-r58-recorder-sub003/internal/perr"
	"github.com/mBelstad/preke-r58-recorder-sub003/internal/pipeline"
	"github.com/mBelstad/preke-r58-recorder-sub003/internal/pipelinerun"
	"github.com/mBelstad/preke-r58-recorder-sub003/internal/platform"
)

// ErrNoActiveSession is returned by Stop when there has never been a
// session to stop. Stop on an already-completed session is idempotent
// (spec §4.5/§8) and returns the last completed session instead.
var ErrNoActiveSession = errors.New("no active recording session")

const (
	diskWatchInterval      = 5 * time.Second
	stallWatchInterval     = 10 * time.Second
	stopDeadlinePerPipeline = 30 * time.Second
)

// CameraStatusSource reports whether a configured camera is currently
// streaming, satisfied by the set of ingest supervisors the arbiter
// owns — recording subscribes to a camera's stream path, never the
// capture device directly (spec §4.2/§4.5).
type CameraStatusSource interface {
	IsStreaming(cameraID string) bool
}

// Supervisor is the session-scoped recording supervisor (spec §4.5):
// at most one active session, process-wide.
type Supervisor struct {
	cfg        config.RecordingConfig
	streamBase string
	cameras    map[string]config.CameraConfig
	status     CameraStatusSource
	bus        *events.Bus
	metrics    *obs.MetricsCollector
	logger     obs.Logger

	mu     sync.Mutex
	active *activeSession
	last   *Session
}

type activeSession struct {
	session   Session
	runtimes  map[string]*pipelinerun.Runtime
	lastBytes map[string]uint64
	stallHits map[string]int
	done      chan struct{}
}

// New constructs a recording Supervisor.
func New(cfg config.RecordingConfig, streamBase string, cameras []config.CameraConfig, status CameraStatusSource, bus *events.Bus, metrics *obs.MetricsCollector, logger obs.Logger) *Supervisor {
	byID := make(map[string]config.CameraConfig, len(cameras))
	for _, cam := range cameras {
		byID[cam.ID] = cam
	}
	return &Supervisor{
		cfg:        cfg,
		streamBase: streamBase,
		cameras:    byID,
		status:     status,
		bus:        bus,
		metrics:    metrics,
		logger:     logger,
	}
}

// Start begins a new session recording the requested cameras (spec
// §4.5). Only cameras currently streaming are actually recorded; the
// returned Session.Cameras reflects that filtered set.
func (s *Supervisor) Start(ctx context.Context, cameraIDs []string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil {
		return Session{}, fmt.Errorf("%w: a recording session is already active", perr.ErrBusy)
	}

	if err := diskspace.GateStart(s.cfg.BasePath, s.cfg.MinFreeGBStart); err != nil {
		return Session{}, fmt.Errorf("%w: %v", perr.ErrInsufficientDisk, err)
	}

	var streaming []string
	for _, id := range cameraIDs {
		if s.status != nil && s.status.IsStreaming(id) {
			streaming = append(streaming, id)
		}
	}
	if len(streaming) == 0 {
		return Session{}, fmt.Errorf("%w: none of %v are currently streaming", perr.ErrNoPublishers, cameraIDs)
	}

	now := time.Now()
	sess := Session{
		SessionID: newSessionID(now),
		CreatedAt: now,
		Cameras:   streaming,
		Files:     make(map[string][]string),
		Status:    StatusActive,
	}

	as := &activeSession{
		session:   sess,
		runtimes:  make(map[string]*pipelinerun.Runtime),
		lastBytes: make(map[string]uint64),
		stallHits: make(map[string]int),
		done:      make(chan struct{}),
	}

	for _, id := range streaming {
		cam, ok := s.cameras[id]
		if !ok {
			continue
		}
		path, err := s.startSegment(ctx, cam)
		if err != nil {
			s.logger.WithFields(obs.Fields{"camera_id": id, "error": err}).Error("failed to start recording pipeline")
			continue
		}
		as.runtimes[id] = path.runtime
		as.session.appendFile(id, path.filePath)
	}

	if err := persist(s.sessionsDir(), &as.session); err != nil {
		for _, rt := range as.runtimes {
			rt.Stop(context.Background())
		}
		return Session{}, fmt.Errorf("persist session record: %w", err)
	}

	s.active = as
	if s.metrics != nil {
		s.metrics.SessionActive.Set(1)
	}
	s.publish("session", as.session)

	go s.watch(as)

	return as.session, nil
}

type segmentHandle struct {
	runtime  *pipelinerun.Runtime
	filePath string
}

// startSegment builds and starts a single camera's recording pipeline,
// naming its file recordings/{camera_id}/recording_{timestamp}.{ext}
// per spec §6.
func (s *Supervisor) startSegment(ctx context.Context, cam config.CameraConfig) (segmentHandle, error) {
	dir := filepath.Join(s.cfg.BasePath, cam.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return segmentHandle{}, fmt.Errorf("create recording dir: %w", err)
	}
	ext := pipeline.ContainerExtension(cam.Codec)
	filePath := filepath.Join(dir, fmt.Sprintf("recording_%s.%s", time.Now().Format("20060102_150405"), ext))

	desc, err := pipeline.Build(pipeline.KindRecording, cam, platform.EncoderProfile{},
		pipeline.WithStreamBaseURL(s.streamBase),
		pipeline.WithRecording(filePath, s.segmentSeconds()))
	if err != nil {
		return segmentHandle{}, err
	}

	runtime := pipelinerun.New()
	startCtx, cancel := context.WithTimeout(ctx, defaultRecordingStartDeadline)
	defer cancel()
	if err := runtime.Start(startCtx, desc.Render()); err != nil {
		runtime.Close()
		return segmentHandle{}, err
	}
	return segmentHandle{runtime: runtime, filePath: filePath}, nil
}

const defaultRecordingStartDeadline = 10 * time.Second

func (s *Supervisor) segmentSeconds() int {
	if s.cfg.SegmentSeconds <= 0 {
		return 1
	}
	return s.cfg.SegmentSeconds
}

func (s *Supervisor) sessionsDir() string {
	return filepath.Join(filepath.Dir(s.cfg.BasePath), "sessions")
}

// watch runs the disk and recording watchdogs for one active session
// (spec §4.5): a multi-ticker loop grounded on dvr_manager.go's
// monitorJob shape, generalized from push-job monitoring to local
// per-camera pipeline stall detection.
func (s *Supervisor) watch(as *activeSession) {
	diskTicker := time.NewTicker(diskWatchInterval)
	defer diskTicker.Stop()
	stallTicker := time.NewTicker(stallWatchInterval)
	defer stallTicker.Stop()

	for {
		select {
		case <-as.done:
			return
		case <-diskTicker.C:
			below, space, err := diskspace.BelowStopFloor(s.cfg.BasePath, s.cfg.MinFreeGBStop)
			if s.metrics != nil && err == nil {
				s.metrics.DiskFreeBytes.Set(float64(space.AvailableBytes))
			}
			if err == nil && below {
				s.logger.Warn("disk free space crossed stop floor, auto-stopping session")
				s.mu.Lock()
				if s.active == as {
					s.stopLocked(as, "disk_low")
				}
				s.mu.Unlock()
				return
			}
		case <-stallTicker.C:
			s.checkStalls(as)
		}
	}
}

// checkStalls implements spec §4.5's recording watchdog: a
// produced-bytes counter that does not advance across two consecutive
// 10s samples marks that camera's pipeline stalled and restarts it,
// preserving file continuity by opening a new segment file adjacent to
// the original.
func (s *Supervisor) checkStalls(as *activeSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != as {
		return
	}

	for camID, runtime := range as.runtimes {
		snap := runtime.Snapshot()
		if !snap.BytesTracked {
			// This engine can't report real bytes written (no recsink
			// probe attached, or a simulated engine in tests) — treat
			// as healthy rather than stalled, per spec §4.5: the
			// watchdog only acts on an observed non-advancing counter.
			as.stallHits[camID] = 0
			continue
		}
		last := as.lastBytes[camID]
		as.lastBytes[camID] = snap.BytesProduced

		if snap.BytesProduced > last {
			as.stallHits[camID] = 0
			continue
		}
		as.stallHits[camID]++
		if as.stallHits[camID] < 2 {
			continue
		}
		as.stallHits[camID] = 0

		cam, ok := s.cameras[camID]
		if !ok {
			continue
		}
		s.logger.WithFields(obs.Fields{"camera_id": camID}).Warn("recording pipeline stalled, opening a new segment")
		runtime.Stop(context.Background())
		runtime.Close()

		handle, err := s.startSegment(context.Background(), cam)
		if err != nil {
			s.logger.WithFields(obs.Fields{"camera_id": camID, "error": err}).Error("failed to restart stalled recording pipeline")
			delete(as.runtimes, camID)
			continue
		}
		as.runtimes[camID] = handle.runtime
		as.lastBytes[camID] = 0
		as.session.appendFile(camID, handle.filePath)
		_ = persist(s.sessionsDir(), &as.session)
	}
}

// Stop completes the active session: stops every pipeline (in
// parallel, bounded by stopDeadlinePerPipeline), finalizes and
// persists the session record. Idempotent once the session has
// completed (spec §4.5/§8).
func (s *Supervisor) Stop(ctx context.Context) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		if s.last != nil {
			return *s.last, nil
		}
		return Session{}, ErrNoActiveSession
	}
	return s.stopLocked(s.active, "")
}

func (s *Supervisor) stopLocked(as *activeSession, annotation string) (Session, error) {
	close(as.done)

	var wg sync.WaitGroup
	var mu sync.Mutex
	for camID, runtime := range as.runtimes {
		wg.Add(1)
		go func(camID string, rt *pipelinerun.Runtime) {
			defer wg.Done()
			stopCtx, cancel := context.WithTimeout(context.Background(), stopDeadlinePerPipeline)
			defer cancel()
			done := make(chan error, 1)
			go func() { done <- rt.Stop(stopCtx) }()
			select {
			case <-done:
			case <-stopCtx.Done():
				mu.Lock()
				as.session.Annotations = append(as.session.Annotations, fmt.Sprintf("camera %s: unclean stop", camID))
				mu.Unlock()
			}
			rt.Close()
		}(camID, runtime)
	}
	wg.Wait()

	as.session.Status = StatusCompleted
	if annotation != "" {
		as.session.Annotations = append(as.session.Annotations, annotation)
	}
	_ = persist(s.sessionsDir(), &as.session)

	if s.metrics != nil {
		s.metrics.SessionActive.Set(0)
	}
	s.publish("session", as.session)

	finished := as.session
	s.last = &finished
	s.active = nil
	return finished, nil
}

// StatusSnapshot is the aggregate view spec §4.5's status() returns.
type StatusSnapshot struct {
	Active    bool              `json:"active"`
	Session   *Session          `json:"session,omitempty"`
	DiskFree  *diskspace.Space  `json:"disk_free,omitempty"`
	PerCamera map[string]string `json:"per_camera_state,omitempty"`
}

// Status reports the current session (if any), free disk space, and
// each recorded camera's pipeline state.
func (s *Supervisor) Status() StatusSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	space, _ := diskspace.Stat(s.cfg.BasePath)

	if s.active == nil {
		return StatusSnapshot{Active: false, Session: s.copySessionLocked(s.last), DiskFree: space}
	}

	perCamera := make(map[string]string, len(s.active.runtimes))
	for camID, rt := range s.active.runtimes {
		perCamera[camID] = string(rt.Snapshot().State)
	}
	sess := s.active.session
	return StatusSnapshot{Active: true, Session: &sess, DiskFree: space, PerCamera: perCamera}
}

func (s *Supervisor) copySessionLocked(sess *Session) *Session {
	if sess == nil {
		return nil
	}
	cp := *sess
	return &cp
}

func (s *Supervisor) publish(topic string, v any) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	s.bus.Publish(events.Event{Topic: topic, Payload: payload})
}
