package ingest

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/mBelstad/preke-r58-recorder-sub003/internal/config"
	"github.com/mBelstad/preke-r58-recorder-sub003/internal/events"
	"github.com/mBelstad/preke-r58-recorder-sub003/internal/obs"
	"github.com/mBelstad/preke-r58-recorder-sub003/internal/pipeline"
	"github.com/mBelstad/preke-r58-recorder-sub003/internal/pipelinerun"
	"github.com/mBelstad/preke-r58-recorder-sub003/internal/platform"
)

const eventsPollInterval = 500 * time.Millisecond

// Supervisor owns one camera's ingest pipeline, following the
// one-goroutine-per-long-lived-component, command-channel-serialized
// model of spec §4.4/§5. The multi-ticker select loop (signal sampler,
// restart debounce, bus-event poll) is grounded on the shape of
// dvr_manager.go's monitorJob, generalized from disk/push monitoring to
// capture-signal sampling and pipeline health classification.
type Supervisor struct {
	cam    config.CameraConfig
	ingest config.IngestDefaults
	base   string // stream server base URL

	probe    CaptureProbe
	resolve  EncoderResolver
	registry PathReader
	bus      *events.Bus
	metrics  *obs.MetricsCollector
	logger   obs.Logger

	commands chan supCommand
	done     chan struct{}

	snapshotBox atomic.Value // RuntimeState
}

type supCommandKind int

const (
	cmdEnsureRunning supCommandKind = iota
	cmdStopSupervisor
)

type supCommand struct {
	kind  supCommandKind
	reply chan struct{}
}

// New constructs a Supervisor for one camera.
func New(cam config.CameraConfig, ingestCfg config.IngestDefaults, streamBase string, probe CaptureProbe, resolve EncoderResolver, registry PathReader, bus *events.Bus, metrics *obs.MetricsCollector, logger obs.Logger) *Supervisor {
	s := &Supervisor{
		cam:      cam,
		ingest:   ingestCfg,
		base:     streamBase,
		probe:    probe,
		resolve:  resolve,
		registry: registry,
		bus:      bus,
		metrics:  metrics,
		logger:   logger,
		commands: make(chan supCommand, 4),
		done:     make(chan struct{}),
	}
	s.snapshotBox.Store(RuntimeState{CameraID: cam.ID, Status: StatusIdle})
	return s
}

// Run starts the supervisor's owning goroutine.
func (s *Supervisor) Run() {
	go s.loop()
}

// EnsureRunning is idempotent; it nudges the supervisor toward a
// running pipeline (spec §4.4).
func (s *Supervisor) EnsureRunning() {
	s.send(cmdEnsureRunning)
}

// Stop stops the pipeline and sets status idle.
func (s *Supervisor) Stop() {
	s.send(cmdStopSupervisor)
}

func (s *Supervisor) send(kind supCommandKind) {
	reply := make(chan struct{})
	select {
	case s.commands <- supCommand{kind: kind, reply: reply}:
		select {
		case <-reply:
		case <-s.done:
		}
	case <-s.done:
	}
}

// Snapshot returns the current CameraRuntimeState without blocking on
// the owning goroutine.
func (s *Supervisor) Snapshot() RuntimeState {
	return s.snapshotBox.Load().(RuntimeState)
}

// Close stops the supervisor's goroutine permanently.
func (s *Supervisor) Close() {
	close(s.done)
}

type loopState struct {
	current           RuntimeState
	runtime           *pipelinerun.Runtime
	failedSamples     int
	changeTimestamps  []time.Time
	pendingResolution *config.Resolution
	// lostSignalAfterStart is set when the capture device drops signal
	// on a pipeline that had already been running, and cleared (and
	// counted as a restart) once signal returns — spec §8 scenario 3's
	// unplug/replug cycle. A cold start (HasSignal was never true) never
	// sets this, so the supervisor's first pipeline start never counts
	// as a restart.
	lostSignalAfterStart bool
}

func (s *Supervisor) loop() {
	ls := &loopState{current: s.Snapshot()}

	sampler := time.NewTicker(s.ingestOr(s.ingest.SampleInterval, 2*time.Second))
	defer sampler.Stop()
	eventsTicker := time.NewTicker(eventsPollInterval)
	defer eventsTicker.Stop()

	var restartTimer *time.Timer
	var restartC <-chan time.Time
	var backoffTimer *time.Timer
	var backoffC <-chan time.Time

	for {
		select {
		case <-s.done:
			if ls.runtime != nil {
				ls.runtime.Stop(context.Background())
			}
			return

		case cmd := <-s.commands:
			switch cmd.kind {
			case cmdEnsureRunning:
				s.startPipeline(ls, nil)
			case cmdStopSupervisor:
				if ls.runtime != nil {
					ls.runtime.Stop(context.Background())
					ls.runtime = nil
				}
				s.transition(ls, StatusIdle, "")
			case cmdMarkStreaming:
				if ls.runtime != nil {
					s.transition(ls, StatusStreaming, "")
				}
			}
			close(cmd.reply)

		case <-sampler.C:
			s.onSample(ls, &restartTimer, &restartC)

		case <-restartC:
			restartC = nil
			if ls.pendingResolution != nil {
				pending := *ls.pendingResolution
				ls.pendingResolution = nil
				s.startPipeline(ls, &pending)
			}

		case <-eventsTicker.C:
			if ls.runtime == nil {
				continue
			}
			for _, ev := range ls.runtime.DrainEvents() {
				if ev.Kind == pipelinerun.EventFatal || ev.Kind == pipelinerun.EventEOS {
					ls.runtime.Stop(context.Background())
					ls.runtime = nil
					ls.current.RestartCount++
					s.transition(ls, StatusError, ev.Message)
					if s.metrics != nil {
						s.metrics.CameraRestarts.WithLabelValues(s.cam.ID).Inc()
					}
					delay := s.backoffDelay(ls.current.RestartCount)
					if backoffTimer != nil {
						backoffTimer.Stop()
					}
					backoffTimer = time.NewTimer(delay)
					backoffC = backoffTimer.C
				}
			}

		case <-backoffC:
			backoffC = nil
			s.startPipeline(ls, nil)
		}
	}
}

func (s *Supervisor) ingestOr(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

func (s *Supervisor) onSample(ls *loopState, restartTimer **time.Timer, restartC *<-chan time.Time) {
	capability := s.probe(s.cam.Device)
	if !capability.Connected() {
		ls.failedSamples++
		if ls.failedSamples >= 2 && ls.current.HasSignal {
			if ls.runtime != nil {
				ls.runtime.Stop(context.Background())
				ls.runtime = nil
			}
			ls.current.HasSignal = false
			ls.lostSignalAfterStart = true
			s.transition(ls, StatusNoSignal, "")
		}
		return
	}
	ls.failedSamples = 0

	observed := firstResolution(capability)
	if observed == nil {
		return
	}

	if !ls.current.HasSignal {
		ls.current.HasSignal = true
		if ls.lostSignalAfterStart {
			ls.lostSignalAfterStart = false
			ls.current.RestartCount++
			if s.metrics != nil {
				s.metrics.CameraRestarts.WithLabelValues(s.cam.ID).Inc()
			}
		}
		s.startPipeline(ls, observed)
		return
	}

	if *observed == ls.current.ActualResolution {
		return
	}

	ls.pendingResolution = observed
	delay := s.debounceDelay(ls)
	if *restartTimer != nil {
		(*restartTimer).Stop()
	}
	*restartTimer = time.NewTimer(delay)
	*restartC = (*restartTimer).C
}

// debounceDelay implements spec §4.4's exponential dampening: the
// first resolution change in a 30s window restarts quickly; subsequent
// changes within that window wait longer, up to a cap.
func (s *Supervisor) debounceDelay(ls *loopState) time.Duration {
	now := time.Now()
	window := s.ingestOr(s.ingest.DebounceWindow, 30*time.Second)
	cutoff := now.Add(-window)
	kept := ls.changeTimestamps[:0]
	for _, t := range ls.changeTimestamps {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	ls.changeTimestamps = append(kept, now)

	if len(ls.changeTimestamps) <= 1 {
		return s.ingestOr(s.ingest.InitialDebounce, time.Second)
	}
	return s.ingestOr(s.ingest.MaxDebounce, 5*time.Second)
}

// backoffDelay implements spec §4.4's restart ladder: 1s, 2s, 5s, 10s,
// then a 30s cap, indexed by cumulative restart_count.
func (s *Supervisor) backoffDelay(restartCount int) time.Duration {
	steps := s.ingest.RestartBackoffSteps
	if len(steps) == 0 {
		steps = []time.Duration{time.Second, 2 * time.Second, 5 * time.Second, 10 * time.Second, 30 * time.Second}
	}
	idx := restartCount - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(steps) {
		idx = len(steps) - 1
	}
	return steps[idx]
}

func (s *Supervisor) startPipeline(ls *loopState, observed *config.Resolution) {
	if ls.runtime != nil {
		ls.runtime.Stop(context.Background())
		ls.runtime = nil
	}
	s.transition(ls, StatusStarting, "")

	is4K := observed != nil && observed.Width >= 3840
	profile, err := s.resolve(s.cam, is4K)
	if err != nil {
		s.transition(ls, StatusError, err.Error())
		return
	}

	var opts []pipeline.Option
	opts = append(opts, pipeline.WithStreamBaseURL(s.base))
	if observed != nil {
		opts = append(opts, pipeline.WithSourceResolution(*observed))
	}
	desc, err := pipeline.Build(pipeline.KindIngest, s.cam, profile, opts...)
	if err != nil {
		s.transition(ls, StatusError, err.Error())
		return
	}

	runtime := pipelinerun.New()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := runtime.Start(ctx, desc.Render()); err != nil {
		s.transition(ls, StatusError, err.Error())
		return
	}

	ls.runtime = runtime
	if observed != nil {
		ls.current.ActualResolution = *observed
	}
	go s.gatePublication(ls.current.CameraID)
}

// gatePublication implements spec §4.4 step 4: status only becomes
// streaming once the stream registry reports the camera's path ready;
// otherwise the supervisor restarts after the publication timeout.
func (s *Supervisor) gatePublication(cameraID string) {
	timeout := s.ingestOr(s.ingest.PublicationTimeout, 15*time.Second)
	poll := s.ingestOr(s.ingest.PublicationPoll, time.Second)
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		if s.registry != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			path, err := s.registry.GetPath(ctx, cameraID)
			cancel()
			if err == nil && path.Ready {
				s.markStreaming()
				return
			}
		}
		time.Sleep(poll)
	}
	s.EnsureRunning()
}

func (s *Supervisor) markStreaming() {
	reply := make(chan struct{})
	select {
	case s.commands <- supCommand{kind: cmdMarkStreaming, reply: reply}:
		select {
		case <-reply:
		case <-s.done:
		}
	case <-s.done:
	}
}

const cmdMarkStreaming supCommandKind = 2

// transition updates the in-loop state, publishes the lock-free
// snapshot, and notifies subscribers exactly once per status change
// (spec §4.4's "notifies subscribers exactly once via a broadcast
// channel on any status change").
func (s *Supervisor) transition(ls *loopState, status Status, lastError string) {
	changed := ls.current.Status != status
	ls.current.Status = status
	ls.current.LastError = lastError
	s.snapshotBox.Store(ls.current)

	if s.metrics != nil {
		s.metrics.CameraStatus.WithLabelValues(s.cam.ID, string(status)).Set(1)
	}
	if changed && s.bus != nil {
		payload, _ := json.Marshal(ls.current)
		s.bus.Publish(events.Event{Topic: "camera", Payload: payload})
	}
}

func firstResolution(capability platform.CaptureCapability) *config.Resolution {
	if len(capability.NativeResolutions) == 0 {
		return nil
	}
	r := capability.NativeResolutions[0]
	return &r
}
