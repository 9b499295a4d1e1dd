// Package mixer implements the live video mixer (spec §4.6): a
// composition of scene-defined source branches and a graphics overlay
// layer, encoded to a single program output. It follows the same
// single-owner, command-channel concurrency model as
// internal/ingest.Supervisor and internal/pipelinerun.Runtime.
package mixer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mBelstad/preke-r58-recorder-sub003/internal/config"
	"github.com/mBelstad/preke-r58-recorder-sub003/internal/events"
	"github.com/mBelstad/preke-r58-recorder-sub003/internal/mixer/graphics"
	"github.com/mBelstad/preke-r58-recorder-sub003/internal/obs"
	"github.com/mBelstad/preke-r58-recorder-sub003/internal/perr"
	"github.com/mBelstad/preke-r58-recorder-sub003/internal/pipeline"
	"github.com/mBelstad/preke-r58-recorder-sub003/internal/pipelinerun"
	"github.com/mBelstad/preke-r58-recorder-sub003/internal/platform"
)

const placeholderPollInterval = time.Second

// OutputState is the mixer program output's lifecycle state (spec
// §4.6).
type OutputState string

const (
	OutputNull    OutputState = "null"
	OutputReady   OutputState = "ready"
	OutputPlaying OutputState = "playing"
	OutputError   OutputState = "error"
)

// TransitionKind is how set_scene moves from the previous scene to
// the next one.
type TransitionKind string

const (
	TransitionCut  TransitionKind = "cut"
	TransitionFade TransitionKind = "fade"
	TransitionWipe TransitionKind = "wipe"
)

func (k TransitionKind) duration() time.Duration {
	switch k {
	case TransitionFade:
		return 400 * time.Millisecond // within the 200-1000ms band, spec §4.6
	case TransitionWipe:
		return 500 * time.Millisecond
	default:
		return 0
	}
}

// Transition describes an in-progress scene change.
type Transition struct {
	Kind         TransitionKind `json:"kind"`
	RemainingMS  int            `json:"remaining_ms"`
}

// MixerState is the engine's externally visible snapshot (spec §4.6).
type MixerState struct {
	CurrentScene     string      `json:"current_scene,omitempty"`
	PreviousScene    string      `json:"previous_scene,omitempty"`
	Transition       *Transition `json:"transition,omitempty"`
	OutputState      OutputState `json:"output_state"`
	GraphicsOverlays []string    `json:"graphics_overlay_set"`
}

// SourceStatus answers whether a scene slot's source (a camera,
// presentation or guest stream path) is currently streaming. Defined
// locally, mirroring ingest.PathReader, so this package never imports
// internal/registry directly; *registry.Client satisfies it via
// GetPath plus a Ready check the composition root adapts.
type SourceStatus interface {
	Streaming(source string) bool
}

// EncoderResolver resolves the mixer program's output codec to a
// concrete encoder profile, mirroring ingest.EncoderResolver. Injected
// so tests don't depend on gst.Find.
type EncoderResolver func(codec config.Codec, is4K bool) (platform.EncoderProfile, error)

// Engine owns the mixer_program pipeline and one branch pipeline per
// actively streaming, non-placeholder slot source.
type Engine struct {
	cfg        config.MixerConfig
	streamBase string
	scenes     map[string]config.Scene
	status     SourceStatus
	resolve    EncoderResolver
	bus        *events.Bus
	metrics    *obs.MetricsCollector
	logger     obs.Logger

	graphicsRenderer *graphics.Renderer

	commands chan engCommand
	done     chan struct{}

	snapshotBox atomic.Value // MixerState
}

type engCommandKind int

const (
	cmdStart engCommandKind = iota
	cmdStop
	cmdSetScene
	cmdSetOverlay
)

type engCommand struct {
	kind       engCommandKind
	sceneID    string
	transition TransitionKind
	overlayID  string
	visible    bool
	reply      chan error
}

// New constructs a mixer Engine. scenes is the loaded scene set (spec
// §4.6: "scenes are configuration... loaded from a scenes directory").
func New(cfg config.MixerConfig, streamBase string, scenes map[string]config.Scene, status SourceStatus, resolve EncoderResolver, bus *events.Bus, metrics *obs.MetricsCollector, logger obs.Logger) *Engine {
	e := &Engine{
		cfg:              cfg,
		streamBase:       streamBase,
		scenes:           scenes,
		status:           status,
		resolve:          resolve,
		bus:              bus,
		metrics:          metrics,
		logger:           logger,
		graphicsRenderer: graphics.NewRenderer(200*time.Millisecond, 200*time.Millisecond),
		commands:         make(chan engCommand, 4),
		done:             make(chan struct{}),
	}
	e.snapshotBox.Store(MixerState{OutputState: OutputNull})
	return e
}

// Run starts the engine's owning goroutine.
func (e *Engine) Run() {
	go e.loop()
}

// Close stops the engine's goroutine permanently.
func (e *Engine) Close() {
	close(e.done)
}

// Snapshot returns the current MixerState without blocking on the
// owning goroutine.
func (e *Engine) Snapshot() MixerState {
	return e.snapshotBox.Load().(MixerState)
}

// Start brings the composition and output encoder online with no
// active scene (an empty composition); callers typically follow with
// SetScene.
func (e *Engine) Start(ctx context.Context) error {
	return e.do(ctx, engCommand{kind: cmdStart})
}

// Stop tears down the composition and every active branch.
func (e *Engine) Stop(ctx context.Context) error {
	return e.do(ctx, engCommand{kind: cmdStop})
}

// SetScene applies a scene by id using the given transition kind.
func (e *Engine) SetScene(ctx context.Context, sceneID string, transition TransitionKind) error {
	return e.do(ctx, engCommand{kind: cmdSetScene, sceneID: sceneID, transition: transition})
}

// SetOverlay toggles a graphics layer's visibility.
func (e *Engine) SetOverlay(ctx context.Context, graphicsID string, visible bool) error {
	return e.do(ctx, engCommand{kind: cmdSetOverlay, overlayID: graphicsID, visible: visible})
}

func (e *Engine) do(ctx context.Context, cmd engCommand) error {
	cmd.reply = make(chan error, 1)
	select {
	case e.commands <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return perr.ErrStartTimeout
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return nil
	}
}

// branch is one currently running, non-placeholder source feed into
// the compositor.
type branch struct {
	source  string
	runtime *pipelinerun.Runtime
}

type loopState struct {
	state    MixerState
	program  *pipelinerun.Runtime
	branches map[string]*branch
	profile  platform.EncoderProfile

	pendingRemovals []string
	transitionTimer *time.Timer
	transitionC     <-chan time.Time
}

func (e *Engine) loop() {
	ls := &loopState{state: e.Snapshot(), branches: make(map[string]*branch)}

	pollTicker := time.NewTicker(placeholderPollInterval)
	defer pollTicker.Stop()

	for {
		select {
		case <-e.done:
			e.teardown(ls)
			return

		case <-pollTicker.C:
			if ls.state.OutputState == OutputPlaying && ls.state.CurrentScene != "" {
				e.promotePlaceholders(ls)
			}

		case <-ls.transitionC:
			ls.transitionC = nil
			e.finishTransition(ls)

		case cmd := <-e.commands:
			var err error
			switch cmd.kind {
			case cmdStart:
				err = e.handleStart(ls)
			case cmdStop:
				e.teardown(ls)
				ls.state = MixerState{OutputState: OutputNull}
				e.publish(ls)
			case cmdSetScene:
				err = e.handleSetScene(ls, cmd.sceneID, cmd.transition)
			case cmdSetOverlay:
				e.handleSetOverlay(ls, cmd.overlayID, cmd.visible)
			}
			cmd.reply <- err
		}
	}
}

func (e *Engine) handleStart(ls *loopState) error {
	if ls.state.OutputState == OutputPlaying {
		return nil
	}
	ls.state.OutputState = OutputReady
	e.publish(ls)

	desc, err := pipeline.Build(pipeline.KindMixerProgram, emptyCamera(), e.resolveProfile(ls),
		pipeline.WithStreamBaseURL(e.streamBase),
		pipeline.WithMixerOutput(e.cfg),
		pipeline.WithMixerSlots(nil))
	if err != nil {
		ls.state.OutputState = OutputError
		return err
	}

	runtime := pipelinerun.New()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := runtime.Start(ctx, desc.Render()); err != nil {
		ls.state.OutputState = OutputError
		return fmt.Errorf("%w: mixer program start", perr.ErrStartTimeout)
	}

	ls.program = runtime
	ls.state.OutputState = OutputPlaying
	e.publish(ls)
	return nil
}

func (e *Engine) handleSetScene(ls *loopState, sceneID string, kind TransitionKind) error {
	if ls.state.OutputState != OutputPlaying {
		return fmt.Errorf("mixer output is not playing")
	}
	scene, ok := e.scenes[sceneID]
	if !ok {
		return fmt.Errorf("%w: unknown scene %q", perr.ErrConfigInvalid, sceneID)
	}

	// set_scene(S); set_scene(S) is a no-op (spec §4.6 edge case).
	if ls.state.CurrentScene == sceneID && ls.transitionC == nil {
		return nil
	}

	active := make(map[string]bool, len(ls.branches))
	for src := range ls.branches {
		active[src] = true
	}
	diff := reconcileBranches(active, scene)

	for _, src := range diff.toAdd {
		if !e.isStreaming(src) {
			continue // stays a placeholder until it becomes ready
		}
		e.startBranch(ls, src)
	}

	duration := kind.duration()
	if e.metrics != nil {
		e.metrics.MixerTransitions.WithLabelValues(string(kind)).Inc()
	}
	ls.state.PreviousScene = ls.state.CurrentScene
	ls.state.CurrentScene = sceneID

	if duration == 0 {
		e.applyScenePipeline(ls, scene)
		e.stopRemovedBranches(ls, diff.toRemove)
		ls.state.Transition = nil
		e.publish(ls)
		return nil
	}

	ls.state.Transition = &Transition{Kind: kind, RemainingMS: int(duration / time.Millisecond)}
	e.applyScenePipeline(ls, scene)
	if ls.transitionTimer != nil {
		ls.transitionTimer.Stop()
	}
	ls.transitionTimer = time.NewTimer(duration)
	ls.transitionC = ls.transitionTimer.C
	ls.pendingRemovals = diff.toRemove
	e.publish(ls)
	return nil
}

func (e *Engine) finishTransition(ls *loopState) {
	ls.state.Transition = nil
	e.stopRemovedBranches(ls, ls.pendingRemovals)
	ls.pendingRemovals = nil
	e.publish(ls)
}

func (e *Engine) stopRemovedBranches(ls *loopState, sources []string) {
	for _, src := range sources {
		b, ok := ls.branches[src]
		if !ok {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		b.runtime.Stop(ctx)
		cancel()
		delete(ls.branches, src)
	}
}

func (e *Engine) startBranch(ls *loopState, source string) {
	cam := config.CameraConfig{ID: source}
	desc, err := pipeline.Build(pipeline.KindMixerBranch, cam, e.resolveProfile(ls), pipeline.WithStreamBaseURL(e.streamBase))
	if err != nil {
		return
	}
	runtime := pipelinerun.New()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := runtime.Start(ctx, desc.Render()); err != nil {
		// Branch failure falls back to placeholder, never fails the
		// mixer as a whole (spec §4.6 failure semantics).
		return
	}
	ls.branches[source] = &branch{source: source, runtime: runtime}
}

// applyScenePipeline rebuilds the mixer_program's slot composition to
// reflect the target scene, marking any slot whose branch isn't
// running (including one that failed to start) as a placeholder.
func (e *Engine) applyScenePipeline(ls *loopState, scene config.Scene) {
	sources := buildSlotSources(scene, func(src string) bool {
		_, running := ls.branches[src]
		return running
	})
	slots := make([]pipeline.MixerSlotSource, 0, len(sources))
	for _, s := range sources {
		slots = append(slots, pipeline.MixerSlotSource{
			StreamPath:  s.Source,
			X:           s.X,
			Y:           s.Y,
			W:           s.W,
			H:           s.H,
			Z:           s.Z,
			Opacity:     s.Opacity,
			Placeholder: s.Placeholder,
		})
	}

	desc, err := pipeline.Build(pipeline.KindMixerProgram, emptyCamera(), e.resolveProfile(ls),
		pipeline.WithStreamBaseURL(e.streamBase),
		pipeline.WithMixerOutput(e.cfg),
		pipeline.WithMixerSlots(slots))
	if err != nil || ls.program == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = ls.program.Start(ctx, desc.Render())
}

// promotePlaceholders checks whether any placeholder slot in the
// current scene has become streaming and, if so, starts its branch
// and rebuilds the composition (spec §4.6: "the slot becomes live
// when the source becomes ready, polled every second").
func (e *Engine) promotePlaceholders(ls *loopState) {
	scene, ok := e.scenes[ls.state.CurrentScene]
	if !ok {
		return
	}
	promoted := false
	for _, slot := range scene.Slots {
		if slot.Source == "" {
			continue
		}
		if _, running := ls.branches[slot.Source]; running {
			continue
		}
		if e.isStreaming(slot.Source) {
			e.startBranch(ls, slot.Source)
			promoted = true
		}
	}
	if promoted {
		e.applyScenePipeline(ls, scene)
		e.publish(ls)
	}
}

func (e *Engine) handleSetOverlay(ls *loopState, graphicsID string, visible bool) {
	if _, ok := e.graphicsRenderer.Get(graphicsID); !ok {
		e.graphicsRenderer.Create(graphicsID, "overlay", 0)
	}
	if visible {
		e.graphicsRenderer.Show(graphicsID)
	} else {
		e.graphicsRenderer.Hide(graphicsID)
	}
	var overlays []string
	for _, id := range e.graphicsRenderer.Visible() {
		if g, ok := e.graphicsRenderer.Get(id); ok && g.Animation != graphics.AnimationExit {
			overlays = append(overlays, id)
		}
	}
	ls.state.GraphicsOverlays = overlays
	e.publish(ls)
}

func (e *Engine) isStreaming(source string) bool {
	if e.status == nil {
		return false
	}
	return e.status.Streaming(source)
}

// resolveProfile resolves the program output's encoder profile on its
// first successful call and caches it in ls.profile; later calls return
// the cached profile. startBranch passes it to the mixer_branch build
// too, which ignores it: a branch's decode-side elements feed raw
// frames into the compositor and need no encoder.
func (e *Engine) resolveProfile(ls *loopState) platform.EncoderProfile {
	if ls.profile.ElementName != "" {
		return ls.profile
	}
	if e.resolve == nil {
		return platform.EncoderProfile{}
	}
	profile, err := e.resolve(e.cfg.OutputCodec, false)
	if err != nil {
		if e.logger != nil {
			e.logger.WithFields(obs.Fields{"error": err.Error()}).Error("resolve mixer encoder profile")
		}
		return platform.EncoderProfile{}
	}
	ls.profile = profile
	return profile
}

func (e *Engine) teardown(ls *loopState) {
	if ls.transitionTimer != nil {
		ls.transitionTimer.Stop()
	}
	var wg sync.WaitGroup
	for src, b := range ls.branches {
		wg.Add(1)
		go func(b *branch) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			b.runtime.Stop(ctx)
		}(b)
		delete(ls.branches, src)
	}
	wg.Wait()
	if ls.program != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		ls.program.Stop(ctx)
		cancel()
		ls.program = nil
	}
}

func (e *Engine) publish(ls *loopState) {
	e.snapshotBox.Store(ls.state)
	if e.bus != nil {
		payload, _ := json.Marshal(ls.state)
		e.bus.Publish(events.Event{Topic: "mixer", Payload: payload})
	}
}

func emptyCamera() config.CameraConfig {
	return config.CameraConfig{}
}
