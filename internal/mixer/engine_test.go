package mixer

import (
	"context"
	"testing"
	"time"

	"github.com/mBelstad/preke-r58-recorder-sub003/internal/config"
	"github.com/mBelstad/preke-r58-recorder-sub003/internal/obs"
	"github.com/mBelstad/preke-r58-recorder-sub003/internal/platform"
)

type fakeSourceStatus struct {
	streaming map[string]bool
}

func (f fakeSourceStatus) Streaming(source string) bool { return f.streaming[source] }

func fakeResolver(codec config.Codec, is4K bool) (platform.EncoderProfile, error) {
	return platform.EncoderProfile{ElementName: "x264enc", Properties: map[string]any{"bitrate": 4000}}, nil
}

func testEngine(t *testing.T, scenes map[string]config.Scene, streaming map[string]bool) *Engine {
	t.Helper()
	cfg := config.MixerConfig{OutputResolution: config.Resolution{Width: 1920, Height: 1080}, OutputCodec: config.CodecH264}
	e := New(cfg, "rtsp://127.0.0.1:8554", scenes, fakeSourceStatus{streaming: streaming}, fakeResolver, nil, nil, obs.NewLogger())
	e.Run()
	t.Cleanup(e.Close)
	return e
}

func TestEngine_StartReachesPlaying(t *testing.T) {
	e := testEngine(t, nil, nil)
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if e.Snapshot().OutputState != OutputPlaying {
		t.Fatalf("expected playing, got %s", e.Snapshot().OutputState)
	}
}

func TestEngine_SetSceneWithMissingSourceUsesPlaceholder(t *testing.T) {
	scenes := map[string]config.Scene{
		"two_up": {SceneID: "two_up", Slots: []config.Slot{
			{Source: "cam0", W: 0.5, H: 1, Opacity: 1},
			{Source: "cam_missing", X: 0.5, W: 0.5, H: 1, Opacity: 1},
		}},
	}
	e := testEngine(t, scenes, map[string]bool{"cam0": true})
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := e.SetScene(context.Background(), "two_up", TransitionCut); err != nil {
		t.Fatalf("SetScene: %v", err)
	}

	snap := e.Snapshot()
	if snap.CurrentScene != "two_up" {
		t.Fatalf("expected current_scene two_up, got %q", snap.CurrentScene)
	}
	if snap.Transition != nil {
		t.Fatalf("expected no in-progress transition after a cut, got %+v", snap.Transition)
	}
}

func TestEngine_SetSceneTwiceIsNoOp(t *testing.T) {
	scenes := map[string]config.Scene{
		"solo": {SceneID: "solo", Slots: []config.Slot{{Source: "cam0", W: 1, H: 1, Opacity: 1}}},
	}
	e := testEngine(t, scenes, map[string]bool{"cam0": true})
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := e.SetScene(context.Background(), "solo", TransitionCut); err != nil {
		t.Fatalf("first SetScene: %v", err)
	}
	if err := e.SetScene(context.Background(), "solo", TransitionCut); err != nil {
		t.Fatalf("second SetScene: %v", err)
	}
	if e.Snapshot().CurrentScene != "solo" {
		t.Fatalf("expected scene to remain solo, got %q", e.Snapshot().CurrentScene)
	}
}

func TestEngine_SetSceneUnknownIDFails(t *testing.T) {
	e := testEngine(t, nil, nil)
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := e.SetScene(context.Background(), "does_not_exist", TransitionCut); err == nil {
		t.Fatal("expected an error for an unknown scene id")
	}
}

func TestEngine_FadeTransitionClearsAfterDuration(t *testing.T) {
	scenes := map[string]config.Scene{
		"a": {SceneID: "a", Slots: []config.Slot{{Source: "cam0", W: 1, H: 1, Opacity: 1}}},
		"b": {SceneID: "b", Slots: []config.Slot{{Source: "cam1", W: 1, H: 1, Opacity: 1}}},
	}
	e := testEngine(t, scenes, map[string]bool{"cam0": true, "cam1": true})
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := e.SetScene(context.Background(), "a", TransitionCut); err != nil {
		t.Fatalf("SetScene a: %v", err)
	}
	if err := e.SetScene(context.Background(), "b", TransitionFade); err != nil {
		t.Fatalf("SetScene b: %v", err)
	}

	if e.Snapshot().Transition == nil {
		t.Fatal("expected an in-progress transition right after a fade set_scene")
	}

	time.Sleep(600 * time.Millisecond)
	if e.Snapshot().Transition != nil {
		t.Fatalf("expected transition to clear after its duration, got %+v", e.Snapshot().Transition)
	}
}

func TestEngine_SetOverlayTogglesGraphicsOverlaySet(t *testing.T) {
	e := testEngine(t, nil, nil)
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := e.SetOverlay(context.Background(), "lower_third", true); err != nil {
		t.Fatalf("SetOverlay show: %v", err)
	}
	found := false
	for _, id := range e.Snapshot().GraphicsOverlays {
		if id == "lower_third" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected lower_third in graphics_overlay_set, got %v", e.Snapshot().GraphicsOverlays)
	}

	if err := e.SetOverlay(context.Background(), "lower_third", false); err != nil {
		t.Fatalf("SetOverlay hide: %v", err)
	}
	for _, id := range e.Snapshot().GraphicsOverlays {
		if id == "lower_third" {
			t.Fatal("expected lower_third removed from graphics_overlay_set after hide")
		}
	}
}

func TestEngine_StopTearsDownToNull(t *testing.T) {
	e := testEngine(t, nil, nil)
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := e.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if e.Snapshot().OutputState != OutputNull {
		t.Fatalf("expected null after stop, got %s", e.Snapshot().OutputState)
	}
}
