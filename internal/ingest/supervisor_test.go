package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/mBelstad/preke-r58-recorder-sub003/internal/config"
	"github.com/mBelstad/preke-r58-recorder-sub003/internal/events"
	"github.com/mBelstad/preke-r58-recorder-sub003/internal/obs"
	"github.com/mBelstad/preke-r58-recorder-sub003/internal/platform"
)

type fakeRegistry struct {
	ready bool
}

func (f *fakeRegistry) GetPath(ctx context.Context, name string) (StreamPath, error) {
	return StreamPath{Name: name, Ready: f.ready}, nil
}

func connectedProbe(device string) platform.CaptureCapability {
	return platform.CaptureCapability{
		NativeResolutions: []config.Resolution{{Width: 1920, Height: 1080}},
		Framerates:        []int{30},
		PixelFormats:      []string{"YUYV"},
	}
}

func disconnectedProbe(device string) platform.CaptureCapability {
	return platform.CaptureCapability{}
}

func fakeResolve(cam config.CameraConfig, is4K bool) (platform.EncoderProfile, error) {
	return platform.EncoderProfile{ElementName: "fakeenc", IsHardware: false}, nil
}

func testCamera() config.CameraConfig {
	return config.CameraConfig{ID: "cam0", Device: "/dev/video0", Enabled: true, Codec: config.CodecH264, BitrateKbps: 4000}
}

func testIngestDefaults() config.IngestDefaults {
	return config.IngestDefaults{
		SampleInterval:      20 * time.Millisecond,
		InitialDebounce:     10 * time.Millisecond,
		MaxDebounce:         20 * time.Millisecond,
		DebounceWindow:      time.Second,
		RestartBackoffSteps: []time.Duration{10 * time.Millisecond},
		PublicationTimeout:  200 * time.Millisecond,
		PublicationPoll:     10 * time.Millisecond,
	}
}

func TestSupervisor_StartsIdle(t *testing.T) {
	sup := New(testCamera(), testIngestDefaults(), "rtsp://127.0.0.1:8554", disconnectedProbe, fakeResolve, &fakeRegistry{}, events.NewBus(), nil, obs.NewLogger())
	sup.Run()
	defer sup.Close()

	snap := sup.Snapshot()
	if snap.CameraID != "cam0" || snap.Status != StatusIdle {
		t.Fatalf("expected idle snapshot for cam0, got %+v", snap)
	}
}

func TestSupervisor_EnsureRunningReachesStreamingOncePublished(t *testing.T) {
	reg := &fakeRegistry{ready: true}
	sup := New(testCamera(), testIngestDefaults(), "rtsp://127.0.0.1:8554", connectedProbe, fakeResolve, reg, events.NewBus(), nil, obs.NewLogger())
	sup.Run()
	defer sup.Close()

	sup.EnsureRunning()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sup.Snapshot().Status == StatusStreaming {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected streaming status once registry reports the path ready, last snapshot: %+v", sup.Snapshot())
}

func TestSupervisor_StopReturnsToIdle(t *testing.T) {
	sup := New(testCamera(), testIngestDefaults(), "rtsp://127.0.0.1:8554", connectedProbe, fakeResolve, &fakeRegistry{ready: true}, events.NewBus(), nil, obs.NewLogger())
	sup.Run()
	defer sup.Close()

	sup.EnsureRunning()
	time.Sleep(50 * time.Millisecond)
	sup.Stop()

	if snap := sup.Snapshot(); snap.Status != StatusIdle {
		t.Fatalf("expected idle after Stop, got %+v", snap)
	}
}

func TestSupervisor_PublishesOnStatusChange(t *testing.T) {
	bus := events.NewBus()
	sub := bus.Subscribe(8, "camera")
	defer sub.Close()

	sup := New(testCamera(), testIngestDefaults(), "rtsp://127.0.0.1:8554", connectedProbe, fakeResolve, &fakeRegistry{ready: true}, bus, nil, obs.NewLogger())
	sup.Run()
	defer sup.Close()
	sup.EnsureRunning()

	select {
	case ev := <-sub.C:
		if ev.Topic != "camera" {
			t.Fatalf("expected camera topic, got %q", ev.Topic)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected a camera status event within the timeout")
	}
}
