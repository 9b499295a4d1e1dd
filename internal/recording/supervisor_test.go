package recording

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mBelstad/preke-r58-recorder-sub003/internal/config"
	"github.com/mBelstad/preke-r58-recorder-sub003/internal/obs"
	"github.com/mBelstad/preke-r58-recorder-sub003/internal/perr"
)

type fakeStatus struct {
	streaming map[string]bool
}

func (f fakeStatus) IsStreaming(cameraID string) bool { return f.streaming[cameraID] }

func testSupervisor(t *testing.T, streaming map[string]bool) (*Supervisor, string) {
	t.Helper()
	root := t.TempDir()
	cameras := []config.CameraConfig{
		{ID: "cam0", Codec: config.CodecH264},
		{ID: "cam1", Codec: config.CodecH265},
	}
	cfg := config.RecordingConfig{
		BasePath:       filepath.Join(root, "recordings"),
		MinFreeGBStart: 0,
		MinFreeGBStop:  0,
		SegmentSeconds: 1,
	}
	return New(cfg, "rtsp://127.0.0.1:8554", cameras, fakeStatus{streaming: streaming}, nil, nil, obs.NewLogger()), root
}

func TestSupervisor_StartRecordsOnlyStreamingCameras(t *testing.T) {
	sup, root := testSupervisor(t, map[string]bool{"cam0": true})
	defer func() {
		_, _ = sup.Stop(context.Background())
	}()

	sess, err := sup.Start(context.Background(), []string{"cam0", "cam1"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(sess.Cameras) != 1 || sess.Cameras[0] != "cam0" {
		t.Fatalf("expected only cam0 recorded, got %v", sess.Cameras)
	}

	sessionFile := filepath.Join(filepath.Dir(filepath.Join(root, "recordings")), "sessions", sess.SessionID+".json")
	if _, err := os.Stat(sessionFile); err != nil {
		t.Fatalf("expected session record persisted before Start returns, stat: %v", err)
	}
}

func TestSupervisor_StartFailsWithNoPublishers(t *testing.T) {
	sup, _ := testSupervisor(t, map[string]bool{})
	_, err := sup.Start(context.Background(), []string{"cam0"})
	if !errors.Is(err, perr.ErrNoPublishers) {
		t.Fatalf("expected ErrNoPublishers, got %v", err)
	}
}

func TestSupervisor_StartFailsWhenAlreadyActive(t *testing.T) {
	sup, _ := testSupervisor(t, map[string]bool{"cam0": true})
	if _, err := sup.Start(context.Background(), []string{"cam0"}); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	defer func() { _, _ = sup.Stop(context.Background()) }()

	_, err := sup.Start(context.Background(), []string{"cam0"})
	if !errors.Is(err, perr.ErrBusy) {
		t.Fatalf("expected ErrBusy on second Start, got %v", err)
	}
}

func TestSupervisor_StopIsIdempotentAfterCompletion(t *testing.T) {
	sup, _ := testSupervisor(t, map[string]bool{"cam0": true})
	if _, err := sup.Start(context.Background(), []string{"cam0"}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	first, err := sup.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if first.Status != StatusCompleted {
		t.Fatalf("expected completed status, got %s", first.Status)
	}

	second, err := sup.Stop(context.Background())
	if err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if second.SessionID != first.SessionID {
		t.Fatalf("expected idempotent stop to return the same session")
	}
}

func TestSupervisor_StopWithNoSessionEverStartedErrors(t *testing.T) {
	sup, _ := testSupervisor(t, map[string]bool{})
	_, err := sup.Stop(context.Background())
	if !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("expected ErrNoActiveSession, got %v", err)
	}
}

func TestSupervisor_StatusReflectsActiveSession(t *testing.T) {
	sup, _ := testSupervisor(t, map[string]bool{"cam0": true})
	if _, err := sup.Start(context.Background(), []string{"cam0"}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() { _, _ = sup.Stop(context.Background()) }()

	status := sup.Status()
	if !status.Active {
		t.Fatal("expected active status")
	}
	if status.Session == nil || status.Session.Status != StatusActive {
		t.Fatalf("expected an active session snapshot, got %+v", status.Session)
	}
}

func TestSupervisor_InsufficientDiskRejectsStart(t *testing.T) {
	sup, _ := testSupervisor(t, map[string]bool{"cam0": true})
	sup.cfg.MinFreeGBStart = 1 << 30 // impossibly large floor, in GB units this always fails
	_, err := sup.Start(context.Background(), []string{"cam0"})
	if !errors.Is(err, perr.ErrInsufficientDisk) {
		t.Fatalf("expected ErrInsufficientDisk, got %v", err)
	}
}
