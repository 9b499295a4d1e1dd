package arbiter

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mBelstad/preke-r58-recorder-sub003/internal/obs"
	"github.com/mBelstad/preke-r58-recorder-sub003/internal/perr"
)

type fakeService struct {
	mu        sync.Mutex
	startErr  error
	stopErr   error
	starts    int
	stops     int
	startHang time.Duration
}

func (f *fakeService) Start(ctx context.Context) error {
	f.mu.Lock()
	f.starts++
	f.mu.Unlock()
	if f.startHang > 0 {
		select {
		case <-time.After(f.startHang):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.startErr
}

func (f *fakeService) Stop(ctx context.Context) error {
	f.mu.Lock()
	f.stops++
	f.mu.Unlock()
	return f.stopErr
}

func testArbiter(t *testing.T, services map[Mode]Service) *Arbiter {
	t.Helper()
	statePath := filepath.Join(t.TempDir(), "mode_state.json")
	return New(ModeRecorder, statePath, services, nil, nil, nil, obs.NewLogger())
}

func TestArbiter_SwitchToSameModeIsNoOp(t *testing.T) {
	recorder := &fakeService{}
	a := testArbiter(t, map[Mode]Service{ModeRecorder: recorder, ModePeerWebRTC: &fakeService{}})

	if err := a.SwitchTo(context.Background(), ModeRecorder); err != nil {
		t.Fatalf("SwitchTo same mode: %v", err)
	}
	if recorder.starts != 0 || recorder.stops != 0 {
		t.Fatalf("expected no start/stop calls for a same-mode switch, got starts=%d stops=%d", recorder.starts, recorder.stops)
	}
}

func TestArbiter_SwitchToTargetModeSucceeds(t *testing.T) {
	recorder := &fakeService{}
	peer := &fakeService{}
	a := testArbiter(t, map[Mode]Service{ModeRecorder: recorder, ModePeerWebRTC: peer})

	if err := a.SwitchTo(context.Background(), ModePeerWebRTC); err != nil {
		t.Fatalf("SwitchTo: %v", err)
	}
	if a.CurrentMode() != ModePeerWebRTC {
		t.Fatalf("expected current mode peer_webrtc, got %q", a.CurrentMode())
	}
	if recorder.stops != 1 {
		t.Fatalf("expected recorder stopped once, got %d", recorder.stops)
	}
	if peer.starts != 1 {
		t.Fatalf("expected peer started once, got %d", peer.starts)
	}
}

func TestArbiter_SwitchToUnknownModeFails(t *testing.T) {
	a := testArbiter(t, map[Mode]Service{ModeRecorder: &fakeService{}})
	err := a.SwitchTo(context.Background(), Mode("bogus"))
	if !errors.Is(err, perr.ErrConfigInvalid) {
		t.Fatalf("expected ErrConfigInvalid, got %v", err)
	}
}

func TestArbiter_FailedTargetStartRollsBackToPreviousMode(t *testing.T) {
	recorder := &fakeService{}
	peer := &fakeService{startErr: errors.New("signalling daemon unreachable")}
	a := testArbiter(t, map[Mode]Service{ModeRecorder: recorder, ModePeerWebRTC: peer})

	err := a.SwitchTo(context.Background(), ModePeerWebRTC)
	if err == nil {
		t.Fatal("expected an error when the target mode fails to start")
	}
	if a.CurrentMode() != ModeRecorder {
		t.Fatalf("expected rollback to recorder, got %q", a.CurrentMode())
	}
	if a.Degraded() {
		t.Fatal("expected a successful rollback to not leave the arbiter degraded")
	}
	// recorder.Start is called once: New doesn't start anything, so the
	// only start is the one made by the rollback.
	if recorder.starts != 1 {
		t.Fatalf("expected recorder restarted once during rollback, got %d", recorder.starts)
	}
}

func TestArbiter_FailedTargetAndFailedRollbackGoesDegraded(t *testing.T) {
	recorder := &fakeService{startErr: errors.New("devices gone")}
	peer := &fakeService{startErr: errors.New("signalling daemon unreachable")}
	a := testArbiter(t, map[Mode]Service{ModeRecorder: recorder, ModePeerWebRTC: peer})

	err := a.SwitchTo(context.Background(), ModePeerWebRTC)
	if err == nil {
		t.Fatal("expected an error")
	}
	if !a.Degraded() {
		t.Fatal("expected arbiter to be degraded after both target start and rollback fail")
	}
	if a.CurrentMode() != "" {
		t.Fatalf("expected current_mode to report null while degraded, got %q", a.CurrentMode())
	}
}

func TestArbiter_ConcurrentSwitchFailsFastWithBusy(t *testing.T) {
	recorder := &fakeService{}
	peer := &fakeService{startHang: 200 * time.Millisecond}
	a := testArbiter(t, map[Mode]Service{ModeRecorder: recorder, ModePeerWebRTC: peer})

	done := make(chan error, 1)
	go func() { done <- a.SwitchTo(context.Background(), ModePeerWebRTC) }()
	time.Sleep(20 * time.Millisecond)

	err := a.SwitchTo(context.Background(), ModeRecorder)
	if !errors.Is(err, perr.ErrBusy) {
		t.Fatalf("expected ErrBusy for a concurrent switch, got %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("first switch: %v", err)
	}
}

func TestArbiter_PersistsModeAcrossRestart(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "mode_state.json")
	services := map[Mode]Service{ModeRecorder: &fakeService{}, ModePeerWebRTC: &fakeService{}}

	a := New(ModeRecorder, statePath, services, nil, nil, nil, obs.NewLogger())
	if err := a.SwitchTo(context.Background(), ModePeerWebRTC); err != nil {
		t.Fatalf("SwitchTo: %v", err)
	}

	restarted := New(ModeRecorder, statePath, services, nil, nil, nil, obs.NewLogger())
	if restarted.CurrentMode() != ModePeerWebRTC {
		t.Fatalf("expected restarted arbiter to load persisted mode peer_webrtc, got %q", restarted.CurrentMode())
	}
}
