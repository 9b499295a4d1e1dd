// Package arbiter implements the mode arbiter (spec §4.8): it enforces
// that only one of {recorder, peer_webrtc} holds the shared capture
// devices at a time, and serializes the switch between them. The
// arbiter holds handles to whichever supervisors a mode bundles
// together; it never constructs them itself — the composition root
// wires concrete Services, per spec §9's "no module-level singletons"
// redesign flag.
package arbiter

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/mBelstad/preke-r58-recorder-sub003/internal/events"
	"github.com/mBelstad/preke-r58-recorder-sub003/internal/obs"
	"github.com/mBelstad/preke-r58-recorder-sub003/internal/perr"
	"github.com/mBelstad/preke-r58-recorder-sub003/internal/platform"
)

// Mode is one of the two mutually exclusive operating modes (spec
// §3). The zero value is never a valid configured mode; CurrentMode
// returns it only while the arbiter is in the degraded state.
type Mode string

const (
	ModeRecorder   Mode = "recorder"
	ModePeerWebRTC Mode = "peer_webrtc"
)

// Service is one mode's bundle of supervisors (spec §4.8: "services").
// Start must not return until the bundle has reached its ready signal;
// Stop must run to completion once called, mirroring the
// pipelinerun.Runtime contract the underlying supervisors already
// honor.
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

const (
	stopDeadline       = 5 * time.Second
	deviceReleaseDeadline = 3 * time.Second
	deviceProbeInterval   = 200 * time.Millisecond
	startDeadline      = 10 * time.Second
)

// Arbiter owns current_mode()/switch_to(mode). Switches are serialized
// by the switching flag, checked with a non-blocking compare-and-swap
// so a concurrent call fails fast with ErrBusy (spec §4.8) instead of
// queuing behind the in-flight switch.
type Arbiter struct {
	services  map[Mode]Service
	devices   []string
	statePath string
	bus       *events.Bus
	metrics   *obs.MetricsCollector
	logger    obs.Logger

	currentMode atomic.Value // Mode
	degraded    atomic.Bool
	switching   atomic.Bool
}

// New constructs an Arbiter. If statePath names an existing, readable
// state file, its mode overrides defaultMode (spec §4.8: "persists the
// chosen mode across restart"). statePath == "" disables persistence.
func New(defaultMode Mode, statePath string, services map[Mode]Service, devices []string, bus *events.Bus, metrics *obs.MetricsCollector, logger obs.Logger) *Arbiter {
	a := &Arbiter{
		services:  services,
		devices:   devices,
		statePath: statePath,
		bus:       bus,
		metrics:   metrics,
		logger:    logger,
	}

	mode := defaultMode
	if statePath != "" {
		if saved, ok := loadModeState(statePath); ok {
			mode = saved
		}
	}
	a.currentMode.Store(mode)
	return a
}

// CurrentMode returns the active mode, or "" while degraded.
func (a *Arbiter) CurrentMode() Mode {
	if a.degraded.Load() {
		return ""
	}
	return a.currentMode.Load().(Mode)
}

// Degraded reports whether the arbiter failed to recover from a failed
// switch and is no longer in either mode (spec §4.8 step 4).
func (a *Arbiter) Degraded() bool {
	return a.degraded.Load()
}

// SwitchTo implements spec §4.8's switch_to(mode) algorithm.
func (a *Arbiter) SwitchTo(ctx context.Context, target Mode) error {
	if !a.switching.CompareAndSwap(false, true) {
		return perr.ErrBusy
	}
	defer a.switching.Store(false)

	if !a.degraded.Load() && a.currentMode.Load().(Mode) == target {
		return nil // step 1: already in the target mode
	}

	current := a.currentMode.Load().(Mode)
	oldService := a.services[current]
	newService, ok := a.services[target]
	if !ok {
		return fmt.Errorf("%w: no service registered for mode %q", perr.ErrConfigInvalid, target)
	}

	// Step 2: signal current-mode services to stop.
	if oldService != nil && !a.degraded.Load() {
		stopCtx, cancel := context.WithTimeout(context.Background(), stopDeadline)
		err := oldService.Stop(stopCtx)
		cancel()
		if err != nil && a.logger != nil {
			a.logger.WithFields(obs.Fields{"mode": current, "error": err.Error()}).
				Warn("mode service did not stop cleanly within deadline; treating as forcefully terminated")
		}
	}

	// Step 3: verify capture devices were released.
	if !a.devicesReleased(ctx) {
		// Devices still held: the old mode never fully let go. Attempt to
		// resume it so the process doesn't end up in neither mode, and
		// report failure without changing currentMode (spec: "retain the
		// old mode").
		if oldService != nil {
			restoreCtx, cancel := context.WithTimeout(context.Background(), startDeadline)
			_ = oldService.Start(restoreCtx)
			cancel()
		}
		a.recordSwitchResult(target, "device_busy")
		return perr.ErrDeviceBusy
	}

	// Step 4: start target-mode services.
	startCtx, cancel := context.WithTimeout(context.Background(), startDeadline)
	startErr := newService.Start(startCtx)
	cancel()
	if startErr == nil {
		a.degraded.Store(false)
		a.currentMode.Store(target)
		a.persist(target)
		a.recordSwitchResult(target, "ok")
		return nil
	}

	if a.logger != nil {
		a.logger.WithFields(obs.Fields{"mode": target, "error": startErr.Error()}).
			Error("target mode failed to start; attempting rollback")
	}

	if oldService == nil {
		a.degraded.Store(true)
		a.recordSwitchResult(target, "degraded")
		return fmt.Errorf("%w: target mode failed to start and no prior mode to roll back to", perr.ErrStartTimeout)
	}

	rollbackCtx, cancel := context.WithTimeout(context.Background(), startDeadline)
	rollbackErr := oldService.Start(rollbackCtx)
	cancel()
	if rollbackErr != nil {
		a.degraded.Store(true)
		a.recordSwitchResult(target, "degraded")
		return fmt.Errorf("%w: target mode failed and rollback to %q also failed: %v", perr.ErrStartTimeout, current, rollbackErr)
	}

	a.degraded.Store(false)
	a.currentMode.Store(current)
	a.recordSwitchResult(target, "rolled_back")
	return fmt.Errorf("%w: target mode %q failed to start; rolled back to %q", perr.ErrStartTimeout, target, current)
}

// devicesReleased polls every configured capture device with a bounded
// open+close probe until none report busy or the deadline elapses
// (spec §4.8 step 3).
func (a *Arbiter) devicesReleased(ctx context.Context) bool {
	if len(a.devices) == 0 {
		return true
	}
	deadline := time.Now().Add(deviceReleaseDeadline)
	for {
		allFree := true
		for _, dev := range a.devices {
			if platform.DeviceBusy(dev) {
				allFree = false
				break
			}
		}
		if allFree {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(deviceProbeInterval):
		}
	}
}

func (a *Arbiter) persist(mode Mode) {
	if a.statePath == "" {
		return
	}
	if err := persistModeState(a.statePath, mode); err != nil && a.logger != nil {
		a.logger.WithFields(obs.Fields{"error": err.Error()}).Error("persist mode state")
	}
}

func (a *Arbiter) recordSwitchResult(target Mode, result string) {
	if a.metrics != nil {
		a.metrics.ModeSwitchTotal.WithLabelValues(string(target), result).Inc()
	}
	if a.bus != nil {
		payload, _ := json.Marshal(map[string]string{
			"target_mode": string(target),
			"result":      result,
			"mode":        string(a.CurrentMode()),
		})
		a.bus.Publish(events.Event{Topic: "mode", Payload: payload})
	}
}
