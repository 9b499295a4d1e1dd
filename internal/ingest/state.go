// Package ingest implements one Supervisor per enabled camera (spec
// §4.4): it keeps exactly one healthy ingest pipeline running, adapts
// to source resolution changes, and gates "streaming" status on the
// stream registry actually reporting the camera's path ready.
package ingest

import "github.com/mBelstad/preke-r58-recorder-sub003/internal/config"

// Status is the ingest supervisor's externally observable state (spec §3).
type Status string

const (
	StatusIdle      Status = "idle"
	StatusStarting  Status = "starting"
	StatusStreaming Status = "streaming"
	StatusRecording Status = "recording"
	StatusError     Status = "error"
	StatusNoSignal  Status = "no_signal"
)

// RuntimeState is a value-copy snapshot of CameraRuntimeState (spec
// §3), owned by the supervisor goroutine and published lock-free.
type RuntimeState struct {
	CameraID         string            `json:"camera_id"`
	Status           Status            `json:"status"`
	ActualResolution config.Resolution `json:"actual_resolution"`
	HasSignal        bool              `json:"has_signal"`
	LastError        string            `json:"last_error,omitempty"`
	RestartCount     int               `json:"restart_count"`
}
