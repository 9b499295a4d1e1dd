package ingest

import (
	"context"

	"github.com/mBelstad/preke-r58-recorder-sub003/internal/config"
	"github.com/mBelstad/preke-r58-recorder-sub003/internal/platform"
)

// StreamPath mirrors the registry client's view of one path (spec §3).
type StreamPath struct {
	Name       string
	Ready      bool
	HasReaders bool
	Tracks     []string
}

// PathReader is the subset of the stream registry client the ingest
// supervisor needs: just enough to implement the publication gate
// (spec §4.4 step 4). Defined locally (rather than importing
// internal/registry) so the two packages don't form an import cycle;
// *registry.Client satisfies this structurally.
type PathReader interface {
	GetPath(ctx context.Context, name string) (StreamPath, error)
}

// CaptureProbe is the subset of internal/platform the supervisor
// needs for signal sampling, local so tests can substitute a fake
// probe without touching real hardware.
type CaptureProbe func(device string) platform.CaptureCapability

// EncoderResolver resolves the camera's codec to a concrete encoder
// profile. Injected so tests don't depend on gst.Find.
type EncoderResolver func(cam config.CameraConfig, is4K bool) (platform.EncoderProfile, error)
