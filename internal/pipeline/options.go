package pipeline

import "github.com/mBelstad/preke-r58-recorder-sub003/internal/config"

// options carries the per-call inputs Build needs beyond CameraConfig
// and EncoderProfile. Not every kind uses every field; Build reads only
// the ones relevant to the requested Kind.
type options struct {
	sourceResolution *config.Resolution // actual negotiated resolution, if already known
	streamBaseURL    string             // local stream server base, e.g. rtsp://127.0.0.1:8554
	recordingDir     string
	segmentSeconds   int
	mixerOutput      config.MixerConfig
	mixerSlots       []MixerSlotSource
	includeRecording bool // mixer_program also records the program output
}

// MixerSlotSource describes one active branch the mixer program
// composites, in z-order. Sources that aren't camera streams (guest,
// presentation) are represented by their already-negotiated stream
// path name; Build treats them the same as a camera branch.
type MixerSlotSource struct {
	StreamPath string
	X, Y, W, H float64
	Z          int
	Opacity    float64
	Placeholder bool // true when the source isn't currently streaming
}

// Option configures a Build call.
type Option func(*options)

// WithSourceResolution supplies the capture device's actual negotiated
// resolution, used to decide whether a scaler is needed.
func WithSourceResolution(r config.Resolution) Option {
	return func(o *options) { o.sourceResolution = &r }
}

// WithStreamBaseURL sets the local stream server's base URL that
// ingest publishes to and recording/mixer-branch pipelines subscribe
// from.
func WithStreamBaseURL(base string) Option {
	return func(o *options) { o.streamBaseURL = base }
}

// WithRecording configures the destination file path and fragment
// cadence for recording and mixer_program (when it also records)
// pipelines. filePath is the exact recording_{timestamp}.ext path the
// caller has already named (spec §6); the builder never invents it.
func WithRecording(filePath string, segmentSeconds int) Option {
	return func(o *options) { o.recordingDir = filePath; o.segmentSeconds = segmentSeconds; o.includeRecording = true }
}

// WithMixerOutput supplies the mixer program's output resolution,
// bitrate and codec.
func WithMixerOutput(cfg config.MixerConfig) Option {
	return func(o *options) { o.mixerOutput = cfg }
}

// WithMixerSlots supplies the active, z-ordered branch sources for a
// mixer_program build.
func WithMixerSlots(slots []MixerSlotSource) Option {
	return func(o *options) { o.mixerSlots = slots }
}

func newOptions(opts []Option) options {
	o := options{streamBaseURL: "rtsp://127.0.0.1:8554", segmentSeconds: 1}
	for _, apply := range opts {
		apply(&o)
	}
	return o
}
