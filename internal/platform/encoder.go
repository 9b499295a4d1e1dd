package platform

import (
	"fmt"

	"github.com/mBelstad/preke-r58-recorder-sub003/internal/config"
	"github.com/mBelstad/preke-r58-recorder-sub003/internal/perr"
)

// EncoderProfile is the resolved encoder element and property set for
// one logical codec (spec §4.1). PipelineBuilder consumes this as an
// opaque element description; it never re-derives encoder choice.
type EncoderProfile struct {
	ElementName string
	Properties  map[string]any
	IsHardware  bool
}

// hwCandidate is one hardware encoder element to try, in probe order,
// for a given codec.
type hwCandidate struct {
	codec   config.Codec
	element string
}

// candidateOrder lists hardware encoder elements in probe order, H.265
// entries first. Resolve only probes the entries whose codec matches
// the requested one, so this order never changes the codec: an H.264
// request probes mpph264enc, then v4l2h264enc, and never an H.265
// element. Software fallbacks are x264enc/x265enc, always available
// once go-gst's "good"/"ugly" plugin sets are installed.
var candidateOrder = []hwCandidate{
	{config.CodecH265, "mpph265enc"},
	{config.CodecH265, "v4l2h265enc"},
	{config.CodecH264, "mpph264enc"},
	{config.CodecH264, "v4l2h264enc"},
}

var softwareElement = map[config.Codec]string{
	config.CodecH264: "x264enc",
	config.CodecH265: "x265enc",
}

// Resolve implements spec §4.1's resolve(codec, is_4k_source). It
// prefers a hardware encoder for the requested codec, then falls back
// to a software encoder tuned for low latency. ErrNoEncoder is returned
// only if neither path is available — on this platform that should only
// happen if GStreamer's own H.264/H.265 plugins are entirely absent.
func Resolve(codec config.Codec, is4K bool, bitrateKbps int, find ElementFinder) (EncoderProfile, error) {
	for _, cand := range candidateOrder {
		if cand.codec != codec {
			continue
		}
		if find(cand.element) {
			return hardwareProfile(cand.element, bitrateKbps, is4K), nil
		}
	}

	element, ok := softwareElement[codec]
	if !ok {
		return EncoderProfile{}, fmt.Errorf("%w: codec %q", perr.ErrNoEncoder, codec)
	}
	if !find(element) {
		return EncoderProfile{}, fmt.Errorf("%w: no hardware or software encoder for codec %q", perr.ErrNoEncoder, codec)
	}
	return softwareProfile(element, bitrateKbps), nil
}

// hardwareProfile sets rate control to CBR at the configured bitrate,
// a one-second GOP, and disables B-frames (spec §4.1's hardware
// tuning). 4K sources get a faster preset and more encode threads.
func hardwareProfile(element string, bitrateKbps int, is4K bool) EncoderProfile {
	props := map[string]any{
		"rc-mode": "cbr",
		"bitrate": bitrateKbps,
		"gop":     30, // overwritten by the builder with the camera's actual framerate
		"b-frames": 0,
	}
	if is4K {
		props["preset"] = "fast"
		props["num-threads"] = 4
	} else {
		props["preset"] = "medium"
	}
	return EncoderProfile{ElementName: element, Properties: props, IsHardware: true}
}

// softwareProfile tunes a software encoder for low latency: zero
// latency preset and sliced multithreading so one slow slice doesn't
// stall the whole frame.
func softwareProfile(element string, bitrateKbps int) EncoderProfile {
	return EncoderProfile{
		ElementName: element,
		Properties: map[string]any{
			"bitrate":       bitrateKbps,
			"tune":          "zerolatency",
			"speed-preset":  "ultrafast",
			"sliced-threads": true,
			"b-frames":      0,
		},
		IsHardware: false,
	}
}

// ElementFinder reports whether a named GStreamer element factory is
// available. The real implementation wraps gst.Find behind the cgo
// build tag; tests and no-cgo builds supply a deterministic stand-in.
type ElementFinder func(element string) bool
