package pipeline

import (
	"fmt"

	"github.com/mBelstad/preke-r58-recorder-sub003/internal/config"
	"github.com/mBelstad/preke-r58-recorder-sub003/internal/platform"
)

// Build constructs a PipelineDescription for the given kind. It is a
// pure function: it never opens a device, calls gst, or touches the
// filesystem (spec §4.2).
func Build(kind Kind, cam config.CameraConfig, profile platform.EncoderProfile, opts ...Option) (Description, error) {
	o := newOptions(opts)

	switch kind {
	case KindIngest:
		return buildIngest(cam, profile, o), nil
	case KindRecording:
		return buildRecording(cam, o), nil
	case KindPreview:
		return buildPreview(cam, o), nil
	case KindMixerBranch:
		return buildMixerBranch(cam, o), nil
	case KindMixerProgram:
		return buildMixerProgram(profile, o), nil
	default:
		return Description{}, fmt.Errorf("pipeline: unknown kind %q", kind)
	}
}

// buildIngest implements spec §4.2's ingest contract: capture → format
// negotiation → optional scaler → encoder → container → publisher to
// the camera's local stream path. Audio, if enabled, is an independent
// chain so its failure never blocks video.
func buildIngest(cam config.CameraConfig, profile platform.EncoderProfile, o options) Description {
	desc := Description{Kind: KindIngest}

	video := Chain{
		{Factory: "v4l2src", Properties: map[string]any{"device": cam.Device}},
		{Factory: "videoconvert"},
	}

	if o.sourceResolution != nil && needsScaler(*o.sourceResolution, cam.Resolution) {
		video = append(video, Element{Factory: "videoscale"})
		video = append(video, Element{
			Factory: "capsfilter",
			Properties: map[string]any{
				"caps": fmt.Sprintf("video/x-raw,width=%d,height=%d", cam.Resolution.Width, cam.Resolution.Height),
			},
		})
	} else if o.sourceResolution != nil && largerThanSource(*o.sourceResolution, cam.Resolution) {
		desc.Advisory = append(desc.Advisory, fmt.Sprintf(
			"configured resolution %dx%d exceeds source %dx%d; source resolution wins",
			cam.Resolution.Width, cam.Resolution.Height, o.sourceResolution.Width, o.sourceResolution.Height))
	}

	video = append(video, encoderElement(profile, cam.Framerate))
	video = append(video, muxerFor(cam.Codec))
	video = append(video, Element{
		Factory: "rtspclientsink",
		Properties: map[string]any{
			"location": fmt.Sprintf("%s/%s", o.streamBaseURL, cam.ID),
		},
	})
	desc.Video = video

	if cam.AudioEnabled && cam.AudioDevice != "" {
		audio := Chain{
			{Factory: "alsasrc", Properties: map[string]any{"device": cam.AudioDevice}},
			{Factory: "audioconvert"},
		}
		if cam.AudioDelayMS > 0 {
			audio = append(audio, Element{Factory: "audiodelay", Properties: map[string]any{"delay": cam.AudioDelayMS * 1_000_000}})
		}
		audio = append(audio, Element{Factory: "opusenc"})
		audio = append(audio, Element{
			Factory: "rtspclientsink",
			Properties: map[string]any{
				"location": fmt.Sprintf("%s/%s_audio", o.streamBaseURL, cam.ID),
			},
		})
		desc.Audio = audio
	}

	return desc
}

// buildRecording implements spec §4.2's recording contract: subscribe
// to the camera's stream path (not the capture device), demux, and
// write a single fragmented container file. Recording never re-encodes.
// o.recordingDir carries the exact destination file path (the
// recording supervisor names it recording_{timestamp}.ext per spec §6
// before the pipeline is built); the muxer fragments that one file
// every o.segmentSeconds so it stays readable and crash-safe while
// still being written, rather than splitting into numbered parts.
func buildRecording(cam config.CameraConfig, o options) Description {
	return Description{
		Kind: KindRecording,
		Video: Chain{
			{Factory: "rtspsrc", Properties: map[string]any{"location": fmt.Sprintf("%s/%s", o.streamBaseURL, cam.ID)}},
			{Factory: "rtpjitterbuffer"},
			{Factory: depayFor(cam.Codec)},
			{Factory: "parsebin"},
			fragmentedMuxer(cam.Codec, o.segmentSeconds),
			{Factory: "filesink", Name: "recsink", Properties: map[string]any{"location": o.recordingDir}},
		},
	}
}

// fragmentedMuxer returns the muxer element for a single fragmented
// recording file (spec §6's "fragmented container" requirement): mp4mux
// in streamable/fragmented mode for h264, with a fragment every
// segmentSeconds, and matroskamux's own streamable mode for h265, which
// takes no fragment duration. Neither buffers the whole file's index
// until close.
func fragmentedMuxer(codec config.Codec, segmentSeconds int) Element {
	if codec == config.CodecH265 {
		return Element{Factory: "matroskamux", Properties: map[string]any{"streamable": true}}
	}
	return Element{Factory: "mp4mux", Properties: map[string]any{
		"fragment-duration": segmentSeconds * 1000,
		"streamable":        true,
	}}
}

// buildPreview is a lightweight, lower-resolution tap of a camera's
// stream path intended for the control-surface UI; it carries no
// encoder retuning of its own.
func buildPreview(cam config.CameraConfig, o options) Description {
	return Description{
		Kind: KindPreview,
		Video: Chain{
			{Factory: "rtspsrc", Properties: map[string]any{"location": fmt.Sprintf("%s/%s", o.streamBaseURL, cam.ID)}},
			{Factory: "rtpjitterbuffer"},
			{Factory: depayFor(cam.Codec)},
			{Factory: "avdec_" + string(cam.Codec)},
			{Factory: "videoscale"},
			{Factory: "videoconvert"},
			{Factory: "appsink", Name: "previewsink", Properties: map[string]any{"emit-signals": true, "drop": true, "max-buffers": 2}},
		},
	}
}

// buildMixerBranch implements spec §4.2's mixer branch contract:
// subscribe to a camera stream path, decode, scale, and land on a
// composition input pad (added by internal/mixer once the branch
// pipeline is playing).
func buildMixerBranch(cam config.CameraConfig, o options) Description {
	return Description{
		Kind: KindMixerBranch,
		Video: Chain{
			{Factory: "rtspsrc", Properties: map[string]any{"location": fmt.Sprintf("%s/%s", o.streamBaseURL, cam.ID)}},
			{Factory: "rtpjitterbuffer"},
			{Factory: depayFor(cam.Codec)},
			{Factory: "avdec_" + string(cam.Codec)},
			{Factory: "videoscale"},
			{Factory: "videoconvert"},
			{Factory: "appsink", Name: "branchsink", Properties: map[string]any{"emit-signals": true, "max-buffers": 4}},
		},
	}
}

// buildMixerProgram implements spec §4.2's mixer program contract: a
// composition input per active slot, z-ordered and alpha-blended, a
// graphics overlay layer on top, then encode to the program's local
// stream path and optionally a recording branch.
func buildMixerProgram(profile platform.EncoderProfile, o options) Description {
	compositorProps := map[string]any{"background": "black"}
	var inputs []MixerInput

	for i, slot := range o.mixerSlots {
		pad := fmt.Sprintf("sink_%d", i)
		compositorProps[pad+"::xpos"] = int(slot.X * float64(o.mixerOutput.OutputResolution.Width))
		compositorProps[pad+"::ypos"] = int(slot.Y * float64(o.mixerOutput.OutputResolution.Height))
		compositorProps[pad+"::width"] = int(slot.W * float64(o.mixerOutput.OutputResolution.Width))
		compositorProps[pad+"::height"] = int(slot.H * float64(o.mixerOutput.OutputResolution.Height))
		compositorProps[pad+"::alpha"] = slot.Opacity
		compositorProps[pad+"::zorder"] = slot.Z

		if slot.Placeholder {
			inputs = append(inputs, MixerInput{
				PadTarget: "mix." + pad,
				Chain: Chain{
					{Factory: "videotestsrc", Properties: map[string]any{"pattern": "black", "is-live": true}},
					{Factory: "textoverlay", Properties: map[string]any{"text": "no signal"}},
				},
			})
			continue
		}

		inputs = append(inputs, MixerInput{
			PadTarget: "mix." + pad,
			Chain: Chain{
				{Factory: "appsrc", Name: fmt.Sprintf("branchsrc_%d", i), Properties: map[string]any{
					"format": "time", "is-live": true, "do-timestamp": true,
				}},
				{Factory: "videoconvert"},
				{Factory: "videoscale"},
			},
		})
	}

	compositor := Element{
		Factory:    "compositor",
		Name:       "mix",
		Properties: compositorProps,
	}

	video := Chain{compositor}
	video = append(video, Element{
		Factory: "capsfilter",
		Properties: map[string]any{
			"caps": fmt.Sprintf("video/x-raw,width=%d,height=%d", o.mixerOutput.OutputResolution.Width, o.mixerOutput.OutputResolution.Height),
		},
	})
	video = append(video, Element{Factory: "cairooverlay", Name: "graphics"})
	video = append(video, encoderElement(profile, 30))
	video = append(video, muxerFor(o.mixerOutput.OutputCodec))
	video = append(video, Element{
		Factory:    "rtspclientsink",
		Properties: map[string]any{"location": fmt.Sprintf("%s/mixer_program", o.streamBaseURL)},
	})

	desc := Description{Kind: KindMixerProgram, Video: video, Inputs: inputs}

	if o.includeRecording {
		desc.Video = append(desc.Video, Element{
			Factory: "tee",
			Name:    "program_tee",
		})
		// Recording tap is wired by pipelinerun using program_tee's pad;
		// the description records the intent via Advisory so the runtime
		// knows to request a pad and build a fragmentedMuxer+filesink
		// branch rather than extend the linear chain.
		desc.Advisory = append(desc.Advisory, fmt.Sprintf(
			"program_tee feeds a %s recording branch at %s, fragment %ds",
			fragmentedMuxer(o.mixerOutput.OutputCodec, o.segmentSeconds).Factory, o.recordingDir, o.segmentSeconds))
	}

	return desc
}

func encoderElement(profile platform.EncoderProfile, framerate int) Element {
	props := make(map[string]any, len(profile.Properties)+1)
	for k, v := range profile.Properties {
		props[k] = v
	}
	if framerate > 0 {
		props["gop"] = framerate // one-second GOP per spec §4.1
	}
	return Element{Factory: profile.ElementName, Name: "enc", Properties: props}
}

func muxerFor(codec config.Codec) Element {
	return Element{Factory: "mpegtsmux"}
}

func depayFor(codec config.Codec) string {
	if codec == config.CodecH265 {
		return "rtph265depay"
	}
	return "rtph264depay"
}

// containerExtension returns the file extension for a fragmented
// recording container, matching fragmentedMuxer's choice of muxer.
func containerExtension(codec config.Codec) string {
	if codec == config.CodecH265 {
		return "mkv"
	}
	return "mp4"
}

// ContainerExtension is the exported form of containerExtension, used
// by internal/recording to name segment files without duplicating the
// codec-to-container mapping.
func ContainerExtension(codec config.Codec) string {
	return containerExtension(codec)
}

func needsScaler(source, configured config.Resolution) bool {
	return configured.Width > 0 && configured.Height > 0 &&
		(configured.Width < source.Width || configured.Height < source.Height)
}

func largerThanSource(source, configured config.Resolution) bool {
	return configured.Width > source.Width || configured.Height > source.Height
}
