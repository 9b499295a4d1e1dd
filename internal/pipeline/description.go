// Package pipeline builds PipelineDescriptions: pure, OS-untouched
// directed graphs of GStreamer elements for each of the five pipeline
// kinds the supervisor launches (spec §4.2). Nothing here opens a
// device, talks to GStreamer, or blocks — internal/pipelinerun is the
// only package that turns a Description into a running pipeline.
package pipeline

import "strings"

// Kind enumerates the five pipeline shapes the builder knows how to
// construct.
type Kind string

const (
	KindIngest       Kind = "ingest"
	KindRecording    Kind = "recording"
	KindPreview      Kind = "preview"
	KindMixerBranch  Kind = "mixer_branch"
	KindMixerProgram Kind = "mixer_program"
)

// Element is one node the chain: a GStreamer element factory name plus
// its property set. Name, if set, is used as the gst-launch "name="
// tag so pipelinerun can address the element later (appsrc/appsink,
// encoder bitrate changes, etc).
type Element struct {
	Factory    string
	Name       string
	Properties map[string]any
}

// Chain is a linear sequence of elements connected source-to-sink. Most
// pipeline kinds are a single Chain; ingest with audio enabled produces
// a second, independent Chain so an audio negotiation failure can never
// block the video branch (spec §4.2 edge case).
type Chain []Element

// MixerInput is one slot's feed into the mixer program's compositor: a
// chain terminating at a request pad reference (e.g. "mix.sink_0")
// rather than at a sink element, so gst-launch links it directly into
// the named compositor pad (spec §4.6 branch reconciliation).
type MixerInput struct {
	PadTarget string // e.g. "mix.sink_0"
	Chain     Chain
}

// Description is the opaque graph PipelineBuilder returns. It is
// constructed fresh before each launch and discarded on teardown;
// value equality is never relied upon (spec §3).
type Description struct {
	Kind    Kind
	Video   Chain
	Audio   Chain        // optional; empty when the camera has no audio branch
	Inputs  []MixerInput // mixer_program only: one per active composited slot
	Advisory []string // non-fatal notes logged at build time (e.g. resolution clamps)
}

// Render renders the description into a gst-launch-style pipeline
// string. Video and audio chains are independent top-level bins
// (separated by whitespace), each a complete source-to-sink path, the
// same shape go-gst's gst.NewPipelineFromString accepts for multi-branch
// pipelines. Mixer inputs render as additional bins that terminate at a
// named compositor pad rather than a sink element.
func (d Description) Render() string {
	var parts []string
	for _, in := range d.Inputs {
		parts = append(parts, in.Chain.render()+" ! "+in.PadTarget)
	}
	if len(d.Video) > 0 {
		parts = append(parts, d.Video.render())
	}
	if len(d.Audio) > 0 {
		parts = append(parts, d.Audio.render())
	}
	return strings.Join(parts, "  ")
}

func (c Chain) render() string {
	segments := make([]string, len(c))
	for i, el := range c {
		segments[i] = el.render()
	}
	return strings.Join(segments, " ! ")
}

func (e Element) render() string {
	var b strings.Builder
	b.WriteString(e.Factory)
	if e.Name != "" {
		b.WriteString(" name=")
		b.WriteString(e.Name)
	}
	for _, k := range sortedKeys(e.Properties) {
		b.WriteString(" ")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(renderValue(e.Properties[k]))
	}
	return b.String()
}
