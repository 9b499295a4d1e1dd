//go:build cgo

package pipelinerun

// New returns a Runtime backed by the real GStreamer engine. Callers
// outside this package should use New instead of picking gstEngine or
// simEngine directly, so they build the same way regardless of the
// cgo tag.
func New() *Runtime {
	return NewGstRuntime()
}
