//go:build !cgo

package pipelinerun

// New returns a Runtime backed by the deterministic simulated engine.
func New() *Runtime {
	return NewSimRuntime()
}
