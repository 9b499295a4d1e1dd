// Package perr defines the error kinds shared across the media-pipeline
// supervisor (spec §7). These are sentinel errors, not types: callers
// use errors.Is against them and wrap with additional detail via
// fmt.Errorf("%w: ...", perr.ErrBusy).
package perr

import "errors"

var (
	ErrNoEncoder           = errors.New("no suitable encoder available")
	ErrStartTimeout        = errors.New("pipeline did not reach playing state in time")
	ErrDeviceBusy          = errors.New("capture device still busy")
	ErrNoSignal            = errors.New("no signal on capture device")
	ErrInsufficientDisk    = errors.New("insufficient disk space")
	ErrBusy                = errors.New("operation already in progress")
	ErrNoPublishers        = errors.New("no requested cameras are currently streaming")
	ErrRegistryUnavailable = errors.New("stream registry unavailable")
	ErrPipelineFatal       = errors.New("pipeline entered a fatal error state")
	ErrConfigInvalid       = errors.New("configuration invalid")
)
