package platform

import "github.com/mBelstad/preke-r58-recorder-sub003/internal/config"

// ProbeCapture returns the device's native resolutions, framerates and
// pixel formats, or an empty CaptureCapability if the device is
// disconnected (spec §4.1).
func ProbeCapture(device string) CaptureCapability {
	return probeCapture(device)
}

// DeviceExists reports whether a capture device node is present,
// independent of whether it currently reports any video modes. Used by
// the mode arbiter's device-release probe (spec §4.8 step 3).
func DeviceExists(device string) bool {
	return deviceExists(device)
}

// DeviceBusy reports whether a capture device is still held open by
// another process, via a bounded open+close probe (spec §4.8 step 3).
func DeviceBusy(device string) bool {
	return deviceBusy(device)
}

// IsFourK reports whether a resolution is 4K-class, the threshold the
// encoder profile and pipeline builder use to decide whether a scaler
// or a faster preset is needed.
func IsFourK(r config.Resolution) bool {
	return r.Width >= 3840 || r.Height >= 2160
}
