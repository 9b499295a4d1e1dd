// Package platform resolves the per-codec hardware encoder the current
// SoC exposes and probes capture device capability, isolating the
// chip-specific details the rest of the supervisor must stay agnostic
// to (spec §4.1).
package platform

import (
	"runtime"
	"syscall"

	"github.com/mBelstad/preke-r58-recorder-sub003/internal/config"
)

// HardwareSpecs is an informational snapshot of the host's compute
// capacity, surfaced on the status endpoint for operator visibility.
type HardwareSpecs struct {
	CPUCores int32
	MemoryGB int32
	DiskGB   int32
}

// DetectHardware reports CPU cores, total memory and the capacity of
// the filesystem backing storagePath.
func DetectHardware(storagePath string) HardwareSpecs {
	specs := HardwareSpecs{CPUCores: int32(runtime.NumCPU())}

	if totalBytes := getSystemMemoryBytes(); totalBytes > 0 {
		specs.MemoryGB = int32(totalBytes / (1 << 30))
	}

	diskPath := storagePath
	if diskPath == "" {
		diskPath = "/"
	}
	var stat syscall.Statfs_t
	if err := syscall.Statfs(diskPath, &stat); err == nil {
		totalBytes := stat.Blocks * uint64(stat.Bsize)
		specs.DiskGB = int32(totalBytes / (1 << 30))
	}

	return specs
}

// CaptureCapability is what probe_capture reports for one device node
// (spec §4.1). An empty NativeResolutions set means the device is
// disconnected or unreadable.
type CaptureCapability struct {
	NativeResolutions []config.Resolution
	Framerates        []int
	PixelFormats      []string
}

func (c CaptureCapability) Connected() bool {
	return len(c.NativeResolutions) > 0
}
