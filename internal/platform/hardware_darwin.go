//go:build darwin

package platform

import "golang.org/x/sys/unix"

// getSystemMemoryBytes returns total system memory in bytes on Darwin
// using sysctl. Darwin has no V4L2/hardware-encoder path; this build
// only exists so the package compiles on a developer's laptop.
func getSystemMemoryBytes() uint64 {
	memsize, err := unix.SysctlUint64("hw.memsize")
	if err != nil {
		return 0
	}
	return memsize
}
