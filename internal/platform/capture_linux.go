//go:build linux

package platform

import (
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/mBelstad/preke-r58-recorder-sub003/internal/config"
)

// V4L2 ioctl request codes and structures, per linux/videodev2.h. These
// layouts are a stable kernel ABI; golang.org/x/sys/unix does not wrap
// the V4L2 API itself, only the generic ioctl/sysinfo calls the rest of
// this package already uses, so the request numbers and struct
// layouts are defined locally.
const (
	vidiocQueryCap          = 0x80685600
	vidiocEnumFmt           = 0xc0405602
	vidiocEnumFramesizes    = 0xc02c564a
	vidiocEnumFrameintervals = 0xc034564b

	v4l2BufTypeVideoCapture = 1
	v4l2FrmsizeTypeDiscrete = 1
)

type v4l2Capability struct {
	Driver       [16]byte
	Card         [32]byte
	BusInfo      [32]byte
	Version      uint32
	Capabilities uint32
	DeviceCaps   uint32
	Reserved     [3]uint32
}

type v4l2Fmtdesc struct {
	Index       uint32
	Type        uint32
	Flags       uint32
	Description [32]byte
	PixelFormat uint32
	Reserved    [4]uint32
}

type v4l2FrmsizeDiscrete struct {
	Width  uint32
	Height uint32
}

type v4l2Frmsizeenum struct {
	Index       uint32
	PixelFormat uint32
	Type        uint32
	// union { discrete; stepwise } — only the discrete case is read here.
	Discrete v4l2FrmsizeDiscrete
	_        [16]byte // remainder of the stepwise union arm, unused
	Reserved [2]uint32
}

type v4l2FrmivalDiscrete struct {
	Numerator   uint32
	Denominator uint32
}

type v4l2Frmivalenum struct {
	Index       uint32
	PixelFormat uint32
	Width       uint32
	Height      uint32
	Type        uint32
	Discrete    v4l2FrmivalDiscrete
	_           [16]byte
	Reserved    [2]uint32
}

// probeCapture implements spec §4.1's probe_capture(device). It opens
// the device node, confirms it's a video-capture device, and enumerates
// the pixel formats and discrete frame sizes/rates it advertises. A
// disconnected or missing device yields a CaptureCapability with no
// resolutions rather than an error — probing hardware presence is not
// itself an error condition.
func probeCapture(device string) CaptureCapability {
	fd, err := unix.Open(device, unix.O_RDWR|unix.O_NONBLOCK, 0)
	if err != nil {
		return CaptureCapability{}
	}
	defer unix.Close(fd)

	var cap v4l2Capability
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(vidiocQueryCap), uintptr(unsafe.Pointer(&cap))); errno != 0 {
		return CaptureCapability{}
	}

	result := CaptureCapability{}
	seenFormat := map[string]bool{}
	seenRate := map[int]bool{}

	for fmtIdx := uint32(0); fmtIdx < 32; fmtIdx++ {
		fmtdesc := v4l2Fmtdesc{Index: fmtIdx, Type: v4l2BufTypeVideoCapture}
		if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(vidiocEnumFmt), uintptr(unsafe.Pointer(&fmtdesc))); errno != 0 {
			break
		}
		pixFmt := fourCCString(fmtdesc.PixelFormat)
		if !seenFormat[pixFmt] {
			seenFormat[pixFmt] = true
			result.PixelFormats = append(result.PixelFormats, pixFmt)
		}

		for sizeIdx := uint32(0); sizeIdx < 32; sizeIdx++ {
			frmsize := v4l2Frmsizeenum{Index: sizeIdx, PixelFormat: fmtdesc.PixelFormat}
			if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(vidiocEnumFramesizes), uintptr(unsafe.Pointer(&frmsize))); errno != 0 {
				break
			}
			if frmsize.Type != v4l2FrmsizeTypeDiscrete {
				continue
			}
			result.NativeResolutions = append(result.NativeResolutions, config.Resolution{
				Width:  int(frmsize.Discrete.Width),
				Height: int(frmsize.Discrete.Height),
			})

			for ivalIdx := uint32(0); ivalIdx < 16; ivalIdx++ {
				frmival := v4l2Frmivalenum{
					Index: ivalIdx, PixelFormat: fmtdesc.PixelFormat,
					Width: frmsize.Discrete.Width, Height: frmsize.Discrete.Height,
				}
				if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(vidiocEnumFrameintervals), uintptr(unsafe.Pointer(&frmival))); errno != 0 {
					break
				}
				if frmival.Discrete.Numerator == 0 {
					continue
				}
				fps := int(frmival.Discrete.Denominator / frmival.Discrete.Numerator)
				if fps > 0 && !seenRate[fps] {
					seenRate[fps] = true
					result.Framerates = append(result.Framerates, fps)
				}
			}
		}
	}

	return result
}

func fourCCString(code uint32) string {
	b := [4]byte{byte(code), byte(code >> 8), byte(code >> 16), byte(code >> 24)}
	return string(b[:])
}

// deviceExists reports whether the capture device node is present at
// all, independent of whether it reports any modes.
func deviceExists(device string) bool {
	_, err := os.Stat(device)
	return err == nil
}

// deviceBusy opens and immediately closes the device node to test
// whether another process still holds it (spec §4.8 step 3's
// "short bounded open+close" release probe). A missing device node is
// not busy — it's simply gone — so only an EBUSY/EAGAIN-class open
// failure counts.
func deviceBusy(device string) bool {
	fd, err := unix.Open(device, unix.O_RDWR|unix.O_NONBLOCK, 0)
	if err != nil {
		return err == unix.EBUSY || err == unix.EAGAIN
	}
	unix.Close(fd)
	return false
}
