//go:build cgo

package platform

import (
	"sync"

	"github.com/go-gst/go-gst/gst"
)

var gstInitOnce sync.Once

// GstElementFinder reports hardware/software element availability by
// querying the real GStreamer plugin registry, mirroring
// desktop.CheckGstElement's use of gst.Find.
func GstElementFinder() ElementFinder {
	return func(element string) bool {
		gstInitOnce.Do(func() { gst.Init(nil) })
		return gst.Find(element) != nil
	}
}
