package platform

import (
	"errors"
	"testing"

	"github.com/mBelstad/preke-r58-recorder-sub003/internal/config"
	"github.com/mBelstad/preke-r58-recorder-sub003/internal/perr"
)

func fakeFinder(available ...string) ElementFinder {
	set := make(map[string]bool, len(available))
	for _, e := range available {
		set[e] = true
	}
	return func(element string) bool { return set[element] }
}

func TestResolve_PrefersHardware(t *testing.T) {
	profile, err := Resolve(config.CodecH264, false, 4000, fakeFinder("mpph264enc", "x264enc"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !profile.IsHardware || profile.ElementName != "mpph264enc" {
		t.Fatalf("expected hardware mpph264enc, got %+v", profile)
	}
	if profile.Properties["rc-mode"] != "cbr" {
		t.Fatalf("expected CBR rate control, got %+v", profile.Properties)
	}
}

func TestResolve_FallsBackToSoftware(t *testing.T) {
	profile, err := Resolve(config.CodecH264, false, 4000, fakeFinder("x264enc"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if profile.IsHardware || profile.ElementName != "x264enc" {
		t.Fatalf("expected software x264enc, got %+v", profile)
	}
	if profile.Properties["tune"] != "zerolatency" {
		t.Fatalf("expected zerolatency tune, got %+v", profile.Properties)
	}
}

func TestResolve_NoEncoderAvailable(t *testing.T) {
	_, err := Resolve(config.CodecH265, false, 4000, fakeFinder())
	if !errors.Is(err, perr.ErrNoEncoder) {
		t.Fatalf("expected ErrNoEncoder, got %v", err)
	}
}

func TestResolve_FourKUsesFasterPreset(t *testing.T) {
	profile, err := Resolve(config.CodecH265, true, 8000, fakeFinder("mpph265enc"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if profile.Properties["preset"] != "fast" {
		t.Fatalf("expected fast preset for 4K, got %+v", profile.Properties)
	}
}

func TestIsFourK(t *testing.T) {
	if !IsFourK(config.Resolution{Width: 3840, Height: 2160}) {
		t.Fatal("expected 3840x2160 to be 4K")
	}
	if IsFourK(config.Resolution{Width: 1920, Height: 1080}) {
		t.Fatal("did not expect 1920x1080 to be 4K")
	}
}
