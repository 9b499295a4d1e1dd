package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoad_AppliesDefaultsAndOverlay(t *testing.T) {
	path := writeTempConfig(t, `
cameras:
  - id: cam0
    device: /dev/video0
    enabled: true
    resolution: {width: 1920, height: 1080}
    framerate: 30
    bitrate: 4000
    codec: h264
recording:
  base_path: /mnt/rec
mode:
  default: recorder
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Cameras) != 1 || cfg.Cameras[0].ID != "cam0" {
		t.Fatalf("expected one camera cam0, got %+v", cfg.Cameras)
	}
	if cfg.Recording.BasePath != "/mnt/rec" {
		t.Fatalf("expected overlay to replace base_path, got %s", cfg.Recording.BasePath)
	}
	if cfg.Recording.MinFreeGBStart != 10 {
		t.Fatalf("expected default min_free_gb_start to survive overlay, got %v", cfg.Recording.MinFreeGBStart)
	}
}

func TestLoad_RejectsDuplicateCameraIDs(t *testing.T) {
	path := writeTempConfig(t, `
cameras:
  - id: cam0
    device: /dev/video0
    codec: h264
  - id: cam0
    device: /dev/video1
    codec: h264
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected duplicate camera id to fail validation")
	}
}

func TestLoad_RejectsUnrecognizedCodec(t *testing.T) {
	path := writeTempConfig(t, `
cameras:
  - id: cam0
    device: /dev/video0
    codec: mpeg2
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected unrecognized codec to fail validation")
	}
}

func TestLoad_RejectsStopFloorAboveStartFloor(t *testing.T) {
	path := writeTempConfig(t, `
recording:
  min_free_gb_start: 5
  min_free_gb_stop: 10
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected stop floor above start floor to fail validation")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected missing file to error")
	}
}
