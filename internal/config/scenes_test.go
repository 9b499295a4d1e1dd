package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadScenes_ReadsDirectory(t *testing.T) {
	dir := t.TempDir()
	scene := `{"scene_id":"wide","slots":[{"source":"cam0","x":0,"y":0,"w":1,"h":1,"z":0,"opacity":1}]}`
	if err := os.WriteFile(filepath.Join(dir, "wide.json"), []byte(scene), 0o644); err != nil {
		t.Fatalf("write scene: %v", err)
	}

	scenes, err := LoadScenes(dir)
	if err != nil {
		t.Fatalf("LoadScenes: %v", err)
	}
	if _, ok := scenes["wide"]; !ok {
		t.Fatalf("expected scene 'wide', got %v", scenes)
	}
	if got := SceneIDs(scenes); len(got) != 1 || got[0] != "wide" {
		t.Fatalf("unexpected SceneIDs: %v", got)
	}
}

func TestLoadScenes_MissingDirReturnsEmpty(t *testing.T) {
	scenes, err := LoadScenes(filepath.Join(t.TempDir(), "missing"))
	if err != nil {
		t.Fatalf("expected no error for missing dir, got %v", err)
	}
	if len(scenes) != 0 {
		t.Fatalf("expected empty scenes map, got %v", scenes)
	}
}

func TestLoadScenes_SkipsMalformedFileButReportsError(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "ok.json"), []byte(`{"scene_id":"ok","slots":[]}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	scenes, err := LoadScenes(dir)
	if err == nil {
		t.Fatal("expected an error surfaced for the malformed file")
	}
	if _, ok := scenes["ok"]; !ok {
		t.Fatalf("expected the well-formed scene to still load, got %v", scenes)
	}
}
