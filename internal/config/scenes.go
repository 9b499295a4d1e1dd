package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Slot is one source placement within a Scene (spec §3).
type Slot struct {
	Source   string  `json:"source"`             // camera_id, graphics id, presentation id, or guest id
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	W        float64 `json:"w"`
	H        float64 `json:"h"`
	Z        int     `json:"z"`
	Opacity  float64 `json:"opacity"`
	CropX    float64 `json:"crop_x,omitempty"`
	CropY    float64 `json:"crop_y,omitempty"`
	CropW    float64 `json:"crop_w,omitempty"`
	CropH    float64 `json:"crop_h,omitempty"`
	HasCrop  bool    `json:"has_crop,omitempty"`
}

// Scene is an immutable mixer layout, loaded from the scenes directory.
type Scene struct {
	SceneID string `json:"scene_id"`
	Slots   []Slot `json:"slots"`
}

// LoadScenes reads every scenes/{scene_id}.json file under dir and
// returns them keyed by scene_id. A malformed scene file is skipped
// with its error returned alongside the scenes that did load, so one
// bad file doesn't prevent the rest of the mixer from having scenes.
func LoadScenes(dir string) (map[string]Scene, error) {
	scenes := make(map[string]Scene)

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return scenes, nil
	}
	if err != nil {
		return scenes, fmt.Errorf("read scenes dir %s: %w", dir, err)
	}

	var firstErr error
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		var scene Scene
		if err := json.Unmarshal(data, &scene); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("parse %s: %w", path, err)
			}
			continue
		}
		if scene.SceneID == "" {
			scene.SceneID = scenesSceneIDFromFilename(entry.Name())
		}
		scenes[scene.SceneID] = scene
	}
	return scenes, firstErr
}

// SceneIDs returns the scene ids in sorted order, for stable listing
// endpoints.
func SceneIDs(scenes map[string]Scene) []string {
	ids := make([]string, 0, len(scenes))
	for id := range scenes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func scenesSceneIDFromFilename(name string) string {
	return name[:len(name)-len(filepath.Ext(name))]
}
