package arbiter

import (
	"encoding/json"
	"os"
)

// modeState is the small file persisted across restart (spec §4.8:
// "persists the chosen mode across restart in a small state file"),
// written with the same atomic tmp-file-plus-rename discipline
// internal/recording uses for session records.
type modeState struct {
	Mode Mode `json:"mode"`
}

func loadModeState(path string) (Mode, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	var s modeState
	if err := json.Unmarshal(data, &s); err != nil {
		return "", false
	}
	return s.Mode, s.Mode != ""
}

func persistModeState(path string, mode Mode) error {
	data, err := json.MarshalIndent(modeState{Mode: mode}, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
