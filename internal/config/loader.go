package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/mBelstad/preke-r58-recorder-sub003/internal/obs"
	"github.com/mBelstad/preke-r58-recorder-sub003/internal/perr"
)

// Load reads and validates the YAML configuration tree at path,
// overlaying it onto Defaults() and applying process-environment
// overrides for the values operators most often need to tweak without
// editing the file (http listen address, recording base path, log
// level is handled directly by obs).
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", perr.ErrConfigInvalid, path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", perr.ErrConfigInvalid, path, err)
	}

	applyEnvOverrides(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.HTTP.Addr = obs.GetEnv("PURSER_HTTP_ADDR", cfg.HTTP.Addr)
	cfg.Recording.BasePath = obs.GetEnv("PURSER_RECORDING_PATH", cfg.Recording.BasePath)
	cfg.Mixer.ScenesPath = obs.GetEnv("PURSER_SCENES_PATH", cfg.Mixer.ScenesPath)
	cfg.Registry.BaseURL = obs.GetEnv("PURSER_REGISTRY_URL", cfg.Registry.BaseURL)
	cfg.StatePath = obs.GetEnv("PURSER_STATE_PATH", cfg.StatePath)
}

// Validate checks the structural invariants the rest of the system
// assumes hold: unique camera ids, recognized codecs, sane thresholds.
func Validate(cfg *Config) error {
	seen := make(map[string]bool, len(cfg.Cameras))
	for _, cam := range cfg.Cameras {
		if cam.ID == "" {
			return fmt.Errorf("%w: camera entry missing id", perr.ErrConfigInvalid)
		}
		if seen[cam.ID] {
			return fmt.Errorf("%w: duplicate camera id %q", perr.ErrConfigInvalid, cam.ID)
		}
		seen[cam.ID] = true

		if cam.Codec != CodecH264 && cam.Codec != CodecH265 {
			return fmt.Errorf("%w: camera %q: unrecognized codec %q", perr.ErrConfigInvalid, cam.ID, cam.Codec)
		}
	}

	if cfg.Recording.MinFreeGBStop > cfg.Recording.MinFreeGBStart {
		return fmt.Errorf("%w: recording.min_free_gb_stop (%v) must not exceed min_free_gb_start (%v)",
			perr.ErrConfigInvalid, cfg.Recording.MinFreeGBStop, cfg.Recording.MinFreeGBStart)
	}

	if cfg.Mixer.OutputCodec != CodecH264 && cfg.Mixer.OutputCodec != CodecH265 {
		return fmt.Errorf("%w: mixer.output_codec: unrecognized codec %q", perr.ErrConfigInvalid, cfg.Mixer.OutputCodec)
	}

	if cfg.Mode.Default != "recorder" && cfg.Mode.Default != "peer_webrtc" {
		return fmt.Errorf("%w: mode.default: unrecognized mode %q", perr.ErrConfigInvalid, cfg.Mode.Default)
	}

	return nil
}
