// Package config loads and hot-reloads the YAML configuration tree
// described in spec §6: per-camera capture settings, recording and
// mixer defaults, mode-arbiter persistence, plus the scene definitions
// consumed by the mixer engine.
package config

import "time"

// Codec is the configured hardware encoder family for a camera or the
// mixer program output.
type Codec string

const (
	CodecH264 Codec = "h264"
	CodecH265 Codec = "h265"
)

// Resolution is a width/height pair in pixels. Spec §3 defines this as
// a (width, height) pair, so it serializes as an object; the §8
// scenario text shows it inline as "1920x1080" for readability, not as
// the literal wire format.
type Resolution struct {
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
}

// CameraConfig is the immutable per-camera configuration entity from
// spec §3. Hot-reload replaces the value wholesale and forces
// reconciliation in the owning ingest supervisor.
type CameraConfig struct {
	ID            string     `yaml:"id" json:"id"`
	Device        string     `yaml:"device" json:"device"`
	Enabled       bool       `yaml:"enabled" json:"enabled"`
	Resolution    Resolution `yaml:"resolution" json:"resolution"`
	Framerate     int        `yaml:"framerate" json:"framerate"`
	BitrateKbps   int        `yaml:"bitrate" json:"bitrate"`
	Codec         Codec      `yaml:"codec" json:"codec"`
	AudioDevice   string     `yaml:"audio_device,omitempty" json:"audio_device,omitempty"`
	AudioEnabled  bool       `yaml:"audio_enabled" json:"audio_enabled"`
	AudioDelayMS  int        `yaml:"audio_delay_ms,omitempty" json:"audio_delay_ms,omitempty"`
}

// RecordingConfig carries the recording supervisor's defaults.
type RecordingConfig struct {
	BasePath        string  `yaml:"base_path" json:"base_path"`
	MinFreeGBStart  float64 `yaml:"min_free_gb_start" json:"min_free_gb_start"`
	MinFreeGBStop   float64 `yaml:"min_free_gb_stop" json:"min_free_gb_stop"`
	SegmentSeconds  int     `yaml:"segment_seconds" json:"segment_seconds"`
}

// MixerConfig carries the mixer engine's program-output defaults.
type MixerConfig struct {
	OutputResolution Resolution `yaml:"output_resolution" json:"output_resolution"`
	OutputBitrate    int        `yaml:"output_bitrate" json:"output_bitrate"`
	OutputCodec      Codec      `yaml:"output_codec" json:"output_codec"`
	ScenesPath       string     `yaml:"scenes_path" json:"scenes_path"`
}

// ModeConfig carries the arbiter's startup and persistence defaults.
type ModeConfig struct {
	Default      string `yaml:"default" json:"default"`
	PersistState bool   `yaml:"persist_state" json:"persist_state"`
}

// IngestDefaults carries the §4.4 debounce/backoff constants, exposed
// as configuration per the spec's explicit instruction (§9 open
// question) rather than hardcoded.
type IngestDefaults struct {
	SampleInterval       time.Duration `yaml:"sample_interval" json:"sample_interval"`
	InitialDebounce      time.Duration `yaml:"initial_debounce" json:"initial_debounce"`
	MaxDebounce          time.Duration `yaml:"max_debounce" json:"max_debounce"`
	DebounceWindow       time.Duration `yaml:"debounce_window" json:"debounce_window"`
	RestartBackoffSteps  []time.Duration `yaml:"restart_backoff_steps" json:"restart_backoff_steps"`
	PublicationTimeout   time.Duration `yaml:"publication_timeout" json:"publication_timeout"`
	PublicationPoll      time.Duration `yaml:"publication_poll" json:"publication_poll"`
}

// RegistryConfig points the stream registry client at the embedded
// streaming server's control API and publish endpoint.
type RegistryConfig struct {
	BaseURL  string        `yaml:"base_url" json:"base_url"`
	Username string        `yaml:"username,omitempty" json:"username,omitempty"`
	Password string        `yaml:"password,omitempty" json:"password,omitempty"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout"`
	// StreamBaseURL is the RTSP publish/subscribe base ingest and
	// recording pipelines target, distinct from BaseURL's HTTP control
	// API (spec §6's stream-server contract: "named publish paths").
	StreamBaseURL string `yaml:"stream_base_url" json:"stream_base_url"`
}

// PeerConfig points the arbiter's peer_webrtc mode at the external
// peer WebRTC signalling daemon's lifecycle hooks (spec §1: out of
// scope, consumed only as a start/stop/probe collaborator).
type PeerConfig struct {
	BaseURL string `yaml:"base_url" json:"base_url"`
}

// HTTPConfig carries the control plane adapter's listen settings.
type HTTPConfig struct {
	Addr             string `yaml:"addr" json:"addr"`
	WebSocketBacklog int    `yaml:"websocket_backlog" json:"websocket_backlog"`
}

// Config is the root of the YAML configuration tree.
type Config struct {
	Cameras   []CameraConfig  `yaml:"cameras" json:"cameras"`
	Recording RecordingConfig `yaml:"recording" json:"recording"`
	Mixer     MixerConfig     `yaml:"mixer" json:"mixer"`
	Mode      ModeConfig      `yaml:"mode" json:"mode"`
	Ingest    IngestDefaults  `yaml:"ingest" json:"ingest"`
	Registry  RegistryConfig  `yaml:"registry" json:"registry"`
	Peer      PeerConfig      `yaml:"peer" json:"peer"`
	HTTP      HTTPConfig      `yaml:"http" json:"http"`
	StatePath string          `yaml:"state_path" json:"state_path"`
}

// Defaults returns a Config pre-populated with every spec-mandated
// default value, to be overlaid by the YAML file and environment.
func Defaults() Config {
	return Config{
		Recording: RecordingConfig{
			BasePath:       "recordings",
			MinFreeGBStart: 10,
			MinFreeGBStop:  5,
			SegmentSeconds: 1,
		},
		Mixer: MixerConfig{
			OutputResolution: Resolution{Width: 1920, Height: 1080},
			OutputBitrate:    6000,
			OutputCodec:      CodecH264,
			ScenesPath:       "scenes",
		},
		Mode: ModeConfig{
			Default:      "recorder",
			PersistState: true,
		},
		Ingest: IngestDefaults{
			SampleInterval:      2 * time.Second,
			InitialDebounce:     1 * time.Second,
			MaxDebounce:         5 * time.Second,
			DebounceWindow:      30 * time.Second,
			RestartBackoffSteps: []time.Duration{1 * time.Second, 2 * time.Second, 5 * time.Second, 10 * time.Second, 30 * time.Second},
			PublicationTimeout:  15 * time.Second,
			PublicationPoll:     1 * time.Second,
		},
		Registry: RegistryConfig{
			BaseURL:       "http://127.0.0.1:9997",
			Timeout:       2 * time.Second,
			StreamBaseURL: "rtsp://127.0.0.1:8554",
		},
		Peer: PeerConfig{
			BaseURL: "http://127.0.0.1:9000",
		},
		HTTP: HTTPConfig{
			Addr:             ":8080",
			WebSocketBacklog: 256,
		},
		StatePath: "mode_state.json",
	}
}

// CameraByID returns the camera with the given id, or false if absent.
func (c Config) CameraByID(id string) (CameraConfig, bool) {
	for _, cam := range c.Cameras {
		if cam.ID == id {
			return cam, true
		}
	}
	return CameraConfig{}, false
}
