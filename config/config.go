package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"notanalyzr/audio"
	"notanalyzr/voice"
)

// PlaybackConfig holds transport tuning
type PlaybackConfig struct {
	MinTempo       float64 `json:"minTempo,omitempty"`
	MaxTempo       float64 `json:"maxTempo,omitempty"`
	PollIntervalMS int     `json:"pollIntervalMs,omitempty"`
}

// AudioConfig defines the in-process audio output
type AudioConfig struct {
	SampleRate     int    `json:"sampleRate,omitempty"`
	BufferMS       int    `json:"bufferMs,omitempty"`
	SoundFont      string `json:"soundFont,omitempty"` // default for soundfont instruments, path or URL
	FetchTimeoutMS int    `json:"fetchTimeoutMs,omitempty"`
}

// MIDIOutputConfig defines the port used by port instruments
type MIDIOutputConfig struct {
	PortName string `json:"portName,omitempty"`
}

// UIConfig stores UI preferences
type UIConfig struct {
	LastTempo      int    `json:"lastTempo,omitempty"`
	LastInstrument string `json:"lastInstrument,omitempty"`
	Palette        string `json:"palette,omitempty"` // GIMP palette file, built-in palette when empty
	SeekStepMS     int    `json:"seekStepMs,omitempty"`
}

// Config is the main configuration structure
type Config struct {
	Instruments       []voice.Instrument `json:"instruments,omitempty"`
	DefaultInstrument string             `json:"defaultInstrument,omitempty"`
	Playback          PlaybackConfig     `json:"playback,omitempty"`
	Audio             AudioConfig        `json:"audio,omitempty"`
	MIDIOutput        MIDIOutputConfig   `json:"midiOutput,omitempty"`
	UI                UIConfig           `json:"ui,omitempty"`
	Debug             bool               `json:"debug,omitempty"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Instruments:       voice.DefaultInstruments(),
		DefaultInstrument: "piano",
		Playback: PlaybackConfig{
			MinTempo:       50,
			MaxTempo:       200,
			PollIntervalMS: 100,
		},
		Audio: AudioConfig{
			SampleRate:     audio.DefaultSampleRate,
			BufferMS:       100,
			FetchTimeoutMS: 20000,
		},
		UI: UIConfig{
			SeekStepMS: 5000,
		},
	}
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "notanalyzr"), nil
}

// ConfigPath returns the full path to config.json
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config from disk, or returns defaults if not found
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), nil
	}
	return LoadFile(path)
}

// LoadFile reads the config at path. Missing fields keep their defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	cfg.Instruments = nil
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if len(cfg.Instruments) == 0 {
		cfg.Instruments = voice.DefaultInstruments()
	}

	return cfg, nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveFile(path)
}

// SaveFile writes the config to path, creating its directory
func (c *Config) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Registry builds the immutable instrument table
func (c *Config) Registry() (*voice.Registry, error) {
	return voice.NewRegistry(c.Instruments...)
}

// StartInstrument returns the instrument to select on startup
func (c *Config) StartInstrument() string {
	if c.UI.LastInstrument != "" {
		return c.UI.LastInstrument
	}
	return c.DefaultInstrument
}

// PollInterval returns the position poll interval
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Playback.PollIntervalMS) * time.Millisecond
}

// FetchTimeout returns the SoundFont download timeout
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Audio.FetchTimeoutMS) * time.Millisecond
}

// BufferSize returns the audio output buffer length
func (c *Config) BufferSize() time.Duration {
	return time.Duration(c.Audio.BufferMS) * time.Millisecond
}

// SeekStep returns how far the seek keys move, in original-tempo seconds
func (c *Config) SeekStep() float64 {
	if c.UI.SeekStepMS <= 0 {
		return 5
	}
	return float64(c.UI.SeekStepMS) / 1000
}
