// Package config loads and saves the mudra YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/controller"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/geometry"
	"github.com/ayusman/mudra/internal/logging"
	"github.com/ayusman/mudra/internal/midi"
)

// DirName is the per-user data directory under the home directory.
const DirName = ".mudra"

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid configuration")

// Config represents the application configuration
type Config struct {
	Camera      CameraConfig         `yaml:"camera"`
	Detector    DetectorConfig       `yaml:"detector"`
	Calibration geometry.Calibration `yaml:"calibration"`
	MIDI        MIDIConfig           `yaml:"midi"`
	Mapping     MappingConfig        `yaml:"mapping"`
	Server      ServerConfig         `yaml:"server"`
	Store       StoreConfig          `yaml:"store"`
	Log         LogConfig            `yaml:"log"`
}

// CameraConfig represents capture device settings
type CameraConfig struct {
	Device int  `yaml:"device"`
	Width  int  `yaml:"width"`
	Height int  `yaml:"height"`
	FPS    int  `yaml:"fps"`
	Mirror bool `yaml:"mirror"` // flip horizontally so the preview acts like a mirror
}

// DetectorConfig represents hand landmark detector settings
type DetectorConfig struct {
	MaxHands               int     `yaml:"max_hands"`
	MinDetectionConfidence float64 `yaml:"min_detection_confidence"`
	MinTrackingConfidence  float64 `yaml:"min_tracking_confidence"`
	ScriptPath             string  `yaml:"script_path,omitempty"`
}

// MIDIConfig represents the MIDI output
type MIDIConfig struct {
	Port    string `yaml:"port"`
	Virtual bool   `yaml:"virtual"` // create the port instead of opening an existing one
	Channel uint8  `yaml:"channel"` // zero-based
}

// MappingConfig represents mapping mode settings
type MappingConfig struct {
	Interval  time.Duration `yaml:"interval"`
	TestValue uint8         `yaml:"test_value"`
}

// ServerConfig represents the HTTP control surface
type ServerConfig struct {
	Addr      string `yaml:"addr"`
	StaticDir string `yaml:"static_dir,omitempty"`
}

// StoreConfig represents the SQLite database location
type StoreConfig struct {
	Path string `yaml:"path"`
}

// LogConfig represents logging settings
type LogConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	det := detector.DefaultConfig()
	ctrl := controller.DefaultConfig()

	return &Config{
		Camera: CameraConfig{
			Device: 0,
			Width:  capture.DefaultWidth,
			Height: capture.DefaultHeight,
			FPS:    capture.DefaultFPS,
			Mirror: true,
		},
		Detector: DetectorConfig{
			MaxHands:               det.MaxHands,
			MinDetectionConfidence: det.MinConfidence,
			MinTrackingConfidence:  det.MinTrackingConf,
		},
		Calibration: geometry.DefaultCalibration(),
		MIDI: MIDIConfig{
			Port:    "IAC Driver Bus 1",
			Channel: ctrl.Channel,
		},
		Mapping: MappingConfig{
			Interval:  ctrl.MappingInterval,
			TestValue: ctrl.TestValue,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Store: StoreConfig{
			Path: filepath.Join(dataDir(), "mudra.db"),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// DefaultPath returns ~/.mudra/config.yaml.
func DefaultPath() string {
	return filepath.Join(dataDir(), "config.yaml")
}

func dataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DirName
	}
	return filepath.Join(home, DirName)
}

// LoadConfig loads configuration from file. Keys missing from the file keep
// their default values.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		// If file doesn't exist, return default config
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveConfig saves configuration to file, creating its directory.
func SaveConfig(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		return fmt.Errorf("%w: camera resolution %dx%d", ErrInvalid, c.Camera.Width, c.Camera.Height)
	}
	if c.Camera.FPS <= 0 {
		return fmt.Errorf("%w: camera fps must be positive", ErrInvalid)
	}
	if err := c.DetectionConfig().Validate(); err != nil {
		return fmt.Errorf("%w: detector: %v", ErrInvalid, err)
	}
	if err := c.ControllerConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.MIDI.Port == "" {
		return fmt.Errorf("%w: midi port name is empty", ErrInvalid)
	}
	if c.MIDI.Channel > midi.MaxChannel {
		return fmt.Errorf("%w: midi channel %d", ErrInvalid, c.MIDI.Channel)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// DetectionConfig converts the detector section.
func (c *Config) DetectionConfig() detector.Config {
	det := detector.DefaultConfig()
	det.MaxHands = c.Detector.MaxHands
	det.MinConfidence = c.Detector.MinDetectionConfidence
	det.MinTrackingConf = c.Detector.MinTrackingConfidence
	det.ScriptPath = c.Detector.ScriptPath
	return det
}

// ControllerConfig converts the midi, mapping and calibration sections.
func (c *Config) ControllerConfig() controller.Config {
	return controller.Config{
		Channel:         c.MIDI.Channel,
		MappingInterval: c.Mapping.Interval,
		TestValue:       c.Mapping.TestValue,
		Calibration:     c.Calibration,
	}
}

// CaptureConfig converts the camera section.
func (c *Config) CaptureConfig() capture.Config {
	return capture.Config{
		DeviceID: c.Camera.Device,
		Width:    c.Camera.Width,
		Height:   c.Camera.Height,
		FPS:      c.Camera.FPS,
		Mirror:   c.Camera.Mirror,
	}
}
