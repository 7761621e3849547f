package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/mudra/internal/geometry"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "IAC Driver Bus 1", cfg.MIDI.Port)
	assert.Equal(t, uint8(0), cfg.MIDI.Channel)
	assert.Equal(t, 500*time.Millisecond, cfg.Mapping.Interval)
	assert.Equal(t, uint8(64), cfg.Mapping.TestValue)
	assert.Equal(t, geometry.DefaultCalibration(), cfg.Calibration)
	assert.Equal(t, 1, cfg.Detector.MaxHands)
	assert.Equal(t, 0.5, cfg.Detector.MinDetectionConfidence)
	assert.Equal(t, 0.5, cfg.Detector.MinTrackingConfidence)
	assert.True(t, cfg.Camera.Mirror)
}

func TestLoadConfig_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Errorf("LoadConfig() mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	want := DefaultConfig()
	want.Camera.Device = 2
	want.Camera.Mirror = false
	want.MIDI.Port = "mudra"
	want.MIDI.Virtual = true
	want.MIDI.Channel = 9
	want.Mapping.Interval = 250 * time.Millisecond
	want.Calibration.FingerScale = 0.75
	want.Log.Level = "debug"

	require.NoError(t, SaveConfig(path, want))

	got, err := LoadConfig(path)
	require.NoError(t, err)

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfig_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
midi:
  port: "loopMIDI Port"
mapping:
  interval: 1s
calibration:
  min_depth: 0.1
  max_depth: 0.5
  finger_scale: 0.5
`)
	require.NoError(t, os.WriteFile(path, data, 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "loopMIDI Port", cfg.MIDI.Port)
	assert.Equal(t, time.Second, cfg.Mapping.Interval)
	assert.Equal(t, uint8(64), cfg.Mapping.TestValue, "unset keys keep defaults")
	assert.Equal(t, 0.1, cfg.Calibration.MinDepth)
	assert.Equal(t, DefaultConfig().Camera, cfg.Camera)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"channel", "midi:\n  channel: 16\n"},
		{"depth range", "calibration:\n  min_depth: 0.5\n  max_depth: 0.2\n"},
		{"confidence", "detector:\n  min_detection_confidence: 1.5\n"},
		{"fps", "camera:\n  fps: 0\n"},
		{"empty port", "midi:\n  port: \"\"\n"},
		{"log level", "log:\n  level: loud\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0644))

			_, err := LoadConfig(path)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestLoadConfig_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("midi: [unterminated"), 0644))

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalid)
}

func TestConversions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MIDI.Channel = 3
	cfg.Detector.MaxHands = 2
	cfg.Camera.Device = 1

	ctrl := cfg.ControllerConfig()
	assert.Equal(t, uint8(3), ctrl.Channel)
	assert.Equal(t, cfg.Mapping.Interval, ctrl.MappingInterval)
	assert.Equal(t, cfg.Calibration, ctrl.Calibration)

	det := cfg.DetectionConfig()
	assert.Equal(t, 2, det.MaxHands)
	assert.Equal(t, cfg.Detector.MinTrackingConfidence, det.MinTrackingConf)

	cam := cfg.CaptureConfig()
	assert.Equal(t, 1, cam.DeviceID)
	assert.Equal(t, cfg.Camera.Mirror, cam.Mirror)
}
