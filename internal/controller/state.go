package controller

import (
	"errors"
	"fmt"
	"time"

	"github.com/ayusman/mudra/internal/control"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/geometry"
	"github.com/ayusman/mudra/internal/midi"
)

// Mode is the controller's operating state.
type Mode int

const (
	// Streaming emits all five slots from every frame that has a hand.
	Streaming Mode = iota
	// Mapping suspends streaming and repeats a test value on the selected slot.
	Mapping
)

// String returns "streaming" or "mapping".
func (m Mode) String() string {
	switch m {
	case Streaming:
		return "streaming"
	case Mapping:
		return "mapping"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// MarshalText encodes the mode as its name.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// State is a snapshot of the controller's mode and selection.
// Selected is control.None unless Mode is Mapping.
type State struct {
	Mode     Mode         `json:"mode"`
	Selected control.Slot `json:"selected"`
}

// Frame is the result of processing one camera frame.
type Frame struct {
	Mode     Mode                    `json:"mode"`
	Selected control.Slot            `json:"selected"`
	Hand     *detector.HandLandmarks `json:"hand,omitempty"`
	Readings *geometry.Readings      `json:"readings,omitempty"`
	// Overlay holds the debug text lines to draw over the frame.
	Overlay []string `json:"overlay,omitempty"`
	// Emitted counts the CC messages successfully sent for this frame.
	Emitted int `json:"emitted"`
}

// Default mapping-mode settings.
const (
	DefaultMappingInterval = 500 * time.Millisecond
	DefaultTestValue       = 64
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("invalid controller config")

// Config holds controller settings.
type Config struct {
	// Channel is the zero-based MIDI channel used for every message.
	Channel uint8
	// MappingInterval is the period of test-value emission in mapping mode.
	MappingInterval time.Duration
	// TestValue is the constant value sent in mapping mode.
	TestValue uint8
	// Calibration is the initial geometry calibration.
	Calibration geometry.Calibration
}

// DefaultConfig returns channel 1, a 500ms mapping interval and test value 64.
func DefaultConfig() Config {
	return Config{
		Channel:         0,
		MappingInterval: DefaultMappingInterval,
		TestValue:       DefaultTestValue,
		Calibration:     geometry.DefaultCalibration(),
	}
}

// Validate checks the config.
func (c Config) Validate() error {
	if c.Channel > midi.MaxChannel {
		return fmt.Errorf("%w: channel %d out of range", ErrInvalidConfig, c.Channel)
	}
	if c.MappingInterval <= 0 {
		return fmt.Errorf("%w: mapping interval must be positive", ErrInvalidConfig)
	}
	if c.TestValue > geometry.MaxMidiValue {
		return fmt.Errorf("%w: test value %d exceeds %d", ErrInvalidConfig, c.TestValue, geometry.MaxMidiValue)
	}
	if err := c.Calibration.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}
