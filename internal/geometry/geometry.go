// Package geometry converts hand landmarks into normalized control values.
//
// Finger controls are the thumb-tip to fingertip distance divided by a
// fraction of the palm length (index MCP to wrist), which keeps them roughly
// independent of hand size and camera distance. The depth control is the palm
// length itself, rescaled between two calibrated bounds. Both are sensitive
// to hand orientation relative to the camera.
package geometry

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/ayusman/mudra/internal/control"
	"github.com/ayusman/mudra/internal/detector"
)

// Default calibration constants, tuned for a typical webcam at arm's length.
const (
	DefaultMinDepth    = 0.13
	DefaultMaxDepth    = 0.48
	DefaultFingerScale = 0.5
)

// MaxMidiValue is the largest 7-bit MIDI data value.
const MaxMidiValue = 127

// ErrInvalidCalibration is returned by Calibration.Validate.
var ErrInvalidCalibration = errors.New("invalid calibration")

// Calibration holds the tunable constants of the transform.
type Calibration struct {
	// MinDepth is the palm length mapped to 0% depth.
	MinDepth float64 `json:"min_depth" yaml:"min_depth"`
	// MaxDepth is the palm length mapped to 100% depth.
	MaxDepth float64 `json:"max_depth" yaml:"max_depth"`
	// FingerScale is the fraction of the palm length that counts as 100%
	// finger extension. Smaller values make the fingers more sensitive.
	FingerScale float64 `json:"finger_scale" yaml:"finger_scale"`
}

// DefaultCalibration returns the stock calibration.
func DefaultCalibration() Calibration {
	return Calibration{
		MinDepth:    DefaultMinDepth,
		MaxDepth:    DefaultMaxDepth,
		FingerScale: DefaultFingerScale,
	}
}

// Validate checks the depth range is non-empty and the finger scale positive.
func (c Calibration) Validate() error {
	if c.MinDepth < 0 {
		return fmt.Errorf("%w: min depth %g is negative", ErrInvalidCalibration, c.MinDepth)
	}
	if c.MaxDepth <= c.MinDepth {
		return fmt.Errorf("%w: max depth %g must exceed min depth %g", ErrInvalidCalibration, c.MaxDepth, c.MinDepth)
	}
	if c.FingerScale <= 0 {
		return fmt.Errorf("%w: finger scale %g must be positive", ErrInvalidCalibration, c.FingerScale)
	}
	return nil
}

// Distance3D returns the Euclidean distance between two landmarks.
func Distance3D(a, b detector.Point3D) float64 {
	return r3.Norm(r3.Sub(vec(a), vec(b)))
}

func vec(p detector.Point3D) r3.Vec {
	return r3.Vec{X: p.X, Y: p.Y, Z: p.Z}
}

// NormalizePercent rescales value from [min, max] to [0, 100], clamping
// values outside the range to the nearest bound.
func NormalizePercent(value, min, max float64) float64 {
	if max <= min {
		if value < max {
			return 0
		}
		return 100
	}
	ratio := (value - min) / (max - min)
	return clamp(ratio, 0, 1) * 100
}

// PalmDistance returns the index MCP to wrist distance.
func PalmDistance(hand *detector.HandLandmarks) float64 {
	return Distance3D(hand.Points[detector.IndexMCP], hand.Points[detector.Wrist])
}

// PalmDepthPercent maps the palm length onto [0, 100] using the calibrated
// depth range. A hand closer to the camera looks bigger and reads higher.
func PalmDepthPercent(hand *detector.HandLandmarks, cal Calibration) float64 {
	return NormalizePercent(PalmDistance(hand), cal.MinDepth, cal.MaxDepth)
}

// fingerTips maps finger slots to their tip landmark.
var fingerTips = map[control.Slot]int{
	control.Index:  detector.IndexTip,
	control.Middle: detector.MiddleTip,
	control.Ring:   detector.RingTip,
	control.Pinky:  detector.PinkyTip,
}

// FingerExtensionPercent returns the thumb-to-fingertip distance as a
// percentage of FingerScale palm lengths. The result is not clamped and
// exceeds 100 when the fingers are spread wide; ToMidiValue clamps it.
// A degenerate palm (zero length) yields 0.
func FingerExtensionPercent(hand *detector.HandLandmarks, finger control.Slot, cal Calibration) float64 {
	tip, ok := fingerTips[finger]
	if !ok {
		return 0
	}
	return fingerPercent(hand, tip, PalmDistance(hand), cal.FingerScale)
}

func fingerPercent(hand *detector.HandLandmarks, tip int, palm, scale float64) float64 {
	denom := palm * scale
	if denom <= 0 {
		return 0
	}
	d := Distance3D(hand.Points[detector.ThumbTip], hand.Points[tip])
	return d / denom * 100
}

// ToMidiValue converts a percentage to a 7-bit MIDI value, rounding to the
// nearest step and clamping to [0, 127].
func ToMidiValue(percent float64) uint8 {
	if math.IsNaN(percent) {
		return 0
	}
	v := math.Round(percent / 100 * MaxMidiValue)
	return uint8(clamp(v, 0, MaxMidiValue))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
