package geometry

import (
	"fmt"

	"github.com/ayusman/mudra/internal/control"
	"github.com/ayusman/mudra/internal/detector"
)

// Readings are the five control percentages derived from one hand.
type Readings struct {
	// Fingers holds Index, Middle, Ring and Pinky extension, unclamped.
	Fingers [4]float64 `json:"fingers"`
	// Depth is the clamped palm depth percentage.
	Depth float64 `json:"depth"`
}

// Compute derives all five readings from a hand in one pass.
func Compute(hand *detector.HandLandmarks, cal Calibration) Readings {
	palm := PalmDistance(hand)

	var r Readings
	for i, finger := range control.Fingers() {
		r.Fingers[i] = fingerPercent(hand, fingerTips[finger], palm, cal.FingerScale)
	}
	r.Depth = NormalizePercent(palm, cal.MinDepth, cal.MaxDepth)
	return r
}

// Percent returns the reading for a slot.
func (r Readings) Percent(s control.Slot) float64 {
	if s == control.Depth {
		return r.Depth
	}
	if s.IsFinger() {
		return r.Fingers[s-control.Index]
	}
	return 0
}

// Values returns the MIDI value of every slot in control.All() order.
func (r Readings) Values() [control.NumSlots]uint8 {
	var out [control.NumSlots]uint8
	for i, s := range control.All() {
		out[i] = ToMidiValue(r.Percent(s))
	}
	return out
}

// Overlay renders the readings as debug text, one line per slot.
func (r Readings) Overlay() []string {
	lines := make([]string, 0, control.NumSlots)
	for _, s := range control.All() {
		lines = append(lines, fmt.Sprintf("%s: %d%%", s, int(r.Percent(s))))
	}
	return lines
}
