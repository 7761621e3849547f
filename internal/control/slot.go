// Package control defines the fixed table of gesture control slots and their
// MIDI control-change numbers.
package control

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownSlot is returned when a slot name or value is not in the table.
var ErrUnknownSlot = errors.New("unknown control slot")

// Slot identifies one of the five logical controllers.
// The zero value None means "no slot selected".
type Slot int

const (
	None Slot = iota
	Index
	Middle
	Ring
	Pinky
	Depth
)

// NumSlots is the number of assignable slots.
const NumSlots = 5

// entry is one row of the static CC table.
type entry struct {
	label string
	cc    uint8
}

var table = map[Slot]entry{
	Index:  {label: "Index", cc: 20},
	Middle: {label: "Middle", cc: 21},
	Ring:   {label: "Ring", cc: 22},
	Pinky:  {label: "Pinky", cc: 23},
	Depth:  {label: "Depth", cc: 24},
}

// All returns the slots in emission order.
func All() []Slot {
	return []Slot{Index, Middle, Ring, Pinky, Depth}
}

// Fingers returns the four finger slots in emission order.
func Fingers() []Slot {
	return []Slot{Index, Middle, Ring, Pinky}
}

// Valid reports whether s is one of the five assignable slots.
func (s Slot) Valid() bool {
	_, ok := table[s]
	return ok
}

// IsFinger reports whether s is driven by a thumb-to-fingertip distance.
func (s Slot) IsFinger() bool {
	return s >= Index && s <= Pinky
}

// CC returns the fixed control-change number for the slot, or 0 for None.
func (s Slot) CC() uint8 {
	return table[s].cc
}

// String returns the human-readable label.
func (s Slot) String() string {
	if e, ok := table[s]; ok {
		return e.label
	}
	if s == None {
		return "none"
	}
	return fmt.Sprintf("Slot(%d)", int(s))
}

// Parse resolves a label such as "pinky" to its Slot.
func Parse(label string) (Slot, error) {
	for _, s := range All() {
		if strings.EqualFold(s.String(), strings.TrimSpace(label)) {
			return s, nil
		}
	}
	return None, fmt.Errorf("%w: %q", ErrUnknownSlot, label)
}

// MarshalText encodes the slot as its label.
func (s Slot) MarshalText() ([]byte, error) {
	if s == None {
		return []byte(""), nil
	}
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownSlot, int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText decodes a label; the empty string decodes to None.
func (s *Slot) UnmarshalText(text []byte) error {
	if len(strings.TrimSpace(string(text))) == 0 {
		*s = None
		return nil
	}
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
