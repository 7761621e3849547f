package control

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestSlotTable(t *testing.T) {
	tests := []struct {
		slot  Slot
		label string
		cc    uint8
	}{
		{Index, "Index", 20},
		{Middle, "Middle", 21},
		{Ring, "Ring", 22},
		{Pinky, "Pinky", 23},
		{Depth, "Depth", 24},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			if got := tt.slot.String(); got != tt.label {
				t.Errorf("String() = %q, want %q", got, tt.label)
			}
			if got := tt.slot.CC(); got != tt.cc {
				t.Errorf("CC() = %d, want %d", got, tt.cc)
			}
			if !tt.slot.Valid() {
				t.Error("expected slot to be valid")
			}
		})
	}
}

func TestAll_Order(t *testing.T) {
	all := All()
	if len(all) != NumSlots {
		t.Fatalf("expected %d slots, got %d", NumSlots, len(all))
	}
	for i, s := range all {
		if want := uint8(20 + i); s.CC() != want {
			t.Errorf("slot %d: CC() = %d, want %d", i, s.CC(), want)
		}
	}

	for _, f := range Fingers() {
		if !f.IsFinger() {
			t.Errorf("%s should be a finger slot", f)
		}
	}
	if Depth.IsFinger() {
		t.Error("Depth should not be a finger slot")
	}
}

func TestNone(t *testing.T) {
	if None.Valid() {
		t.Error("None should not be valid")
	}
	if None.CC() != 0 {
		t.Errorf("None.CC() = %d, want 0", None.CC())
	}
	if Slot(99).Valid() {
		t.Error("out-of-range slot should not be valid")
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Slot
		wantErr bool
	}{
		{in: "Pinky", want: Pinky},
		{in: "pinky", want: Pinky},
		{in: " DEPTH ", want: Depth},
		{in: "thumb", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownSlot) {
					t.Errorf("expected ErrUnknownSlot, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestSlot_JSON(t *testing.T) {
	var payload struct {
		Slot Slot `json:"slot"`
	}

	if err := json.Unmarshal([]byte(`{"slot":"ring"}`), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload.Slot != Ring {
		t.Errorf("expected Ring, got %s", payload.Slot)
	}

	if err := json.Unmarshal([]byte(`{"slot":""}`), &payload); err != nil {
		t.Fatalf("unmarshal empty: %v", err)
	}
	if payload.Slot != None {
		t.Errorf("expected None, got %s", payload.Slot)
	}

	if err := json.Unmarshal([]byte(`{"slot":"elbow"}`), &payload); err == nil {
		t.Error("expected error for unknown slot")
	}

	payload.Slot = Middle
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"slot":"Middle"}` {
		t.Errorf("unexpected JSON %s", data)
	}
}
