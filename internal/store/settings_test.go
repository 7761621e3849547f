package store

import (
	"errors"
	"testing"

	"github.com/ayusman/mudra/internal/geometry"
)

func TestSettings_GetSet(t *testing.T) {
	s := newTestStore(t)
	settings := s.Settings()

	if _, err := settings.Get("midi.port"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() on empty store error = %v, want ErrNotFound", err)
	}

	if err := settings.Set("midi.port", "IAC Driver Bus 1"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := settings.Set("midi.port", "mudra"); err != nil {
		t.Fatalf("Set() overwrite error = %v", err)
	}

	got, err := settings.Get("midi.port")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != "mudra" {
		t.Errorf("Get() = %q, want %q", got, "mudra")
	}

	if err := settings.Delete("midi.port"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := settings.Delete("midi.port"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func TestSettings_Calibration(t *testing.T) {
	s := newTestStore(t)
	settings := s.Settings()

	if _, err := settings.Calibration(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Calibration() before save error = %v, want ErrNotFound", err)
	}

	want := geometry.Calibration{MinDepth: 0.1, MaxDepth: 0.4, FingerScale: 0.6}
	if err := settings.SaveCalibration(want); err != nil {
		t.Fatalf("SaveCalibration() error = %v", err)
	}

	got, err := settings.Calibration()
	if err != nil {
		t.Fatalf("Calibration() error = %v", err)
	}
	if got != want {
		t.Errorf("Calibration() = %+v, want %+v", got, want)
	}
}

func TestSettings_SaveCalibrationRejectsInvalid(t *testing.T) {
	s := newTestStore(t)

	bad := geometry.Calibration{MinDepth: 0.5, MaxDepth: 0.5, FingerScale: 0.5}
	if err := s.Settings().SaveCalibration(bad); !errors.Is(err, geometry.ErrInvalidCalibration) {
		t.Errorf("SaveCalibration() error = %v, want ErrInvalidCalibration", err)
	}

	if _, err := s.Settings().Get(CalibrationKey); !errors.Is(err, ErrNotFound) {
		t.Error("invalid calibration should not be stored")
	}
}

func TestSettings_CalibrationCorrupt(t *testing.T) {
	s := newTestStore(t)
	if err := s.Settings().Set(CalibrationKey, "{not json"); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Settings().Calibration(); err == nil {
		t.Error("Calibration() should fail on corrupt JSON")
	}
}
