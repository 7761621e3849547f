package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ayusman/mudra/internal/geometry"
)

// CalibrationKey is the settings key holding the JSON-encoded calibration.
const CalibrationKey = "calibration"

// SettingsRepository provides access to key-value settings.
type SettingsRepository struct {
	db *sql.DB
}

// Settings returns the settings repository for this store.
func (s *Store) Settings() *SettingsRepository {
	return &SettingsRepository{db: s.db}
}

// Get returns the value stored under key, or ErrNotFound.
func (r *SettingsRepository) Get(key string) (string, error) {
	var value string
	err := r.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return value, nil
}

// Set inserts or replaces the value stored under key.
func (r *SettingsRepository) Set(key, value string) error {
	_, err := r.db.Exec(
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC(),
	)
	return err
}

// Delete removes key. Deleting a missing key returns ErrNotFound.
func (r *SettingsRepository) Delete(key string) error {
	result, err := r.db.Exec(`DELETE FROM settings WHERE key = ?`, key)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// Calibration returns the saved calibration, or ErrNotFound if none was saved.
func (r *SettingsRepository) Calibration() (geometry.Calibration, error) {
	raw, err := r.Get(CalibrationKey)
	if err != nil {
		return geometry.Calibration{}, err
	}

	var cal geometry.Calibration
	if err := json.Unmarshal([]byte(raw), &cal); err != nil {
		return geometry.Calibration{}, fmt.Errorf("decode calibration: %w", err)
	}
	if err := cal.Validate(); err != nil {
		return geometry.Calibration{}, err
	}
	return cal, nil
}

// SaveCalibration validates and stores cal.
func (r *SettingsRepository) SaveCalibration(cal geometry.Calibration) error {
	if err := cal.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(cal)
	if err != nil {
		return err
	}
	return r.Set(CalibrationKey, string(data))
}
