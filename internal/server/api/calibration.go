package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ayusman/mudra/internal/geometry"
	"github.com/ayusman/mudra/internal/logging"
	"github.com/ayusman/mudra/internal/store"
)

// CalibrationHandler reads and updates the geometry calibration.
type CalibrationHandler struct {
	ctrl   Controller
	store  *store.Store
	base   geometry.Calibration
	logger *slog.Logger
}

// NewCalibrationHandler creates a handler. The store may be nil, in which
// case updates are applied but not persisted. base is the calibration a
// reset returns to; the zero value means geometry.DefaultCalibration.
func NewCalibrationHandler(ctrl Controller, s *store.Store, base geometry.Calibration, logger *slog.Logger) *CalibrationHandler {
	if logger == nil {
		logger = logging.NewNop()
	}
	if base == (geometry.Calibration{}) {
		base = geometry.DefaultCalibration()
	}
	return &CalibrationHandler{ctrl: ctrl, store: s, base: base, logger: logger}
}

// Get handles GET /api/calibration.
func (h *CalibrationHandler) Get(w http.ResponseWriter, r *http.Request) {
	cal, err := h.ctrl.Calibration(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cal)
}

// Put handles PUT /api/calibration. The body is validated, applied to the
// controller, then saved.
func (h *CalibrationHandler) Put(w http.ResponseWriter, r *http.Request) {
	var cal geometry.Calibration
	if err := json.NewDecoder(r.Body).Decode(&cal); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := cal.Validate(); err != nil {
		writeErr(w, err)
		return
	}

	if err := h.ctrl.SetCalibration(r.Context(), cal); err != nil {
		writeErr(w, err)
		return
	}

	if h.store != nil {
		if err := h.store.Settings().SaveCalibration(cal); err != nil {
			h.logger.Error("failed to save calibration", "error", err)
			writeError(w, http.StatusInternalServerError, "calibration applied but not saved")
			return
		}
	}

	writeJSON(w, http.StatusOK, cal)
}

// Reset handles DELETE /api/calibration. The base calibration is applied and
// the saved one is forgotten, so the next start uses the configuration file.
func (h *CalibrationHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.SetCalibration(r.Context(), h.base); err != nil {
		writeErr(w, err)
		return
	}

	if h.store != nil {
		err := h.store.Settings().Delete(store.CalibrationKey)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			h.logger.Error("failed to delete saved calibration", "error", err)
			writeError(w, http.StatusInternalServerError, "calibration reset but saved value not removed")
			return
		}
	}

	writeJSON(w, http.StatusOK, h.base)
}
