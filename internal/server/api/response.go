// Package api provides the JSON handlers of the mudra control surface.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ayusman/mudra/internal/control"
	"github.com/ayusman/mudra/internal/controller"
	"github.com/ayusman/mudra/internal/geometry"
)

// Controller is the part of controller.Controller the handlers drive.
type Controller interface {
	State(ctx context.Context) (controller.State, error)
	EnterMapping(ctx context.Context) error
	ExitMapping(ctx context.Context) error
	SelectSlot(ctx context.Context, slot control.Slot) error
	Calibration(ctx context.Context) (geometry.Calibration, error)
	SetCalibration(ctx context.Context, cal geometry.Calibration) error
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// statusFor maps controller and validation errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, control.ErrUnknownSlot),
		errors.Is(err, geometry.ErrInvalidCalibration):
		return http.StatusBadRequest
	case errors.Is(err, controller.ErrNotMapping):
		return http.StatusConflict
	case errors.Is(err, controller.ErrStopped),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeErr(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}
