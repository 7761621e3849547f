package api

import (
	"encoding/json"
	"net/http"

	"github.com/ayusman/mudra/internal/control"
	"github.com/ayusman/mudra/internal/controller"
)

// MappingHandler serves mode and slot selection.
type MappingHandler struct {
	ctrl Controller
}

// NewMappingHandler creates a new MappingHandler driving ctrl.
func NewMappingHandler(ctrl Controller) *MappingHandler {
	return &MappingHandler{ctrl: ctrl}
}

type slotResponse struct {
	Slot  control.Slot `json:"slot"`
	Label string       `json:"label"`
	CC    uint8        `json:"cc"`
}

type slotsResponse struct {
	Slots []slotResponse `json:"slots"`
}

type stateResponse struct {
	Mode     controller.Mode `json:"mode"`
	Selected control.Slot    `json:"selected"`
	CC       uint8           `json:"cc,omitempty"`
}

type selectRequest struct {
	Slot control.Slot `json:"slot"`
}

func toStateResponse(s controller.State) stateResponse {
	return stateResponse{Mode: s.Mode, Selected: s.Selected, CC: s.Selected.CC()}
}

// Slots handles GET /api/slots and returns the fixed slot table.
func Slots(w http.ResponseWriter, r *http.Request) {
	resp := slotsResponse{Slots: make([]slotResponse, 0, control.NumSlots)}
	for _, s := range control.All() {
		resp.Slots = append(resp.Slots, slotResponse{Slot: s, Label: s.String(), CC: s.CC()})
	}
	writeJSON(w, http.StatusOK, resp)
}

// State handles GET /api/state.
func (h *MappingHandler) State(w http.ResponseWriter, r *http.Request) {
	state, err := h.ctrl.State(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStateResponse(state))
}

// Enter handles POST /api/mapping.
func (h *MappingHandler) Enter(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.EnterMapping(r.Context()); err != nil {
		writeErr(w, err)
		return
	}
	h.State(w, r)
}

// Exit handles DELETE /api/mapping.
func (h *MappingHandler) Exit(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.ExitMapping(r.Context()); err != nil {
		writeErr(w, err)
		return
	}
	h.State(w, r)
}

// Select handles PUT /api/mapping/slot with a body like {"slot":"Pinky"}.
func (h *MappingHandler) Select(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := h.ctrl.SelectSlot(r.Context(), req.Slot); err != nil {
		writeErr(w, err)
		return
	}
	h.State(w, r)
}
