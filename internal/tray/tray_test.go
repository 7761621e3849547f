package tray

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ayusman/mudra/internal/control"
	"github.com/ayusman/mudra/internal/controller"
)

type fakeController struct {
	state controller.State
	err   error
}

func (f *fakeController) State(ctx context.Context) (controller.State, error) {
	return f.state, nil
}

func (f *fakeController) EnterMapping(ctx context.Context) error {
	f.state = controller.State{Mode: controller.Mapping}
	return nil
}

func (f *fakeController) ExitMapping(ctx context.Context) error {
	f.state = controller.State{Mode: controller.Streaming}
	return nil
}

func (f *fakeController) SelectSlot(ctx context.Context, slot control.Slot) error {
	if f.err != nil {
		return f.err
	}
	if f.state.Mode != controller.Mapping {
		return controller.ErrNotMapping
	}
	f.state.Selected = slot
	return nil
}

func TestTray_MappingToggle(t *testing.T) {
	ctrl := &fakeController{}
	tr := New(ctrl, nil)

	tr.handleMapping()
	assert.Equal(t, controller.Mapping, tr.State().Mode)

	tr.handleSlot(control.Pinky)
	assert.Equal(t, control.Pinky, tr.State().Selected)

	tr.handleMapping()
	assert.Equal(t, controller.State{Mode: controller.Streaming}, tr.State())
}

func TestTray_SlotRejectedWhileStreaming(t *testing.T) {
	ctrl := &fakeController{}
	tr := New(ctrl, nil)

	tr.handleSlot(control.Index)
	assert.Equal(t, controller.Streaming, tr.State().Mode)
	assert.Equal(t, control.None, tr.State().Selected)
}

func TestTray_UpdateBeforeMenu(t *testing.T) {
	tr := New(&fakeController{}, nil)

	state := controller.State{Mode: controller.Mapping, Selected: control.Depth}
	tr.Update(state)
	assert.Equal(t, state, tr.State())
}

func TestTray_Callbacks(t *testing.T) {
	tr := New(&fakeController{}, nil)

	called := false
	tr.OnPreview(func() { called = true })
	tr.handleCallback(func() func() { return tr.onPreview })
	assert.True(t, called)

	// Unset callbacks are ignored.
	tr.handleCallback(func() func() { return tr.onQuit })
}

func TestSlotTitle(t *testing.T) {
	assert.Equal(t, "● Pinky  CC23", slotTitle(control.Pinky, control.Pinky))
	assert.Equal(t, "○ Index  CC20", slotTitle(control.Index, control.Pinky))
	assert.Equal(t, "○ Depth  CC24", slotTitle(control.Depth, control.None))
}
