// Package tray provides the system tray menu for mapping mode.
package tray

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/getlantern/systray"

	"github.com/ayusman/mudra/internal/control"
	"github.com/ayusman/mudra/internal/controller"
	"github.com/ayusman/mudra/internal/logging"
)

// commandTimeout bounds each controller call made from a menu click.
const commandTimeout = 2 * time.Second

// Controller is the part of controller.Controller the menu drives.
type Controller interface {
	State(ctx context.Context) (controller.State, error)
	EnterMapping(ctx context.Context) error
	ExitMapping(ctx context.Context) error
	SelectSlot(ctx context.Context, slot control.Slot) error
}

// Tray represents the system tray application.
type Tray struct {
	ctrl      Controller
	logger    *slog.Logger
	onPreview func()
	onQuit    func()
	state     controller.State
	mu        sync.RWMutex

	// Menu items stored for later updates
	menuMapping *systray.MenuItem
	menuSlots   [control.NumSlots]*systray.MenuItem
}

// New creates a Tray that drives ctrl. A nil logger discards output.
func New(ctrl Controller, logger *slog.Logger) *Tray {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Tray{
		ctrl:   ctrl,
		logger: logger,
		state:  controller.State{Mode: controller.Streaming, Selected: control.None},
	}
}

// OnPreview sets the callback for the "Open Preview" menu item.
func (t *Tray) OnPreview(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onPreview = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit closes the tray and makes Run return.
func (t *Tray) Quit() {
	systray.Quit()
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle("Mudra")
	systray.SetTooltip("Mudra hand-tracking MIDI controller")

	t.mu.Lock()
	t.menuMapping = systray.AddMenuItemCheckbox("Mapping Mode", "Send a test value on one slot for MIDI learn", false)
	for i, slot := range control.All() {
		item := systray.AddMenuItem(slotTitle(slot, control.None), fmt.Sprintf("Send the test value on CC%d", slot.CC()))
		item.Disable()
		t.menuSlots[i] = item
	}
	t.mu.Unlock()
	systray.AddSeparator()

	menuPreview := systray.AddMenuItem("Open Preview...", "Open the camera preview in a browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit Mudra")

	// The state may have changed before the menu existed.
	t.mu.RLock()
	state := t.state
	t.mu.RUnlock()
	t.Update(state)

	// Handle menu item clicks in a separate goroutine
	go func() {
		for {
			select {
			case <-t.menuMapping.ClickedCh:
				t.handleMapping()
			case <-menuPreview.ClickedCh:
				t.handleCallback(func() func() { return t.onPreview })
			case <-menuQuit.ClickedCh:
				t.handleCallback(func() func() { return t.onQuit })
				systray.Quit()
				return
			}
		}
	}()

	for i, item := range t.menuSlots {
		go func(slot control.Slot, item *systray.MenuItem) {
			for range item.ClickedCh {
				t.handleSlot(slot)
			}
		}(control.All()[i], item)
	}
}

// onExit is called when the system tray is about to exit.
func (t *Tray) onExit() {}

// handleMapping toggles mapping mode.
func (t *Tray) handleMapping() {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	var err error
	if t.State().Mode == controller.Mapping {
		err = t.ctrl.ExitMapping(ctx)
	} else {
		err = t.ctrl.EnterMapping(ctx)
	}
	if err != nil {
		t.logger.Warn("mapping toggle failed", "error", err)
		return
	}
	t.refresh(ctx)
}

// handleSlot selects a slot from the menu.
func (t *Tray) handleSlot(slot control.Slot) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := t.ctrl.SelectSlot(ctx, slot); err != nil {
		t.logger.Warn("slot selection failed", "slot", slot, "error", err)
		return
	}
	t.refresh(ctx)
}

func (t *Tray) handleCallback(get func() func()) {
	t.mu.RLock()
	callback := get()
	t.mu.RUnlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback()
	}
}

func (t *Tray) refresh(ctx context.Context) {
	state, err := t.ctrl.State(ctx)
	if err != nil {
		t.logger.Warn("reading controller state failed", "error", err)
		return
	}
	t.Update(state)
}

// Update reflects state in the menu. It is safe to call from controller hooks
// and before the menu exists.
func (t *Tray) Update(state controller.State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = state

	if t.menuMapping == nil {
		return
	}

	mapping := state.Mode == controller.Mapping
	if mapping {
		t.menuMapping.Check()
	} else {
		t.menuMapping.Uncheck()
	}

	for i, slot := range control.All() {
		item := t.menuSlots[i]
		item.SetTitle(slotTitle(slot, state.Selected))
		if mapping {
			item.Enable()
		} else {
			item.Disable()
		}
	}
}

// State returns the last state shown in the menu.
func (t *Tray) State() controller.State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// slotTitle renders a slot entry such as "● Pinky  CC23".
func slotTitle(slot, selected control.Slot) string {
	mark := "○"
	if slot == selected {
		mark = "●"
	}
	return fmt.Sprintf("%s %s  CC%d", mark, slot, slot.CC())
}
