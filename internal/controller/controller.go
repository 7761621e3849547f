// Package controller turns hand observations into MIDI control changes.
//
// A Controller has two modes. In Streaming mode every frame with a hand
// produces five CC messages, one per slot. In Mapping mode frames are ignored
// and a constant test value is repeated on the selected slot so that a DAW's
// MIDI learn can bind it.
//
// All state is owned by the goroutine running Run. Other goroutines reach it
// through the exported methods, which send a command and wait for the owner to
// execute it. Streaming and mapping emission therefore never overlap, and a
// selection can never land halfway through a mode change. Hand detection is
// the exception: it runs on the caller's goroutine and only its result is
// handed to the owner.
package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/control"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/geometry"
	"github.com/ayusman/mudra/internal/midi"
	"github.com/ayusman/mudra/internal/timeutil"
)

var (
	// ErrDeviceUnavailable is returned by New when there is no MIDI sink.
	ErrDeviceUnavailable = midi.ErrDeviceUnavailable
	// ErrNotMapping is returned by SelectSlot outside mapping mode.
	ErrNotMapping = errors.New("controller is not in mapping mode")
	// ErrUnknownSlot is returned by SelectSlot for a slot outside the table.
	ErrUnknownSlot = control.ErrUnknownSlot
	// ErrStopped is returned when Run has already returned.
	ErrStopped = errors.New("controller stopped")
	// ErrAlreadyRunning is returned by a second call to Run.
	ErrAlreadyRunning = errors.New("controller already running")
	// ErrNoDetector is returned by DetectFrame when no detector was given.
	ErrNoDetector = errors.New("controller has no detector")
)

// Hooks are optional callbacks invoked from the owner goroutine.
// They must not call back into the Controller.
type Hooks struct {
	// OnModeChange is called after entering or leaving mapping mode.
	OnModeChange func(State)
	// OnSelect is called after a slot is selected in mapping mode.
	OnSelect func(State)
	// OnEmit is called after every CC send, with the send error if any.
	OnEmit func(slot control.Slot, value uint8, err error)
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger. The default discards output.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock sets the clock used for the mapping ticker.
func WithClock(clock timeutil.Clock) Option {
	return func(c *Controller) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithHooks sets the lifecycle hooks.
func WithHooks(h Hooks) Option {
	return func(c *Controller) {
		c.hooks = h
	}
}

// Controller is the mode state machine. Create it with New and start it
// with Run.
type Controller struct {
	cfg    Config
	det    detector.Detector
	sink   midi.Sink
	logger *slog.Logger
	clock  timeutil.Clock
	hooks  Hooks

	cmds    chan func()
	done    chan struct{}
	started atomic.Bool

	// Owned by the Run goroutine.
	state  State
	cal    geometry.Calibration
	ticker timeutil.Ticker
}

// New creates a Controller. The detector may be nil if frames are only
// submitted through ProcessFrame; the sink is required.
func New(cfg Config, det detector.Detector, sink midi.Sink, opts ...Option) (*Controller, error) {
	if sink == nil {
		return nil, fmt.Errorf("%w: no midi sink", ErrDeviceUnavailable)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Controller{
		cfg:    cfg,
		det:    det,
		sink:   sink,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		clock:  timeutil.RealClock{},
		cmds:   make(chan func()),
		done:   make(chan struct{}),
		state:  State{Mode: Streaming, Selected: control.None},
		cal:    cfg.Calibration,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Run executes commands and mapping ticks until ctx is cancelled.
// It returns ctx.Err(). The mapping ticker is stopped before Run returns.
func (c *Controller) Run(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(c.done)
	defer c.stopTicker()

	c.logger.Debug("controller started", "channel", c.cfg.Channel+1, "mapping_interval", c.cfg.MappingInterval)

	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("controller stopped", "mode", c.state.Mode)
			return ctx.Err()
		case cmd := <-c.cmds:
			c.serveDueTick()
			cmd()
		case <-c.tickC():
			c.emitSelected()
		}
	}
}

// do runs fn on the owner goroutine and waits for it to finish.
func (c *Controller) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	cmd := func() {
		fn()
		close(finished)
	}

	select {
	case c.cmds <- cmd:
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	// The owner runs an accepted command before doing anything else.
	<-finished
	return nil
}

// EnterMapping switches to mapping mode and stops five-slot emission.
// Calling it while already mapping does nothing.
func (c *Controller) EnterMapping(ctx context.Context) error {
	return c.do(ctx, func() {
		if c.state.Mode == Mapping {
			return
		}
		c.state = State{Mode: Mapping, Selected: control.None}
		c.logger.Info("entered mapping mode")
		c.modeChanged()
	})
}

// ExitMapping returns to streaming mode and clears the selection. No mapping
// event is sent after it returns. Calling it while streaming does nothing.
func (c *Controller) ExitMapping(ctx context.Context) error {
	return c.do(ctx, func() {
		if c.state.Mode == Streaming {
			return
		}
		c.stopTicker()
		c.state = State{Mode: Streaming, Selected: control.None}
		c.logger.Info("exited mapping mode")
		c.modeChanged()
	})
}

// SelectSlot picks the slot that receives the test value. It is rejected
// with ErrNotMapping while streaming, leaving the state unchanged. The new
// slot's first event arrives one interval later. The previous slot gets no
// event after SelectSlot returns.
func (c *Controller) SelectSlot(ctx context.Context, slot control.Slot) error {
	if !slot.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownSlot, int(slot))
	}

	var err error
	if derr := c.do(ctx, func() {
		if c.state.Mode != Mapping {
			err = ErrNotMapping
			return
		}
		c.state.Selected = slot
		c.stopTicker()
		c.ticker = c.clock.NewTicker(c.cfg.MappingInterval)
		c.logger.Info("slot selected", "slot", slot, "cc", slot.CC())
		if c.hooks.OnSelect != nil {
			c.hooks.OnSelect(c.state)
		}
	}); derr != nil {
		return derr
	}
	return err
}

// State returns a snapshot of the mode and selection.
func (c *Controller) State(ctx context.Context) (State, error) {
	var s State
	err := c.do(ctx, func() { s = c.state })
	return s, err
}

// SetCalibration replaces the calibration used for subsequent frames.
func (c *Controller) SetCalibration(ctx context.Context, cal geometry.Calibration) error {
	if err := cal.Validate(); err != nil {
		return err
	}
	return c.do(ctx, func() {
		c.cal = cal
		c.logger.Info("calibration updated",
			"min_depth", cal.MinDepth, "max_depth", cal.MaxDepth, "finger_scale", cal.FingerScale)
	})
}

// Calibration returns the calibration in use.
func (c *Controller) Calibration(ctx context.Context) (geometry.Calibration, error) {
	var cal geometry.Calibration
	err := c.do(ctx, func() { cal = c.cal })
	return cal, err
}

// ProcessFrame handles one observation. hand may be nil when no hand was
// detected, in which case nothing is emitted.
func (c *Controller) ProcessFrame(ctx context.Context, hand *detector.HandLandmarks) (Frame, error) {
	var f Frame
	err := c.do(ctx, func() { f = c.process(hand) })
	return f, err
}

// DetectFrame runs the detector on img and processes the first hand found.
// The detector is only called in streaming mode, and it runs on the caller's
// goroutine so that a slow detector never delays commands or mapping ticks.
// A frame whose detection finishes after mapping began is dropped. Detection
// errors are logged and treated as a frame without a hand.
func (c *Controller) DetectFrame(ctx context.Context, img *gocv.Mat) (Frame, error) {
	if c.det == nil {
		return Frame{}, ErrNoDetector
	}

	state, err := c.State(ctx)
	if err != nil {
		return Frame{}, err
	}
	if state.Mode == Mapping {
		return Frame{Mode: Mapping, Selected: state.Selected}, nil
	}

	var hand *detector.HandLandmarks
	hands, err := c.det.Detect(img)
	if err != nil {
		c.logger.Warn("hand detection failed", "error", err)
	} else {
		hand = detector.First(hands)
	}
	return c.ProcessFrame(ctx, hand)
}

func (c *Controller) process(hand *detector.HandLandmarks) Frame {
	if c.state.Mode == Mapping {
		return c.mappingFrame()
	}
	if hand == nil {
		return Frame{Mode: Streaming}
	}

	readings := geometry.Compute(hand, c.cal)
	values := readings.Values()

	emitted := 0
	for i, slot := range control.All() {
		if c.send(slot, values[i]) == nil {
			emitted++
		}
	}

	return Frame{
		Mode:     Streaming,
		Hand:     hand,
		Readings: &readings,
		Overlay:  readings.Overlay(),
		Emitted:  emitted,
	}
}

func (c *Controller) mappingFrame() Frame {
	return Frame{Mode: Mapping, Selected: c.state.Selected}
}

func (c *Controller) emitSelected() {
	if c.state.Mode != Mapping || c.state.Selected == control.None {
		return
	}
	c.send(c.state.Selected, c.cfg.TestValue)
}

// send emits one CC. Failures are logged and reported to the hook, never retried.
func (c *Controller) send(slot control.Slot, value uint8) error {
	err := c.sink.SendCC(c.cfg.Channel, slot.CC(), value)
	if err != nil {
		c.logger.Warn("midi send failed", "slot", slot, "cc", slot.CC(), "error", err)
	}
	if c.hooks.OnEmit != nil {
		c.hooks.OnEmit(slot, value, err)
	}
	return err
}

// serveDueTick emits for a tick that is already pending so that a command
// never overtakes an interval that has elapsed. When the command is a
// SelectSlot, the previous slot therefore gets its due event before the
// switch; that event belongs to an interval that ended under the old
// selection.
func (c *Controller) serveDueTick() {
	select {
	case <-c.tickC():
		c.emitSelected()
	default:
	}
}

func (c *Controller) tickC() <-chan time.Time {
	if c.ticker == nil {
		return nil
	}
	return c.ticker.C()
}

func (c *Controller) stopTicker() {
	if c.ticker != nil {
		c.ticker.Stop()
		c.ticker = nil
	}
}

func (c *Controller) modeChanged() {
	if c.hooks.OnModeChange != nil {
		c.hooks.OnModeChange(c.state)
	}
}
