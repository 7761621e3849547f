// Package midi provides the control-change output used by the controller.
package midi

import (
	"errors"
	"fmt"
	"sync"
)

// ErrDeviceUnavailable is returned when the MIDI output cannot be opened.
var ErrDeviceUnavailable = errors.New("midi device unavailable")

// ErrInvalidChannel is returned for channels outside 0-15.
var ErrInvalidChannel = errors.New("midi channel must be between 0 and 15")

// ErrClosed is returned when sending on a closed sink.
var ErrClosed = errors.New("midi sink closed")

// MaxChannel is the highest MIDI channel number (zero-based).
const MaxChannel = 15

// Sink accepts control-change events.
type Sink interface {
	// SendCC sends one control-change message. Values above 127 are clamped.
	SendCC(channel, control, value uint8) error

	// Close releases the underlying port.
	Close() error
}

// Event is one control-change message.
type Event struct {
	Channel uint8 `json:"channel"`
	Control uint8 `json:"control"`
	Value   uint8 `json:"value"`
}

// String formats the event the way MIDI monitors usually do.
func (e Event) String() string {
	return fmt.Sprintf("ch%d CC%d=%d", e.Channel+1, e.Control, e.Value)
}

func checkChannel(channel uint8) error {
	if channel > MaxChannel {
		return fmt.Errorf("%w: %d", ErrInvalidChannel, channel)
	}
	return nil
}

func clampValue(v uint8) uint8 {
	if v > 127 {
		return 127
	}
	return v
}

// Recorder is an in-memory Sink that records every event.
// It is used by tests.
type Recorder struct {
	mu      sync.Mutex
	events  []Event
	failErr error
	closed  bool
	notify  chan Event
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// SendCC records the event, or returns the configured failure.
func (r *Recorder) SendCC(channel, control, value uint8) error {
	if err := checkChannel(channel); err != nil {
		return err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	if r.failErr != nil {
		err := r.failErr
		r.mu.Unlock()
		return err
	}
	ev := Event{Channel: channel, Control: control, Value: clampValue(value)}
	r.events = append(r.events, ev)
	notify := r.notify
	r.mu.Unlock()

	if notify != nil {
		select {
		case notify <- ev:
		default:
		}
	}
	return nil
}

// Close marks the recorder closed; later sends fail with ErrClosed.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (r *Recorder) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// SetError makes subsequent sends fail with err. Pass nil to recover.
func (r *Recorder) SetError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failErr = err
}

// Notify returns a channel that receives a copy of every recorded event.
// The channel is buffered; events are dropped if the reader falls behind.
func (r *Recorder) Notify(buffer int) <-chan Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notify = make(chan Event, buffer)
	return r.notify
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns how many events were sent to the given control number.
func (r *Recorder) Count(control uint8) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Control == control {
			n++
		}
	}
	return n
}

// Reset discards the recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
