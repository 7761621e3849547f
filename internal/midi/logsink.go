package midi

import (
	"log/slog"
	"sync/atomic"
)

// LogSink is a Sink that writes every event to a logger at debug level
// instead of a MIDI port. It backs the CLI's dry-run mode.
type LogSink struct {
	logger *slog.Logger
	sent   atomic.Uint64
	closed atomic.Bool
}

// NewLogSink creates a LogSink writing to logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// SendCC logs the event.
func (s *LogSink) SendCC(channel, control, value uint8) error {
	if err := checkChannel(channel); err != nil {
		return err
	}
	if s.closed.Load() {
		return ErrClosed
	}
	ev := Event{Channel: channel, Control: control, Value: clampValue(value)}
	s.sent.Add(1)
	s.logger.Debug("cc", "event", ev.String())
	return nil
}

// Sent returns how many events were logged.
func (s *LogSink) Sent() uint64 {
	return s.sent.Load()
}

// Close reports the total and marks the sink closed.
func (s *LogSink) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		s.logger.Info("dry run finished", "events", s.sent.Load())
	}
	return nil
}
