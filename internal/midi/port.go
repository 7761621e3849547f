package midi

import (
	"fmt"
	"strings"
	"sync"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

// Port is a Sink backed by a system MIDI output through RtMidi.
type Port struct {
	name string
	drv  *rtmididrv.Driver
	out  drivers.Out
	send func(msg gomidi.Message) error

	mu     sync.Mutex
	closed bool
}

// OpenPort opens the MIDI output called name. Matching is exact first, then
// a case-insensitive substring match, so "IAC" finds "IAC Driver Bus 1".
// With virtual set, a new virtual output port with that name is created
// instead (not supported on Windows).
func OpenPort(name string, virtual bool) (*Port, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("%w: init rtmidi: %v", ErrDeviceUnavailable, err)
	}

	var out drivers.Out
	if virtual {
		out, err = drv.OpenVirtualOut(name)
		if err != nil {
			drv.Close()
			return nil, fmt.Errorf("%w: create virtual port %q: %v", ErrDeviceUnavailable, name, err)
		}
	} else {
		out, err = findOut(drv, name)
		if err != nil {
			drv.Close()
			return nil, err
		}
		if err := out.Open(); err != nil {
			drv.Close()
			return nil, fmt.Errorf("%w: open %q: %v", ErrDeviceUnavailable, out.String(), err)
		}
	}

	send, err := gomidi.SendTo(out)
	if err != nil {
		out.Close()
		drv.Close()
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	return &Port{
		name: out.String(),
		drv:  drv,
		out:  out,
		send: send,
	}, nil
}

func findOut(drv *rtmididrv.Driver, name string) (drivers.Out, error) {
	outs, err := drv.Outs()
	if err != nil {
		return nil, fmt.Errorf("%w: list outputs: %v", ErrDeviceUnavailable, err)
	}

	for _, out := range outs {
		if out.String() == name {
			return out, nil
		}
	}
	for _, out := range outs {
		if strings.Contains(strings.ToLower(out.String()), strings.ToLower(name)) {
			return out, nil
		}
	}

	return nil, fmt.Errorf("%w: output %q not found", ErrDeviceUnavailable, name)
}

// ListPorts returns the names of the available MIDI outputs.
func ListPorts() ([]string, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("%w: init rtmidi: %v", ErrDeviceUnavailable, err)
	}
	defer drv.Close()

	outs, err := drv.Outs()
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(outs))
	for _, out := range outs {
		names = append(names, out.String())
	}
	return names, nil
}

// Name returns the resolved port name.
func (p *Port) Name() string {
	return p.name
}

// SendCC sends a control-change message.
func (p *Port) SendCC(channel, control, value uint8) error {
	if err := checkChannel(channel); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	return p.send(gomidi.ControlChange(channel, control, clampValue(value)))
}

// Close closes the port and the driver. It is safe to call more than once.
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	err := p.out.Close()
	if derr := p.drv.Close(); err == nil {
		err = derr
	}
	return err
}
