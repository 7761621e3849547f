// Package preview fans the latest rendered frame and readings out to
// HTTP clients.
package preview

import (
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/control"
	"github.com/ayusman/mudra/internal/controller"
	"github.com/ayusman/mudra/internal/geometry"
)

// Snapshot is one published preview frame.
type Snapshot struct {
	Seq      uint64             `json:"seq"`
	Time     time.Time          `json:"time"`
	Mode     controller.Mode    `json:"mode"`
	Selected control.Slot       `json:"selected"`
	HasHand  bool               `json:"has_hand"`
	Readings *geometry.Readings `json:"readings,omitempty"`
	// Values are the MIDI values per slot, present when Readings is.
	// They are ints so JSON carries an array rather than base64.
	Values []int  `json:"values,omitempty"`
	JPEG   []byte `json:"-"`
}

// FromFrame builds a snapshot from a processed frame and its encoded image.
func FromFrame(f controller.Frame, jpeg []byte) Snapshot {
	s := Snapshot{
		Mode:     f.Mode,
		Selected: f.Selected,
		HasHand:  f.Hand != nil,
		Readings: f.Readings,
		JPEG:     jpeg,
	}
	if f.Readings != nil {
		v := f.Readings.Values()
		s.Values = make([]int, len(v))
		for i := range v {
			s.Values[i] = int(v[i])
		}
	}
	return s
}

// Encode compresses img as JPEG.
func Encode(img *gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncode(".jpg", *img)
	if err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}

// Hub keeps the latest snapshot and delivers new ones to subscribers.
// Slow subscribers miss snapshots rather than blocking the publisher.
type Hub struct {
	mu     sync.RWMutex
	latest *Snapshot
	seq    uint64
	subs   map[chan Snapshot]struct{}
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan Snapshot]struct{})}
}

// Publish stamps s with the next sequence number and the current time, stores
// it as the latest, and offers it to every subscriber.
func (h *Hub) Publish(s Snapshot) {
	h.mu.Lock()
	h.seq++
	s.Seq = h.seq
	if s.Time.IsZero() {
		s.Time = time.Now()
	}
	h.latest = &s

	for ch := range h.subs {
		select {
		case ch <- s:
		default:
		}
	}
	h.mu.Unlock()
}

// Latest returns the most recent snapshot, if any.
func (h *Hub) Latest() (Snapshot, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.latest == nil {
		return Snapshot{}, false
	}
	return *h.latest, true
}

// Subscribe returns a channel of future snapshots and a function that
// unsubscribes and closes the channel.
func (h *Hub) Subscribe(buffer int) (<-chan Snapshot, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Snapshot, buffer)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			close(ch)
			h.mu.Unlock()
		})
	}
}

// Subscribers returns the number of active subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
