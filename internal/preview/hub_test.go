package preview

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/control"
	"github.com/ayusman/mudra/internal/controller"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/geometry"
)

func TestHub_LatestAndSequence(t *testing.T) {
	h := NewHub()

	_, ok := h.Latest()
	assert.False(t, ok)

	h.Publish(Snapshot{Mode: controller.Streaming})
	h.Publish(Snapshot{Mode: controller.Mapping, Selected: control.Pinky})

	got, ok := h.Latest()
	require.True(t, ok)
	assert.Equal(t, uint64(2), got.Seq)
	assert.Equal(t, control.Pinky, got.Selected)
	assert.False(t, got.Time.IsZero())
}

func TestHub_Subscribe(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe(4)
	defer cancel()

	h.Publish(Snapshot{HasHand: true})

	select {
	case s := <-ch:
		assert.True(t, s.HasHand)
		assert.Equal(t, uint64(1), s.Seq)
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive snapshot")
	}
}

func TestHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	h := NewHub()
	_, cancel := h.Subscribe(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			h.Publish(Snapshot{})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}

func TestHub_Unsubscribe(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe(1)
	assert.Equal(t, 1, h.Subscribers())

	cancel()
	cancel()
	assert.Equal(t, 0, h.Subscribers())

	_, open := <-ch
	assert.False(t, open, "channel should be closed after unsubscribe")

	h.Publish(Snapshot{})
}

func TestFromFrame(t *testing.T) {
	hand := detector.FistLandmarks()
	readings := geometry.Compute(&hand, geometry.DefaultCalibration())

	s := FromFrame(controller.Frame{Mode: controller.Streaming, Hand: &hand, Readings: &readings}, []byte{1, 2})
	assert.True(t, s.HasHand)
	require.Len(t, s.Values, control.NumSlots)
	for i, v := range readings.Values() {
		assert.Equal(t, int(v), s.Values[i])
	}
	assert.Equal(t, []byte{1, 2}, s.JPEG)

	s = FromFrame(controller.Frame{Mode: controller.Mapping, Selected: control.Index}, nil)
	assert.False(t, s.HasHand)
	assert.Nil(t, s.Values)
	assert.Equal(t, control.Index, s.Selected)
}

func TestEncode(t *testing.T) {
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(40, 80, 120, 0), 48, 64, gocv.MatTypeCV8UC3)
	defer img.Close()

	data, err := Encode(&img)
	require.NoError(t, err)
	require.Greater(t, len(data), 2)
	assert.Equal(t, []byte{0xFF, 0xD8}, data[:2], "JPEG magic")
}
