package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/control"
	"github.com/ayusman/mudra/internal/controller"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/geometry"
	"github.com/ayusman/mudra/internal/metrics"
	"github.com/ayusman/mudra/internal/midi"
	"github.com/ayusman/mudra/internal/preview"
	"github.com/ayusman/mudra/internal/store"
	"github.com/ayusman/mudra/internal/timeutil"
)

const testFPS = 10

type harness struct {
	app    *App
	camera *capture.MockCamera
	det    *detector.MockDetector
	sink   *midi.Recorder
	store  *store.Store
	clock  *timeutil.MockClock
	states []controller.State
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { frame.Close() })

	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	h := &harness{
		camera: capture.NewMockCamera([]*gocv.Mat{&frame}, true),
		det:    detector.NewMockDetector(),
		sink:   midi.NewRecorder(),
		store:  s,
		clock:  timeutil.NewMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
	}
	h.det.SetHands([]detector.HandLandmarks{detector.OpenPalmLandmarks()})
	return h
}

func (h *harness) build(t *testing.T) {
	t.Helper()

	a, err := New(Config{Controller: controller.DefaultConfig(), FPS: testFPS}, Deps{
		Camera:   h.camera,
		Detector: h.det,
		Sink:     h.sink,
		Store:    h.store,
		Metrics:  metrics.New(),
		Clock:    h.clock,
		OnState:  func(s controller.State) { h.states = append(h.states, s) },
	})
	require.NoError(t, err)
	h.app = a
}

func (h *harness) start(t *testing.T) {
	t.Helper()

	h.build(t)
	require.NoError(t, h.app.Start(context.Background()))
	t.Cleanup(h.app.Stop)

	// The pipeline ticker is created by its goroutine.
	require.Eventually(t, func() bool { return h.clock.ActiveTickers() == 1 },
		time.Second, 5*time.Millisecond)
}

func waitEvents(t *testing.T, ch <-chan midi.Event, n int) []midi.Event {
	t.Helper()

	var got []midi.Event
	for len(got) < n {
		select {
		case ev := <-ch:
			got = append(got, ev)
		case <-time.After(2 * time.Second):
			t.Fatalf("got %d events, want %d", len(got), n)
		}
	}
	return got
}

func waitSnapshot(t *testing.T, ch <-chan preview.Snapshot, match func(preview.Snapshot) bool) preview.Snapshot {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-ch:
			if match(s) {
				return s
			}
		case <-deadline:
			t.Fatal("no matching snapshot published")
			return preview.Snapshot{}
		}
	}
}

func TestApp_StreamingAndMapping(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	h := newHarness(t)
	h.start(t)
	ctx := context.Background()

	events := h.sink.Notify(32)
	snaps, cancel := h.app.Hub().Subscribe(8)
	defer cancel()

	// One tick streams all five slots.
	h.clock.Advance(time.Second / testFPS)
	got := waitEvents(t, events, control.NumSlots)
	for i, slot := range control.All() {
		assert.Equal(t, slot.CC(), got[i].Control)
	}

	snap := waitSnapshot(t, snaps, func(s preview.Snapshot) bool { return s.HasHand })
	assert.Equal(t, controller.Streaming, snap.Mode)
	assert.Len(t, snap.Values, control.NumSlots)
	assert.NotEmpty(t, snap.JPEG)
	assert.Equal(t, 1, h.camera.Reads())

	// Mapping mode repeats the test value and freezes the preview.
	ctrl := h.app.Controller()
	require.NoError(t, ctrl.EnterMapping(ctx))
	require.NoError(t, ctrl.SelectSlot(ctx, control.Pinky))

	h.clock.Advance(controller.DefaultMappingInterval)
	ev := waitEvents(t, events, 1)[0]
	assert.Equal(t, control.Pinky.CC(), ev.Control)
	assert.Equal(t, uint8(controller.DefaultTestValue), ev.Value)

	snap = waitSnapshot(t, snaps, func(s preview.Snapshot) bool { return s.Mode == controller.Mapping })
	assert.Equal(t, control.Pinky, snap.Selected)
	assert.NotEmpty(t, snap.JPEG, "frozen frame is shown")
	assert.Equal(t, 1, h.camera.Reads(), "camera is not read while mapping")
	assert.Equal(t, 1, h.det.Calls(), "detector is not run while mapping")

	require.NoError(t, ctrl.ExitMapping(ctx))

	// The session log records the stint.
	sessions, err := h.store.Sessions().List(0)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.False(t, sessions[0].Open())
	assert.Equal(t, 1, sessions[0].Selections)
	assert.Equal(t, control.Pinky, sessions[0].LastSlot)

	require.Len(t, h.states, 3)
	assert.Equal(t, controller.State{Mode: controller.Mapping, Selected: control.None}, h.states[0])
	assert.Equal(t, controller.State{Mode: controller.Mapping, Selected: control.Pinky}, h.states[1])
	assert.Equal(t, controller.State{Mode: controller.Streaming, Selected: control.None}, h.states[2])
}

func TestApp_StopReleasesOnce(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	h := newHarness(t)
	h.start(t)

	// An open session is closed on the way out.
	require.NoError(t, h.app.Controller().EnterMapping(context.Background()))

	h.app.Stop()
	h.app.Stop()

	assert.Equal(t, 1, h.camera.Closes())
	assert.True(t, h.det.Closed())
	assert.True(t, h.sink.Closed())
	assert.Equal(t, 0, h.clock.ActiveTickers())

	sessions, err := h.store.Sessions().List(0)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.False(t, sessions[0].Open())

	_, err = h.app.Controller().State(context.Background())
	assert.ErrorIs(t, err, controller.ErrStopped)
}

func TestApp_CameraUnavailable(t *testing.T) {
	h := newHarness(t)
	h.camera.SetOpenError(errors.New("no device"))
	h.build(t)
	defer h.app.Stop()

	err := h.app.Start(context.Background())
	assert.ErrorIs(t, err, capture.ErrDeviceUnavailable)
}

func TestApp_StartTwice(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	h := newHarness(t)
	h.start(t)

	assert.ErrorIs(t, h.app.Start(context.Background()), ErrAlreadyStarted)
}

func TestApp_LoadsSavedCalibration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	h := newHarness(t)
	want := geometry.Calibration{MinDepth: 0.1, MaxDepth: 0.3, FingerScale: 0.7}
	require.NoError(t, h.store.Settings().SaveCalibration(want))

	h.start(t)

	got, err := h.app.Controller().Calibration(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestApp_EndsAbandonedSessions(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	h := newHarness(t)
	stale, err := h.store.Sessions().Start()
	require.NoError(t, err)

	h.start(t)

	sess, err := h.store.Sessions().Get(stale.ID)
	require.NoError(t, err)
	assert.False(t, sess.Open())
}

func TestNew_MissingDevices(t *testing.T) {
	h := newHarness(t)

	_, err := New(Config{Controller: controller.DefaultConfig()}, Deps{Detector: h.det, Sink: h.sink})
	assert.ErrorIs(t, err, capture.ErrDeviceUnavailable)

	_, err = New(Config{Controller: controller.DefaultConfig()}, Deps{Camera: h.camera, Detector: h.det})
	assert.ErrorIs(t, err, midi.ErrDeviceUnavailable)
}
