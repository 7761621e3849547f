// Package app wires the camera, detector, controller and preview together
// and owns their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/control"
	"github.com/ayusman/mudra/internal/controller"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/logging"
	"github.com/ayusman/mudra/internal/metrics"
	"github.com/ayusman/mudra/internal/midi"
	"github.com/ayusman/mudra/internal/preview"
	"github.com/ayusman/mudra/internal/store"
	"github.com/ayusman/mudra/internal/timeutil"
)

// ErrAlreadyStarted is returned by a second call to Start.
var ErrAlreadyStarted = errors.New("app already started")

// Config holds configuration options for the application.
type Config struct {
	Controller controller.Config
	// FPS is the pipeline rate. Zero uses the camera's rate.
	FPS int
}

// Deps are the devices and services the app drives. Camera, Detector and
// Sink are required and owned by the app from New onwards; the rest are
// optional.
type Deps struct {
	Camera   capture.Camera
	Detector detector.Detector
	Sink     midi.Sink
	Store    *store.Store
	Metrics  *metrics.Metrics
	Hub      *preview.Hub
	Clock    timeutil.Clock
	Logger   *slog.Logger
	// OnState is called with every mode or selection change.
	OnState func(controller.State)
}

// App runs the capture pipeline and the controller.
type App struct {
	config   Config
	camera   capture.Camera
	detector detector.Detector
	sink     midi.Sink
	store    *store.Store
	metrics  *metrics.Metrics
	hub      *preview.Hub
	clock    timeutil.Clock
	logger   *slog.Logger
	onState  func(controller.State)
	ctrl     *controller.Controller

	mu        sync.Mutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	started   bool
	closeOnce sync.Once

	// Owned by the controller goroutine through hooks.
	sessionID string

	// Owned by the pipeline goroutine.
	last gocv.Mat
}

// New creates an App. Saved calibration in the store overrides the one in
// cfg.
func New(cfg Config, deps Deps) (*App, error) {
	if deps.Camera == nil {
		return nil, fmt.Errorf("%w: no camera", capture.ErrDeviceUnavailable)
	}
	if deps.Detector == nil {
		return nil, errors.New("no hand detector")
	}

	a := &App{
		config:   cfg,
		camera:   deps.Camera,
		detector: deps.Detector,
		sink:     deps.Sink,
		store:    deps.Store,
		metrics:  deps.Metrics,
		hub:      deps.Hub,
		clock:    deps.Clock,
		logger:   deps.Logger,
		onState:  deps.OnState,
		last:     gocv.NewMat(),
	}
	if a.hub == nil {
		a.hub = preview.NewHub()
	}
	if a.clock == nil {
		a.clock = timeutil.RealClock{}
	}
	if a.logger == nil {
		a.logger = logging.NewNop()
	}

	ctrlCfg := cfg.Controller
	if a.store != nil {
		cal, err := a.store.Settings().Calibration()
		switch {
		case err == nil:
			ctrlCfg.Calibration = cal
			a.logger.Info("loaded saved calibration",
				"min_depth", cal.MinDepth, "max_depth", cal.MaxDepth, "finger_scale", cal.FingerScale)
		case errors.Is(err, store.ErrNotFound):
		default:
			a.logger.Warn("ignoring saved calibration", "error", err)
		}
	}

	ctrl, err := controller.New(ctrlCfg, a.detector, a.sink,
		controller.WithLogger(a.logger.With("component", "controller")),
		controller.WithClock(a.clock),
		controller.WithHooks(controller.Hooks{
			OnModeChange: a.modeChanged,
			OnSelect:     a.slotSelected,
			OnEmit:       a.emitted,
		}),
	)
	if err != nil {
		a.last.Close()
		return nil, err
	}
	a.ctrl = ctrl
	return a, nil
}

// Controller returns the controller driven by the pipeline.
func (a *App) Controller() *controller.Controller {
	return a.ctrl
}

// Hub returns the preview hub frames are published to.
func (a *App) Hub() *preview.Hub {
	return a.hub
}

// Start opens the camera and begins the controller and pipeline. A camera
// that cannot be opened is fatal.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started {
		return ErrAlreadyStarted
	}

	if err := a.camera.Open(); err != nil {
		return fmt.Errorf("open camera: %w", err)
	}

	fps := a.config.FPS
	if fps > 0 {
		a.camera.SetFPS(fps)
	} else {
		fps = a.camera.FPS()
	}

	if a.store != nil {
		if n, err := a.store.Sessions().EndAbandoned(); err != nil {
			a.logger.Warn("closing abandoned sessions failed", "error", err)
		} else if n > 0 {
			a.logger.Info("closed abandoned mapping sessions", "count", n)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.started = true

	if a.metrics != nil {
		a.metrics.ObserveState(controller.State{Mode: controller.Streaming})
	}

	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		if err := a.ctrl.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("controller stopped", "error", err)
		}
	}()
	go func() {
		defer a.wg.Done()
		a.runPipeline(ctx, fps)
	}()

	a.logger.Info("pipeline started", "fps", fps)
	return nil
}

// Stop halts the pipeline and releases the camera, detector and MIDI sink.
// It is safe to call more than once, and without Start.
func (a *App) Stop() {
	a.mu.Lock()
	if a.cancel != nil {
		a.cancel()
	}
	a.mu.Unlock()

	a.wg.Wait()

	a.closeOnce.Do(func() {
		// The controller goroutine has exited, so the session is ours now.
		a.endSession()

		if err := a.camera.Close(); err != nil {
			a.logger.Warn("error closing camera", "error", err)
		}
		if err := a.detector.Close(); err != nil {
			a.logger.Warn("error closing detector", "error", err)
		}
		if err := a.sink.Close(); err != nil {
			a.logger.Warn("error closing midi output", "error", err)
		}
		a.last.Close()
		a.logger.Info("pipeline stopped")
	})
}

func (a *App) modeChanged(s controller.State) {
	a.observeState(s)

	if s.Mode == controller.Mapping {
		a.startSession()
	} else {
		a.endSession()
	}
}

func (a *App) slotSelected(s controller.State) {
	a.observeState(s)

	if a.store == nil || a.sessionID == "" {
		return
	}
	if err := a.store.Sessions().RecordSelection(a.sessionID, s.Selected); err != nil {
		a.logger.Warn("recording selection failed", "session", a.sessionID, "error", err)
	}
}

func (a *App) emitted(slot control.Slot, value uint8, err error) {
	if a.metrics != nil {
		a.metrics.ObserveEmit(slot, err)
	}
}

func (a *App) observeState(s controller.State) {
	if a.metrics != nil {
		a.metrics.ObserveState(s)
	}
	if a.onState != nil {
		a.onState(s)
	}
}

func (a *App) startSession() {
	if a.store == nil {
		return
	}
	sess, err := a.store.Sessions().Start()
	if err != nil {
		a.logger.Warn("starting mapping session failed", "error", err)
		return
	}
	a.sessionID = sess.ID
	a.logger.Debug("mapping session started", "session", sess.ID)
}

func (a *App) endSession() {
	if a.store == nil || a.sessionID == "" {
		return
	}
	if err := a.store.Sessions().End(a.sessionID); err != nil {
		a.logger.Warn("ending mapping session failed", "session", a.sessionID, "error", err)
	}
	a.logger.Debug("mapping session ended", "session", a.sessionID)
	a.sessionID = ""
}
