package app

import (
	"context"
	"errors"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/controller"
	"github.com/ayusman/mudra/internal/overlay"
	"github.com/ayusman/mudra/internal/preview"
)

// runPipeline reads, detects and publishes one frame per tick until ctx is
// cancelled or the controller stops.
//
// While mapping, the camera is not read. The last streamed frame is shown
// with the mapping banner so the preview stays frozen.
func (a *App) runPipeline(ctx context.Context, fps int) {
	if fps <= 0 {
		fps = 1
	}
	ticker := a.clock.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if err := a.step(ctx); err != nil {
				if !errors.Is(err, controller.ErrStopped) && ctx.Err() == nil {
					a.logger.Error("pipeline stopped", "error", err)
				}
				return
			}
		}
	}
}

// step processes one tick. It returns an error only when the pipeline
// cannot continue.
func (a *App) step(ctx context.Context) error {
	start := a.clock.Now()

	state, err := a.ctrl.State(ctx)
	if err != nil {
		return err
	}
	if state.Mode == controller.Mapping {
		a.publishFrozen(controller.Frame{Mode: controller.Mapping, Selected: state.Selected})
		return nil
	}

	img, err := a.camera.ReadFrame()
	if err != nil {
		a.logger.Debug("frame read failed", "error", err)
		return nil
	}
	defer img.Close()

	frame, err := a.ctrl.DetectFrame(ctx, img)
	if err != nil {
		return err
	}

	if frame.Mode == controller.Mapping {
		// Mapping began after the frame was read.
		a.publishFrozen(frame)
		return nil
	}

	a.last.Close()
	a.last = img.Clone()

	overlay.Draw(img, frame)
	a.publish(img, frame)

	if a.metrics != nil {
		a.metrics.ObserveFrame(frame, a.clock.Since(start))
	}
	return nil
}

// publishFrozen republishes the last streamed frame under the mapping banner.
func (a *App) publishFrozen(frame controller.Frame) {
	if a.last.Empty() {
		a.hub.Publish(preview.FromFrame(frame, nil))
		return
	}

	img := a.last.Clone()
	defer img.Close()

	overlay.Draw(&img, frame)
	a.publish(&img, frame)
}

func (a *App) publish(img *gocv.Mat, frame controller.Frame) {
	jpeg, err := preview.Encode(img)
	if err != nil {
		a.logger.Warn("preview encode failed", "error", err)
	}
	a.hub.Publish(preview.FromFrame(frame, jpeg))
}
