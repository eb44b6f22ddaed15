package relay

import (
	"log/slog"
	"time"

	"github.com/visiona/texrelay/internal/engine"
	"github.com/visiona/texrelay/internal/framebus"
)

// pump is the steady-state render loop. Each tick renders into the frame
// surface, publishes to the sink, and gives the preview relay a chance to
// emit. Render failures are retried at the tick cadence; threshold
// consecutive failures abort the session. Returns when a stop is requested,
// the stream ends, or the session aborts.
func pump(opts *Options, h *Handle, res *resources, preview *previewRelay, width, height int) {
	failures := 0
	var published uint64
	var sequence uint64

	for {
		if h.stopRequested() {
			slog.Info("relay: stop requested, draining", "service", opts.ServiceName)
			return
		}

		switch ev := opts.Engine.WaitEvent(0); ev.Kind {
		case engine.EventEndOfFile:
			slog.Info("relay: end of stream, draining", "source", opts.Source)
			return
		case engine.EventError:
			slog.Error("relay: engine error, draining", "error", ev.Err)
			h.setErr(ev.Err)
			return
		case engine.EventVideoReconfig:
			if w, hgt, ok := reconfiguredSize(opts, width, height); ok {
				if err := recreateFrameSurface(res, w, hgt); err != nil {
					slog.Error("relay: failed to recreate frame surface", "error", err)
					h.setErr(err)
					return
				}
				width, height = w, hgt
				h.setSize(width, height)
				slog.Info("relay: frame surface recreated", "width", width, "height", height)
			}
		}

		if err := res.renderCtx.Render(res.frame, width, height, opts.FlipOutput); err != nil {
			failures++
			h.recordTick(published, failures)
			slog.Warn("relay: render failed",
				"error", err,
				"consecutive_failures", failures,
			)
			if failures >= opts.FailureThreshold {
				slog.Error("relay: render failure threshold reached, aborting",
					"threshold", opts.FailureThreshold,
				)
				h.setErr(ErrRenderThresholdAbort)
				return
			}
			time.Sleep(opts.Tick)
			continue
		}
		failures = 0

		if err := publishFrame(res, opts, &sequence, width, height); err != nil {
			slog.Warn("relay: publish failed", "error", err)
		} else {
			published++
		}

		if preview != nil {
			preview.tick(res.frame)
		}

		h.recordTick(published, failures)
		time.Sleep(opts.Tick)
	}
}

// reconfiguredSize reads the engine's current dimensions after a
// reconfiguration event. ok is false when the values are unusable or
// unchanged.
func reconfiguredSize(opts *Options, curW, curH int) (int, int, bool) {
	w, errW := opts.Engine.GetPropertyInt64(engine.PropWidth)
	h, errH := opts.Engine.GetPropertyInt64(engine.PropHeight)
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return 0, 0, false
	}
	if int(w) == curW && int(h) == curH {
		return 0, 0, false
	}
	return int(w), int(h), true
}

// recreateFrameSurface replaces the frame surface at new dimensions. The
// surface is never resized in place.
func recreateFrameSurface(res *resources, width, height int) error {
	if res.frame != nil {
		if err := res.frame.Delete(); err != nil {
			slog.Warn("relay: failed to delete old frame surface", "error", err)
		}
	}
	frame, err := res.ctx.NewSurface(width, height)
	if err != nil {
		return err
	}
	res.frame = frame
	return nil
}

func publishFrame(res *resources, opts *Options, sequence *uint64, width, height int) error {
	pix, err := res.frame.ReadPixels()
	if err != nil {
		return err
	}
	*sequence++
	return res.sink.Publish(framebus.TextureFrame{
		Data:     pix,
		Width:    width,
		Height:   height,
		Flipped:  opts.FlipOutput,
		Sequence: *sequence,
	})
}
