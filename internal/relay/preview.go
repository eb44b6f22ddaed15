package relay

import (
	"encoding/base64"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/visiona/texrelay/internal/emitter"
	"github.com/visiona/texrelay/internal/gpu"
)

// previewRelay downsamples the frame surface and pushes base64 snapshots to
// the UI layer at a rate decoupled from the pump cadence.
//
// The preview surface is allocated once per session and reused every tick;
// its aspect ratio is locked to the negotiated size at creation time. The
// expensive step is the readback, so emission is gated by a wall-clock rate
// limiter rather than by pump ticks.
type previewRelay struct {
	surface gpu.Surface
	limiter *rate.Limiter
	emitter emitter.Emitter
	width   int
	height  int
}

func newPreviewRelay(ctx gpu.Context, frameW, frameH int, opts *Options) (*previewRelay, error) {
	width := opts.PreviewWidth
	height := frameH * width / frameW
	if height < 1 {
		height = 1
	}

	surface, err := ctx.NewSurface(width, height)
	if err != nil {
		return nil, err
	}
	return &previewRelay{
		surface: surface,
		limiter: rate.NewLimiter(rate.Every(opts.PreviewInterval), 1),
		emitter: opts.Emitter,
		width:   width,
		height:  height,
	}, nil
}

// tick emits one preview snapshot if the rate limiter allows it. GPU errors
// skip the tick and are logged; the next allowed tick tries again.
func (p *previewRelay) tick(frame gpu.Surface) {
	if !p.limiter.Allow() {
		return
	}

	if err := frame.BlitTo(p.surface); err != nil {
		slog.Warn("relay: preview blit failed, skipping tick", "error", err)
		return
	}
	pix, err := p.surface.ReadPixels()
	if err != nil {
		slog.Warn("relay: preview readback failed, skipping tick", "error", err)
		return
	}

	p.emitter.Emit(emitter.EventPreviewFrame, PreviewFrame{
		Width:  p.width,
		Height: p.height,
		Data:   base64.StdEncoding.EncodeToString(pix),
	})
}
