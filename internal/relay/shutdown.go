package relay

import (
	"log/slog"
	"time"

	"github.com/visiona/texrelay/internal/framebus"
)

// shutdown drains the session in strict dependency order. Downstream
// texture-share clients poll asynchronously, so the blank state is published
// repeatedly before the sink goes away; the sink is released before the GPU
// context it was created under is destroyed; the engine render context is
// destroyed while the context is still current.
//
// Every step is best effort: a failed step is logged and the sequence
// continues, because leaking the GPU context or leaving a dangling service
// registration is worse than a partially clean teardown. Any resource may be
// nil when the session aborted before creating it.
func shutdown(opts *Options, res *resources) {
	if res.ctx != nil {
		if err := res.ctx.MakeCurrent(); err != nil {
			slog.Warn("relay: shutdown could not make context current", "error", err)
		}
	}

	// Blank-frame flush so polling clients observe the terminal state.
	if res.frame != nil && res.sink != nil {
		w, h := res.frame.Size()
		for i := 0; i < opts.BlankFrameCount; i++ {
			if err := res.frame.Clear(0, 0, 0, 255); err != nil {
				slog.Warn("relay: blank-frame clear failed", "error", err)
				break
			}
			pix, err := res.frame.ReadPixels()
			if err != nil {
				slog.Warn("relay: blank-frame readback failed", "error", err)
				break
			}
			if err := res.sink.Publish(framebus.TextureFrame{
				Data:   pix,
				Width:  w,
				Height: h,
			}); err != nil {
				slog.Warn("relay: blank-frame publish failed", "error", err)
				break
			}
			time.Sleep(opts.BlankFrameGap)
		}
	}
	if res.ctx != nil {
		res.ctx.Flush()
		res.ctx.Finish()
	}
	time.Sleep(opts.SettleDelay)

	if res.sink != nil {
		if err := res.sink.Stop(); err != nil {
			slog.Warn("relay: sink stop failed", "error", err)
		}
		time.Sleep(opts.QuiesceDelay)
		if err := res.sink.Release(); err != nil {
			slog.Warn("relay: sink release failed", "error", err)
		}
	}

	if res.renderCtx != nil {
		res.renderCtx.Destroy()
	}

	if res.frame != nil {
		if err := res.frame.Delete(); err != nil {
			slog.Warn("relay: frame surface delete failed", "error", err)
		}
	}
	if res.preview != nil {
		if err := res.preview.Delete(); err != nil {
			slog.Warn("relay: preview surface delete failed", "error", err)
		}
	}

	if res.ctx != nil {
		if err := res.ctx.Destroy(); err != nil {
			slog.Warn("relay: GPU context destroy failed", "error", err)
		}
	}
}
