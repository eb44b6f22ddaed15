package relay

import (
	"log/slog"

	"github.com/visiona/texrelay/internal/engine"
)

// negotiate waits for the engine to report the real stream dimensions.
//
// Remote media reports its true size asynchronously after format
// negotiation, so each attempt waits one step for a reconfiguration event
// and then reads the dimension properties regardless; engines that never
// raise the event are still covered by the property poll. On timeout the
// initial size is kept and the session proceeds degraded rather than
// failing. stopped is true when a stop request interrupted the wait.
func negotiate(opts *Options, h *Handle) (width, height int, stopped bool) {
	for attempt := 0; attempt < opts.NegotiateAttempts; attempt++ {
		if h.stopRequested() {
			return opts.InitialWidth, opts.InitialHeight, true
		}

		ev := opts.Engine.WaitEvent(opts.NegotiateStep)
		if ev.Kind == engine.EventError {
			slog.Warn("relay: engine error during negotiation", "error", ev.Err)
		}

		w, errW := opts.Engine.GetPropertyInt64(engine.PropWidth)
		ht, errH := opts.Engine.GetPropertyInt64(engine.PropHeight)
		if errW == nil && errH == nil && w > 0 && ht > 0 {
			slog.Info("relay: resolution negotiated",
				"width", w,
				"height", ht,
				"attempts", attempt+1,
			)
			return int(w), int(ht), false
		}
	}

	slog.Warn("relay: resolution negotiation timed out, using initial size",
		"width", opts.InitialWidth,
		"height", opts.InitialHeight,
	)
	return opts.InitialWidth, opts.InitialHeight, false
}
