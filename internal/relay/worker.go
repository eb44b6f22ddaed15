package relay

import (
	"fmt"
	"log/slog"
	"runtime"

	"github.com/visiona/texrelay/internal/emitter"
	"github.com/visiona/texrelay/internal/engine"
	"github.com/visiona/texrelay/internal/gpu"
	"github.com/visiona/texrelay/internal/sink"
)

// Spawn starts a session worker and returns its handle.
//
// GPU context and engine render-context creation happen on the worker thread
// before Spawn returns; their failures are synchronous and no handle is
// returned. Later failures (sink creation, render threshold) surface through
// the handle's status.
func Spawn(opts Options) (*Handle, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	opts.withDefaults()

	h := newHandle(&opts)
	ready := make(chan error, 1)
	go worker(&opts, h, ready)

	if err := <-ready; err != nil {
		return nil, err
	}
	return h, nil
}

// worker runs the whole session on one locked OS thread. The GPU context,
// both surfaces and the sink are created and destroyed here and never leave
// this goroutine.
func worker(opts *Options, h *Handle, ready chan<- error) {
	runtime.LockOSThread()
	defer close(h.done)

	ctx, err := opts.GPU.CreateContext()
	if err != nil {
		ready <- fmt.Errorf("%w: %s", ErrContextCreation, err)
		return
	}
	if err := ctx.MakeCurrent(); err != nil {
		ctx.Destroy()
		ready <- fmt.Errorf("%w: %s", ErrContextCreation, err)
		return
	}
	renderCtx, err := opts.Engine.NewRenderContext(ctx)
	if err != nil {
		ctx.Destroy()
		ready <- fmt.Errorf("%w: %s", ErrRenderContextCreation, err)
		return
	}
	ready <- nil

	res := &resources{ctx: ctx, renderCtx: renderCtx}
	slog.Info("relay: worker started",
		"service", opts.ServiceName,
		"source", opts.Source,
		"initial_size", fmt.Sprintf("%dx%d", opts.InitialWidth, opts.InitialHeight),
	)

	h.setState(StateNegotiating)
	width, height, stopped := negotiate(opts, h)
	h.setSize(width, height)

	var preview *previewRelay
	if !stopped {
		res.frame, err = ctx.NewSurface(width, height)
		if err != nil {
			h.setErr(fmt.Errorf("relay: frame surface creation failed: %w", err))
			stopped = true
		}
	}
	if !stopped {
		preview, err = newPreviewRelay(ctx, width, height, opts)
		if err != nil {
			// Preview is optional; the relay proceeds without it.
			slog.Warn("relay: preview surface creation failed, preview disabled", "error", err)
			preview = nil
		} else {
			res.preview = preview.surface
		}
	}
	if !stopped {
		res.sink, err = opts.NewSink(opts.ServiceName, ctx.NativeHandle())
		if err != nil {
			h.setErr(fmt.Errorf("%w: %s", ErrSinkCreation, err))
			stopped = true
		}
	}

	if !stopped {
		h.setState(StateRunning)
		opts.Emitter.Emit(emitter.EventPlayerStatus, PlayerStatus{Status: "playing"})
		pump(opts, h, res, preview, width, height)
	}

	h.setState(StateDraining)
	shutdown(opts, res)
	h.setState(StateTerminated)
	slog.Info("relay: worker terminated", "service", opts.ServiceName, "source", opts.Source)
}

// resources holds the worker-owned native state handed to the shutdown
// sequencer. Any field may be nil when the session aborted early.
type resources struct {
	ctx       gpu.Context
	renderCtx engine.RenderContext
	frame     gpu.Surface
	preview   gpu.Surface
	sink      sink.Sink
}
