// Package gstengine implements the decode-engine capability set on top of
// GStreamer (go-gst). A uridecodebin pipeline decodes the source; an appsink
// tap keeps only the newest RGBA frame, which the render context copies into
// the relay's frame surface on demand. Audio goes straight to the system
// output through a volume element.
package gstengine

import (
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/visiona/texrelay/internal/engine"
	"github.com/visiona/texrelay/internal/gpu"
)

// Config contains engine bootstrap options, applied before playback starts.
type Config struct {
	// Quality is an optional resolution cap hint ("1080p", "720p", "480p",
	// "best"). uridecodebin picks the stream; the hint is recorded for
	// sources that expose multiple variants.
	Quality string

	// BufferSecs bounds the internal buffering duration. Zero means the
	// pipeline default.
	BufferSecs int
}

// Engine is a GStreamer-backed decode engine.
type Engine struct {
	cfg Config

	mu       sync.Mutex
	elements *pipelineElements
	closed   bool
	uri      string
	paused   bool
	loop     bool
	speed    float64
	title    string
	audioDev string
	extra    map[string]any // unmapped bootstrap properties, kept for status

	// Latest decoded frame, written by the appsink callback.
	frameMu  sync.Mutex
	frame    []byte
	frameW   int
	frameH   int
	frameSeq uint64

	// Signalled (capacity 1) whenever the sample dimensions change.
	reconfig chan struct{}
}

// New creates the engine with the pipeline constructed but not started.
// Fails fast when GStreamer is not available.
func New(cfg Config) (*Engine, error) {
	if err := checkGStreamerAvailable(); err != nil {
		return nil, fmt.Errorf("gstengine: GStreamer not available: %w", err)
	}

	elements, err := createPipeline()
	if err != nil {
		return nil, fmt.Errorf("gstengine: failed to create pipeline: %w", err)
	}

	e := &Engine{
		cfg:      cfg,
		elements: elements,
		speed:    1.0,
		extra:    make(map[string]any),
		reconfig: make(chan struct{}, 1),
	}

	elements.VideoSink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: e.onNewSample,
	})
	elements.Decode.Connect("pad-added", elements.onPadAdded)

	if cfg.BufferSecs > 0 {
		// uridecodebin forwards buffer-duration (ns) to its internal queues.
		elements.Decode.SetProperty("buffer-duration", int64(cfg.BufferSecs)*int64(time.Second))
	}

	slog.Info("gstengine: engine created",
		"quality", cfg.Quality,
		"buffer_secs", cfg.BufferSecs,
	)
	return e, nil
}

// onNewSample stores the newest decoded frame and flags dimension changes.
func (e *Engine) onNewSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		slog.Warn("gstengine: failed to pull sample from appsink, skipping frame")
		return gst.FlowOK
	}

	width, height := 0, 0
	if caps := sample.GetCaps(); caps != nil {
		if structure := caps.GetStructureAt(0); structure != nil {
			if v, err := structure.GetValue("width"); err == nil {
				if w, ok := v.(int); ok {
					width = w
				}
			}
			if v, err := structure.GetValue("height"); err == nil {
				if h, ok := v.(int); ok {
					height = h
				}
			}
		}
	}

	buffer := sample.GetBuffer()
	if buffer == nil {
		slog.Warn("gstengine: failed to get buffer from sample, skipping frame")
		return gst.FlowOK
	}
	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		slog.Warn("gstengine: empty buffer received")
		return gst.FlowOK
	}
	frameData := make([]byte, len(data))
	copy(frameData, data)
	buffer.Unmap()

	e.frameMu.Lock()
	changed := width > 0 && height > 0 && (width != e.frameW || height != e.frameH)
	e.frame = frameData
	if width > 0 && height > 0 {
		e.frameW = width
		e.frameH = height
	}
	e.frameSeq++
	e.frameMu.Unlock()

	if changed {
		select {
		case e.reconfig <- struct{}{}:
		default:
		}
		slog.Info("gstengine: video format changed", "width", width, "height", height)
	}
	return gst.FlowOK
}

// Command issues a playback command.
func (e *Engine) Command(name string, args ...string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return engine.ErrEngineClosed
	}

	switch name {
	case engine.CmdLoadFile:
		if len(args) == 0 {
			return fmt.Errorf("gstengine: loadfile requires a source")
		}
		e.uri = args[0]
		e.elements.Decode.SetProperty("uri", e.uri)
		if err := e.elements.Pipeline.SetState(gst.StatePlaying); err != nil {
			return fmt.Errorf("gstengine: failed to start pipeline: %w", err)
		}
		e.paused = false
		slog.Info("gstengine: loadfile", "uri", e.uri)
		return nil

	case engine.CmdStop:
		if err := e.elements.Pipeline.SetState(gst.StateReady); err != nil {
			return fmt.Errorf("gstengine: failed to stop pipeline: %w", err)
		}
		return nil

	case engine.CmdSeek:
		if len(args) == 0 {
			return fmt.Errorf("gstengine: seek requires a position")
		}
		secs, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("gstengine: invalid seek position %q: %w", args[0], err)
		}
		return e.seekLocked(time.Duration(secs * float64(time.Second)))

	default:
		return fmt.Errorf("gstengine: unknown command %q", name)
	}
}

// seekLocked seeks to pos at the current playback rate. Caller holds e.mu.
func (e *Engine) seekLocked(pos time.Duration) error {
	ok := e.elements.Pipeline.Seek(
		e.speed,
		gst.FormatTime,
		gst.SeekFlagFlush|gst.SeekFlagKeyUnit,
		gst.SeekTypeSet,
		int64(pos),
		gst.SeekTypeNone,
		0,
	)
	if !ok {
		return fmt.Errorf("gstengine: seek to %v failed", pos)
	}
	return nil
}

// SetProperty sets an engine property. Unknown names are recorded as
// bootstrap options rather than rejected, matching how decode engines treat
// option bags.
func (e *Engine) SetProperty(name string, value any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return engine.ErrEngineClosed
	}

	switch name {
	case engine.PropPause:
		pause, ok := value.(bool)
		if !ok {
			return fmt.Errorf("gstengine: pause expects bool, got %T", value)
		}
		state := gst.StatePlaying
		if pause {
			state = gst.StatePaused
		}
		if err := e.elements.Pipeline.SetState(state); err != nil {
			return fmt.Errorf("gstengine: failed to set pause=%v: %w", pause, err)
		}
		e.paused = pause
		return nil

	case engine.PropVolume:
		vol, err := toFloat(value)
		if err != nil {
			return fmt.Errorf("gstengine: volume: %w", err)
		}
		// 0-100 scale in, 0.0-1.0 element scale out.
		e.elements.Volume.SetProperty("volume", clamp(vol/100.0, 0, 1))
		return nil

	case engine.PropMute:
		mute, ok := value.(bool)
		if !ok {
			return fmt.Errorf("gstengine: mute expects bool, got %T", value)
		}
		e.elements.Volume.SetProperty("mute", mute)
		return nil

	case engine.PropSpeed:
		speed, err := toFloat(value)
		if err != nil {
			return fmt.Errorf("gstengine: speed: %w", err)
		}
		e.speed = clamp(speed, 0.25, 4.0)
		// Rate changes apply through a flushing seek at the current position.
		pos, err := e.positionLocked()
		if err != nil {
			pos = 0
		}
		return e.seekLocked(pos)

	case engine.PropAudioDevice:
		id, ok := value.(string)
		if !ok {
			return fmt.Errorf("gstengine: audio-device expects string, got %T", value)
		}
		// autoaudiosink resolves "auto" itself; a concrete id is handed to
		// the sink, which forwards it to the platform child element.
		if id != "" && id != "auto" {
			e.elements.AudioSink.SetProperty("device", id)
		}
		e.audioDev = id
		return nil

	case engine.PropLoopFile:
		switch v := value.(type) {
		case bool:
			e.loop = v
		case string:
			e.loop = v == "inf"
		default:
			return fmt.Errorf("gstengine: loop-file expects bool or string, got %T", value)
		}
		return nil

	default:
		e.extra[name] = value
		slog.Debug("gstengine: recorded bootstrap property", "name", name)
		return nil
	}
}

func (e *Engine) positionLocked() (time.Duration, error) {
	ok, pos := e.elements.Pipeline.QueryPosition(gst.FormatTime)
	if !ok || pos < 0 {
		return 0, engine.ErrPropertyUnavailable
	}
	return time.Duration(pos), nil
}

// GetPropertyInt64 reads an integer property.
func (e *Engine) GetPropertyInt64(name string) (int64, error) {
	switch name {
	case engine.PropWidth:
		e.frameMu.Lock()
		defer e.frameMu.Unlock()
		return int64(e.frameW), nil
	case engine.PropHeight:
		e.frameMu.Lock()
		defer e.frameMu.Unlock()
		return int64(e.frameH), nil
	default:
		return 0, engine.ErrPropertyUnavailable
	}
}

// GetPropertyFloat64 reads a float property.
func (e *Engine) GetPropertyFloat64(name string) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0, engine.ErrEngineClosed
	}

	switch name {
	case engine.PropTimePos:
		pos, err := e.positionLocked()
		if err != nil {
			return 0, err
		}
		return pos.Seconds(), nil
	case engine.PropDuration:
		ok, dur := e.elements.Pipeline.QueryDuration(gst.FormatTime)
		if !ok || dur <= 0 {
			return 0, engine.ErrPropertyUnavailable
		}
		return time.Duration(dur).Seconds(), nil
	case engine.PropSpeed:
		return e.speed, nil
	default:
		return 0, engine.ErrPropertyUnavailable
	}
}

// GetPropertyBool reads a boolean property.
func (e *Engine) GetPropertyBool(name string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false, engine.ErrEngineClosed
	}

	switch name {
	case engine.PropPause:
		return e.paused, nil
	case engine.PropLoopFile:
		return e.loop, nil
	case engine.PropMute:
		v, err := e.elements.Volume.GetProperty("mute")
		if err != nil {
			return false, engine.ErrPropertyUnavailable
		}
		mute, _ := v.(bool)
		return mute, nil
	default:
		return false, engine.ErrPropertyUnavailable
	}
}

// GetPropertyString reads a string property.
func (e *Engine) GetPropertyString(name string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return "", engine.ErrEngineClosed
	}

	switch name {
	case engine.PropMediaTitle:
		if e.title != "" {
			return e.title, nil
		}
		// Fallback: the source locator, matching how players fall back to
		// the filename when no title tag arrived yet.
		if e.uri != "" {
			return e.uri, nil
		}
		return "", engine.ErrPropertyUnavailable
	case engine.PropAudioDevice:
		if e.audioDev == "" {
			return "", engine.ErrPropertyUnavailable
		}
		return e.audioDev, nil
	default:
		return "", engine.ErrPropertyUnavailable
	}
}

// WaitEvent polls for the next engine event, blocking at most timeout.
//
// Dimension changes detected by the appsink callback take priority; bus
// messages (EOS, errors, tags) are drained next.
func (e *Engine) WaitEvent(timeout time.Duration) engine.Event {
	select {
	case <-e.reconfig:
		return engine.Event{Kind: engine.EventVideoReconfig}
	default:
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return engine.Event{Kind: engine.EventNone}
	}
	bus := e.elements.Pipeline.GetPipelineBus()
	e.mu.Unlock()

	msg := bus.TimedPop(timeout)
	if msg == nil {
		return engine.Event{Kind: engine.EventNone}
	}

	switch msg.Type() {
	case gst.MessageEOS:
		e.mu.Lock()
		loop := e.loop
		e.mu.Unlock()
		if loop {
			e.mu.Lock()
			if err := e.seekLocked(0); err != nil {
				slog.Warn("gstengine: loop restart failed", "error", err)
			}
			e.mu.Unlock()
			return engine.Event{Kind: engine.EventNone}
		}
		slog.Info("gstengine: end of stream", "uri", e.uri)
		return engine.Event{Kind: engine.EventEndOfFile}

	case gst.MessageError:
		gerr := msg.ParseError()
		slog.Error("gstengine: pipeline error",
			"error", gerr.Error(),
			"debug", gerr.DebugString(),
			"uri", e.uri,
		)
		return engine.Event{Kind: engine.EventError, Err: fmt.Errorf("gstengine: pipeline error: %s", gerr.Error())}

	case gst.MessageTag:
		tags := msg.ParseTags()
		if tags != nil {
			if title, ok := tags.GetString("title"); ok && title != "" {
				e.mu.Lock()
				e.title = title
				e.mu.Unlock()
			}
		}
		return engine.Event{Kind: engine.EventNone}

	default:
		return engine.Event{Kind: engine.EventNone}
	}
}

// AudioDevices is not exposed by this pipeline; callers fall back to the
// platform enumeration.
func (e *Engine) AudioDevices() ([]engine.AudioDevice, error) {
	return nil, engine.ErrPropertyUnavailable
}

// NewRenderContext creates the render callback bound to a GPU context.
func (e *Engine) NewRenderContext(ctx gpu.Context) (engine.RenderContext, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, engine.ErrEngineClosed
	}
	if ctx == nil {
		return nil, fmt.Errorf("gstengine: nil GPU context")
	}
	return &renderContext{engine: e}, nil
}

// Close stops the pipeline and releases it. Idempotent.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	if err := destroyPipeline(e.elements); err != nil {
		slog.Error("gstengine: failed to destroy pipeline", "error", err)
	}
	e.elements = nil
	slog.Info("gstengine: engine closed", "uri", e.uri)
	return nil
}

// renderContext copies the newest decoded frame into the target surface.
type renderContext struct {
	engine    *Engine
	destroyed bool
}

func (r *renderContext) Render(target gpu.Surface, width, height int, flip bool) error {
	if r.destroyed {
		return fmt.Errorf("gstengine: render context destroyed")
	}

	r.engine.frameMu.Lock()
	frame := r.engine.frame
	fw, fh := r.engine.frameW, r.engine.frameH
	r.engine.frameMu.Unlock()

	if len(frame) == 0 || fw <= 0 || fh <= 0 {
		// Nothing decoded yet: a blank frame, not a failure.
		return target.Clear(0, 0, 0, 255)
	}

	if flip {
		frame = flipRows(frame, fw, fh)
	}
	return target.Upload(frame, fw, fh)
}

func (r *renderContext) Destroy() {
	r.destroyed = true
}

// flipRows returns a vertically flipped copy of an RGBA buffer.
func flipRows(pix []byte, w, h int) []byte {
	stride := w * 4
	out := make([]byte, len(pix))
	for y := 0; y < h; y++ {
		copy(out[y*stride:(y+1)*stride], pix[(h-1-y)*stride:(h-y)*stride])
	}
	return out
}

// checkGStreamerAvailable verifies GStreamer is installed and working.
// Fail-fast validation, run at construction time.
func checkGStreamerAvailable() error {
	gstInit()
	elem, err := gst.NewElement("fakesrc")
	if err != nil {
		return fmt.Errorf("GStreamer not available or not properly installed: %w", err)
	}
	elem.SetState(gst.StateNull)
	return nil
}

func toFloat(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("expected numeric value, got %T", value)
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
