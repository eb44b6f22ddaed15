package gstengine

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

var gstInitOnce sync.Once

// gstInit performs the process-wide GStreamer initialization exactly once.
func gstInit() {
	gstInitOnce.Do(func() { gst.Init(nil) })
}

// pipelineElements holds references to the elements we touch after
// construction (state changes, volume, dynamic pad linking, frame pulls).
type pipelineElements struct {
	Pipeline  *gst.Pipeline
	Decode    *gst.Element // uridecodebin, dynamic pads
	VideoSink *app.Sink
	Volume    *gst.Element
	AudioSink *gst.Element // autoaudiosink, device selection target
	videoPad  *gst.Element // videoconvert, link target for video pads
	audioPad  *gst.Element // audioconvert, link target for audio pads
}

// createPipeline builds the playback pipeline but leaves it in NULL state.
//
// Pipeline structure:
//
//	uridecodebin ─┬─(video)→ videoconvert → capsfilter(RGBA) → appsink
//	              └─(audio)→ audioconvert → audioresample → volume → autoaudiosink
//
// The video branch keeps the source's native resolution: the caps filter
// locks the pixel format only, so the sample caps carry the stream's real
// width/height for resolution negotiation.
func createPipeline() (*pipelineElements, error) {
	gstInit()

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	decode, err := gst.NewElement("uridecodebin")
	if err != nil {
		return nil, fmt.Errorf("failed to create uridecodebin: %w", err)
	}

	// Video branch.
	vconvert, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, fmt.Errorf("failed to create videoconvert: %w", err)
	}
	vconvert.SetProperty("n-threads", 0)

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, fmt.Errorf("failed to create capsfilter: %w", err)
	}
	// Format lock only; width/height stay native.
	capsfilter.SetProperty("caps", gst.NewCapsFromString("video/x-raw,format=RGBA"))

	appsink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("failed to create appsink: %w", err)
	}
	appsink.SetProperty("sync", true)     // pace frames at presentation time
	appsink.SetProperty("max-buffers", 1) // keep only the latest frame
	appsink.SetProperty("drop", true)
	appsink.SetProperty("qos", true)

	// Audio branch.
	aconvert, err := gst.NewElement("audioconvert")
	if err != nil {
		return nil, fmt.Errorf("failed to create audioconvert: %w", err)
	}
	aresample, err := gst.NewElement("audioresample")
	if err != nil {
		return nil, fmt.Errorf("failed to create audioresample: %w", err)
	}
	volume, err := gst.NewElement("volume")
	if err != nil {
		return nil, fmt.Errorf("failed to create volume: %w", err)
	}
	audiosink, err := gst.NewElement("autoaudiosink")
	if err != nil {
		return nil, fmt.Errorf("failed to create autoaudiosink: %w", err)
	}

	pipeline.AddMany(
		decode,
		vconvert,
		capsfilter,
		appsink.Element,
		aconvert,
		aresample,
		volume,
		audiosink,
	)

	if err := gst.ElementLinkMany(vconvert, capsfilter, appsink.Element); err != nil {
		return nil, fmt.Errorf("failed to link video branch: %w", err)
	}
	if err := gst.ElementLinkMany(aconvert, aresample, volume, audiosink); err != nil {
		return nil, fmt.Errorf("failed to link audio branch: %w", err)
	}

	return &pipelineElements{
		Pipeline:  pipeline,
		Decode:    decode,
		VideoSink: appsink,
		Volume:    volume,
		AudioSink: audiosink,
		videoPad:  vconvert,
		audioPad:  aconvert,
	}, nil
}

// onPadAdded links uridecodebin's dynamic pads to the matching branch.
// uridecodebin exposes its pads only once the source has been probed, so the
// branches cannot be linked at construction time.
func (e *pipelineElements) onPadAdded(_ *gst.Element, srcPad *gst.Pad) {
	caps := srcPad.GetCurrentCaps()
	if caps == nil {
		slog.Debug("gstengine: pad-added without caps", "pad", srcPad.GetName())
		return
	}
	structure := caps.GetStructureAt(0)
	if structure == nil {
		return
	}
	name := structure.Name()

	var target *gst.Element
	switch {
	case len(name) >= 5 && name[:5] == "video":
		target = e.videoPad
	case len(name) >= 5 && name[:5] == "audio":
		target = e.audioPad
	default:
		slog.Debug("gstengine: ignoring pad", "pad", srcPad.GetName(), "caps", name)
		return
	}

	sinkPad := target.GetStaticPad("sink")
	if sinkPad == nil {
		slog.Error("gstengine: failed to get sink pad", "element", target.GetName())
		return
	}
	if sinkPad.IsLinked() {
		return
	}
	if ret := srcPad.Link(sinkPad); ret != gst.PadLinkOK {
		slog.Error("gstengine: failed to link pads",
			"src_pad", srcPad.GetName(),
			"sink_pad", sinkPad.GetName(),
			"ret", ret,
		)
		return
	}
	slog.Debug("gstengine: pads linked", "src_pad", srcPad.GetName(), "caps", name)
}

// destroyPipeline sets the pipeline to NULL and releases its resources.
// Safe to call more than once.
func destroyPipeline(e *pipelineElements) error {
	if e == nil || e.Pipeline == nil {
		return nil
	}
	if err := e.Pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("failed to set pipeline to NULL: %w", err)
	}
	return nil
}
