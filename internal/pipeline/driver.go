// Package pipeline runs segmentation over a whole video: it opens the source,
// creates a matching sink, pushes every frame through the segmenter and
// compositor in order and releases both ends however the run ends.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/bryanchriswhite/FlameSeg/internal/capture"
	"github.com/bryanchriswhite/FlameSeg/internal/logger"
	"github.com/bryanchriswhite/FlameSeg/internal/output"
	"github.com/bryanchriswhite/FlameSeg/internal/segment"
	"github.com/google/uuid"
	"gocv.io/x/gocv"
)

// DefaultFPS is used for the output when the source does not report a rate
const DefaultFPS = 30.0

// State is a phase of a run
type State int

const (
	StateOpening State = iota
	StateStreaming
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateStreaming:
		return "streaming"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Segmenter turns a frame into a binary flame mask
type Segmenter interface {
	Segment(frame gocv.Mat) gocv.Mat
}

// Compositor renders a mask onto its frame
type Compositor interface {
	Composite(frame, mask gocv.Mat) gocv.Mat
}

// Options configures one run
type Options struct {
	InputPath  string
	OutputPath string
	FourCC     string
	// FPS overrides the source frame rate when positive
	FPS float64
}

// FrameStats describes one processed frame
type FrameStats struct {
	Index       int     `json:"index"`
	FlamePixels int     `json:"flame_pixels"`
	Coverage    float64 `json:"coverage"`
}

// Result summarizes a run
type Result struct {
	RunID        string             `json:"run_id"`
	Frames       int                `json:"frames"`
	FlameFrames  int                `json:"flame_frames"`
	MeanCoverage float64            `json:"mean_coverage"`
	Properties   capture.Properties `json:"properties"`
	Elapsed      time.Duration      `json:"elapsed"`
}

// DriverOption customizes a Driver
type DriverOption func(d *Driver)

// WithSourceOpener replaces capture.Open
func WithSourceOpener(open capture.Opener) DriverOption {
	return func(d *Driver) { d.openSource = open }
}

// WithSinkFactory replaces the video file sink
func WithSinkFactory(f output.Factory) DriverOption {
	return func(d *Driver) { d.newSink = f }
}

// WithTaps adds outputs that receive every composited frame after the sink.
// Taps are started and stopped by their owner; write errors are logged only.
func WithTaps(taps ...output.Output) DriverOption {
	return func(d *Driver) { d.taps = append(d.taps, taps...) }
}

// WithFrameCallback registers fn to be called after every frame
func WithFrameCallback(fn func(FrameStats)) DriverOption {
	return func(d *Driver) { d.onFrame = fn }
}

// WithMonitor publishes run status to m
func WithMonitor(m *Monitor) DriverOption {
	return func(d *Driver) { d.monitor = m }
}

// Driver owns the frame loop for a single input/output pair
type Driver struct {
	opts       Options
	seg        Segmenter
	comp       Compositor
	openSource capture.Opener
	newSink    output.Factory
	taps       []output.Output
	onFrame    func(FrameStats)
	monitor    *Monitor
	state      State
}

// NewDriver creates a driver. The segmenter and compositor are borrowed and
// not closed by the driver.
func NewDriver(opts Options, seg Segmenter, comp Compositor, options ...DriverOption) *Driver {
	d := &Driver{
		opts:       opts,
		seg:        seg,
		comp:       comp,
		openSource: capture.Open,
		newSink:    output.NewVideoFileOutput,
		monitor:    NewMonitor(),
		state:      StateOpening,
	}
	for _, opt := range options {
		opt(d)
	}
	return d
}

// State returns the current phase
func (d *Driver) State() State {
	return d.state
}

// Monitor returns the status monitor updated by Run
func (d *Driver) Monitor() *Monitor {
	return d.monitor
}

func (d *Driver) setState(s State) {
	d.state = s
	d.monitor.Update(func(st *Status) { st.State = s.String() })
}

// Run processes the whole input. It returns a *SourceOpenError if the input
// cannot be opened, an error wrapping ErrSinkOpen if the output cannot be
// created, and ctx.Err() with the partial result if ctx is cancelled.
// Whatever was opened is released before Run returns.
func (d *Driver) Run(ctx context.Context) (res *Result, err error) {
	log := logger.WithComponent("pipeline")
	start := time.Now()
	res = &Result{RunID: uuid.NewString()}

	d.monitor.Update(func(s *Status) {
		*s = Status{
			RunID:  res.RunID,
			State:  StateOpening.String(),
			Input:  d.opts.InputPath,
			Output: d.opts.OutputPath,
		}
	})
	d.state = StateOpening

	defer func() {
		res.Elapsed = time.Since(start)
		d.setState(StateClosed)
		if err != nil {
			d.monitor.Update(func(s *Status) { s.Error = err.Error() })
		}
	}()

	src, err := d.openSource(d.opts.InputPath)
	if err != nil {
		return res, &SourceOpenError{Path: d.opts.InputPath, Err: err}
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			log.Warn().Err(cerr).Str("source", src.Name()).Msg("Failed to close source")
		}
	}()

	props := src.Properties()
	res.Properties = props
	d.monitor.Update(func(s *Status) { s.Properties = &props })

	fps := d.opts.FPS
	if fps <= 0 {
		fps = props.FPS
	}
	if fps <= 0 {
		log.Warn().Float64("reported_fps", props.FPS).Float64("fps", DefaultFPS).Msg("Source has no frame rate, using default")
		fps = DefaultFPS
	}

	sink := d.newSink(output.Config{
		Path:   d.opts.OutputPath,
		FourCC: d.opts.FourCC,
		Width:  props.Width,
		Height: props.Height,
		FPS:    fps,
	})
	if err := sink.Start(); err != nil {
		return res, fmt.Errorf("%w %s: %v", ErrSinkOpen, d.opts.OutputPath, err)
	}
	defer func() {
		if serr := sink.Stop(); serr != nil {
			log.Warn().Err(serr).Str("sink", sink.Name()).Msg("Failed to close output")
		}
	}()

	log.Info().
		Str("run_id", res.RunID).
		Str("input", d.opts.InputPath).
		Str("output", d.opts.OutputPath).
		Int("width", props.Width).
		Int("height", props.Height).
		Float64("fps", fps).
		Msg("Run started")

	d.setState(StateStreaming)
	err = d.stream(ctx, src, sink, res)
	d.setState(StateDraining)

	if res.Frames > 0 {
		res.MeanCoverage /= float64(res.Frames)
	}

	ev := log.Info()
	if err != nil {
		ev = log.Warn().Err(err)
	}
	ev.Str("run_id", res.RunID).
		Int("frames", res.Frames).
		Int("flame_frames", res.FlameFrames).
		Dur("elapsed", time.Since(start)).
		Msg("Run finished")

	return res, err
}

// stream runs the per-frame loop until end of stream, a sink error or
// cancellation. res.MeanCoverage accumulates the coverage sum.
func (d *Driver) stream(ctx context.Context, src capture.Source, sink output.Output, res *Result) error {
	log := logger.WithComponent("pipeline")

	frame := gocv.NewMat()
	defer frame.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if !src.Read(&frame) || frame.Empty() {
			return nil
		}

		stats, err := d.processFrame(frame, sink, res.Frames)
		if err != nil {
			return err
		}

		res.Frames++
		res.MeanCoverage += stats.Coverage
		if stats.FlamePixels > 0 {
			res.FlameFrames++
		}

		d.monitor.Update(func(s *Status) {
			s.Frames = res.Frames
			s.FlameFrames = res.FlameFrames
			s.LastCoverage = stats.Coverage
		})
		if d.onFrame != nil {
			d.onFrame(stats)
		}

		log.Debug().
			Int("frame", stats.Index).
			Int("flame_pixels", stats.FlamePixels).
			Float64("coverage", stats.Coverage).
			Msg("Frame processed")
	}
}

func (d *Driver) processFrame(frame gocv.Mat, sink output.Output, index int) (FrameStats, error) {
	mask := d.seg.Segment(frame)
	defer mask.Close()

	out := d.comp.Composite(frame, mask)
	defer out.Close()

	stats := FrameStats{
		Index:       index,
		FlamePixels: segment.FlamePixels(mask),
		Coverage:    segment.Coverage(mask),
	}

	if err := sink.WriteFrame(out); err != nil {
		return stats, fmt.Errorf("failed to write frame %d: %w", index, err)
	}

	for _, tap := range d.taps {
		if err := tap.WriteFrame(out); err != nil {
			logger.WithComponent("pipeline").Debug().Err(err).Str("tap", tap.Name()).Msg("Tap write failed")
		}
	}
	return stats, nil
}
