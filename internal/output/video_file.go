package output

import (
	"fmt"
	"sync"

	"github.com/bryanchriswhite/FlameSeg/internal/logger"
	"gocv.io/x/gocv"
)

// VideoFileOutput encodes frames into a container file through OpenCV's VideoWriter
type VideoFileOutput struct {
	config     Config
	writer     *gocv.VideoWriter
	running    bool
	frameCount uint64
	mu         sync.Mutex
}

// NewVideoFileOutput creates an unopened file output; Start opens the writer
func NewVideoFileOutput(config Config) Output {
	return &VideoFileOutput{config: config}
}

// Start opens the encoder with the configured codec, size and rate
func (v *VideoFileOutput) Start() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.running {
		return fmt.Errorf("video output %s already running", v.config.Path)
	}
	if len(v.config.FourCC) != 4 {
		return fmt.Errorf("invalid fourcc %q", v.config.FourCC)
	}

	w, err := gocv.VideoWriterFile(v.config.Path, v.config.FourCC, v.config.FPS, v.config.Width, v.config.Height, true)
	if err != nil {
		return fmt.Errorf("failed to create video writer: %w", err)
	}
	if !w.IsOpened() {
		w.Close()
		return fmt.Errorf("failed to open %s for writing with codec %s", v.config.Path, v.config.FourCC)
	}

	v.writer = w
	v.running = true
	v.frameCount = 0

	logger.WithComponent("output").Info().
		Str("path", v.config.Path).
		Str("fourcc", v.config.FourCC).
		Int("width", v.config.Width).
		Int("height", v.config.Height).
		Float64("fps", v.config.FPS).
		Msg("Video output started")
	return nil
}

// Stop flushes and closes the encoder
func (v *VideoFileOutput) Stop() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.running {
		return nil
	}
	v.running = false

	err := v.writer.Close()
	v.writer = nil

	logger.WithComponent("output").Info().
		Str("path", v.config.Path).
		Uint64("frames", v.frameCount).
		Msg("Video output stopped")
	return err
}

// WriteFrame encodes one frame. Frames must match the configured size.
func (v *VideoFileOutput) WriteFrame(frame gocv.Mat) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.running {
		return ErrNotRunning
	}
	if frame.Cols() != v.config.Width || frame.Rows() != v.config.Height {
		return fmt.Errorf("frame size %dx%d does not match output %dx%d",
			frame.Cols(), frame.Rows(), v.config.Width, v.config.Height)
	}

	if err := v.writer.Write(frame); err != nil {
		return fmt.Errorf("failed to write frame %d: %w", v.frameCount, err)
	}
	v.frameCount++
	return nil
}

// Name returns the output type name
func (v *VideoFileOutput) Name() string {
	return "video file " + v.config.Path
}

// IsRunning returns true if the encoder is open
func (v *VideoFileOutput) IsRunning() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.running
}

// FrameCount returns the number of frames written since Start
func (v *VideoFileOutput) FrameCount() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.frameCount
}
