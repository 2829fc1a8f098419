package output

import (
	"errors"

	"github.com/bryanchriswhite/FlameSeg/internal/config"
	"gocv.io/x/gocv"
)

// ErrNotRunning is returned when writing to an output that is not started
var ErrNotRunning = errors.New("output not running")

// Output defines the interface for frame output mechanisms:
// - encoded video file (the recorded result)
// - MJPEG HTTP preview stream
type Output interface {
	// Start initializes the output mechanism
	Start() error

	// Stop cleanly shuts down the output. Calling it on a stopped or never
	// started output is a no-op.
	Stop() error

	// WriteFrame sends a frame to the output. The frame is read, not
	// retained, so the caller may release it once WriteFrame returns.
	WriteFrame(frame gocv.Mat) error

	// Name returns a human-readable name for this output type
	Name() string

	// IsRunning returns true if the output is currently active
	IsRunning() bool
}

// Config holds common configuration for all output types
type Config struct {
	Path         string
	FourCC       string
	Width        int
	Height       int
	FPS          float64
	Quality      int
	ChannelOrder config.ChannelOrder
}

// Factory builds an Output for the given config
type Factory func(cfg Config) Output
