package capture

import (
	"gocv.io/x/gocv"
)

// Properties describes a stream. They are read once when the source is opened
// and stay fixed for its lifetime.
type Properties struct {
	Width  int     `json:"width" yaml:"width"`
	Height int     `json:"height" yaml:"height"`
	FPS    float64 `json:"fps" yaml:"fps"`
	// FrameCount is the container's advisory frame count, 0 when unknown
	FrameCount int    `json:"frame_count" yaml:"frame_count"`
	FourCC     string `json:"fourcc,omitempty" yaml:"fourcc,omitempty"`
}

// Source defines a stream of frames such as a video file
type Source interface {
	// Properties returns the stream geometry and rate
	Properties() Properties

	// Read decodes the next frame into dst. It returns false at end of
	// stream; dst is then left empty or untouched.
	Read(dst *gocv.Mat) bool

	// Name returns a human-readable name for this source
	Name() string

	// Close releases the decoder. Calling it more than once is safe.
	Close() error
}

// Opener opens a Source by path
type Opener func(path string) (Source, error)
