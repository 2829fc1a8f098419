package capture

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/bryanchriswhite/FlameSeg/internal/logger"
	"gocv.io/x/gocv"
)

// VideoSource decodes frames through OpenCV's VideoCapture, from a container
// file or a camera
type VideoSource struct {
	name   string
	cap    *gocv.VideoCapture
	props  Properties
	mu     sync.Mutex
	closed bool
}

// OpenVideoFile opens path for decoding. It fails when OpenCV cannot open or
// demux the file.
func OpenVideoFile(path string) (Source, error) {
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open video %s: %w", path, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("failed to open video %s", path)
	}
	return newVideoSource("video file "+path, vc), nil
}

// newVideoSource reads the stream properties of an opened capture
func newVideoSource(name string, vc *gocv.VideoCapture) *VideoSource {
	props := Properties{
		Width:      int(vc.Get(gocv.VideoCaptureFrameWidth)),
		Height:     int(vc.Get(gocv.VideoCaptureFrameHeight)),
		FPS:        vc.Get(gocv.VideoCaptureFPS),
		FrameCount: int(math.Max(0, vc.Get(gocv.VideoCaptureFrameCount))),
		FourCC:     vc.CodecString(),
	}

	logger.WithComponent("capture").Debug().
		Str("source", name).
		Int("width", props.Width).
		Int("height", props.Height).
		Float64("fps", props.FPS).
		Int("frame_count", props.FrameCount).
		Msg("Opened video source")

	return &VideoSource{
		name:  name,
		cap:   vc,
		props: props,
	}
}

// Properties returns the stream properties read at open time
func (v *VideoSource) Properties() Properties {
	return v.props
}

// Read decodes the next frame into dst
func (v *VideoSource) Read(dst *gocv.Mat) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return false
	}
	if !v.cap.Read(dst) {
		return false
	}
	return !dst.Empty()
}

// Name returns the source description
func (v *VideoSource) Name() string {
	return v.name
}

// Close releases the decoder
func (v *VideoSource) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return nil
	}
	v.closed = true
	return v.cap.Close()
}

// Probe opens path as Open does, reads its properties and closes it again
func Probe(path string) (Properties, error) {
	v, err := Open(path)
	if err != nil {
		return Properties{}, err
	}
	defer v.Close()

	props := v.Properties()
	props.FourCC = strings.TrimRight(props.FourCC, "\x00 ")
	return props, nil
}
