package capture

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bryanchriswhite/FlameSeg/internal/logger"
	"gocv.io/x/gocv"
)

// DevicePrefix selects a camera instead of a file, as in "device:0"
const DevicePrefix = "device:"

// Open routes an input to the backend that can read it: "device:N" opens
// camera N, anything else is decoded as a video file.
func Open(input string) (Source, error) {
	id, isDevice, err := ParseDevice(input)
	if err != nil {
		return nil, err
	}
	if !isDevice {
		return OpenVideoFile(input)
	}

	logger.WithComponent("capture-router").Debug().Int("device", id).Msg("Routing input to camera")
	return OpenDevice(id)
}

// ParseDevice reports whether input names a camera and, if so, its index
func ParseDevice(input string) (int, bool, error) {
	if !strings.HasPrefix(input, DevicePrefix) {
		return 0, false, nil
	}
	id, err := strconv.Atoi(strings.TrimPrefix(input, DevicePrefix))
	if err != nil || id < 0 {
		return 0, true, fmt.Errorf("invalid device %q: want %sN with N >= 0", input, DevicePrefix)
	}
	return id, true, nil
}

// OpenDevice opens camera id. Cameras have no end of stream, so a run over
// one lasts until it is cancelled.
func OpenDevice(id int) (Source, error) {
	vc, err := gocv.VideoCaptureDevice(id)
	if err != nil {
		return nil, fmt.Errorf("failed to open device %d: %w", id, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("failed to open device %d", id)
	}
	return newVideoSource(fmt.Sprintf("camera %d", id), vc), nil
}
