// Package segment classifies flame-colored pixels of a frame into a binary mask.
//
// A pixel is "flame" when its HSV hue lies in [HueMin, HueMax] (0-179 scale)
// and its saturation and value reach the configured floors (0-255 scale).
// The raw threshold mask is cleaned with a morphological opening, which drops
// speckles smaller than the kernel, followed by a closing with the same
// kernel, which fills small holes inside flame regions.
package segment

import (
	"fmt"
	"image"

	"github.com/bryanchriswhite/FlameSeg/internal/config"
	"gocv.io/x/gocv"
)

const (
	// FlameValue marks a flame cell in a mask
	FlameValue = 255
	// BackgroundValue marks a background cell in a mask
	BackgroundValue = 0
)

// Params holds the segmentation policy
type Params struct {
	HueMin        int
	HueMax        int
	SaturationMin int
	ValueMin      int
	KernelSize    int
	ChannelOrder  config.ChannelOrder
}

// DefaultParams returns the flame band: hue 0-35, saturation and value at least 50, 5x5 cleanup
func DefaultParams() Params {
	return ParamsFromConfig(config.Defaults().Segmentation)
}

// ParamsFromConfig converts the config section into Params
func ParamsFromConfig(c config.SegmentationConfig) Params {
	return Params{
		HueMin:        c.HueMin,
		HueMax:        c.HueMax,
		SaturationMin: c.SaturationMin,
		ValueMin:      c.ValueMin,
		KernelSize:    c.KernelSize,
		ChannelOrder:  c.ChannelOrder,
	}
}

// Validate checks the params are within the HSV scales
func (p Params) Validate() error {
	if p.HueMin < 0 || p.HueMax > 179 || p.HueMin > p.HueMax {
		return fmt.Errorf("invalid hue range [%d,%d]", p.HueMin, p.HueMax)
	}
	if p.SaturationMin < 0 || p.SaturationMin > 255 {
		return fmt.Errorf("invalid saturation floor %d", p.SaturationMin)
	}
	if p.ValueMin < 0 || p.ValueMin > 255 {
		return fmt.Errorf("invalid value floor %d", p.ValueMin)
	}
	if p.KernelSize < 1 {
		return fmt.Errorf("invalid kernel size %d", p.KernelSize)
	}
	if _, err := hsvConversion(p.ChannelOrder); err != nil {
		return err
	}
	return nil
}

// Segmenter turns frames into flame masks. It holds no per-frame state;
// the same frame always yields the same mask.
type Segmenter struct {
	params Params
	toHSV  gocv.ColorConversionCode
	lower  gocv.Scalar
	upper  gocv.Scalar
	kernel gocv.Mat
}

// New creates a Segmenter. Close releases the structuring element.
func New(p Params) (*Segmenter, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	code, _ := hsvConversion(p.ChannelOrder)

	return &Segmenter{
		params: p,
		toHSV:  code,
		lower:  gocv.NewScalar(float64(p.HueMin), float64(p.SaturationMin), float64(p.ValueMin), 0),
		upper:  gocv.NewScalar(float64(p.HueMax), 255, 255, 0),
		kernel: gocv.GetStructuringElement(gocv.MorphRect, image.Pt(p.KernelSize, p.KernelSize)),
	}, nil
}

// Params returns the policy this Segmenter was built with
func (s *Segmenter) Params() Params {
	return s.params
}

// Segment returns a CV_8UC1 mask the size of frame holding only FlameValue
// and BackgroundValue. Gray and 4-channel frames are converted to color
// first. An empty frame, or one with any other channel count, yields an empty
// mask. The caller owns the returned Mat.
func (s *Segmenter) Segment(frame gocv.Mat) gocv.Mat {
	mask := gocv.NewMat()
	if frame.Empty() {
		return mask
	}

	color, release, ok := ToColor(frame, s.params.ChannelOrder)
	if !ok {
		return mask
	}
	defer release()

	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(color, &hsv, s.toHSV)

	raw := gocv.NewMat()
	defer raw.Close()
	gocv.InRangeWithScalar(hsv, s.lower, s.upper, &raw)

	opened := gocv.NewMat()
	defer opened.Close()
	gocv.MorphologyEx(raw, &opened, gocv.MorphOpen, s.kernel)
	gocv.MorphologyEx(opened, &mask, gocv.MorphClose, s.kernel)

	return mask
}

// ToColor returns a 3-channel view of frame in the given order, converting
// gray and 4-channel frames. It reports false for any other channel count.
// release frees the converted Mat, if one was made.
func ToColor(frame gocv.Mat, order config.ChannelOrder) (gocv.Mat, func(), bool) {
	var code gocv.ColorConversionCode
	switch frame.Channels() {
	case 3:
		return frame, func() {}, true
	case 4:
		code = gocv.ColorBGRAToBGR
		if order == config.ChannelOrderRGB {
			code = gocv.ColorRGBAToRGB
		}
	case 1:
		code = gocv.ColorGrayToBGR
		if order == config.ChannelOrderRGB {
			code = gocv.ColorGrayToRGB
		}
	default:
		return frame, func() {}, false
	}

	converted := gocv.NewMat()
	gocv.CvtColor(frame, &converted, code)
	return converted, func() { converted.Close() }, true
}

// Close releases the structuring element
func (s *Segmenter) Close() error {
	return s.kernel.Close()
}

// FlamePixels counts the flame cells of mask
func FlamePixels(mask gocv.Mat) int {
	if mask.Empty() {
		return 0
	}
	return gocv.CountNonZero(mask)
}

// Coverage returns the fraction of mask cells marked as flame
func Coverage(mask gocv.Mat) float64 {
	total := mask.Rows() * mask.Cols()
	if mask.Empty() || total == 0 {
		return 0
	}
	return float64(gocv.CountNonZero(mask)) / float64(total)
}

func hsvConversion(order config.ChannelOrder) (gocv.ColorConversionCode, error) {
	switch order {
	case config.ChannelOrderBGR, "":
		return gocv.ColorBGRToHSV, nil
	case config.ChannelOrderRGB:
		return gocv.ColorRGBToHSV, nil
	default:
		return 0, fmt.Errorf("unknown channel order %q", order)
	}
}
