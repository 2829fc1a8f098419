// Package composite tints the flame pixels of a frame for display and recording.
package composite

import (
	"fmt"
	"math"

	"github.com/bryanchriswhite/FlameSeg/internal/config"
	"github.com/bryanchriswhite/FlameSeg/internal/segment"
	"gocv.io/x/gocv"
)

// Params holds the blend weights and highlight color
type Params struct {
	FrameWeight     float64
	HighlightWeight float64
	Highlight       config.RGB
	ChannelOrder    config.ChannelOrder
}

// DefaultParams returns 0.7 original + 0.3 pure red in BGR order
func DefaultParams() Params {
	return ParamsFromConfig(config.Defaults().Composite, config.ChannelOrderBGR)
}

// ParamsFromConfig converts the config section into Params
func ParamsFromConfig(c config.CompositeConfig, order config.ChannelOrder) Params {
	return Params{
		FrameWeight:     c.FrameWeight,
		HighlightWeight: c.HighlightWeight,
		Highlight:       c.Highlight,
		ChannelOrder:    order,
	}
}

// Compositor blends a solid highlight into a frame wherever a mask marks flame
type Compositor struct {
	params    Params
	highlight gocv.Scalar
}

// New creates a Compositor
func New(p Params) (*Compositor, error) {
	if p.FrameWeight < 0 || p.FrameWeight > 1 {
		return nil, fmt.Errorf("invalid frame weight %g", p.FrameWeight)
	}
	if p.HighlightWeight < 0 || p.HighlightWeight > 1 {
		return nil, fmt.Errorf("invalid highlight weight %g", p.HighlightWeight)
	}
	if math.Abs(p.FrameWeight+p.HighlightWeight-1) > config.WeightTolerance {
		return nil, fmt.Errorf("frame weight %g and highlight weight %g do not sum to 1", p.FrameWeight, p.HighlightWeight)
	}

	h := p.Highlight
	var s gocv.Scalar
	switch p.ChannelOrder {
	case config.ChannelOrderBGR, "":
		s = gocv.NewScalar(float64(h.B), float64(h.G), float64(h.R), 0)
	case config.ChannelOrderRGB:
		s = gocv.NewScalar(float64(h.R), float64(h.G), float64(h.B), 0)
	default:
		return nil, fmt.Errorf("unknown channel order %q", p.ChannelOrder)
	}

	return &Compositor{params: p, highlight: s}, nil
}

// Composite returns FrameWeight*frame + HighlightWeight*highlight, where the
// highlight image equals frame except under the mask, where it is the solid
// highlight color. The weights sum to one, so outside the mask the output
// equals frame.
//
// Gray and 4-channel frames are converted to 3-channel color first, so the
// output always has three channels. Frames with any other channel count
// yield an empty Mat. A mask whose size differs from frame is ignored. The
// caller owns the returned Mat.
func (c *Compositor) Composite(frame, mask gocv.Mat) gocv.Mat {
	out := gocv.NewMat()
	if frame.Empty() {
		return out
	}

	color, release, ok := segment.ToColor(frame, c.params.ChannelOrder)
	if !ok {
		return out
	}
	defer release()

	highlight := color.Clone()
	defer highlight.Close()

	if !mask.Empty() && mask.Rows() == color.Rows() && mask.Cols() == color.Cols() {
		solid := gocv.NewMatWithSizeFromScalar(c.highlight, color.Rows(), color.Cols(), color.Type())
		defer solid.Close()
		solid.CopyToWithMask(&highlight, mask)
	}

	gocv.AddWeighted(color, c.params.FrameWeight, highlight, c.params.HighlightWeight, 0, &out)
	return out
}
