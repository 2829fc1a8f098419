package composite

import (
	"image"
	"math"
	"testing"

	"github.com/bryanchriswhite/FlameSeg/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func frameOf(t *testing.T, rows, cols int, b, g, r float64) gocv.Mat {
	t.Helper()
	m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(b, g, r, 0), rows, cols, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { m.Close() })
	return m
}

func maskOf(t *testing.T, rows, cols int, flame image.Rectangle) gocv.Mat {
	t.Helper()
	m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), rows, cols, gocv.MatTypeCV8UC1)
	t.Cleanup(func() { m.Close() })
	if !flame.Empty() {
		roi := m.Region(flame)
		roi.SetTo(gocv.NewScalar(255, 0, 0, 0))
		roi.Close()
	}
	return m
}

func composite(t *testing.T, c *Compositor, frame, mask gocv.Mat) gocv.Mat {
	t.Helper()
	out := c.Composite(frame, mask)
	t.Cleanup(func() { out.Close() })
	return out
}

func assertPixel(t *testing.T, m gocv.Mat, row, col int, want [3]float64) {
	t.Helper()
	got := m.GetVecbAt(row, col)
	for ch := 0; ch < 3; ch++ {
		assert.LessOrEqual(t, math.Abs(float64(got[ch])-want[ch]), 1.0,
			"pixel %d,%d channel %d: got %d want %.1f", row, col, ch, got[ch], want[ch])
	}
}

func newCompositor(t *testing.T, p Params) *Compositor {
	t.Helper()
	c, err := New(p)
	require.NoError(t, err)
	return c
}

func TestCompositeIdentityOutsideMask(t *testing.T) {
	c := newCompositor(t, DefaultParams())

	colors := [][3]float64{{0, 170, 255}, {255, 0, 0}, {12, 34, 56}, {0, 0, 0}, {255, 255, 255}}
	for _, px := range colors {
		frame := frameOf(t, 4, 4, px[0], px[1], px[2])
		out := composite(t, c, frame, maskOf(t, 4, 4, image.Rectangle{}))

		for r := 0; r < 4; r++ {
			for col := 0; col < 4; col++ {
				assertPixel(t, out, r, col, px)
			}
		}
	}
}

func TestCompositeTintInsideMask(t *testing.T) {
	c := newCompositor(t, DefaultParams())

	frame := frameOf(t, 4, 4, 0, 170, 255)
	out := composite(t, c, frame, maskOf(t, 4, 4, image.Rect(0, 0, 4, 4)))

	// 0.7*(0,170,255) + 0.3*(0,0,255) in BGR
	want := [3]float64{0, 119, 255}
	for r := 0; r < 4; r++ {
		for col := 0; col < 4; col++ {
			assertPixel(t, out, r, col, want)
		}
	}
}

func TestCompositePartialMask(t *testing.T) {
	c := newCompositor(t, DefaultParams())

	frame := frameOf(t, 6, 6, 200, 100, 50)
	out := composite(t, c, frame, maskOf(t, 6, 6, image.Rect(0, 0, 3, 6)))

	assert.Equal(t, frame.Rows(), out.Rows())
	assert.Equal(t, frame.Cols(), out.Cols())
	assert.Equal(t, frame.Type(), out.Type())

	assertPixel(t, out, 0, 0, [3]float64{140, 70, 35 + 76.5})
	assertPixel(t, out, 5, 2, [3]float64{140, 70, 111.5})
	assertPixel(t, out, 0, 3, [3]float64{200, 100, 50})
	assertPixel(t, out, 5, 5, [3]float64{200, 100, 50})
}

func TestCompositeDoesNotModifyInput(t *testing.T) {
	c := newCompositor(t, DefaultParams())

	frame := frameOf(t, 4, 4, 10, 20, 30)
	_ = composite(t, c, frame, maskOf(t, 4, 4, image.Rect(0, 0, 4, 4)))

	assertPixel(t, frame, 2, 2, [3]float64{10, 20, 30})
}

func TestCompositeIgnoresMismatchedMask(t *testing.T) {
	c := newCompositor(t, DefaultParams())

	frame := frameOf(t, 4, 4, 10, 20, 30)
	out := composite(t, c, frame, maskOf(t, 8, 8, image.Rect(0, 0, 8, 8)))

	assertPixel(t, out, 1, 1, [3]float64{10, 20, 30})
}

func TestCompositeEmptyFrame(t *testing.T) {
	c := newCompositor(t, DefaultParams())

	empty := gocv.NewMat()
	defer empty.Close()

	out := composite(t, c, empty, empty)
	assert.True(t, out.Empty())
}

func TestCompositeGrayFrame(t *testing.T) {
	c := newCompositor(t, DefaultParams())
	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(100, 0, 0, 0), 2, 4, gocv.MatTypeCV8UC1)
	defer frame.Close()

	out := composite(t, c, frame, maskOf(t, 2, 4, image.Rect(0, 0, 2, 2)))
	require.Equal(t, 3, out.Channels())
	assertPixel(t, out, 0, 0, [3]float64{70, 70, 146.5})
	assertPixel(t, out, 0, 3, [3]float64{100, 100, 100})
}

func TestCompositeFourChannelFrame(t *testing.T) {
	c := newCompositor(t, DefaultParams())
	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 170, 255, 255), 2, 2, gocv.MatTypeCV8UC4)
	defer frame.Close()

	out := composite(t, c, frame, maskOf(t, 2, 2, image.Rect(0, 0, 2, 2)))
	require.Equal(t, 3, out.Channels())
	assertPixel(t, out, 1, 1, [3]float64{0, 119, 255})
}

func TestCompositeUnsupportedChannelCount(t *testing.T) {
	c := newCompositor(t, DefaultParams())
	frame := gocv.NewMatWithSize(2, 2, gocv.MatTypeCV8UC2)
	defer frame.Close()

	assert.True(t, composite(t, c, frame, maskOf(t, 2, 2, image.Rect(0, 0, 2, 2))).Empty())
}

func TestCompositeRGBOrder(t *testing.T) {
	p := DefaultParams()
	p.ChannelOrder = config.ChannelOrderRGB
	c := newCompositor(t, p)

	// RGB frame: channel 0 is red
	frame := frameOf(t, 2, 2, 0, 0, 0)
	out := composite(t, c, frame, maskOf(t, 2, 2, image.Rect(0, 0, 2, 2)))

	assertPixel(t, out, 0, 0, [3]float64{76.5, 0, 0})
}

func TestCompositeCustomHighlight(t *testing.T) {
	p := DefaultParams()
	p.Highlight = config.RGB{G: 255}
	p.FrameWeight = 0.5
	p.HighlightWeight = 0.5
	c := newCompositor(t, p)

	frame := frameOf(t, 2, 2, 100, 100, 100)
	out := composite(t, c, frame, maskOf(t, 2, 2, image.Rect(0, 0, 2, 2)))

	assertPixel(t, out, 1, 1, [3]float64{50, 177.5, 50})
}

func TestNewRejectsInvalidParams(t *testing.T) {
	p := DefaultParams()
	p.FrameWeight = 1.2
	_, err := New(p)
	assert.Error(t, err)

	p = DefaultParams()
	p.HighlightWeight = -0.5
	_, err = New(p)
	assert.Error(t, err)

	p = DefaultParams()
	p.FrameWeight = 0.5
	_, err = New(p)
	assert.Error(t, err, "weights must sum to one")

	p = DefaultParams()
	p.FrameWeight = 0.6
	p.HighlightWeight = 0.4
	_, err = New(p)
	assert.NoError(t, err)

	p = DefaultParams()
	p.ChannelOrder = "yuv"
	_, err = New(p)
	assert.Error(t, err)
}
