package output

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bryanchriswhite/FlameSeg/internal/config"
	"github.com/bryanchriswhite/FlameSeg/internal/overlay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func solid(t *testing.T, w, h int, b, g, r float64) gocv.Mat {
	t.Helper()
	m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(b, g, r, 0), h, w, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestVideoFileOutputRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.avi")
	out := NewVideoFileOutput(Config{Path: path, FourCC: "MJPG", Width: 32, Height: 24, FPS: 10})

	require.NoError(t, out.Start())
	assert.True(t, out.IsRunning())
	assert.Error(t, out.Start(), "second Start is rejected")

	frame := solid(t, 32, 24, 0, 170, 255)
	for i := 0; i < 3; i++ {
		require.NoError(t, out.WriteFrame(frame))
	}
	assert.Equal(t, uint64(3), out.(*VideoFileOutput).FrameCount())

	require.NoError(t, out.Stop())
	require.NoError(t, out.Stop(), "Stop is idempotent")
	assert.False(t, out.IsRunning())

	vc, err := gocv.VideoCaptureFile(path)
	require.NoError(t, err)
	defer vc.Close()

	img := gocv.NewMat()
	defer img.Close()
	n := 0
	for vc.Read(&img) && !img.Empty() {
		assert.Equal(t, 32, img.Cols())
		assert.Equal(t, 24, img.Rows())
		n++
	}
	assert.Equal(t, 3, n)
}

func TestVideoFileOutputRejects(t *testing.T) {
	dir := t.TempDir()

	out := NewVideoFileOutput(Config{Path: filepath.Join(dir, "a.avi"), FourCC: "MJPG", Width: 8, Height: 8, FPS: 10})
	assert.ErrorIs(t, out.WriteFrame(solid(t, 8, 8, 0, 0, 0)), ErrNotRunning)

	bad := NewVideoFileOutput(Config{Path: filepath.Join(dir, "b.avi"), FourCC: "MJPEG", Width: 8, Height: 8, FPS: 10})
	assert.Error(t, bad.Start())

	missingDir := NewVideoFileOutput(Config{Path: filepath.Join(dir, "nope", "c.avi"), FourCC: "MJPG", Width: 8, Height: 8, FPS: 10})
	assert.Error(t, missingDir.Start())

	require.NoError(t, out.Start())
	defer out.Stop()
	assert.Error(t, out.WriteFrame(solid(t, 16, 8, 0, 0, 0)), "size mismatch")
}

func TestMJPEGOutputEncodesFrames(t *testing.T) {
	m := NewMJPEGOutput(Config{Width: 16, Height: 16, Quality: 95})
	assert.ErrorIs(t, m.WriteFrame(solid(t, 16, 16, 0, 0, 255)), ErrNotRunning)

	require.NoError(t, m.Start())
	defer m.Stop()

	require.NoError(t, m.WriteFrame(solid(t, 16, 16, 0, 0, 255)))
	assert.Equal(t, uint64(1), m.FrameCount())

	img, err := jpeg.Decode(bytes.NewReader(m.LastFrame()))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 16, 16), img.Bounds())

	r, g, b, _ := img.At(8, 8).RGBA()
	assert.Greater(t, r>>8, uint32(200), "BGR red decodes as red")
	assert.Less(t, g>>8, uint32(60))
	assert.Less(t, b>>8, uint32(60))
}

func TestMJPEGOutputRGBOrder(t *testing.T) {
	m := NewMJPEGOutput(Config{Width: 16, Height: 16, ChannelOrder: config.ChannelOrderRGB})
	require.NoError(t, m.Start())
	defer m.Stop()

	// (255,0,0) in RGB order is red
	require.NoError(t, m.WriteFrame(solid(t, 16, 16, 255, 0, 0)))
	img, err := jpeg.Decode(bytes.NewReader(m.LastFrame()))
	require.NoError(t, err)

	r, _, b, _ := img.At(8, 8).RGBA()
	assert.Greater(t, r>>8, uint32(200))
	assert.Less(t, b>>8, uint32(60))
}

func TestMJPEGOutputRendersOverlay(t *testing.T) {
	plain := NewMJPEGOutput(Config{Width: 200, Height: 60})
	withHUD := NewMJPEGOutput(Config{Width: 200, Height: 60})
	hud := overlay.NewHUD()
	hud.UpdateStats(3, 0.5)
	withHUD.SetOverlay(hud)

	frame := solid(t, 200, 60, 0, 0, 0)
	for _, m := range []*MJPEGOutput{plain, withHUD} {
		require.NoError(t, m.Start())
		require.NoError(t, m.WriteFrame(frame))
		require.NoError(t, m.Stop())
	}
	assert.NotEqual(t, plain.LastFrame(), withHUD.LastFrame())
}

func TestMJPEGStreamHandler(t *testing.T) {
	m := NewMJPEGOutput(Config{Width: 8, Height: 8})
	require.NoError(t, m.Start())
	require.NoError(t, m.WriteFrame(solid(t, 8, 8, 0, 170, 255)))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/stream", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	m.GetHTTPHandler()(rec, req)

	assert.Equal(t, "multipart/x-mixed-replace; boundary=frame", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "--frame\r\nContent-Type: image/jpeg\r\n"))
	assert.Equal(t, 0, m.ClientCount())

	require.NoError(t, m.Stop())
}

func TestMJPEGStatsHandler(t *testing.T) {
	m := NewMJPEGOutput(Config{Width: 8, Height: 8, FPS: 25})
	rec := httptest.NewRecorder()
	m.GetStatsHandler()(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

	body := rec.Body.String()
	assert.Contains(t, body, "Stopped")
	assert.Contains(t, body, "8x8 @ 25.00 FPS")
}
