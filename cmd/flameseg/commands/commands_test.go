package commands

import (
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/bryanchriswhite/FlameSeg/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func execute(t *testing.T, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func TestConfigSetAndGet(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")

	require.NoError(t, execute(t, "--config", cfgPath, "config", "set", "segmentation.hue_max", "25"))

	mgr, err := config.NewManager(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, 25, mgr.Get().Segmentation.HueMax)

	assert.Error(t, execute(t, "--config", cfgPath, "config", "set", "segmentation.hue_max", "500"))
	assert.Error(t, execute(t, "--config", cfgPath, "config", "set", "no_such_key", "1"))
	assert.Error(t, execute(t, "--config", cfgPath, "config", "get", "no_such_key"))
	assert.NoError(t, execute(t, "--config", cfgPath, "config", "get", "output.fourcc"))
	assert.NoError(t, execute(t, "--config", cfgPath, "config", "show", "--format", "json"))
	assert.Error(t, execute(t, "--config", cfgPath, "config", "show", "--format", "xml"))
}

func TestImageCommand(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	in := filepath.Join(dir, "in.png")
	out := filepath.Join(dir, "out.png")
	maskOut := filepath.Join(dir, "mask.png")

	// Left half orange, right half blue
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 0, 0, 0), 20, 40, gocv.MatTypeCV8UC3)
	defer img.Close()
	left := img.Region(image.Rect(0, 0, 20, 20))
	left.SetTo(gocv.NewScalar(0, 170, 255, 0))
	left.Close()
	require.True(t, gocv.IMWrite(in, img))

	require.NoError(t, execute(t, "--config", cfgPath, "image", in, out, "--mask", maskOut))

	result := gocv.IMRead(out, gocv.IMReadColor)
	defer result.Close()
	require.False(t, result.Empty())
	assert.Equal(t, 40, result.Cols())
	assert.Equal(t, 20, result.Rows())

	tinted := result.GetVecbAt(10, 5)
	assert.InDelta(t, 119, int(tinted[1]), 1)
	assert.InDelta(t, 255, int(tinted[2]), 1)

	untouched := result.GetVecbAt(10, 35)
	assert.Equal(t, uint8(255), untouched[0])
	assert.Equal(t, uint8(0), untouched[2])

	mask := gocv.IMRead(maskOut, gocv.IMReadGrayScale)
	defer mask.Close()
	assert.Equal(t, uint8(255), mask.GetUCharAt(10, 5))
	assert.Equal(t, uint8(0), mask.GetUCharAt(10, 35))

	assert.Error(t, execute(t, "--config", cfgPath, "image", filepath.Join(dir, "missing.png"), out, "--mask", ""))
}

func TestSegmentCommand(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	in := filepath.Join(dir, "in.avi")
	out := filepath.Join(dir, "out.avi")

	w, err := gocv.VideoWriterFile(in, "MJPG", 10, 16, 16, true)
	require.NoError(t, err)
	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 170, 255, 0), 16, 16, gocv.MatTypeCV8UC3)
	defer frame.Close()
	for i := 0; i < 4; i++ {
		require.NoError(t, w.Write(frame))
	}
	require.NoError(t, w.Close())

	require.NoError(t, execute(t, "--config", cfgPath, "segment", in, out, "--fourcc", "MJPG"))

	vc, err := gocv.VideoCaptureFile(out)
	require.NoError(t, err)
	defer vc.Close()

	img := gocv.NewMat()
	defer img.Close()
	n := 0
	for vc.Read(&img) && !img.Empty() {
		assert.Equal(t, 16, img.Cols())
		n++
	}
	assert.Equal(t, 4, n)

	// Flag overrides are not persisted
	mgr, err := config.NewManager(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "XVID", mgr.Get().Output.FourCC)
}

func TestSegmentMissingInput(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.avi")
	err := execute(t, "--config", filepath.Join(dir, "config.yaml"), "segment", filepath.Join(dir, "missing.avi"), out)
	require.Error(t, err)
	assert.NoFileExists(t, out)
}

// resetLogLevel restores --log-level to its unset state once t finishes
func resetLogLevel(t *testing.T) {
	t.Helper()
	f := rootCmd.PersistentFlags().Lookup("log-level")
	t.Cleanup(func() {
		f.Value.Set("")
		f.Changed = false
	})
}

func TestInvalidLogLevel(t *testing.T) {
	resetLogLevel(t)
	err := execute(t, "--config", filepath.Join(t.TempDir(), "config.yaml"), "--log-level", "loud", "config", "path")
	assert.Error(t, err)
}

func TestEmptyLogLevelFallsBackToConfig(t *testing.T) {
	resetLogLevel(t)
	dir := t.TempDir()
	notes := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(notes, []byte("not a picture\n"), 0644))

	err := execute(t, "--config", filepath.Join(dir, "config.yaml"), "--log-level=", "image", notes, filepath.Join(dir, "out.png"), "--mask", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not an image")
}

func TestImageCommandRejectsNonImages(t *testing.T) {
	dir := t.TempDir()
	notes := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(notes, []byte("not a picture\n"), 0644))

	err := execute(t, "--config", filepath.Join(dir, "config.yaml"), "image", notes, filepath.Join(dir, "out.png"), "--mask", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not an image")
}
