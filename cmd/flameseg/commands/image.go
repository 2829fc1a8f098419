package commands

import (
	"fmt"
	"strings"

	"github.com/bryanchriswhite/FlameSeg/internal/logger"
	"github.com/bryanchriswhite/FlameSeg/internal/segment"
	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gocv.io/x/gocv"
)

var imageCmd = &cobra.Command{
	Use:   "image INPUT OUTPUT",
	Short: "Segment flame in a single image",
	Long: `Segment one still image with the same settings as the segment command and
write the highlighted image. Useful for tuning thresholds on a single frame.`,
	Example: `  # Highlight flame in a snapshot
  flameseg image frame.png frame_seg.png

  # Also save the binary mask
  flameseg image frame.png frame_seg.png --mask frame_mask.png --hue-max 30`,
	Args: cobra.ExactArgs(2),
	RunE: runImage,
}

var (
	maskPath   string
	imageFlags = viper.New()
)

func init() {
	rootCmd.AddCommand(imageCmd)
	imageCmd.Flags().StringVar(&maskPath, "mask", "", "also write the binary flame mask to this path")
	addThresholdFlags(imageCmd, imageFlags)
}

func runImage(cmd *cobra.Command, args []string) error {
	input, outputPath := args[0], args[1]

	configMgr, err := loadConfig(imageFlags)
	if err != nil {
		return err
	}

	seg, comp, err := newProcessors(configMgr.Get())
	if err != nil {
		return err
	}
	defer seg.Close()

	mtype, err := mimetype.DetectFile(input)
	if err != nil {
		return fmt.Errorf("failed to read image %s: %w", input, err)
	}
	if !strings.HasPrefix(mtype.String(), "image/") {
		return fmt.Errorf("%s is %s, not an image; use segment for videos", input, mtype.String())
	}

	img := gocv.IMRead(input, gocv.IMReadColor)
	defer img.Close()
	if img.Empty() {
		return fmt.Errorf("failed to read image %s", input)
	}

	mask := seg.Segment(img)
	defer mask.Close()

	out := comp.Composite(img, mask)
	defer out.Close()

	if !gocv.IMWrite(outputPath, out) {
		return fmt.Errorf("failed to write image %s", outputPath)
	}
	if maskPath != "" && !gocv.IMWrite(maskPath, mask) {
		return fmt.Errorf("failed to write mask %s", maskPath)
	}

	logger.WithComponent("segment").Debug().
		Str("input", input).
		Str("output", outputPath).
		Int("flame_pixels", segment.FlamePixels(mask)).
		Msg("Image segmented")

	fmt.Printf("%s: %dx%d, flame coverage %.2f%%\n", outputPath, img.Cols(), img.Rows(), segment.Coverage(mask)*100)
	return nil
}
