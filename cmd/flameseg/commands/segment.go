package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bryanchriswhite/FlameSeg/internal/api"
	"github.com/bryanchriswhite/FlameSeg/internal/capture"
	"github.com/bryanchriswhite/FlameSeg/internal/composite"
	"github.com/bryanchriswhite/FlameSeg/internal/config"
	"github.com/bryanchriswhite/FlameSeg/internal/logger"
	"github.com/bryanchriswhite/FlameSeg/internal/output"
	"github.com/bryanchriswhite/FlameSeg/internal/overlay"
	"github.com/bryanchriswhite/FlameSeg/internal/pipeline"
	"github.com/bryanchriswhite/FlameSeg/internal/segment"
	"github.com/fatih/color"
	"github.com/pkg/browser"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// progressEvery is how often, in frames, a progress line is logged
const progressEvery = 100

var segmentCmd = &cobra.Command{
	Use:   "segment INPUT OUTPUT",
	Short: "Segment flame in a video and write the annotated result",
	Long: `Read every frame of INPUT, mark flame-colored pixels and write the frame
with those pixels tinted red to OUTPUT. The output has the same size, frame
rate and frame count as the input.

INPUT may also be device:N to read camera N until interrupted.

Threshold and encoder settings come from the config file; flags override them
for this run only.`,
	Example: `  # Segment with the configured thresholds
  flameseg segment fire.mp4 fire_seg.avi

  # Narrower hue band, MJPG codec
  flameseg segment fire.mp4 out.avi --hue-max 25 --fourcc MJPG

  # Record the first camera
  flameseg segment device:0 camera_seg.avi

  # Watch the run live at http://localhost:8080 and keep serving afterwards
  flameseg segment fire.mp4 out.avi --preview --wait`,
	Args: cobra.ExactArgs(2),
	RunE: runSegment,
}

// segmentFlags holds this command's flag bindings, keyed by config path
var segmentFlags = viper.New()

func init() {
	rootCmd.AddCommand(segmentCmd)

	f := segmentCmd.Flags()
	f.String("fourcc", "", "output codec four-character code (default from config, XVID)")
	f.Float64("fps", 0, "output frame rate (default is the input rate)")
	addThresholdFlags(segmentCmd, segmentFlags)
	f.Bool("preview", false, "serve a live MJPEG preview while processing")
	f.Int("port", 0, "preview server port (default from config, 8080)")
	f.Bool("wait", false, "with --preview, keep serving after the run until interrupted")
	f.Bool("open", false, "with --preview, open the viewer in the default browser")

	segmentFlags.BindPFlag("output.fourcc", f.Lookup("fourcc"))
	segmentFlags.BindPFlag("output.fps", f.Lookup("fps"))
	segmentFlags.BindPFlag("preview.enabled", f.Lookup("preview"))
	segmentFlags.BindPFlag("preview.port", f.Lookup("port"))
}

// addThresholdFlags registers the segmentation flags shared by segment and image
func addThresholdFlags(cmd *cobra.Command, v *viper.Viper) {
	f := cmd.Flags()
	f.Int("hue-min", 0, "lowest flame hue, 0-179")
	f.Int("hue-max", 0, "highest flame hue, 0-179")
	f.Int("sat-min", 0, "lowest flame saturation, 0-255")
	f.Int("val-min", 0, "lowest flame brightness, 0-255")
	f.Int("kernel", 0, "side of the square cleanup kernel in pixels")

	v.BindPFlag("segmentation.hue_min", f.Lookup("hue-min"))
	v.BindPFlag("segmentation.hue_max", f.Lookup("hue-max"))
	v.BindPFlag("segmentation.saturation_min", f.Lookup("sat-min"))
	v.BindPFlag("segmentation.value_min", f.Lookup("val-min"))
	v.BindPFlag("segmentation.kernel_size", f.Lookup("kernel"))
}

// newProcessors builds the segmenter and compositor from cfg. The caller
// closes the segmenter.
func newProcessors(cfg *config.Config) (*segment.Segmenter, *composite.Compositor, error) {
	seg, err := segment.New(segment.ParamsFromConfig(cfg.Segmentation))
	if err != nil {
		return nil, nil, fmt.Errorf("invalid segmentation settings: %w", err)
	}
	comp, err := composite.New(composite.ParamsFromConfig(cfg.Composite, cfg.Segmentation.ChannelOrder))
	if err != nil {
		seg.Close()
		return nil, nil, fmt.Errorf("invalid composite settings: %w", err)
	}
	return seg, comp, nil
}

func runSegment(cmd *cobra.Command, args []string) error {
	input, outputPath := args[0], args[1]
	log := logger.WithComponent("pipeline")

	configMgr, err := loadConfig(segmentFlags)
	if err != nil {
		return err
	}
	cfg := configMgr.Get()

	seg, comp, err := newProcessors(cfg)
	if err != nil {
		return err
	}
	defer seg.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	monitor := pipeline.NewMonitor()
	callbacks := []func(pipeline.FrameStats){
		func(s pipeline.FrameStats) {
			if (s.Index+1)%progressEvery == 0 {
				log.Info().Int("frames", s.Index+1).Float64("coverage", s.Coverage).Msg("Progress")
			}
		},
	}
	opts := []pipeline.DriverOption{pipeline.WithMonitor(monitor)}

	var server *api.Server
	if cfg.Preview.Enabled {
		mjpeg, hud := newPreview(input, cfg)
		if hud != nil {
			callbacks = append(callbacks, func(s pipeline.FrameStats) { hud.UpdateStats(s.Index, s.Coverage) })
		}
		if err := mjpeg.Start(); err != nil {
			return fmt.Errorf("failed to start preview: %w", err)
		}
		defer mjpeg.Stop()
		opts = append(opts, pipeline.WithTaps(mjpeg))

		server = api.NewServer(monitor, configMgr, mjpeg)
		go func() {
			if err := server.Start(cfg.Preview.Port); err != nil {
				logger.WithComponent("api").Error().Err(err).Msg("Preview server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			server.Shutdown(shutdownCtx)
		}()

		url := fmt.Sprintf("http://localhost:%d", cfg.Preview.Port)
		fmt.Printf("Live preview at %s\n", color.CyanString(url))
		if flagBool(cmd, "open") {
			if err := browser.OpenURL(url); err != nil {
				log.Warn().Err(err).Msg("Failed to open browser")
			}
		}
	}

	opts = append(opts, pipeline.WithFrameCallback(func(s pipeline.FrameStats) {
		for _, cb := range callbacks {
			cb(s)
		}
	}))

	driver := pipeline.NewDriver(pipeline.Options{
		InputPath:  input,
		OutputPath: outputPath,
		FourCC:     cfg.Output.FourCC,
		FPS:        cfg.Output.FPS,
	}, seg, comp, opts...)

	res, runErr := driver.Run(ctx)

	var openErr *pipeline.SourceOpenError
	if errors.As(runErr, &openErr) {
		return runErr
	}

	printResult(res)
	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			return fmt.Errorf("interrupted after %d frames; %s is incomplete", res.Frames, outputPath)
		}
		return runErr
	}

	if server != nil && flagBool(cmd, "wait") {
		fmt.Printf("Preview still available. Press %s to exit.\n", color.New(color.FgYellow, color.Bold).Sprint("Ctrl+C"))
		<-ctx.Done()
	}
	return nil
}

// newPreview builds the MJPEG tap and, when enabled, its HUD
func newPreview(input string, cfg *config.Config) (*output.MJPEGOutput, *overlay.Manager) {
	// Geometry is only used for the stats page; the driver reports a bad
	// input itself
	props, err := capture.Probe(input)
	if err != nil {
		logger.WithComponent("api").Debug().Err(err).Msg("Could not probe input for preview")
	}

	mjpeg := output.NewMJPEGOutput(output.Config{
		Width:        props.Width,
		Height:       props.Height,
		FPS:          props.FPS,
		Quality:      cfg.Preview.Quality,
		ChannelOrder: cfg.Segmentation.ChannelOrder,
	})

	var hud *overlay.Manager
	if cfg.Preview.HUD {
		hud = overlay.NewHUD()
	} else if len(cfg.Preview.Widgets) > 0 {
		hud = overlay.NewManager()
	}
	if hud != nil {
		hud.LoadFromConfig(cfg.Preview.Widgets)
		mjpeg.SetOverlay(hud)
	}
	return mjpeg, hud
}

func printResult(res *pipeline.Result) {
	if res == nil {
		return
	}
	label := color.New(color.Faint).SprintFunc()
	fmt.Printf("Run %s\n", color.CyanString(res.RunID))
	fmt.Printf("  %s %d (%dx%d)\n", label("Frames:       "), res.Frames, res.Properties.Width, res.Properties.Height)
	fmt.Printf("  %s %s\n", label("Flame frames: "), color.New(color.FgRed, color.Bold).Sprint(res.FlameFrames))
	fmt.Printf("  %s %.2f%%\n", label("Mean coverage:"), res.MeanCoverage*100)
	fmt.Printf("  %s %s\n", label("Elapsed:      "), res.Elapsed.Round(time.Millisecond))
}

func flagBool(cmd *cobra.Command, name string) bool {
	b, _ := cmd.Flags().GetBool(name)
	return b
}
