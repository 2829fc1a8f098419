package commands

import (
	"fmt"
	"os"

	"github.com/bryanchriswhite/FlameSeg/internal/config"
	"github.com/bryanchriswhite/FlameSeg/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "flameseg",
		Short: "FlameSeg - flame segmentation for video",
		Long: `FlameSeg finds flame-colored regions in a video by thresholding every
frame in HSV color space, tints the detected regions red and writes the
annotated video.

Features:
  • HSV threshold with morphological cleanup
  • Red highlight blended over detected flame
  • Frame-exact output (same size, rate and length as the input)
  • Optional live MJPEG preview with run status
  • Persistent configuration with per-run flag overrides`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initLogger()
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/flameseg/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("pretty", false, "human-readable console logs instead of JSON (default when stderr is a terminal)")

	// Bind flags to viper
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("pretty", rootCmd.PersistentFlags().Lookup("pretty"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// initLogger applies --log-level/--pretty before the config file is read so
// that loading it is already logged at the requested level
func initLogger() error {
	level := viper.GetString("log_level")
	if level != "" && !logger.IsValidLevel(level) {
		return fmt.Errorf("invalid log level: %s (use: debug, info, warn, error)", level)
	}
	if level == "" {
		level = string(logger.InfoLevel)
	}
	logger.Init(level, prettyLogs())
	return nil
}

func prettyLogs() bool {
	if viper.IsSet("pretty") {
		return viper.GetBool("pretty")
	}
	return logger.IsTerminal()
}

// loadConfig opens the config file and applies the given flag overrides on
// top of it. The log level from the file is honored unless --log-level is given.
func loadConfig(overrides ...*viper.Viper) (*config.Manager, error) {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	for _, v := range append([]*viper.Viper{viper.GetViper()}, overrides...) {
		if err := configMgr.ApplyOverrides(v); err != nil {
			return nil, fmt.Errorf("invalid flag value: %w", err)
		}
	}

	if viper.GetString("log_level") == "" {
		logger.Init(configMgr.Get().LogLevel, prettyLogs())
	}
	return configMgr, nil
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}
