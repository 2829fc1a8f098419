package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/bryanchriswhite/FlameSeg/internal/capture"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var probeCmd = &cobra.Command{
	Use:   "probe INPUT",
	Short: "Show video stream properties",
	Long:  `Open a video and print the size, frame rate, frame count and codec the output of a segment run will be based on.`,
	Example: `  # Show properties as YAML (default)
  flameseg probe fire.mp4

  # Show properties as JSON
  flameseg probe fire.mp4 --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runProbe,
}

var probeFormat string

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().StringVarP(&probeFormat, "format", "f", "yaml", "output format (yaml or json)")
}

func runProbe(cmd *cobra.Command, args []string) error {
	props, err := capture.Probe(args[0])
	if err != nil {
		return err
	}
	return printFormatted(props, probeFormat)
}

// printFormatted writes v to stdout as yaml or json
func printFormatted(v interface{}, format string) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(v)
	case "yaml":
		encoder := yaml.NewEncoder(os.Stdout)
		encoder.SetIndent(2)
		return encoder.Encode(v)
	default:
		return fmt.Errorf("unsupported format: %s (use 'yaml' or 'json')", format)
	}
}
