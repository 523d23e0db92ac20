package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "dmxprobe",
	Short: "USB DMX512 protocol discovery harness",
	Long: `A structured probe harness for discovering the activation and framing
protocol of an undocumented USB DMX512 transmitter.

The harness works through a catalog of candidate protocols: for each one
it claims the device, replays an activation sequence, transmits DMX
frames with the candidate framing and timing, then pauses so an operator
watching the fixture can note any effect. Transport-level outcomes are
ranked in a final report; physical confirmation stays with the operator.

Examples:
  dmxprobe list                          # Enumerate candidate devices
  dmxprobe catalog                       # Print the strategy catalog
  dmxprobe run                           # Run discovery on 15E4:0053
  dmxprobe run --sim                     # Exercise the harness without hardware
  dmxprobe blackout                      # Send all-zero frames`,
	Version: "0.3.0",
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
