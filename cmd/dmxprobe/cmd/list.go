package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/asoronow/laser-controller/pkg/usbdmx"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List attached candidate DMX transmitters",
	Long: `Scan the host for USB devices matching known DMX transmitter VID/PID
pairs and print a summary. Use this to verify the adapter is visible
before launching a discovery run.`,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	infos, err := usbdmx.Enumerate(ctx)
	if err != nil {
		return fmt.Errorf("enumerate devices: %w", err)
	}

	if len(infos) == 0 {
		fmt.Println("No candidate devices found. Replug the adapter and close any vendor software.")
		return nil
	}

	fmt.Println("Detected candidate devices:")
	for _, info := range infos {
		fmt.Printf("  - %s", info.Label())
		if info.SerialNumber != "" {
			fmt.Printf(" serial=%s", info.SerialNumber)
		}
		if verbose && info.Manufacturer != "" {
			fmt.Printf(" manufacturer=%q", info.Manufacturer)
		}
		fmt.Println()
	}

	return nil
}
