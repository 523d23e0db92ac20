package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/asoronow/laser-controller/pkg/dmx"
	"github.com/asoronow/laser-controller/pkg/probe"
	"github.com/asoronow/laser-controller/pkg/usbdmx"
)

var (
	blackoutFrames int
	blackoutSim    bool
)

var blackoutCmd = &cobra.Command{
	Use:   "blackout",
	Short: "Send all-zero frames to quiet the fixture",
	Long: `Send a burst of all-zero DMX frames using the highest-priority catalog
strategy. Run this after a discovery session so the fixture is not left
holding the last trial pattern.`,
	RunE: runBlackout,
}

func init() {
	rootCmd.AddCommand(blackoutCmd)
	blackoutCmd.Flags().IntVar(&blackoutFrames, "frames", 10, "number of blackout frames")
	blackoutCmd.Flags().BoolVar(&blackoutSim, "sim", false, "use an in-memory simulator session instead of hardware")
}

func runBlackout(cmd *cobra.Command, args []string) error {
	identity := usbdmx.ReferenceIdentity()
	var sess usbdmx.Session
	if blackoutSim {
		sess = usbdmx.NewSimSession(identity)
	} else {
		opened, err := usbdmx.Open(identity)
		if err != nil {
			return err
		}
		sess = opened
	}
	defer sess.Close()

	if err := sess.Configure(1); err != nil {
		return err
	}
	if err := sess.Claim(0, 0); err != nil {
		return err
	}
	defer sess.Release()

	s := probe.DefaultCatalog().Entries()[0]
	frame := dmx.Blackout(s.Layout)
	timer := probe.NewSignalTimer()

	for i := 0; i < blackoutFrames; i++ {
		if err := timer.EmitBreakCycle(sess, s.Break, s.Timing); err != nil {
			return fmt.Errorf("break cycle: %w", err)
		}
		if _, err := sess.BulkWrite(s.Endpoint, frame, 500*time.Millisecond); err != nil {
			return fmt.Errorf("frame %d: %w", i+1, err)
		}
		timer.WaitRefresh(s.Timing)
	}

	fmt.Printf("Sent %d blackout frames via %s.\n", blackoutFrames, s.Name)
	return nil
}
