package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/asoronow/laser-controller/pkg/probe"
	"github.com/asoronow/laser-controller/pkg/usbdmx"
)

var (
	runVID       uint16
	runPID       uint16
	runConfig    int
	runInterface int
	runAlt       int
	runCatalog   string
	runFrames    int
	runSettle    time.Duration
	runSim       bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute the discovery catalog against the device",
	Long: `Open the transmitter, then execute every catalog strategy in priority
order: claim the interface, replay the activation sequence, transmit the
candidate framing, and pause for observation. Watch the fixture while
this runs; the final report ranks transport outcomes but only you can
confirm a physical effect.

A missing device or refused configuration aborts the run. Individual
trial failures are expected and informative: they are recorded and the
run continues.

Examples:
  dmxprobe run                                  # Built-in catalog, reference device
  dmxprobe run --catalog hypotheses.yaml        # Operator-supplied hypotheses
  dmxprobe run --frames 50 --settle 1s          # Shorter trials, longer observation
  dmxprobe run --sim -v                         # No hardware, simulator session`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Uint16Var(&runVID, "vid", usbdmx.VendorIDSoundSwitch, "USB vendor id")
	runCmd.Flags().Uint16Var(&runPID, "pid", usbdmx.ProductIDMicroDMX, "USB product id")
	runCmd.Flags().IntVar(&runConfig, "config", 1, "USB configuration number")
	runCmd.Flags().IntVar(&runInterface, "interface", 0, "interface number to claim")
	runCmd.Flags().IntVar(&runAlt, "alt", 0, "alternate setting")
	runCmd.Flags().StringVarP(&runCatalog, "catalog", "c", "", "YAML hypotheses file (default: built-in catalog)")
	runCmd.Flags().IntVar(&runFrames, "frames", 0, "override per-trial frame count (0 = catalog values)")
	runCmd.Flags().DurationVar(&runSettle, "settle", 0, "observation window per trial (0 = derived from refresh interval)")
	runCmd.Flags().BoolVar(&runSim, "sim", false, "use an in-memory simulator session instead of hardware")
}

func openSession() (usbdmx.Session, error) {
	identity := usbdmx.DeviceIdentity{VendorID: runVID, ProductID: runPID}
	if runSim {
		return usbdmx.NewSimSession(identity), nil
	}
	return usbdmx.Open(identity)
}

func runRun(cmd *cobra.Command, args []string) error {
	catalog, err := loadCatalog(runCatalog)
	if err != nil {
		return err
	}
	if runFrames > 0 {
		catalog, err = capFrames(catalog, runFrames)
		if err != nil {
			return err
		}
	}

	// Fatal startup conditions: no session, no run.
	sess, err := openSession()
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := sess.Configure(runConfig); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := probe.DefaultConfig()
	cfg.Interface = runInterface
	cfg.AltSetting = runAlt
	cfg.SettleDelay = runSettle

	runner := probe.NewRunner(sess, probe.NewSignalTimer(), cfg)

	progress := make(chan probe.Progress, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for p := range progress {
			switch p.Phase {
			case "trial":
				fmt.Printf("[%d/%d] %s  >>> WATCH THE FIXTURE <<<\n", p.Trial+1, p.Total, p.Strategy)
			case "done":
				fmt.Printf("Catalog exhausted: %d trials, %d transport-ok.\n", p.Total, p.OK)
			}
		}
	}()

	fmt.Printf("Running %d strategies against %04X:%04X\n", catalog.Len(), runVID, runPID)
	report, runErr := runner.Run(ctx, catalog, progress)
	close(progress)
	<-done

	if verbose {
		for _, res := range report.Results() {
			if res.Warning != nil {
				fmt.Printf("warning: trial %s: %v\n", res.Strategy.Name, res.Warning)
			}
		}
	}

	fmt.Println()
	fmt.Print(report.Summarize())

	if runErr != nil {
		return fmt.Errorf("run stopped early: %w", runErr)
	}
	return nil
}

// capFrames rewrites the catalog with a uniform per-trial frame count.
func capFrames(catalog *probe.Catalog, frames int) (*probe.Catalog, error) {
	entries := catalog.Entries()
	for i := range entries {
		entries[i].Frames = frames
	}
	return probe.NewCatalog(entries)
}
