package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/asoronow/laser-controller/pkg/probe"
)

var catalogPath string

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Print the strategy catalog in trial order",
	Long: `Print every strategy the harness would try, in priority order. The
built-in catalog holds the accumulated hypotheses for the reference
device; --catalog substitutes hypotheses from a YAML file.`,
	RunE: runCatalog,
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.Flags().StringVarP(&catalogPath, "catalog", "c", "", "YAML hypotheses file (default: built-in catalog)")
}

func loadCatalog(path string) (*probe.Catalog, error) {
	if path == "" {
		return probe.DefaultCatalog(), nil
	}
	return probe.LoadCatalog(path)
}

func runCatalog(cmd *cobra.Command, args []string) error {
	catalog, err := loadCatalog(catalogPath)
	if err != nil {
		return err
	}

	fmt.Printf("Strategy catalog (%d entries, highest priority first):\n", catalog.Len())
	for i, s := range catalog.Entries() {
		fmt.Printf("%3d. %s\n", i+1, s)
	}
	return nil
}
