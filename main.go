package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	configFile string
	eventFile  string
)

func main() {
	root := &cobra.Command{
		Use:           "sstpoints",
		Short:         "Turn gridded SST granules into per-point Parquet artifacts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "optional config file; environment variables take precedence")
	root.PersistentFlags().StringVar(&eventFile, "event", "-", "path to the invocation event in JSON, or - for stdin")
	root.AddCommand(queryCmd(), explodeCmd(), writeCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
