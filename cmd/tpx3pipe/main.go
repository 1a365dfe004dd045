// Command tpx3pipe runs the scan/decode/merge/cluster/extract pipeline over
// a raw TPX3 packet stream, the CLI entry point wrapping internal/pipeline.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// rootOptions holds the flags shared by every subcommand, the same
// `-config` convention the teacher's flag.String("config", ...) establishes
// in its own main.go, generalized into a persistent Cobra flag.
type rootOptions struct {
	configFile string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "tpx3pipe",
		Short:         "Decode, merge, cluster, and extract neutron events from TPX3 packet streams",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "configuration file path (JSON or YAML)")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newServeCommand(opts))

	return cmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "tpx3pipe:", err)
		os.Exit(1)
	}
}
