// Package cli wires the volsnap commands.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "volsnap",
		Short: "volsnap - block-volume snapshot server",
		Long: `volsnap turns live block volumes into immutable, content-addressable
snapshots held in an object store, and removes them again. It runs the
snapshot engine behind an HTTP admin surface.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "volsnap.yaml",
		"path to the configuration file")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
