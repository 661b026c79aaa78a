// the root command is the entrypoint for the regreport cli
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bnema/regreport/internal/cli"
	"github.com/bnema/regreport/internal/common"
	"github.com/bnema/regreport/pkg/logger"
	"github.com/bnema/regreport/pkg/registry"
)

// NewRootCommand creates the root command and wires up the subcommands.
func NewRootCommand(a *cli.App) *cobra.Command {
	var cfgFile string
	var debug, silent bool

	rootCmd := &cobra.Command{
		Use:   "regreport",
		Short: "Browse, report on and maintain images of a docker registry",
		Long: `regreport browses the catalog of a docker registry, filters images and
tags through declarative rules, and reports the packages installed in the
newest tag of every image to debmonitor. It also offers basic registry
maintenance: listing images and deleting tags by glob.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config, err := common.LoadConfig(cfgFile)
			if err != nil {
				return err
			}
			a.Config = config
			if debug {
				logger.GetLogger().SetLogLevel("debug")
			}
			if silent {
				logger.GetLogger().Silence()
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debugging")
	rootCmd.PersistentFlags().BoolVarP(&silent, "silent", "s", false, "don't log to console")
	rootCmd.MarkFlagsMutuallyExclusive("debug", "silent")

	rootCmd.AddCommand(
		NewReportCommand(a),
		NewListImagesCommand(a),
		NewListTagsCommand(a),
		NewDeleteTagsCommand(a),
		NewVersionCommand(a),
	)
	return rootCmd
}

// Execute runs the CLI and maps the outcome onto the process exit code:
// 0 all good, 1 unexpected error, 2 registry or sort abort, 3 per-image
// report failures.
func Execute(a *cli.App) int {
	if err := NewRootCommand(a).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return exitCodeFor(err)
	}
	return a.ExitCode
}

// exitCodeFor distinguishes classified registry pipeline aborts from
// unexpected errors.
func exitCodeFor(err error) int {
	var regErr *registry.RegistryError
	var sortErr *registry.SortError
	if errors.As(err, &regErr) || errors.As(err, &sortErr) {
		return 2
	}
	return 1
}
