package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bnema/regreport/internal/cli"
)

// NewVersionCommand creates the version command.
func NewVersionCommand(a *cli.App) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("regreport %s\n", a.Version)
		},
	}
}
