package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/bnema/regreport/internal/cli"
	"github.com/bnema/regreport/pkg/registry"
	"github.com/bnema/regreport/pkg/rules"
)

// NewListTagsCommand creates the list-tags command.
func NewListTagsCommand(a *cli.App) *cobra.Command {
	return &cobra.Command{
		Use:   "list-tags REGISTRY/IMAGE[:GLOB]",
		Short: "List the tags of one image, optionally narrowed by a glob",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			host, name, glob, err := splitImageArg(args[0])
			if err != nil {
				return err
			}
			tags, err := newClient(a.Config, host).Tags(cmd.Context(), name)
			if err != nil {
				return err
			}

			naked := rules.ExcludeNaked()
			var selected []string
			for _, tag := range registry.SelectTags(tags, glob) {
				if naked.Accepts(name, tag) {
					selected = append(selected, tag)
				}
			}
			fmt.Println("---")
			return yaml.NewEncoder(os.Stdout).Encode(map[string][]string{name: selected})
		},
	}
}
