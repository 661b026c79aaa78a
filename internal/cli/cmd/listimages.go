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

// NewListImagesCommand creates the list-images command.
func NewListImagesCommand(a *cli.App) *cobra.Command {
	var selectGlob string

	listCmd := &cobra.Command{
		Use:   "list-images REGISTRY",
		Short: "List images and their tags, oldest tag first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			host := args[0]
			pattern, err := rules.Glob(selectGlob)
			if err != nil {
				return err
			}
			imageRules := rules.ImageRuleSet{{Name: "select", Pattern: pattern}}
			tagRules := rules.TagRuleSet{rules.ExcludeNaked()}

			browser := registry.NewBrowser(newClient(a.Config, host), imageRules, tagRules)
			imageTags, err := browser.ImageTags(cmd.Context(), true)
			if err != nil {
				return err
			}
			fmt.Println("---")
			return yaml.NewEncoder(os.Stdout).Encode(imageTags)
		},
	}

	listCmd.Flags().StringVar(&selectGlob, "select", "*", "select a filter of images to show (glob syntax)")
	return listCmd
}
