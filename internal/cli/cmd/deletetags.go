package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/bnema/regreport/internal/cli"
	"github.com/bnema/regreport/pkg/registry"
)

// NewDeleteTagsCommand creates the delete-tags command.
func NewDeleteTagsCommand(a *cli.App) *cobra.Command {
	var force bool

	deleteCmd := &cobra.Command{
		Use:   "delete-tags REGISTRY/IMAGE[:GLOB]",
		Short: "Delete the tags of an image matching a glob",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			host, name, glob, err := splitImageArg(args[0])
			if err != nil {
				return err
			}
			client := newClient(a.Config, host)
			ctx := cmd.Context()

			if !force {
				toRemove, err := client.Tags(ctx, name)
				if err != nil {
					return err
				}
				toRemove = registry.SelectTags(toRemove, glob)
				if len(toRemove) > 1 && !confirm(host, name, toRemove) {
					fmt.Println("Aborting.")
					return nil
				}
			}

			selected, failed, notFound, err := client.DeleteTags(ctx, name, glob)
			if err != nil {
				return err
			}
			printDeletions(host, name, selected, failed, notFound)
			if len(failed) > 0 && !force {
				return &registry.RegistryError{
					Path: fmt.Sprintf("/v2/%s/manifests", name),
					Err:  fmt.Errorf("could not remove tags: %s", strings.Join(failed, ",")),
				}
			}
			return nil
		},
	}

	deleteCmd.Flags().BoolVarP(&force, "force", "f", false, "do not ask for confirmation of the deletion")
	return deleteCmd
}

func confirm(host, name string, tags []string) bool {
	fmt.Printf("We're about to delete the following tags for image %s/%s:\n", host, name)
	for _, tag := range tags {
		fmt.Println(tag)
	}
	fmt.Print("Ok to proceed? (y/n) ")
	answer, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(answer), "y")
}

func printDeletions(host, name string, selected, failed, notFound []string) {
	failedSet := make(map[string]bool, len(failed))
	for _, tag := range failed {
		failedSet[tag] = true
	}
	notFoundSet := make(map[string]bool, len(notFound))
	for _, tag := range notFound {
		notFoundSet[tag] = true
	}
	for _, tag := range selected {
		fullname := fmt.Sprintf("%s/%s:%s", host, name, tag)
		switch {
		case failedSet[tag]:
			fmt.Printf("%-74s%s\n", fullname, color.RedString("[FAIL]"))
		case notFoundSet[tag]:
			fmt.Printf("%-74s%s\n", fullname, color.YellowString("[GONE]"))
		default:
			fmt.Printf("%-74s%s\n", fullname, color.GreenString("[DONE]"))
		}
	}
}
