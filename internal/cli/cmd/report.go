package cmd

import (
	"fmt"
	"os"
	"sort"

	"github.com/Masterminds/semver/v3"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/bnema/regreport/internal/cli"
	"github.com/bnema/regreport/internal/common"
	"github.com/bnema/regreport/internal/debmonitor"
	"github.com/bnema/regreport/internal/reporter"
	"github.com/bnema/regreport/pkg/registry"
	"github.com/bnema/regreport/pkg/rules"
)

// NewReportCommand creates the report command, the main orchestrated run.
func NewReportCommand(a *cli.App) *cobra.Command {
	var (
		concurrency       int
		filterFile        string
		excludeNamespaces []string
		excludeTagRegexps []string
		noExcludeNaked    bool
		keep              bool
	)

	reportCmd := &cobra.Command{
		Use:   "report [REGISTRY]",
		Short: "Report the packages of every image's newest tag to debmonitor",
		Long: `Walks the registry catalog, keeps the images and tags the filter rules
accept, orders every image's tags chronologically and submits a debmonitor
report for the newest tag of each image.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config := a.Config
			host := config.Registry.URL
			if len(args) == 1 {
				host = args[0]
			}
			if host == "" {
				return fmt.Errorf("no registry given, pass one as argument or set Registry.url")
			}
			if cmd.Flags().Changed("concurrency") {
				config.Report.Concurrency = concurrency
			}
			if cmd.Flags().Changed("keep") {
				config.Report.KeepImages = keep
			}
			if cmd.Flags().Changed("filter-file") {
				config.Report.FilterFile = filterFile
			}
			config.Report.ExcludeNamespaces = append(config.Report.ExcludeNamespaces, excludeNamespaces...)
			config.Report.ExcludeTagPatterns = append(config.Report.ExcludeTagPatterns, excludeTagRegexps...)
			if noExcludeNaked {
				config.Report.IncludeNaked = true
			}

			imageRules, tagRules, err := buildRules(config.Report)
			if err != nil {
				return err
			}
			minVersion, err := semver.NewVersion(config.Report.MinDebianVersion)
			if err != nil {
				return fmt.Errorf("invalid minimum Debian version %q: %w", config.Report.MinDebianVersion, err)
			}

			reportDir := config.Report.ReportDir
			if reportDir == "" {
				reportDir, err = os.MkdirTemp("", "*-regreport")
				if err != nil {
					return fmt.Errorf("failed to create report directory: %w", err)
				}
				defer os.RemoveAll(reportDir)
			}

			browser := registry.NewBrowser(newClient(config, host), imageRules, tagRules)
			factory := func(ref string) reporter.Reporter {
				return debmonitor.New(ref, reportDir, minVersion)
			}
			opts := []reporter.Option{reporter.WithWidth(config.Report.Concurrency)}
			if config.Report.KeepImages {
				opts = append(opts, reporter.WithKeepImages())
			}

			summary, err := reporter.New(host, browser, factory, opts...).Run(cmd.Context())
			if err != nil {
				return err
			}
			printSummary(summary)
			a.ExitCode = summary.ExitCode()
			return nil
		},
	}

	reportCmd.Flags().IntVar(&concurrency, "concurrency", 1, "maximum concurrency in running debmonitor reports")
	reportCmd.Flags().StringVar(&filterFile, "filter-file", "", "file containing filter rules")
	reportCmd.Flags().StringSliceVar(&excludeNamespaces, "exclude-namespaces", nil, "namespaces to exclude from the run")
	reportCmd.Flags().StringSliceVar(&excludeTagRegexps, "exclude-tag-regexp", nil, "regexes for excluding tags")
	reportCmd.Flags().BoolVar(&noExcludeNaked, "no-exclude-naked", false, "include also 'naked' tags (i.e. sha1s)")
	reportCmd.Flags().BoolVar(&keep, "keep", false, "keep docker images after downloading them")
	return reportCmd
}

// buildRules assembles the effective rule sets from the convenience
// switches and the optional filter file.
func buildRules(config common.ReportConfig) (rules.ImageRuleSet, rules.TagRuleSet, error) {
	imageRules := rules.ExcludeNamespaces(config.ExcludeNamespaces)

	var tagRules rules.TagRuleSet
	if !config.IncludeNaked {
		tagRules = append(tagRules, rules.ExcludeNaked())
	}
	excludes, err := rules.ExcludeTagPatterns(config.ExcludeTagPatterns)
	if err != nil {
		return nil, nil, err
	}
	tagRules = append(tagRules, excludes...)

	if config.FilterFile != "" {
		fileImageRules, fileTagRules, err := rules.ParseFile(config.FilterFile)
		if err != nil {
			return nil, nil, err
		}
		imageRules = append(imageRules, fileImageRules...)
		tagRules = append(tagRules, fileTagRules...)
	}
	return imageRules, tagRules, nil
}

func printSummary(summary *reporter.Summary) {
	if summary.OK() {
		color.Green("All images submitted correctly!")
	}
	fmt.Println()
	fmt.Println("Detailed results:")
	for _, ref := range sorted(summary.Succeeded) {
		fmt.Printf("%-70s%s\n", ref, color.GreenString("[OK]"))
	}
	for _, ref := range sorted(summary.Skipped) {
		fmt.Printf("%-68s%s\n", ref, color.YellowString("[SKIP]"))
	}
	for _, ref := range sorted(summary.Failed) {
		fmt.Printf("%-68s%s\n", ref, color.RedString("[FAIL]"))
	}
}

func sorted(refs []string) []string {
	out := append([]string(nil), refs...)
	sort.Strings(out)
	return out
}
