package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/harun/recondora/internal/daemon"
	"github.com/harun/recondora/pkg/registry"
	"github.com/spf13/cobra"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List available tools and groups",
	Long: `List every tool in the catalog with its kind and, for local tools,
whether the binary is installed. Groups are listed with their members.`,
	RunE: runTools,
}

func init() {
	rootCmd.AddCommand(toolsCmd)
}

func runTools(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := newLogger(cfg.Logging, false)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	components, err := daemon.BuildComponents(cfg, log)
	if err != nil {
		return err
	}
	components.Checker.Check()

	reg := components.Registry
	missing := color.New(color.FgYellow)

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TOOL\tKIND\tSTATUS\tDESCRIPTION")
	for _, spec := range reg.Specs() {
		status := "ready"
		if spec.Kind == registry.KindLocal && !components.Checker.Available(spec.Key) {
			status = missing.Sprint("not installed")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", spec.Key, spec.Kind, status, spec.Description)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout())
	tw = tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "GROUP\tTOOLS")
	for _, g := range reg.Groups() {
		name := g.Name
		if name == reg.DefaultGroup() {
			name += " (default)"
		}
		fmt.Fprintf(tw, "%s\t%s\n", name, strings.Join(g.Keys, ", "))
	}
	return tw.Flush()
}
