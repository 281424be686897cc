package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/harun/recondora/internal/daemon"
	"github.com/harun/recondora/internal/tracing"
	"github.com/harun/recondora/pkg/dispatch"
	"github.com/harun/recondora/pkg/report"
	"github.com/spf13/cobra"
)

// errToolsFailed makes the process exit non-zero when a tool failed.
var errToolsFailed = errors.New("one or more tools failed")

var (
	reconJSON    bool
	reconNoColor bool
)

var reconCmd = &cobra.Command{
	Use:   "recon <target> [tools...]",
	Short: "Run recon tools against a target",
	Long: `Run the selected tools against target and print the report.
Tools and groups may be separated by spaces or commas. Without a selection
the default group runs. The command exits non-zero when any tool failed.`,
	Example: `  recondora recon example.com
  recondora recon example.com dns,geoip
  recondora recon 10.0.0.1 nmap local_ping --json`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE:         runRecon,
}

func init() {
	reconCmd.Flags().BoolVar(&reconJSON, "json", false, "print the batch as JSON")
	reconCmd.Flags().BoolVar(&reconNoColor, "no-color", false, "disable colored status lines")
	rootCmd.AddCommand(reconCmd)
}

func runRecon(cmd *cobra.Command, args []string) error {
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

	ctx := tracing.WithSource(cmd.Context(), "cli")
	if err := components.Sandbox.Start(ctx); err != nil {
		log.Warn().Err(err).Msg("Sandbox unavailable, local tools will fail")
	} else {
		defer components.Sandbox.Stop(ctx)
	}

	target := args[0]
	tokens := dispatch.SplitTokens(args[1:]...)

	batch, err := components.Dispatcher.Dispatch(ctx, target, tokens)
	if errors.Is(err, dispatch.ErrNoValidTools) {
		unknown := components.Dispatcher.Resolver().Unknown(tokens)
		return fmt.Errorf("%w: %s", err, strings.Join(unknown, ", "))
	}
	if err != nil {
		return err
	}

	printStatus(cmd.ErrOrStderr(), batch, reconNoColor)

	out := cmd.OutOrStdout()
	if reconJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(batch); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(out, report.NewRenderer(report.FormatPlain).Render(batch.Target, batch.Results))
	}

	if batch.Failed() > 0 {
		return errToolsFailed
	}
	return nil
}

// printStatus writes one line per tool with its outcome and duration.
func printStatus(w io.Writer, batch dispatch.Batch, noColor bool) {
	ok := color.New(color.FgGreen)
	fail := color.New(color.FgRed)
	dim := color.New(color.FgHiBlack)
	if noColor {
		for _, c := range []*color.Color{ok, fail, dim} {
			c.DisableColor()
		}
	}

	for _, res := range batch.Results {
		mark := ok.Sprint("✓")
		status := ok.Sprint("ok")
		if res.Failed() {
			mark = fail.Sprint("✗")
			status = fail.Sprint(string(res.Error))
		}
		fmt.Fprintf(w, "%s %-18s %-10s %s\n", mark, res.Tool, status, dim.Sprint(res.Duration.Round(time.Millisecond)))
	}
	fmt.Fprintf(w, "%s %d tools, %d failed, %s\n",
		dim.Sprint("--"), len(batch.Results), batch.Failed(), batch.Duration.Round(time.Millisecond))
}
