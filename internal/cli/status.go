package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/inkwatch/internal/config"
	"github.com/hupe1980/inkwatch/internal/status"
)

// Output formats for status.
const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

type statusOptions struct {
	format string
	check  bool
}

func newStatusCommand() *cobra.Command {
	opts := &statusOptions{}

	cmd := &cobra.Command{
		Use:   "status <dir>",
		Short: "Show which figures have missing or stale exports",
		Long: `Status compares every SVG figure below <dir> with its exports without
running the renderer. A figure is "missing" when either export does not
exist and "stale" when an export is older than the figure.

With --check the command exits with status 1 unless everything is up to
date, which makes it usable as a pre-build guard.`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeDir,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, args[0], opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.format, "output", "o", formatTable, "output format: table, json, yaml")
	f.BoolVar(&opts.check, "check", false, "exit 1 unless every figure is up to date")

	return cmd
}

func runStatus(cmd *cobra.Command, dir string, opts *statusOptions) error {
	switch opts.format {
	case formatTable, formatJSON, formatYAML:
	default:
		return usageError(fmt.Errorf("unknown output format %q: must be one of table, json, yaml", opts.format))
	}

	cfg := config.FromContext(cmd.Context())

	root, err := config.ResolveRoot(dir)
	if err != nil {
		return usageError(err)
	}

	report := status.Scan(root, cfg.Recursive, cfg.AuxPrefix)
	w := cmd.OutOrStdout()

	switch opts.format {
	case formatJSON:
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling status: %w", err)
		}

		fmt.Fprintln(w, string(data))
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)

		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("marshaling status: %w", err)
		}

		if err := enc.Close(); err != nil {
			return fmt.Errorf("marshaling status: %w", err)
		}
	default:
		writeStatusTable(w, report, colorize(w, cfg))
	}

	if opts.check && !report.UpToDate() {
		return &ExitError{Code: ExitFailure, Err: fmt.Errorf("%d missing, %d stale, %d error(s)",
			report.Count(status.StateMissing), report.Count(status.StateStale), len(report.Errors))}
	}

	return nil
}

func writeStatusTable(w io.Writer, report *status.Report, color bool) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)

	if !color {
		tw.SetStyle(table.StyleLight)
	}

	tw.Style().Format.Footer = text.FormatDefault

	tw.AppendHeader(table.Row{"Source", "State", "Page", "Edited", "Exported"})

	for _, e := range report.Entries {
		name, err := filepath.Rel(report.Root, e.Source)
		if err != nil {
			name = e.Source
		}

		size, exported := "-", "-"
		if e.State != status.StateMissing {
			size = humanize.Bytes(uint64(max(0, e.PageSize))) //nolint:gosec // clamped
			exported = humanize.Time(e.OutputTime)
		}

		tw.AppendRow(table.Row{name, stateText(e.State, color), size, humanize.Time(e.SourceTime), exported})
	}

	tw.AppendFooter(table.Row{
		fmt.Sprintf("%d source(s)", len(report.Entries)),
		fmt.Sprintf("%d ok", report.Count(status.StateOK)),
	})

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
	})

	tw.Render()

	for _, msg := range report.Errors {
		fmt.Fprintf(w, "error: %s\n", msg)
	}
}

func stateText(s status.State, color bool) string {
	if !color {
		return string(s)
	}

	switch s {
	case status.StateOK:
		return text.FgGreen.Sprint(s)
	case status.StateStale:
		return text.FgYellow.Sprint(s)
	default:
		return text.FgRed.Sprint(s)
	}
}

// colorize reports whether w is a terminal and colors were not disabled.
func colorize(w io.Writer, cfg *config.Config) bool {
	if cfg.NoColor || os.Getenv("NO_COLOR") != "" {
		return false
	}

	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	fd := f.Fd()

	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
