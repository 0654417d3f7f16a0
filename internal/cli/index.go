package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var indexTimeout time.Duration

func newIndexCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index [dir]",
		Short: "Index a directory of notes and print a summary",
		Long: `Scan a directory, parse every markdown document on the worker pool and
print a summary of the resulting index.

If no directory is given, vault.root from the configuration is used.

Examples:
  notedex index ~/notes
  notedex index --output json ~/notes
  notedex index --timeout 2m ~/notes`,
		Args: cobra.MaximumNArgs(1),
		RunE: runIndex,
	}

	cmd.Flags().DurationVar(&indexTimeout, "timeout", 0, "maximum time to wait for parsing (default: index.settle_timeout)")

	return cmd
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg := GetGlobalConfig()
	if !cmd.Flag("timeout").Changed {
		indexTimeout = cfg.Index.SettleTimeout
	}

	f, err := newFormatter()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	start := time.Now()
	v, err := openVault(ctx, dirArg(args), cfg, vaultOptions{})
	if err != nil {
		return err
	}
	defer closeVault(v)

	if err := v.settle(ctx, indexTimeout); err != nil {
		return err
	}
	if isVerbose() {
		fmt.Fprintf(os.Stderr, "Indexed %s in %s\n", v.root, time.Since(start).Round(time.Millisecond))
	}

	data, err := f.FormatReport(v.report(time.Since(start)))
	if err != nil {
		return fmt.Errorf("failed to format report: %w", err)
	}
	return writeOutput(cmd.OutOrStdout(), data)
}

// dirArg returns the optional directory argument
func dirArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

// closeVault closes v, reporting failures only in verbose mode
func closeVault(v *vault) {
	if err := v.Close(); err != nil && isVerbose() {
		fmt.Fprintf(os.Stderr, "Warning: failed to close index: %v\n", err)
	}
}
