package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var csvOrigin string

func newCSVCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "csv <dir> <path>",
		Short: "Print a CSV table through the cache",
		Long: `Load a CSV file of the vault, or an http(s) URL, through the table cache
and print its rows.

Relative paths are resolved from the folder of --origin.

Examples:
  notedex csv ~/notes data/books.csv
  notedex csv ~/notes ./books.csv --origin Reading/index.md
  notedex csv ~/notes https://example.com/export.csv --output json`,
		Args: cobra.ExactArgs(2),
		RunE: runCSV,
	}

	cmd.Flags().StringVar(&csvOrigin, "origin", "", "document the path is relative to")

	return cmd
}

func runCSV(cmd *cobra.Command, args []string) error {
	f, err := newFormatter()
	if err != nil {
		return err
	}

	cfg := GetGlobalConfig()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	v, err := openVault(ctx, args[0], cfg, vaultOptions{})
	if err != nil {
		return err
	}
	defer closeVault(v)

	if cfg.Cache.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Cache.FetchTimeout)
		defer cancel()
	}

	table, err := v.index.CSV(ctx, args[1], csvOrigin)
	if err != nil {
		return err
	}

	data, err := f.FormatTable(table)
	if err != nil {
		return fmt.Errorf("failed to format table: %w", err)
	}
	return writeOutput(cmd.OutOrStdout(), data)
}
