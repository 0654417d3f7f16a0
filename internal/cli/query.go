package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	querySource     string
	querySourceFile string
	queryOrigin     string
)

func newQueryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query [dir]",
		Short: "Resolve a source expression against a directory of notes",
		Long: `Index a directory and print the documents matched by a source expression.

A source is written in YAML. A plain value starting with '#' is a tag, a
value like [[Note]] matches documents linking to Note and anything else is
a folder. Mappings select and combine sources:

  and: ["#project", {not: {folder: Archive}}]
  or:  [{folder: Daily}, {link: "Projects/X", direction: outgoing}]
  csv: data/books.csv

Links and relative CSV paths are resolved from --origin.

Examples:
  notedex query ~/notes --source '#project'
  notedex query ~/notes --source '{and: ["#project", "Daily"]}'
  notedex query ~/notes --source '[[Projects/X]]' --output json
  notedex query ~/notes --source-file query.yaml --origin Daily/today.md`,
		Args: cobra.MaximumNArgs(1),
		RunE: runQuery,
	}

	cmd.Flags().StringVarP(&querySource, "source", "s", "", "source expression")
	cmd.Flags().StringVarP(&querySourceFile, "source-file", "f", "", "read the source expression from a YAML file ('-' for stdin)")
	cmd.Flags().StringVar(&queryOrigin, "origin", "", "document the query is evaluated from")

	return cmd
}

func runQuery(cmd *cobra.Command, args []string) error {
	if querySource == "" && querySourceFile == "" {
		return fmt.Errorf("a source is required (use --source or --source-file)")
	}
	src, err := parseSource(querySource, querySourceFile)
	if err != nil {
		return err
	}

	f, err := newFormatter()
	if err != nil {
		return err
	}

	cfg := GetGlobalConfig()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	v, err := openVault(ctx, dirArg(args), cfg, vaultOptions{})
	if err != nil {
		return err
	}
	defer closeVault(v)

	if err := v.settle(ctx, cfg.Index.SettleTimeout); err != nil {
		return err
	}

	result, err := v.query(src, queryOrigin)
	if err != nil {
		return err
	}

	data, err := f.FormatResult(result)
	if err != nil {
		return fmt.Errorf("failed to format result: %w", err)
	}
	return writeOutput(cmd.OutOrStdout(), data)
}
