package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	exportFormat string
	exportOutput string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export subscriptions as CSV, JSON or to Google Sheets",
	Long: `Export every subscription with its converted amount, next renewal and
reminder settings.

Examples:
  subtrack export --format csv --output subscriptions.csv
  subtrack export --format sheets`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import subscriptions from a JSON export",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		res, err := app.Export.ImportJSON(cmd.Context(), f)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "imported %d subscriptions\n", res.Imported)
		for _, e := range res.Errors {
			fmt.Fprintln(out, "  skipped:", e)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd, importCmd)
	exportCmd.Flags().StringVar(&exportFormat, "format", "csv", "Output format (csv|json|sheets)")
	exportCmd.Flags().StringVar(&exportOutput, "output", "", "Output file (default: stdout)")
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	now := time.Now().In(app.Config.Location())

	if exportFormat == "sheets" {
		w, err := app.Sheets(ctx)
		if err != nil {
			return err
		}
		if w == nil {
			return errors.New("Google Sheets export is not configured (GOOGLE_SPREADSHEET_ID)")
		}
		n, err := app.Export.ExportRows(ctx, w, now)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "exported %d subscriptions to %s\n", n, app.Config.GoogleSheetName)
		return nil
	}

	var out io.Writer = cmd.OutOrStdout()
	if exportOutput != "" {
		f, err := os.Create(exportOutput)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	switch exportFormat {
	case "csv":
		return app.Export.ExportCSV(ctx, out, now)
	case "json":
		return app.Export.ExportJSON(ctx, out, now)
	default:
		return fmt.Errorf("unknown format %q: use csv, json or sheets", exportFormat)
	}
}
