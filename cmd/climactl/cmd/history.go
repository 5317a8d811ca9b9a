package cmd

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/climalert/internal/history"
	"github.com/good-yellow-bee/climalert/internal/models"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect stored alerts",
	Long: `Commands for the alert history kept by the agent.

The agent keeps the 50 most recent alerts, newest first.`,
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			Items []models.AlertEvent `json:"items"`
			Total int                 `json:"total"`
		}
		if err := newAPIClient(addr).do(cmd.Context(), http.MethodGet, "/api/v1/history", nil, &resp); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		switch GetOutput() {
		case "json":
			return printJSON(out, resp.Items)
		case "plain":
			for _, ev := range resp.Items {
				fmt.Fprintln(out, ev.Summary())
			}
			return nil
		}

		if len(resp.Items) == 0 {
			fmt.Fprintln(out, "No alerts stored.")
			return nil
		}
		fmt.Fprintf(out, "\n%-16s  %-22s  %-24s  %-8s  %s\n", "TIME", "LOCATION", "TEMPERATURE", "HUMIDITY", "DESCRIPTION")
		fmt.Fprintln(out, strings.Repeat("-", 110))
		for _, ev := range resp.Items {
			fmt.Fprintf(out, "%-16s  %-22s  %-24s  %-8s  %s\n",
				ev.OccurredAt.Local().Format("2006-01-02 15:04"),
				truncate(ev.Location(), 22),
				truncate(ev.TemperatureSummary, 24),
				truncate(ev.Humidity, 8),
				truncate(ev.Description, 40),
			)
		}
		fmt.Fprintf(out, "\nTotal: %d alert(s)\n", resp.Total)
		return nil
	},
}

var (
	exportFormat string
	exportFile   string
)

var historyExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored alerts as JSON, JSONL, or CSV",
	Long: `Export the agent's alert history.

Examples:
  climactl history export --format csv > alerts.csv
  climactl history export --format jsonl --file alerts.jsonl`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, ok := history.ParseExportFormat(exportFormat)
		if !ok {
			return fmt.Errorf("unsupported export format %q (use json, jsonl, or csv)", exportFormat)
		}

		var resp struct {
			Items []models.AlertEvent `json:"items"`
		}
		if err := newAPIClient(addr).do(cmd.Context(), http.MethodGet, "/api/v1/history", nil, &resp); err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if exportFile != "" {
			f, err := os.Create(exportFile)
			if err != nil {
				return fmt.Errorf("create export file: %w", err)
			}
			defer f.Close()
			w = f
		}
		if err := history.NewExporter(format, w).Export(resp.Items); err != nil {
			return fmt.Errorf("export: %w", err)
		}
		PrintVerbose("exported %d alert(s)", len(resp.Items))
		return nil
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all stored alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newAPIClient(addr).do(cmd.Context(), http.MethodDelete, "/api/v1/history", nil, nil); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "History cleared.")
		return nil
	},
}

func init() {
	historyExportCmd.Flags().StringVar(&exportFormat, "format", "json", "export format (json, jsonl, csv)")
	historyExportCmd.Flags().StringVar(&exportFile, "file", "", "write to file instead of stdout")
	historyCmd.AddCommand(historyListCmd, historyExportCmd, historyClearCmd)
	rootCmd.AddCommand(historyCmd)
}
