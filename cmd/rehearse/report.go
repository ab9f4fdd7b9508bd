package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/rehearse/internal/report"
)

var (
	reportDownload string
	reportJSON     bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show the latest interview report",
	RunE:  runReport,
}

func init() {
	reportCmd.Flags().StringVarP(&reportDownload, "download", "d", "", "Also download the PDF report and radar chart into this directory")
	reportCmd.Flags().BoolVar(&reportJSON, "json", false, "Print the report as JSON")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, _ []string) error {
	return withApp(cmd.Context(), func(a *app) error {
		ctx := cmd.Context()
		if _, err := a.requireSession(ctx); err != nil {
			return err
		}
		renderer := report.NewRenderer(a.client, a.results, a.catalog, a.log)

		out := cmd.OutOrStdout()
		if reportDownload != "" {
			files, err := renderer.Download(ctx, reportDownload)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "report saved to %s\n", files.PDF)
			if files.RadarChart != "" {
				fmt.Fprintf(out, "radar chart saved to %s\n", files.RadarChart)
			}
		}

		v, err := renderer.View(ctx)
		if err != nil {
			return err
		}
		if reportJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(v)
		}
		return report.PrintView(out, v)
	})
}
