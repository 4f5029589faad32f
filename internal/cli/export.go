package cli

import (
	"github.com/spf13/cobra"

	"price-high-alerts/internal/app"
)

var (
	exportTimeframe string
	exportPNGPath   string
	exportCSVPath   string
	exportMaxRows   int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a timeframe ranking as CSV and/or PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		tf, err := parseTimeframe(exportTimeframe)
		if err != nil {
			return err
		}
		return getApp().Export(cmd.Context(), app.ExportOptions{
			Timeframe: tf,
			PNGPath:   exportPNGPath,
			CSVPath:   exportCSVPath,
			MaxRows:   exportMaxRows,
		})
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportTimeframe, "timeframe", "1w", "Timeframe: 1w, 1m, 6m, 1y or all")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().IntVar(&exportMaxRows, "max-rows", 0, "Maximum rows to export (defaults to config)")
}
