package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the breakthrough monitor, HTTP API and scheduled refresh",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Run(cmd.Context())
	},
}

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Rebuild every historical high and write the snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Collect(cmd.Context())
	},
}

var recollectSymbols []string

var recollectCmd = &cobra.Command{
	Use:   "recollect",
	Short: "Refresh selected symbols on top of the existing snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		symbols := append([]string{}, recollectSymbols...)
		symbols = append(symbols, args...)
		if len(symbols) == 0 {
			return fmt.Errorf("--symbols must list at least one symbol")
		}
		for i, s := range symbols {
			symbols[i] = strings.TrimSpace(s)
		}
		return getApp().Recollect(cmd.Context(), symbols)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Migrate(cmd.Context())
	},
}

func init() {
	recollectCmd.Flags().StringSliceVar(&recollectSymbols, "symbols", nil, "Comma separated symbols, e.g. BTCUSDT,ETH")
}
