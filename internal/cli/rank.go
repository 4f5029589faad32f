package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"price-high-alerts/internal/app"
	"price-high-alerts/internal/highs"
)

var (
	rankTimeframe string
	rankLimit     int
	rankFurthest  bool

	queryTimeframe string
	eventsLimit    int
)

var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Rank symbols by distance to their historical high",
	RunE: func(cmd *cobra.Command, args []string) error {
		if rankLimit < 0 {
			return fmt.Errorf("--limit cannot be negative")
		}
		tf, err := parseTimeframe(rankTimeframe)
		if err != nil {
			return err
		}
		return getApp().Rank(cmd.Context(), app.RankOptions{
			Timeframe: tf,
			Limit:     rankLimit,
			Furthest:  rankFurthest,
		})
	},
}

var queryCmd = &cobra.Command{
	Use:   "query SYMBOL",
	Short: "Show the cached highs of one symbol",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		timeframes := highs.Timeframes()
		if queryTimeframe != "" {
			tf, err := parseTimeframe(queryTimeframe)
			if err != nil {
				return err
			}
			timeframes = []highs.Timeframe{tf}
		}
		return getApp().Query(cmd.Context(), args[0], timeframes)
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize the highs snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Stats(cmd.Context())
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Display recent breakthrough events",
	RunE: func(cmd *cobra.Command, args []string) error {
		if eventsLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}
		return getApp().Events(cmd.Context(), eventsLimit)
	},
}

func init() {
	rankCmd.Flags().StringVar(&rankTimeframe, "timeframe", "1w", "Timeframe: 1w, 1m, 6m, 1y or all")
	rankCmd.Flags().IntVar(&rankLimit, "limit", 20, "Number of rows to display (0 for all)")
	rankCmd.Flags().BoolVar(&rankFurthest, "furthest", false, "Order by largest distance first")

	queryCmd.Flags().StringVar(&queryTimeframe, "timeframe", "", "Only show this timeframe")

	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 20, "Number of events to display")
}
