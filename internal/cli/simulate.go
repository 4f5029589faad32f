package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"price-high-alerts/internal/app"
)

var (
	simulateSymbol    string
	simulateTimeframe string
	simulatePrice     float64
	simulateLast      float64
	simulateNotify    bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-breakthrough",
	Short: "用给定价格模拟一次突破判定",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateSymbol == "" {
			return errors.New("--symbol 必须提供")
		}
		if simulatePrice <= 0 {
			return errors.New("--price 必须大于 0")
		}
		tf, err := parseTimeframe(simulateTimeframe)
		if err != nil {
			return err
		}

		opts := app.SimulateOptions{
			Symbol:    simulateSymbol,
			Timeframe: tf,
			Price:     simulatePrice,
			Notify:    simulateNotify,
		}
		if cmd.Flags().Changed("last") {
			last := simulateLast
			opts.LastCheck = &last
		}
		return getApp().SimulateBreakthrough(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateSymbol, "symbol", "", "合约代码, 例如 BTCUSDT")
	simulateCmd.Flags().StringVar(&simulateTimeframe, "timeframe", "1w", "周期: 1w, 1m, 6m, 1y, all")
	simulateCmd.Flags().Float64Var(&simulatePrice, "price", 0, "模拟的最新价格")
	simulateCmd.Flags().Float64Var(&simulateLast, "last", 0, "上一次检查价格 (省略表示首次检查)")
	simulateCmd.Flags().BoolVar(&simulateNotify, "notify", false, "突破时通过已配置的通道发送告警")
}
