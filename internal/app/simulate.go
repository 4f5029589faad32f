package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"price-high-alerts/internal/alerting"
	"price-high-alerts/internal/breakthrough"
)

// SimulateBreakthrough 使用给定价格对缓存中的高点做一次突破判定, 可选地发送告警。
func (a *App) SimulateBreakthrough(ctx context.Context, opts SimulateOptions) error {
	store, err := a.loadStore()
	if err != nil {
		return err
	}

	detector := breakthrough.NewDetector(store)
	result, ok := detector.Evaluate(opts.Symbol, opts.Price, opts.Timeframe, opts.LastCheck)
	if !ok {
		return fmt.Errorf("no cached %s high for %s", opts.Timeframe, opts.Symbol)
	}

	fmt.Fprintf(os.Stdout, "%s %s high %s, price %s, break %s, breakthrough=%t\n",
		result.Symbol,
		opts.Timeframe.DisplayName(),
		breakthrough.FormatPrice(result.TimeframeHigh),
		breakthrough.FormatPrice(result.CurrentPrice),
		breakthrough.FormatPercent(result.BreakPercentage),
		result.IsBreakthrough,
	)

	if !opts.Notify {
		return nil
	}
	if !result.IsBreakthrough {
		return errors.New("not a breakthrough; nothing to notify")
	}
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting 未启用")
	}

	notifier, closeNotifier, err := a.newNotifier(nil)
	if err != nil {
		return err
	}
	defer closeNotifier()

	return notifier.Notify(ctx, alerting.Notification{
		AlertName:   "simulate",
		Timeframe:   opts.Timeframe,
		Mode:        "single",
		Results:     []breakthrough.Result{result},
		TriggeredAt: time.Now().UTC(),
		MaxRows:     a.Config.Breakthrough.MaxResultsPerMsg,
	})
}
