package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"price-high-alerts/internal/storage"
)

// Collect rebuilds the whole highs table and writes the snapshot.
func (a *App) Collect(ctx context.Context) error {
	svc := a.newHighs(a.newBinance(nil), nil)

	result, err := svc.CollectAll(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "collected %d symbols (%d records) in %s, %d failed\n",
		len(result.Succeeded), len(result.Records), result.Duration.Round(time.Millisecond), len(result.Failed))
	if len(result.Failed) > 0 {
		fmt.Fprintf(os.Stdout, "failed: %s\n", strings.Join(result.Failed, ", "))
	}
	if len(result.Succeeded) == 0 && len(result.Failed) > 0 {
		return errors.New("every symbol failed, check logs")
	}
	return nil
}

// Recollect refreshes the given symbols on top of the existing snapshot.
func (a *App) Recollect(ctx context.Context, symbols []string) error {
	svc := a.newHighs(a.newBinance(nil), nil)
	if !svc.Store().Load() {
		a.Logger.Warn().Str("path", svc.Store().Path()).Msg("no usable snapshot, recollected symbols start a new one")
	}

	result, err := svc.RecollectSymbols(ctx, symbols)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "success: %s\n", strings.Join(result.Success, ", "))
	fmt.Fprintf(os.Stdout, "failed: %s\n", strings.Join(result.Failed, ", "))
	if len(result.Failed) > 0 {
		return fmt.Errorf("%d symbols failed to recollect", len(result.Failed))
	}
	return nil
}

// Migrate applies pending SQL migrations.
func (a *App) Migrate(ctx context.Context) error {
	if a.Config.Database.DSN == "" {
		return errors.New("database.dsn not configured; nothing to migrate")
	}
	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	applied, err := storage.Migrate(ctx, pool, a.Config.Database.MigrationsPath, a.Logger)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "applied %d migrations\n", applied)
	return nil
}
