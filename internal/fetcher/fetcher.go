package fetcher

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNoPrice indicates the venue returned no price for a symbol.
	ErrNoPrice = errors.New("fetcher: no price for symbol")
	// ErrRateLimited indicates the venue rejected a request with 429/418.
	ErrRateLimited = errors.New("fetcher: rate limited")
)

// Candle is one OHLC bar as returned by the venue.
type Candle struct {
	OpenTime  time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	CloseTime time.Time
}

// CandleSource supplies paginated candle history and live prices.
type CandleSource interface {
	// GetCandles returns candles with open time in [start, end], oldest first, at most limit rows.
	GetCandles(ctx context.Context, symbol, interval string, start, end time.Time, limit int) ([]Candle, error)
	GetLivePrice(ctx context.Context, symbol string) (float64, error)
	ListTrackedSymbols(ctx context.Context) ([]string, error)
}

// PriceBoard returns live prices for the whole universe in one call.
type PriceBoard interface {
	LivePrices(ctx context.Context) (map[string]float64, error)
}
