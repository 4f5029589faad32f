package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const (
	klinesPath       = "/fapi/v1/klines"
	tickerPricePath  = "/fapi/v1/ticker/price"
	exchangeInfoPath = "/fapi/v1/exchangeInfo"
	usedWeightHeader = "X-Mbx-Used-Weight-1m"

	defaultBinanceURL = "https://fapi.binance.com"
)

// BinanceOptions parameterise the futures REST client.
type BinanceOptions struct {
	BaseURL           string
	Timeout           time.Duration
	UserAgent         string
	RequestsPerSecond float64
	Burst             int
	QuoteAsset        string
	// OnUsedWeight receives the venue's rolling request weight after every response.
	OnUsedWeight func(weight int)
}

// Binance reads candles and prices from the USDⓈ-M futures API.
type Binance struct {
	opts       BinanceOptions
	logger     zerolog.Logger
	client     *http.Client
	baseURL    string
	limiter    *rate.Limiter
	usedWeight atomic.Int64
}

// NewBinance constructs a Binance futures client. All callers share one token bucket.
func NewBinance(opts BinanceOptions, logger zerolog.Logger) *Binance {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBinanceURL
	}
	if opts.QuoteAsset == "" {
		opts.QuoteAsset = "USDT"
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Binance{
		opts:    opts,
		logger:  logger.With().Str("component", "binance_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// UsedWeight reports the last request weight header seen.
func (b *Binance) UsedWeight() int {
	return int(b.usedWeight.Load())
}

// GetCandles fetches one page of klines.
func (b *Binance) GetCandles(ctx context.Context, symbol, interval string, start, end time.Time, limit int) ([]Candle, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	if !start.IsZero() {
		params.Set("startTime", strconv.FormatInt(start.UnixMilli(), 10))
	}
	if !end.IsZero() {
		params.Set("endTime", strconv.FormatInt(end.UnixMilli(), 10))
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var rows [][]json.RawMessage
	if err := b.get(ctx, klinesPath, params, &rows); err != nil {
		return nil, fmt.Errorf("get klines %s %s: %w", symbol, interval, err)
	}

	candles := make([]Candle, 0, len(rows))
	for i, row := range rows {
		candle, err := parseKline(row)
		if err != nil {
			return nil, fmt.Errorf("parse kline %s %s row %d: %w", symbol, interval, i, err)
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

// GetLivePrice returns the latest traded price for symbol.
func (b *Binance) GetLivePrice(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var ticker tickerPrice
	if err := b.get(ctx, tickerPricePath, params, &ticker); err != nil {
		return 0, fmt.Errorf("get ticker price %s: %w", symbol, err)
	}
	price, err := parsePrice(ticker.Price)
	if err != nil {
		return 0, fmt.Errorf("parse ticker price %s: %w", symbol, err)
	}
	if price <= 0 {
		return 0, fmt.Errorf("%w: %s", ErrNoPrice, symbol)
	}
	return price, nil
}

// LivePrices returns every symbol's latest price in one request.
func (b *Binance) LivePrices(ctx context.Context) (map[string]float64, error) {
	var tickers []tickerPrice
	if err := b.get(ctx, tickerPricePath, nil, &tickers); err != nil {
		return nil, fmt.Errorf("get ticker prices: %w", err)
	}

	prices := make(map[string]float64, len(tickers))
	for _, t := range tickers {
		price, err := parsePrice(t.Price)
		if err != nil || price <= 0 {
			b.logger.Debug().Str("symbol", t.Symbol).Str("price", t.Price).Msg("skip unparsable ticker")
			continue
		}
		prices[t.Symbol] = price
	}
	return prices, nil
}

// ListTrackedSymbols lists trading perpetual contracts quoted in the configured asset.
func (b *Binance) ListTrackedSymbols(ctx context.Context) ([]string, error) {
	var info exchangeInfo
	if err := b.get(ctx, exchangeInfoPath, nil, &info); err != nil {
		return nil, fmt.Errorf("get exchange info: %w", err)
	}

	symbols := make([]string, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.Status != "TRADING" || s.ContractType != "PERPETUAL" {
			continue
		}
		if !strings.EqualFold(s.QuoteAsset, b.opts.QuoteAsset) {
			continue
		}
		symbols = append(symbols, s.Symbol)
	}
	return symbols, nil
}

func (b *Binance) get(ctx context.Context, path string, params url.Values, dest any) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}

	endpoint := b.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(b.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "highwatcher/1.0")
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	b.observeWeight(resp.Header.Get(usedWeightHeader))

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return parseHTTPError(resp.StatusCode, payload)
	}

	if err := json.Unmarshal(payload, dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (b *Binance) observeWeight(header string) {
	if header == "" {
		return
	}
	weight, err := strconv.Atoi(header)
	if err != nil {
		return
	}
	b.usedWeight.Store(int64(weight))
	if b.opts.OnUsedWeight != nil {
		b.opts.OnUsedWeight(weight)
	}
}

type tickerPrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
	Time   int64  `json:"time"`
}

type exchangeInfo struct {
	Symbols []struct {
		Symbol       string `json:"symbol"`
		Status       string `json:"status"`
		ContractType string `json:"contractType"`
		QuoteAsset   string `json:"quoteAsset"`
	} `json:"symbols"`
}

type errorResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// parseKline decodes [openTime, open, high, low, close, volume, closeTime, ...].
func parseKline(row []json.RawMessage) (Candle, error) {
	if len(row) < 7 {
		return Candle{}, fmt.Errorf("expected at least 7 fields, got %d", len(row))
	}

	var openMs, closeMs int64
	if err := json.Unmarshal(row[0], &openMs); err != nil {
		return Candle{}, fmt.Errorf("open time: %w", err)
	}
	if err := json.Unmarshal(row[6], &closeMs); err != nil {
		return Candle{}, fmt.Errorf("close time: %w", err)
	}

	values := make([]float64, 5)
	for i := 0; i < 5; i++ {
		var raw string
		if err := json.Unmarshal(row[i+1], &raw); err != nil {
			return Candle{}, fmt.Errorf("field %d: %w", i+1, err)
		}
		v, err := parsePrice(raw)
		if err != nil {
			return Candle{}, fmt.Errorf("field %d: %w", i+1, err)
		}
		values[i] = v
	}

	return Candle{
		OpenTime:  time.UnixMilli(openMs).UTC(),
		Open:      values[0],
		High:      values[1],
		Low:       values[2],
		Close:     values[3],
		Volume:    values[4],
		CloseTime: time.UnixMilli(closeMs).UTC(),
	}, nil
}

func parsePrice(raw string) (float64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	return d.InexactFloat64(), nil
}

func parseHTTPError(status int, payload []byte) error {
	var base error
	if status == http.StatusTooManyRequests || status == http.StatusTeapot {
		base = ErrRateLimited
	}

	msg := ""
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil && apiErr.Msg != "" {
		msg = fmt.Sprintf("%d %s", apiErr.Code, apiErr.Msg)
	} else if len(payload) > 0 {
		msg = strings.TrimSpace(string(payload))
	}

	switch {
	case base != nil && msg != "":
		return fmt.Errorf("binance api error (%d): %s: %w", status, msg, base)
	case base != nil:
		return fmt.Errorf("binance api error (%d): %w", status, base)
	case msg != "":
		return fmt.Errorf("binance api error (%d): %s", status, msg)
	default:
		return errors.New("binance api error (" + strconv.Itoa(status) + ")")
	}
}

var (
	_ CandleSource = (*Binance)(nil)
	_ PriceBoard   = (*Binance)(nil)
)
