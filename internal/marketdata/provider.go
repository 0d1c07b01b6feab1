// Package marketdata fetches historical bars from external providers and
// serves them through a layered cache: in-memory per (symbol, range) request,
// then Parquet files on disk, then the provider itself.
package marketdata

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"backlab/internal/domain"
	"backlab/internal/util"
)

// Provider fetches historical bars from an external data source.
type Provider interface {
	FetchBars(ctx context.Context, asset domain.AssetClass, symbol, timeframe string, start, end time.Time) ([]domain.Bar, error)
}

// Compile-time interface check.
var _ Provider = (*AlpacaProvider)(nil)

// AlpacaProvider fetches stock and crypto bars from the Alpaca market-data
// API, rate limited and retried.
type AlpacaProvider struct {
	client     *marketdata.Client
	feed       string
	limiter    *util.RateLimiter
	maxRetries int
	log        *slog.Logger
}

// NewAlpacaProvider creates an AlpacaProvider with the given credentials.
// rateLimitPerMin and maxRetries fall back to sensible values when zero.
func NewAlpacaProvider(apiKey, apiSecret, baseURL, feed string, rateLimitPerMin, maxRetries int, log *slog.Logger) *AlpacaProvider {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if baseURL != "" {
		opts.BaseURL = baseURL
	}
	if feed == "" {
		feed = "sip"
	}
	if rateLimitPerMin <= 0 {
		rateLimitPerMin = 200
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if log == nil {
		log = slog.Default()
	}

	return &AlpacaProvider{
		client:     marketdata.NewClient(opts),
		feed:       feed,
		limiter:    util.NewRateLimiter(rateLimitPerMin),
		maxRetries: maxRetries,
		log:        log.With("provider", "alpaca"),
	}
}

// FetchBars fetches bars for one symbol. Forex is not available through
// Alpaca and returns an error.
func (p *AlpacaProvider) FetchBars(ctx context.Context, asset domain.AssetClass, symbol, timeframe string, start, end time.Time) ([]domain.Bar, error) {
	tf, err := parseTimeframe(timeframe)
	if err != nil {
		return nil, err
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var bars []domain.Bar
	err = util.Retry(ctx, p.maxRetries, time.Second, func() error {
		var ferr error
		switch asset {
		case domain.AssetStock:
			bars, ferr = p.fetchStockBars(symbol, tf, start, end)
		case domain.AssetCrypto:
			bars, ferr = p.fetchCryptoBars(symbol, tf, start, end)
		case domain.AssetForex:
			return fmt.Errorf("forex data is not available from alpaca")
		default:
			return fmt.Errorf("unknown asset class %q", asset)
		}
		return ferr
	})
	if err != nil {
		return nil, fmt.Errorf("fetching %s %s bars: %w", asset, symbol, err)
	}

	p.log.Debug("fetched bars", "symbol", symbol, "asset", asset, "count", len(bars))
	return bars, nil
}

func (p *AlpacaProvider) fetchStockBars(symbol string, tf marketdata.TimeFrame, start, end time.Time) ([]domain.Bar, error) {
	raw, err := p.client.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame: tf,
		Start:     start,
		End:       end,
		Feed:      marketdata.Feed(p.feed),
	})
	if err != nil {
		return nil, fmt.Errorf("GetBars: %w", err)
	}

	bars := make([]domain.Bar, 0, len(raw))
	for _, ab := range raw {
		bars = append(bars, domain.Bar{
			Symbol:    strings.ToUpper(symbol),
			Timestamp: ab.Timestamp,
			Open:      ab.Open,
			High:      ab.High,
			Low:       ab.Low,
			Close:     ab.Close,
			Volume:    int64(ab.Volume),
		})
	}
	return bars, nil
}

func (p *AlpacaProvider) fetchCryptoBars(symbol string, tf marketdata.TimeFrame, start, end time.Time) ([]domain.Bar, error) {
	raw, err := p.client.GetCryptoBars(cryptoPair(symbol), marketdata.GetCryptoBarsRequest{
		TimeFrame: tf,
		Start:     start,
		End:       end,
	})
	if err != nil {
		return nil, fmt.Errorf("GetCryptoBars: %w", err)
	}

	bars := make([]domain.Bar, 0, len(raw))
	for _, ab := range raw {
		bars = append(bars, domain.Bar{
			Symbol:    strings.ToUpper(symbol),
			Timestamp: ab.Timestamp,
			Open:      ab.Open,
			High:      ab.High,
			Low:       ab.Low,
			Close:     ab.Close,
			Volume:    int64(ab.Volume),
		})
	}
	return bars, nil
}

// cryptoPair converts plain symbols like "BTCUSD" or "btc-usd" into the
// "BTC/USD" pair format the crypto endpoint expects.
func cryptoPair(symbol string) string {
	s := strings.ToUpper(strings.ReplaceAll(symbol, "-", "/"))
	if strings.Contains(s, "/") {
		return s
	}
	for _, quote := range []string{"USDT", "USDC", "USD", "BTC", "ETH"} {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return s[:len(s)-len(quote)] + "/" + quote
		}
	}
	return s + "/USD"
}

func parseTimeframe(timeframe string) (marketdata.TimeFrame, error) {
	switch timeframe {
	case "", "1d":
		return marketdata.OneDay, nil
	case "1h":
		return marketdata.OneHour, nil
	case "1m":
		return marketdata.OneMin, nil
	default:
		return marketdata.TimeFrame{}, fmt.Errorf("unsupported timeframe %q", timeframe)
	}
}
