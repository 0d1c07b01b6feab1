package marketdata

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"backlab/internal/domain"
	"backlab/internal/store"
)

// BarCache is the on-disk layer of the service: a BarStore that can also
// report and reset its footprint.
type BarCache interface {
	store.BarStore
	Stats() (store.DiskStats, error)
	Clear() error
}

// Compile-time check that the Parquet store satisfies the cache contract.
var _ BarCache = (*store.ParquetStore)(nil)

// CacheStats is a snapshot of the service's cache layers.
type CacheStats struct {
	MemoryEntries int   `json:"memory_entries"`
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	DiskFiles     int   `json:"disk_files"`
	DiskBytes     int64 `json:"disk_bytes"`
}

// fetchResult carries the outcome of an in-flight fetch to every caller that
// requested the same key.
type fetchResult struct {
	done chan struct{}
	bars []domain.Bar
	err  error
}

// Service serves historical bars through three layers: an in-memory cache
// keyed by the exact request, Parquet files on disk, and finally the
// provider. Concurrent requests for the same key share one provider call.
type Service struct {
	provider Provider
	cache    BarCache
	log      *slog.Logger

	mu       sync.Mutex
	memory   map[string][]domain.Bar
	inflight map[string]*fetchResult
	hits     int64
	misses   int64
}

// NewService creates a Service over the given provider and disk cache.
func NewService(provider Provider, cache BarCache, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		provider: provider,
		cache:    cache,
		log:      log.With("component", "marketdata"),
		memory:   make(map[string][]domain.Bar),
		inflight: make(map[string]*fetchResult),
	}
}

func requestKey(asset domain.AssetClass, symbol, timeframe string, start, end time.Time) string {
	return fmt.Sprintf("%s|%s|%s|%s|%s",
		asset, symbol, timeframe,
		start.Format("2006-01-02"), end.Format("2006-01-02"))
}

// GetBars returns bars for the request, cheapest layer first. Callers must
// treat the returned slice as read-only.
func (s *Service) GetBars(ctx context.Context, asset domain.AssetClass, symbol, timeframe string, start, end time.Time) ([]domain.Bar, error) {
	key := requestKey(asset, symbol, timeframe, start, end)

	s.mu.Lock()
	if bars, ok := s.memory[key]; ok {
		s.hits++
		s.mu.Unlock()
		return bars, nil
	}
	if r, ok := s.inflight[key]; ok {
		s.mu.Unlock()
		select {
		case <-r.done:
			return r.bars, r.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.misses++
	r := &fetchResult{done: make(chan struct{})}
	s.inflight[key] = r
	s.mu.Unlock()

	r.bars, r.err = s.load(ctx, asset, symbol, timeframe, start, end)
	close(r.done)

	s.mu.Lock()
	delete(s.inflight, key)
	if r.err == nil {
		s.memory[key] = r.bars
	}
	s.mu.Unlock()

	return r.bars, r.err
}

// load reads from disk first and falls back to the provider, writing fetched
// bars through to disk.
func (s *Service) load(ctx context.Context, asset domain.AssetClass, symbol, timeframe string, start, end time.Time) ([]domain.Bar, error) {
	bars, err := s.cache.ReadBars(ctx, asset, timeframe, symbol, start, end)
	if err != nil {
		return nil, fmt.Errorf("reading cached bars: %w", err)
	}
	if len(bars) > 0 {
		s.log.Debug("disk cache hit", "symbol", symbol, "bars", len(bars))
		return bars, nil
	}

	bars, err = s.provider.FetchBars(ctx, asset, symbol, timeframe, start, end)
	if err != nil {
		return nil, err
	}
	if len(bars) > 0 {
		if werr := s.cache.WriteBars(ctx, asset, timeframe, bars); werr != nil {
			// Serving fetched data beats failing on a cache write.
			s.log.Warn("writing bars to disk cache failed", "symbol", symbol, "err", werr)
		}
	}
	return bars, nil
}

// Refresh fetches bars from the provider unconditionally, writes them to the
// disk cache, and returns how many were stored. The in-memory layer is
// invalidated for the symbol.
func (s *Service) Refresh(ctx context.Context, asset domain.AssetClass, symbol, timeframe string, start, end time.Time) (int, error) {
	bars, err := s.provider.FetchBars(ctx, asset, symbol, timeframe, start, end)
	if err != nil {
		return 0, err
	}
	if err := s.cache.WriteBars(ctx, asset, timeframe, bars); err != nil {
		return 0, fmt.Errorf("storing fetched bars: %w", err)
	}

	s.mu.Lock()
	for key := range s.memory {
		delete(s.memory, key)
	}
	s.mu.Unlock()

	s.log.Info("refreshed bars", "symbol", symbol, "asset", asset, "count", len(bars))
	return len(bars), nil
}

// AvailableSymbols lists the symbols with cached data per asset class.
func (s *Service) AvailableSymbols(ctx context.Context, timeframe string) (map[domain.AssetClass][]string, error) {
	out := make(map[domain.AssetClass][]string)
	for _, asset := range []domain.AssetClass{domain.AssetStock, domain.AssetCrypto, domain.AssetForex} {
		symbols, err := s.cache.ListSymbols(ctx, asset, timeframe)
		if err != nil {
			return nil, err
		}
		if len(symbols) > 0 {
			out[asset] = symbols
		}
	}
	return out, nil
}

// Stats reports cache statistics across both layers.
func (s *Service) Stats() (CacheStats, error) {
	disk, err := s.cache.Stats()
	if err != nil {
		return CacheStats{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return CacheStats{
		MemoryEntries: len(s.memory),
		Hits:          s.hits,
		Misses:        s.misses,
		DiskFiles:     disk.Files,
		DiskBytes:     disk.Bytes,
	}, nil
}

// ClearCache drops the in-memory cache and removes all cached files.
func (s *Service) ClearCache() error {
	s.mu.Lock()
	s.memory = make(map[string][]domain.Bar)
	s.hits = 0
	s.misses = 0
	s.mu.Unlock()

	return s.cache.Clear()
}
