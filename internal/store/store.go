// Package store defines storage interfaces for persisting and retrieving
// domain objects: historical bars on Parquet files and saved strategies in
// SQLite.
package store

import (
	"context"
	"errors"
	"time"

	"backlab/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars under the given asset class and
	// timeframe, merging with any bars already stored.
	WriteBars(ctx context.Context, asset domain.AssetClass, timeframe string, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol within [start, end],
	// ordered by timestamp.
	ReadBars(ctx context.Context, asset domain.AssetClass, timeframe, symbol string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols stored for the given asset
	// class and timeframe.
	ListSymbols(ctx context.Context, asset domain.AssetClass, timeframe string) ([]string, error)
}

// StrategyStore persists and retrieves saved strategy definitions.
type StrategyStore interface {
	// CreateStrategy inserts a new strategy, assigning its ID and
	// timestamps.
	CreateStrategy(ctx context.Context, s *domain.Strategy) error

	// GetStrategy retrieves a strategy by ID. Returns ErrNotFound when no
	// such strategy exists.
	GetStrategy(ctx context.Context, id string) (*domain.Strategy, error)

	// ListStrategies returns all saved strategies, newest first.
	ListStrategies(ctx context.Context) ([]domain.Strategy, error)

	// UpdateStrategy persists changes to an existing strategy and bumps its
	// updated_at timestamp. Returns ErrNotFound when no such strategy
	// exists.
	UpdateStrategy(ctx context.Context, s *domain.Strategy) error

	// DeleteStrategy removes a strategy by ID. Returns ErrNotFound when no
	// such strategy exists.
	DeleteStrategy(ctx context.Context, id string) error
}
