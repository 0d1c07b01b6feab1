// Package httpapi provides the REST API for running backtests, managing
// saved strategies, and maintaining the market data cache.
package httpapi

import (
	"backlab/internal/domain"
	"backlab/internal/strategy"
)

// BacktestRequest is the body of POST /api/v1/backtest/run. Exactly one of
// StrategyID and StrategyDefinition must be set.
type BacktestRequest struct {
	Symbol             string                     `json:"symbol"`
	AssetClass         domain.AssetClass          `json:"asset_class,omitempty"`
	Timeframe          string                     `json:"timeframe,omitempty"`
	StartDate          string                     `json:"start_date"` // YYYY-MM-DD
	EndDate            string                     `json:"end_date"`   // YYYY-MM-DD
	StrategyID         string                     `json:"strategy_id,omitempty"`
	StrategyDefinition *domain.StrategyDefinition `json:"strategy_definition,omitempty"`
	InitialCapital     float64                    `json:"initial_capital,omitempty"`
	Commission         *float64                   `json:"commission,omitempty"`
}

// StrategyRequest is the body of strategy create and update calls.
type StrategyRequest struct {
	Name        string                    `json:"name"`
	Description string                    `json:"description,omitempty"`
	Definition  domain.StrategyDefinition `json:"definition"`
	IsPublic    bool                      `json:"is_public,omitempty"`
	Author      string                    `json:"author,omitempty"`
}

// StrategiesResponse is one page of saved strategies. Total counts every
// match before pagination.
type StrategiesResponse struct {
	Strategies []domain.Strategy `json:"strategies"`
	Total      int               `json:"total"`
}

// TemplatesResponse lists the built-in strategy templates.
type TemplatesResponse struct {
	Templates []strategy.Template `json:"templates"`
}

// FetchDataRequest is the body of POST /api/v1/data/fetch.
type FetchDataRequest struct {
	Symbol     string            `json:"symbol"`
	AssetClass domain.AssetClass `json:"asset_class,omitempty"`
	Timeframe  string            `json:"timeframe,omitempty"`
	StartDate  string            `json:"start_date"`
	EndDate    string            `json:"end_date"`
}

// FetchDataResponse reports how many bars a fetch stored.
type FetchDataResponse struct {
	Symbol string `json:"symbol"`
	Bars   int    `json:"bars"`
}

// AvailableAssetsResponse lists cached symbols grouped by asset class.
type AvailableAssetsResponse struct {
	Assets map[domain.AssetClass][]string `json:"assets"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// InfoResponse is the body of GET /.
type InfoResponse struct {
	Service string `json:"service"`
	Version string `json:"version"`
	Docs    string `json:"docs"`
}
