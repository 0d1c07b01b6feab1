// Package backlab provides a Go SDK for the backlab-server REST API.
package backlab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to a running backlab-server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// BacktestRequest mirrors the server's backtest request body.
type BacktestRequest struct {
	Symbol             string                     `json:"symbol"`
	AssetClass         AssetClass          `json:"asset_class,omitempty"`
	Timeframe          string                     `json:"timeframe,omitempty"`
	StartDate          string                     `json:"start_date"`
	EndDate            string                     `json:"end_date"`
	StrategyID         string                     `json:"strategy_id,omitempty"`
	StrategyDefinition *StrategyDefinition `json:"strategy_definition,omitempty"`
	InitialCapital     float64                    `json:"initial_capital,omitempty"`
	Commission         *float64                   `json:"commission,omitempty"`
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backlab: HTTP %d: %s", e.StatusCode, e.Message)
}

// Health checks server liveness.
func (c *Client) Health(ctx context.Context) error {
	var out struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return err
	}
	if out.Status != "ok" {
		return fmt.Errorf("backlab: health status %q", out.Status)
	}
	return nil
}

// RunBacktest runs a backtest and returns the full result.
func (c *Client) RunBacktest(ctx context.Context, req BacktestRequest) (*BacktestResult, error) {
	var result BacktestResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/backtest/run", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateStrategy saves a strategy definition and returns the stored record.
func (c *Client) CreateStrategy(ctx context.Context, name, description string, def StrategyDefinition) (*Strategy, error) {
	body := map[string]any{
		"name":        name,
		"description": description,
		"definition":  def,
	}
	var st Strategy
	if err := c.do(ctx, http.MethodPost, "/api/v1/strategies", body, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// GetStrategy fetches a saved strategy by ID.
func (c *Client) GetStrategy(ctx context.Context, id string) (*Strategy, error) {
	var st Strategy
	if err := c.do(ctx, http.MethodGet, "/api/v1/strategies/"+id, nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// ListStrategies fetches all saved strategies.
func (c *Client) ListStrategies(ctx context.Context) ([]Strategy, error) {
	var out struct {
		Strategies []Strategy `json:"strategies"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/strategies", nil, &out); err != nil {
		return nil, err
	}
	return out.Strategies, nil
}

// DeleteStrategy removes a saved strategy by ID.
func (c *Client) DeleteStrategy(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/strategies/"+id, nil, nil)
}

// do sends one request and decodes the JSON response into out (when out is
// non-nil). Non-2xx responses become *APIError.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("backlab: encoding request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		msg := resp.Status
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("backlab: decoding response: %w", err)
	}
	return nil
}
