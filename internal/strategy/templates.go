package strategy

import "backlab/internal/domain"

// Template is a pre-built strategy users can start from.
type Template struct {
	ID         string                    `json:"id"`
	Name       string                    `json:"name"`
	Description string                   `json:"description"`
	Difficulty string                    `json:"difficulty"`
	Definition domain.StrategyDefinition `json:"definition"`
}

// Templates returns the built-in strategy catalog. Each returned definition
// passes Validate.
func Templates() []Template {
	return []Template{
		{
			ID:          "sma_crossover",
			Name:        "SMA Crossover",
			Description: "Simple moving average crossover strategy",
			Difficulty:  "beginner",
			Definition: domain.StrategyDefinition{
				Name:        "SMA Crossover",
				Description: "Buy when fast SMA crosses above slow SMA, sell when it crosses below",
				EntryRules: []domain.Rule{
					{
						Indicator: domain.IndicatorSMA,
						Params:    domain.IndicatorParams{Period: 50},
						Condition: domain.CondCrossesAbove,
						CompareTo: domain.IndicatorTarget(domain.IndicatorRef{
							Kind:   domain.IndicatorSMA,
							Params: domain.IndicatorParams{Period: 200},
						}),
					},
				},
				ExitRules: []domain.Rule{
					{
						Indicator: domain.IndicatorSMA,
						Params:    domain.IndicatorParams{Period: 50},
						Condition: domain.CondCrossesBelow,
						CompareTo: domain.IndicatorTarget(domain.IndicatorRef{
							Kind:   domain.IndicatorSMA,
							Params: domain.IndicatorParams{Period: 200},
						}),
					},
				},
				PositionSize: 1.0,
			},
		},
		{
			ID:          "rsi_mean_reversion",
			Name:        "RSI Mean Reversion",
			Description: "Buy oversold, sell overbought based on RSI",
			Difficulty:  "beginner",
			Definition: domain.StrategyDefinition{
				Name:        "RSI Mean Reversion",
				Description: "Buy when RSI < 30, sell when RSI > 70",
				EntryRules: []domain.Rule{
					{
						Indicator: domain.IndicatorRSI,
						Params:    domain.IndicatorParams{Period: 14},
						Condition: domain.CondLessThan,
						CompareTo: domain.ScalarTarget(30),
					},
				},
				ExitRules: []domain.Rule{
					{
						Indicator: domain.IndicatorRSI,
						Params:    domain.IndicatorParams{Period: 14},
						Condition: domain.CondGreaterThan,
						CompareTo: domain.ScalarTarget(70),
					},
				},
				PositionSize: 1.0,
			},
		},
		{
			ID:          "macd_signal_cross",
			Name:        "MACD Signal Cross",
			Description: "Trade based on MACD line crossing its signal line",
			Difficulty:  "intermediate",
			Definition: domain.StrategyDefinition{
				Name:        "MACD Signal Cross",
				Description: "Buy when MACD crosses above signal, sell when it crosses below",
				EntryRules: []domain.Rule{
					{
						Indicator: domain.IndicatorMACD,
						Params:    domain.IndicatorParams{Fast: 12, Slow: 26, Signal: 9},
						Condition: domain.CondCrossesAbove,
						CompareTo: domain.SignalTarget(),
					},
				},
				ExitRules: []domain.Rule{
					{
						Indicator: domain.IndicatorMACD,
						Params:    domain.IndicatorParams{Fast: 12, Slow: 26, Signal: 9},
						Condition: domain.CondCrossesBelow,
						CompareTo: domain.SignalTarget(),
					},
				},
				PositionSize: 1.0,
			},
		},
	}
}
