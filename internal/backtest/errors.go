package backtest

import "fmt"

// InsufficientDataError reports a price series shorter than the longest
// indicator warm-up required by the strategy. It is returned before the
// simulation loop starts; the simulation itself never runs.
type InsufficientDataError struct {
	Required int
	Actual   int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: strategy requires %d bars to warm up, got %d", e.Required, e.Actual)
}
