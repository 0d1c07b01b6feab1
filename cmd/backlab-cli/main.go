// backlab-cli runs backtests locally from files: a strategy definition in
// JSON and a bar series in CSV, no server required.
package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"backlab/internal/backtest"
	"backlab/internal/domain"
	"backlab/internal/strategy"
	"backlab/internal/util"
)

const version = "1.0.0"

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: backlab-cli <command> [options]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  version     Print the CLI version\n")
		fmt.Fprintf(os.Stderr, "  templates   Print the built-in strategy templates as JSON\n")
		fmt.Fprintf(os.Stderr, "  backtest    Run a backtest from a strategy JSON and a bars CSV\n")
		fmt.Fprintf(os.Stderr, "\n")
	}

	if len(os.Args) < 2 {
		flag.Usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "version":
		fmt.Printf("backlab-cli %s\n", version)

	case "templates":
		if err := printTemplates(); err != nil {
			fmt.Fprintf(os.Stderr, "templates: %v\n", err)
			os.Exit(1)
		}

	case "backtest":
		if err := runBacktest(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "backtest: %v\n", err)
			os.Exit(1)
		}

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		flag.Usage()
		os.Exit(1)
	}
}

func printTemplates() error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(strategy.Templates())
}

func runBacktest(args []string) error {
	fs := flag.NewFlagSet("backtest", flag.ExitOnError)
	strategyPath := fs.String("strategy", "", "path to a strategy definition JSON file")
	barsPath := fs.String("bars", "", "path to a bars CSV file (date,open,high,low,close,volume)")
	symbol := fs.String("symbol", "FILE", "symbol label for the result")
	capital := fs.Float64("capital", 10_000, "initial capital")
	commission := fs.Float64("commission", 0.001, "commission rate per side")
	fs.Parse(args)

	if *strategyPath == "" || *barsPath == "" {
		return fmt.Errorf("-strategy and -bars are required")
	}

	def, err := loadStrategy(*strategyPath)
	if err != nil {
		return err
	}
	bars, err := loadBars(*barsPath, *symbol)
	if err != nil {
		return err
	}

	engine := backtest.New(backtest.Config{}, util.NewLogger("warn", "text"))
	result, err := engine.Run(backtest.RunParams{
		Symbol:         *symbol,
		AssetClass:     domain.AssetStock,
		Timeframe:      "1d",
		Bars:           bars,
		Definition:     *def,
		InitialCapital: *capital,
		CommissionRate: commission,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func loadStrategy(path string) (*domain.StrategyDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var def domain.StrategyDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parsing strategy %s: %w", path, err)
	}
	return &def, nil
}

// loadBars reads a CSV with a date,open,high,low,close,volume header. Dates
// are YYYY-MM-DD.
func loadBars(path, symbol string) ([]domain.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}
	if len(header) < 6 {
		return nil, fmt.Errorf("CSV needs date,open,high,low,close,volume columns")
	}

	var bars []domain.Bar
	for line := 2; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV line %d: %w", line, err)
		}

		ts, err := time.Parse("2006-01-02", rec[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid date %q", line, rec[0])
		}
		vals := make([]float64, 4)
		for i := 0; i < 4; i++ {
			if vals[i], err = strconv.ParseFloat(rec[i+1], 64); err != nil {
				return nil, fmt.Errorf("line %d: invalid %s %q", line, header[i+1], rec[i+1])
			}
		}
		volume, err := strconv.ParseInt(rec[5], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid volume %q", line, rec[5])
		}

		bars = append(bars, domain.Bar{
			Symbol:    symbol,
			Timestamp: ts,
			Open:      vals[0],
			High:      vals[1],
			Low:       vals[2],
			Close:     vals[3],
			Volume:    volume,
		})
	}
	return bars, nil
}
