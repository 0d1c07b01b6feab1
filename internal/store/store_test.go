package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"backlab/internal/domain"
)

func sampleBars() []domain.Bar {
	return []domain.Bar{
		{
			Symbol:    "AAPL",
			Timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
			Open:      185.0, High: 186.5, Low: 184.0, Close: 185.5,
			Volume: 50000000,
		},
		{
			Symbol:    "AAPL",
			Timestamp: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
			Open:      185.5, High: 187.0, Low: 185.0, Close: 186.0,
			Volume: 45000000,
		},
	}
}

func TestParquetStorePath(t *testing.T) {
	ps := NewParquetStore("/data")

	got := ps.barPath(domain.AssetStock, "1d", "aapl", 2024)
	want := filepath.Join("/data", "stock", "1d", "AAPL", "2024.parquet")
	if got != want {
		t.Errorf("barPath mismatch:\n  got  %s\n  want %s", got, want)
	}
}

func TestParquetStoreWriteReadBars(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	if err := ps.WriteBars(ctx, domain.AssetStock, "1d", sampleBars()); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	got, err := ps.ReadBars(ctx, domain.AssetStock, "1d", "AAPL", start, end)
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadBars returned %d bars, want 2", len(got))
	}
	if got[0].Close != 185.5 || got[1].Close != 186.0 {
		t.Errorf("closes = %v, %v, want 185.5, 186.0", got[0].Close, got[1].Close)
	}

	// A narrower range filters by timestamp.
	got, err = ps.ReadBars(ctx, domain.AssetStock, "1d", "AAPL", start, time.Date(2024, 1, 2, 23, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ReadBars (narrow): %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("narrow ReadBars returned %d bars, want 1", len(got))
	}
}

func TestParquetStoreMergeBars(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	bars := sampleBars()
	if err := ps.WriteBars(ctx, domain.AssetStock, "1d", bars[:1]); err != nil {
		t.Fatalf("WriteBars (first): %v", err)
	}
	// Second write for the same symbol and year merges, not overwrites, and
	// a duplicate timestamp does not produce a duplicate bar.
	if err := ps.WriteBars(ctx, domain.AssetStock, "1d", bars); err != nil {
		t.Fatalf("WriteBars (second): %v", err)
	}

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	got, err := ps.ReadBars(ctx, domain.AssetStock, "1d", "AAPL", start, end)
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadBars returned %d bars after merge, want 2", len(got))
	}
	if !got[0].Timestamp.Before(got[1].Timestamp) {
		t.Error("merged bars are not sorted by timestamp")
	}
}

func TestParquetStoreListSymbols(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	bars := []domain.Bar{
		{Symbol: "AAPL", Timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Close: 185.5, Volume: 1},
		{Symbol: "GOOGL", Timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Close: 140.5, Volume: 1},
	}
	if err := ps.WriteBars(ctx, domain.AssetStock, "1d", bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	symbols, err := ps.ListSymbols(ctx, domain.AssetStock, "1d")
	if err != nil {
		t.Fatalf("ListSymbols: %v", err)
	}
	if len(symbols) != 2 || symbols[0] != "AAPL" || symbols[1] != "GOOGL" {
		t.Errorf("ListSymbols = %v, want [AAPL GOOGL]", symbols)
	}

	// A different asset class sees nothing.
	symbols, err = ps.ListSymbols(ctx, domain.AssetCrypto, "1d")
	if err != nil {
		t.Fatalf("ListSymbols (crypto): %v", err)
	}
	if len(symbols) != 0 {
		t.Errorf("crypto ListSymbols = %v, want empty", symbols)
	}
}

func TestParquetStoreStatsAndClear(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	if err := ps.WriteBars(ctx, domain.AssetStock, "1d", sampleBars()); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	stats, err := ps.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Files != 1 || stats.Bytes == 0 {
		t.Errorf("Stats = %+v, want 1 file with non-zero size", stats)
	}

	if err := ps.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	stats, err = ps.Stats()
	if err != nil {
		t.Fatalf("Stats after Clear: %v", err)
	}
	if stats.Files != 0 || stats.Bytes != 0 {
		t.Errorf("Stats after Clear = %+v, want empty", stats)
	}
}

func testStrategy() *domain.Strategy {
	return &domain.Strategy{
		Name:        "RSI Dip",
		Description: "Buy oversold",
		Definition: domain.StrategyDefinition{
			Name: "RSI Dip",
			EntryRules: []domain.Rule{{
				Indicator: domain.IndicatorRSI,
				Params:    domain.IndicatorParams{Period: 14},
				Condition: domain.CondLessThan,
				CompareTo: domain.ScalarTarget(30),
			}},
			PositionSize: 1.0,
		},
	}
}

func openSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return s
}

func TestSQLiteStoreCRUD(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()

	st := testStrategy()
	if err := s.CreateStrategy(ctx, st); err != nil {
		t.Fatalf("CreateStrategy: %v", err)
	}
	if st.ID == "" {
		t.Fatal("CreateStrategy did not assign an ID")
	}
	if st.CreatedAt.IsZero() || st.UpdatedAt.IsZero() {
		t.Error("CreateStrategy did not assign timestamps")
	}

	got, err := s.GetStrategy(ctx, st.ID)
	if err != nil {
		t.Fatalf("GetStrategy: %v", err)
	}
	if got.Name != "RSI Dip" {
		t.Errorf("Name = %q, want %q", got.Name, "RSI Dip")
	}
	if len(got.Definition.EntryRules) != 1 {
		t.Fatalf("definition round trip lost entry rules: %+v", got.Definition)
	}
	rule := got.Definition.EntryRules[0]
	if rule.CompareTo.Scalar == nil || *rule.CompareTo.Scalar != 30 {
		t.Errorf("compare_to scalar did not survive storage: %+v", rule.CompareTo)
	}

	got.Description = "updated"
	if err := s.UpdateStrategy(ctx, got); err != nil {
		t.Fatalf("UpdateStrategy: %v", err)
	}
	got2, err := s.GetStrategy(ctx, st.ID)
	if err != nil {
		t.Fatalf("GetStrategy after update: %v", err)
	}
	if got2.Description != "updated" {
		t.Errorf("Description = %q after update, want %q", got2.Description, "updated")
	}
	if got2.UpdatedAt.Before(got2.CreatedAt) {
		t.Error("UpdatedAt was not bumped")
	}

	list, err := s.ListStrategies(ctx)
	if err != nil {
		t.Fatalf("ListStrategies: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("ListStrategies returned %d strategies, want 1", len(list))
	}

	if err := s.DeleteStrategy(ctx, st.ID); err != nil {
		t.Fatalf("DeleteStrategy: %v", err)
	}
	if _, err := s.GetStrategy(ctx, st.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetStrategy after delete = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStoreNotFound(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()

	if _, err := s.GetStrategy(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetStrategy = %v, want ErrNotFound", err)
	}
	if err := s.DeleteStrategy(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteStrategy = %v, want ErrNotFound", err)
	}
	st := testStrategy()
	st.ID = "missing"
	if err := s.UpdateStrategy(ctx, st); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateStrategy = %v, want ErrNotFound", err)
	}
}
