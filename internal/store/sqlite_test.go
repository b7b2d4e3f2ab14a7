package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"meridian/internal/domain"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
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

func TestSQLiteOrderCRUD(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 14, 30, 0, 0, time.UTC)

	order := &domain.Order{
		ID:         "ord-1",
		Symbol:     "AAPL",
		Side:       domain.OrderSideBuy,
		Type:       domain.OrderTypeLimit,
		Status:     domain.OrderStatusPending,
		Qty:        10,
		LimitPrice: 185.5,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.SaveOrder(ctx, order); err != nil {
		t.Fatalf("SaveOrder: %v", err)
	}

	got, err := s.GetOrder(ctx, "ord-1")
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if got.Symbol != "AAPL" || got.Side != domain.OrderSideBuy || got.Qty != 10 {
		t.Errorf("GetOrder = %+v", got)
	}
	if !got.CreatedAt.Equal(now) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, now)
	}

	// Fill the order and update.
	order.Status = domain.OrderStatusFilled
	order.FilledQty = 10
	order.FilledAvgPrice = 185.4
	order.UpdatedAt = now.Add(time.Minute)
	if err := s.UpdateOrder(ctx, order); err != nil {
		t.Fatalf("UpdateOrder: %v", err)
	}

	filled, err := s.ListOrders(ctx, domain.OrderStatusFilled)
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if len(filled) != 1 || filled[0].FilledAvgPrice != 185.4 {
		t.Errorf("ListOrders(filled) = %+v, want one filled order", filled)
	}

	pending, err := s.ListOrders(ctx, domain.OrderStatusPending)
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("ListOrders(pending) returned %d orders, want 0", len(pending))
	}
}

func TestSQLiteOrderNotFound(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	if _, err := s.GetOrder(ctx, "missing"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("GetOrder(missing) err = %v, want sql.ErrNoRows", err)
	}
	err := s.UpdateOrder(ctx, &domain.Order{ID: "missing", UpdatedAt: time.Now()})
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("UpdateOrder(missing) err = %v, want sql.ErrNoRows", err)
	}
}

func TestSQLitePositionUpsert(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	pos := &domain.Position{
		Symbol: "MSFT", Qty: 50, Side: domain.PositionSideLong,
		AvgEntryPrice: 400, MarketValue: 20500, UnrealizedPL: 500,
	}
	if err := s.SavePosition(ctx, pos); err != nil {
		t.Fatalf("SavePosition: %v", err)
	}

	// Upsert with new quantity.
	pos.Qty = 75
	pos.MarketValue = 30750
	if err := s.SavePosition(ctx, pos); err != nil {
		t.Fatalf("SavePosition (upsert): %v", err)
	}

	got, err := s.GetPosition(ctx, "MSFT")
	if err != nil {
		t.Fatalf("GetPosition: %v", err)
	}
	if got.Qty != 75 || got.MarketValue != 30750 {
		t.Errorf("position after upsert = %+v", got)
	}

	all, err := s.ListPositions(ctx)
	if err != nil {
		t.Fatalf("ListPositions: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("ListPositions returned %d, want 1 (upsert must not duplicate)", len(all))
	}

	if err := s.DeletePosition(ctx, "MSFT"); err != nil {
		t.Fatalf("DeletePosition: %v", err)
	}
	if _, err := s.GetPosition(ctx, "MSFT"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("GetPosition after delete err = %v, want sql.ErrNoRows", err)
	}
}

func TestSQLiteSignals(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		sig := &domain.Signal{
			StrategyID: "rsi",
			Symbol:     "NVDA",
			Type:       domain.SignalTypeBuy,
			Strength:   0.8,
			Qty:        1,
			Metadata:   map[string]string{"reason": "oversold"},
			CreatedAt:  base.Add(time.Duration(i) * time.Hour),
		}
		if err := s.SaveSignal(ctx, sig); err != nil {
			t.Fatalf("SaveSignal: %v", err)
		}
		if sig.ID == 0 {
			t.Error("SaveSignal did not set the generated ID")
		}
	}

	got, err := s.ListSignals(ctx, "rsi", 3)
	if err != nil {
		t.Fatalf("ListSignals: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("ListSignals returned %d, want 3 (limit)", len(got))
	}
	// Newest first.
	if !got[0].CreatedAt.After(got[1].CreatedAt) {
		t.Error("signals are not ordered newest first")
	}
	if got[0].Metadata["reason"] != "oversold" {
		t.Errorf("metadata = %v, want round-tripped map", got[0].Metadata)
	}

	other, err := s.ListSignals(ctx, "macd", 10)
	if err != nil {
		t.Fatalf("ListSignals: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("ListSignals for other strategy returned %d, want 0", len(other))
	}
}

func TestSQLiteBacktestRuns(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	payload, _ := json.Marshal(map[string]any{"total_return": 0.12})
	run := &BacktestRun{
		ID:        "run-1",
		Strategy:  "sma-cross",
		Symbols:   []string{"AAPL", "MSFT"},
		StartDate: now.AddDate(-1, 0, 0),
		EndDate:   now,
		Result:    payload,
		CreatedAt: now,
	}
	if err := s.SaveBacktestRun(ctx, run); err != nil {
		t.Fatalf("SaveBacktestRun: %v", err)
	}

	got, err := s.GetBacktestRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetBacktestRun: %v", err)
	}
	if got.Strategy != "sma-cross" || len(got.Symbols) != 2 {
		t.Errorf("run = %+v", got)
	}
	var decoded map[string]any
	if err := json.Unmarshal(got.Result, &decoded); err != nil {
		t.Fatalf("result payload did not round-trip: %v", err)
	}
	if decoded["total_return"] != 0.12 {
		t.Errorf("result payload = %v", decoded)
	}

	runs, err := s.ListBacktestRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListBacktestRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("ListBacktestRuns returned %d, want 1", len(runs))
	}
	if len(runs[0].Result) != 0 {
		t.Error("list response should omit the result payload")
	}

	if _, err := s.GetBacktestRun(ctx, "missing"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("GetBacktestRun(missing) err = %v, want sql.ErrNoRows", err)
	}
}
