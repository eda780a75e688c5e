package paper

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/simex888888-dotcom/prop-trading-app1/internal/ledger"
)

type fixedPrices struct {
	prices map[string]decimal.Decimal
}

func (f fixedPrices) Price(symbol string) (decimal.Decimal, time.Time, error) {
	p, ok := f.prices[symbol]
	if !ok {
		return decimal.Zero, time.Time{}, ErrUnknownSymbol
	}
	return p, time.Now(), nil
}

func zeroSlippage() SimConfig {
	return SimConfig{FeeRate: decimal.Zero, SlippageBps: decimal.Zero}
}

func TestSubmit_MarketOrderOpensPosition(t *testing.T) {
	prices := fixedPrices{prices: map[string]decimal.Decimal{"BTCUSDT": decimal.NewFromInt(50000)}}
	m := New(prices, zeroSlippage())

	fill, err := m.Submit(context.Background(), "c1", "BTCUSDT", ledger.DirLong, TypeMarket, decimal.NewFromInt(1), decimal.Zero)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fill == nil || fill.Closed {
		t.Fatalf("expected an opening (non-closed) fill, got %+v", fill)
	}
	if !fill.Price.Equal(decimal.NewFromInt(50000)) {
		t.Errorf("fill price = %s, want 50000", fill.Price)
	}
}

func TestSubmit_OppositeSideClosesAndRealizesPnL(t *testing.T) {
	tests := []struct {
		name       string
		dir        ledger.Direction
		entry      int64
		exit       int64
		wantProfit bool
	}{
		{"long profits on rise", ledger.DirLong, 50000, 51000, true},
		{"long loses on fall", ledger.DirLong, 50000, 49000, false},
		{"short profits on fall", ledger.DirShort, 50000, 49000, true},
		{"short loses on rise", ledger.DirShort, 50000, 51000, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prices := fixedPrices{prices: map[string]decimal.Decimal{"BTCUSDT": decimal.NewFromInt(tt.entry)}}
			m := New(prices, zeroSlippage())
			ctx := context.Background()

			if _, err := m.Submit(ctx, "c1", "BTCUSDT", tt.dir, TypeMarket, decimal.NewFromInt(1), decimal.Zero); err != nil {
				t.Fatalf("open: %v", err)
			}

			prices.prices["BTCUSDT"] = decimal.NewFromInt(tt.exit)
			opposite := ledger.DirShort
			if tt.dir == ledger.DirShort {
				opposite = ledger.DirLong
			}

			fill, err := m.Submit(ctx, "c1", "BTCUSDT", opposite, TypeMarket, decimal.NewFromInt(1), decimal.Zero)
			if err != nil {
				t.Fatalf("close: %v", err)
			}
			if !fill.Closed {
				t.Fatalf("expected closed fill")
			}
			isProfit := fill.Trade.RealizedPnL.IsPositive()
			if isProfit != tt.wantProfit {
				t.Errorf("RealizedPnL = %s, want profit=%v", fill.Trade.RealizedPnL, tt.wantProfit)
			}
		})
	}
}

func TestSubmit_LimitOrderRestsUntilTick(t *testing.T) {
	prices := fixedPrices{prices: map[string]decimal.Decimal{"BTCUSDT": decimal.NewFromInt(50000)}}
	m := New(prices, zeroSlippage())
	ctx := context.Background()

	fill, err := m.Submit(ctx, "c1", "BTCUSDT", ledger.DirLong, TypeLimit, decimal.NewFromInt(1), decimal.NewFromInt(48000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fill != nil {
		t.Fatalf("limit order should not fill immediately, got %+v", fill)
	}

	if fills := m.Tick("c1"); len(fills) != 0 {
		t.Fatalf("limit not yet crossed, expected no fills, got %d", len(fills))
	}

	prices.prices["BTCUSDT"] = decimal.NewFromInt(47000)
	fills := m.Tick("c1")
	if len(fills) != 1 {
		t.Fatalf("expected 1 fill after crossing limit, got %d", len(fills))
	}
	if !fills[0].Price.Equal(decimal.NewFromInt(48000)) {
		t.Errorf("limit fill price = %s, want 48000 (the limit, not the mark)", fills[0].Price)
	}
}

func TestSubmit_RejectsNonPositiveQty(t *testing.T) {
	prices := fixedPrices{prices: map[string]decimal.Decimal{"BTCUSDT": decimal.NewFromInt(50000)}}
	m := New(prices, zeroSlippage())

	_, err := m.Submit(context.Background(), "c1", "BTCUSDT", ledger.DirLong, TypeMarket, decimal.Zero, decimal.Zero)
	if err != ErrInsufficientSize {
		t.Errorf("err = %v, want ErrInsufficientSize", err)
	}
}

func TestSubmit_UnknownSymbolErrors(t *testing.T) {
	m := New(fixedPrices{prices: map[string]decimal.Decimal{}}, zeroSlippage())

	_, err := m.Submit(context.Background(), "c1", "DOGEUSDT", ledger.DirLong, TypeMarket, decimal.NewFromInt(1), decimal.Zero)
	if err == nil {
		t.Error("expected error for unpriced symbol")
	}
}

func TestBooksAreIsolatedPerChallenge(t *testing.T) {
	prices := fixedPrices{prices: map[string]decimal.Decimal{"BTCUSDT": decimal.NewFromInt(50000)}}
	m := New(prices, zeroSlippage())
	ctx := context.Background()

	if _, err := m.Submit(ctx, "c1", "BTCUSDT", ledger.DirLong, TypeMarket, decimal.NewFromInt(1), decimal.Zero); err != nil {
		t.Fatal(err)
	}

	b2 := m.bookFor("c2")
	if len(b2.positions) != 0 {
		t.Errorf("challenge c2's book should start empty, got %d positions", len(b2.positions))
	}
}
