// Package paper implements the synthetic trade matcher used by demo
// ("paper") challenges: orders are never routed to the exchange, only
// simulated against the live price feed. Grounded on the teacher's
// internal/order/dry_run.go DryRunExecutor/MockExecutor, generalized from a
// single process-wide mock book to one book per challenge, and on its
// pkg/config DryRunFeeRate/DryRunSlippageBps/DryRunGwLatencyMinMs/MaxMs
// fields, carried here as SimConfig.
package paper

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/simex888888-dotcom/prop-trading-app1/internal/ledger"
	"github.com/simex888888-dotcom/prop-trading-app1/pkg/money"
)

var (
	ErrUnknownSymbol    = errors.New("paper: no price available for symbol")
	ErrInsufficientSize = errors.New("paper: qty must be positive")
)

// OrderType distinguishes immediate-fill market orders from resting limit
// orders.
type OrderType string

const (
	TypeMarket OrderType = "market"
	TypeLimit  OrderType = "limit"
)

// PriceSource is the subset of internal/pricefeed.Feed the matcher needs.
// Kept as an interface so tests can supply a fixed price map without a
// live stream.
type PriceSource interface {
	Price(symbol string) (decimal.Decimal, time.Time, error)
}

// SimConfig carries the simulated-fill parameters, named after the
// teacher's DryRunSimConfig fields but scoped to this challenge engine.
type SimConfig struct {
	FeeRate             decimal.Decimal // e.g. 0.0004 = 4bps taker fee
	SlippageBps         decimal.Decimal // applied to market fills only
	GatewayLatencyMinMs int
	GatewayLatencyMaxMs int
}

// DefaultSimConfig matches the teacher's defaults for a USDT-M taker.
func DefaultSimConfig() SimConfig {
	return SimConfig{
		FeeRate:             decimal.NewFromFloat(0.0004),
		SlippageBps:         decimal.NewFromInt(2),
		GatewayLatencyMinMs: 10,
		GatewayLatencyMaxMs: 120,
	}
}

// SimConfigFromEnv builds a SimConfig from the PAPER_* settings in
// pkg/config.Config, the challenge-engine-specific names the teacher's
// DryRunFeeRate/DryRunSlippageBps/DryRunGwLatencyMinMs/MaxMs fields were
// carried forward as.
func SimConfigFromEnv(feeRate, slippageBps float64, latencyMinMs, latencyMaxMs int) SimConfig {
	return SimConfig{
		FeeRate:             decimal.NewFromFloat(feeRate),
		SlippageBps:         decimal.NewFromFloat(slippageBps),
		GatewayLatencyMinMs: latencyMinMs,
		GatewayLatencyMaxMs: latencyMaxMs,
	}
}

// restingOrder is a limit order waiting for the price feed to cross its
// limit price.
type restingOrder struct {
	id        string
	symbol    string
	direction ledger.Direction
	qty       decimal.Decimal
	limit     decimal.Decimal
	placedAt  time.Time
}

// book holds one challenge's open position and resting limit orders. A
// paper book only ever carries a single net position per symbol, matching
// the teacher's MockExecutor netting behaviour.
type book struct {
	mu        sync.Mutex
	positions map[string]*position
	resting   []restingOrder
}

type position struct {
	symbol     string
	direction  ledger.Direction
	qty        decimal.Decimal
	entryPrice decimal.Decimal
	openedAt   time.Time
}

// Fill describes a completed synthetic trade, ready to be persisted via
// ledger.Store.CreateTrade once a position closes.
type Fill struct {
	OrderID   string
	Symbol    string
	Direction ledger.Direction
	Qty       decimal.Decimal
	Price     decimal.Decimal
	Fee       decimal.Decimal
	Closed    bool        // true if this fill reduced, closed, or flipped an open position
	Trade     ledger.Trade // populated only when Closed
}

// Matcher runs the synthetic book for every demo-mode challenge in the
// engine. One Matcher instance is shared across challenges; books are
// created lazily per challenge id.
type Matcher struct {
	prices PriceSource
	cfg    SimConfig
	rng    *rand.Rand

	mu    sync.Mutex
	books map[string]*book
}

func New(prices PriceSource, cfg SimConfig) *Matcher {
	return &Matcher{
		prices: prices,
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(1)),
		books:  make(map[string]*book),
	}
}

func (m *Matcher) bookFor(challengeID string) *book {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[challengeID]
	if !ok {
		b = &book{positions: make(map[string]*position)}
		m.books[challengeID] = b
	}
	return b
}

// Submit places an order for a challenge's paper book. Market orders fill
// immediately at mark price plus/minus simulated slippage; limit orders
// rest until Tick observes the price feed cross the limit.
func (m *Matcher) Submit(ctx context.Context, challengeID, symbol string, dir ledger.Direction, typ OrderType, qty, limitPrice decimal.Decimal) (*Fill, error) {
	if qty.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInsufficientSize
	}

	m.simulateLatency()

	b := m.bookFor(challengeID)

	if typ == TypeLimit {
		b.mu.Lock()
		b.resting = append(b.resting, restingOrder{
			id: uuid.NewString(), symbol: symbol, direction: dir,
			qty: qty, limit: limitPrice, placedAt: time.Now().UTC(),
		})
		b.mu.Unlock()
		return nil, nil
	}

	mark, _, err := m.prices.Price(symbol)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	fillPrice := m.applySlippage(mark, dir)
	return m.applyFill(b, challengeID, symbol, dir, qty, fillPrice)
}

// Tick walks one challenge's resting limit orders against the current
// price feed and fills any that have crossed. Call this once per
// orchestrator tick (or on its own faster interval) for every demo
// challenge's book.
func (m *Matcher) Tick(challengeID string) []*Fill {
	b := m.bookFor(challengeID)

	b.mu.Lock()
	var remaining []restingOrder
	var crossed []restingOrder
	for _, o := range b.resting {
		mark, _, err := m.prices.Price(o.symbol)
		if err != nil {
			remaining = append(remaining, o)
			continue
		}
		if crossesLimit(o.direction, mark, o.limit) {
			crossed = append(crossed, o)
		} else {
			remaining = append(remaining, o)
		}
	}
	b.resting = remaining
	b.mu.Unlock()

	var fills []*Fill
	for _, o := range crossed {
		f, err := m.applyFill(b, challengeID, o.symbol, o.direction, o.qty, o.limit)
		if err == nil && f != nil {
			fills = append(fills, f)
		}
	}
	return fills
}

func crossesLimit(dir ledger.Direction, mark, limit decimal.Decimal) bool {
	if dir == ledger.DirLong {
		return mark.LessThanOrEqual(limit)
	}
	return mark.GreaterThanOrEqual(limit)
}

func (m *Matcher) applySlippage(mark decimal.Decimal, dir ledger.Direction) decimal.Decimal {
	if m.cfg.SlippageBps.IsZero() {
		return mark
	}
	noise := decimal.NewFromFloat(m.rng.Float64()).Mul(m.cfg.SlippageBps).Div(decimal.NewFromInt(10000))
	if dir == ledger.DirLong {
		return mark.Mul(decimal.NewFromInt(1).Add(noise))
	}
	return mark.Mul(decimal.NewFromInt(1).Sub(noise))
}

func (m *Matcher) simulateLatency() {
	min, max := m.cfg.GatewayLatencyMinMs, m.cfg.GatewayLatencyMaxMs
	if max <= 0 {
		return
	}
	if min < 0 {
		min = 0
	}
	if min > max {
		min, max = max, min
	}
	delayMs := min
	if span := max - min; span > 0 {
		delayMs += m.rng.Intn(span + 1)
	}
	if delayMs > 0 {
		time.Sleep(time.Duration(delayMs) * time.Millisecond)
	}
}

// applyFill nets the order against the book's open position for the
// symbol. Opening or adding to a position produces an unrealized Fill;
// reducing, closing, or flipping one produces a Closed Fill with a
// populated ledger.Trade ready for persistence.
func (m *Matcher) applyFill(b *book, challengeID, symbol string, dir ledger.Direction, qty, price decimal.Decimal) (*Fill, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	fee := money.RoundFiat(price.Mul(qty).Mul(m.cfg.FeeRate))
	pos, open := b.positions[symbol]

	if !open {
		b.positions[symbol] = &position{symbol: symbol, direction: dir, qty: qty, entryPrice: price, openedAt: time.Now().UTC()}
		return &Fill{OrderID: uuid.NewString(), Symbol: symbol, Direction: dir, Qty: qty, Price: price, Fee: fee}, nil
	}

	if pos.direction == dir {
		totalValue := pos.qty.Mul(pos.entryPrice).Add(qty.Mul(price))
		pos.qty = pos.qty.Add(qty)
		if !pos.qty.IsZero() {
			pos.entryPrice = totalValue.Div(pos.qty)
		}
		return &Fill{OrderID: uuid.NewString(), Symbol: symbol, Direction: dir, Qty: qty, Price: price, Fee: fee}, nil
	}

	closeQty := decimal.Min(pos.qty, qty)
	pnl := m.unrealizedPnL(pos.direction, pos.entryPrice, price, closeQty)
	trade := ledger.Trade{
		ID:          uuid.NewString(),
		ChallengeID: challengeID,
		Symbol:      symbol,
		Direction:   pos.direction,
		EntryPrice:  pos.entryPrice,
		ExitPrice:   price,
		Quantity:    closeQty,
		RealizedPnL: money.RoundFiat(pnl.Sub(fee)),
		PnLPct:      pnlPct(pos.entryPrice, pnl, closeQty),
		OpenedAt:    pos.openedAt,
		ClosedAt:    time.Now().UTC(),
	}
	trade.DurationSeconds = int64(trade.ClosedAt.Sub(trade.OpenedAt).Seconds())

	remaining := pos.qty.Sub(closeQty)
	switch {
	case remaining.IsZero() && qty.Equal(closeQty):
		delete(b.positions, symbol)
	case remaining.IsZero():
		flipQty := qty.Sub(closeQty)
		b.positions[symbol] = &position{symbol: symbol, direction: dir, qty: flipQty, entryPrice: price, openedAt: time.Now().UTC()}
	default:
		pos.qty = remaining
	}

	return &Fill{OrderID: trade.ID, Symbol: symbol, Direction: pos.direction, Qty: closeQty, Price: price, Fee: fee, Closed: true, Trade: trade}, nil
}

func (m *Matcher) unrealizedPnL(dir ledger.Direction, entry, exit, qty decimal.Decimal) decimal.Decimal {
	diff := exit.Sub(entry)
	if dir == ledger.DirShort {
		diff = diff.Neg()
	}
	return diff.Mul(qty)
}

func pnlPct(entry, pnl, qty decimal.Decimal) decimal.Decimal {
	basis := entry.Mul(qty)
	return money.SafeDiv(pnl, basis).Mul(decimal.NewFromInt(100))
}
