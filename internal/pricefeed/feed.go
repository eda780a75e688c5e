// Package pricefeed supplies the latest traded price for a finite
// allow-list of instruments with bounded staleness (§4.1). It subscribes
// to the exchange's trade stream and refreshes every allow-listed symbol
// from REST at start-up and every ttl/2; Price itself makes no REST fetch
// on a miss or a stale entry.
package pricefeed

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/jpillora/backoff"
	"github.com/shopspring/decimal"

	"github.com/simex888888-dotcom/prop-trading-app1/pkg/cache"
	marketbinance "github.com/simex888888-dotcom/prop-trading-app1/pkg/market/binance"
)

var (
	ErrUnknownSymbol = errors.New("pricefeed: unknown symbol")
	ErrStale         = errors.New("pricefeed: price is stale")
)

// Feed maintains the recent-price map described in §4.1: a single
// long-lived streaming subscription per allow-listed symbol, fed into a
// shared sharded cache (grounded on pkg/cache.ShardedPriceCache), with a
// REST client filling gaps on stream disconnect or cold start.
type Feed struct {
	stream  *marketbinance.StreamClient
	rest    *marketbinance.Client
	cache   *cache.ShardedPriceCache
	symbols []string
	ttl     time.Duration
}

// New builds a Feed for the given allow-list. ttl bounds how old a
// cached price may be before Price returns ErrStale.
func New(stream *marketbinance.StreamClient, rest *marketbinance.Client, symbols []string, ttl time.Duration) *Feed {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Feed{
		stream:  stream,
		rest:    rest,
		cache:   cache.NewShardedPriceCache(),
		symbols: symbols,
		ttl:     ttl,
	}
}

// Start warms the cache from REST, then opens one trade-stream
// subscription per symbol with exponential-backoff reconnect (base 3s,
// per §4.1's grounding in opensqt's jpillora/backoff dependency). It
// returns once the initial REST warm-up completes; streaming continues
// in background goroutines until ctx is cancelled.
func (f *Feed) Start(ctx context.Context) {
	f.warmFromREST()

	for _, sym := range f.symbols {
		symbol := sym
		go f.runStream(ctx, symbol)
	}

	go f.pollLoop(ctx)
}

func (f *Feed) warmFromREST() {
	if f.rest == nil {
		return
	}
	for _, sym := range f.symbols {
		klines, err := f.rest.GetKlines(sym, "1m", 1, 0, 0)
		if err != nil || len(klines) == 0 {
			log.Printf("pricefeed: warm-up fetch %s failed: %v", sym, err)
			continue
		}
		f.cache.Set(sym, klines[len(klines)-1].Close)
	}
}

// pollLoop refreshes the whole allow-list in one batch-friendly sweep
// every ttl/2, covering gaps the stream misses (cold reconnect windows).
func (f *Feed) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(f.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.warmFromREST()
		}
	}
}

// runStream holds one symbol's trade-stream subscription open,
// reconnecting with exponential backoff on disconnect. SubscribeTrades'
// channel is buffered (100 trades) and closed when the connection ends;
// its reader blocks while the buffer is full rather than dropping trades,
// unlike notify.Bus.Publish. The only consumer is the cache write below.
func (f *Feed) runStream(ctx context.Context, symbol string) {
	b := &backoff.Backoff{
		Min:    3 * time.Second,
		Max:    time.Minute,
		Factor: 2,
		Jitter: true,
	}

	for {
		if ctx.Err() != nil {
			return
		}

		trades, stop, err := f.stream.SubscribeTrades(ctx, symbol)
		if err != nil {
			delay := b.Duration()
			log.Printf("pricefeed: %s stream dial failed, retrying in %v: %v", symbol, delay, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}

		b.Reset()
		for t := range trades {
			f.cache.Set(t.Symbol, t.Price)
		}
		stop()

		if ctx.Err() != nil {
			return
		}
		log.Printf("pricefeed: %s stream closed, reconnecting", symbol)
	}
}

// Price returns the latest price for symbol, or ErrUnknownSymbol /
// ErrStale.
func (f *Feed) Price(symbol string) (decimal.Decimal, time.Time, error) {
	price, age, ok := f.cache.GetWithAge(symbol)
	if !ok {
		return decimal.Zero, time.Time{}, ErrUnknownSymbol
	}
	if age > f.ttl {
		return decimal.Zero, time.Time{}, ErrStale
	}
	return decimal.NewFromFloat(price), time.Now().Add(-age), nil
}

// PricesAll returns every cached price regardless of staleness, for
// callers (e.g. exposure computation) that tolerate a slightly stale mark.
func (f *Feed) PricesAll() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(f.symbols))
	for _, sym := range f.symbols {
		if price, ok := f.cache.Get(sym); ok {
			out[sym] = decimal.NewFromFloat(price)
		}
	}
	return out
}
