// Package orchestrator runs the periodic per-challenge tick described in
// §4.7: fetch the account balance, roll the daily reset, recompute
// drawdowns, invoke the rule engine, and apply whatever transition or
// scaling step results. Open positions are not fetched; equity is taken
// from the balance (wallet plus unrealized P&L). Grounded on the teacher's internal/balance
// MultiUserManager (per-key registry with GetOrCreate/idle cleanup,
// generalized here to per-challenge exclusive locks) and
// internal/reconciliation.Service's ticker-driven Start(ctx) loop
// (generalized to bounded-fan-out concurrent processing).
package orchestrator

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/simex888888-dotcom/prop-trading-app1/internal/challenge"
	"github.com/simex888888-dotcom/prop-trading-app1/internal/gateway"
	"github.com/simex888888-dotcom/prop-trading-app1/internal/ledger"
	"github.com/simex888888-dotcom/prop-trading-app1/internal/notify"
	"github.com/simex888888-dotcom/prop-trading-app1/internal/rules"
	"github.com/simex888888-dotcom/prop-trading-app1/pkg/money"
)

// Scheduler drives the periodic tick. One Scheduler runs for the whole
// process; per-challenge exclusive locks live inside it rather than in
// the database, since the spec's locking discipline only requires a row
// lock for the duration of the commit itself.
type Scheduler struct {
	store  *ledger.Store
	gw     *gateway.Manager
	svc    *challenge.Service
	notify notify.Sink

	interval time.Duration
	fanOut   int

	locksMu  sync.Mutex
	inFlight map[string]bool

	warnMu sync.Mutex
	warned map[string]warningState // challengeID -> last warning sent
}

type warningState struct {
	daily string // day string a daily warning was last sent for
	total string // day string a total warning was last sent for
}

// Config configures a Scheduler's tick cadence and fan-out.
type Config struct {
	Interval time.Duration
	FanOut   int
}

// NewScheduler wires the tick loop to its collaborators.
func NewScheduler(store *ledger.Store, gw *gateway.Manager, svc *challenge.Service, sink notify.Sink, cfg Config) *Scheduler {
	if cfg.FanOut <= 0 {
		cfg.FanOut = 16
	}
	return &Scheduler{
		store:    store,
		gw:       gw,
		svc:      svc,
		notify:   sink,
		interval: cfg.Interval,
		fanOut:   cfg.FanOut,
		inFlight: make(map[string]bool),
		warned:   make(map[string]warningState),
	}
}

// Start runs Tick every interval until ctx is cancelled, the same
// ticker-and-select shape as the teacher's reconciliation.Service.Start.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := s.Tick(ctx); err != nil {
					log.Printf("orchestrator: tick error: %v", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	log.Printf("✓ Orchestrator started (interval: %v, fan-out: %d)", s.interval, s.fanOut)
}

// Tick processes every active challenge, up to fanOut concurrently. A
// challenge whose previous tick is still running is skipped outright
// (max_instances = 1, coalesce, per §4.7) rather than queued.
func (s *Scheduler) Tick(ctx context.Context) error {
	challenges, err := s.store.ListActiveChallenges(ctx)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.fanOut)

	for _, c := range challenges {
		c := c
		if !s.tryEnter(c.ID) {
			continue
		}
		g.Go(func() error {
			defer s.exit(c.ID)
			if err := s.processChallenge(gctx, c); err != nil {
				log.Printf("orchestrator: challenge %s: %v", c.ID, err)
			}
			return nil
		})
	}

	return g.Wait()
}

func (s *Scheduler) tryEnter(challengeID string) bool {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	if s.inFlight[challengeID] {
		return false
	}
	s.inFlight[challengeID] = true
	return true
}

func (s *Scheduler) exit(challengeID string) {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	delete(s.inFlight, challengeID)
}

// processChallenge runs steps 2-11 of §4.7 for a single challenge.
func (s *Scheduler) processChallenge(ctx context.Context, c ledger.Challenge) error {
	plan, err := s.store.GetChallengePlan(ctx, c.PlanID)
	if err != nil {
		return err
	}

	gw, err := s.gw.GetOrCreate(ctx, c.ID)
	if err != nil {
		return err
	}

	bal, err := gw.GetBalance(ctx)
	if err != nil {
		return err
	}
	equity := money.FromFloat(bal.Equity)

	c.CurrentBalance = money.FromFloat(bal.Wallet)
	if equity.GreaterThan(c.PeakEquity) {
		c.PeakEquity = equity
	}

	s.applyDailyReset(ctx, &c)

	c.TotalPnL = equity.Sub(c.InitialBalance)
	c.DailyPnL = equity.Sub(c.DailyStartBalance)

	todayPnL, err := s.store.SumRealizedPnLSince(ctx, c.ID, c.DailyResetAt)
	if err != nil {
		return err
	}

	snap := c.ToSnapshot(todayPnL)
	planSnap := plan.ToSnapshot()

	decision := rules.Evaluate(planSnap, snap, equity)
	if decision.IsOK() {
		if err := s.store.UpdateChallengeBalances(ctx, c); err != nil {
			return err
		}
		// Warnings go out only after the balances they describe are committed.
		s.emitWarnings(c, planSnap, snap, equity)
		if c.Status == ledger.StatusFunded {
			if _, scaled, err := s.svc.MaybeScale(ctx, c); err != nil {
				return err
			} else if scaled {
				return nil
			}
		}
		return nil
	}

	_, err = s.svc.ApplyDecision(ctx, c, decision)
	return err
}

// applyDailyReset rolls daily_start_balance/daily_pnl/daily_reset_at and
// conditionally increments trading_days_count per §4.8: only if a trade
// closed during the day that just ended and no violation occurred in it.
func (s *Scheduler) applyDailyReset(ctx context.Context, c *ledger.Challenge) {
	now := time.Now().UTC()
	prevDay := c.DailyResetAt.UTC().Truncate(24 * time.Hour)
	today := now.Truncate(24 * time.Hour)
	if !today.After(prevDay) {
		return
	}

	dayEnd := prevDay.Add(24 * time.Hour)
	traded, err := s.store.HasTradeClosedBetween(ctx, c.ID, prevDay, dayEnd)
	if err != nil {
		log.Printf("orchestrator: challenge %s: daily-reset trade check failed: %v", c.ID, err)
		traded = false
	}
	violated, err := s.store.HasViolationSince(ctx, c.ID, prevDay)
	if err != nil {
		log.Printf("orchestrator: challenge %s: daily-reset violation check failed: %v", c.ID, err)
		violated = true // fail closed: don't credit a day we couldn't verify
	}

	if traded && !violated {
		c.TradingDaysCount++
	}

	c.DailyStartBalance = c.CurrentBalance
	c.DailyPnL = money.Zero
	c.DailyResetAt = now
}

// emitWarnings pushes an 80%-of-limit drawdown notification at most once
// per challenge per day per warning type, per §4.7 step 6.
func (s *Scheduler) emitWarnings(c ledger.Challenge, plan rules.PlanSnapshot, snap rules.ChallengeSnapshot, equity money.D) {
	today := time.Now().UTC().Format("2006-01-02")

	s.warnMu.Lock()
	state := s.warned[c.ID]
	s.warnMu.Unlock()

	if rules.DailyWarning(plan, snap, equity) == rules.WarningApproach && state.daily != today {
		s.notify.Publish(notify.Notification{
			ChallengeID: c.ID, UserID: c.UserID, Kind: notify.KindWarning,
			Message:    "daily drawdown approaching limit",
			OccurredAt: time.Now(),
		})
		state.daily = today
	}
	if rules.TotalWarning(plan, snap, equity) == rules.WarningApproach && state.total != today {
		s.notify.Publish(notify.Notification{
			ChallengeID: c.ID, UserID: c.UserID, Kind: notify.KindWarning,
			Message:    "total drawdown approaching limit",
			OccurredAt: time.Now(),
		})
		state.total = today
	}

	s.warnMu.Lock()
	s.warned[c.ID] = state
	s.warnMu.Unlock()
}
