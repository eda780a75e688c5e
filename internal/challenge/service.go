// Package challenge implements the lifecycle state machine: applying a
// rules.Decision to a persisted Challenge, including the exchange-side
// effects (closing positions, provisioning/funding sub-accounts) that must
// accompany a phase transition.
package challenge

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/simex888888-dotcom/prop-trading-app1/internal/crypto"
	"github.com/simex888888-dotcom/prop-trading-app1/internal/gateway"
	"github.com/simex888888-dotcom/prop-trading-app1/internal/ledger"
	"github.com/simex888888-dotcom/prop-trading-app1/internal/notify"
	"github.com/simex888888-dotcom/prop-trading-app1/internal/rules"
	"github.com/simex888888-dotcom/prop-trading-app1/pkg/exchanges/common"
	"github.com/simex888888-dotcom/prop-trading-app1/pkg/money"
)

// ScalingTriggerPct and MaxAccountSize are the funded-account scaling
// constants from §4.6.
const (
	ScalingTriggerPct = 10
	ScalingStepPct    = 25
)

var MaxAccountSize = money.FromFloat(2_000_000)

// Service mutates challenge state in response to rule-engine decisions. It
// is the only writer of challenge transitions; the orchestrator is its
// only caller.
type Service struct {
	store  *ledger.Store
	gw     *gateway.Manager
	master common.MasterGateway
	keys   *crypto.KeyManager
	notify notify.Sink
}

// NewService wires the challenge state machine to its collaborators.
func NewService(store *ledger.Store, gw *gateway.Manager, master common.MasterGateway, keys *crypto.KeyManager, sink notify.Sink) *Service {
	return &Service{store: store, gw: gw, master: master, keys: keys, notify: sink}
}

// ApplyDecision carries out the exchange and ledger side effects for one
// rule-engine Decision and returns the ledger.Challenge as it now stands.
func (s *Service) ApplyDecision(ctx context.Context, c ledger.Challenge, d rules.Decision) (ledger.Challenge, error) {
	switch {
	case d.Violation != nil:
		return s.fail(ctx, c, *d.Violation)
	case d.Promotion != nil:
		return s.promote(ctx, c, d.Promotion.To)
	default:
		return c, nil
	}
}

// fail transitions a challenge to failed: best-effort close-all, append a
// Violation record, downgrade the user's role if no other active
// challenge remains.
func (s *Service) fail(ctx context.Context, c ledger.Challenge, v rules.Violation) (ledger.Challenge, error) {
	gw, err := s.gw.GetOrCreate(ctx, c.ID)
	if err == nil {
		results, closeErr := gw.CloseAllPositions(ctx)
		if closeErr != nil {
			log.Printf("challenge %s: close-all-positions failed: %v", c.ID, closeErr)
		}
		for _, r := range results {
			if r.Err != nil {
				log.Printf("challenge %s: close %s failed: %v", c.ID, r.Symbol, r.Err)
			}
		}
	} else {
		log.Printf("challenge %s: gateway unavailable during failure close-out: %v", c.ID, err)
	}

	now := time.Now()
	c.Status = ledger.StatusFailed
	c.FailedAt = &now
	c.FailedReason = string(v.Type)

	violation := ledger.Violation{
		ID:          uuid.NewString(),
		ChallengeID: c.ID,
		Type:        ledger.ViolationType(v.Type),
		Description: v.Description,
		Value:       v.Value,
		Limit:       v.Limit,
		OccurredAt:  now,
	}

	// Status update, violation record, and any role downgrade land in one
	// commit: a crash between them must never leave a failed challenge
	// without its violation, or a demoted-but-not-failed user (§4.5, §5).
	err = s.store.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.store.ApplyTransitionTx(ctx, tx, c); err != nil {
			return fmt.Errorf("apply failed transition: %w", err)
		}
		if err := s.store.CreateViolationTx(ctx, tx, violation); err != nil {
			return fmt.Errorf("record violation: %w", err)
		}
		active, err := s.store.CountActiveChallengesForUserTx(ctx, tx, c.UserID)
		if err != nil {
			return fmt.Errorf("count active challenges: %w", err)
		}
		if active == 0 {
			if err := s.store.SetUserRoleTx(ctx, tx, c.UserID, ledger.RoleGuest); err != nil {
				return fmt.Errorf("downgrade user role: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return c, err
	}

	s.gw.Remove(c.ID)

	s.notify.Publish(notify.Notification{
		ChallengeID: c.ID,
		UserID:      c.UserID,
		Kind:        notify.KindViolation,
		Message:     fmt.Sprintf("challenge failed: %s", v.Description),
		OccurredAt:  now,
	})

	return c, nil
}

// promote carries out a phase1->phase2, phase1->funded, or phase2->funded
// transition per §4.5.
func (s *Service) promote(ctx context.Context, c ledger.Challenge, target rules.PromotionTarget) (ledger.Challenge, error) {
	gw, err := s.gw.GetOrCreate(ctx, c.ID)
	if err == nil {
		if _, closeErr := gw.CloseAllPositions(ctx); closeErr != nil {
			log.Printf("challenge %s: close-all-positions before promotion failed: %v", c.ID, closeErr)
		}
	}

	now := time.Now()
	c.TradingDaysCount = 0
	c.DailyPnL = money.Zero
	c.TotalPnL = money.Zero
	c.CurrentBalance = c.InitialBalance
	c.PeakEquity = c.InitialBalance
	c.DailyStartBalance = c.InitialBalance
	c.DailyResetAt = now
	c.PhasePassedAt = &now

	switch target {
	case rules.PromoteToPhaseTwo:
		c.Status = ledger.StatusPhase2
		c.Phase = 2

		if c.DemoSubUID != "" {
			demoAmount, _ := c.InitialBalance.Float64()
			if err := s.master.ResetDemoBalance(ctx, c.DemoSubUID, demoAmount); err != nil {
				return c, fmt.Errorf("reset demo balance: %w", err)
			}
		}

		if err := s.store.WithTx(ctx, func(tx *sql.Tx) error {
			return s.store.ApplyTransitionTx(ctx, tx, c)
		}); err != nil {
			return c, fmt.Errorf("apply phase2 transition: %w", err)
		}
		s.gw.Remove(c.ID) // demo credentials may be reissued by provisioning
		s.notify.Publish(notify.Notification{ChallengeID: c.ID, UserID: c.UserID, Kind: notify.KindPromotion, Message: "promoted to phase 2", OccurredAt: now})

	case rules.PromoteToFunded:
		if err := s.fund(ctx, &c, now); err != nil {
			return c, fmt.Errorf("fund challenge: %w", err)
		}

		// Status update and role promotion land in one commit: a crash
		// between them must never leave a funded account still marked
		// as an unpromoted trader (§4.5, §5).
		if err := s.store.WithTx(ctx, func(tx *sql.Tx) error {
			if err := s.store.ApplyTransitionTx(ctx, tx, c); err != nil {
				return fmt.Errorf("apply funded transition: %w", err)
			}
			return s.store.SetUserRoleTx(ctx, tx, c.UserID, ledger.RoleFunded)
		}); err != nil {
			return c, err
		}
		s.gw.Remove(c.ID)
		s.notify.Publish(notify.Notification{ChallengeID: c.ID, UserID: c.UserID, Kind: notify.KindPromotion, Message: "promoted to funded", OccurredAt: now})
	}

	return c, nil
}

// fund provisions a real sub-account, funds it, and replaces the
// challenge's encrypted credentials. Sub-account creation and the
// transfer are idempotent by construction: the sub-account username is
// derived from the challenge ID (unique, stable across retries) and the
// transfer carries a UUID idempotency key scoped to this specific funding
// event.
func (s *Service) fund(ctx context.Context, c *ledger.Challenge, now time.Time) error {
	subUID, err := s.master.CreateSubAccount(ctx, "challenge-"+c.ID, "funded challenge account")
	if err != nil {
		return fmt.Errorf("create sub-account: %w", err)
	}

	apiKey, apiSecret, err := s.master.CreateSubAPIKey(ctx, subUID, true)
	if err != nil {
		return fmt.Errorf("create sub-account api key: %w", err)
	}

	if err := s.master.EnsureMasterHealthy(ctx); err != nil {
		return fmt.Errorf("master wallet unhealthy, aborting funded provisioning: %w", err)
	}

	idempotencyKey := uuid.NewString()
	amount, _ := c.InitialBalance.Float64()
	if err := s.master.TransferToSubAccount(ctx, subUID, amount, idempotencyKey); err != nil {
		return fmt.Errorf("transfer to sub-account: %w", err)
	}

	encKey, err := s.keys.Encrypt(apiKey)
	if err != nil {
		return fmt.Errorf("encrypt api key: %w", err)
	}
	encSecret, err := s.keys.Encrypt(apiSecret)
	if err != nil {
		return fmt.Errorf("encrypt api secret: %w", err)
	}

	c.Status = ledger.StatusFunded
	c.Mode = ledger.AccountModeFunded
	c.RealSubUID = subUID
	c.RealAPIKeyEnc = encKey
	c.RealAPISecretEnc = encSecret
	c.RealKeyVersion = s.keys.CurrentVersion()
	c.FundedAt = &now
	return nil
}

// MaybeScale evaluates and, if eligible, applies one scaling step (§4.6).
// Returns the (possibly unchanged) challenge and whether a step fired.
func (s *Service) MaybeScale(ctx context.Context, c ledger.Challenge) (ledger.Challenge, bool, error) {
	if c.Status != ledger.StatusFunded {
		return c, false, nil
	}

	// Eligibility requires no violation since the later of funded_at or the
	// previous scaling step's timestamp; scaling_steps.triggered_at for the
	// latest step would be more precise than funded_at once steps > 0, but
	// HasViolationSince(funded_at) is a safe (never more permissive) proxy
	// since a violation would have failed the challenge outright.
	since := c.FundedAt
	if since == nil {
		return c, false, nil
	}
	violated, err := s.store.HasViolationSince(ctx, c.ID, *since)
	if err != nil {
		return c, false, fmt.Errorf("check violations since funding: %w", err)
	}
	if violated {
		return c, false, nil
	}

	pct := c.TotalPnL.Div(c.InitialBalance).Mul(money.FromFloat(100))
	threshold := money.FromFloat(float64((c.ScalingStepsCount + 1) * ScalingTriggerPct))
	if pct.LessThan(threshold) {
		return c, false, nil
	}

	newSize := money.MinD(
		c.CurrentBalance.Mul(money.FromFloat(1+float64(ScalingStepPct)/100)),
		MaxAccountSize,
	)
	delta := newSize.Sub(c.CurrentBalance)
	if delta.Sign() <= 0 {
		return c, false, nil
	}

	if err := s.master.EnsureMasterHealthy(ctx); err != nil {
		return c, false, fmt.Errorf("master wallet unhealthy, aborting scaling transfer: %w", err)
	}

	idempotencyKey := uuid.NewString()
	amount, _ := delta.Float64()
	if err := s.master.TransferToSubAccount(ctx, c.RealSubUID, amount, idempotencyKey); err != nil {
		return c, false, fmt.Errorf("transfer scaling funds: %w", err)
	}

	now := time.Now()
	step := ledger.ScalingStep{
		ID:          uuid.NewString(),
		ChallengeID: c.ID,
		StepNumber:  c.ScalingStepsCount + 1,
		SizeBefore:  c.CurrentBalance,
		SizeAfter:   newSize,
		TriggeredAt: now,
	}

	c.InitialBalance = newSize
	c.CurrentBalance = newSize
	if c.PeakEquity.LessThan(newSize) {
		c.PeakEquity = newSize
	}
	c.ScalingStepsCount++

	// The scaling-step record and the balance/counter update it reflects
	// must commit together (§5).
	if err := s.store.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.store.CreateScalingStepTx(ctx, tx, step); err != nil {
			return fmt.Errorf("record scaling step: %w", err)
		}
		return s.store.ApplyTransitionTx(ctx, tx, c)
	}); err != nil {
		return c, false, fmt.Errorf("persist scaling step: %w", err)
	}

	s.notify.Publish(notify.Notification{
		ChallengeID: c.ID, UserID: c.UserID, Kind: notify.KindScaling,
		Message:    fmt.Sprintf("account scaled to %s", newSize.String()),
		OccurredAt: now,
	})

	return c, true, nil
}
