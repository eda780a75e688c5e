package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/simex888888-dotcom/prop-trading-app1/internal/rules"
	"github.com/simex888888-dotcom/prop-trading-app1/pkg/money"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := store.ApplyMigrations(); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCreateAndGetChallengeRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	u := User{ID: "u1", ExternalID: "ext-1", Role: RoleChallenger, ReferralCode: "REF1", CreatedAt: time.Now()}
	if err := store.CreateUser(ctx, u); err != nil {
		t.Fatalf("create user: %v", err)
	}

	plan := ChallengePlan{
		ID: "p1", Name: "10k Challenge",
		AccountSize:           money.FromFloat(10000),
		Price:                 money.FromFloat(99),
		ProfitTargetPhase1Pct: money.FromFloat(8),
		ProfitTargetPhase2Pct: money.FromFloat(5),
		MaxDailyLossPct:       money.FromFloat(5),
		MaxTotalLossPct:       money.FromFloat(10),
		DrawdownType:          rules.DrawdownStatic,
		MinTradingDays:        4,
		ProfitSplitPct:        money.FromFloat(80),
		CreatedAt:             time.Now(),
	}
	if err := store.CreateChallengePlan(ctx, plan); err != nil {
		t.Fatalf("create plan: %v", err)
	}

	c := Challenge{
		ID: "c1", UserID: u.ID, PlanID: plan.ID, Status: StatusPhase1, Phase: 1, Mode: AccountModeDemo,
		InitialBalance: plan.AccountSize, CurrentBalance: plan.AccountSize, PeakEquity: plan.AccountSize,
		DailyStartBalance: plan.AccountSize,
		DailyPnL:          money.Zero, TotalPnL: money.Zero,
		StartedAt: time.Now(), DailyResetAt: time.Now(),
	}
	if err := store.CreateChallenge(ctx, c); err != nil {
		t.Fatalf("create challenge: %v", err)
	}

	got, err := store.GetChallenge(ctx, c.ID)
	if err != nil {
		t.Fatalf("get challenge: %v", err)
	}
	if !got.CurrentBalance.Equal(plan.AccountSize) {
		t.Fatalf("current_balance = %v, want %v", got.CurrentBalance, plan.AccountSize)
	}
	if got.Status != StatusPhase1 {
		t.Fatalf("status = %v, want phase1", got.Status)
	}

	active, err := store.ListActiveChallenges(ctx)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("expected 1 active challenge, got %d", len(active))
	}
}

func TestApplyTransitionToFailedIsPersisted(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	u := User{ID: "u2", ExternalID: "ext-2", Role: RoleChallenger, ReferralCode: "REF2", CreatedAt: time.Now()}
	_ = store.CreateUser(ctx, u)
	plan := ChallengePlan{ID: "p2", Name: "plan", AccountSize: money.FromFloat(10000), Price: money.Zero,
		ProfitTargetPhase1Pct: money.FromFloat(8), ProfitTargetPhase2Pct: money.FromFloat(5),
		MaxDailyLossPct: money.FromFloat(5), MaxTotalLossPct: money.FromFloat(10),
		DrawdownType: rules.DrawdownStatic, ProfitSplitPct: money.FromFloat(80), CreatedAt: time.Now()}
	_ = store.CreateChallengePlan(ctx, plan)

	c := Challenge{ID: "c2", UserID: u.ID, PlanID: plan.ID, Status: StatusPhase1, Phase: 1, Mode: AccountModeDemo,
		InitialBalance: plan.AccountSize, CurrentBalance: plan.AccountSize, PeakEquity: plan.AccountSize,
		DailyStartBalance: plan.AccountSize, StartedAt: time.Now(), DailyResetAt: time.Now()}
	if err := store.CreateChallenge(ctx, c); err != nil {
		t.Fatalf("create challenge: %v", err)
	}

	now := time.Now()
	c.Status = StatusFailed
	c.FailedAt = &now
	c.FailedReason = "daily_loss"
	if err := store.ApplyTransition(ctx, c); err != nil {
		t.Fatalf("apply transition: %v", err)
	}

	got, err := store.GetChallenge(ctx, c.ID)
	if err != nil {
		t.Fatalf("get challenge: %v", err)
	}
	if got.Status != StatusFailed {
		t.Fatalf("status = %v, want failed", got.Status)
	}
	if got.FailedAt == nil {
		t.Fatal("expected failed_at to be set")
	}

	active, err := store.ListActiveChallenges(ctx)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected 0 active challenges after failure, got %d", len(active))
	}
}

func TestSumPaidPayoutsExcludesPendingAndRejected(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	u := User{ID: "u3", ExternalID: "ext-3", Role: RoleFunded, ReferralCode: "REF3", CreatedAt: time.Now()}
	_ = store.CreateUser(ctx, u)
	plan := ChallengePlan{ID: "p3", Name: "plan", AccountSize: money.FromFloat(10000),
		ProfitTargetPhase1Pct: money.FromFloat(8), ProfitTargetPhase2Pct: money.FromFloat(5),
		MaxDailyLossPct: money.FromFloat(5), MaxTotalLossPct: money.FromFloat(10),
		DrawdownType: rules.DrawdownStatic, ProfitSplitPct: money.FromFloat(80), CreatedAt: time.Now()}
	_ = store.CreateChallengePlan(ctx, plan)
	c := Challenge{ID: "c3", UserID: u.ID, PlanID: plan.ID, Status: StatusFunded, Mode: AccountModeFunded,
		InitialBalance: plan.AccountSize, CurrentBalance: plan.AccountSize, PeakEquity: plan.AccountSize,
		DailyStartBalance: plan.AccountSize, StartedAt: time.Now(), DailyResetAt: time.Now()}
	_ = store.CreateChallenge(ctx, c)

	mkPayout := func(id string, amount float64, status PayoutStatus) Payout {
		return Payout{ID: id, ChallengeID: c.ID, Amount: money.FromFloat(amount), NetAmount: money.FromFloat(amount),
			WalletAddress: "T...", Network: NetworkTRC20, Status: status, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	}
	_ = store.CreatePayout(ctx, mkPayout("pay1", 100, PayoutSent))
	_ = store.CreatePayout(ctx, mkPayout("pay2", 200, PayoutPending))
	_ = store.CreatePayout(ctx, mkPayout("pay3", 50, PayoutRejected))
	_ = store.CreatePayout(ctx, mkPayout("pay4", 75, PayoutApproved))

	sum, err := store.SumPaidPayouts(ctx, c.ID)
	if err != nil {
		t.Fatalf("sum paid payouts: %v", err)
	}
	want := money.FromFloat(175) // sent + approved, not pending/rejected
	if !sum.Equal(want) {
		t.Fatalf("sum = %v, want %v", sum, want)
	}
}
