// Package rules implements the challenge engine's rule engine: a set of
// pure functions over a value-type snapshot of one challenge. Nothing in
// this package touches the database, the exchange, or a clock — every
// decision is reproducible from its inputs alone, which is what makes it
// unit-testable without mocks.
//
// The shape mirrors the teacher's internal/risk.Manager cascade
// (EvaluateSignalWithStrategy: ordered checks, first violation wins) but
// strips the mutex/DB coupling that package carried, since a rule engine
// has no business owning state.
package rules

import (
	"github.com/simex888888-dotcom/prop-trading-app1/pkg/money"
)

// DrawdownType selects how TotalDrawdownPct is measured.
type DrawdownType string

const (
	DrawdownStatic   DrawdownType = "static"
	DrawdownTrailing DrawdownType = "trailing"
)

// Phase identifies which evaluation phase a challenge is in.
type Phase int

const (
	PhaseOne Phase = 1
	PhaseTwo Phase = 2
)

// PlanSnapshot is the immutable subset of a ChallengePlan the rule engine
// needs. It is a value type: no pointers back into the ledger.
type PlanSnapshot struct {
	AccountSize          money.D
	ProfitTargetPhase1Pct money.D
	ProfitTargetPhase2Pct money.D
	MaxDailyLossPct      money.D
	MaxTotalLossPct      money.D
	DrawdownType         DrawdownType
	MinTradingDays       int
	MaxTradingDays       int // 0 means unlimited
	ConsistencyRule      bool
	OnePhase             bool
}

// ChallengeSnapshot is the mutable per-challenge state the rule engine
// reads. The caller (internal/orchestrator, via ledger.Challenge.ToSnapshot)
// is responsible for populating it from the ledger before each evaluation.
type ChallengeSnapshot struct {
	Phase             Phase
	InitialBalance    money.D
	CurrentBalance    money.D
	PeakEquity        money.D
	DailyStartBalance money.D
	DailyPnL          money.D
	TotalPnL          money.D
	TodayPnL          money.D // sum of realized P&L on trades closed in the current UTC day
	TradingDaysCount  int
}

// ViolationType enumerates the reasons a challenge can fail.
type ViolationType string

const (
	ViolationDailyLoss      ViolationType = "daily_loss"
	ViolationTotalLoss      ViolationType = "total_loss"
	ViolationMaxTradingDays ViolationType = "max_trading_days"
	ViolationConsistency    ViolationType = "consistency"
)

// PromotionTarget enumerates the states a promotion can advance a
// challenge to.
type PromotionTarget string

const (
	PromoteToPhaseTwo PromotionTarget = "phase2"
	PromoteToFunded   PromotionTarget = "funded"
)

// Violation describes a rule breach.
type Violation struct {
	Type        ViolationType
	Description string
	Value       money.D
	Limit       money.D
}

// Promotion describes an advance to the next phase.
type Promotion struct {
	To PromotionTarget
}

// Decision is the single outcome of one Evaluate call: at most one of
// Violation or Promotion is non-nil; both nil means "ok, no action".
type Decision struct {
	Violation *Violation
	Promotion *Promotion
}

// IsOK reports whether the decision carries no violation and no promotion.
func (d Decision) IsOK() bool {
	return d.Violation == nil && d.Promotion == nil
}
