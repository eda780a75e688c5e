package ledger

import (
	"time"

	"github.com/simex888888-dotcom/prop-trading-app1/internal/rules"
	"github.com/simex888888-dotcom/prop-trading-app1/pkg/money"
)

// Role enumerates user roles.
type Role string

const (
	RoleGuest      Role = "guest"
	RoleChallenger Role = "challenger"
	RoleFunded     Role = "funded"
	RoleElite      Role = "elite"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// User is a stable identity.
type User struct {
	ID           string
	ExternalID   string
	Role         Role
	ReferralCode string
	Blocked      bool
	CreatedAt    time.Time
}

// ChallengePlan is an immutable (once referenced) plan template.
type ChallengePlan struct {
	ID                    string
	Name                  string
	AccountSize           money.D
	Price                 money.D
	ProfitTargetPhase1Pct money.D
	ProfitTargetPhase2Pct money.D
	MaxDailyLossPct       money.D
	MaxTotalLossPct       money.D
	DrawdownType          rules.DrawdownType
	MinTradingDays        int
	MaxTradingDays        int
	ConsistencyRule       bool
	OnePhase              bool
	MaxLeverage           int
	ProfitSplitPct        money.D
	CreatedAt             time.Time
}

// ToSnapshot converts the plan to the pure rule-engine input type.
func (p ChallengePlan) ToSnapshot() rules.PlanSnapshot {
	return rules.PlanSnapshot{
		AccountSize:           p.AccountSize,
		ProfitTargetPhase1Pct: p.ProfitTargetPhase1Pct,
		ProfitTargetPhase2Pct: p.ProfitTargetPhase2Pct,
		MaxDailyLossPct:       p.MaxDailyLossPct,
		MaxTotalLossPct:       p.MaxTotalLossPct,
		DrawdownType:          p.DrawdownType,
		MinTradingDays:        p.MinTradingDays,
		MaxTradingDays:        p.MaxTradingDays,
		ConsistencyRule:       p.ConsistencyRule,
		OnePhase:              p.OnePhase,
	}
}

// Status enumerates challenge lifecycle states.
type Status string

const (
	StatusPhase1    Status = "phase1"
	StatusPhase2    Status = "phase2"
	StatusFunded    Status = "funded"
	StatusFailed    Status = "failed"
	StatusCompleted Status = "completed"
)

// AccountMode distinguishes simulated (demo) from real sub-accounts.
type AccountMode string

const (
	AccountModeDemo   AccountMode = "demo"
	AccountModeFunded AccountMode = "funded"
)

// Challenge is one trader's attempt against one plan.
type Challenge struct {
	ID       string
	UserID   string
	PlanID   string
	Status   Status
	Phase    int
	Mode     AccountMode

	InitialBalance    money.D
	CurrentBalance    money.D
	PeakEquity        money.D
	DailyStartBalance money.D
	DailyPnL          money.D
	TotalPnL          money.D
	TradingDaysCount  int

	DemoAPIKeyEnc    string
	DemoAPISecretEnc string
	DemoKeyVersion   int
	DemoSubUID       string

	RealAPIKeyEnc    string
	RealAPISecretEnc string
	RealKeyVersion   int
	RealSubUID       string

	ScalingStepsCount int

	StartedAt      time.Time
	DailyResetAt   time.Time
	PhasePassedAt  *time.Time
	FundedAt       *time.Time
	FailedAt       *time.Time
	FailedReason   string
}

// ToSnapshot builds the pure rule-engine snapshot. todayPnL must be
// supplied by the caller (sum of trades closed since DailyResetAt), since
// computing it requires a trade query this package owns but the rule
// engine must not.
func (c Challenge) ToSnapshot(todayPnL money.D) rules.ChallengeSnapshot {
	phase := rules.PhaseOne
	if c.Phase == 2 {
		phase = rules.PhaseTwo
	}
	return rules.ChallengeSnapshot{
		Phase:             phase,
		InitialBalance:    c.InitialBalance,
		CurrentBalance:    c.CurrentBalance,
		PeakEquity:        c.PeakEquity,
		DailyStartBalance: c.DailyStartBalance,
		DailyPnL:          c.DailyPnL,
		TotalPnL:          c.TotalPnL,
		TodayPnL:          todayPnL,
		TradingDaysCount:  c.TradingDaysCount,
	}
}

// Active reports whether the challenge is still being evaluated by the
// orchestrator (i.e. not terminal).
func (c Challenge) Active() bool {
	switch c.Status {
	case StatusPhase1, StatusPhase2, StatusFunded:
		return true
	default:
		return false
	}
}

// Direction mirrors rules.Direction for persisted trades.
type Direction string

const (
	DirLong  Direction = "long"
	DirShort Direction = "short"
)

func (d Direction) ToRules() rules.Direction {
	if d == DirShort {
		return rules.Short
	}
	return rules.Long
}

// Trade is an appended-only closed execution record.
type Trade struct {
	ID              string
	ChallengeID     string
	Symbol          string
	Direction       Direction
	EntryPrice      money.D
	ExitPrice       money.D
	Quantity        money.D
	Leverage        int
	RealizedPnL     money.D
	PnLPct          money.D
	OpenedAt        time.Time
	ClosedAt        time.Time
	DurationSeconds int64
}

// ViolationType mirrors rules.ViolationType with the three additions
// (self_hedging, news_ban, custom) the ledger can record even though the
// pure rule engine in §4.4 only ever emits daily_loss, total_loss,
// max_trading_days and consistency.
type ViolationType string

const (
	ViolationDailyLoss      ViolationType = "daily_loss"
	ViolationTotalLoss      ViolationType = "total_loss"
	ViolationConsistency    ViolationType = "consistency"
	ViolationNewsBan        ViolationType = "news_ban"
	ViolationMaxTradingDays ViolationType = "max_trading_days"
	ViolationSelfHedging    ViolationType = "self_hedging"
	ViolationCustom         ViolationType = "custom"
)

// Violation is an appended-only record of a rule breach.
type Violation struct {
	ID          string
	ChallengeID string
	Type        ViolationType
	Description string
	Value       money.D
	Limit       money.D
	OccurredAt  time.Time
}

// PayoutStatus enumerates a payout's lifecycle.
type PayoutStatus string

const (
	PayoutPending    PayoutStatus = "pending"
	PayoutApproved   PayoutStatus = "approved"
	PayoutRejected   PayoutStatus = "rejected"
	PayoutProcessing PayoutStatus = "processing"
	PayoutSent       PayoutStatus = "sent"
)

// Network enumerates supported withdrawal networks.
type Network string

const (
	NetworkTRC20 Network = "TRC20"
	NetworkERC20 Network = "ERC20"
	NetworkBEP20 Network = "BEP20"
)

// Payout is a requested withdrawal against a funded challenge's profit.
type Payout struct {
	ID            string
	ChallengeID   string
	Amount        money.D
	Fee           money.D
	NetAmount     money.D
	WalletAddress string
	Network       Network
	Status        PayoutStatus
	TxHash        string
	RejectReason  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ScalingStep is an appended-only record of a funded-account size increase.
type ScalingStep struct {
	ID          string
	ChallengeID string
	StepNumber  int
	SizeBefore  money.D
	SizeAfter   money.D
	TriggeredAt time.Time
}
