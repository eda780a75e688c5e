package rules

import (
	"fmt"

	"github.com/simex888888-dotcom/prop-trading-app1/pkg/money"
)

// consistencyThreshold is the fraction of cumulative profit a single day
// is allowed to contribute before the consistency rule fires. Exactly at
// the threshold is still compliant (§8: "0.30 exactly ⇒ no violation").
var consistencyThreshold = money.FromFloat(0.30)

// The scaling trigger (challenge.ScalingTriggerPct) lives in
// internal/challenge, not here; it is kept out of this package because scaling is a funded-only concern layered on top
// of, not part of, the pass/fail cascade.

// Evaluate runs the ordered cascade described by the rule engine design:
// daily loss, then total loss, then max trading days, then consistency,
// then promotion. The first matching check wins; evaluation order is
// significant because a challenge that has simultaneously blown its daily
// limit and hit its profit target must fail, not promote.
func Evaluate(plan PlanSnapshot, snap ChallengeSnapshot, equity money.D) Decision {
	dailyDD := DailyDrawdownPct(snap.DailyStartBalance, equity)
	if dailyDD.GreaterThanOrEqual(plan.MaxDailyLossPct) {
		return Decision{Violation: &Violation{
			Type:        ViolationDailyLoss,
			Description: fmt.Sprintf("daily drawdown %s%% reached limit %s%%", dailyDD.StringFixed(2), plan.MaxDailyLossPct.StringFixed(2)),
			Value:       dailyDD,
			Limit:       plan.MaxDailyLossPct,
		}}
	}

	totalDD := TotalDrawdownPct(plan.DrawdownType, snap.InitialBalance, snap.PeakEquity, equity)
	if totalDD.GreaterThanOrEqual(plan.MaxTotalLossPct) {
		return Decision{Violation: &Violation{
			Type:        ViolationTotalLoss,
			Description: fmt.Sprintf("total drawdown %s%% reached limit %s%%", totalDD.StringFixed(2), plan.MaxTotalLossPct.StringFixed(2)),
			Value:       totalDD,
			Limit:       plan.MaxTotalLossPct,
		}}
	}

	if plan.MaxTradingDays > 0 && snap.TradingDaysCount > plan.MaxTradingDays {
		return Decision{Violation: &Violation{
			Type:        ViolationMaxTradingDays,
			Description: fmt.Sprintf("trading day %d exceeds max %d", snap.TradingDaysCount, plan.MaxTradingDays),
			Value:       money.FromFloat(float64(snap.TradingDaysCount)),
			Limit:       money.FromFloat(float64(plan.MaxTradingDays)),
		}}
	}

	if plan.ConsistencyRule && snap.TotalPnL.IsPositive() {
		share := snap.TodayPnL.Div(snap.TotalPnL)
		if share.GreaterThan(consistencyThreshold) {
			return Decision{Violation: &Violation{
				Type:        ViolationConsistency,
				Description: fmt.Sprintf("single day contributed %s%% of cumulative profit, limit 30%%", share.Mul(money.FromFloat(100)).StringFixed(2)),
				Value:       share.Mul(money.FromFloat(100)),
				Limit:       consistencyThreshold.Mul(money.FromFloat(100)),
			}}
		}
	}

	targetPct := plan.ProfitTargetPhase2Pct
	if snap.Phase == PhaseOne {
		targetPct = plan.ProfitTargetPhase1Pct
	}
	target := money.PctOf(snap.InitialBalance, targetPct)
	if snap.TotalPnL.GreaterThanOrEqual(target) && snap.TradingDaysCount >= plan.MinTradingDays {
		to := PromoteToFunded
		if snap.Phase == PhaseOne && !plan.OnePhase {
			to = PromoteToPhaseTwo
		}
		return Decision{Promotion: &Promotion{To: to}}
	}

	return Decision{}
}

// WarningLevel classifies how close a drawdown sits to its limit, for the
// Orchestrator's 80%-warning notification (§4.7 step 6).
type WarningLevel string

const (
	WarningNone     WarningLevel = ""
	WarningApproach WarningLevel = "approaching_limit"
)

// DailyWarning reports whether the daily drawdown sits in [0.8*limit, limit).
func DailyWarning(plan PlanSnapshot, snap ChallengeSnapshot, equity money.D) WarningLevel {
	return warningFor(DailyDrawdownPct(snap.DailyStartBalance, equity), plan.MaxDailyLossPct)
}

// TotalWarning reports whether the total drawdown sits in [0.8*limit, limit).
func TotalWarning(plan PlanSnapshot, snap ChallengeSnapshot, equity money.D) WarningLevel {
	return warningFor(TotalDrawdownPct(plan.DrawdownType, snap.InitialBalance, snap.PeakEquity, equity), plan.MaxTotalLossPct)
}

func warningFor(value, limit money.D) WarningLevel {
	threshold := money.PctOf(limit, money.FromFloat(80))
	if value.GreaterThanOrEqual(threshold) && value.LessThan(limit) {
		return WarningApproach
	}
	return WarningNone
}
