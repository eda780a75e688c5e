package rules

import "github.com/simex888888-dotcom/prop-trading-app1/pkg/money"

// Direction is a trade's side, expressed as the sign applied to price
// movement when computing P&L.
type Direction int

const (
	Long  Direction = 1
	Short Direction = -1
)

// TradePnL computes realized P&L for one closed leg. Leverage affects
// margin, not realized P&L, because qty already reflects the leveraged
// position size.
func TradePnL(dir Direction, entry, exit, qty money.D) money.D {
	delta := exit.Sub(entry)
	if dir == Short {
		delta = delta.Neg()
	}
	return delta.Mul(qty)
}

// UnrealizedPnL computes the mark-to-market P&L of an open leg.
func UnrealizedPnL(dir Direction, entry, mark, qty money.D) money.D {
	return TradePnL(dir, entry, mark, qty)
}

// OpenLeg is the minimal shape Equity needs for an open position.
type OpenLeg struct {
	Symbol string
	Dir    Direction
	Entry  money.D
	Qty    money.D
}

// Equity sums current_balance with the unrealized P&L of every open leg
// whose mark price is available; legs with no price are skipped rather
// than erroring, per §4.3.
func Equity(currentBalance money.D, legs []OpenLeg, marks map[string]money.D) money.D {
	eq := currentBalance
	for _, leg := range legs {
		mark, ok := marks[leg.Symbol]
		if !ok {
			continue
		}
		eq = eq.Add(UnrealizedPnL(leg.Dir, leg.Entry, mark, leg.Qty))
	}
	return eq
}

// DailyDrawdownPct returns max(0, (daily_start_balance - equity) / daily_start_balance * 100).
// Zero daily_start_balance yields zero, never a division error.
func DailyDrawdownPct(dailyStartBalance, equity money.D) money.D {
	if dailyStartBalance.IsZero() {
		return money.Zero
	}
	diff := dailyStartBalance.Sub(equity)
	pct := money.SafeDiv(diff, dailyStartBalance).Mul(money.FromFloat(100))
	return money.NonNegative(pct)
}

// TotalDrawdownPct returns the total drawdown percentage using the plan's
// configured drawdown measurement (static vs trailing).
func TotalDrawdownPct(kind DrawdownType, initialBalance, peakEquity, equity money.D) money.D {
	switch kind {
	case DrawdownTrailing:
		if peakEquity.IsZero() {
			return money.Zero
		}
		diff := peakEquity.Sub(equity)
		return money.NonNegative(money.SafeDiv(diff, peakEquity).Mul(money.FromFloat(100)))
	default: // static
		if initialBalance.IsZero() {
			return money.Zero
		}
		diff := initialBalance.Sub(equity)
		return money.NonNegative(money.SafeDiv(diff, initialBalance).Mul(money.FromFloat(100)))
	}
}

// PositionSizeResult is the output of PositionSizeFromRisk.
type PositionSizeResult struct {
	Qty      money.D
	Notional money.D
	Margin   money.D
}

// PositionSizeFromRisk sizes a position so that a stop-out at `stop` loses
// exactly riskPct of balance.
func PositionSizeFromRisk(balance, riskPct, entry, stop money.D, dir Direction, leverage money.D) (PositionSizeResult, error) {
	riskAmount := money.PctOf(balance, riskPct)

	var stopDistance money.D
	switch dir {
	case Long:
		stopDistance = entry.Sub(stop)
	case Short:
		stopDistance = stop.Sub(entry)
	}
	if !stopDistance.IsPositive() {
		return PositionSizeResult{}, errNonPositiveStopDistance
	}

	qty := riskAmount.Div(stopDistance)
	notional := qty.Mul(entry)
	margin := notional
	if leverage.IsPositive() {
		margin = notional.Div(leverage)
	}
	return PositionSizeResult{
		Qty:      money.RoundQty(qty),
		Notional: money.RoundFiat(notional),
		Margin:   money.RoundFiat(margin),
	}, nil
}
