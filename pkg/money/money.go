// Package money provides fixed-point decimal helpers for all monetary and
// quantity arithmetic in the challenge engine. float64 is never used for
// balances, P&L, or prices: every computation here is exact to the declared
// scale and rounds half-even at formatting boundaries.
package money

import (
	"database/sql/driver"
	"fmt"

	"github.com/shopspring/decimal"
)

// Scales for the two money domains the engine deals with.
const (
	FiatScale = 2 // USDT-denominated balances, P&L, payouts
	QtyScale  = 8 // base-asset order quantities
)

// Zero is the canonical zero decimal, safe for comparison via Equal.
var Zero = decimal.Zero

// D is a thin alias so call sites read as money.D(...) rather than
// reaching into shopspring/decimal directly.
type D = decimal.Decimal

// FromFloat builds a D from a float64. Only used at the boundary where a
// third-party API (exchange JSON) hands back a float; never used internally
// for arithmetic chains.
func FromFloat(f float64) D {
	return decimal.NewFromFloat(f)
}

// FromString parses a decimal string, returning zero on malformed input.
func FromString(s string) D {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// RoundFiat rounds to FiatScale using half-even (banker's) rounding.
func RoundFiat(d D) D {
	return d.RoundBank(FiatScale)
}

// RoundQty rounds to QtyScale using half-even rounding.
func RoundQty(d D) D {
	return d.RoundBank(QtyScale)
}

// PctOf returns d * pct / 100, unrounded.
func PctOf(d D, pct D) D {
	return d.Mul(pct).Div(decimal.NewFromInt(100))
}

// SafeDiv divides a by b, returning zero instead of panicking/Inf when b is
// zero. Several drawdown formulas are defined to be zero when their
// denominator (daily_start_balance, peak_equity) is zero.
func SafeDiv(a, b D) D {
	if b.IsZero() {
		return decimal.Zero
	}
	return a.Div(b)
}

// MaxD returns the greater of a, b.
func MaxD(a, b D) D {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// MinD returns the lesser of a, b.
func MinD(a, b D) D {
	if a.LessThan(b) {
		return a
	}
	return b
}

// NonNegative clamps d to zero if negative.
func NonNegative(d D) D {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// Scanner/Valuer wrapper so decimal.Decimal columns round-trip through
// modernc.org/sqlite as TEXT, matching the ledger schema's decimal-as-text
// convention (see internal/ledger/schema.go).
type Text struct {
	D
}

func (t Text) Value() (driver.Value, error) {
	return t.D.String(), nil
}

func (t *Text) Scan(src any) error {
	switch v := src.(type) {
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return fmt.Errorf("money: scan %q: %w", v, err)
		}
		t.D = d
		return nil
	case []byte:
		d, err := decimal.NewFromString(string(v))
		if err != nil {
			return fmt.Errorf("money: scan %q: %w", v, err)
		}
		t.D = d
		return nil
	case nil:
		t.D = decimal.Zero
		return nil
	default:
		return fmt.Errorf("money: unsupported scan type %T", src)
	}
}
