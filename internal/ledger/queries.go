package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/simex888888-dotcom/prop-trading-app1/internal/rules"
	"github.com/simex888888-dotcom/prop-trading-app1/pkg/money"
)

var ErrNotFound = errors.New("ledger: record not found")

// --- Users ---

func (s *Store) CreateUser(ctx context.Context, u User) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO users (id, external_id, role, referral_code, blocked, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, u.ID, u.ExternalID, string(u.Role), u.ReferralCode, boolToInt(u.Blocked), u.CreatedAt)
	return err
}

func (s *Store) GetUserByExternalID(ctx context.Context, externalID string) (*User, error) {
	var u User
	var role string
	var blocked int
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, external_id, role, referral_code, blocked, created_at
		FROM users WHERE external_id = ?
	`, externalID).Scan(&u.ID, &u.ExternalID, &role, &u.ReferralCode, &blocked, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: get user: %w", err)
	}
	u.Role = Role(role)
	u.Blocked = blocked != 0
	return &u, nil
}

func (s *Store) SetUserRole(ctx context.Context, userID string, role Role) error {
	return setUserRole(ctx, s.DB, userID, role)
}

// SetUserRoleTx is SetUserRole run against an open transaction.
func (s *Store) SetUserRoleTx(ctx context.Context, tx *sql.Tx, userID string, role Role) error {
	return setUserRole(ctx, tx, userID, role)
}

func setUserRole(ctx context.Context, db dbtx, userID string, role Role) error {
	_, err := db.ExecContext(ctx, `UPDATE users SET role = ? WHERE id = ?`, string(role), userID)
	return err
}

// CountActiveChallengesForUser is used to decide whether downgrading a
// failed challenge's user role to guest is safe (invariant: only downgrade
// if no other active challenge remains, §4.5).
func (s *Store) CountActiveChallengesForUser(ctx context.Context, userID string) (int, error) {
	return countActiveChallengesForUser(ctx, s.DB, userID)
}

// CountActiveChallengesForUserTx is CountActiveChallengesForUser run
// against an open transaction, so the role-downgrade decision sees a
// consistent snapshot with the status update it follows.
func (s *Store) CountActiveChallengesForUserTx(ctx context.Context, tx *sql.Tx, userID string) (int, error) {
	return countActiveChallengesForUser(ctx, tx, userID)
}

func countActiveChallengesForUser(ctx context.Context, db dbtx, userID string) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM challenges
		WHERE user_id = ? AND status IN ('phase1', 'phase2', 'funded')
	`, userID).Scan(&n)
	return n, err
}

// --- Challenge plans ---

func (s *Store) CreateChallengePlan(ctx context.Context, p ChallengePlan) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO challenge_plans (
			id, name, account_size, price, profit_target_phase1_pct, profit_target_phase2_pct,
			max_daily_loss_pct, max_total_loss_pct, drawdown_type, min_trading_days, max_trading_days,
			consistency_rule, one_phase, max_leverage, profit_split_pct, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.Name, p.AccountSize.String(), p.Price.String(),
		p.ProfitTargetPhase1Pct.String(), p.ProfitTargetPhase2Pct.String(),
		p.MaxDailyLossPct.String(), p.MaxTotalLossPct.String(), string(p.DrawdownType),
		p.MinTradingDays, p.MaxTradingDays, boolToInt(p.ConsistencyRule), boolToInt(p.OnePhase),
		p.MaxLeverage, p.ProfitSplitPct.String(), p.CreatedAt)
	return err
}

func (s *Store) GetChallengePlan(ctx context.Context, id string) (*ChallengePlan, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, name, account_size, price, profit_target_phase1_pct, profit_target_phase2_pct,
			max_daily_loss_pct, max_total_loss_pct, drawdown_type, min_trading_days, max_trading_days,
			consistency_rule, one_phase, max_leverage, profit_split_pct, created_at
		FROM challenge_plans WHERE id = ?
	`, id)
	return scanPlan(row)
}

func scanPlan(row *sql.Row) (*ChallengePlan, error) {
	var p ChallengePlan
	var accountSize, price, t1, t2, dl, tl, split string
	var drawdownType string
	var consistency, onePhase int
	err := row.Scan(&p.ID, &p.Name, &accountSize, &price, &t1, &t2, &dl, &tl, &drawdownType,
		&p.MinTradingDays, &p.MaxTradingDays, &consistency, &onePhase, &p.MaxLeverage, &split, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: scan plan: %w", err)
	}
	p.AccountSize = money.FromString(accountSize)
	p.Price = money.FromString(price)
	p.ProfitTargetPhase1Pct = money.FromString(t1)
	p.ProfitTargetPhase2Pct = money.FromString(t2)
	p.MaxDailyLossPct = money.FromString(dl)
	p.MaxTotalLossPct = money.FromString(tl)
	p.ProfitSplitPct = money.FromString(split)
	p.DrawdownType = drawdownTypeFromString(drawdownType)
	p.ConsistencyRule = consistency != 0
	p.OnePhase = onePhase != 0
	return &p, nil
}

// --- Challenges ---

const challengeColumns = `
	id, user_id, plan_id, status, phase, account_mode,
	initial_balance, current_balance, peak_equity, daily_start_balance, daily_pnl, total_pnl,
	trading_days_count,
	demo_api_key_enc, demo_api_secret_enc, demo_key_version, demo_sub_uid,
	real_api_key_enc, real_api_secret_enc, real_key_version, real_sub_uid,
	scaling_steps_count,
	started_at, daily_reset_at, phase_passed_at, funded_at, failed_at, failed_reason`

func (s *Store) CreateChallenge(ctx context.Context, c Challenge) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO challenges (`+challengeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.UserID, c.PlanID, string(c.Status), c.Phase, string(c.Mode),
		c.InitialBalance.String(), c.CurrentBalance.String(), c.PeakEquity.String(),
		c.DailyStartBalance.String(), c.DailyPnL.String(), c.TotalPnL.String(),
		c.TradingDaysCount,
		c.DemoAPIKeyEnc, c.DemoAPISecretEnc, c.DemoKeyVersion, c.DemoSubUID,
		c.RealAPIKeyEnc, c.RealAPISecretEnc, c.RealKeyVersion, c.RealSubUID,
		c.ScalingStepsCount,
		c.StartedAt, c.DailyResetAt, nullableTime(c.PhasePassedAt), nullableTime(c.FundedAt),
		nullableTime(c.FailedAt), c.FailedReason)
	return err
}

func (s *Store) GetChallenge(ctx context.Context, id string) (*Challenge, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+challengeColumns+` FROM challenges WHERE id = ?`, id)
	return scanChallenge(row)
}

// ListActiveChallenges returns every challenge the orchestrator must tick.
func (s *Store) ListActiveChallenges(ctx context.Context) ([]Challenge, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+challengeColumns+` FROM challenges
		WHERE status IN ('phase1', 'phase2', 'funded')`)
	if err != nil {
		return nil, fmt.Errorf("ledger: list active challenges: %w", err)
	}
	defer rows.Close()

	var out []Challenge
	for rows.Next() {
		c, err := scanChallengeRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChallenge(row *sql.Row) (*Challenge, error) {
	c, err := scanChallengeGeneric(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

func scanChallengeRows(rows *sql.Rows) (*Challenge, error) {
	return scanChallengeGeneric(rows)
}

func scanChallengeGeneric(r rowScanner) (*Challenge, error) {
	var c Challenge
	var status, mode string
	var initBal, curBal, peak, dailyStart, dailyPnl, totalPnl string
	var phasePassed, funded, failed sql.NullTime
	err := r.Scan(&c.ID, &c.UserID, &c.PlanID, &status, &c.Phase, &mode,
		&initBal, &curBal, &peak, &dailyStart, &dailyPnl, &totalPnl,
		&c.TradingDaysCount,
		&c.DemoAPIKeyEnc, &c.DemoAPISecretEnc, &c.DemoKeyVersion, &c.DemoSubUID,
		&c.RealAPIKeyEnc, &c.RealAPISecretEnc, &c.RealKeyVersion, &c.RealSubUID,
		&c.ScalingStepsCount,
		&c.StartedAt, &c.DailyResetAt, &phasePassed, &funded, &failed, &c.FailedReason)
	if err != nil {
		return nil, fmt.Errorf("ledger: scan challenge: %w", err)
	}
	c.Status = Status(status)
	c.Mode = AccountMode(mode)
	c.InitialBalance = money.FromString(initBal)
	c.CurrentBalance = money.FromString(curBal)
	c.PeakEquity = money.FromString(peak)
	c.DailyStartBalance = money.FromString(dailyStart)
	c.DailyPnL = money.FromString(dailyPnl)
	c.TotalPnL = money.FromString(totalPnl)
	if phasePassed.Valid {
		c.PhasePassedAt = &phasePassed.Time
	}
	if funded.Valid {
		c.FundedAt = &funded.Time
	}
	if failed.Valid {
		c.FailedAt = &failed.Time
	}
	return &c, nil
}

// UpdateChallengeBalances applies tick-local balance/equity updates
// (§4.7 steps 3-5) without changing status/phase/credentials.
func (s *Store) UpdateChallengeBalances(ctx context.Context, c Challenge) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE challenges SET
			current_balance = ?, peak_equity = ?, daily_start_balance = ?,
			daily_pnl = ?, total_pnl = ?, trading_days_count = ?, daily_reset_at = ?
		WHERE id = ?
	`, c.CurrentBalance.String(), c.PeakEquity.String(), c.DailyStartBalance.String(),
		c.DailyPnL.String(), c.TotalPnL.String(), c.TradingDaysCount, c.DailyResetAt, c.ID)
	return err
}

// ApplyTransition commits a full state-machine transition (§4.5) in one
// statement: status/phase/mode, credential fields, counters, and
// timestamps together, so a crash between fields is impossible. Callers
// that also need to write a violation, scaling step, or role change as
// part of the same transition must use ApplyTransitionTx inside
// Store.WithTx instead, so the whole transition commits atomically.
func (s *Store) ApplyTransition(ctx context.Context, c Challenge) error {
	return applyTransition(ctx, s.DB, c)
}

// ApplyTransitionTx is ApplyTransition run against an open transaction.
func (s *Store) ApplyTransitionTx(ctx context.Context, tx *sql.Tx, c Challenge) error {
	return applyTransition(ctx, tx, c)
}

func applyTransition(ctx context.Context, db dbtx, c Challenge) error {
	_, err := db.ExecContext(ctx, `
		UPDATE challenges SET
			status = ?, phase = ?, account_mode = ?,
			initial_balance = ?, current_balance = ?, peak_equity = ?,
			daily_start_balance = ?, daily_pnl = ?, total_pnl = ?, trading_days_count = ?,
			demo_api_key_enc = ?, demo_api_secret_enc = ?, demo_key_version = ?, demo_sub_uid = ?,
			real_api_key_enc = ?, real_api_secret_enc = ?, real_key_version = ?, real_sub_uid = ?,
			scaling_steps_count = ?,
			daily_reset_at = ?, phase_passed_at = ?, funded_at = ?, failed_at = ?, failed_reason = ?
		WHERE id = ?
	`, string(c.Status), c.Phase, string(c.Mode),
		c.InitialBalance.String(), c.CurrentBalance.String(), c.PeakEquity.String(),
		c.DailyStartBalance.String(), c.DailyPnL.String(), c.TotalPnL.String(), c.TradingDaysCount,
		c.DemoAPIKeyEnc, c.DemoAPISecretEnc, c.DemoKeyVersion, c.DemoSubUID,
		c.RealAPIKeyEnc, c.RealAPISecretEnc, c.RealKeyVersion, c.RealSubUID,
		c.ScalingStepsCount,
		c.DailyResetAt, nullableTime(c.PhasePassedAt), nullableTime(c.FundedAt),
		nullableTime(c.FailedAt), c.FailedReason, c.ID)
	return err
}

// --- Trades ---

func (s *Store) CreateTrade(ctx context.Context, t Trade) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO trades (id, challenge_id, symbol, direction, entry_price, exit_price, quantity,
			leverage, realized_pnl, pnl_pct, opened_at, closed_at, duration_seconds)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.ChallengeID, t.Symbol, string(t.Direction), t.EntryPrice.String(), t.ExitPrice.String(),
		t.Quantity.String(), t.Leverage, t.RealizedPnL.String(), t.PnLPct.String(),
		t.OpenedAt, t.ClosedAt, t.DurationSeconds)
	return err
}

// SumRealizedPnLSince sums realized P&L for trades closed at or after
// `since` (used to compute today_pnl for the consistency rule, §4.4).
func (s *Store) SumRealizedPnLSince(ctx context.Context, challengeID string, since time.Time) (money.D, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT realized_pnl FROM trades WHERE challenge_id = ? AND closed_at >= ?
	`, challengeID, since)
	if err != nil {
		return money.Zero, fmt.Errorf("ledger: sum realized pnl: %w", err)
	}
	defer rows.Close()

	sum := money.Zero
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return money.Zero, err
		}
		sum = sum.Add(money.FromString(v))
	}
	return sum, rows.Err()
}

// HasTradeClosedBetween reports whether any trade closed in [start, end) —
// used by the daily-reset housekeeping to decide whether a trading day
// counts toward min_trading_days (§4.8).
func (s *Store) HasTradeClosedBetween(ctx context.Context, challengeID string, start, end time.Time) (bool, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM trades WHERE challenge_id = ? AND closed_at >= ? AND closed_at < ?
	`, challengeID, start, end).Scan(&n)
	return n > 0, err
}

// --- Violations ---

func (s *Store) CreateViolation(ctx context.Context, v Violation) error {
	return createViolation(ctx, s.DB, v)
}

// CreateViolationTx is CreateViolation run against an open transaction.
func (s *Store) CreateViolationTx(ctx context.Context, tx *sql.Tx, v Violation) error {
	return createViolation(ctx, tx, v)
}

func createViolation(ctx context.Context, db dbtx, v Violation) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO violations (id, challenge_id, type, description, value, limit_value, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, v.ID, v.ChallengeID, string(v.Type), v.Description, v.Value.String(), v.Limit.String(), v.OccurredAt)
	return err
}

// HasViolationSince reports whether any violation was recorded at or after
// `since` — used by scaling eligibility (§4.6).
func (s *Store) HasViolationSince(ctx context.Context, challengeID string, since time.Time) (bool, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM violations WHERE challenge_id = ? AND occurred_at >= ?
	`, challengeID, since).Scan(&n)
	return n > 0, err
}

// ListViolations returns every violation recorded against a challenge,
// most recent first, for the read-only API projection.
func (s *Store) ListViolations(ctx context.Context, challengeID string) ([]Violation, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, challenge_id, type, description, value, limit_value, occurred_at
		FROM violations WHERE challenge_id = ? ORDER BY occurred_at DESC
	`, challengeID)
	if err != nil {
		return nil, fmt.Errorf("ledger: list violations: %w", err)
	}
	defer rows.Close()

	var out []Violation
	for rows.Next() {
		var v Violation
		var typ, value, limit string
		if err := rows.Scan(&v.ID, &v.ChallengeID, &typ, &v.Description, &value, &limit, &v.OccurredAt); err != nil {
			return nil, fmt.Errorf("ledger: scan violation: %w", err)
		}
		v.Type = ViolationType(typ)
		v.Value = money.FromString(value)
		v.Limit = money.FromString(limit)
		out = append(out, v)
	}
	return out, rows.Err()
}

// --- Payouts ---

func (s *Store) CreatePayout(ctx context.Context, p Payout) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO payouts (id, challenge_id, amount, fee, net_amount, wallet_address, network,
			status, tx_hash, reject_reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.ChallengeID, p.Amount.String(), p.Fee.String(), p.NetAmount.String(),
		p.WalletAddress, string(p.Network), string(p.Status), p.TxHash, p.RejectReason,
		p.CreatedAt, p.UpdatedAt)
	return err
}

// SumPaidPayouts sums net_amount for payouts in a paid-or-sent state,
// enforcing invariant 5 (§3): cumulative payouts never exceed the
// profit-split cap.
func (s *Store) SumPaidPayouts(ctx context.Context, challengeID string) (money.D, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT net_amount FROM payouts WHERE challenge_id = ? AND status IN ('approved', 'processing', 'sent')
	`, challengeID)
	if err != nil {
		return money.Zero, fmt.Errorf("ledger: sum payouts: %w", err)
	}
	defer rows.Close()

	sum := money.Zero
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return money.Zero, err
		}
		sum = sum.Add(money.FromString(v))
	}
	return sum, rows.Err()
}

// --- Scaling steps ---

func (s *Store) CreateScalingStep(ctx context.Context, sc ScalingStep) error {
	return createScalingStep(ctx, s.DB, sc)
}

// CreateScalingStepTx is CreateScalingStep run against an open transaction.
func (s *Store) CreateScalingStepTx(ctx context.Context, tx *sql.Tx, sc ScalingStep) error {
	return createScalingStep(ctx, tx, sc)
}

func createScalingStep(ctx context.Context, db dbtx, sc ScalingStep) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO scaling_steps (id, challenge_id, step_number, size_before, size_after, triggered_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, sc.ID, sc.ChallengeID, sc.StepNumber, sc.SizeBefore.String(), sc.SizeAfter.String(), sc.TriggeredAt)
	return err
}

// --- helpers ---

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func drawdownTypeFromString(s string) rules.DrawdownType {
	return rules.DrawdownType(s)
}
