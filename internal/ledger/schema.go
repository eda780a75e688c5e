package ledger

const schemaSQL = `
PRAGMA journal_mode = WAL;
PRAGMA foreign_keys = ON;

CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	external_id   TEXT NOT NULL UNIQUE,
	role          TEXT NOT NULL DEFAULT 'guest',
	referral_code TEXT NOT NULL UNIQUE,
	blocked       INTEGER NOT NULL DEFAULT 0,
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS challenge_plans (
	id                       TEXT PRIMARY KEY,
	name                     TEXT NOT NULL,
	account_size             TEXT NOT NULL,
	price                    TEXT NOT NULL,
	profit_target_phase1_pct TEXT NOT NULL,
	profit_target_phase2_pct TEXT NOT NULL,
	max_daily_loss_pct       TEXT NOT NULL,
	max_total_loss_pct       TEXT NOT NULL,
	drawdown_type            TEXT NOT NULL DEFAULT 'static',
	min_trading_days         INTEGER NOT NULL DEFAULT 0,
	max_trading_days         INTEGER NOT NULL DEFAULT 0,
	consistency_rule         INTEGER NOT NULL DEFAULT 0,
	one_phase                INTEGER NOT NULL DEFAULT 0,
	max_leverage             INTEGER NOT NULL DEFAULT 1,
	profit_split_pct         TEXT NOT NULL DEFAULT '80',
	created_at               DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS challenges (
	id                      TEXT PRIMARY KEY,
	user_id                 TEXT NOT NULL REFERENCES users(id),
	plan_id                 TEXT NOT NULL REFERENCES challenge_plans(id),
	status                  TEXT NOT NULL DEFAULT 'phase1',
	phase                   INTEGER NOT NULL DEFAULT 1,
	account_mode            TEXT NOT NULL DEFAULT 'demo',
	initial_balance         TEXT NOT NULL,
	current_balance         TEXT NOT NULL,
	peak_equity             TEXT NOT NULL,
	daily_start_balance     TEXT NOT NULL,
	daily_pnl               TEXT NOT NULL DEFAULT '0',
	total_pnl               TEXT NOT NULL DEFAULT '0',
	trading_days_count      INTEGER NOT NULL DEFAULT 0,
	demo_api_key_enc        TEXT NOT NULL DEFAULT '',
	demo_api_secret_enc     TEXT NOT NULL DEFAULT '',
	demo_key_version        INTEGER NOT NULL DEFAULT 1,
	demo_sub_uid            TEXT NOT NULL DEFAULT '',
	real_api_key_enc        TEXT NOT NULL DEFAULT '',
	real_api_secret_enc     TEXT NOT NULL DEFAULT '',
	real_key_version        INTEGER NOT NULL DEFAULT 1,
	real_sub_uid            TEXT NOT NULL DEFAULT '',
	scaling_steps_count     INTEGER NOT NULL DEFAULT 0,
	started_at              DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	daily_reset_at           DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	phase_passed_at          DATETIME,
	funded_at                DATETIME,
	failed_at                DATETIME,
	failed_reason            TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_challenges_user ON challenges(user_id);
CREATE INDEX IF NOT EXISTS idx_challenges_status ON challenges(status);
CREATE INDEX IF NOT EXISTS idx_challenges_user_status ON challenges(user_id, status);

CREATE TABLE IF NOT EXISTS trades (
	id               TEXT PRIMARY KEY,
	challenge_id     TEXT NOT NULL REFERENCES challenges(id),
	symbol           TEXT NOT NULL,
	direction        TEXT NOT NULL,
	entry_price      TEXT NOT NULL,
	exit_price       TEXT NOT NULL,
	quantity         TEXT NOT NULL,
	leverage         INTEGER NOT NULL DEFAULT 1,
	realized_pnl     TEXT NOT NULL,
	pnl_pct          TEXT NOT NULL,
	opened_at        DATETIME NOT NULL,
	closed_at        DATETIME NOT NULL,
	duration_seconds INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_challenge ON trades(challenge_id);
CREATE INDEX IF NOT EXISTS idx_trades_closed_at ON trades(closed_at);

CREATE TABLE IF NOT EXISTS violations (
	id           TEXT PRIMARY KEY,
	challenge_id TEXT NOT NULL REFERENCES challenges(id),
	type         TEXT NOT NULL,
	description  TEXT NOT NULL,
	value        TEXT NOT NULL,
	limit_value  TEXT NOT NULL,
	occurred_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_violations_challenge ON violations(challenge_id);
CREATE INDEX IF NOT EXISTS idx_violations_occurred_at ON violations(occurred_at);

CREATE TABLE IF NOT EXISTS payouts (
	id              TEXT PRIMARY KEY,
	challenge_id    TEXT NOT NULL REFERENCES challenges(id),
	amount          TEXT NOT NULL,
	fee             TEXT NOT NULL DEFAULT '0',
	net_amount      TEXT NOT NULL,
	wallet_address  TEXT NOT NULL,
	network         TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'pending',
	tx_hash         TEXT NOT NULL DEFAULT '',
	reject_reason   TEXT NOT NULL DEFAULT '',
	created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_payouts_challenge ON payouts(challenge_id);

CREATE TABLE IF NOT EXISTS scaling_steps (
	id           TEXT PRIMARY KEY,
	challenge_id TEXT NOT NULL REFERENCES challenges(id),
	step_number  INTEGER NOT NULL,
	size_before  TEXT NOT NULL,
	size_after   TEXT NOT NULL,
	triggered_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_scaling_steps_challenge ON scaling_steps(challenge_id);
`

// ApplyMigrations creates the schema if it does not already exist. Future
// column additions follow the teacher's pkg/db/schema.go idiom of an
// idempotent ALTER TABLE guarded by a PRAGMA table_info lookup, rather than
// a golang-migrate versioned migration chain, since this is a single-file
// embedded database with one writer.

func (s *Store) ApplyMigrations() error {
	if _, err := s.DB.Exec(schemaSQL); err != nil {
		return err
	}
	return nil
}
