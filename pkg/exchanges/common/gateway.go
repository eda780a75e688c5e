package common

import (
	"context"
	"fmt"
)

// AccountBalance is the USDT-denominated view of one sub-account returned
// by GetBalance.
type AccountBalance struct {
	Wallet         float64
	UnrealizedPnL  float64
	Equity         float64
	Available      float64
}

// Position is one open futures position.
type Position struct {
	Symbol           string
	PositionSide     string // LONG, SHORT, or BOTH in one-way mode
	Quantity         float64 // signed: positive long, negative short
	EntryPrice       float64
	UnrealizedProfit float64
	Leverage         int
}

// CloseResult reports the outcome of closing a single symbol's position
// as part of CloseAllPositions.
type CloseResult struct {
	Symbol string
	Err    error
}

// Kline is one OHLCV candle.
type Kline struct {
	OpenTime  int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	CloseTime int64
}

// Gateway abstracts one exchange's per-account (sub-account) surface: the
// operations the orchestrator and the challenge state machine need against
// a single trader's demo or funded sub-account. Grounded on the teacher's
// single-method interface (SubmitOrder/CancelOrder), expanded to the full
// per-account contract the challenge engine's tick and close-all-positions
// transitions require.
type Gateway interface {
	GetBalance(ctx context.Context) (AccountBalance, error)
	GetPositions(ctx context.Context) ([]Position, error)
	GetOpenOrders(ctx context.Context) ([]OrderResult, error)
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error
	CloseAllPositions(ctx context.Context) ([]CloseResult, error)
	GetKline(ctx context.Context, symbol, interval string, limit int) ([]Kline, error)
}

// ExchangeError classifies a non-2xx exchange response so callers can
// branch on temporariness without string-matching (§7: exchange-transient
// vs exchange-permanent).
type ExchangeError struct {
	Code    int
	Message string
	Status  int
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("exchange error %d: [%d] %s", e.Status, e.Code, e.Message)
}

// Temporary reports whether the error is worth retrying within the same
// tick's backoff budget.
func (e *ExchangeError) Temporary() bool {
	return e.Status == 429 || e.Status >= 500
}

// MasterGateway abstracts the privileged, process-wide master account:
// sub-account provisioning, API-key issuance, and internal transfers. No
// withdrawal permission is ever requested for keys this issues (§4.2).
type MasterGateway interface {
	MasterBalance(ctx context.Context) (float64, error)
	// EnsureMasterHealthy returns an error if the master wallet balance has
	// fallen below the configured minimum, so callers can abort a
	// provisioning transfer before it starts rather than partially fund a
	// sub-account (§4.2, §4.5: no silent partial success).
	EnsureMasterHealthy(ctx context.Context) error
	CreateSubAccount(ctx context.Context, username, note string) (subUID string, err error)
	CreateSubAPIKey(ctx context.Context, subUID string, canTrade bool) (apiKey, apiSecret string, err error)
	TransferToSubAccount(ctx context.Context, subUID string, amount float64, idempotencyKey string) error
	TransferFromSubAccount(ctx context.Context, subUID string, amount float64, idempotencyKey string) error
	// ResetDemoBalance credits a demo sub-account back to amount, used when
	// a phase1 challenge advances to phase2 and its demo balance must be
	// reset on the exchange, not just in the ledger (§4.5).
	ResetDemoBalance(ctx context.Context, subUID string, amount float64) error
}
