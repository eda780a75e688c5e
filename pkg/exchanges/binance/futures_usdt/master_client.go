package futures_usdt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/simex888888-dotcom/prop-trading-app1/pkg/exchanges/common"
)

// MasterConfig holds the master (broker/exchange-level) account credentials
// used to provision and fund sub-accounts. These keys are never handed to
// a challenge; only the sub-account keys CreateSubAPIKey issues are.
type MasterConfig struct {
	APIKey     string
	APISecret  string
	Testnet    bool
	MinBalance float64
}

// MasterClient implements common.MasterGateway against Binance's broker
// sub-account API. It signs requests the same way the per-account Client
// does (HMAC-SHA256 over the urlencoded payload, recvWindow=5000ms).
type MasterClient struct {
	cfg        MasterConfig
	baseURL    string
	httpClient *http.Client
}

// NewMasterClient creates a master client.
func NewMasterClient(cfg MasterConfig) *MasterClient {
	base := "https://fapi.binance.com"
	if cfg.Testnet {
		base = "https://testnet.binancefuture.com"
	}
	return &MasterClient{
		cfg:        cfg,
		baseURL:    base,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (m *MasterClient) doSigned(ctx context.Context, method, endpoint string, params url.Values) ([]byte, error) {
	if m.cfg.APIKey == "" || m.cfg.APISecret == "" {
		return nil, errors.New("binance master: API key/secret required")
	}
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("recvWindow", "5000")
	params.Set("signature", sign(params.Encode(), m.cfg.APISecret))

	req, err := http.NewRequestWithContext(ctx, method, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-MBX-APIKEY", m.cfg.APIKey)

	res, err := m.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	if res.StatusCode >= 300 {
		return nil, &common.ExchangeError{Code: res.StatusCode, Message: string(body), Status: res.StatusCode}
	}
	return body, nil
}

// MasterBalance returns the master account's available USDT for funding
// transfers.
func (m *MasterClient) MasterBalance(ctx context.Context) (float64, error) {
	body, err := m.doSigned(ctx, http.MethodGet, m.baseURL+"/fapi/v2/balance", url.Values{})
	if err != nil {
		return 0, err
	}
	var bals []FuturesBalance
	if err := json.Unmarshal(body, &bals); err != nil {
		return 0, fmt.Errorf("decode master balance: %w", err)
	}
	for _, b := range bals {
		if b.Asset == "USDT" {
			return parseFloat(b.AvailableBalance), nil
		}
	}
	return 0, nil
}

// EnsureMasterHealthy verifies the master wallet holds at least MinBalance
// before a provisioning transfer is attempted, so a funded challenge never
// sees a partially completed transfer (§4.2, §4.5).
func (m *MasterClient) EnsureMasterHealthy(ctx context.Context) error {
	bal, err := m.MasterBalance(ctx)
	if err != nil {
		return fmt.Errorf("check master balance: %w", err)
	}
	if bal < m.cfg.MinBalance {
		return fmt.Errorf("master balance %.2f below minimum %.2f", bal, m.cfg.MinBalance)
	}
	return nil
}

// CreateSubAccount provisions a new futures-enabled sub-account for a
// trader's challenge.
func (m *MasterClient) CreateSubAccount(ctx context.Context, username, note string) (string, error) {
	params := url.Values{}
	params.Set("subAccountString", username)
	body, err := m.doSigned(ctx, http.MethodPost, m.baseURL+"/sapi/v1/broker/subAccount", params)
	if err != nil {
		return "", err
	}
	var out struct {
		SubaccountID string `json:"subaccountId"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode sub-account: %w", err)
	}
	return out.SubaccountID, nil
}

// CreateSubAPIKey issues an API key for a sub-account. Withdrawal
// permission is never requested: only trading (and reads, implicitly) are
// enabled, regardless of canTrade.
func (m *MasterClient) CreateSubAPIKey(ctx context.Context, subUID string, canTrade bool) (string, string, error) {
	params := url.Values{}
	params.Set("subAccountId", subUID)
	params.Set("canTrade", strconv.FormatBool(canTrade))
	params.Set("canWithdraw", "false")
	params.Set("marginType", "USDT_FUTURE")
	body, err := m.doSigned(ctx, http.MethodPost, m.baseURL+"/sapi/v1/broker/subAccountApi", params)
	if err != nil {
		return "", "", err
	}
	var out struct {
		APIKey    string `json:"apiKey"`
		SecretKey string `json:"secretKey"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", "", fmt.Errorf("decode sub-account api key: %w", err)
	}
	return out.APIKey, out.SecretKey, nil
}

// TransferToSubAccount moves USDT from the master wallet into a
// sub-account's futures wallet. idempotencyKey is sent as the broker API's
// clientTranId so a retried call after a timeout does not double-transfer.
func (m *MasterClient) TransferToSubAccount(ctx context.Context, subUID string, amount float64, idempotencyKey string) error {
	return m.transfer(ctx, "", subUID, amount, idempotencyKey)
}

// TransferFromSubAccount sweeps USDT out of a sub-account's futures wallet
// back to the master wallet, e.g. on challenge failure or payout funding.
func (m *MasterClient) TransferFromSubAccount(ctx context.Context, subUID string, amount float64, idempotencyKey string) error {
	return m.transfer(ctx, subUID, "", amount, idempotencyKey)
}

// ResetDemoBalance credits a demo sub-account's futures wallet back up to
// amount from the master wallet. Binance's broker API has no "set balance"
// endpoint, so a demo reset is a transfer like any funded provisioning
// transfer; the testnet master wallet is faucet-funded for this purpose.
func (m *MasterClient) ResetDemoBalance(ctx context.Context, subUID string, amount float64) error {
	return m.transfer(ctx, "", subUID, amount, "demo-reset-"+subUID)
}

func (m *MasterClient) transfer(ctx context.Context, fromSubUID, toSubUID string, amount float64, idempotencyKey string) error {
	params := url.Values{}
	if fromSubUID != "" {
		params.Set("fromId", fromSubUID)
	}
	if toSubUID != "" {
		params.Set("toId", toSubUID)
	}
	params.Set("asset", "USDT")
	params.Set("amount", formatFloat(amount))
	params.Set("clientTranId", idempotencyKey)
	_, err := m.doSigned(ctx, http.MethodPost, m.baseURL+"/sapi/v1/broker/transfer", params)
	return err
}

var _ common.MasterGateway = (*MasterClient)(nil)
