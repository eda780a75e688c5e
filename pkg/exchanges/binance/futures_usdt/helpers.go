package futures_usdt

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/simex888888-dotcom/prop-trading-app1/pkg/exchanges/common"
)

// sign computes the HMAC-SHA256 signature Binance expects over the
// urlencoded query/body string.
func sign(payload, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// formatFloat renders a float the way Binance's form-encoded API expects:
// plain decimal, no exponent, no trailing noise beyond what's needed.
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// mapStatus normalizes a raw Binance order status string into the
// package-wide OrderStatus enum.
func mapStatus(raw string) common.OrderStatus {
	switch raw {
	case "NEW":
		return common.StatusNew
	case "PARTIALLY_FILLED":
		return common.StatusPartial
	case "FILLED":
		return common.StatusFilled
	case "CANCELED", "EXPIRED_IN_MATCH":
		return common.StatusCanceled
	case "REJECTED":
		return common.StatusRejected
	case "EXPIRED":
		return common.StatusExpired
	default:
		return common.StatusUnknown
	}
}

// FuturesBalance is one asset's balance entry from GET /fapi/v2/balance.
type FuturesBalance struct {
	Asset              string `json:"asset"`
	Balance            string `json:"balance"`
	CrossWalletBalance string `json:"crossWalletBalance"`
	AvailableBalance   string `json:"availableBalance"`
	CrossUnPnl         string `json:"crossUnPnl"`
}

// OpenOrder is one entry from GET /fapi/v1/openOrders.
type OpenOrder struct {
	Symbol        string `json:"symbol"`
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Price         string `json:"price"`
	OrigQty       string `json:"origQty"`
	ExecutedQty   string `json:"executedQty"`
	Status        string `json:"status"`
	Side          string `json:"side"`
	PositionSide  string `json:"positionSide"`
	ReduceOnly    bool   `json:"reduceOnly"`
}

// UserTrade is one fill returned by GET /fapi/v1/userTrades.
type UserTrade struct {
	Symbol    string `json:"symbol"`
	ID        int64  `json:"id"`
	OrderID   int64  `json:"orderId"`
	Side      string `json:"side"`
	Price     string `json:"price"`
	Qty       string `json:"qty"`
	RealizedPnl string `json:"realizedPnl"`
	Commission  string `json:"commission"`
	Time      int64  `json:"time"`
}

// Income is one entry from GET /fapi/v1/income (funding fees, realized PnL,
// transfers, etc).
type Income struct {
	Symbol     string `json:"symbol"`
	IncomeType string `json:"incomeType"`
	Income     string `json:"income"`
	Asset      string `json:"asset"`
	Time       int64  `json:"time"`
}

// rawKline is one candle row from GET /fapi/v1/klines: Binance returns each
// candle as a 12-element heterogeneous JSON array (mixed numbers/strings).
type rawKline [12]interface{}

// parseFloat parses a Binance numeric-string field, treating a malformed
// value as zero rather than propagating a parse error through every
// balance/position call site.
func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

// toStr coerces a decoded JSON array element (string or float64) to string.
func toStr(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

// toInt64 coerces a decoded JSON array element to int64.
func toInt64(v interface{}) int64 {
	switch t := v.(type) {
	case float64:
		return int64(t)
	case string:
		n, _ := strconv.ParseInt(t, 10, 64)
		return n
	default:
		return 0
	}
}
