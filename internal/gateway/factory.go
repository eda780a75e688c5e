package gateway

import (
	exfutusdt "github.com/simex888888-dotcom/prop-trading-app1/pkg/exchanges/binance/futures_usdt"
	exchange "github.com/simex888888-dotcom/prop-trading-app1/pkg/exchanges/common"
)

// DefaultFactory builds a per-account USDT-M futures Gateway for a
// challenge's demo or funded sub-account against Binance's production
// endpoint. Every challenge in this engine trades the same venue, so
// unlike the teacher's multi-exchange switch this factory takes no
// exchange-type discriminator.
func DefaultFactory(apiKey, apiSecret string) (exchange.Gateway, error) {
	return exfutusdt.NewClient(exfutusdt.Config{
		APIKey:    apiKey,
		APISecret: apiSecret,
		Testnet:   false,
	}), nil
}

// TestnetFactory builds the same Gateway against Binance's USDT-M futures
// testnet. main.go uses it for every challenge, demo or funded, when
// EXCHANGE_TESTNET is set, and DefaultFactory otherwise.
func TestnetFactory(apiKey, apiSecret string) (exchange.Gateway, error) {
	return exfutusdt.NewClient(exfutusdt.Config{
		APIKey:    apiKey,
		APISecret: apiSecret,
		Testnet:   true,
	}), nil
}
