package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the challenge engine.
type Config struct {
	Port string

	// Persistence
	ChallengeDBPath string
	RedisURL        string

	// Auth
	JWTSecret             string
	JWTAlgorithm          string
	JWTAccessExpireMins   int
	JWTRefreshExpireDays  int

	// Credential encryption
	AESEncryptionKey string

	// Exchange master account
	ExchangeMasterAPIKey    string
	ExchangeMasterAPISecret string
	ExchangeMasterMinBalance float64
	ExchangeTestnet          bool

	// Orchestrator
	EngineCheckIntervalSeconds int
	OrchestratorFanOut         int

	// Payouts / referrals
	MinPayoutAmount    float64
	ReferralLevel1Pct  float64
	ReferralLevel2Pct  float64
	ReferralPayoutDays int

	// Rate limiting
	RateLimitPerMinute         int
	RateLimitTradingPerMinute int

	// Price feed
	PriceFeedSymbols []string

	// Paper-mode (demo challenge) synthetic fill simulation
	PaperFeeRate             float64
	PaperSlippageBps         float64
	PaperGatewayLatencyMinMs int
	PaperGatewayLatencyMaxMs int
}

// CheckInterval returns EngineCheckIntervalSeconds as a time.Duration.
func (c *Config) CheckInterval() time.Duration {
	return time.Duration(c.EngineCheckIntervalSeconds) * time.Second
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		Port: getEnv("PORT", "8080"),

		ChallengeDBPath: getEnv("CHALLENGE_DB_PATH", "./data/challenges.db"),
		RedisURL:        getEnv("REDIS_URL", "redis://localhost:6379/0"),

		JWTSecret:            getEnv("JWT_SECRET", "dev-secret"),
		JWTAlgorithm:         getEnv("JWT_ALGORITHM", "HS256"),
		JWTAccessExpireMins:  getEnvInt("JWT_ACCESS_EXPIRE_MINUTES", 15),
		JWTRefreshExpireDays: getEnvInt("JWT_REFRESH_EXPIRE_DAYS", 30),

		AESEncryptionKey: os.Getenv("AES_ENCRYPTION_KEY"),

		ExchangeMasterAPIKey:     os.Getenv("EXCHANGE_MASTER_API_KEY"),
		ExchangeMasterAPISecret:  os.Getenv("EXCHANGE_MASTER_API_SECRET"),
		ExchangeMasterMinBalance: getEnvFloat("EXCHANGE_MASTER_MIN_BALANCE", 10000),
		ExchangeTestnet:          getEnv("EXCHANGE_TESTNET", "false") == "true",

		EngineCheckIntervalSeconds: getEnvInt("ENGINE_CHECK_INTERVAL_SECONDS", 30),
		OrchestratorFanOut:         getEnvInt("ORCHESTRATOR_FAN_OUT", 16),

		MinPayoutAmount:    getEnvFloat("MIN_PAYOUT_AMOUNT", 50),
		ReferralLevel1Pct:  getEnvFloat("REFERRAL_LEVEL1_PCT", 10),
		ReferralLevel2Pct:  getEnvFloat("REFERRAL_LEVEL2_PCT", 3),
		ReferralPayoutDays: getEnvInt("REFERRAL_PAYOUT_DAYS", 7),

		RateLimitPerMinute:        getEnvInt("RATE_LIMIT_PER_MINUTE", 100),
		RateLimitTradingPerMinute: getEnvInt("RATE_LIMIT_TRADING_PER_MINUTE", 10),

		PriceFeedSymbols: getEnvSlice("PRICE_FEED_SYMBOLS", []string{"BTCUSDT", "ETHUSDT"}),

		PaperFeeRate:             getEnvFloat("PAPER_FEE_RATE", 0.0004),
		PaperSlippageBps:         getEnvFloat("PAPER_SLIPPAGE_BPS", 2),
		PaperGatewayLatencyMinMs: getEnvInt("PAPER_GATEWAY_LATENCY_MIN_MS", 10),
		PaperGatewayLatencyMaxMs: getEnvInt("PAPER_GATEWAY_LATENCY_MAX_MS", 120),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvSlice(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
