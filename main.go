package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/simex888888-dotcom/prop-trading-app1/internal/api"
	"github.com/simex888888-dotcom/prop-trading-app1/internal/challenge"
	"github.com/simex888888-dotcom/prop-trading-app1/internal/crypto"
	"github.com/simex888888-dotcom/prop-trading-app1/internal/gateway"
	"github.com/simex888888-dotcom/prop-trading-app1/internal/ledger"
	"github.com/simex888888-dotcom/prop-trading-app1/internal/notify"
	"github.com/simex888888-dotcom/prop-trading-app1/internal/orchestrator"
	"github.com/simex888888-dotcom/prop-trading-app1/internal/pricefeed"
	"github.com/simex888888-dotcom/prop-trading-app1/pkg/config"
	exfutusdt "github.com/simex888888-dotcom/prop-trading-app1/pkg/exchanges/binance/futures_usdt"
	marketbinance "github.com/simex888888-dotcom/prop-trading-app1/pkg/market/binance"
)

// main wires the challenge engine together: ledger storage, per-challenge
// exchange gateways, the rule engine and lifecycle service, the periodic
// orchestrator tick, the price feed, and the minimal HTTP surface. Shaped
// after the teacher's own main.go — config load, dependency construction in
// dependency order, background goroutines started explicitly, signal-driven
// graceful shutdown.
func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	log.Printf("challenge engine starting (port %s, db %s)", cfg.Port, cfg.ChallengeDBPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := ledger.Open(cfg.ChallengeDBPath)
	if err != nil {
		log.Fatalf("ledger open failed: %v", err)
	}
	defer store.Close()
	if err := store.ApplyMigrations(); err != nil {
		log.Fatalf("ledger migrations failed: %v", err)
	}
	log.Println("✓ ledger ready")

	keyMgr, err := crypto.NewKeyManager()
	if err != nil {
		log.Fatalf("key manager init failed: %v", err)
	}
	log.Printf("🔐 key manager initialized (version %d)", keyMgr.CurrentVersion())

	factory := gateway.DefaultFactory
	if cfg.ExchangeTestnet {
		factory = gateway.TestnetFactory
	}
	gatewayMgr := gateway.NewManager(store, keyMgr, factory, gateway.DefaultConfig())
	gatewayMgr.Start(ctx)
	log.Println("🌐 gateway manager started")

	master := exfutusdt.NewMasterClient(exfutusdt.MasterConfig{
		APIKey:     cfg.ExchangeMasterAPIKey,
		APISecret:  cfg.ExchangeMasterAPISecret,
		Testnet:    cfg.ExchangeTestnet,
		MinBalance: cfg.ExchangeMasterMinBalance,
	})

	bus := notify.NewBus()
	var sink notify.Sink = bus
	if cfg.RedisURL != "" {
		queue, err := notify.NewRedisQueue(cfg.RedisURL)
		if err != nil {
			log.Printf("⚠️ redis notification queue unavailable, falling back to in-process bus: %v", err)
		} else {
			defer queue.Close()
			sink = queue
			dispatcher := notify.NewDispatcher(queue, bus)
			go dispatcher.Run(ctx)
		}
	}

	svc := challenge.NewService(store, gatewayMgr, master, keyMgr, sink)

	sched := orchestrator.NewScheduler(store, gatewayMgr, svc, sink, orchestrator.Config{
		Interval: cfg.CheckInterval(),
		FanOut:   cfg.OrchestratorFanOut,
	})
	sched.Start(ctx)

	streamClient := marketbinance.NewStreamClient(cfg.ExchangeTestnet)
	restClient := marketbinance.NewClient("", "", cfg.ExchangeTestnet)
	feed := pricefeed.New(streamClient, restClient, cfg.PriceFeedSymbols, 10*time.Second)
	feed.Start(ctx)
	log.Printf("price feed started for %v", cfg.PriceFeedSymbols)

	server := api.NewServer(store, bus, api.RateLimitConfig{
		PerMinute:        cfg.RateLimitPerMinute,
		TradingPerMinute: cfg.RateLimitTradingPerMinute,
	})
	go func() {
		if err := server.Start(":" + cfg.Port); err != nil {
			log.Fatalf("api server error: %v", err)
		}
	}()
	log.Printf("✓ api listening on :%s", cfg.Port)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println("shutting down")
	cancel()
}
