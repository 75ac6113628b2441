// Package main runs the settlement service: the HTTP API for swap and
// purchase intents, redemption, and the asynchronous queue, plus an
// internal ticker that settles queued requests in batch passes.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"chefcoin-bridge/internal/api"
	"chefcoin-bridge/internal/observability"
	"chefcoin-bridge/internal/settlement"
	"chefcoin-bridge/internal/solana"
	"chefcoin-bridge/internal/storage"
	chstore "chefcoin-bridge/internal/storage/clickhouse"
	"chefcoin-bridge/internal/storage/memory"
	"chefcoin-bridge/internal/storage/migrations"
	pgstore "chefcoin-bridge/internal/storage/postgres"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	addr := flag.String("addr", envOr("HTTP_ADDR", ":8080"), "HTTP listen address")
	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("SOLANA_RPC_ENDPOINT"), "Solana RPC HTTP endpoint")
	wsEndpoint := flag.String("ws-endpoint", os.Getenv("SOLANA_WS_ENDPOINT"), "Solana WebSocket endpoint (optional, enables subscription-based confirmation)")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string (optional, enables the audit mirror)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")

	mint := flag.String("mint", os.Getenv("TOKEN_MINT"), "GRMC token mint address")
	treasuryKey := flag.String("treasury-key", os.Getenv("TREASURY_SECRET_KEY"), "Treasury secret key (base58, 64 bytes)")
	feeWallet := flag.String("fee-wallet", os.Getenv("FEE_WALLET"), "Fee wallet address receiving inbound payments")

	swapTaxBps := flag.Int64("swap-tax-bps", 300, "Swap tax in basis points")
	exchangeTaxBps := flag.Int64("exchange-tax-bps", 300, "Redemption tax in basis points")
	minSwapAmount := flag.Int64("min-swap-amount", settlement.DefaultMinimumSwapAmount, "Minimum gross swap amount in chefcoins")
	creditDailyLimit := flag.Int64("credit-daily-limit", 0, "Max chefcoins credited per wallet per UTC day (0 disables)")
	proofWindow := flag.Duration("proof-window", settlement.DefaultProofStalenessWindow, "Max age of queued proof transactions")

	batchInterval := flag.Duration("batch-interval", 30*time.Second, "Interval between queue batch passes (0 disables the internal ticker)")
	batchLimit := flag.Int("batch-limit", settlement.DefaultBatchLimit, "Max queued requests claimed per pass")

	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	if *rpcEndpoint == "" {
		logger.Fatal("--rpc-endpoint is required")
	}
	if *mint == "" || *feeWallet == "" {
		logger.Fatal("--mint and --fee-wallet are required")
	}
	if !*useMemory && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}

	var treasury *solana.Keypair
	if *treasuryKey != "" {
		kp, err := solana.ParseKeypair(*treasuryKey)
		if err != nil {
			logger.Fatalf("parse treasury key: %v", err)
		}
		treasury = kp
		logger.Printf("Treasury wallet: %s", treasury.Address)
	} else {
		logger.Println("No treasury key configured; redemptions and currency_to_token settlement are disabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewMetrics("chefcoin_bridge")

	rpc := solana.NewHTTPClient(*rpcEndpoint, solana.WithCallObserver(func(method string, d time.Duration) {
		metrics.RPCCallLatency.WithLabelValues(method).Observe(d.Seconds())
	}))

	// Stores
	var (
		swapIntents     storage.SwapIntentStore     = memory.NewSwapIntentStore()
		purchaseIntents storage.PurchaseIntentStore = memory.NewPurchaseIntentStore()
		ledger          storage.BalanceLedger       = memory.NewBalanceLedger()
		requests        storage.SwapRequestStore    = memory.NewSwapRequestStore()
	)
	if !*useMemory {
		pool, err := pgstore.NewPool(ctx, *postgresDSN)
		if err != nil {
			logger.Fatalf("connect to postgres: %v", err)
		}
		defer pool.Close()

		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			logger.Fatalf("run postgres migrations: %v", err)
		}

		ledger = pgstore.NewBalanceLedger(pool)
		requests = pgstore.NewSwapRequestStore(pool)
		// Intents are short-lived and per-instance; they stay in memory.
	}

	engine := settlement.New(settlement.Config{
		Mint:                 *mint,
		Treasury:             treasury,
		FeeWallet:            *feeWallet,
		SwapTaxBps:           *swapTaxBps,
		ExchangeTaxBps:       *exchangeTaxBps,
		MinimumSwapAmount:    *minSwapAmount,
		CreditDailyLimit:     *creditDailyLimit,
		ProofStalenessWindow: *proofWindow,
	}, rpc, swapIntents, purchaseIntents, ledger, logger).WithMetrics(metrics)

	if *wsEndpoint != "" {
		engine.WithConfirmer(solana.NewWSConfirmer(*wsEndpoint, nil))
		logger.Printf("Using WebSocket confirmation via %s", *wsEndpoint)
	}

	processor := settlement.NewProcessor(engine, requests, logger).WithBatchLimit(*batchLimit)

	if *clickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, *clickhouseDSN)
		if err != nil {
			logger.Fatalf("run clickhouse migrations: %v", err)
		}
		defer conn.Close()
		processor.WithAuditSink(chstore.NewAuditStore(conn))
		logger.Println("Audit mirror enabled")
	}

	// Internal batch settlement ticker.
	if *batchInterval > 0 {
		go func() {
			ticker := time.NewTicker(*batchInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					result, err := processor.RunBatchPass(ctx)
					if err != nil && !errors.Is(err, context.Canceled) {
						logger.Printf("batch pass: %v", err)
						continue
					}
					if result != nil && result.Processed+result.Failed > 0 {
						logger.Printf("settled %d queued requests (%d failed)", result.Processed, result.Failed)
					}
				}
			}
		}()
	}

	server := &http.Server{
		Addr:              *addr,
		Handler:           api.NewServer(engine, processor, metrics, logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Printf("Received signal %v, shutting down...", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Printf("shutdown: %v", err)
		}
	}()

	logger.Printf("Starting settlement server on %s", *addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("server: %v", err)
	}
	logger.Println("Shutdown complete")
}

// envOr returns the environment value for key, or fallback when unset.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
