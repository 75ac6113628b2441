// Package main runs a single settlement batch pass over the queued swap
// requests and exits. It is meant for external schedulers (cron, systemd
// timers) on deployments that disable the server's internal ticker.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"chefcoin-bridge/internal/settlement"
	"chefcoin-bridge/internal/solana"
	"chefcoin-bridge/internal/storage"
	chstore "chefcoin-bridge/internal/storage/clickhouse"
	"chefcoin-bridge/internal/storage/memory"
	"chefcoin-bridge/internal/storage/migrations"
	pgstore "chefcoin-bridge/internal/storage/postgres"
)

func main() {
	_ = godotenv.Load()

	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("SOLANA_RPC_ENDPOINT"), "Solana RPC HTTP endpoint")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string (optional, enables the audit mirror)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")

	mint := flag.String("mint", os.Getenv("TOKEN_MINT"), "GRMC token mint address")
	treasuryKey := flag.String("treasury-key", os.Getenv("TREASURY_SECRET_KEY"), "Treasury secret key (base58, 64 bytes)")
	feeWallet := flag.String("fee-wallet", os.Getenv("FEE_WALLET"), "Fee wallet address receiving inbound payments")

	swapTaxBps := flag.Int64("swap-tax-bps", 300, "Swap tax in basis points")
	creditDailyLimit := flag.Int64("credit-daily-limit", 0, "Max chefcoins credited per wallet per UTC day (0 disables)")
	proofWindow := flag.Duration("proof-window", settlement.DefaultProofStalenessWindow, "Max age of queued proof transactions")
	batchLimit := flag.Int("batch-limit", settlement.DefaultBatchLimit, "Max queued requests claimed per pass")
	timeout := flag.Duration("timeout", 5*time.Minute, "Overall pass timeout")

	flag.Parse()

	logger := log.New(os.Stdout, "[settle] ", log.LstdFlags|log.Lshortfile)

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
	} else {
		logger.Println("No treasury key configured; currency_to_token requests will fail")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var (
		ledger   storage.BalanceLedger    = memory.NewBalanceLedger()
		requests storage.SwapRequestStore = memory.NewSwapRequestStore()
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
	}

	engine := settlement.New(settlement.Config{
		Mint:                 *mint,
		Treasury:             treasury,
		FeeWallet:            *feeWallet,
		SwapTaxBps:           *swapTaxBps,
		CreditDailyLimit:     *creditDailyLimit,
		ProofStalenessWindow: *proofWindow,
	}, solana.NewHTTPClient(*rpcEndpoint), memory.NewSwapIntentStore(), memory.NewPurchaseIntentStore(), ledger, logger)

	processor := settlement.NewProcessor(engine, requests, logger).WithBatchLimit(*batchLimit)

	if *clickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, *clickhouseDSN)
		if err != nil {
			logger.Fatalf("run clickhouse migrations: %v", err)
		}
		defer conn.Close()
		processor.WithAuditSink(chstore.NewAuditStore(conn))
	}

	result, err := processor.RunBatchPass(ctx)
	if err != nil {
		logger.Fatalf("batch pass: %v", err)
	}
	logger.Printf("Batch pass complete: %d processed, %d failed", result.Processed, result.Failed)
	if result.Failed > 0 {
		os.Exit(1)
	}
}
