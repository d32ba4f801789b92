// Package main runs the unified trading service:
// - Accrual loop (continuous): position PnL accrual at a fixed tick
// - Treasury (on demand): real ETH withdrawals over public RPC endpoints
// - HTTP API: dashboard endpoints, websocket live stream, metrics
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"apex-trader/internal/api"
	"apex-trader/internal/ethereum"
	"apex-trader/internal/storage"
	chstore "apex-trader/internal/storage/clickhouse"
	"apex-trader/internal/storage/memory"
	"apex-trader/internal/storage/migrations"
	pgstore "apex-trader/internal/storage/postgres"
	"apex-trader/internal/trading"
	"apex-trader/internal/treasury"
)

// allStores holds all storage implementations.
type allStores struct {
	receiptStore  storage.ReceiptStore
	snapshotStore storage.SnapshotStore
}

func main() {
	// Load .env file if exists
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("load .env: %v", err)
	}

	// Parse flags (env vars as defaults)
	addr := flag.String("addr", envOr("ADDR", ":3001"), "HTTP listen address")
	endpoints := flag.String("rpc-endpoints", os.Getenv("ETH_RPC_ENDPOINTS"), "Comma-separated Ethereum RPC endpoints (default: built-in public list)")
	feeRecipient := flag.String("fee-recipient", os.Getenv("FEE_RECIPIENT"), "Default withdrawal recipient address")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string for the receipt journal")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string for earnings snapshots")
	useMemory := flag.Bool("use-memory", true, "Use in-memory storage instead of PostgreSQL/ClickHouse")
	strategyCount := flag.Int("strategies", trading.DefaultStrategyCount, "Size of the simulated position population")
	tickInterval := flag.Duration("tick-interval", trading.DefaultTickInterval, "Accrual tick interval")
	snapshotInterval := flag.Duration("snapshot-interval", trading.DefaultSnapshotInterval, "Earnings snapshot flush interval")
	confirmWait := flag.Duration("confirm-wait", treasury.DefaultConfirmWait, "Synchronous confirmation wait before returning pending")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	if !*useMemory && (*postgresDSN == "" || *clickhouseDSN == "") {
		logger.Fatal("--postgres-dsn and --clickhouse-dsn are required (use --use-memory for in-memory storage)")
	}

	// The signing key comes from the environment only, never a flag, so it
	// cannot leak through process listings.
	var cred *treasury.Credential
	if hexKey := os.Getenv("TREASURY_PRIVATE_KEY"); hexKey != "" {
		var err error
		cred, err = treasury.NewCredential(hexKey)
		if err != nil {
			logger.Fatalf("Invalid TREASURY_PRIVATE_KEY: %v", err)
		}
		logger.Printf("Treasury wallet: %s", cred.Address().Hex())
	} else {
		logger.Println("TREASURY_PRIVATE_KEY not set, withdrawals disabled")
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())

	// Create stores
	stores, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	// Endpoint pool and treasury session
	pool := ethereum.NewPool(splitEndpoints(*endpoints),
		ethereum.WithLogger(log.New(os.Stdout, "[rpc] ", log.LstdFlags)))
	session := treasury.NewSession(pool, cred, log.New(os.Stdout, "[session] ", log.LstdFlags))
	defer session.Close()

	// Simulated book
	rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), uint64(time.Now().UnixNano())>>16))
	book := trading.NewBook(trading.GenerateStrategies(*strategyCount, rng), rng)
	logger.Printf("Generated %d strategies across %d protocols", book.Len(), len(trading.Protocols()))

	// Transfer executor
	executor := treasury.NewExecutor(treasury.ExecutorOptions{
		Session:     session,
		Ledger:      book,
		Receipts:    stores.receiptStore,
		Tracker:     treasury.NewTracker(),
		Logger:      log.New(os.Stdout, "[treasury] ", log.LstdFlags),
		ConfirmWait: *confirmWait,
	})

	// Accrual engine
	engine := trading.NewEngine(trading.EngineOptions{
		Book:             book,
		Snapshots:        stores.snapshotStore,
		TickInterval:     *tickInterval,
		SnapshotInterval: *snapshotInterval,
		Logger:           log.New(os.Stdout, "[accrual] ", log.LstdFlags),
	})

	// HTTP API
	server := api.NewServer(api.Options{
		Session:      session,
		Executor:     executor,
		Book:         book,
		FeeRecipient: *feeRecipient,
		Logger:       logger,
	})

	// Channel to signal completion. main is the only sender, the signal
	// goroutine the only receiver.
	done := make(chan error, 1)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Printf("HTTP shutdown: %v", err)
		}

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	// Start HTTP server. A listen failure cancels the accrual context so
	// main unblocks instead of serving a dashboard with no API.
	httpErr := make(chan error, 1)
	go func() {
		logger.Printf("Starting HTTP server on %s", *addr)
		if err := server.Start(*addr); err != nil {
			httpErr <- err
			cancel()
		}
	}()

	// Run the accrual loop
	err = engine.Run(ctx)
	done <- err
	cancel()

	select {
	case herr := <-httpErr:
		logger.Fatalf("HTTP server error: %v", herr)
	default:
	}
	if err != nil && err != context.Canceled {
		logger.Fatalf("Accrual engine error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// createStores creates the receipt journal and snapshot store.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool) (*allStores, func(), error) {
	if useMemory {
		stores := &allStores{
			receiptStore:  memory.NewReceiptStore(),
			snapshotStore: memory.NewSnapshotStore(),
		}
		return stores, func() {}, nil
	}

	// PostgreSQL (transfer receipts)
	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}

	// ClickHouse (earnings snapshots)
	chConn, err := chstore.NewConn(ctx, clickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
	}
	if err := migrations.RunClickhouseMigrations(ctx, chConn); err != nil {
		chConn.Close()
		pool.Close()
		return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
	}

	stores := &allStores{
		receiptStore:  pgstore.NewReceiptStore(pool),
		snapshotStore: chstore.NewSnapshotStore(chConn),
	}

	cleanup := func() {
		chConn.Close()
		pool.Close()
	}

	return stores, cleanup, nil
}

// splitEndpoints parses the comma-separated endpoint list. Empty input
// yields nil, which selects the built-in public list.
func splitEndpoints(s string) []string {
	if s == "" {
		return nil
	}
	var list []string
	for _, e := range strings.Split(s, ",") {
		e = strings.TrimSpace(e)
		if e != "" {
			list = append(list, e)
		}
	}
	return list
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
