/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the training compensation & settlement server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags, load .env / environment config
  2. Set up structured logging
  3. Initialize SQLite store
  4. Wire domain services (ledger, transport, settlement, commuting)
  5. Configure HTTP router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: 8080)
  -db      SQLite database path (default: settlement.db)
           Use ":memory:" for an in-memory database

ENVIRONMENT:
  LOG_LEVEL, RATE_*, TRANSPORT_*, FUEL_*, LUNCH_*, GEOCODER_BASE_URL,
  ROUTER_BASE_URL - see config/config.go. A .env file is honored.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Environment configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/drillpay/settlement-engine/api"
	"github.com/drillpay/settlement-engine/commuting"
	"github.com/drillpay/settlement-engine/compensation"
	"github.com/drillpay/settlement-engine/config"
	"github.com/drillpay/settlement-engine/pkg/logging"
	"github.com/drillpay/settlement-engine/settlement"
	"github.com/drillpay/settlement-engine/store/sqlite"
	"github.com/drillpay/settlement-engine/transport"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "settlement.db", "SQLite database path")
	flag.Parse()

	logging.Setup()
	log := slog.Default()

	cfg, err := config.Load()
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Wire domain services. The ledger and the settlement engine reference
	// each other through narrow interfaces: the ledger auto-creates
	// disbursement processes, the engine reads ledger totals for clawbacks.
	engine := settlement.NewEngine(store, log)
	ledger := compensation.NewLedger(store, store, store, cfg.Ledger, log).
		WithDisbursementCreator(engine)
	engine.WithLedgerTotals(ledger)

	calculator := transport.NewCalculator(
		transport.NewNominatimGeocoder(cfg.GeocoderBaseURL),
		transport.NewOSRMRouter(cfg.RouterBaseURL),
		store, store, cfg.Fare, log,
	)
	commutes := commuting.NewService(store, store, store, log)

	handler := api.NewHandler(store, ledger, calculator, engine, commutes)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server starting", "addr", fmt.Sprintf("http://localhost:%d", *port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
