package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/benbenlijie/stock-quant-tool/internal/backtest"
	"github.com/benbenlijie/stock-quant-tool/internal/config"
	"github.com/benbenlijie/stock-quant-tool/internal/database"
	"github.com/benbenlijie/stock-quant-tool/internal/logger"
	"github.com/benbenlijie/stock-quant-tool/internal/marketdata"
	"github.com/benbenlijie/stock-quant-tool/internal/server"
)

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		panic(fmt.Sprintf("could not load config: %v", err))
	}

	// Initialize logger
	log, err := logger.New(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	if err := cfg.Strategy.Validate(); err != nil {
		log.Fatal("Invalid strategy configuration", zap.Error(err))
	}
	if err := cfg.Estimator.Validate(); err != nil {
		log.Fatal("Invalid estimator configuration", zap.Error(err))
	}

	// Initialize the run store
	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connection successful and schema migrated.")

	// Initialize the market-data provider
	provider := marketdata.NewClient(&cfg.DataFeed, log)

	store := backtest.NewStore(db)
	runner := backtest.NewRunner(log, &cfg, provider, store)

	srv := server.New(cfg.Server.Port, runner, store, log)
	srv.Start()

	// Wait for a shutdown signal
	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
	<-sigchan
	log.Info("Shutdown signal received, gracefully shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		log.Error("Server shutdown failed", zap.Error(err))
	}
	runner.Wait()
	log.Info("Server has been shut down.")
}
