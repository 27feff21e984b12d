package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/Mosas2000/sprintfund/internal/api"
	"github.com/Mosas2000/sprintfund/internal/config"
	"github.com/Mosas2000/sprintfund/internal/database"
	"github.com/Mosas2000/sprintfund/internal/enrichment"
	"github.com/Mosas2000/sprintfund/internal/ledger"
	"github.com/Mosas2000/sprintfund/internal/logging"
	"github.com/Mosas2000/sprintfund/internal/services"
)

func main() {
	// Local development convenience; the file is absent in production.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.LogLevel, cfg.Environment)

	redis, err := database.NewRedisConnection(cfg.Redis)
	if err != nil {
		logger.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redis.Close()

	ledgerClient := ledger.NewClient(ledger.ClientOptions{
		RPCURL:          cfg.Ledger.RPCURL,
		ContractAddress: cfg.Ledger.ContractAddress,
		Timeout:         config.Duration(cfg.Ledger.CallTimeout, 15*time.Second),
	}, logger)

	collector := services.NewCollector(&cfg.Ledger, ledgerClient, redis, logger)
	defer collector.Close()

	// Network enrichment shares the ledger's RPC connection. An unreachable
	// RPC degrades network context to absent rather than blocking startup.
	var network enrichment.NetworkSource
	dialCtx, dialCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if ethClient, err := ledgerClient.EthClient(dialCtx); err != nil {
		logger.WithField("error", err.Error()).Warn("RPC unreachable at startup, network enrichment disabled")
	} else {
		network = enrichment.NewNetworkClient(ethClient, cfg.Enrichment.BlockSample)
	}
	dialCancel()

	enricher := enrichment.NewService(
		&cfg.Enrichment,
		redis,
		logger,
		enrichment.NewPriceClient(&cfg.Enrichment),
		network,
		enrichment.NewRepoClient(&cfg.Enrichment),
	)
	defer enricher.Close()

	pipeline := services.NewPipeline(collector, enricher, &cfg.Analytics, cfg.Enrichment.BatchSize, logger)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// First snapshot in the background so the server binds immediately;
	// endpoints answer 503 until it lands.
	go func() {
		if err := pipeline.Refresh(rootCtx); err != nil {
			logger.WithField("error", err.Error()).Warn("Initial snapshot load failed, retry via POST /api/v1/refresh")
		}
	}()

	if interval := config.Duration(cfg.Analytics.RefreshInterval, 0); interval > 0 {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-rootCtx.Done():
					return
				case <-ticker.C:
					if err := pipeline.Refresh(rootCtx); err != nil {
						logger.WithField("error", err.Error()).Warn("Scheduled refresh failed")
					}
				}
			}
		}()
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	api.SetupRoutes(router, cfg, pipeline, redis, logger)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Infof("Server starting on port %d", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")
	rootCancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}
