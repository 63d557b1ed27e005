package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"minter/internal/api"
	"minter/internal/blockchain"
	"minter/internal/checkout"
	"minter/internal/config"
	"minter/internal/logger"
	"minter/internal/neynar"
	"minter/internal/notify"
	"minter/internal/postmint"
	"minter/internal/pricefeed"
	"minter/internal/storage"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := logger.Initialize(cfg.Log); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("minter initialization...")
	sqliteStorage, err := storage.NewSqliteStorage(cfg.DatabasePath)
	if err != nil {
		logger.Fatal("minter initialization: cannot open storage", zap.Error(err))
	}
	defer sqliteStorage.Close()

	wallet, err := blockchain.NewRPCWallet(context.Background(), cfg.WalletRPCURL, cfg.ChainID, cfg.ReceiptPollInterval)
	if err != nil {
		logger.Fatal("minter initialization: cannot dial wallet provider", zap.Error(err))
	}
	defer wallet.Close()

	feed := pricefeed.NewHTTPFeed(cfg.PriceFeedURL, pricefeed.DefaultPath)
	profiles := neynar.NewClient(cfg.NeynarBaseURL, cfg.NeynarHubURL, cfg.NeynarAPIKey)
	dispatcher := notify.NewDispatcher(sqliteStorage)
	pipeline := postmint.NewPipeline(sqliteStorage, dispatcher, profiles, cfg.AppURL)

	service := checkout.NewService(wallet, feed, sqliteStorage, pipeline, checkout.Options{
		StablecoinAddress:   cfg.StablecoinAddress,
		SaleContractAddress: cfg.SaleContractAddress,
		PollInterval:        cfg.BundlePollInterval,
		PollMaxAttempts:     cfg.BundlePollMaxAttempts,
		ErrorBackoff:        cfg.BundleErrorBackoff,
		SessionTTL:          cfg.SessionTTL,
	})

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(api.NewHandler(service, sqliteStorage, dispatcher, profiles, cfg.AdminToken)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Info("minter initialization... done", zap.String("addr", cfg.HTTPAddr))

	errCh := make(chan error, 1)

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		logger.Error("minter: server stopped", zap.Error(err))
	case <-waitForInterrupt():
		logger.Info("minter: interrupt received, shutting down...")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("minter: http shutdown", zap.Error(err))
	}
	if err := service.Shutdown(ctx); err != nil {
		logger.Warn("minter: checkout flows cancelled", zap.Error(err))
	}
	logger.Info("minter: shutting down... done")
}

func waitForInterrupt() <-chan os.Signal {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	return sigCh
}
