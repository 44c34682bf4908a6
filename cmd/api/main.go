package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/snipekit/snipekit/internal/api/rest"
	"github.com/snipekit/snipekit/internal/domain/auction"
	"github.com/snipekit/snipekit/internal/infrastructure/auth"
	"github.com/snipekit/snipekit/internal/infrastructure/config"
	"github.com/snipekit/snipekit/internal/infrastructure/database"
	"github.com/snipekit/snipekit/internal/infrastructure/marketplace"
	"github.com/snipekit/snipekit/internal/infrastructure/repository"
	"github.com/snipekit/snipekit/internal/infrastructure/telemetry"
	"github.com/snipekit/snipekit/internal/service/coalesce"
	"github.com/snipekit/snipekit/internal/service/pricecache"
	"github.com/snipekit/snipekit/internal/service/sniper"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := telemetry.NewLogger(cfg.Environment, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("starting snipekit",
		zap.String("version", cfg.Version),
		zap.String("environment", cfg.Environment),
		zap.String("marketplace_env", cfg.Marketplace.Env))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	clock := auction.RealClock{}

	auctionRepo := repository.NewAuctionRepository(db.Pgx())
	attemptRepo := repository.NewBidAttemptRepository(db.Pgx())

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := sniper.NewMetrics(registry)

	creds := marketplace.NewCredentialManager(cfg.Marketplace, clock, logger)
	market := marketplace.NewClient(cfg.Marketplace, creds,
		marketplace.NewMetrics(registry), logger)

	coalescer := coalesce.New()
	prices := pricecache.New(auctionRepo, market, coalescer, clock,
		cfg.Sniper.PriceTTL, cfg.Sniper.RefreshParallelism, logger)

	reconciler := sniper.NewReconciler(auctionRepo, market, clock, metrics,
		logger.Named("reconciler"), cfg.Sniper.OutcomeSettleDelay)
	scheduler := sniper.NewScheduler(db, auctionRepo, attemptRepo, market, prices,
		creds, reconciler, clock, metrics, logger.Named("scheduler"),
		cfg.Sniper.TickInterval, cfg.Sniper.BidOffset, cfg.Sniper.PreCheckOffset)

	sniperSvc := sniper.NewService(auctionRepo, attemptRepo, market, prices,
		clock, logger.Named("sniper"))
	authSvc := auth.NewService(cfg.Security.JWTSecret, cfg.Security.TokenExpiry, clock)

	handler := rest.NewHandler(sniperSvc, authSvc,
		cfg.Security.APIUsername, cfg.Security.APIPassword, db, logger)
	server := rest.NewServer(cfg.Server, cfg.Security, handler, authSvc, registry, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := scheduler.Run(gctx)
		if err == context.Canceled {
			return nil
		}
		return err
	})

	g.Go(func() error {
		return server.Start()
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		return server.Shutdown(context.Background())
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
