package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/davidleathers/auction-bid-gateway/internal/api/rest"
	"github.com/davidleathers/auction-bid-gateway/internal/infrastructure/authority"
	"github.com/davidleathers/auction-bid-gateway/internal/infrastructure/cache"
	"github.com/davidleathers/auction-bid-gateway/internal/infrastructure/config"
	"github.com/davidleathers/auction-bid-gateway/internal/infrastructure/messaging"
	"github.com/davidleathers/auction-bid-gateway/internal/infrastructure/telemetry"
	"github.com/davidleathers/auction-bid-gateway/internal/service/activation"
	"github.com/davidleathers/auction-bid-gateway/internal/service/forwarding"
	"github.com/davidleathers/auction-bid-gateway/internal/service/intake"
	"github.com/davidleathers/auction-bid-gateway/internal/service/registry"
	"github.com/davidleathers/auction-bid-gateway/internal/service/validation"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := telemetry.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to setup logger: %v", err)
	}
	defer logger.Sync()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("bid gateway failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("starting auction bid gateway",
		zap.String("version", cfg.Version),
		zap.String("environment", cfg.Environment))

	broker, err := messaging.NewRabbitClient(cfg.Broker.URL, logger)
	if err != nil {
		return err
	}
	defer broker.Close()

	validityCache, err := cache.NewValidityCache(&cfg.Redis, logger)
	if err != nil {
		return err
	}
	defer validityCache.Close()

	authorityClient, err := authority.NewClient(&cfg.Authority, logger)
	if err != nil {
		return err
	}

	reg := registry.New()
	validator := validation.NewValidator(validityCache, authorityClient, logger)
	publisher := forwarding.NewPublisher(broker, reg, logger)
	processor := intake.NewProcessor(broker, reg, validator, publisher, logger)

	scheduler, err := activation.NewScheduler(cfg.Schedule, cfg.Broker.DirectoryQueue, broker, reg, processor, logger)
	if err != nil {
		return err
	}

	handler := rest.NewHandler(reg, broker, validator, scheduler, cfg.Version, logger)
	server := rest.NewServer(cfg.Server, handler, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return scheduler.Run(gctx) })
	g.Go(func() error { return server.Start(gctx) })

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("auction bid gateway stopped")
	return nil
}
