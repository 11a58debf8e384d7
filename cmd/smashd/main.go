package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brydisanto/smash-the-wall/internal/api"
	"github.com/brydisanto/smash-the-wall/internal/chain"
	"github.com/brydisanto/smash-the-wall/internal/config"
	"github.com/brydisanto/smash-the-wall/internal/metrics"
	"github.com/brydisanto/smash-the-wall/internal/opensea"
	"github.com/brydisanto/smash-the-wall/internal/prices"
	"github.com/brydisanto/smash-the-wall/internal/usernames"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.MessageKey = "msg"
	cfg.EncoderConfig.CallerKey = "caller"
	cfg.EncoderConfig.StacktraceKey = "stacktrace"
	cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339)
	return cfg.Build()
}

func main() {
	cfgPath := flag.String("config", "./config.yaml", "path to config file")
	flag.Parse()

	logger, err := newLogger()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warn("config file not found, running with defaults", zap.String("path", *cfgPath))
			cfg = config.Default()
		} else {
			logger.Fatal("failed to load config", zap.Error(err))
		}
	}
	if cfg.OpenSea.APIKey == "" {
		logger.Warn("opensea api key not set - 429s are possible")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		logger.Warn("received signal, shutting down...")
		cancel()
	}()

	metrics.Serve(ctx, cfg.Metrics.ListenAddr, nil, logger)

	market := opensea.NewClient(cfg, logger)
	reader, err := chain.NewReader(cfg)
	if err != nil {
		logger.Fatal("failed to initialize chain reader", zap.Error(err))
	}
	oracle := prices.NewOracle(cfg, logger)

	var cache usernames.Cache
	if cfg.Redis.Addr != "" {
		cache = usernames.NewRedisCache(cfg)
		logger.Info("username cache: redis", zap.String("addr", cfg.Redis.Addr))
	} else {
		cache = usernames.NewMemoryCache(cfg.Leaderboard.MemoryCacheCap)
		logger.Info("username cache: in-memory", zap.Int("cap", cfg.Leaderboard.MemoryCacheCap))
	}

	srv := api.NewServer(cfg, logger, market, reader, oracle, cache)
	logger.Info("smashd started",
		zap.String("collection", cfg.OpenSea.Collection),
		zap.String("seller", cfg.OpenSea.SellerWallet),
		zap.String("token", cfg.Chain.TokenContract),
	)
	srv.Start(ctx)
}
