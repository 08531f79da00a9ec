package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cosmossdk.io/math"
	"go.uber.org/zap"

	"solsolver/pkg/api"
	"solsolver/pkg/backend"
	"solsolver/pkg/backend/amm"
	"solsolver/pkg/backend/jupiter"
	"solsolver/pkg/backend/okx"
	"solsolver/pkg/config"
	"solsolver/pkg/log"
	"solsolver/pkg/metrics"
	"solsolver/pkg/quotecache"
	"solsolver/pkg/sol"
	"solsolver/pkg/solver"
	"solsolver/pkg/subscription"
)

var (
	backendName = flag.String("backend", "", "Swap backend to solve with (jupiter, okx or amm)")
	configPath  = flag.String("config", "", "Path to the configuration file")
	listenAddr  = flag.String("addr", "", "Listen address override")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *listenAddr != "" {
		cfg.Server.Addr = *listenAddr
	}

	logger, err := log.New(cfg.Server.LogLevel, cfg.Server.LogJSON)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b, err := buildBackend(ctx, *backendName, cfg, logger)
	if err != nil {
		logger.Error("backend setup failed", zap.String("backend", *backendName), zap.Error(err))
		os.Exit(1)
	}

	m := metrics.New()
	limiter := quotecache.NewLimiter(quotecache.LimiterConfig{
		RPS:           cfg.Limiter.RPS,
		Burst:         cfg.Limiter.Burst,
		BackoffFactor: cfg.Limiter.BackoffFactor,
		MinRPS:        cfg.Limiter.MinRPS,
		RecoveryStep:  cfg.Limiter.RecoveryStep,
	})
	cache := quotecache.New(quotecache.Config{
		TTL:           cfg.Cache.TTL,
		FetchTimeout:  cfg.Cache.FetchTimeout,
		SweepInterval: cfg.Cache.SweepInterval,
	}, limiter, m, logger)
	go cache.StartSweeper(ctx)

	smallestFill, ok := math.NewIntFromString(cfg.Solver.SmallestPartialFill)
	if !ok {
		logger.Error("invalid smallest partial fill", zap.String("value", cfg.Solver.SmallestPartialFill))
		os.Exit(1)
	}
	s := solver.New(b, cache, solver.Config{
		MaxSolveDuration:    cfg.Server.MaxSolveDuration,
		DeadlineSlack:       cfg.Server.DeadlineSlack,
		ConcurrentRequests:  cfg.Solver.ConcurrentRequests,
		ToleranceBps:        cfg.Solver.ToleranceBps,
		ToleranceBucketBps:  cfg.Solver.ToleranceBucketBps,
		MinSurplusBps:       cfg.Solver.MinSurplusBps,
		SmallestPartialFill: smallestFill,
		PreferFullFill:      cfg.Solver.PreferFullFill,
	}, m, logger)

	server := api.NewServer(cfg.Server.Addr, s, m, logger)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown error", zap.Error(err))
		}
		cancel()
	}()

	logger.Info("solver service listening",
		zap.String("addr", cfg.Server.Addr),
		zap.String("backend", b.Name()),
	)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func buildBackend(ctx context.Context, name string, cfg *config.Config, logger *zap.Logger) (backend.Backend, error) {
	switch name {
	case "jupiter":
		return jupiter.New(jupiter.Config{
			Endpoint:  cfg.Jupiter.Endpoint,
			APIKey:    cfg.Jupiter.APIKey,
			Authority: cfg.Jupiter.Authority,
		}, logger)
	case "okx":
		return okx.New(okx.Config{
			Endpoint:   cfg.OKX.Endpoint,
			APIKey:     cfg.OKX.APIKey,
			Secret:     cfg.OKX.Secret,
			Passphrase: cfg.OKX.Passphrase,
			Authority:  cfg.OKX.Authority,
		}, logger)
	case "amm":
		pool, err := sol.NewRPCPool(cfg.AMM.RPCEndpoints, cfg.AMM.RPCRPS)
		if err != nil {
			return nil, err
		}
		var subs *subscription.Manager
		if cfg.AMM.WSEndpoint != "" {
			subs, err = subscription.Dial(ctx, cfg.AMM.WSEndpoint, logger)
			if err != nil {
				return nil, err
			}
		}
		return amm.New(pool.GetClient(), subs, logger, cfg.AMM.Protocols)
	case "":
		return nil, fmt.Errorf("no backend selected, use -backend")
	default:
		return nil, fmt.Errorf("unknown backend %q", name)
	}
}
