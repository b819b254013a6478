package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	goutils "github.com/jkaninda/go-utils"

	"github.com/ariahq/aria/internal/config"
	"github.com/ariahq/aria/internal/gateway/httpapi"
	"github.com/ariahq/aria/internal/ratelimit"
)

var (
	gatewayConfigPath string
	gatewayListen     string
	gatewayDocs       bool
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Start the HTTP gateway",
	RunE:  runGateway,
}

func init() {
	// Register flags on both root and gateway so that
	// `aria --config path` and `aria gateway --config path` both work.
	for _, cmd := range []*cobra.Command{rootCmd, gatewayCmd} {
		cmd.Flags().StringVar(&gatewayConfigPath, "config", "", "path to config file (default: ARIA_CONFIG or built-in defaults)")
		cmd.Flags().StringVar(&gatewayListen, "listen", "", "override HTTP listen address (e.g. :8080)")
		cmd.Flags().BoolVar(&gatewayDocs, "docs", false, "serve interactive API documentation")
	}
}

// runGateway starts Aria in gateway mode.
func runGateway(_ *cobra.Command, _ []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if gatewayListen != "" {
		cfg.Listen = gatewayListen
	}

	logger.Info("starting in gateway mode",
		slog.String("environment", cfg.Environment),
		slog.String("listen", cfg.Listen),
	)

	// Signal-aware context.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sc, err := initShared(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer sc.Cleanup()

	// Warm the embedding index off the request path. Searches degrade to
	// keyword-only scoring until this completes.
	if sc.Index != nil {
		go func() {
			if err := sc.Index.Warm(ctx, sc.Corpus); err != nil {
				logger.Warn("embedding warm-up failed, keyword-only retrieval",
					slog.String("error", err.Error()))
			}
		}()
	}

	// Readiness checks.
	if sc.Obs != nil {
		if sc.Redis != nil {
			redisClient := sc.Redis
			sc.Obs.Health.AddCheck("redis", func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			})
		}
	}

	gw := buildHTTPGateway(cfg, sc)

	errs := make(chan error, 1)
	go func() {
		errs <- gw.Start(ctx)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errs:
		if err != nil {
			logger.Error("gateway exited with error", slog.String("error", err.Error()))
		}
	}

	// Graceful shutdown with deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return gw.Stop(shutdownCtx)
}

// loadConfig reads the config file named by flag or env, falling back to
// built-in defaults when neither is set.
func loadConfig() (*config.Config, error) {
	path := goutils.Env("ARIA_CONFIG", gatewayConfigPath)
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// buildHTTPGateway assembles the HTTP gateway from shared components.
func buildHTTPGateway(cfg *config.Config, sc *SharedComponents) *httpapi.Gateway {
	gwCfg := httpapi.Config{
		ListenAddr: cfg.Listen,
		EnableDocs: gatewayDocs,
		WebSearch:  cfg.Assistant.WebSearch,
	}

	if chat, ok := cfg.RateLimits["chat"]; ok && chat.Max > 0 {
		gwCfg.ChatLimit = ratelimit.NewLimiter(ratelimit.Config{
			Window: chat.Window(),
			Max:    chat.Max,
		})
		gwCfg.ChatWindow = chat.Window()
	}

	if sc.Obs != nil {
		gwCfg.HealthChecker = sc.Obs.Health
		if sc.Obs.Metrics != nil {
			gwCfg.Metrics = sc.Obs.Metrics
			gwCfg.MetricsRegistry = sc.Obs.Metrics.Registry
		}
		if sc.Obs.Tracer != nil {
			gwCfg.Tracer = sc.Obs.Tracer.Tracer()
		}
	}

	return httpapi.NewGateway(gwCfg, sc.Assistant, sc.Cache, sc.Logger).WithSSE(true)
}
