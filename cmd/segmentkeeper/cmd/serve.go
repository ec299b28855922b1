package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/solatis/segmentkeeper/internal/core/api"
	"github.com/solatis/segmentkeeper/internal/core/auth"
	"github.com/solatis/segmentkeeper/internal/core/config"
	"github.com/solatis/segmentkeeper/internal/core/server"
	"github.com/solatis/segmentkeeper/internal/i18n"
	"github.com/solatis/segmentkeeper/internal/rules"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start gRPC rule evaluation service",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "0.0.0.0", "gRPC server host")
	serveCmd.Flags().Int("port", 50061, "gRPC server port")
	serveCmd.Flags().String("metrics-addr", ":9090", "prometheus listen address (empty disables)")
	serveCmd.Flags().String("redis-url", "", "redis URL for cached analytics counts")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd, config.FlagBindings{
		"api.host":         "host",
		"api.port":         "port",
		"api.metrics_addr": "metrics-addr",
		"redis.url":        "redis-url",
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	secrets, err := config.HMACSecrets()
	if err != nil {
		return fmt.Errorf("failed to load HMAC secrets: %w", err)
	}
	if len(secrets) == 0 {
		return fmt.Errorf("no HMAC secrets configured (set SK_HMAC_SECRET environment variable)")
	}

	metricsRegistry := server.NewMetricsRegistry()
	a, err := newApp(ctx, cfg, metricsRegistry, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	service, err := api.NewRuleService(
		a.instances,
		rules.NewEvaluator(a.registry, a.metrics, logger),
		a.registry,
		i18n.ParseLocale(cfg.Export.DefaultLocale, language.AmericanEnglish),
		logger,
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	authenticator := auth.NewAuthenticator(secrets, a.queries, logger)
	grpcServer, err := server.NewGRPCServer(cfg.API, service, authenticator, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	errChan := make(chan error, 2)

	var metricsServer *server.MetricsServer
	if cfg.API.MetricsAddr != "" {
		metricsServer = server.NewMetricsServer(cfg.API.MetricsAddr, metricsRegistry, logger)
		go func() { errChan <- metricsServer.Start() }()
	}

	logger.Info("starting segmentkeeper",
		"version", Version, "host", cfg.API.Host, "port", cfg.API.Port, "rules", a.registry.Keys())
	go func() { errChan <- grpcServer.Start(ctx) }()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown failed", "error", err)
		}
	}
	return grpcServer.Shutdown(shutdownCtx)
}
