// Package main is the entry point for the panel API.
//
// It loads configuration, connects the PostgreSQL pool, wires the domain
// handlers onto the core chassis, and serves either as a standard HTTP
// server (APP_ENV=local) or behind API Gateway via the Lambda proxy
// adapter.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"

	"revenda/internal/api/handlers"
	"revenda/internal/config"
	"revenda/internal/core"
	"revenda/internal/db"
	"revenda/internal/queue"
	"revenda/internal/runner"
	"revenda/internal/saas"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("panel API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"port", cfg.Server.Port,
	)

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return fmt.Errorf("loading AWS config: %w", err)
	}
	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = &cfg.AWS.EndpointURL
		}
	})

	// Repositories.
	clientRepo := db.NewClientRepo(pool, logger)
	ruleRepo := db.NewRuleRepo(pool, logger)
	templateRepo := db.NewTemplateRepo(pool, logger)
	orgRepo := db.NewOrgRepo(pool, logger)
	dispatchRepo := db.NewDispatchRepo(pool, logger)

	// Domain services.
	gate := saas.NewSubscriptionGate(clientRepo, ruleRepo, logger)
	stripeClient := saas.NewStripeClient(cfg.Billing, logger)
	eventProcessor := saas.NewEventProcessor(orgRepo, logger)
	publisher := queue.NewDispatchPublisher(sqsClient, cfg.AWS.DispatchQueueURL, logger)

	billingRunner := runner.NewBillingRunner(runner.Deps{
		Orgs:       orgRepo,
		Rules:      ruleRepo,
		Clients:    clientRepo,
		Dispatches: dispatchRepo,
		Publisher:  publisher,
		Gate:       gate,
		Logger:     logger,
	}, cfg.Runner)

	// Chassis.
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.Auth = core.NewPanelTokenAuthenticator(cfg.Server.PanelTokenHash.Unmask())
	srv.HealthProbes = append(srv.HealthProbes, db.NewProbe(pool, 0))
	srv.OnShutdown(pool.Close)

	// Domain handlers.
	clientHandler := handlers.NewClientHandler(clientRepo, orgRepo, gate, srv.Validator, logger)
	ruleHandler := handlers.NewRuleHandler(ruleRepo, templateRepo, orgRepo, gate, srv.Validator, logger)
	templateHandler := handlers.NewTemplateHandler(templateRepo, srv.Validator, logger)
	runHandler := handlers.NewRunHandler(billingRunner, srv.Validator, nil, logger)
	billingHandler := handlers.NewBillingHandler(stripeClient, orgRepo, srv.Validator, logger)
	webhookHandler := handlers.NewStripeWebhookHandler(
		saas.StripeVerifier{}, eventProcessor, cfg.Billing.StripeWebhookSecret, logger,
	)

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		clientHandler.RegisterRoutes,
		ruleHandler.RegisterRoutes,
		templateHandler.RegisterRoutes,
		runHandler.RegisterRoutes,
		billingHandler.RegisterRoutes,
	)
	srv.PublicRouteRegistrars = append(srv.PublicRouteRegistrars,
		webhookHandler.RegisterRoutes,
	)

	srv.MountRoutes()

	if isLambdaEnvironment() {
		logger.Info("starting in Lambda proxy mode")
		lambda.Start(httpadapter.NewV2(srv.Handler()).ProxyWithContext)
		return nil
	}

	return runHTTPServer(srv, cfg, logger)
}

// isLambdaEnvironment reports whether the process runs inside the AWS
// Lambda runtime.
func isLambdaEnvironment() bool {
	_, ok := os.LookupEnv("AWS_LAMBDA_RUNTIME_API")
	return ok
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a JSON structured logger for the given level name.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
