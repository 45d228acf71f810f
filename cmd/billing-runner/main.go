// Package main is the entry point for the billing runner Lambda.
//
// EventBridge invokes it once a day with an empty input, which evaluates
// every active tenant. Operators can also invoke it directly with an
// organization_id, a date override, or dry_run set.
//
// Cold start wires the connection pool, the SQS dispatch publisher, the
// CloudWatch run metrics, and the subscription gate; the handler itself
// is stateless.
//
// Local mode (APP_ENV=local) reads the run input from stdin instead of
// starting the Lambda runtime:
//
//	echo '{"organization_id":"org_1","dry_run":true}' | go run ./cmd/billing-runner
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"revenda/internal/config"
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

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	logger.Info("billing runner initializing",
		"environment", cfg.Environment,
		"page_size", cfg.Runner.ClientPageSize,
		"concurrency", cfg.Runner.Concurrency,
	)

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}
	defer pool.Close()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return fmt.Errorf("loading AWS config: %w", err)
	}
	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = &cfg.AWS.EndpointURL
		}
	})

	clientRepo := db.NewClientRepo(pool, logger)
	ruleRepo := db.NewRuleRepo(pool, logger)
	orgRepo := db.NewOrgRepo(pool, logger)
	dispatchRepo := db.NewDispatchRepo(pool, logger)

	var metrics runner.RunMetrics = runner.NoopRunMetrics{}
	if cfg.Observability.EnableMetrics {
		metrics = runner.NewCloudWatchRunMetrics(
			cloudwatch.NewFromConfig(awsCfg),
			cfg.Observability.MetricNamespace,
			logger,
		)
	}

	billingRunner := runner.NewBillingRunner(runner.Deps{
		Orgs:       orgRepo,
		Rules:      ruleRepo,
		Clients:    clientRepo,
		Dispatches: dispatchRepo,
		Publisher:  queue.NewDispatchPublisher(sqsClient, cfg.AWS.DispatchQueueURL, logger),
		Gate:       saas.NewSubscriptionGate(clientRepo, ruleRepo, logger),
		Metrics:    metrics,
		Logger:     logger,
	}, cfg.Runner)

	handler := runner.NewHandler(billingRunner, logger)

	if cfg.Environment == "local" {
		return runLocal(ctx, handler, logger)
	}

	lambda.Start(handler.Handle)
	return nil
}

// runLocal reads one run input from stdin and prints the report.
func runLocal(ctx context.Context, handler *runner.Handler, logger *slog.Logger) error {
	payload, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("reading stdin: %w", err)
	}

	var input runner.RunInput
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &input); err != nil {
			return fmt.Errorf("parsing run input: %w", err)
		}
	}

	report, err := handler.Handle(ctx, input)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	logger.Info("local run complete", "dispatches_created", report.DispatchesCreated)
	return nil
}
