// Package main is the entry point for the message worker Lambda.
//
// The worker consumes dispatch messages from the SQS queue, renders the
// message template against the current client snapshot, and delivers it
// through the WhatsApp gateway. Each invocation receives a batch of SQS
// records; failures are reported via partial batch responses so SQS
// redelivers only the records that failed.
//
// Local mode (APP_ENV=local) reads a JSON SQS event from stdin instead of
// starting the Lambda runtime.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"revenda/internal/config"
	"revenda/internal/db"
	"revenda/internal/messaging"
	"revenda/internal/types"
)

// Handler adapts the messaging worker to the SQS Lambda batch contract.
type Handler struct {
	worker *messaging.Worker
	logger *slog.Logger
}

// Handle processes one SQS batch. A record whose dispatch message cannot
// be parsed is acked rather than retried; redelivery cannot fix a
// malformed payload.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	var response events.SQSEventResponse

	for _, record := range sqsEvent.Records {
		var msg types.DispatchMessage
		if err := json.Unmarshal([]byte(record.Body), &msg); err != nil {
			h.logger.Error("dropping malformed dispatch message",
				"message_id", record.MessageId,
				"error", err.Error(),
			)
			continue
		}

		if err := h.worker.Process(ctx, msg); err != nil {
			h.logger.Error("dispatch processing failed, leaving for redelivery",
				"message_id", record.MessageId,
				"dispatch_id", msg.DispatchID,
				"error", err.Error(),
			)
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
			)
		}
	}

	return response, nil
}

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
	logger.Info("message worker initializing",
		"environment", cfg.Environment,
		"gateway_url", cfg.Gateway.BaseURL,
	)

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}
	defer pool.Close()

	worker := messaging.NewWorker(
		db.NewDispatchRepo(pool, logger),
		db.NewClientRepo(pool, logger),
		db.NewTemplateRepo(pool, logger),
		messaging.NewWhatsAppGateway(cfg.Gateway),
		nil,
		logger,
	)

	handler := &Handler{worker: worker, logger: logger}

	if cfg.Environment == "local" {
		return runLocal(ctx, handler, logger)
	}

	lambda.Start(handler.Handle)
	return nil
}

// runLocal reads one SQS event from stdin and reports the batch outcome.
func runLocal(ctx context.Context, handler *Handler, logger *slog.Logger) error {
	payload, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("reading stdin: %w", err)
	}

	var sqsEvent events.SQSEvent
	if err := json.Unmarshal(payload, &sqsEvent); err != nil {
		return fmt.Errorf("parsing SQS event: %w", err)
	}

	response, err := handler.Handle(ctx, sqsEvent)
	if err != nil {
		return err
	}

	logger.Info("local batch complete",
		"records", len(sqsEvent.Records),
		"failures", len(response.BatchItemFailures),
	)
	if len(response.BatchItemFailures) > 0 {
		out, _ := json.MarshalIndent(response, "", "  ")
		fmt.Fprintln(os.Stderr, string(out))
	}
	return nil
}
