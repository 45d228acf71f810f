// Package queue provides the SQS producer that carries dispatch
// instructions from the billing runner to the message worker.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"revenda/internal/types"
)

// SQSAPI is the subset of the SQS SDK client used by the publisher.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	SendMessageBatch(ctx context.Context, params *sqs.SendMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageBatchOutput, error)
}

// DispatchPublisher serializes DispatchMessages and sends them to the
// dispatch queue. The runner uses SendBatch for the daily run; the API
// uses Publish for single manual sends.
type DispatchPublisher struct {
	client   SQSAPI
	queueURL string
	logger   *slog.Logger
}

// NewDispatchPublisher creates a publisher targeting the given queue URL.
func NewDispatchPublisher(client SQSAPI, queueURL string, logger *slog.Logger) *DispatchPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &DispatchPublisher{client: client, queueURL: queueURL, logger: logger}
}

// Publish sends a single dispatch message with an optional delay. The
// worker uses the delay for retry backoff; SQS caps it at 900 seconds.
// RetryCount is incremented before serialization so the next consumer sees
// the updated attempt number.
func (p *DispatchPublisher) Publish(ctx context.Context, msg types.DispatchMessage, delay time.Duration) error {
	msg.RetryCount++

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal dispatch message: %w", err)
	}

	delaySec := int32(delay.Seconds())
	if delaySec > 900 {
		delaySec = 900
	}
	if delaySec < 0 {
		delaySec = 0
	}

	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:     aws.String(p.queueURL),
		MessageBody:  aws.String(string(body)),
		DelaySeconds: delaySec,
	})
	if err != nil {
		return fmt.Errorf("queue: failed to send dispatch message to %s: %w", p.queueURL, err)
	}

	p.logger.InfoContext(ctx, "dispatch message published",
		slog.String("dispatch_id", msg.DispatchID),
		slog.String("client_id", msg.ClientID),
		slog.Int("retry_count", msg.RetryCount),
		slog.Int("delay_seconds", int(delaySec)),
		slog.String("trace_id", msg.TraceID),
	)

	return nil
}

// SendBatch chunks messages into groups of 10 (the SQS maximum) and sends
// them via SendMessageBatch. Must respect ctx.Done() so a Lambda timeout
// aborts cleanly between chunks.
func (p *DispatchPublisher) SendBatch(ctx context.Context, messages []types.DispatchMessage) error {
	const maxBatchSize = 10

	for i := 0; i < len(messages); i += maxBatchSize {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		end := i + maxBatchSize
		if end > len(messages) {
			end = len(messages)
		}

		chunk := messages[i:end]
		entries := make([]sqsTypes.SendMessageBatchRequestEntry, len(chunk))
		for j, msg := range chunk {
			body, err := json.Marshal(msg)
			if err != nil {
				return fmt.Errorf("queue: failed to marshal dispatch message: %w", err)
			}
			entries[j] = sqsTypes.SendMessageBatchRequestEntry{
				Id:          aws.String(fmt.Sprintf("msg-%d", i+j)),
				MessageBody: aws.String(string(body)),
			}
		}

		output, err := p.client.SendMessageBatch(ctx, &sqs.SendMessageBatchInput{
			QueueUrl: aws.String(p.queueURL),
			Entries:  entries,
		})
		if err != nil {
			return fmt.Errorf("queue: SendMessageBatch failed: %w", err)
		}

		if len(output.Failed) > 0 {
			return fmt.Errorf("queue: SendMessageBatch had %d failures, first: code=%s, message=%s",
				len(output.Failed),
				aws.ToString(output.Failed[0].Code),
				aws.ToString(output.Failed[0].Message),
			)
		}
	}

	return nil
}
