package runner

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"revenda/internal/types"
)

// CloudWatchClient abstracts the PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// RunMetrics receives the outcome of one billing run.
type RunMetrics interface {
	RecordRun(ctx context.Context, report types.RunReport, duration time.Duration)
}

// Compile-time assertion that CloudWatchRunMetrics implements RunMetrics.
var _ RunMetrics = (*CloudWatchRunMetrics)(nil)

// CloudWatchRunMetrics publishes billing run counters to CloudWatch.
//
// Metrics emitted per run:
//   - ClientsEvaluated, DispatchesCreated, DispatchesSkippedDedup,
//     RuleConfigErrors: Count
//   - RunDuration: Milliseconds
type CloudWatchRunMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewCloudWatchRunMetrics creates run metrics publishing to the given
// namespace.
func NewCloudWatchRunMetrics(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchRunMetrics {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchRunMetrics{client: client, namespace: namespace, logger: logger}
}

// RecordRun emits the run counters in a single PutMetricData call. Metric
// failures are logged and swallowed; telemetry must never fail a run.
func (m *CloudWatchRunMetrics) RecordRun(ctx context.Context, report types.RunReport, duration time.Duration) {
	count := func(name string, value int) cwtypes.MetricDatum {
		return cwtypes.MetricDatum{
			MetricName: aws.String(name),
			Value:      aws.Float64(float64(value)),
			Unit:       cwtypes.StandardUnitCount,
		}
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			count("ClientsEvaluated", report.ClientsEvaluated),
			count("DispatchesCreated", report.DispatchesCreated),
			count("DispatchesSkippedDedup", report.SkippedDedup),
			count("RuleConfigErrors", report.RuleConfigErrors),
			{
				MetricName: aws.String("RunDuration"),
				Value:      aws.Float64(float64(duration.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.ErrorContext(ctx, "failed to publish run metrics",
			slog.String("run_id", report.RunID),
			slog.Any("error", err),
		)
	}
}

// NoopRunMetrics discards metrics, for local runs and tests.
type NoopRunMetrics struct{}

// RecordRun does nothing.
func (NoopRunMetrics) RecordRun(context.Context, types.RunReport, time.Duration) {}
