package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"revenda/internal/types"
)

type mockCloudWatch struct {
	inputs []*cloudwatch.PutMetricDataInput
	err    error
}

func (m *mockCloudWatch) PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.inputs = append(m.inputs, params)
	if m.err != nil {
		return nil, m.err
	}
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func TestCloudWatchRunMetrics_RecordRun(t *testing.T) {
	cw := &mockCloudWatch{}
	m := NewCloudWatchRunMetrics(cw, "Revenda", nil)

	report := types.RunReport{
		RunID:             "run_1",
		ClientsEvaluated:  120,
		DispatchesCreated: 14,
		SkippedDedup:      3,
		RuleConfigErrors:  1,
	}
	m.RecordRun(context.Background(), report, 2500*time.Millisecond)

	require.Len(t, cw.inputs, 1)
	input := cw.inputs[0]
	assert.Equal(t, "Revenda", aws.ToString(input.Namespace))
	require.Len(t, input.MetricData, 5)

	values := map[string]float64{}
	for _, d := range input.MetricData {
		values[aws.ToString(d.MetricName)] = aws.ToFloat64(d.Value)
	}
	assert.Equal(t, 120.0, values["ClientsEvaluated"])
	assert.Equal(t, 14.0, values["DispatchesCreated"])
	assert.Equal(t, 3.0, values["DispatchesSkippedDedup"])
	assert.Equal(t, 1.0, values["RuleConfigErrors"])
	assert.Equal(t, 2500.0, values["RunDuration"])
}

func TestCloudWatchRunMetrics_PublishFailureIsSwallowed(t *testing.T) {
	cw := &mockCloudWatch{err: errors.New("throttled")}
	m := NewCloudWatchRunMetrics(cw, "Revenda", nil)

	// Must not panic or propagate; metrics are best effort.
	m.RecordRun(context.Background(), types.RunReport{RunID: "run_1"}, time.Second)
	assert.Len(t, cw.inputs, 1)
}
