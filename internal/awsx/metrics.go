package awsx

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// DrainStats summarizes one dispatcher pass over the retry queue.
type DrainStats struct {
	Fetched   int
	Processed int
	Failed    int
	Exhausted int
}

// Metrics publishes dispatcher counters to CloudWatch.
// A nil *Metrics is valid and drops all emissions, so callers never guard.
type Metrics struct {
	client    CloudWatchAPI
	namespace string
}

// NewMetrics returns a Metrics emitter for the given namespace.
func NewMetrics(client CloudWatchAPI, namespace string) *Metrics {
	return &Metrics{client: client, namespace: namespace}
}

// EmitDrainStats publishes the counters for one drain pass. Zero-value
// counters are still emitted so dashboards show activity gaps.
func (m *Metrics) EmitDrainStats(ctx context.Context, stats DrainStats) error {
	if m == nil || m.client == nil {
		return nil
	}

	now := time.Now().UTC()
	datum := func(name string, value int) cwtypes.MetricDatum {
		v := float64(value)
		return cwtypes.MetricDatum{
			MetricName: awsString(name),
			Timestamp:  &now,
			Value:      &v,
			Unit:       cwtypes.StandardUnitCount,
		}
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace: &m.namespace,
		MetricData: []cwtypes.MetricDatum{
			datum("RowsFetched", stats.Fetched),
			datum("RowsProcessed", stats.Processed),
			datum("RowsFailed", stats.Failed),
			datum("RowsExhausted", stats.Exhausted),
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		return fmt.Errorf("put metric data: %w", err)
	}
	return nil
}
