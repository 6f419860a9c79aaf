package core

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"storepulse/internal/types"
)

// Metric and dimension names published to CloudWatch.
const (
	metricDeliveryAttempt = "AlertDeliveryAttempt"
	metricDeliveryLatency = "AlertDeliveryLatency"
	metricIndexProcessed  = "IndexProductsProcessed"
	metricIndexFailed     = "IndexProductsFailed"

	dimChannel = "Channel"
	dimResult  = "Result"
	dimTenant  = "Tenant"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchAlertMetrics implements AlertMetrics by emitting metrics to AWS
// CloudWatch.
//
// Metrics emitted:
//   - AlertDeliveryAttempt: Dims {Channel, Result} -- on every delivery outcome
//   - AlertDeliveryLatency: Dims {Channel} -- time taken for delivery attempt
//   - IndexProductsProcessed/Failed: Dims {Tenant} -- indexer progress
//
// Compile-time assertion that CloudWatchAlertMetrics implements AlertMetrics.
var _ AlertMetrics = (*CloudWatchAlertMetrics)(nil)

type CloudWatchAlertMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    types.Logger
}

// NewCloudWatchAlertMetrics creates an AlertMetrics implementation that
// publishes to the specified CloudWatch namespace.
func NewCloudWatchAlertMetrics(client CloudWatchClient, namespace string, logger types.Logger) *CloudWatchAlertMetrics {
	return &CloudWatchAlertMetrics{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// RecordDelivery emits an AlertDeliveryAttempt metric with Channel and Result
// dimensions.
func (m *CloudWatchAlertMetrics) RecordDelivery(ctx context.Context, channel types.ChannelType, result MetricResult) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(metricDeliveryAttempt),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{
					{
						Name:  aws.String(dimChannel),
						Value: aws.String(string(channel)),
					},
					{
						Name:  aws.String(dimResult),
						Value: aws.String(string(result)),
					},
				},
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record delivery metric",
			"error", err.Error(),
			"channel", string(channel),
			"result", string(result),
		)
	}
}

// RecordLatency emits a delivery latency metric with the Channel dimension.
// Duration is recorded in milliseconds for CloudWatch precision.
func (m *CloudWatchAlertMetrics) RecordLatency(ctx context.Context, channel types.ChannelType, duration time.Duration) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(metricDeliveryLatency),
				Value:      aws.Float64(float64(duration.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
				Dimensions: []cwtypes.Dimension{
					{
						Name:  aws.String(dimChannel),
						Value: aws.String(string(channel)),
					},
				},
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record latency metric",
			"error", err.Error(),
			"channel", string(channel),
			"duration_ms", duration.Milliseconds(),
		)
	}
}

// RecordIndexProgress emits per-tenant counters for catalog index runs.
func (m *CloudWatchAlertMetrics) RecordIndexProgress(ctx context.Context, tenant string, processed, failed int) {
	tenantDim := []cwtypes.Dimension{
		{
			Name:  aws.String(dimTenant),
			Value: aws.String(tenant),
		},
	}
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(metricIndexProcessed),
				Value:      aws.Float64(float64(processed)),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: tenantDim,
			},
			{
				MetricName: aws.String(metricIndexFailed),
				Value:      aws.Float64(float64(failed)),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: tenantDim,
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record index progress metric",
			"error", err.Error(),
			"tenant", tenant,
		)
	}
}

// NoopAlertMetrics discards all metrics. Used in local development and tests.
type NoopAlertMetrics struct{}

func (NoopAlertMetrics) RecordDelivery(context.Context, types.ChannelType, MetricResult) {}
func (NoopAlertMetrics) RecordLatency(context.Context, types.ChannelType, time.Duration) {}
func (NoopAlertMetrics) RecordIndexProgress(context.Context, string, int, int)           {}

var _ AlertMetrics = NoopAlertMetrics{}
