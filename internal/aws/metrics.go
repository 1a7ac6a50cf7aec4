package aws

import (
	"context"
	"sort"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"
)

// Metric names emitted by the order and loyalty components.
const (
	MetricReservationDegraded = "ReservationStoreDegraded"
	MetricOutOfStock          = "OrderOutOfStock"
	MetricOrderCreated        = "OrderCreated"
	MetricLoyaltyStepFailed   = "LoyaltyStepFailed"
)

// Metrics publishes counters to CloudWatch. A nil *Metrics or one without a
// client drops every datapoint. Publishing failures are logged, never returned.
type Metrics struct {
	client    CloudWatchAPI
	namespace string
	logger    *zap.Logger
}

func NewMetrics(client CloudWatchAPI, namespace string, logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Metrics{client: client, namespace: namespace, logger: logger}
}

// Count records one occurrence of name with the given dimensions.
func (m *Metrics) Count(ctx context.Context, name string, dims map[string]string) {
	if m == nil || m.client == nil {
		return
	}

	datum := cwtypes.MetricDatum{
		MetricName: sdkaws.String(name),
		Unit:       cwtypes.StandardUnitCount,
		Value:      sdkaws.Float64(1),
	}
	keys := make([]string, 0, len(dims))
	for k := range dims {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		datum.Dimensions = append(datum.Dimensions, cwtypes.Dimension{
			Name:  sdkaws.String(k),
			Value: sdkaws.String(dims[k]),
		})
	}

	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  sdkaws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{datum},
	})
	if err != nil {
		m.logger.Warn("put metric data failed", zap.String("metric", name), zap.Error(err))
	}
}
