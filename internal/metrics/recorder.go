// Package metrics publishes pipeline outcomes to CloudWatch.
package metrics

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	awsclient "github.com/imrishuroy/go-meal-pipeline/internal/aws"
	"github.com/imrishuroy/go-meal-pipeline/internal/logger"
)

const (
	MetricMealsProcessed    = "MealsProcessed"
	MetricProcessingLatency = "ProcessingLatency"
	DimensionStatus         = "Status"

	defaultNamespace = "MealPipeline"
)

// Recorder writes one datum per call. Publishing failures are logged and never
// surface to the caller. A nil *Recorder is a no-op.
type Recorder struct {
	client    awsclient.CloudWatchAPI
	namespace string
	log       *logger.Logger
}

func NewRecorder(client awsclient.CloudWatchAPI, namespace string, log *logger.Logger) *Recorder {
	if namespace == "" {
		namespace = defaultNamespace
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Recorder{client: client, namespace: namespace, log: log}
}

// MealProcessed counts a finished attempt under its terminal status and
// records how long it took.
func (r *Recorder) MealProcessed(ctx context.Context, status string, elapsed time.Duration) {
	if r == nil || r.client == nil {
		return
	}
	now := time.Now().UTC()
	dims := []cwtypes.Dimension{{Name: awsString(DimensionStatus), Value: awsString(status)}}

	_, err := r.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: awsString(r.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: awsString(MetricMealsProcessed),
				Dimensions: dims,
				Timestamp:  &now,
				Unit:       cwtypes.StandardUnitCount,
				Value:      awsFloat(1),
			},
			{
				MetricName: awsString(MetricProcessingLatency),
				Dimensions: dims,
				Timestamp:  &now,
				Unit:       cwtypes.StandardUnitMilliseconds,
				Value:      awsFloat(float64(elapsed.Milliseconds())),
			},
		},
	})
	if err != nil {
		r.log.Warn("put metric data failed", "status", status, "error", err.Error())
	}
}

func awsString(s string) *string { return &s }

func awsFloat(f float64) *float64 { return &f }
