// Copyright 2023 StreamNative, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestPrometheusMetrics(t *testing.T) {
	metrics, err := Start("localhost:0")
	require.NoError(t, err)

	c := NewCounter("sequence_test_counter", "A test counter", Dimensionless, LabelsForCounter("orders"))
	c.Inc()
	c.Add(2)

	remaining := int64(7)
	g := NewGauge("sequence_test_gauge", "A test gauge", Dimensionless, LabelsForCounter("orders"),
		func() int64 { return remaining })
	NewLatencyHistogram("sequence_test_latency", "A test latency", nil).Timer().Done()
	NewCountHistogram("sequence_test_attempts", "A test histogram", nil).Record(3)

	url := fmt.Sprintf("http://localhost:%d/metrics", metrics.Port())
	response, err := http.Get(url)
	require.NoError(t, err)

	assert.Equal(t, 200, response.StatusCode)

	body, err := io.ReadAll(response.Body)
	assert.NoError(t, err)
	assert.NoError(t, response.Body.Close())

	// Looks like exposition format
	assert.Equal(t, "# HELP ", string(body[0:7]))
	assert.Contains(t, string(body), "sequence_test_counter")
	assert.Contains(t, string(body), "sequence_test_gauge")

	assert.NoError(t, g.Close())

	err = metrics.Close()
	assert.NoError(t, err)

	response, err = http.Get(url)
	assert.ErrorContains(t, err, "connection refused")
	assert.Nil(t, response)
}

func TestHistogramBuckets(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	m := newMeterProvider(reader).Meter("test")

	attempts, err := m.Int64Histogram(StoreAdvanceAttempts, metric.WithUnit(string(Dimensionless)))
	require.NoError(t, err)
	advance, err := m.Float64Histogram(StoreAdvanceLatency, metric.WithUnit(string(Milliseconds)))
	require.NoError(t, err)
	refill, err := m.Float64Histogram("sequence_test_refill_latency", metric.WithUnit(string(Milliseconds)))
	require.NoError(t, err)
	dispensed, err := m.Int64Counter("sequence_test_dispensed", metric.WithUnit(string(Dimensionless)))
	require.NoError(t, err)

	attempts.Record(ctx, 3)
	advance.Record(ctx, 4.2)
	refill.Record(ctx, 0.3)
	dispensed.Add(ctx, 10)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)
	require.Len(t, rm.ScopeMetrics[0].Metrics, 4, "one stream per instrument")

	bounds := map[string][]float64{}
	for _, data := range rm.ScopeMetrics[0].Metrics {
		switch d := data.Data.(type) {
		case metricdata.Histogram[int64]:
			bounds[data.Name] = d.DataPoints[0].Bounds
		case metricdata.Histogram[float64]:
			bounds[data.Name] = d.DataPoints[0].Bounds
		case metricdata.Sum[int64]:
			assert.EqualValues(t, 10, d.DataPoints[0].Value)
		}
	}

	assert.Equal(t, advanceAttemptBuckets, bounds[StoreAdvanceAttempts])
	assert.Equal(t, advanceLatencyBucketsMillis, bounds[StoreAdvanceLatency])
	assert.Equal(t, latencyBucketsMillis, bounds["sequence_test_refill_latency"])
}
