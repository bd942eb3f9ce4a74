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
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
)

// Instruments that get their own bucket layout instead of the one of their unit.
const (
	StoreAdvanceLatency  = "sequence_store_advance_latency"
	StoreAdvanceAttempts = "sequence_store_advance_attempts"
)

var (
	// A store advance is one or more network round trips, never sub-millisecond.
	advanceLatencyBucketsMillis = []float64{0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1_000, 2_500, 5_000}

	// Most advances win on the first attempt. The tail shows contention on a counter.
	advanceAttemptBuckets = []float64{1, 2, 3, 4, 6, 8, 12, 16, 25, 50, 100}
)

func init() {
	exporter, err := prometheus.New()
	if err != nil {
		slog.Error(
			"Failed to initialize Prometheus metrics exporter",
			slog.Any("error", err),
		)
		os.Exit(1)
	}

	meter = newMeterProvider(exporter).Meter("sequence")
}

func newMeterProvider(reader metric.Reader) *metric.MeterProvider {
	return metric.NewMeterProvider(
		metric.WithReader(reader),
		metric.WithView(histogramBuckets),
	)
}

// histogramBuckets picks the bucket layout of a histogram by instrument name first and
// by unit otherwise. Every other instrument keeps the default stream.
func histogramBuckets(i metric.Instrument) (metric.Stream, bool) {
	if i.Kind != metric.InstrumentKindHistogram {
		return metric.Stream{}, false
	}

	var boundaries []float64
	switch {
	case i.Name == StoreAdvanceLatency:
		boundaries = advanceLatencyBucketsMillis
	case i.Name == StoreAdvanceAttempts:
		boundaries = advanceAttemptBuckets
	case i.Unit == string(Milliseconds):
		boundaries = latencyBucketsMillis
	case i.Unit == string(Dimensionless):
		boundaries = sizeBucketsCount
	default:
		return metric.Stream{}, false
	}

	return metric.Stream{
		Name:        i.Name,
		Description: i.Description,
		Unit:        i.Unit,
		Aggregation: metric.AggregationExplicitBucketHistogram{Boundaries: boundaries},
	}, true
}

// Server exposes the registered instruments in the Prometheus text format.
type Server struct {
	server   *http.Server
	listener net.Listener
}

func Start(bindAddress string) (*Server, error) {
	listener, err := net.Listen("tcp", bindAddress)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to listen on %s", bindAddress)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	s := &Server{
		server: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: time.Second,
		},
		listener: listener,
	}

	slog.Info(fmt.Sprintf("Serving Prometheus metrics at http://%s/metrics", listener.Addr()))

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error(
				"Failed to serve metrics",
				slog.Any("error", err),
			)
		}
	}()

	return s, nil
}

func (s *Server) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

func (s *Server) Close() error {
	return s.server.Close()
}
