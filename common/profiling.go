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

package common

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	runtimepprof "runtime/pprof"
	"time"

	"github.com/pkg/errors"
)

// DoWithLabels attaches the labels to the current go-routine pprof context,
// for the duration of the call to f
func DoWithLabels(labels map[string]string, f func()) {
	var l []string
	for k, v := range labels {
		l = append(l, k, v)
	}

	runtimepprof.Do(
		context.Background(),
		runtimepprof.Labels(l...),
		func(_ context.Context) {
			f()
		})
}

type ProfilingServer struct {
	server *http.Server
	addr   net.Addr
}

// StartProfiling serves the pprof endpoints on bindAddress.
func StartProfiling(bindAddress string) (*ProfilingServer, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	listener, err := net.Listen("tcp", bindAddress)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to listen on %s", bindAddress)
	}

	p := &ProfilingServer{
		server: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: time.Second,
		},
		addr: listener.Addr(),
	}

	slog.Info("Starting pprof server", slog.String("address", p.addr.String()))
	slog.Info(fmt.Sprintf("  use `go tool pprof http://%s/debug/pprof/profile` to get a cpu profile", p.addr))

	go DoWithLabels(map[string]string{"sequence": "pprof"}, func() {
		if err := p.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error(
				"Unable to serve pprof endpoints",
				slog.Any("error", err),
			)
			os.Exit(1)
		}
	})
	return p, nil
}

func (p *ProfilingServer) Addr() net.Addr {
	return p.addr
}

var _ io.Closer = (*ProfilingServer)(nil)

func (p *ProfilingServer) Close() error {
	return p.server.Close()
}
