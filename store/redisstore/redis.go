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

// Package redisstore advances counters with a single INCRBY per range, so no retry loop
// is needed.
package redisstore

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"

	"github.com/streamnative/sequence/common"
	"github.com/streamnative/sequence/common/metrics"
	"github.com/streamnative/sequence/store"
)

// Incrementer is the part of a go-redis client the store relies on. *redis.Client,
// *redis.ClusterClient and redis.UniversalClient all satisfy it.
type Incrementer interface {
	IncrBy(ctx context.Context, key string, value int64) *redis.IntCmd
	Close() error
}

type Options struct {
	Addrs        []string      `mapstructure:"addrs" yaml:"addrs"`
	Username     string        `mapstructure:"username" yaml:"username"`
	Password     string        `mapstructure:"password" yaml:"password"`
	DB           int           `mapstructure:"db" yaml:"db"`
	DialTimeout  time.Duration `mapstructure:"dialTimeout" yaml:"dialTimeout"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout" yaml:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout" yaml:"writeTimeout"`
}

type Store struct {
	client       Incrementer
	safetyMargin int64

	advanceLatency metrics.LatencyHistogram
}

type Option func(*Store) error

func WithSafetyMargin(margin int64) Option {
	return func(s *Store) error {
		if margin <= 0 {
			return errors.Wrapf(common.ErrInvalidConfiguration, "safety margin must be positive, got %d", margin)
		}
		s.safetyMargin = margin
		return nil
	}
}

// Dial connects to a standalone server, or to a cluster when several addresses are
// given.
func Dial(ctx context.Context, o Options, opts ...Option) (*Store, error) {
	if len(o.Addrs) == 0 {
		return nil, errors.Wrap(common.ErrInvalidConfiguration, "at least one redis address is required")
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        o.Addrs,
		Username:     o.Username,
		Password:     o.Password,
		DB:           o.DB,
		DialTimeout:  o.DialTimeout,
		ReadTimeout:  o.ReadTimeout,
		WriteTimeout: o.WriteTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, multierr.Append(common.BackendUnavailable(err), client.Close())
	}

	slog.Debug("Connected to redis", slog.Any("addrs", o.Addrs))
	return New(client, opts...)
}

func New(client Incrementer, opts ...Option) (*Store, error) {
	if client == nil {
		return nil, errors.Wrap(common.ErrInvalidConfiguration, "redis client cannot be nil")
	}
	s := &Store{
		client:       client,
		safetyMargin: store.DefaultSafetyMargin,
		advanceLatency: metrics.NewLatencyHistogram(metrics.StoreAdvanceLatency,
			"Latency of a successful counter advance", map[string]any{"store": "redis"}),
	}
	var errs error
	for _, opt := range opts {
		errs = multierr.Append(errs, opt(s))
	}
	if errs != nil {
		return nil, errs
	}
	return s, nil
}

func Key(name string) string {
	return store.KeyPrefix + name
}

func (s *Store) Advance(ctx context.Context, name string, step int64) (int64, error) {
	if err := store.ValidateAdvance(name, step); err != nil {
		return 0, err
	}

	timer := s.advanceLatency.Timer()
	upper, err := s.client.IncrBy(ctx, Key(name), step).Result()
	if err != nil {
		if isValueError(err) {
			return 0, errors.Wrapf(common.ErrCounterCorruption, "counter %q: %v", name, err)
		}
		return 0, common.BackendUnavailable(err)
	}

	// A missing key starts from zero, so the value before the increment is always known
	if err := store.CheckStoredValue(name, upper-step, s.safetyMargin); err != nil {
		return 0, err
	}

	timer.Done()
	return upper, nil
}

// isValueError reports the replies redis gives when the key does not hold a usable
// integer.
func isValueError(err error) bool {
	var redisErr redis.Error
	if !errors.As(err, &redisErr) {
		return false
	}
	msg := redisErr.Error()
	return strings.Contains(msg, "not an integer") || strings.Contains(msg, "overflow")
}

func (s *Store) Close() error {
	return s.client.Close()
}
