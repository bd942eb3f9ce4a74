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
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	conflictInitialInterval = 1 * time.Millisecond
	conflictMaxInterval     = 50 * time.Millisecond
)

// NewConflictBackOff returns the pause policy used between two optimistic attempts that
// lost a race. It never gives up on its own: the caller bounds the number of attempts.
func NewConflictBackOff(ctx context.Context) backoff.BackOff {
	return NewBackOffWithInitialInterval(ctx, conflictInitialInterval, conflictMaxInterval)
}

func NewBackOffWithInitialInterval(ctx context.Context, initial, maxInterval time.Duration) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = maxInterval
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(b, ctx)
}
