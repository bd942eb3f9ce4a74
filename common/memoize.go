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
	"sync"
	"time"
)

type memoize[T any] struct {
	sync.Mutex

	provider   func() T
	clock      Clock
	ttlMillis  int64
	value      T
	loadedAt   int64
	haveLoaded bool
}

// Memoize caches the result of provider for ttl. The returned function is safe for
// concurrent use.
func Memoize[T any](provider func() T, ttl time.Duration) func() T {
	return MemoizeWithClock(provider, ttl, SystemClock())
}

func MemoizeWithClock[T any](provider func() T, ttl time.Duration, clock Clock) func() T {
	m := &memoize[T]{
		provider:  provider,
		clock:     clock,
		ttlMillis: ttl.Milliseconds(),
	}
	return m.get
}

func (m *memoize[T]) get() T {
	m.Lock()
	defer m.Unlock()

	now := m.clock.NowMillis()
	if !m.haveLoaded || now-m.loadedAt >= m.ttlMillis {
		m.value = m.provider()
		m.loadedAt = now
		m.haveLoaded = true
	}
	return m.value
}
