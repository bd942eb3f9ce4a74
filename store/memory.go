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

package store

import (
	"context"
	"sync"
)

type memoryTable struct {
	sync.Mutex
	values map[string]int64
}

// NewMemoryTable returns a Table kept in process memory. Counters do not survive a
// restart, which makes it suitable for tests and single process tools only.
func NewMemoryTable() Table {
	return &memoryTable{
		values: make(map[string]int64),
	}
}

func (m *memoryTable) Load(_ context.Context, name string) (int64, bool, error) {
	m.Lock()
	defer m.Unlock()

	value, found := m.values[name]
	return value, found, nil
}

func (m *memoryTable) Insert(_ context.Context, name string, value int64) error {
	m.Lock()
	defer m.Unlock()

	if _, found := m.values[name]; !found {
		m.values[name] = value
	}
	return nil
}

func (m *memoryTable) CompareAndSet(_ context.Context, name string, oldValue, newValue int64) (bool, error) {
	m.Lock()
	defer m.Unlock()

	if current, found := m.values[name]; !found || current != oldValue {
		return false, nil
	}
	m.values[name] = newValue
	return true, nil
}

func (*memoryTable) Close() error {
	return nil
}
