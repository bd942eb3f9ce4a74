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

package lease

import (
	"fmt"
	"sync/atomic"
)

// Range is one leased interval [Low, High]. Values are claimed by moving a shared cursor
// forward, so every value is handed out at most once. An exhausted Range is never
// reused: the Cache installs a new one instead.
type Range struct {
	Low  int64
	High int64

	cursor    atomic.Int64
	exhausted atomic.Bool
}

func newRange(low, high int64) *Range {
	r := &Range{Low: low, High: high}
	r.cursor.Store(low)
	return r
}

// claim takes the next value. It reports false, and marks the range exhausted, once
// the cursor has moved past High.
func (r *Range) claim() (int64, bool) {
	value := r.cursor.Add(1) - 1
	if value > r.High {
		r.exhausted.Store(true)
		return 0, false
	}
	return value, true
}

func (r *Range) Exhausted() bool {
	return r.exhausted.Load()
}

// Remaining is the number of values not yet claimed.
func (r *Range) Remaining() int64 {
	return max(r.High-r.cursor.Load()+1, 0)
}

func (r *Range) String() string {
	return fmt.Sprintf("[%d, %d]", r.Low, r.High)
}

// Snapshot is a point in time view of the active range.
type Snapshot struct {
	Low       int64
	High      int64
	Next      int64
	Exhausted bool
}
