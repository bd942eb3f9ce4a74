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

import "time"

// Clock reads the wall clock in milliseconds since the Unix epoch.
type Clock interface {
	NowMillis() int64
}

type systemClock struct {
}

func SystemClock() Clock {
	return systemClock{}
}

func (systemClock) NowMillis() int64 {
	return time.Now().UnixMilli()
}

// ClockFunc adapts a plain function to the Clock interface.
type ClockFunc func() int64

func (f ClockFunc) NowMillis() int64 {
	return f()
}
