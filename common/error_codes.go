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
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidConfiguration is returned by constructors when an option is out of range.
	ErrInvalidConfiguration = errors.New("sequence: invalid configuration")

	// ErrClockRegression is returned when the wall clock moved backwards relative to the
	// last generated identifier. Only the failing call is affected.
	ErrClockRegression = errors.New("sequence: clock moved backwards")

	// ErrRetriesExhausted is returned when an optimistic advance lost every race within
	// its retry bound.
	ErrRetriesExhausted = errors.New("sequence: retries exhausted")

	// ErrCounterCorruption is returned when a stored counter is negative or too close to
	// overflowing.
	ErrCounterCorruption = errors.New("sequence: counter corrupted")

	// ErrBackendUnavailable marks transport level failures of a storage backend.
	ErrBackendUnavailable = errors.New("sequence: backend unavailable")
)

// BackendUnavailable wraps a driver error so that it matches both ErrBackendUnavailable
// and the original cause. Errors already carrying one of the sentinels above are
// returned unchanged.
func BackendUnavailable(err error) error {
	if err == nil || IsClassified(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
}

// IsClassified reports whether err matches one of the sequence error sentinels.
func IsClassified(err error) bool {
	for _, sentinel := range []error{
		ErrInvalidConfiguration,
		ErrClockRegression,
		ErrRetriesExhausted,
		ErrCounterCorruption,
		ErrBackendUnavailable,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
