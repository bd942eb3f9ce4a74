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

// Package snowflake generates 64-bit identifiers that need no coordination between nodes.
//
// An identifier packs, from the most significant bit:
//
//	1 bit   unused sign bit, always 0
//	41 bits milliseconds since the generator epoch
//	5 bits  data center id
//	5 bits  worker id
//	12 bits sequence within the millisecond
//
// Identifiers produced by one Generator are strictly increasing as long as the wall
// clock does not move backwards. A backwards clock is reported with
// common.ErrClockRegression and is never corrected.
package snowflake
