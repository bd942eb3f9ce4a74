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

package snowflake

import (
	"strings"

	bw "github.com/bwmarrin/snowflake"
	"github.com/pkg/errors"

	"github.com/streamnative/sequence/common"
)

// Format is a textual rendering of an identifier.
type Format string

const (
	Decimal Format = "decimal"
	Base2   Format = "base2"
	Base32  Format = "base32"
	Base36  Format = "base36"
	Base58  Format = "base58"
	Base64  Format = "base64"
)

var formats = []Format{Decimal, Base2, Base32, Base36, Base58, Base64}

func ParseFormat(s string) (Format, error) {
	for _, f := range formats {
		if strings.EqualFold(s, string(f)) {
			return f, nil
		}
	}
	return "", errors.Wrapf(common.ErrInvalidConfiguration, "unknown id format %q", s)
}

func (f *Format) String() string {
	return string(*f)
}

func (f *Format) Set(s string) error {
	parsed, err := ParseFormat(s)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

func (*Format) Type() string {
	return "format"
}

// Encode renders id in the given format.
func Encode(id int64, format Format) string {
	sf := bw.ParseInt64(id)
	switch format {
	case Base2:
		return sf.Base2()
	case Base32:
		return sf.Base32()
	case Base36:
		return sf.Base36()
	case Base58:
		return sf.Base58()
	case Base64:
		return sf.Base64()
	default:
		return sf.String()
	}
}

// Decode parses text previously produced by Encode with the same format.
func Decode(text string, format Format) (int64, error) {
	var (
		sf  bw.ID
		err error
	)
	switch format {
	case Base2:
		sf, err = bw.ParseBase2(text)
	case Base32:
		sf, err = bw.ParseBase32([]byte(text))
	case Base36:
		sf, err = bw.ParseBase36(text)
	case Base58:
		sf, err = bw.ParseBase58([]byte(text))
	case Base64:
		sf, err = bw.ParseBase64(text)
	default:
		sf, err = bw.ParseString(text)
	}
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s id %q", format, text)
	}
	return sf.Int64(), nil
}
