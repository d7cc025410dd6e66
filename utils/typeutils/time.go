/*
 * Copyright 2025 Olake By Datazip
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package typeutils

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/datazip-inc/apisync/constants"
	"github.com/goccy/go-json"
)

var fallbackLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000000",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

type Time struct {
	time.Time
}

// UnmarshalJSON accepts both quoted timestamps and unix seconds
func (ct *Time) UnmarshalJSON(b []byte) error {
	str := strings.Trim(string(b), "\"")
	parsed, err := ParseTimestamp(str, "")
	if err != nil {
		return err
	}

	*ct = Time{parsed}
	return nil
}

// Compare compares the time instant ct with u. If ct is before u, it returns -1;
// if ct is after u, it returns +1; if they're the same, it returns 0.
func (ct Time) Compare(u Time) int {
	return ct.Time.Compare(u.Time)
}

// ParseTimestamp converts a cursor value into a UTC time. format is either
// constants.UnixTimestampFormat, constants.UnixMilliFormat, a Go layout, or
// empty to guess from the value.
func ParseTimestamp(value any, format string) (time.Time, error) {
	switch val := value.(type) {
	case nil:
		return time.Time{}, fmt.Errorf("%w: nil timestamp", constants.ErrUnsupportedCursor)
	case time.Time:
		return val.UTC(), nil
	case Time:
		return val.UTC(), nil
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %s", constants.ErrUnsupportedCursor, err)
		}
		return fromEpoch(f, format), nil
	case string:
		return parseString(val, format)
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return fromEpoch(float64(rv.Int()), format), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return fromEpoch(float64(rv.Uint()), format), nil
	case reflect.Float32, reflect.Float64:
		return fromEpoch(rv.Float(), format), nil
	}

	return time.Time{}, fmt.Errorf("%w: %T", constants.ErrUnsupportedCursor, value)
}

func parseString(value, format string) (time.Time, error) {
	value = strings.TrimSpace(value)
	switch format {
	case constants.UnixTimestampFormat, constants.UnixMilliFormat:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q is not an epoch", constants.ErrUnsupportedCursor, value)
		}
		return fromEpoch(f, format), nil
	case "":
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return fromEpoch(f, constants.UnixTimestampFormat), nil
		}
		for _, layout := range fallbackLayouts {
			if parsed, err := time.Parse(layout, value); err == nil {
				return parsed.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("%w: failed to parse timestamp %q", constants.ErrUnsupportedCursor, value)
	default:
		parsed, err := time.Parse(format, value)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %s", constants.ErrUnsupportedCursor, err)
		}
		return parsed.UTC(), nil
	}
}

func fromEpoch(value float64, format string) time.Time {
	if format == constants.UnixMilliFormat {
		return time.UnixMilli(int64(value)).UTC()
	}
	sec, frac := math.Modf(value)
	return time.Unix(int64(sec), int64(frac*float64(time.Second))).UTC()
}

// FormatTimestamp renders t the way cursor values of the given format are stored
func FormatTimestamp(t time.Time, format string) any {
	switch format {
	case constants.UnixTimestampFormat:
		return t.Unix()
	case constants.UnixMilliFormat:
		return t.UnixMilli()
	case "":
		return t.UTC().Format(constants.DefaultDatetimeFormat)
	default:
		return t.UTC().Format(format)
	}
}
