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
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Compare returns 0 for equal, -1 if a < b else 1 if a > b.
// Numbers of different kinds are compared by value; nil sorts first.
func Compare(a, b any) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}

	if aNum, ok := numeric(a); ok {
		if bNum, ok := numeric(b); ok {
			return compareNumbers(aNum, bNum)
		}
	}

	switch aVal := a.(type) {
	case time.Time:
		if bTime, ok := asTime(b); ok {
			return aVal.Compare(bTime)
		}
	case Time:
		if bTime, ok := asTime(b); ok {
			return aVal.Time.Compare(bTime)
		}
	case bool:
		if bBool, ok := b.(bool); ok {
			// false < true
			if !aVal && bBool {
				return -1
			} else if aVal && !bBool {
				return 1
			}
			return 0
		}
	}

	// For any other types, convert to string for comparison
	return strings.Compare(fmt.Sprintf("%v", a), fmt.Sprintf("%v", b))
}

// number keeps integers exact and falls back to float64 for fractional values
type number struct {
	isFloat bool
	isUint  bool
	i       int64
	u       uint64
	f       float64
}

func numeric(v any) (number, bool) {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return number{i: i}, true
		}
		if f, err := val.Float64(); err == nil {
			return number{isFloat: true, f: f}, true
		}
		return number{}, false
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return number{i: rv.Int()}, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return number{isUint: true, u: rv.Uint()}, true
	case reflect.Float32, reflect.Float64:
		return number{isFloat: true, f: rv.Float()}, true
	default:
		return number{}, false
	}
}

func (n number) float() float64 {
	switch {
	case n.isFloat:
		return n.f
	case n.isUint:
		return float64(n.u)
	default:
		return float64(n.i)
	}
}

func compareNumbers(a, b number) int {
	switch {
	case !a.isFloat && !b.isFloat && !a.isUint && !b.isUint:
		return cmpOrdered(a.i, b.i)
	case a.isUint && b.isUint:
		return cmpOrdered(a.u, b.u)
	case !a.isFloat && !b.isFloat:
		// one signed and one unsigned
		if a.isUint {
			if b.i < 0 {
				return 1
			}
			return cmpOrdered(a.u, uint64(b.i))
		}
		if a.i < 0 {
			return -1
		}
		return cmpOrdered(uint64(a.i), b.u)
	}

	aFloat, bFloat := a.float(), b.float()
	if math.IsNaN(aFloat) || math.IsNaN(bFloat) {
		switch {
		case math.IsNaN(aFloat) && math.IsNaN(bFloat):
			return 0
		case math.IsNaN(aFloat):
			return -1
		default:
			return 1
		}
	}
	if aFloat == bFloat {
		return 0
	}

	const eps = 1e-6
	if !math.IsInf(aFloat, 0) && !math.IsInf(bFloat, 0) && math.Abs(aFloat-bFloat) < eps {
		return 0
	}
	return cmpOrdered(aFloat, bFloat)
}

func cmpOrdered[T int64 | uint64 | float64](a, b T) int {
	if a < b {
		return -1
	} else if a > b {
		return 1
	}
	return 0
}

func asTime(v any) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val, true
	case Time:
		return val.Time, true
	default:
		return time.Time{}, false
	}
}
