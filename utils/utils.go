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

package utils

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/oklog/ulid"
	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"
)

var (
	ulidMutex   = sync.Mutex{}
	entropy     = ulid.Monotonic(rand.Reader, 0)
	dumpFileExt = map[string]bool{".json": true, ".yaml": true, ".yml": true}
)

// Ternary returns a when cond holds, otherwise b
func Ternary(cond bool, a, b any) any {
	if cond {
		return a
	}
	return b
}

// ArrayContains returns the first element matching the predicate
func ArrayContains[T any](set []T, match func(elem T) bool) (int, bool) {
	for idx, elem := range set {
		if match(elem) {
			return idx, true
		}
	}

	return -1, false
}

// ULID generates a monotonic, time ordered unique identifier
func ULID() string {
	ulidMutex.Lock()
	defer ulidMutex.Unlock()

	t := time.Now()
	id, err := ulid.New(ulid.Timestamp(t), entropy)
	if err != nil {
		// monotonic entropy overflow within the same millisecond
		entropy = ulid.Monotonic(rand.Reader, 0)
		id = ulid.MustNew(ulid.Timestamp(t), entropy)
	}

	return strings.ToLower(id.String())
}

// Unmarshal decodes JSON or YAML into dest; values that are neither bytes nor
// strings are re-encoded first, e.g. nested configs already parsed into maps
func Unmarshal(from any, dest any) error {
	var data []byte
	switch value := from.(type) {
	case []byte:
		data = value
	case string:
		data = []byte(value)
	default:
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to marshal: %s", err)
		}
		data = raw
	}

	if err := yaml.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to unmarshal: %s", err)
	}
	return nil
}

// UnmarshalFile reads a JSON or YAML file into dest, validating it when asked to
func UnmarshalFile(file string, dest any, validate bool) error {
	if _, err := os.Stat(file); err != nil {
		return fmt.Errorf("file not found: %s", err)
	}
	if ext := strings.ToLower(filepath.Ext(file)); !dumpFileExt[ext] {
		return fmt.Errorf("unsupported file extension[%s] for %s", ext, file)
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("failed to read file[%s]: %s", file, err)
	}

	if err := Unmarshal(data, dest); err != nil {
		return fmt.Errorf("file[%s]: %s", file, err)
	}

	if validate {
		if validator, ok := dest.(interface{ Validate() error }); ok {
			return validator.Validate()
		}
		return Validate(dest)
	}

	return nil
}

// IsValidSubcommand checks if the passed subcommand is supported by the parent command
func IsValidSubcommand(available []*cobra.Command, sub string) bool {
	_, found := ArrayContains(available, func(cmd *cobra.Command) bool {
		return cmd.Name() == sub
	})
	return found
}

// Coalesce returns the first non zero value
func Coalesce[T comparable](values ...T) T {
	var zero T
	for _, value := range values {
		if value != zero {
			return value
		}
	}
	return zero
}
