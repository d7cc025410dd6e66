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

package constants

import (
	"errors"
	"time"
)

const (
	DefaultThreadCount    = 10
	DefaultMaxAttempts    = 5
	DefaultInitialBackoff = 1 * time.Second
	DefaultMaxBackoff     = 60 * time.Second
	DefaultBackoffJitter  = 0.5
	DefaultBackoffFactor  = 2.0
	DefaultMessageBuffer  = 1000
	DefaultRequestsPerSec = 25
	DefaultHTTPTimeout    = 60 * time.Second
	RetryAfterHeader      = "Retry-After"
	MaxRetryAfter         = 1 * time.Hour
	DefaultCursorUnit     = time.Second
	UnixTimestampFormat   = "unix"
	UnixMilliFormat       = "unix_ms"
	DefaultDatetimeFormat = time.RFC3339
	DeletionField         = "is_deleted"
	ConnectorName         = "apisync"
)

// viper keys
const (
	ConfigFolder = "CONFIG_FOLDER"
	StatePath    = "STATE_PATH"
	LogLevel     = "LOG_LEVEL"
	NoSave       = "NO_SAVE"
)

var (
	ErrStreamNotFound    = errors.New("stream not found")
	ErrRunAborted        = errors.New("sync run aborted")
	ErrRetriesExhausted  = errors.New("maximum retry attempts exceeded")
	ErrIncompleteStreams = errors.New("one or more streams did not complete")
	ErrDependencyCycle   = errors.New("stream dependency cycle detected")
	ErrDuplicateStream   = errors.New("duplicate stream name")
	ErrUnsupportedCursor = errors.New("unsupported cursor value")
	ErrSinkClosed        = errors.New("message sink closed")
	ErrNoStreamsSelected = errors.New("no valid streams found in catalog")
)
