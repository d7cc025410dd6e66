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

package types

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	TransientNetwork ErrorKind = "transient_network"
	RateLimited      ErrorKind = "rate_limited"
	SkippableAccess  ErrorKind = "skippable_access"
	FatalAuth        ErrorKind = "fatal_auth"
	Timeout          ErrorKind = "timeout"
	// Unclassified failures are handled as FatalAuth
	Unclassified ErrorKind = "unclassified"
)

// Retriable reports whether a failure of this kind may succeed when re-issued
func (k ErrorKind) Retriable() bool {
	return k == TransientNetwork || k == RateLimited
}

// AbortsRun reports whether a failure of this kind terminates the whole run
func (k ErrorKind) AbortsRun() bool {
	return k == FatalAuth || k == Unclassified
}

// SyncError is the classified failure of a stream or of the whole run (Stream empty)
type SyncError struct {
	Stream    string    `json:"stream,omitempty"`
	Kind      ErrorKind `json:"kind"`
	Retriable bool      `json:"retriable"`
	Cause     error     `json:"-"`
}

func NewSyncError(stream string, kind ErrorKind, cause error) *SyncError {
	return &SyncError{
		Stream:    stream,
		Kind:      kind,
		Retriable: kind.Retriable(),
		Cause:     cause,
	}
}

func (e *SyncError) Error() string {
	if e.Stream == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Cause)
	}
	return fmt.Sprintf("stream[%s] %s: %s", e.Stream, e.Kind, e.Cause)
}

func (e *SyncError) Unwrap() error {
	return e.Cause
}

// WithStream returns a copy of the error attributed to the given stream
func (e *SyncError) WithStream(stream string) *SyncError {
	cp := *e
	cp.Stream = stream
	return &cp
}

// AsSyncError extracts a SyncError from an error chain
func AsSyncError(err error) (*SyncError, bool) {
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr, true
	}
	return nil, false
}
