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

package abstract

import (
	"context"
	"net/http"
	"time"

	"github.com/datazip-inc/apisync/types"
)

// PageToken is the opaque position of a page; nil addresses the first page
type PageToken any

// PageRequest addresses one page of a partition
type PageRequest struct {
	Stream    string
	Partition *Partition
	Token     PageToken
}

// Response is the raw outcome of a single page request
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Requester performs exactly one network call per Send; retries belong to the RetryPolicy
type Requester interface {
	Send(ctx context.Context, req *PageRequest) (*Response, error)
}

// Paginator derives the next page from the latest response and the request that produced it.
// It must be a pure function; ok=false means the partition is exhausted.
type Paginator interface {
	NextPage(resp *Response, req *PageRequest) (next PageToken, ok bool, err error)
}

// RecordExtractor turns a successful response into records. Stream and CursorValue
// are filled by the engine.
type RecordExtractor interface {
	Extract(resp *Response) ([]types.Record, error)
}

// CursorStrategy owns the semantics of an incremental cursor
type CursorStrategy interface {
	// Field is the record field carrying the cursor
	Field() string
	// Parse converts a raw record or checkpoint value into a comparable cursor value
	Parse(raw any) (any, error)
	// Bounds computes the read window of this run; prev is the parsed checkpoint or nil
	Bounds(prev any, now time.Time) (*Slice, error)
	// Slices splits the window into the slices read as separate partitions
	Slices(window *Slice) []*Slice
	// Format converts a comparable cursor value into its persisted form
	Format(value any) any
}

// AvailabilityStrategy decides whether a stream is readable in this run. A nil error
// means available; a SyncError of kind SkippableAccess skips the stream.
type AvailabilityStrategy interface {
	Check(ctx context.Context, probe func(ctx context.Context) error) error
}

// ProbeAvailability issues the stream's first request and judges its outcome
type ProbeAvailability struct{}

func (ProbeAvailability) Check(ctx context.Context, probe func(ctx context.Context) error) error {
	return probe(ctx)
}

// AlwaysAvailable skips the probe request
type AlwaysAvailable struct{}

func (AlwaysAvailable) Check(_ context.Context, _ func(ctx context.Context) error) error {
	return nil
}

// SinglePage is the paginator of endpoints that return everything at once
type SinglePage struct{}

func (SinglePage) NextPage(_ *Response, _ *PageRequest) (PageToken, bool, error) {
	return nil, false, nil
}

// MessageSink receives the ordered output of a sync run; calls come from a single goroutine
type MessageSink interface {
	Write(ctx context.Context, message types.Message) error
}
