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
	"fmt"

	"github.com/datazip-inc/apisync/telemetry"
	"github.com/datazip-inc/apisync/types"
)

// pageReader fetches the pages of partitions through the worker pool and the
// stream's retry policy
type pageReader struct {
	pool     *workerPool
	policies map[string]*RetryPolicy
	fallback *RetryPolicy
	metrics  *telemetry.Metrics
}

func newPageReader(pool *workerPool, fallback *RetryPolicy, metrics *telemetry.Metrics) *pageReader {
	return &pageReader{
		pool:     pool,
		policies: make(map[string]*RetryPolicy),
		fallback: fallback,
		metrics:  metrics,
	}
}

// register binds the stream's retry policy, observed by the run's metrics
func (r *pageReader) register(stream *Stream) {
	base := stream.Retry
	if base == nil {
		base = r.fallback
	}
	policy := *base
	observe := base.OnAttempt
	policy.OnAttempt = func(name string, attempt int, outcome Outcome) {
		r.metrics.Attempt(name, string(outcome))
		if observe != nil {
			observe(name, attempt, outcome)
		}
	}
	r.policies[stream.Name] = &policy
}

// fetch performs one page request, retries included, holding a pool slot
func (r *pageReader) fetch(ctx context.Context, stream *Stream, req *PageRequest) (*Response, error) {
	release, err := r.pool.Acquire(ctx, stream.Category)
	if err != nil {
		return nil, types.NewSyncError(stream.Name, types.Timeout, context.Cause(ctx))
	}
	defer release()

	policy := r.policies[stream.Name]
	if policy == nil {
		policy = r.fallback
	}
	return policy.Execute(ctx, stream.Name, func(ctx context.Context) (*Response, error) {
		return stream.Requester.Send(ctx, req)
	})
}

// readPages walks every page of the partition; onPage only ever sees fully
// extracted pages
func (r *pageReader) readPages(ctx context.Context, stream *Stream, partition *Partition, onPage func(records []types.Record) error) error {
	r.metrics.PartitionStarted()
	defer r.metrics.PartitionDone()

	var token PageToken
	for page := 1; ; page++ {
		req := &PageRequest{Stream: stream.Name, Partition: partition, Token: token}
		resp, err := r.fetch(ctx, stream, req)
		if err != nil {
			return err
		}

		records, err := stream.Extractor.Extract(resp)
		if err != nil {
			return types.NewSyncError(stream.Name, types.Unclassified, fmt.Errorf("failed to extract records of page %d: %s", page, err))
		}
		for idx := range records {
			records[idx].Stream = stream.Name
		}

		next, more, err := stream.paginator().NextPage(resp, req)
		if err != nil {
			return types.NewSyncError(stream.Name, types.Unclassified, fmt.Errorf("failed to paginate after page %d: %s", page, err))
		}

		if err := onPage(records); err != nil {
			return err
		}
		if !more {
			return nil
		}
		token = next
	}
}

// probe requests the first page of the partition and discards its records
func (r *pageReader) probe(ctx context.Context, stream *Stream, partition *Partition) error {
	_, err := r.fetch(ctx, stream, &PageRequest{Stream: stream.Name, Partition: partition})
	return err
}
