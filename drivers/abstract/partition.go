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
	"errors"
	"fmt"
	"time"

	"github.com/datazip-inc/apisync/types"
	"github.com/mitchellh/hashstructure"
)

// errStopGeneration ends a generator early without failing it
var errStopGeneration = errors.New("stop partition generation")

// Partition is an independently retrievable unit of work: a page sequence over an
// optional cursor slice, scoped to zero or more parent records
type Partition struct {
	Stream  string
	Slice   *Slice
	Parents []types.Record
	Index   int
}

// ID is a stable identifier derived from the partition's content
func (p *Partition) ID() string {
	parents := make([]map[string]any, 0, len(p.Parents))
	for _, parent := range p.Parents {
		parents = append(parents, parent.Data)
	}
	key := struct {
		Stream  string
		Slice   string
		Parents []map[string]any
	}{p.Stream, p.Slice.String(), parents}

	hash, err := hashstructure.Hash(key, nil)
	if err != nil {
		return fmt.Sprintf("%s_%d", p.Stream, p.Index)
	}
	return fmt.Sprintf("%s_%x", p.Stream, hash)
}

// Parent returns the first parent record's data, nil for root streams
func (p *Partition) Parent() map[string]any {
	if p == nil || len(p.Parents) == 0 {
		return nil
	}
	return p.Parents[0].Data
}

// ParentValues collects field from every parent record, e.g. for multi id requests
func (p *Partition) ParentValues(field string) []any {
	values := make([]any, 0, len(p.Parents))
	for _, parent := range p.Parents {
		if value, found := lookupField(parent.Data, field); found {
			values = append(values, value)
		}
	}
	return values
}

func (p *Partition) String() string {
	return fmt.Sprintf("partition[%s #%d %s parents=%d]", p.Stream, p.Index, p.Slice, len(p.Parents))
}

// PartitionGenerator yields the partitions of a stream for one run, in order
type PartitionGenerator interface {
	Generate(ctx context.Context, emit func(*Partition) error) error
}

// slicePartitions yields one partition per cursor slice of a root stream
type slicePartitions struct {
	stream string
	window *streamWindow
}

func (g *slicePartitions) Generate(ctx context.Context, emit func(*Partition) error) error {
	for idx, slice := range g.window.partitionSlices() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := emit(&Partition{Stream: g.stream, Slice: slice, Index: idx}); err != nil {
			return err
		}
	}
	return nil
}

// streamWindow holds the cursor slices of an incremental run; nil reads everything
type streamWindow struct {
	bounds *Slice
	slices []*Slice
}

// partitionSlices returns the slices to generate, a single unbounded slice for full refresh
func (w *streamWindow) partitionSlices() []*Slice {
	if w == nil {
		return []*Slice{nil}
	}
	return w.slices
}

func (w *streamWindow) String() string {
	if w == nil {
		return "full"
	}
	return fmt.Sprintf("%s in %d slices", w.bounds, len(w.slices))
}

// newStreamWindow computes the slices of an incremental stream from its checkpoint
func newStreamWindow(strategy CursorStrategy, prev any, now time.Time) (*streamWindow, error) {
	bounds, err := strategy.Bounds(prev, now)
	if err != nil {
		return nil, err
	}
	return &streamWindow{bounds: bounds, slices: strategy.Slices(bounds)}, nil
}
