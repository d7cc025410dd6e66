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

	"github.com/datazip-inc/apisync/types"
)

// DependencyResolver yields the partitions of a child stream from the records of its
// parent. The parent is read through its own components in full refresh; its records
// are not emitted here.
type DependencyResolver struct {
	child        *Stream
	parent       *Stream
	parentSource PartitionGenerator
	reader       *pageReader
	window       *streamWindow
}

// Generate emits one partition per parent record, or per batch of parent records,
// for every slice of the child's window
func (d *DependencyResolver) Generate(ctx context.Context, emit func(*Partition) error) error {
	batchSize := d.child.batchSize()
	batch := make([]types.Record, 0, batchSize)
	index := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		parents := batch
		batch = make([]types.Record, 0, batchSize)
		for _, slice := range d.window.partitionSlices() {
			partition := &Partition{Stream: d.child.Name, Slice: slice, Parents: parents, Index: index}
			index++
			if err := emit(partition); err != nil {
				return err
			}
		}
		return nil
	}

	err := d.parentSource.Generate(ctx, func(parentPartition *Partition) error {
		return d.reader.readPages(ctx, d.parent, parentPartition, func(records []types.Record) error {
			for _, record := range records {
				batch = append(batch, record)
				if len(batch) >= batchSize {
					if err := flush(); err != nil {
						return err
					}
				}
			}
			return nil
		})
	})
	if syncErr, ok := types.AsSyncError(err); ok && syncErr.Stream == d.parent.Name {
		return types.NewSyncError(d.child.Name, syncErr.Kind, fmt.Errorf("parent stream[%s]: %w", d.parent.Name, syncErr.Cause))
	}
	if err != nil {
		return err
	}

	return flush()
}

// newPartitionGenerator builds the generator of a stream, recursing through its ancestors
func (s *ConcurrentSource) newPartitionGenerator(stream *Stream, window *streamWindow, reader *pageReader) (PartitionGenerator, error) {
	if stream.Parent == "" {
		return &slicePartitions{stream: stream.Name, window: window}, nil
	}

	parent, err := s.Stream(stream.Parent)
	if err != nil {
		return nil, err
	}
	parentSource, err := s.newPartitionGenerator(parent, nil, reader)
	if err != nil {
		return nil, err
	}

	return &DependencyResolver{
		child:        stream,
		parent:       parent,
		parentSource: parentSource,
		reader:       reader,
		window:       window,
	}, nil
}
