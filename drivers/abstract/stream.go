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
	"fmt"

	"github.com/datazip-inc/apisync/types"
)

// StreamKind tags how the orchestrator schedules a stream's partitions
type StreamKind string

const (
	// partitions run as independent pool tasks
	ConcurrentStream StreamKind = "concurrent"
	// partitions run one after another in generation order, after all concurrent streams
	LegacyStream StreamKind = "legacy"
)

// Stream is the immutable definition of one logical collection of an API
type Stream struct {
	Name     string
	Kind     StreamKind
	Category string

	// Parent names the stream whose records address this stream's requests
	Parent string
	// ParentBatchSize groups parent records per partition for multi id endpoints
	ParentBatchSize int

	Requester    Requester
	Paginator    Paginator
	Extractor    RecordExtractor
	Cursor       CursorStrategy
	Availability AvailabilityStrategy
	Retry        *RetryPolicy
}

func (s *Stream) SupportedSyncModes() *types.Set[types.SyncMode] {
	modes := types.NewSet(types.FULLREFRESH)
	if s.Cursor != nil {
		modes.Insert(types.INCREMENTAL)
	}
	return modes
}

func (s *Stream) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("stream name is required")
	}
	if s.Requester == nil {
		return fmt.Errorf("stream[%s]: requester is required", s.Name)
	}
	if s.Extractor == nil {
		return fmt.Errorf("stream[%s]: record extractor is required", s.Name)
	}
	switch s.Kind {
	case "", ConcurrentStream, LegacyStream:
	default:
		return fmt.Errorf("stream[%s]: invalid kind[%s]", s.Name, s.Kind)
	}
	if s.Parent == s.Name {
		return fmt.Errorf("stream[%s]: stream cannot be its own parent", s.Name)
	}
	if s.ParentBatchSize < 0 {
		return fmt.Errorf("stream[%s]: parent batch size must not be negative", s.Name)
	}
	return nil
}

func (s *Stream) kind() StreamKind {
	if s.Kind == "" {
		return ConcurrentStream
	}
	return s.Kind
}

func (s *Stream) paginator() Paginator {
	if s.Paginator == nil {
		return SinglePage{}
	}
	return s.Paginator
}

func (s *Stream) availability() AvailabilityStrategy {
	if s.Availability == nil {
		return ProbeAvailability{}
	}
	return s.Availability
}

func (s *Stream) batchSize() int {
	if s.ParentBatchSize <= 0 {
		return 1
	}
	return s.ParentBatchSize
}

// Configured describes the stream the way discover reports it
func (s *Stream) Configured() *types.ConfiguredStream {
	configured := &types.ConfiguredStream{
		Name:               s.Name,
		SyncMode:           types.FULLREFRESH,
		SupportedSyncModes: s.SupportedSyncModes(),
		ParentStream:       s.Parent,
	}
	if s.Cursor != nil {
		configured.SyncMode = types.INCREMENTAL
		configured.CursorField = s.Cursor.Field()
	}
	return configured
}
