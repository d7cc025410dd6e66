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
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/datazip-inc/apisync/constants"
	"github.com/datazip-inc/apisync/utils/logger"
	"github.com/goccy/go-json"
)

type StateType string

const (
	// Per-stream state holding the cursor of each incremental stream
	StreamType StateType = "STREAM"
)

// State is the persisted progress of all streams, handed in and out of a sync run
type State struct {
	*sync.RWMutex `json:"-"`

	Version int            `json:"version"`
	Type    StateType      `json:"type"`
	Streams []*StreamState `json:"streams,omitempty"`
}

type StreamState struct {
	HoldsValue atomic.Bool `json:"-"` // If State holds some value and should not be excluded during unmarshaling then value true

	Stream   string   `json:"stream"`
	SyncMode SyncMode `json:"sync_mode"`
	State    sync.Map `json:"state"`
}

func NewState() *State {
	return &State{
		RWMutex: &sync.RWMutex{},
		Version: constants.LatestStateVersion,
		Type:    StreamType,
		Streams: []*StreamState{},
	}
}

func (s *State) init() {
	if s.RWMutex == nil {
		s.RWMutex = &sync.RWMutex{}
	}
}

func (s *State) isZero() bool {
	return len(s.Streams) == 0
}

func (s *State) find(stream string) *StreamState {
	for _, streamState := range s.Streams {
		if streamState.Stream == stream {
			return streamState
		}
	}
	return nil
}

func (s *State) GetCursor(stream, key string) any {
	if s == nil || key == "" {
		return nil
	}
	s.init()
	s.RLock()
	defer s.RUnlock()

	streamState := s.find(stream)
	if streamState == nil {
		return nil
	}
	val, _ := streamState.State.Load(key)
	return val
}

func (s *State) SetCursor(stream string, mode SyncMode, key string, value any) {
	if s == nil || key == "" {
		return
	}
	s.init()
	s.Lock()
	defer s.Unlock()

	streamState := s.find(stream)
	if streamState == nil {
		streamState = &StreamState{Stream: stream, SyncMode: mode}
		s.Streams = append(s.Streams, streamState)
	}
	streamState.State.Store(key, value)
	streamState.HoldsValue.Store(true)
}

// Checkpoint returns a copy of the stored mapping of a stream
func (s *State) Checkpoint(stream string) Checkpoint {
	if s == nil {
		return nil
	}
	s.init()
	s.RLock()
	defer s.RUnlock()

	streamState := s.find(stream)
	if streamState == nil {
		return nil
	}
	checkpoint := Checkpoint{}
	streamState.State.Range(func(key, value any) bool {
		checkpoint[fmt.Sprint(key)] = value
		return true
	})
	return checkpoint
}

// ResetStreams drops the stored progress of the given streams, all streams when none given
func (s *State) ResetStreams(streams ...string) {
	s.init()
	s.Lock()
	defer s.Unlock()

	if len(streams) == 0 {
		s.Streams = []*StreamState{}
		return
	}
	drop := NewSet(streams...)
	kept := []*StreamState{}
	for _, streamState := range s.Streams {
		if !drop.Exists(streamState.Stream) {
			kept = append(kept, streamState)
		}
	}
	s.Streams = kept
}

// LogWithLock persists the state through the logger
func (s *State) LogWithLock() {
	s.init()
	s.RLock()
	defer s.RUnlock()

	if s.isZero() {
		logger.Info("skipping state logging, no stream progress recorded")
		return
	}
	logger.LogState(s)
}

func (s *StreamState) MarshalJSON() ([]byte, error) {
	state := map[string]any{}
	s.State.Range(func(key, value any) bool {
		state[fmt.Sprint(key)] = value
		return true
	})

	type Alias StreamState
	return json.Marshal(&struct {
		*Alias
		State map[string]any `json:"state"`
	}{
		Alias: (*Alias)(s),
		State: state,
	})
}

func (s *StreamState) UnmarshalJSON(data []byte) error {
	type Alias StreamState
	aux := &struct {
		*Alias
		State map[string]any `json:"state"`
	}{
		Alias: (*Alias)(s),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	for key, value := range aux.State {
		s.State.Store(key, value)
	}
	if len(aux.State) > 0 {
		s.HoldsValue.Store(true)
	}
	return nil
}

func (s *State) UnmarshalJSON(data []byte) error {
	type Alias State
	aux := &struct {
		*Alias
	}{
		Alias: (*Alias)(s),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	s.init()
	if s.Type == "" {
		s.Type = StreamType
	}
	if s.Version > constants.LatestStateVersion {
		return fmt.Errorf("state version %d is newer than the supported version %d", s.Version, constants.LatestStateVersion)
	}

	// drop streams that carry no progress
	kept := []*StreamState{}
	for _, streamState := range s.Streams {
		if streamState.HoldsValue.Load() {
			kept = append(kept, streamState)
		}
	}
	s.Streams = kept
	return nil
}
