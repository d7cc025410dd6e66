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

	"github.com/datazip-inc/apisync/utils"
)

// Catalog lists the streams requested for a sync
type Catalog struct {
	Streams []*ConfiguredStream `json:"streams" validate:"required,min=1,dive"`
}

// Input/Processed object for Stream
type ConfiguredStream struct {
	Name     string   `json:"name" validate:"required"`
	SyncMode SyncMode `json:"sync_mode" validate:"required,oneof=full_refresh incremental"`

	// Column that's being used as cursor; MUST NOT BE mutated
	//
	// Empty cursor field falls back to the cursor defined on the stream
	CursorField string `json:"cursor_field,omitempty"`

	// discover output only
	SupportedSyncModes *Set[SyncMode] `json:"supported_sync_modes,omitempty"`
	ParentStream       string         `json:"parent_stream,omitempty"`
}

func (s *ConfiguredStream) ID() string {
	return s.Name
}

func (s *ConfiguredStream) GetSyncMode() SyncMode {
	return s.SyncMode
}

func (s *ConfiguredStream) Cursor() string {
	return s.CursorField
}

func (c *Catalog) Validate() error {
	if err := utils.Validate(c); err != nil {
		return err
	}

	seen := NewSet[string]()
	for _, stream := range c.Streams {
		if seen.Exists(stream.Name) {
			return fmt.Errorf("stream[%s] configured more than once", stream.Name)
		}
		seen.Insert(stream.Name)
	}

	return nil
}

func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.Streams))
	for _, stream := range c.Streams {
		names = append(names, stream.Name)
	}
	return names
}

// Select keeps only the named streams; an empty selection keeps everything
func (c *Catalog) Select(names ...string) *Catalog {
	if len(names) == 0 {
		return c
	}
	selected := NewSet(names...)
	filtered := &Catalog{}
	for _, stream := range c.Streams {
		if selected.Exists(stream.Name) {
			filtered.Streams = append(filtered.Streams, stream)
		}
	}
	return filtered
}
