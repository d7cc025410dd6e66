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
	"strings"
	"sync"
	"time"

	"github.com/datazip-inc/apisync/constants"
	"github.com/datazip-inc/apisync/types"
	"github.com/datazip-inc/apisync/utils"
	"github.com/datazip-inc/apisync/utils/typeutils"
)

// Slice is an inclusive cursor window [Start, End]
type Slice struct {
	Start any
	End   any
}

func (s *Slice) String() string {
	if s == nil {
		return "[*]"
	}
	return fmt.Sprintf("[%v, %v]", s.Start, s.End)
}

// DatetimeCursor is a time based cursor. The lower bound of a run is the later of the
// start date and the checkpoint plus one Granularity; the upper bound is the run's now.
type DatetimeCursor struct {
	FieldName   string
	ValueFormat string // constants.UnixTimestampFormat, constants.UnixMilliFormat or a Go layout
	StartDate   time.Time
	Granularity time.Duration
	Step        time.Duration // zero reads the window as one slice
}

func (c *DatetimeCursor) Field() string {
	return c.FieldName
}

func (c *DatetimeCursor) granularity() time.Duration {
	if c.Granularity <= 0 {
		return constants.DefaultCursorUnit
	}
	return c.Granularity
}

func (c *DatetimeCursor) Parse(raw any) (any, error) {
	return typeutils.ParseTimestamp(raw, c.ValueFormat)
}

func (c *DatetimeCursor) Bounds(prev any, now time.Time) (*Slice, error) {
	lower := c.StartDate.UTC()
	if prev != nil {
		checkpoint, ok := prev.(time.Time)
		if !ok {
			return nil, fmt.Errorf("%w: checkpoint of type %T", constants.ErrUnsupportedCursor, prev)
		}
		if next := checkpoint.Add(c.granularity()); next.After(lower) {
			lower = next
		}
	}
	return &Slice{Start: lower, End: now.UTC()}, nil
}

func (c *DatetimeCursor) Slices(window *Slice) []*Slice {
	start, _ := window.Start.(time.Time)
	end, _ := window.End.(time.Time)
	if start.After(end) {
		return nil
	}
	if c.Step <= 0 {
		return []*Slice{window}
	}

	slices := []*Slice{}
	for cur := start; !cur.After(end); {
		sliceEnd := cur.Add(c.Step - c.granularity())
		if sliceEnd.After(end) {
			sliceEnd = end
		}
		slices = append(slices, &Slice{Start: cur, End: sliceEnd})
		cur = sliceEnd.Add(c.granularity())
	}
	return slices
}

func (c *DatetimeCursor) Format(value any) any {
	if t, ok := value.(time.Time); ok {
		return typeutils.FormatTimestamp(t, c.ValueFormat)
	}
	return value
}

// lookupField resolves a dotted path inside a record
func lookupField(data map[string]any, field string) (any, bool) {
	if value, found := data[field]; found {
		return value, true
	}
	parts := strings.Split(field, ".")
	var current any = data
	for _, part := range parts {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		if current, ok = obj[part]; !ok {
			return nil, false
		}
	}
	return current, true
}

// cursorTracker follows the maximum cursor value delivered for one stream
type cursorTracker struct {
	mu       sync.Mutex
	strategy CursorStrategy
	field    string
	lower    any
	max      any
	advanced bool
	dropped  int
}

func newCursorTracker(strategy CursorStrategy, field string, prev any, window *Slice) *cursorTracker {
	tracker := &cursorTracker{
		strategy: strategy,
		field:    utils.Coalesce(field, strategy.Field()),
		max:      prev,
	}
	if window != nil {
		tracker.lower = window.Start
	}
	return tracker
}

// admit sets the record's cursor value and reports whether it lies inside the window;
// records below the lower bound were delivered by an earlier run
func (t *cursorTracker) admit(record *types.Record) (bool, error) {
	raw, found := lookupField(record.Data, t.field)
	if !found || raw == nil {
		return true, nil
	}
	value, err := t.strategy.Parse(raw)
	if err != nil {
		return false, fmt.Errorf("failed to parse cursor field[%s]: %w", t.field, err)
	}
	record.CursorValue = t.strategy.Format(value)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lower != nil && typeutils.Compare(value, t.lower) < 0 {
		t.dropped++
		return false, nil
	}
	if t.max == nil || typeutils.Compare(value, t.max) > 0 {
		t.max = value
		t.advanced = true
	}
	return true, nil
}

// checkpoint returns the persisted form of the maximum, nil when nothing was ever seen
func (t *cursorTracker) checkpoint() types.Checkpoint {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.max == nil {
		return nil
	}
	return types.Checkpoint{t.field: t.strategy.Format(t.max)}
}
