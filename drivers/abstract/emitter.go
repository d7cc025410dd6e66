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
	"slices"
	"sync/atomic"

	"github.com/datazip-inc/apisync/types"
)

var statusOrder = []types.StreamStatus{
	types.StreamStarted,
	types.StreamRunning,
	types.StreamComplete,
	types.StreamIncomplete,
}

// streamEmitter publishes one stream's messages and enforces its status order.
// Status, checkpoint and error calls come from the stream's own goroutine; records
// may come from any partition task.
type streamEmitter struct {
	stream   string
	run      *syncRun
	last     int
	emitted  []types.StreamStatus
	records  atomic.Int64
	deletes  atomic.Int64
	terminal bool
}

func newStreamEmitter(run *syncRun, stream string) *streamEmitter {
	return &streamEmitter{stream: stream, run: run, last: -1}
}

func (e *streamEmitter) status(status types.StreamStatus) error {
	idx := slices.Index(statusOrder, status)
	if idx < 0 || idx <= e.last || e.terminal {
		return fmt.Errorf("stream[%s]: invalid status transition to %s after %v", e.stream, status, e.emitted)
	}
	e.last = idx
	e.terminal = status.Terminal()
	e.emitted = append(e.emitted, status)
	e.run.emit(types.NewStatusMessage(e.stream, status))
	return nil
}

func (e *streamEmitter) record(record types.Record) {
	e.records.Add(1)
	if record.IsDeletion {
		e.deletes.Add(1)
	}
	e.run.metrics.RecordEmitted(e.stream)
	e.run.emit(types.NewRecordMessage(record))
}

func (e *streamEmitter) checkpoint(checkpoint types.Checkpoint) {
	e.run.emit(types.NewStateMessage(e.stream, checkpoint))
}

func (e *streamEmitter) error(err *types.SyncError) {
	e.run.emit(types.NewErrorMessage(err))
}

func (e *streamEmitter) log(level types.LogLevel, format string, args ...any) {
	e.run.emit(types.NewLogMessage(level, fmt.Sprintf(format, args...)))
}
