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
	"time"
)

// Record is one extracted item of a stream
type Record struct {
	Stream      string         `json:"stream"`
	Data        map[string]any `json:"data"`
	CursorValue any            `json:"cursor_value,omitempty"`
	IsDeletion  bool           `json:"is_deletion,omitempty"`
}

func NewRecord(stream string, data map[string]any) Record {
	return Record{Stream: stream, Data: data}
}

// Checkpoint maps a stream's cursor field to the maximum cursor value delivered
type Checkpoint map[string]any

func (c Checkpoint) Value(field string) any {
	if c == nil {
		return nil
	}
	return c[field]
}

// Message is a dto for output row representation
type Message struct {
	Type             MessageType      `json:"type"`
	Log              *Log             `json:"log,omitempty"`
	ConnectionStatus *StatusRow       `json:"connectionStatus,omitempty"`
	Status           *StreamStatusRow `json:"status,omitempty"`
	Record           *RecordRow       `json:"record,omitempty"`
	State            *StateRow        `json:"state,omitempty"`
	Error            *ErrorRow        `json:"error,omitempty"`
	Catalog          *Catalog         `json:"catalog,omitempty"`
	Spec             map[string]any   `json:"spec,omitempty"`
}

// Log is a dto for logs serialization
type Log struct {
	Level   LogLevel `json:"level,omitempty"`
	Message string   `json:"message,omitempty"`
}

// StatusRow is a dto for connection check result serialization
type StatusRow struct {
	Status  ConnectionStatus `json:"status,omitempty"`
	Message string           `json:"message,omitempty"`
}

type StreamStatusRow struct {
	Stream string       `json:"stream"`
	Status StreamStatus `json:"status"`
}

type RecordRow struct {
	Stream      string         `json:"stream"`
	Data        map[string]any `json:"data"`
	CursorValue any            `json:"cursor_value,omitempty"`
	IsDeletion  bool           `json:"is_deletion,omitempty"`
	EmittedAt   int64          `json:"emitted_at"`
}

type StateRow struct {
	Stream     string     `json:"stream"`
	Checkpoint Checkpoint `json:"checkpoint"`
}

type ErrorRow struct {
	Stream    string    `json:"stream,omitempty"`
	Kind      ErrorKind `json:"kind"`
	Retriable bool      `json:"retriable"`
	Message   string    `json:"message"`
}

func NewStatusMessage(stream string, status StreamStatus) Message {
	return Message{
		Type:   StatusMessage,
		Status: &StreamStatusRow{Stream: stream, Status: status},
	}
}

func NewRecordMessage(record Record) Message {
	return Message{
		Type: RecordMessage,
		Record: &RecordRow{
			Stream:      record.Stream,
			Data:        record.Data,
			CursorValue: record.CursorValue,
			IsDeletion:  record.IsDeletion,
			EmittedAt:   time.Now().UnixMilli(),
		},
	}
}

func NewStateMessage(stream string, checkpoint Checkpoint) Message {
	return Message{
		Type:  StateMessage,
		State: &StateRow{Stream: stream, Checkpoint: checkpoint},
	}
}

func NewErrorMessage(err *SyncError) Message {
	msg := ""
	if err.Cause != nil {
		msg = err.Cause.Error()
	}
	return Message{
		Type: ErrorMessage,
		Error: &ErrorRow{
			Stream:    err.Stream,
			Kind:      err.Kind,
			Retriable: err.Retriable,
			Message:   msg,
		},
	}
}

func NewLogMessage(level LogLevel, message string) Message {
	return Message{
		Type: LogMessage,
		Log:  &Log{Level: level, Message: message},
	}
}

// StreamName returns the stream a message belongs to, empty for run level messages
func (m Message) StreamName() string {
	switch {
	case m.Status != nil:
		return m.Status.Stream
	case m.Record != nil:
		return m.Record.Stream
	case m.State != nil:
		return m.State.Stream
	case m.Error != nil:
		return m.Error.Stream
	default:
		return ""
	}
}
