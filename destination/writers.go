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

package destination

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/datazip-inc/apisync/types"
	"github.com/datazip-inc/apisync/utils"
	"github.com/datazip-inc/apisync/utils/logger"
)

type NewFunc func() Writer

// WriterConfig selects a registered writer and carries its own config
type WriterConfig struct {
	Type         string `json:"type" validate:"required"`
	WriterConfig any    `json:"writer,omitempty"`
}

var RegisteredWriters = map[string]NewFunc{}

// WriterPool is the message sink of a sync run backed by one registered writer
type WriterPool struct {
	writer   Writer
	records  atomic.Int64
	states   atomic.Int64
	errors   atomic.Int64
	messages atomic.Int64
}

// NewWriter initializes the writer registered for config.Type
func NewWriter(ctx context.Context, config *WriterConfig) (*WriterPool, error) {
	newfunc, found := RegisteredWriters[config.Type]
	if !found {
		return nil, fmt.Errorf("invalid destination type has been passed [%s]", config.Type)
	}

	writer := newfunc()
	if config.WriterConfig != nil {
		if err := utils.Unmarshal(config.WriterConfig, writer.GetConfigRef()); err != nil {
			return nil, err
		}
	}
	if err := writer.GetConfigRef().Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate %s writer config: %s", config.Type, err)
	}
	if err := writer.Setup(ctx); err != nil {
		return nil, fmt.Errorf("failed to setup %s writer: %s", config.Type, err)
	}

	return &WriterPool{writer: writer}, nil
}

func (w *WriterPool) Write(ctx context.Context, message types.Message) error {
	w.messages.Add(1)
	switch message.Type {
	case types.RecordMessage:
		w.records.Add(1)
	case types.StateMessage:
		w.states.Add(1)
	case types.ErrorMessage:
		w.errors.Add(1)
	}
	if err := w.writer.Write(ctx, message); err != nil {
		return fmt.Errorf("failed to write %s message: %s", message.Type, err)
	}
	return nil
}

// SyncedRecords returns the records written so far
func (w *WriterPool) SyncedRecords() int64 {
	return w.records.Load()
}

func (w *WriterPool) Close(ctx context.Context) error {
	logger.Infof("%s writer closing after %d messages: %d records, %d checkpoints, %d errors",
		w.writer.Type(), w.messages.Load(), w.records.Load(), w.states.Load(), w.errors.Load())
	return w.writer.Close(ctx)
}
