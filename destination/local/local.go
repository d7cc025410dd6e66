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

package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/datazip-inc/apisync/destination"
	"github.com/datazip-inc/apisync/types"
	"github.com/datazip-inc/apisync/utils"
	"github.com/goccy/go-json"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	Type         = "local"
	messagesFile = "messages.jsonl"
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

type Config struct {
	Path       string `json:"path" validate:"required"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty" validate:"gte=0"`
	MaxBackups int    `json:"max_backups,omitempty" validate:"gte=0"`
}

func (c *Config) Validate() error {
	return utils.Validate(c)
}

// Local writes the records of each stream to <path>/<stream>.jsonl and every other
// message to <path>/messages.jsonl, rotating files by size
type Local struct {
	config   *Config
	streams  map[string]*lumberjack.Logger
	messages *lumberjack.Logger
}

func (l *Local) GetConfigRef() destination.Config {
	if l.config == nil {
		l.config = &Config{}
	}
	return l.config
}

func (l *Local) Type() string {
	return Type
}

func (l *Local) Setup(_ context.Context) error {
	if err := os.MkdirAll(l.config.Path, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %s", err)
	}
	l.streams = make(map[string]*lumberjack.Logger)
	l.messages = l.open(messagesFile)
	return nil
}

func (l *Local) open(name string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   filepath.Join(l.config.Path, name),
		MaxSize:    utils.Ternary(l.config.MaxSizeMB > 0, l.config.MaxSizeMB, 100).(int),
		MaxBackups: l.config.MaxBackups,
	}
}

func (l *Local) Write(_ context.Context, message types.Message) error {
	if message.Record == nil {
		return writeLine(l.messages, message)
	}

	file, found := l.streams[message.Record.Stream]
	if !found {
		file = l.open(unsafeChars.ReplaceAllString(message.Record.Stream, "_") + ".jsonl")
		l.streams[message.Record.Stream] = file
	}
	return writeLine(file, message.Record)
}

func writeLine(file *lumberjack.Logger, value any) error {
	line, err := json.Marshal(value)
	if err != nil {
		return err
	}
	_, err = file.Write(append(line, '\n'))
	return err
}

func (l *Local) Close(_ context.Context) error {
	closers := []func() error{utils.ErrExecFormat("failed to close messages file: %s", l.messages.Close)}
	for stream, file := range l.streams {
		closers = append(closers, utils.ErrExecFormat(fmt.Sprintf("failed to close stream[%s] file: %%s", stream), file.Close))
	}
	return utils.ErrExecSequential(closers...)
}

func init() {
	destination.RegisteredWriters[Type] = func() destination.Writer {
		return &Local{}
	}
}
