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

package stdout

import (
	"bufio"
	"context"
	"io"
	"os"

	"github.com/datazip-inc/apisync/destination"
	"github.com/datazip-inc/apisync/types"
	"github.com/goccy/go-json"
)

const Type = "stdout"

type Config struct {
	Pretty bool `json:"pretty,omitempty"`
}

func (c *Config) Validate() error {
	return nil
}

// Stdout writes every message as one JSON line; non record messages are flushed at once
type Stdout struct {
	config  *Config
	out     io.Writer
	buffer  *bufio.Writer
	encoder *json.Encoder
}

// New returns a writer for out, os.Stdout when nil
func New(out io.Writer) *Stdout {
	return &Stdout{out: out}
}

func (s *Stdout) GetConfigRef() destination.Config {
	if s.config == nil {
		s.config = &Config{}
	}
	return s.config
}

func (s *Stdout) Type() string {
	return Type
}

func (s *Stdout) Setup(_ context.Context) error {
	if s.out == nil {
		s.out = os.Stdout
	}
	s.buffer = bufio.NewWriter(s.out)
	s.encoder = json.NewEncoder(s.buffer)
	if s.config != nil && s.config.Pretty {
		s.encoder.SetIndent("", "  ")
	}
	return nil
}

func (s *Stdout) Write(_ context.Context, message types.Message) error {
	if err := s.encoder.Encode(message); err != nil {
		return err
	}
	if message.Type != types.RecordMessage {
		return s.buffer.Flush()
	}
	return nil
}

func (s *Stdout) Close(_ context.Context) error {
	return s.buffer.Flush()
}

func init() {
	destination.RegisteredWriters[Type] = func() destination.Writer {
		return New(nil)
	}
}
