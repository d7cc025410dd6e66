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

package protocol

import (
	"context"

	"github.com/datazip-inc/apisync/drivers/abstract"
)

// Driver is a connector whose streams are read by the concurrent engine
type Driver interface {
	Type() string
	GetConfigRef() any
	Spec() any
	Setup(ctx context.Context) error
	Source(opts ...abstract.Option) (*abstract.ConcurrentSource, error)
	Close()
}
