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

package apisync

import (
	"os"

	_ "github.com/datazip-inc/apisync/destination/local"  // registering local jsonl writer
	_ "github.com/datazip-inc/apisync/destination/stdout" // registering stdout writer
	"github.com/datazip-inc/apisync/protocol"
	"github.com/datazip-inc/apisync/utils/logger"
	"github.com/datazip-inc/apisync/utils/safego"
)

func RegisterDriver(driver protocol.Driver) {
	defer safego.Recovery(true)

	// Execute the root command
	err := protocol.CreateRootCommand(driver).Execute()
	if err != nil {
		logger.Fatal(err)
	}

	os.Exit(0)
}
