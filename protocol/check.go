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
	"fmt"
	"maps"
	"slices"

	"github.com/datazip-inc/apisync/types"
	"github.com/datazip-inc/apisync/utils"
	"github.com/datazip-inc/apisync/utils/logger"
	"github.com/spf13/cobra"
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "check command",
	PreRunE: func(_ *cobra.Command, _ []string) error {
		return loadConfig()
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		status := &types.StatusRow{Status: types.ConnectionSucceed}
		if err := check(cmd.Context()); err != nil {
			logger.Errorf("connection check failed: %s", err)
			status.Status = types.ConnectionFailed
			status.Message = err.Error()
		}
		return printMessage(cmd.OutOrStdout(), types.Message{Type: types.ConnectionStatusMessage, ConnectionStatus: status})
	},
}

// check sets the connector up and probes the availability of every selected stream
func check(ctx context.Context) error {
	if err := connector.Setup(ctx); err != nil {
		return err
	}
	source, err := connector.Source()
	if err != nil {
		return err
	}

	results := source.Check(ctx, selected...)
	var failed error
	for _, name := range slices.Sorted(maps.Keys(results)) {
		if err := results[name]; err != nil {
			failed = utils.ErrAppend(failed, fmt.Errorf("stream[%s]: %s", name, err))
			continue
		}
		logger.Infof("stream[%s] is available", name)
	}
	return failed
}
