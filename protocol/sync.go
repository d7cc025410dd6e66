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
	"os"
	"time"

	"github.com/datazip-inc/apisync/destination"
	"github.com/datazip-inc/apisync/drivers/abstract"
	"github.com/datazip-inc/apisync/telemetry"
	"github.com/datazip-inc/apisync/types"
	"github.com/datazip-inc/apisync/utils"
	"github.com/datazip-inc/apisync/utils/logger"
	"github.com/datazip-inc/apisync/utils/safego"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// syncCmd reads the catalog streams into the output writer and persists the merged state
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "sync command",
	PreRunE: func(_ *cobra.Command, _ []string) error {
		if err := loadConfig(); err != nil {
			return err
		}

		if catalogPath != "" {
			catalog = &types.Catalog{}
			if err := utils.UnmarshalFile(catalogPath, catalog, true); err != nil {
				return err
			}
		}

		state = types.NewState()
		if statePath != "" {
			if _, err := os.Stat(statePath); err == nil {
				if err := utils.UnmarshalFile(statePath, state, false); err != nil {
					return err
				}
			} else {
				logger.Infof("state file[%s] not found, starting from scratch", statePath)
			}
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		if err := connector.Setup(ctx); err != nil {
			return err
		}

		registry := prometheus.NewRegistry()
		opts := []abstract.Option{abstract.WithMetrics(telemetry.NewMetrics(registry))}
		if timeout > 0 {
			opts = append(opts, abstract.WithTimeout(time.Duration(timeout)*time.Second))
		}
		source, err := connector.Source(opts...)
		if err != nil {
			return err
		}
		if catalog == nil {
			catalog = source.Discover()
		}
		catalog = catalog.Select(selected...)

		if metricsAddr != "" {
			safego.Run(func() {
				if err := telemetry.Serve(ctx, metricsAddr, registry); err != nil {
					logger.Errorf("metrics server stopped: %s", err)
				}
			})
		}

		config, err := writerConfig()
		if err != nil {
			return err
		}
		pool, err := destination.NewWriter(ctx, config)
		if err != nil {
			return err
		}

		startTime := time.Now()
		readErr := source.Read(ctx, catalog, state, pool)
		closeErr := pool.Close(ctx)

		// checkpoints of completed streams survive a failed run
		state.LogWithLock()
		logger.Infof("synced %d records in %s", pool.SyncedRecords(), time.Since(startTime).Round(time.Millisecond))

		if err := utils.ErrAppend(readErr, closeErr); err != nil {
			for _, cause := range utils.ErrList(err) {
				logger.Errorf("sync: %s", cause)
			}
			return fmt.Errorf("sync failed: %s", err)
		}
		return nil
	},
}
