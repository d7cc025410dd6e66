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
	"errors"

	"github.com/datazip-inc/apisync/types"
	"github.com/spf13/cobra"
)

// discoverCmd prints the catalog of the streams the connector defines
var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "discover command",
	PreRunE: func(_ *cobra.Command, _ []string) error {
		return loadConfig()
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := connector.Setup(cmd.Context()); err != nil {
			return err
		}
		source, err := connector.Source()
		if err != nil {
			return err
		}

		discovered := source.Discover().Select(selected...)
		if len(discovered.Streams) == 0 {
			return errors.New("no streams found in connector")
		}
		return printMessage(cmd.OutOrStdout(), types.Message{Type: types.CatalogMessage, Catalog: discovered})
	},
}
