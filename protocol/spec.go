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
	"fmt"

	"github.com/datazip-inc/apisync/types"
	"github.com/goccy/go-json"
	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"
)

// specCmd prints the JSON schema of the connector config
var specCmd = &cobra.Command{
	Use:   "spec",
	Short: "spec command",
	RunE: func(cmd *cobra.Command, _ []string) error {
		spec, err := reflectSpec(connector.Spec())
		if err != nil {
			return err
		}
		return printMessage(cmd.OutOrStdout(), types.Message{Type: types.SpecMessage, Spec: spec})
	},
}

func reflectSpec(config any) (map[string]any, error) {
	reflector := &jsonschema.Reflector{DoNotReference: true, ExpandedStruct: true}
	schema := reflector.Reflect(config)

	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config schema: %s", err)
	}
	spec := map[string]any{}
	if err := json.Unmarshal(raw, &spec); err != nil {
		return nil, fmt.Errorf("failed to decode config schema: %s", err)
	}
	return spec, nil
}
