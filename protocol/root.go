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
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/datazip-inc/apisync/constants"
	"github.com/datazip-inc/apisync/destination"
	"github.com/datazip-inc/apisync/types"
	"github.com/datazip-inc/apisync/utils"
	"github.com/datazip-inc/apisync/utils/logger"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	configPath  string
	catalogPath string
	statePath   string
	output      string
	logLevel    string
	metricsAddr string
	selected    []string
	noSave      bool
	timeout     int64 // seconds

	catalog *types.Catalog
	state   *types.State

	commands  = []*cobra.Command{}
	connector Driver
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   constants.ConnectorName,
	Short: "sync paginated APIs into JSON lines",
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		viper.SetDefault(constants.ConfigFolder, os.TempDir())
		viper.SetDefault(constants.StatePath, filepath.Join(os.TempDir(), "state.json"))
		viper.Set(constants.LogLevel, logLevel)
		viper.Set(constants.NoSave, noSave)
		if !noSave && configPath != "" {
			configFolder := filepath.Dir(configPath)
			viper.Set(constants.ConfigFolder, configFolder)
			viper.Set(constants.StatePath, utils.Ternary(statePath == "", filepath.Join(configFolder, "state.json"), statePath).(string))
		}

		logger.Init()
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Help()
		}
		if ok := utils.IsValidSubcommand(commands, args[0]); !ok {
			return fmt.Errorf("'%s' is an invalid command. Use '%s --help' to display usage guide", args[0], constants.ConnectorName)
		}
		return nil
	},
}

func CreateRootCommand(driver Driver) *cobra.Command {
	connector = driver
	RootCmd.AddCommand(commands...)
	return RootCmd
}

// loadConfig reads the connector file; validation happens in Setup
func loadConfig() error {
	if configPath == "" {
		return fmt.Errorf("--config not passed")
	}
	return utils.UnmarshalFile(configPath, connector.GetConfigRef(), false)
}

// writerConfig resolves --output: a registered writer type or a writer config file
func writerConfig() (*destination.WriterConfig, error) {
	if _, found := destination.RegisteredWriters[strings.ToLower(output)]; found {
		return &destination.WriterConfig{Type: strings.ToLower(output)}, nil
	}

	config := &destination.WriterConfig{}
	if err := utils.UnmarshalFile(output, config, true); err != nil {
		return nil, fmt.Errorf("--output is neither a writer type nor a writer config: %s", err)
	}
	return config, nil
}

// printMessage writes a single protocol message as a JSON line
func printMessage(out io.Writer, message types.Message) error {
	return json.NewEncoder(out).Encode(message)
}

func init() {
	commands = append(commands, specCmd, checkCmd, discoverCmd, syncCmd)
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "", "", "(Required) Connector config file")
	RootCmd.PersistentFlags().StringVarP(&catalogPath, "catalog", "", "", "Catalog of streams to sync; defaults to every discovered stream")
	RootCmd.PersistentFlags().StringVarP(&statePath, "state", "", "", "State file of a previous sync")
	RootCmd.PersistentFlags().StringSliceVarP(&selected, "streams", "", nil, "(Optional) Restrict the catalog to these streams")
	RootCmd.PersistentFlags().StringVarP(&output, "output", "", "stdout", "Writer type or writer config file for synced messages")
	RootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "", "info", "Log level")
	RootCmd.PersistentFlags().StringVarP(&metricsAddr, "metrics-addr", "", "", "(Optional) Address to serve prometheus metrics on during sync")
	RootCmd.PersistentFlags().BoolVarP(&noSave, "no-save", "", false, "(Optional) Skip persisting state and log files")
	RootCmd.PersistentFlags().Int64VarP(&timeout, "timeout", "", -1, "(Optional) Run timeout in seconds")
	// Disable Cobra CLI's built-in usage and error handling
	RootCmd.SilenceUsage = true
	RootCmd.SilenceErrors = true
}
