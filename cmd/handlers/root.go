/*
Copyright © 2025 Your Name

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package handlers

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcliao/commentlens/internal/config"
	"github.com/rcliao/commentlens/internal/logger"
)

var cfgFile string

// NewRootCmd creates the root command with all subcommands attached
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "commentlens",
		Short: "commentlens classifies, clusters and summarizes course feedback comments.",
		Long: `commentlens turns a batch of free-text feedback comments into an analysis
session: every comment is classified by an LLM, embedded and clustered,
scored for importance, and the results are aggregated into an immutable
snapshot with sentiment percentages, top clusters, charts and a narrative.

Sessions accumulate over time, so the history can be browsed as a time
series from the CLI, the TUI or the HTTP API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Initialize configuration
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.commentlens.yaml)")

	rootCmd.AddCommand(NewAnalyzeCmd())
	rootCmd.AddCommand(NewReanalyzeCmd())
	rootCmd.AddCommand(NewSessionsCmd())
	rootCmd.AddCommand(NewTimeSeriesCmd())
	rootCmd.AddCommand(NewClusterCmd())
	rootCmd.AddCommand(NewServeCmd())
	rootCmd.AddCommand(NewTUICmd())
	rootCmd.AddCommand(NewMigrateCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	level := cfg.App.LogLevel
	if cfg.App.Debug {
		level = "debug"
	}
	logger.Configure(logger.Options{Level: level, Format: cfg.App.LogFormat})
}
