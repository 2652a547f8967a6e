// Command paperindexctl operates the search and indexing core:
// running it as a resident process, driving one-off queries and
// ingests, and forcing a flush or merge outside their normal
// triggers. Grounded on bobinette-papernet/cmd/cli/root.go's
// RootCmd + PersistentPreRun config/logger wiring.
package main

import (
	"fmt"
	"path"

	"github.com/spf13/cobra"

	"github.com/bobinette/paperindex/config"
	"github.com/bobinette/paperindex/engine"
	"github.com/bobinette/paperindex/log"
)

var (
	env        string
	configFile string

	logger log.Logger
	cfg    config.Config
)

func init() {
	RootCmd.PersistentFlags().StringVar(&env, "env", "dev", "environment")
	RootCmd.PersistentFlags().StringVar(&configFile, "config", "", "configuration file")
}

var RootCmd = cobra.Command{
	Use:   "paperindexctl",
	Short: "Operate the paperindex search and indexing core",
	Long:  "Operate the paperindex search and indexing core",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger = log.New(env)

		if configFile == "" {
			configFile = path.Join("configuration", fmt.Sprintf("config.%s.toml", env))
		}

		loaded, err := config.Load(configFile)
		if err != nil {
			logger.Printf("no configuration file at %s, using defaults: %v", configFile, err)
			loaded = config.Default()
		}
		loaded.Env = env
		cfg = loaded
		return nil
	},
}

// newEngine constructs an Engine from the flags parsed by RootCmd's
// PersistentPreRunE. Every subcommand needing the engine calls this
// rather than duplicating the wiring.
func newEngine() (*engine.Engine, error) {
	return engine.New(cfg, logger)
}
