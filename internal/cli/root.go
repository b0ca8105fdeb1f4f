// Package cli implements the agentflow command line.
package cli

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/hupe1980/agentflow/config"
	"github.com/hupe1980/agentflow/logging"
	"github.com/hupe1980/agentflow/model"
)

// app carries the state shared by the subcommands of one invocation.
type app struct {
	cfgFile  string
	envFile  string
	logLevel string

	cfg         *config.Config
	logger      logging.Logger
	closeLogger func()

	// model replaces the configured backend; set by tests.
	model model.Model
}

// Execute runs the root command. It is called once by main.
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&app{})
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "agentflow",
		Short: "agentflow runs tool-using LLM agents and planning flows",
		Long: `agentflow drives one or more tool-using agents against a language model.

The direct flow runs the primary agent once. The planning flow drafts a plan,
delegates each step to an executor agent, verifies the result and re-plans
when steps stay blocked.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.init,
		PersistentPostRun: func(*cobra.Command, []string) { a.close() },
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default searches ./config.yaml and $HOME/.agentflow/config.yaml)")
	root.PersistentFlags().StringVar(&a.envFile, "env-file", "", "dotenv file loaded before the configuration (default .env when present)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")

	root.AddCommand(
		newRunCmd(a),
		newHistoryCmd(a),
		newToolsCmd(a),
		newConfigCmd(a),
	)
	return root
}

// init loads the environment, the configuration and the logger.
func (a *app) init(cmd *cobra.Command, _ []string) error {
	if a.envFile != "" {
		if err := godotenv.Load(a.envFile); err != nil {
			return fmt.Errorf("load env file: %w", err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	a.cfg = cfg

	logger, closeLogger, err := newLogger(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	a.logger, a.closeLogger = logger, closeLogger
	return nil
}

func (a *app) close() {
	if a.closeLogger != nil {
		a.closeLogger()
		a.closeLogger = nil
	}
}
