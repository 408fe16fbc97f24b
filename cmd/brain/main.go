// Command brain runs the brain's HTTP API, MCP server and maintenance tasks.
package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type cli struct {
	configPath string
	logger     *zap.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:          "brain",
		Short:        "Persistent memory and provider routing for AI assistants",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(os.Getenv("LOG_LEVEL"))
			if err != nil {
				return err
			}
			c.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", os.Getenv("BRAIN_CONFIG"), "YAML config file; environment variables override it")

	root.AddCommand(
		c.serveCmd(),
		c.mcpCmd(),
		c.contextCmd(),
		c.migrateCmd(),
		c.migrateQdrantCmd(),
		c.envCmd(),
	)
	return root
}

func newLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
