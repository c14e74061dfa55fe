package main

import (
	"fmt"
	"io"
	"os"

	"dentalvoice/internal/config"
	"dentalvoice/internal/logging"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const defaultConfigPath = "configs/config.yaml"

// commandContext loads config and logger once per invocation.
type commandContext struct {
	configFlag *string

	cfg    *config.Config
	logger *zerolog.Logger
	closer io.Closer
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) configPath() string {
	if c.configFlag != nil && *c.configFlag != "" {
		return *c.configFlag
	}
	if env := os.Getenv("CONFIG_PATH"); env != "" {
		return env
	}
	return defaultConfigPath
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	cfg, err := config.Load(c.configPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	// stdout belongs to command output
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stderr"
	}
	c.cfg = cfg
	return cfg, nil
}

func (c *commandContext) ensureLogger() (*zerolog.Logger, error) {
	if c.logger != nil {
		return c.logger, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	c.logger = logger
	c.closer = closer
	return logger, nil
}

func (c *commandContext) close() {
	if c.closer != nil {
		_ = c.closer.Close()
		c.closer = nil
	}
}

func newRootCommand() *cobra.Command {
	var configFlag string
	ctx := newCommandContext(&configFlag)

	rootCmd := &cobra.Command{
		Use:           "dentalvoice",
		Short:         "Deliver dental voice recordings through the relay, offline or not",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := ctx.ensureLogger()
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			ctx.close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newAgentCommand(ctx))
	rootCmd.AddCommand(newSendCommand(ctx))
	rootCmd.AddCommand(newQueueCommand(ctx))

	return rootCmd
}
