// Package main implements ragctl, the command-line entry point for ragkit:
// it serves the HTTP API and runs ingestion, search and chat from a shell.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/samzhu/ragkit/internal/config"
	"github.com/samzhu/ragkit/internal/logging"
)

var version = "dev"

// options are the persistent flags and the state they load.
type options struct {
	configPath string
	envFile    string
	logLevel   string

	cfg    *config.Config
	logger *zap.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "ragctl",
		Short: "Retrieval-augmented generation toolkit",
		Long: `ragctl ingests documents into a vector store, searches them and answers
questions grounded in the retrieved chunks.

Settings come from an optional YAML file and RAGKIT_* environment variables,
for example RAGKIT_STORE_BACKEND=qdrant or RAGKIT_LLM_PROVIDER=anthropic.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "path to a YAML config file")
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the environment is read")
	flags.StringVar(&opts.logLevel, "log-level", "", "override logging.level")

	root.AddCommand(
		newServeCmd(opts),
		newIngestCmd(opts),
		newQueryCmd(opts),
		newChatCmd(opts),
		newInitCmd(),
		newStatusCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "version",
		Short:             "Print the ragctl version",
		Args:              cobra.NoArgs,
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ragctl %s\n", version)
		},
	}
}

func (o *options) load() error {
	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", o.envFile, err)
		}
	}

	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	o.cfg, o.logger = cfg, logger
	return nil
}
