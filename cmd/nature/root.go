package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/wonhochoi1/nature"
	"github.com/wonhochoi1/nature/internal/api/service"
	"github.com/wonhochoi1/nature/internal/engine"
	"github.com/wonhochoi1/nature/pkg"
)

var envFile string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "nature",
		Short: "Run documents of natural-language instructions",
		Long: `nature turns a document of "function:" instruction blocks into executable
operations, runs them against a shared context and recovers from failures
with the help of the configured code generator.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			nature.InitConfig(envFile)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env", ".env", "env file to load")
	pkg.AssertNoError(root.MarkPersistentFlagFilename("env"))

	root.AddCommand(newRunCmd(), newReplCmd(), newServeCmd(), newTokenCmd())
	return root
}

// buildRunner wires the runner from the loaded configuration, connecting the
// generation cache first when one is configured.
func buildRunner(ctx context.Context) (*engine.Runner, func(), error) {
	cfg := nature.GetConfig()
	cleanup := func() {}
	if cfg.RedisConfig.Host != "" {
		client, err := pkg.ConnectRedis(cfg)
		if err != nil {
			nature.Logger.Warn().Err(err).Msg("Generation cache disabled")
		} else {
			cleanup = func() { client.Close() }
		}
	}

	runner, err := service.BuildRunner(ctx, cfg, nature.Logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return runner, cleanup, nil
}
