package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/wonhochoi1/nature"
	"github.com/wonhochoi1/nature/internal/api/models"
	"github.com/wonhochoi1/nature/internal/collab"
	"github.com/wonhochoi1/nature/internal/document"
	"github.com/wonhochoi1/nature/internal/engine"
	"github.com/wonhochoi1/nature/pkg"
)

type RunService struct {
	runner *engine.Runner
	logger zerolog.Logger
}

func NewRunService(runner *engine.Runner) *RunService {
	return &RunService{
		runner: runner,
		logger: nature.Logger,
	}
}

// Parse splits a document into its functions.
func (slf *RunService) Parse(text string) ([]*engine.FunctionDefinition, error) {
	defs := document.Parse(text)
	if len(defs) == 0 {
		return nil, engine.ErrEmptyDocument
	}
	return defs, nil
}

// Execute parses and runs a document.
func (slf *RunService) Execute(ctx context.Context, text string) (*engine.RunReport, error) {
	defs, err := slf.Parse(text)
	if err != nil {
		return nil, err
	}
	report, err := slf.runner.Run(ctx, defs)
	if err != nil {
		slf.logger.Error().Err(err).Msg("Run failed")
		return nil, err
	}
	return report, nil
}

// BuildRunner wires a runner from the application configuration: the
// configured collaborator (cached in Redis when a client is connected), the
// named connections and the run limits.
func BuildRunner(ctx context.Context, cfg nature.AppConfig, logger zerolog.Logger) (*engine.Runner, error) {
	connections, err := models.LoadConnections(cfg.ConnectionsFile)
	if err != nil {
		return nil, err
	}
	for name, conn := range connections {
		if err := pkg.Validate(conn); err != nil {
			return nil, fmt.Errorf("invalid connection %s: %w", name, err)
		}
	}

	llm, err := collab.New(ctx, collab.Config{
		Provider:   cfg.LLM.Provider,
		Model:      cfg.LLM.Model,
		OllamaHost: cfg.LLM.OllamaHost,
		APIKey:     cfg.LLM.APIKey,
		Timeout:    cfg.LLM.Timeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create code generator: %w", err)
	}

	var (
		generator collab.Generator
		suggester collab.Suggester
	)
	if llm != nil {
		generator, suggester = llm, llm
		if nature.Redis != nil {
			generator = collab.NewCachedGenerator(llm, pkg.RedisCache{}, cfg.RedisConfig.TTL, logger)
		}
		logger.Info().Str("provider", cfg.LLM.Provider).Msg("Code generator configured")
	} else {
		logger.Warn().Msg("No code generator configured, functions will run stub bodies")
	}

	return engine.NewRunner(engine.Config{
		MaxRegenerations:  cfg.Recovery.MaxRegenerations,
		GenerationTimeout: cfg.LLM.Timeout,
		SandboxMaxSteps:   cfg.Sandbox.MaxSteps,
		SessionDSN:        cfg.SessionDSN,
		FileRoot:          cfg.Sandbox.FileRoot,
		Connections:       connections,
		NatsURL:           cfg.NatsConfig.URL,
		TenantID:          cfg.NatsConfig.TenantID,
	}, generator, suggester, logger), nil
}
