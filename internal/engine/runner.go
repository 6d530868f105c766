package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wonhochoi1/nature/internal/api/models"
	"github.com/wonhochoi1/nature/internal/collab"
	"github.com/wonhochoi1/nature/internal/engine/lib"
	"github.com/wonhochoi1/nature/internal/sandbox"
)

// Config holds the limits and resources of a run.
type Config struct {
	MaxRegenerations  int
	GenerationTimeout time.Duration
	SandboxMaxSteps   uint64
	SessionDSN        string
	FileRoot          string
	Connections       models.Connections
	NatsURL           string
	TenantID          string
}

func DefaultConfig() Config {
	return Config{
		MaxRegenerations:  DefaultMaxRegenerations,
		GenerationTimeout: 60 * time.Second,
		SandboxMaxSteps:   10_000_000,
		SessionDSN:        ":memory:",
		TenantID:          "default",
	}
}

// RunReport is the outcome of one document run.
type RunReport struct {
	RunID     string
	Functions []*FunctionResult
	Displayed []string
	Keys      []string
	Values    map[string]any
	Succeeded int
	Failed    int
	Duration  time.Duration
}

// Runner executes documents. Each Run gets its own context; nothing is kept
// between runs.
type Runner struct {
	cfg        Config
	generator  collab.Generator
	suggester  collab.Suggester
	onProgress lib.ProgressFunc
	logger     zerolog.Logger
}

// NewRunner builds a runner. A nil generator means every function runs its
// stub body; a nil suggester means the fallback advice is given.
func NewRunner(cfg Config, generator collab.Generator, suggester collab.Suggester, logger zerolog.Logger) *Runner {
	return &Runner{
		cfg:       cfg,
		generator: generator,
		suggester: suggester,
		logger:    logger,
	}
}

// OnProgress registers fn to receive every progress event besides NATS.
func (r *Runner) OnProgress(fn lib.ProgressFunc) *Runner {
	r.onProgress = fn
	return r
}

// Run executes defs in order against a fresh execution context. The only
// error returned is ErrEmptyDocument; function failures are in the report.
func (r *Runner) Run(ctx context.Context, defs []*FunctionDefinition) (*RunReport, error) {
	if len(defs) == 0 {
		return nil, ErrEmptyDocument
	}

	start := time.Now()
	runID := uuid.New().String()
	logger := r.logger.With().Str("run", runID).Logger()

	reporter := lib.NewProgressReporter(r.cfg.NatsURL, r.cfg.TenantID, runID, logger)
	defer reporter.Close()
	report := r.progressFunc(runID, reporter.ReportFunc())

	ec := NewExecutionContext(ContextOptions{
		SessionDSN:  r.cfg.SessionDSN,
		Connections: r.cfg.Connections,
		FileRoot:    r.cfg.FileRoot,
		Logger:      logger,
	})
	defer func() {
		if err := ec.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close execution context")
		}
	}()

	dispatcher := NewDispatcher(sandbox.New(r.cfg.SandboxMaxSteps, logger), logger)
	recovery := NewRecovery(r.suggester, r.cfg.MaxRegenerations, r.cfg.GenerationTimeout, logger)
	fx := NewFunctionExecutor(r.generator, dispatcher, recovery, r.cfg.GenerationTimeout, report, logger)

	report(lib.Progress{Status: lib.StatusStarted, Message: "run started"})
	logger.Info().Int("functions", len(defs)).Msg("Run started")

	out := &RunReport{RunID: runID}
	for _, fn := range defs {
		res := fx.Execute(ctx, ec, fn)
		out.Functions = append(out.Functions, res)
		if res.State == StateSucceeded {
			out.Succeeded++
		} else {
			out.Failed++
		}
	}

	out.Displayed = ec.Displayed()
	out.Keys = ec.Keys()
	out.Values = ec.Snapshot()
	out.Duration = time.Since(start)

	report(lib.Progress{Status: lib.StatusCompleted, Message: "run completed"})
	logger.Info().
		Int("succeeded", out.Succeeded).
		Int("failed", out.Failed).
		Dur("duration", out.Duration).
		Msg("Run completed")
	return out, nil
}

func (r *Runner) progressFunc(runID string, publish lib.ProgressFunc) lib.ProgressFunc {
	return func(p lib.Progress) {
		p.RunID = runID
		publish(p)
		if r.onProgress != nil {
			r.onProgress(p)
		}
	}
}

// Definitions names instruction blocks function_1, function_2, ...
func Definitions(blocks []string) []*FunctionDefinition {
	defs := make([]*FunctionDefinition, 0, len(blocks))
	for i, text := range blocks {
		defs = append(defs, &FunctionDefinition{
			Name:         FunctionName(i + 1),
			Instructions: text,
		})
	}
	return defs
}
