package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wonhochoi1/nature"
	"github.com/wonhochoi1/nature/internal/collab/collabtest"
	"github.com/wonhochoi1/nature/internal/engine"
)

func TestRunService_Execute(t *testing.T) {
	gen := collabtest.NewGenerator(collabtest.Code("result = [4, 1, 3]"), collabtest.Code("print(previous)"))
	svc := NewRunService(engine.NewRunner(engine.DefaultConfig(), gen, nil, zerolog.Nop()))

	report, err := svc.Execute(context.Background(), "function:\nmake a list\nfunction:\nprint it")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, []string{"[4, 1, 3]"}, report.Displayed)
}

func TestRunService_EmptyDocument(t *testing.T) {
	svc := NewRunService(engine.NewRunner(engine.DefaultConfig(), nil, nil, zerolog.Nop()))

	_, err := svc.Execute(context.Background(), "\n\nfunction:\n")
	assert.ErrorIs(t, err, engine.ErrEmptyDocument)
}

func TestBuildRunner_WithoutProvider(t *testing.T) {
	runner, err := BuildRunner(context.Background(), nature.DefaultConfig(), zerolog.Nop())
	require.NoError(t, err)

	report, err := runner.Run(context.Background(), engine.Definitions([]string{"say hi"}))
	require.NoError(t, err)
	assert.Equal(t, "Completed instruction: say hi...", report.Functions[0].Value)
}

func TestBuildRunner_InvalidConnections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "connections.yaml")
	require.NoError(t, os.WriteFile(path, []byte("connections:\n  dw:\n    type: oracle\n    database: dw\n"), 0o644))

	cfg := nature.DefaultConfig()
	cfg.ConnectionsFile = path
	_, err := BuildRunner(context.Background(), cfg, zerolog.Nop())
	assert.Error(t, err)
}
