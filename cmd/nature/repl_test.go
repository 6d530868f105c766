package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wonhochoi1/nature/internal/collab/collabtest"
	"github.com/wonhochoi1/nature/internal/engine"
)

func TestRepl_RunsTypedDocument(t *testing.T) {
	gen := collabtest.NewGenerator(collabtest.Code("result = [4, 1, 3]"), collabtest.Code("print(sorted(previous))"))
	runner := engine.NewRunner(engine.DefaultConfig(), gen, nil, zerolog.Nop())

	in := strings.NewReader("function:\nmake a list\nfunction:\nprint it sorted\nrun\n")
	var out bytes.Buffer
	require.NoError(t, repl(context.Background(), runner, in, &out))

	assert.Contains(t, out.String(), "[1, 3, 4]")
	assert.Contains(t, out.String(), "function_2: succeeded")
	assert.NotContains(t, out.String(), "further suggestions")
}

func TestRepl_WalksThroughFailures(t *testing.T) {
	gen := collabtest.NewGenerator(collabtest.Code("result = = 1"))
	sug := &collabtest.Suggester{Text: "remove the second '='"}
	runner := engine.NewRunner(engine.DefaultConfig(), gen, sug, zerolog.Nop())

	in := strings.NewReader("break it\nrun\ny\nn\n")
	var out bytes.Buffer
	require.NoError(t, repl(context.Background(), runner, in, &out))

	assert.Contains(t, out.String(), "function_1: failed")
	assert.Contains(t, out.String(), "Suggestion: remove the second '='")
}

func TestPrintReport_EmitIR(t *testing.T) {
	runner := engine.NewRunner(engine.DefaultConfig(), nil, nil, zerolog.Nop())
	report, err := runner.Run(context.Background(), engine.Definitions([]string{"say hi"}))
	require.NoError(t, err)

	var out bytes.Buffer
	printReport(&out, report, true)
	assert.Contains(t, out.String(), `"function_id": "function_1"`)
	assert.Contains(t, out.String(), "source: stub")
}
