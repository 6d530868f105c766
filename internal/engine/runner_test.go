package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wonhochoi1/nature/internal/collab"
	"github.com/wonhochoi1/nature/internal/collab/collabtest"
	"github.com/wonhochoi1/nature/internal/engine/lib"
)

// node renders one IR node as JSON.
func node(id, op, details string, deps ...string) string {
	quoted := make([]string, len(deps))
	for i, d := range deps {
		quoted[i] = fmt.Sprintf("%q", d)
	}
	return fmt.Sprintf(`{"id":%q,"operation_type":%q,"dependencies":[%s],"details":%s}`,
		id, op, strings.Join(quoted, ","), details)
}

func doc(nodes ...string) collabtest.Reply {
	return collabtest.Reply{Text: `{"nodes":[` + strings.Join(nodes, ",") + `]}`}
}

func newTestRunner(gen collab.Generator, sug collab.Suggester) *Runner {
	cfg := DefaultConfig()
	cfg.GenerationTimeout = 0
	return NewRunner(cfg, gen, sug, zerolog.Nop())
}

func defs(n int) []*FunctionDefinition {
	blocks := make([]string, n)
	for i := range blocks {
		blocks[i] = fmt.Sprintf("instruction block %d", i+1)
	}
	return Definitions(blocks)
}

func TestRun_EmptyDocument(t *testing.T) {
	_, err := newTestRunner(nil, nil).Run(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyDocument)
}

func TestRun_ListThenPrint(t *testing.T) {
	gen := collabtest.NewGenerator(
		doc(node("function_1_op_1", "PythonCode", `{"code":"result = [4, 1, 3]"}`)),
		doc(node("function_2_op_1", "Print", `{"value_ref":"function_1"}`)),
	)

	report, err := newTestRunner(gen, nil).Run(context.Background(), defs(2))
	require.NoError(t, err)
	require.Len(t, report.Functions, 2)

	f1, f2 := report.Functions[0], report.Functions[1]
	assert.Equal(t, StateSucceeded, f1.State)
	assert.Equal(t, []any{int64(4), int64(1), int64(3)}, f1.Value)
	assert.Equal(t, StateSucceeded, f2.State)
	assert.Equal(t, []string{"[4,1,3]"}, report.Displayed)
	assert.Equal(t, 2, report.Succeeded)
	assert.Zero(t, report.Failed)
	assert.NotEmpty(t, report.RunID)
}

func TestRun_SessionStorePersistsAcrossFunctions(t *testing.T) {
	gen := collabtest.NewGenerator(
		doc(
			node("function_1_op_1", "SQLQuery", `{"query":"CREATE TABLE people (name TEXT, age INTEGER)"}`),
			node("function_1_op_2", "SQLQuery", `{"query":"INSERT INTO people VALUES (?, ?)","params":["ada",36]}`, "function_1_op_1"),
			node("function_1_op_3", "SQLQuery", `{"query":"INSERT INTO people VALUES (?, ?)","params":["alan",41]}`, "function_1_op_2"),
		),
		doc(node("function_2_op_1", "SQLQuery", `{"query":"SELECT * FROM people ORDER BY age"}`)),
	)

	report, err := newTestRunner(gen, nil).Run(context.Background(), defs(2))
	require.NoError(t, err)

	f1, f2 := report.Functions[0], report.Functions[1]
	require.Equal(t, StateSucceeded, f1.State, f1.Diagnostic)
	assert.Nil(t, f1.Value)
	require.Equal(t, StateSucceeded, f2.State, f2.Diagnostic)

	rows, ok := f2.Value.([]any)
	require.True(t, ok)
	require.Len(t, rows, 2)
	assert.Equal(t, "ada", rows[0].(map[string]any)["name"])
	assert.Equal(t, int64(41), rows[1].(map[string]any)["age"])
}

func TestRun_SyntaxErrorIsRegeneratedOnce(t *testing.T) {
	gen := collabtest.NewGenerator(collabtest.Code("print('ran')\nresult = = 2"))
	sug := &collabtest.Suggester{Text: "fix the assignment"}

	report, err := newTestRunner(gen, sug).Run(context.Background(), defs(1))
	require.NoError(t, err)

	f := report.Functions[0]
	assert.Equal(t, StateFailed, f.State)
	assert.ErrorIs(t, f.Err, ErrSandboxSyntax)
	assert.Equal(t, 2, f.Attempts)
	assert.Equal(t, 2, gen.Calls())
	assert.Equal(t, "fix the assignment", f.Suggestion)
	assert.Empty(t, report.Displayed, "body must not run")
	assert.Contains(t, report.Values, "function_1_error")
	assert.NotContains(t, report.Values, "function_1")
	assert.Contains(t, gen.Requests[1].Feedback, "fix the assignment")
	assert.Equal(t, 1, report.Failed)
}

func TestRun_SyntaxErrorRecovers(t *testing.T) {
	gen := collabtest.NewGenerator(collabtest.Code("result = = 2"), collabtest.Code("result = 2"))

	report, err := newTestRunner(gen, nil).Run(context.Background(), defs(1))
	require.NoError(t, err)

	f := report.Functions[0]
	assert.Equal(t, StateSucceeded, f.State)
	assert.Equal(t, int64(2), f.Value)
	assert.Equal(t, 2, f.Attempts)
	assert.NotContains(t, report.Values, "function_1_error")
	assert.Equal(t, []Transition{
		{From: StatePending, To: StateGenerating, Attempt: 0},
		{From: StateGenerating, To: StateFailed, Attempt: 0},
		{From: StateFailed, To: StateGenerating, Attempt: 1},
		{From: StateGenerating, To: StateRunning, Attempt: 1},
		{From: StateRunning, To: StateSucceeded, Attempt: 1},
	}, f.Transitions)
}

func TestRun_SyntaxErrorStopsBodyBeforeAnyNodeRuns(t *testing.T) {
	body := func(code string) collabtest.Reply {
		return doc(
			node("function_1_op_1", "SQLQuery", `{"query":"CREATE TABLE t (x INTEGER)"}`),
			node("function_1_op_2", "PythonCode", fmt.Sprintf(`{"code":%q}`, code), "function_1_op_1"),
		)
	}
	gen := collabtest.NewGenerator(body("result = = 1"), body("result = 1"))

	report, err := newTestRunner(gen, nil).Run(context.Background(), defs(1))
	require.NoError(t, err)

	f := report.Functions[0]
	require.Equal(t, StateSucceeded, f.State, f.Diagnostic)
	assert.Equal(t, int64(1), f.Value)
	assert.Equal(t, 2, f.Attempts)
	assert.Contains(t, gen.Requests[1].Feedback, "function_1_op_2")
}

func TestRun_FailedAttemptDropsSessionWritesAndOutput(t *testing.T) {
	gen := collabtest.NewGenerator(
		doc(
			node("function_1_op_1", "PythonCode", `{"code":"print('loading')\nresult = 1"}`),
			node("function_1_op_2", "SQLQuery", `{"query":"CREATE TABLE t (x INTEGER)"}`),
			node("function_1_op_3", "SQLQuery", `{"query":"INSERT INTO t VALUES (1)"}`, "function_1_op_2"),
			node("function_1_op_4", "PythonCode", `{"code":"result = 1 // 0"}`, "function_1_op_3"),
		),
		doc(
			node("function_1_op_1", "PythonCode", `{"code":"print('loading')\nresult = 1"}`),
			node("function_1_op_2", "SQLQuery", `{"query":"CREATE TABLE t (x INTEGER)"}`),
			node("function_1_op_3", "SQLQuery", `{"query":"INSERT INTO t VALUES (1)"}`, "function_1_op_2"),
			node("function_1_op_4", "SQLQuery", `{"query":"SELECT count(*) AS n FROM t"}`, "function_1_op_3"),
		),
		doc(node("function_2_op_1", "SQLQuery", `{"query":"SELECT x FROM t"}`)),
	)

	report, err := newTestRunner(gen, nil).Run(context.Background(), defs(2))
	require.NoError(t, err)

	f1, f2 := report.Functions[0], report.Functions[1]
	require.Equal(t, StateSucceeded, f1.State, f1.Diagnostic)
	assert.Equal(t, 2, f1.Attempts)
	assert.Equal(t, []any{map[string]any{"n": int64(1)}}, f1.Value)
	assert.Equal(t, []string{"loading"}, f1.Output)
	assert.Equal(t, []string{"loading"}, report.Displayed)

	require.Equal(t, StateSucceeded, f2.State, f2.Diagnostic)
	assert.Equal(t, []any{map[string]any{"x": int64(1)}}, f2.Value)
}

func TestRun_FinalFailureLeavesNoSessionWrites(t *testing.T) {
	gen := collabtest.NewGenerator(
		doc(
			node("function_1_op_1", "SQLQuery", `{"query":"CREATE TABLE t (x INTEGER)"}`),
			node("function_1_op_2", "Print", `{"value_ref":"function_1_op_1"}`, "function_1_op_1"),
			node("function_1_op_3", "PythonCode", `{"code":"result = 1 // 0"}`, "function_1_op_2"),
		),
	)
	gen.Script = append(gen.Script, gen.Script[0], gen.Script[0],
		doc(node("function_2_op_1", "SQLQuery", `{"query":"SELECT name FROM sqlite_master WHERE type = 'table'"}`)))

	report, err := newTestRunner(gen, nil).Run(context.Background(), defs(2))
	require.NoError(t, err)

	assert.Equal(t, StateFailed, report.Functions[0].State)
	assert.Equal(t, 3, report.Functions[0].Attempts)
	assert.Empty(t, report.Displayed)
	assert.Equal(t, []any{}, report.Functions[1].Value)
}

func TestRun_UnpublishedNameInCodeIsADependencyError(t *testing.T) {
	gen := collabtest.NewGenerator(collabtest.Code("result = function_9 + 1"))

	report, err := newTestRunner(gen, nil).Run(context.Background(), defs(1))
	require.NoError(t, err)

	f := report.Functions[0]
	assert.Equal(t, StateFailed, f.State)
	assert.ErrorIs(t, f.Err, ErrDependency)
	assert.Equal(t, 1+DefaultMaxRegenerations, f.Attempts)
}

func TestRun_SelfReferentialResultFailsOnlyItsFunction(t *testing.T) {
	gen := collabtest.NewGenerator(
		collabtest.Code("result = []\nresult.append(result)"),
		collabtest.Code("result = []\nresult.append(result)"),
		collabtest.Code("result = []\nresult.append(result)"),
		collabtest.Code("result = 'ok'"),
	)

	report, err := newTestRunner(gen, nil).Run(context.Background(), defs(2))
	require.NoError(t, err)

	f1, f2 := report.Functions[0], report.Functions[1]
	assert.Equal(t, StateFailed, f1.State)
	assert.ErrorIs(t, f1.Err, ErrRuntime)
	assert.Contains(t, f1.Err.Error(), "cycle")
	assert.Equal(t, StateSucceeded, f2.State)
	assert.Equal(t, "ok", f2.Value)
}

func TestRun_UnavailableCollaboratorUsesStub(t *testing.T) {
	gen := collabtest.NewGenerator(collabtest.Unavailable())

	report, err := newTestRunner(gen, nil).Run(context.Background(), defs(2))
	require.NoError(t, err)

	for i, f := range report.Functions {
		assert.Equal(t, StateSucceeded, f.State)
		assert.Equal(t, collab.SourceStub, f.Source)
		assert.ErrorIs(t, f.GenerationErr, ErrGeneration)
		assert.Equal(t, fmt.Sprintf("Completed instruction: instruction block %d...", i+1), f.Value)
	}
}

func TestRun_NilGeneratorUsesStub(t *testing.T) {
	report, err := newTestRunner(nil, nil).Run(context.Background(), defs(1))
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, report.Functions[0].State)
	assert.Equal(t, "Completed instruction: instruction block 1...", report.Functions[0].Value)
}

func TestRun_ReturnHaltsFunction(t *testing.T) {
	gen := collabtest.NewGenerator(doc(
		node("function_1_op_1", "PythonCode", `{"code":"result = 1"}`),
		node("function_1_op_2", "Return", `{"value_ref":"function_1_op_1"}`),
		node("function_1_op_3", "Print", `{"value_ref":"function_1_op_1"}`),
	))

	report, err := newTestRunner(gen, nil).Run(context.Background(), defs(1))
	require.NoError(t, err)

	f := report.Functions[0]
	assert.Equal(t, StateSucceeded, f.State)
	assert.Equal(t, int64(1), f.Value)
	assert.Empty(t, report.Displayed)
	assert.NotContains(t, report.Values, "function_1_op_3")
}

func TestRun_PreviousReferenceIsFresh(t *testing.T) {
	gen := collabtest.NewGenerator(
		collabtest.Code("result = 1"),
		collabtest.Code("result = 2"),
		doc(node("function_3_op_1", "Return", `{"function_ref":"previous"}`)),
		collabtest.Code("result = previous * 10"),
	)

	report, err := newTestRunner(gen, nil).Run(context.Background(), defs(4))
	require.NoError(t, err)
	assert.Equal(t, int64(2), report.Functions[2].Value)
	assert.Equal(t, int64(20), report.Functions[3].Value)
}

func TestRun_ParseErrorIsNotRetried(t *testing.T) {
	gen := collabtest.NewGenerator(doc(
		node("a", "PythonCode", `{"code":"result = 1"}`, "b"),
		node("b", "PythonCode", `{"code":"result = 2"}`, "a"),
	))

	report, err := newTestRunner(gen, nil).Run(context.Background(), defs(1))
	require.NoError(t, err)

	f := report.Functions[0]
	assert.Equal(t, StateFailed, f.State)
	assert.ErrorIs(t, f.Err, ErrParse)
	assert.Equal(t, 1, f.Attempts)
	assert.Equal(t, 1, gen.Calls())
	assert.NotEmpty(t, f.Suggestion)
	assert.Contains(t, report.Values, "function_1_error")
	assert.NotContains(t, report.Values, "a")
}

func TestRun_RuntimeFailureRollsBackAndRetries(t *testing.T) {
	gen := collabtest.NewGenerator(
		doc(
			node("function_1_op_1", "PythonCode", `{"code":"result = 1"}`),
			node("function_1_op_2", "PythonCode", `{"code":"result = 1 // 0"}`, "function_1_op_1"),
		),
		doc(node("function_1_op_9", "PythonCode", `{"code":"result = 5"}`)),
	)

	report, err := newTestRunner(gen, nil).Run(context.Background(), defs(1))
	require.NoError(t, err)

	f := report.Functions[0]
	assert.Equal(t, StateSucceeded, f.State)
	assert.Equal(t, int64(5), f.Value)
	assert.NotContains(t, report.Values, "function_1_op_1")
	assert.Contains(t, gen.Requests[1].Feedback, "function_1_op_2")
}

func TestRun_UnresolvedFunctionReferenceExhaustsBudget(t *testing.T) {
	gen := collabtest.NewGenerator(doc(node("function_1_op_1", "Print", `{"function_ref":"function_7"}`)))

	report, err := newTestRunner(gen, nil).Run(context.Background(), defs(1))
	require.NoError(t, err)

	f := report.Functions[0]
	assert.Equal(t, StateFailed, f.State)
	assert.ErrorIs(t, f.Err, ErrDependency)
	assert.Equal(t, 1+DefaultMaxRegenerations, f.Attempts)
}

func TestRun_FailedFunctionDoesNotStopLaterOnes(t *testing.T) {
	gen := collabtest.NewGenerator(
		doc(node("function_1_op_1", "Shell", `{}`)),
		collabtest.Code("result = 'ok'"),
	)

	report, err := newTestRunner(gen, nil).Run(context.Background(), defs(2))
	require.NoError(t, err)
	assert.Equal(t, StateFailed, report.Functions[0].State)
	assert.ErrorIs(t, report.Functions[0].Err, ErrParse)
	assert.Equal(t, StateSucceeded, report.Functions[1].State)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Succeeded)
}

func TestRun_EmptyIRFallsBackToCode(t *testing.T) {
	gen := collabtest.NewGenerator(doc(), collabtest.Code("result = 7"))

	report, err := newTestRunner(gen, nil).Run(context.Background(), defs(1))
	require.NoError(t, err)
	assert.Equal(t, int64(7), report.Functions[0].Value)
	require.Len(t, gen.Requests, 2)
	assert.True(t, gen.Requests[1].WantCode)
	assert.Equal(t, "function_1_op_1", report.Functions[0].Graph.Ordered()[0].ID)
}

func TestRun_RegenerationUnavailableFailsFunction(t *testing.T) {
	gen := collabtest.NewGenerator(collabtest.Code("result = = 1"), collabtest.Unavailable())

	report, err := newTestRunner(gen, nil).Run(context.Background(), defs(1))
	require.NoError(t, err)

	f := report.Functions[0]
	assert.Equal(t, StateFailed, f.State)
	assert.ErrorIs(t, f.Err, ErrGeneration)
	assert.Equal(t, 2, f.Attempts)
}

func TestRun_ProgressEvents(t *testing.T) {
	var statuses []string
	runner := newTestRunner(nil, nil)
	runner.OnProgress(func(p lib.Progress) {
		if p.NodeID == "" {
			statuses = append(statuses, string(p.Status))
		}
	})

	_, err := runner.Run(context.Background(), defs(1))
	require.NoError(t, err)
	assert.Equal(t, []string{"started", "generating", "running", "succeeded", "completed"}, statuses)
}

func TestKindOf(t *testing.T) {
	assert.Nil(t, KindOf(nil))
	assert.Equal(t, ErrRuntime, KindOf(errors.New("boom")))
	assert.Equal(t, ErrDependency, KindOf(dependencyErrorf("missing")))
	assert.Equal(t, ErrGeneration, KindOf(fmt.Errorf("wrapped: %w", ErrGeneration)))
}
