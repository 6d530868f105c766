package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/wonhochoi1/nature/internal/collab/collabtest"
)

func TestRecovery_Budgets(t *testing.T) {
	r := NewRecovery(nil, 2, 0, zerolog.Nop())
	ctx := context.Background()

	b := &budget{}
	syntax := Diagnostic{Function: "function_1", Trace: "bad", Kind: ErrSandboxSyntax}
	assert.True(t, r.Decide(ctx, syntax, b, true).Retry)
	assert.False(t, r.Decide(ctx, syntax, b, true).Retry)

	runtime := Diagnostic{Function: "function_1", Trace: "boom", Kind: ErrRuntime}
	assert.True(t, r.Decide(ctx, runtime, b, true).Retry)
	assert.False(t, r.Decide(ctx, runtime, b, true).Retry)

	b = &budget{}
	assert.False(t, r.Decide(ctx, Diagnostic{Kind: ErrParse}, b, true).Retry)
	assert.False(t, r.Decide(ctx, Diagnostic{Kind: ErrGeneration}, b, true).Retry)
	assert.False(t, r.Decide(ctx, runtime, b, false).Retry)
	assert.Zero(t, b.total)
}

func TestRecovery_Suggestions(t *testing.T) {
	ctx := context.Background()
	diag := Diagnostic{Function: "function_1", Instructions: "do it", Trace: "boom", Kind: ErrRuntime, NodeID: "function_1_op_1", Code: "result = x"}

	d := NewRecovery(nil, 2, 0, zerolog.Nop()).Decide(ctx, diag, &budget{}, true)
	assert.Equal(t, "Error occurred: boom. Try simplifying your instructions or check for syntax errors.", d.Suggestion)
	assert.Contains(t, d.Feedback, "function_1_op_1")
	assert.Contains(t, d.Feedback, "result = x")

	sug := &collabtest.Suggester{Text: "  define x first \n"}
	d = NewRecovery(sug, 2, 0, zerolog.Nop()).Decide(ctx, diag, &budget{}, true)
	assert.Equal(t, "define x first", d.Suggestion)
	assert.Equal(t, []string{"boom"}, sug.Traces)

	failing := &collabtest.Suggester{Err: errors.New("offline")}
	d = NewRecovery(failing, 2, 0, zerolog.Nop()).Decide(ctx, diag, &budget{}, true)
	assert.Contains(t, d.Suggestion, "Error occurred: boom")
}

func TestFormatTrace(t *testing.T) {
	assert.Empty(t, FormatTrace(nil))
	assert.Equal(t, "plain", FormatTrace(errors.New("plain")))
	err := newError(ErrRuntime, "f", "n", &tracedError{msg: "boom", trace: "Traceback"})
	assert.Equal(t, err.Error()+"\nTraceback", FormatTrace(err))
}
