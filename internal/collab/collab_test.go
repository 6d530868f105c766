package collab_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wonhochoi1/nature/internal/collab"
	"github.com/wonhochoi1/nature/internal/collab/collabtest"
	"github.com/wonhochoi1/nature/internal/engine/ir"
)

func TestSanitize(t *testing.T) {
	assert.Equal(t, "result = 1", collab.Sanitize("```python\nresult = 1\n```"))
	assert.Equal(t, `{"nodes":[]}`, collab.Sanitize("Here you go:\n```json\n{\"nodes\":[]}\n```\nEnjoy"))
	assert.Equal(t, "result = 2", collab.Sanitize("```\nresult = 2"))
	assert.Equal(t, "x = 1", collab.Sanitize("  x = 1  "))
}

func TestInterpret(t *testing.T) {
	gen, err := collab.Interpret("function_1", "```python\nresult = [4, 1, 3]\n```")
	require.NoError(t, err)
	assert.Equal(t, "result = [4, 1, 3]", gen.Code)
	assert.Empty(t, gen.Nodes)

	gen, err = collab.Interpret("function_1", `{"nodes":[{"id":"function_1_op_1","operation_type":"Return","dependencies":[],"details":{"function_ref":"previous"}}]}`)
	require.NoError(t, err)
	require.Len(t, gen.Nodes, 1)
	assert.Equal(t, ir.OpReturn, gen.Nodes[0].Type)

	_, err = collab.Interpret("function_1", `{"nodes": [`)
	assert.ErrorIs(t, err, collab.ErrInvalidPayload)

	_, err = collab.Interpret("function_1", "   ")
	assert.ErrorIs(t, err, collab.ErrInvalidPayload)

	_, err = collab.Interpret("function_1", `[{"id":"a","operation_type":"Shell"}]`)
	var perr *ir.ParseError
	assert.True(t, errors.As(err, &perr))
}

func TestStub(t *testing.T) {
	gen, err := collab.Stub{}.Generate(context.Background(), collab.Request{
		FunctionID:   "function_1",
		Instructions: "Create a list of numbers",
	})
	require.NoError(t, err)
	assert.Equal(t, collab.SourceStub, gen.Source)
	assert.Equal(t, `result = "Completed instruction: Create a list of numbers..."`, gen.Code)

	again, _ := collab.Stub{}.Generate(context.Background(), collab.Request{Instructions: "Create a list of numbers"})
	assert.Equal(t, gen.Code, again.Code)

	long := collab.StubCode("0123456789012345678901234567890123456789012345678901234567890")
	assert.Equal(t, `result = "Completed instruction: 01234567890123456789012345678901234567890123456789..."`, long)
}

func TestFallbackSuggestion(t *testing.T) {
	s, err := collab.Stub{}.Suggest(context.Background(), "x", "boom", "")
	require.NoError(t, err)
	assert.Equal(t, "Error occurred: boom. Try simplifying your instructions or check for syntax errors.", s)
}

func TestCachedGenerator_CachesFirstAttemptsOnly(t *testing.T) {
	backend := collabtest.NewGenerator(collabtest.Code("result = 1"), collabtest.Code("result = 2"))
	cache := collabtest.NewCache()
	gen := collab.NewCachedGenerator(backend, cache, time.Hour, zerolog.Nop())
	req := collab.Request{FunctionID: "function_1", Instructions: "one"}

	first, err := gen.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "result = 1", first.Code)
	assert.Equal(t, 1, cache.Len())

	second, err := gen.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "result = 1", second.Code)
	assert.Equal(t, collab.SourceCache, second.Source)
	assert.Equal(t, 1, backend.Calls())

	retry := req
	retry.Attempt = 1
	retry.Feedback = "syntax error"
	third, err := gen.Generate(context.Background(), retry)
	require.NoError(t, err)
	assert.Equal(t, "result = 2", third.Code)
	assert.Equal(t, 2, backend.Calls())
}

func TestCachedGenerator_DoesNotCacheStubs(t *testing.T) {
	cache := collabtest.NewCache()
	gen := collab.NewCachedGenerator(collab.Stub{}, cache, time.Hour, zerolog.Nop())
	_, err := gen.Generate(context.Background(), collab.Request{FunctionID: "function_1", Instructions: "x"})
	require.NoError(t, err)
	assert.Equal(t, 0, cache.Len())
}

func TestOllamaClient_Generate(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":   "test",
			"done":    true,
			"message": map[string]any{"role": "assistant", "content": `{"nodes":[{"id":"function_1_op_1","operation_type":"PythonCode","dependencies":[],"details":{"code":"result = 3"}}]}`},
		})
	}))
	defer srv.Close()

	llm := collab.NewLLM(collab.NewOllamaClient(srv.URL, "", srv.Client()), "ollama", zerolog.Nop())
	gen, err := llm.Generate(context.Background(), collab.Request{FunctionID: "function_1", Instructions: "three"})
	require.NoError(t, err)
	require.Len(t, gen.Nodes, 1)
	assert.Equal(t, "ollama", gen.Source)
	assert.Equal(t, "qwen3-coder:30b", received["model"])
	assert.NotNil(t, received["format"])
}

func TestOllamaClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	llm := collab.NewLLM(collab.NewOllamaClient(url, "m", nil), "ollama", zerolog.Nop())
	_, err := llm.Generate(context.Background(), collab.Request{FunctionID: "function_1", WantCode: true})
	assert.ErrorIs(t, err, collab.ErrUnavailable)
}

func TestNew_NoProvider(t *testing.T) {
	llm, err := collab.New(context.Background(), collab.Config{}, zerolog.Nop())
	require.NoError(t, err)
	assert.Nil(t, llm)

	_, err = collab.New(context.Background(), collab.Config{Provider: "nope"}, zerolog.Nop())
	assert.Error(t, err)
}
