package collab

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Completer is a text completion backend. schema, when set, is a JSON schema
// the answer must follow; backends without structured output ignore it.
type Completer interface {
	Complete(ctx context.Context, prompt string, schema map[string]any) (string, error)
}

// LLM turns a Completer into a Generator and a Suggester.
type LLM struct {
	completer Completer
	name      string
	logger    zerolog.Logger
}

func NewLLM(completer Completer, name string, logger zerolog.Logger) *LLM {
	return &LLM{completer: completer, name: name, logger: logger}
}

func (slf *LLM) Generate(ctx context.Context, req Request) (*Generation, error) {
	prompt, schema := irPrompt(req), irSchema
	if req.WantCode {
		prompt, schema = codePrompt(req), nil
	}

	text, err := slf.completer.Complete(ctx, prompt, schema)
	if err != nil {
		slf.logger.Warn().Err(err).Str("function", req.FunctionID).Str("backend", slf.name).Msg("Generation call failed")
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, slf.name, err)
	}

	gen, err := Interpret(req.FunctionID, text)
	if err != nil {
		return nil, err
	}
	gen.Source = slf.name
	return gen, nil
}

func (slf *LLM) Suggest(ctx context.Context, instructions, trace, code string) (string, error) {
	text, err := slf.completer.Complete(ctx, suggestPrompt(instructions, trace, code), nil)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrUnavailable, slf.name, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: empty suggestion", ErrInvalidPayload)
	}
	return text, nil
}

var irSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"nodes": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id": map[string]any{"type": "string"},
					"operation_type": map[string]any{
						"type": "string",
						"enum": []string{"PythonCode", "SQLQuery", "DataTransform", "FileIO", "Print", "Return"},
					},
					"dependencies": map[string]any{
						"type":  "array",
						"items": map[string]any{"type": "string"},
					},
					"details": map[string]any{"type": "object"},
				},
				"required": []string{"id", "operation_type", "dependencies", "details"},
			},
		},
	},
	"required": []string{"nodes"},
}
