package collab

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wonhochoi1/nature/internal/engine/ir"
)

var (
	// ErrUnavailable is returned when no backend could be reached.
	ErrUnavailable = errors.New("code generator unavailable")

	// ErrInvalidPayload is returned when the backend answered with something
	// that is neither code nor a readable IR document.
	ErrInvalidPayload = errors.New("invalid generator payload")
)

const (
	SourceStub  = "stub"
	SourceCache = "cache"
)

// Request asks for the body of one function.
type Request struct {
	FunctionID   string
	Instructions string
	// Feedback carries the diagnostic of the previous attempt when regenerating.
	Feedback string
	Attempt  int
	// WantCode asks for a plain code body instead of an IR document.
	WantCode bool
}

// Generation is either an IR node list or a plain code body.
type Generation struct {
	Nodes  []ir.Node
	Code   string
	Source string
	// Raw is the sanitized payload the generation was read from.
	Raw string
}

func (g *Generation) Empty() bool {
	return g == nil || (len(g.Nodes) == 0 && strings.TrimSpace(g.Code) == "")
}

type Generator interface {
	Generate(ctx context.Context, req Request) (*Generation, error)
}

type Suggester interface {
	Suggest(ctx context.Context, instructions, trace, code string) (string, error)
}

// Interpret reads a sanitized backend answer. JSON documents describing nodes
// are decoded as IR; anything else is taken as code.
func Interpret(functionID, text string) (*Generation, error) {
	text = Sanitize(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty response", ErrInvalidPayload)
	}

	if !LooksLikeIR(text) {
		return &Generation{Code: text, Raw: text}, nil
	}

	nodes, err := ir.Decode(functionID, []byte(text))
	if errors.Is(err, ir.ErrMalformed) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err != nil {
		return nil, err
	}
	return &Generation{Nodes: nodes, Raw: text}, nil
}

// FallbackSuggestion is the advice given when no suggester could answer.
func FallbackSuggestion(message string) string {
	return fmt.Sprintf("Error occurred: %s. Try simplifying your instructions or check for syntax errors.", message)
}
