package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/wonhochoi1/nature/internal/collab"
)

// DefaultMaxRegenerations bounds how many times one function is regenerated.
const DefaultMaxRegenerations = 2

// maxSyntaxRegenerations is the share of the bound syntax errors may use.
const maxSyntaxRegenerations = 1

// Diagnostic describes one failed attempt of a function.
type Diagnostic struct {
	Function     string
	Instructions string
	// Code is the executed code or the encoded IR.
	Code    string
	Trace   string
	Kind    error
	NodeID  string
	Attempt int
}

// Decision is what recovery concluded for a diagnostic.
type Decision struct {
	Retry      bool
	Suggestion string
	// Feedback is handed to the generator with the next request.
	Feedback string
}

// budget counts the regenerations a function has used.
type budget struct {
	total  int
	syntax int
}

// Recovery asks for advice on failures and decides whether a function gets
// another generation.
type Recovery struct {
	suggester        collab.Suggester
	maxRegenerations int
	timeout          time.Duration
	logger           zerolog.Logger
}

func NewRecovery(suggester collab.Suggester, maxRegenerations int, timeout time.Duration, logger zerolog.Logger) *Recovery {
	if maxRegenerations < 0 {
		maxRegenerations = 0
	}
	return &Recovery{
		suggester:        suggester,
		maxRegenerations: maxRegenerations,
		timeout:          timeout,
		logger:           logger,
	}
}

// Decide consumes budget when it allows a retry. canRegenerate is false when
// there is no generator to ask.
func (r *Recovery) Decide(ctx context.Context, diag Diagnostic, b *budget, canRegenerate bool) Decision {
	suggestion := r.suggest(ctx, diag)
	d := Decision{Suggestion: suggestion}

	switch {
	case !canRegenerate:
	case errors.Is(diag.Kind, ErrParse), errors.Is(diag.Kind, ErrGeneration):
	case b.total >= r.maxRegenerations:
	case errors.Is(diag.Kind, ErrSandboxSyntax):
		if b.syntax < maxSyntaxRegenerations {
			b.syntax++
			b.total++
			d.Retry = true
		}
	default:
		b.total++
		d.Retry = true
	}

	if d.Retry {
		d.Feedback = feedback(diag, suggestion)
	}
	r.logger.Info().
		Str("function", diag.Function).
		Str("kind", kindName(diag.Kind)).
		Int("attempt", diag.Attempt).
		Bool("retry", d.Retry).
		Msg("Recovery decision")
	return d
}

func (r *Recovery) suggest(ctx context.Context, diag Diagnostic) string {
	if r.suggester == nil {
		return collab.FallbackSuggestion(diag.Trace)
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	s, err := r.suggester.Suggest(ctx, diag.Instructions, diag.Trace, diag.Code)
	if err != nil || strings.TrimSpace(s) == "" {
		if err != nil {
			r.logger.Warn().Err(err).Str("function", diag.Function).Msg("Suggestion unavailable")
		}
		return collab.FallbackSuggestion(diag.Trace)
	}
	return strings.TrimSpace(s)
}

func feedback(diag Diagnostic, suggestion string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The previous attempt failed with a %s", kindName(diag.Kind))
	if diag.NodeID != "" {
		fmt.Fprintf(&b, " in node %s", diag.NodeID)
	}
	fmt.Fprintf(&b, ":\n%s\n", diag.Trace)
	if diag.Code != "" {
		fmt.Fprintf(&b, "Previous body:\n%s\n", diag.Code)
	}
	if suggestion != "" {
		fmt.Fprintf(&b, "Suggestion: %s\n", suggestion)
	}
	return b.String()
}

// FormatTrace renders err with the interpreter backtrace when there is one.
func FormatTrace(err error) string {
	if err == nil {
		return ""
	}
	var traced interface{ Trace() string }
	if errors.As(err, &traced) && traced.Trace() != "" {
		return err.Error() + "\n" + traced.Trace()
	}
	return err.Error()
}

func kindName(kind error) string {
	if kind == nil {
		return "unknown error"
	}
	return kind.Error()
}
