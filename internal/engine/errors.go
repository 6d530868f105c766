package engine

import (
	"errors"
	"fmt"

	"github.com/wonhochoi1/nature/internal/engine/ir"
	"github.com/wonhochoi1/nature/internal/sandbox"
)

// Error kinds.
var (
	// ErrParse marks a malformed IR graph. Fatal to the function, never retried.
	ErrParse = errors.New("parse error")

	// ErrGeneration marks a collaborator that was unavailable, timed out or
	// returned an unusable payload. The function falls back to a stub.
	ErrGeneration = errors.New("generation failure")

	// ErrSandboxSyntax marks generated code that failed the static check.
	ErrSandboxSyntax = errors.New("sandbox syntax error")

	// ErrDependency marks a reference to a context key that was never published.
	ErrDependency = errors.New("dependency error")

	// ErrRuntime marks a failure raised while a node executed.
	ErrRuntime = errors.New("runtime error")

	// ErrEmptyDocument is the only run-level failure: nothing to execute.
	ErrEmptyDocument = errors.New("no functions found in document")
)

// Error is a classified failure of a node or a function.
type Error struct {
	Kind     error
	Function string
	NodeID   string
	Err      error
}

func (e *Error) Error() string {
	switch {
	case e.NodeID != "":
		return fmt.Sprintf("%s: node %s: %v", e.Kind, e.NodeID, e.Err)
	case e.Function != "":
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Function, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the error's kind sentinel.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func newError(kind error, function, nodeID string, err error) *Error {
	return &Error{Kind: kind, Function: function, NodeID: nodeID, Err: err}
}

func dependencyErrorf(format string, args ...any) *Error {
	return newError(ErrDependency, "", "", fmt.Errorf(format, args...))
}

// KindOf returns the sentinel classifying err. Unclassified errors are
// runtime errors.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var perr *ir.ParseError
	if errors.As(err, &perr) {
		return ErrParse
	}
	var serr *sandbox.SyntaxError
	if errors.As(err, &serr) {
		return ErrSandboxSyntax
	}
	for _, kind := range []error{ErrParse, ErrGeneration, ErrSandboxSyntax, ErrDependency, ErrEmptyDocument} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return ErrRuntime
}

// classify attaches the owning node and function to a handler error.
func classify(function, nodeID string, err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		out := *e
		if out.Function == "" {
			out.Function = function
		}
		if out.NodeID == "" {
			out.NodeID = nodeID
		}
		return &out
	}
	return newError(KindOf(err), function, nodeID, err)
}
