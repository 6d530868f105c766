package engine

import (
	"context"
	"errors"
	"regexp"

	"github.com/wonhochoi1/nature/internal/engine/ir"
	"github.com/wonhochoi1/nature/internal/sandbox"
)

// previousName exposes the most recent function result to code.
const previousName = "previous"

func (d *Dispatcher) executePython(ctx context.Context, ec *ExecutionContext, details ir.PythonCode) (NodeResult, error) {
	globals := ec.Snapshot()
	if prev, ok := ec.Previous(); ok {
		if _, taken := globals[previousName]; !taken {
			globals[previousName] = globals[prev]
		}
	}

	out, err := d.sandbox.Run(ctx, details.Code, globals)
	var res NodeResult
	if out != nil {
		res.Value = out.Result
		res.Output = out.Output
		for _, line := range out.Output {
			ec.Display(line)
		}
	}
	if err == nil {
		return res, nil
	}
	return res, sandboxError(err)
}

// referenceName matches names that stand for function results, node values
// or error entries of the run.
var referenceName = regexp.MustCompile(`^function_\d+(_op_\d+|_error)?$|_op_\d+$`)

// sandboxError maps a sandbox failure to its kind. Code that only trips over
// run values that do not exist yet fails on a dependency, not on syntax.
func sandboxError(err error) error {
	var serr *sandbox.SyntaxError
	if errors.As(err, &serr) {
		if len(serr.Undefined) > 0 && allReferences(serr.Undefined) {
			return newError(ErrDependency, "", "", err)
		}
		return newError(ErrSandboxSyntax, "", "", err)
	}
	var rerr *sandbox.RuntimeError
	if errors.As(err, &rerr) && rerr.Backtrace != "" {
		return newError(ErrRuntime, "", "", &tracedError{msg: rerr.Msg, trace: rerr.Backtrace})
	}
	return newError(ErrRuntime, "", "", err)
}

func allReferences(names []string) bool {
	for _, name := range names {
		if !referenceName.MatchString(name) {
			return false
		}
	}
	return true
}

// CheckCode statically checks every code node of graph before any node runs.
// A node may name the identifier-shaped context keys, previous once a function
// has completed, and the nodes ordered before it.
func (d *Dispatcher) CheckCode(ec *ExecutionContext, function string, graph *ir.Graph) error {
	var names []string
	for _, key := range ec.Keys() {
		if sandbox.IsIdentifier(key) {
			names = append(names, key)
		}
	}
	if _, ok := ec.Previous(); ok {
		names = append(names, previousName)
	}

	for _, node := range graph.Ordered() {
		if pc, ok := node.Details.(ir.PythonCode); ok {
			if err := d.sandbox.Check(pc.Code, names...); err != nil {
				return classify(function, node.ID, sandboxError(err))
			}
		}
		if sandbox.IsIdentifier(node.ID) {
			names = append(names, node.ID)
		}
	}
	return nil
}

// tracedError keeps the interpreter backtrace for diagnostics.
type tracedError struct {
	msg   string
	trace string
}

func (e *tracedError) Error() string { return e.msg }

// Trace returns the formatted backtrace.
func (e *tracedError) Trace() string { return e.trace }
