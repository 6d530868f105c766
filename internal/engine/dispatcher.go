package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/wonhochoi1/nature/internal/engine/ir"
	"github.com/wonhochoi1/nature/internal/sandbox"
)

// NodeResult is the outcome of one dispatch.
type NodeResult struct {
	Value any
	// Halt is set by Return: the function ends with Value.
	Halt bool
	// Output holds what the node displayed.
	Output []string
}

// Dispatcher executes exactly one node per call.
type Dispatcher struct {
	sandbox *sandbox.Sandbox
	logger  zerolog.Logger
}

func NewDispatcher(sb *sandbox.Sandbox, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{sandbox: sb, logger: logger}
}

// Dispatch runs node against ec. Errors are classified and tagged with the
// node id; nothing is swallowed.
func (d *Dispatcher) Dispatch(ctx context.Context, ec *ExecutionContext, function string, node ir.Node) (NodeResult, error) {
	d.logger.Debug().Str("function", function).Str("node", node.ID).Str("operation", string(node.Type)).Msg("Dispatching node")

	res, err := d.executeNode(ctx, ec, node)
	if err != nil {
		return res, classify(function, node.ID, err)
	}
	return res, nil
}

func (d *Dispatcher) executeNode(ctx context.Context, ec *ExecutionContext, node ir.Node) (NodeResult, error) {
	switch details := node.Details.(type) {
	case ir.PythonCode:
		return d.executePython(ctx, ec, details)
	case ir.SQLQuery:
		value, err := d.executeSQL(ctx, ec, details)
		return NodeResult{Value: value}, err
	case ir.DataTransform:
		value, err := d.executeTransform(ec, node, details)
		return NodeResult{Value: value}, err
	case ir.FileIO:
		value, err := d.executeFileIO(ec, node, details)
		return NodeResult{Value: value}, err
	case ir.Print:
		value, err := resolveRef(ec, node, details.Ref)
		if err != nil {
			return NodeResult{}, err
		}
		line := FormatValue(value)
		ec.Display(line)
		return NodeResult{Value: value, Output: []string{line}}, nil
	case ir.Return:
		value, err := resolveRef(ec, node, details.Ref)
		if err != nil {
			return NodeResult{}, err
		}
		return NodeResult{Value: value, Halt: true}, nil
	default:
		return NodeResult{}, newError(ErrParse, "", node.ID, fmt.Errorf("unsupported operation type %s", node.Type))
	}
}

// resolveRef reads the value a Print or Return node points at. Without an
// explicit reference the last declared dependency is used.
func resolveRef(ec *ExecutionContext, node ir.Node, ref ir.Ref) (any, error) {
	switch {
	case ref.ValueRef != "":
		return ec.Get(ref.ValueRef)
	case ref.FunctionRef != "":
		return ec.ResolveFunction(ref.FunctionRef)
	case len(node.Dependencies) > 0:
		return ec.Get(node.Dependencies[len(node.Dependencies)-1])
	default:
		return nil, dependencyErrorf("%s node %s references nothing", node.Type, node.ID)
	}
}

// inputOf returns the value a node reads: the explicit reference, else its
// last dependency. ok is false when the node has neither.
func inputOf(ec *ExecutionContext, node ir.Node, ref string) (any, bool, error) {
	if ref == "" && len(node.Dependencies) > 0 {
		ref = node.Dependencies[len(node.Dependencies)-1]
	}
	if ref == "" {
		return nil, false, nil
	}
	v, err := ec.Get(ref)
	return v, true, err
}

// FormatValue renders a value for display: strings as is, everything else as
// compact JSON.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "None"
	case string:
		return x
	case []byte:
		return string(x)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return strings.TrimSpace(string(data))
}
