package engine

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/wonhochoi1/nature/internal/engine/ir"
	"github.com/wonhochoi1/nature/internal/engine/lib"
	"github.com/wonhochoi1/nature/internal/sandbox"
)

// Transform types understood by DataTransform nodes.
const (
	TransformFilter     = "filter"
	TransformMap        = "map"
	TransformSort       = "sort"
	TransformGroupBy    = "groupby"
	TransformAggregate  = "aggregate"
	TransformExpression = "expression"
)

// helpers are the functions expressions may call besides expr's builtins.
var helpers = map[string]any{
	"roundTo":    lib.Round,
	"clamp":      lib.Clamp,
	"percent":    lib.Percent,
	"text":       lib.Text,
	"left":       lib.Left,
	"padLeft":    lib.PadLeft,
	"padRight":   lib.PadRight,
	"reverseStr": lib.Reverse,
	"coalesce":   lib.Coalesce,
	"truthy":     lib.IsTruthy,
}

func (d *Dispatcher) executeTransform(ec *ExecutionContext, node ir.Node, details ir.DataTransform) (any, error) {
	input, _, err := inputOf(ec, node, details.InputRef)
	if err != nil {
		return nil, err
	}
	base := transformEnv(ec, input)

	switch details.TransformType {
	case TransformExpression:
		program, err := compileArg(details.Args, "expr", base)
		if err != nil {
			return nil, err
		}
		return runProgram(program, base)

	case TransformFilter, TransformMap:
		rows, err := asRows(input)
		if err != nil {
			return nil, err
		}
		program, err := compileArg(details.Args, "expr", rowEnv(base, firstRow(rows), 0))
		if err != nil {
			return nil, err
		}
		out := make([]any, 0, len(rows))
		for i, row := range rows {
			v, err := runProgram(program, rowEnv(base, row, i))
			if err != nil {
				return nil, err
			}
			switch {
			case details.TransformType == TransformMap:
				out = append(out, v)
			case lib.IsTruthy(v):
				out = append(out, row)
			}
		}
		return out, nil

	case TransformSort:
		rows, err := asRows(input)
		if err != nil {
			return nil, err
		}
		keys, err := rowKeys(details.Args, base, rows)
		if err != nil {
			return nil, err
		}
		desc := lib.IsTruthy(details.Args["desc"])
		idx := make([]int, len(rows))
		for i := range idx {
			idx[i] = i
		}
		sort.SliceStable(idx, func(a, b int) bool {
			c := lib.Compare(keys[idx[a]], keys[idx[b]])
			if desc {
				return c > 0
			}
			return c < 0
		})
		out := make([]any, len(rows))
		for i, j := range idx {
			out[i] = rows[j]
		}
		return out, nil

	case TransformGroupBy:
		rows, err := asRows(input)
		if err != nil {
			return nil, err
		}
		keys, err := rowKeys(details.Args, base, rows)
		if err != nil {
			return nil, err
		}
		return groupRows(details.Args, rows, keys)

	case TransformAggregate:
		rows, err := asRows(input)
		if err != nil {
			return nil, err
		}
		op, _ := details.Args["op"].(string)
		field, _ := details.Args["field"].(string)
		return aggregate(op, project(rows, field))

	default:
		return nil, fmt.Errorf("unsupported transform type %q", details.TransformType)
	}
}

// transformEnv exposes the input, the helpers and every context value whose
// key is an identifier.
func transformEnv(ec *ExecutionContext, input any) map[string]any {
	env := make(map[string]any)
	for k, v := range ec.Snapshot() {
		if sandbox.IsIdentifier(k) {
			env[k] = v
		}
	}
	for k, v := range helpers {
		env[k] = v
	}
	env["input"] = input
	return env
}

func rowEnv(base map[string]any, row any, index int) map[string]any {
	env := make(map[string]any, len(base)+2)
	for k, v := range base {
		env[k] = v
	}
	env["row"] = row
	env["index"] = index
	return env
}

func compileArg(args map[string]any, name string, env map[string]any) (*vm.Program, error) {
	src, _ := args[name].(string)
	if src == "" {
		return nil, fmt.Errorf("transform needs args.%s", name)
	}
	program, err := expr.Compile(src, expr.Env(env), expr.AsAny())
	if err != nil {
		return nil, fmt.Errorf("failed to compile %q: %w", src, err)
	}
	return program, nil
}

func runProgram(program *vm.Program, env map[string]any) (any, error) {
	out, err := expr.Run(program, env)
	if err != nil {
		return nil, fmt.Errorf("expression failed: %w", err)
	}
	return out, nil
}

// rowKeys evaluates args.key (an expression) or reads args.field for every row.
func rowKeys(args map[string]any, base map[string]any, rows []any) ([]any, error) {
	if field, ok := args["field"].(string); ok && field != "" {
		return project(rows, field), nil
	}
	if _, ok := args["key"].(string); !ok {
		return rows, nil
	}
	program, err := compileArg(args, "key", rowEnv(base, firstRow(rows), 0))
	if err != nil {
		return nil, err
	}
	keys := make([]any, len(rows))
	for i, row := range rows {
		if keys[i], err = runProgram(program, rowEnv(base, row, i)); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

// groupRows keeps groups in order of first appearance. With args.op each
// group is reduced over args.field, otherwise it carries its rows.
func groupRows(args map[string]any, rows, keys []any) (any, error) {
	type group struct {
		key  any
		rows []any
	}
	var groups []*group
	index := make(map[string]*group)
	for i, row := range rows {
		id := fmt.Sprintf("%T:%v", keys[i], keys[i])
		g, ok := index[id]
		if !ok {
			g = &group{key: keys[i]}
			index[id] = g
			groups = append(groups, g)
		}
		g.rows = append(g.rows, row)
	}

	op, _ := args["op"].(string)
	value, _ := args["value"].(string)
	out := make([]any, 0, len(groups))
	for _, g := range groups {
		if op == "" {
			out = append(out, map[string]any{"key": g.key, "rows": g.rows})
			continue
		}
		v, err := aggregate(op, project(g.rows, value))
		if err != nil {
			return nil, err
		}
		out = append(out, map[string]any{"key": g.key, "value": v})
	}
	return out, nil
}

func aggregate(op string, values []any) (any, error) {
	switch op {
	case "sum":
		return lib.Sum(values), nil
	case "mean", "avg":
		return lib.Mean(values), nil
	case "min":
		if v, ok := lib.MinOf(values); ok {
			return v, nil
		}
		return nil, nil
	case "max":
		if v, ok := lib.MaxOf(values); ok {
			return v, nil
		}
		return nil, nil
	case "count":
		return len(values), nil
	default:
		return nil, fmt.Errorf("unsupported aggregate %q", op)
	}
}

// project reads field from every map row; with no field the rows themselves
// are the values.
func project(rows []any, field string) []any {
	if field == "" {
		return rows
	}
	out := make([]any, len(rows))
	for i, row := range rows {
		if m, ok := row.(map[string]any); ok {
			out[i] = m[field]
		}
	}
	return out
}

func firstRow(rows []any) any {
	if len(rows) == 0 {
		return map[string]any{}
	}
	return rows[0]
}

func asRows(v any) ([]any, error) {
	switch rows := v.(type) {
	case nil:
		return []any{}, nil
	case []any:
		return rows, nil
	case []map[string]any:
		out := make([]any, len(rows))
		for i, r := range rows {
			out[i] = r
		}
		return out, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("transform input must be a list, got %T", v)
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}
