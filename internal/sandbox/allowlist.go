package sandbox

import (
	"fmt"
	"math"
	"sort"

	"github.com/wonhochoi1/nature/internal/engine/lib"
	starjson "go.starlark.net/lib/json"
	starmath "go.starlark.net/lib/math"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Core builtins code may call. Anything in starlark's universe that is not
// listed here (getattr, dir, hash, bytes, ...) is unreachable.
var coreNames = []string{
	"None", "True", "False",
	"abs", "all", "any", "bool", "chr", "dict", "enumerate", "fail", "float",
	"hasattr", "int", "len", "list", "max", "min", "ord", "print", "range",
	"repr", "reversed", "set", "sorted", "str", "tuple", "type", "zip",
}

var allowList = buildAllowList()

func buildAllowList() starlark.StringDict {
	table := make(starlark.StringDict, len(coreNames)+16)
	for _, name := range coreNames {
		if v, ok := starlark.Universe[name]; ok {
			table[name] = v
		}
	}

	table["math"] = starmath.Module
	table["json"] = starjson.Module

	table["sum"] = starlark.NewBuiltin("sum", builtinSum)
	table["round"] = starlark.NewBuiltin("round", builtinRound)
	table["mean"] = starlark.NewBuiltin("mean", numericList("mean", lib.Mean))
	table["clamp"] = starlark.NewBuiltin("clamp", builtinClamp)
	table["percent"] = starlark.NewBuiltin("percent", builtinPercent)
	table["pad_left"] = starlark.NewBuiltin("pad_left", padding(lib.PadLeft))
	table["pad_right"] = starlark.NewBuiltin("pad_right", padding(lib.PadRight))
	table["coalesce"] = starlark.NewBuiltin("coalesce", builtinCoalesce)
	return table
}

// Names lists every allow-listed name, sorted.
func Names() []string {
	names := make([]string, 0, len(allowList))
	for name := range allowList {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func builtinSum(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		iterable starlark.Iterable
		start    starlark.Value = starlark.MakeInt(0)
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "iterable", &iterable, "start?", &start); err != nil {
		return nil, err
	}

	acc := start
	iter := iterable.Iterate()
	defer iter.Done()
	var x starlark.Value
	for iter.Next(&x) {
		next, err := starlark.Binary(syntax.PLUS, acc, x)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		acc = next
	}
	return acc, nil
}

func builtinRound(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		x       starlark.Value
		ndigits starlark.Value = starlark.None
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "number", &x, "ndigits?", &ndigits); err != nil {
		return nil, err
	}
	f, ok := starlark.AsFloat(x)
	if !ok {
		return nil, fmt.Errorf("%s: got %s, want number", b.Name(), x.Type())
	}
	if ndigits == starlark.None {
		return starlark.MakeInt64(int64(math.RoundToEven(f))), nil
	}
	var digits int
	if err := starlark.AsInt(ndigits, &digits); err != nil {
		return nil, fmt.Errorf("%s: ndigits: %w", b.Name(), err)
	}
	return starlark.Float(lib.Round(f, digits)), nil
}

func builtinClamp(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x, lo, hi starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 3, &x, &lo, &hi); err != nil {
		return nil, err
	}
	return starlark.Float(lib.Clamp(scalar(x), scalar(lo), scalar(hi))), nil
}

func builtinPercent(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var value, total starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &value, &total); err != nil {
		return nil, err
	}
	return starlark.Float(lib.Percent(scalar(value), scalar(total))), nil
}

func builtinCoalesce(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, _ []starlark.Tuple) (starlark.Value, error) {
	for _, arg := range args {
		if arg != starlark.None {
			return arg, nil
		}
	}
	return starlark.None, nil
}

// scalar converts a numeric argument. Containers are not numbers.
func scalar(v starlark.Value) any {
	out, err := FromValue(v)
	if err != nil {
		return nil
	}
	return out
}

type builtinFunc = func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error)

func numericList(name string, fn func([]any) float64) builtinFunc {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var iterable starlark.Iterable
		if err := starlark.UnpackPositionalArgs(name, args, kwargs, 1, &iterable); err != nil {
			return nil, err
		}
		converted, err := FromValue(iterable)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		values, _ := converted.([]any)
		return starlark.Float(fn(values)), nil
	}
}

func padding(fn func(any, int, string) string) builtinFunc {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var (
			value  starlark.Value
			length int
			pad    = " "
		)
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "value", &value, "length", &length, "pad?", &pad); err != nil {
			return nil, err
		}
		s, ok := starlark.AsString(value)
		if !ok {
			s = value.String()
		}
		return starlark.String(fn(s, length, pad)), nil
	}
}
