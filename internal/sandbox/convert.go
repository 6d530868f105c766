package sandbox

import (
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"sort"
	"time"

	"go.starlark.net/starlark"
)

// ToValue converts a Go value from the execution context into a starlark value.
func ToValue(v any) (starlark.Value, error) {
	return toValue(v, 0)
}

func toValue(v any, depth int) (starlark.Value, error) {
	if depth > maxDepth {
		return nil, ErrTooDeep
	}
	switch x := v.(type) {
	case nil:
		return starlark.None, nil
	case starlark.Value:
		return x, nil
	case bool:
		return starlark.Bool(x), nil
	case int:
		return starlark.MakeInt(x), nil
	case int8:
		return starlark.MakeInt64(int64(x)), nil
	case int16:
		return starlark.MakeInt64(int64(x)), nil
	case int32:
		return starlark.MakeInt64(int64(x)), nil
	case int64:
		return starlark.MakeInt64(x), nil
	case uint:
		return starlark.MakeUint64(uint64(x)), nil
	case uint8:
		return starlark.MakeUint64(uint64(x)), nil
	case uint16:
		return starlark.MakeUint64(uint64(x)), nil
	case uint32:
		return starlark.MakeUint64(uint64(x)), nil
	case uint64:
		return starlark.MakeUint64(x), nil
	case float32:
		return starlark.Float(x), nil
	case float64:
		return starlark.Float(x), nil
	case string:
		return starlark.String(x), nil
	case []byte:
		return starlark.String(x), nil
	case time.Time:
		return starlark.String(x.Format(time.RFC3339Nano)), nil
	case []any:
		return toList(len(x), depth, func(i int) any { return x[i] })
	case []map[string]any:
		return toList(len(x), depth, func(i int) any { return x[i] })
	case map[string]any:
		return toDict(x, depth)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return toList(rv.Len(), depth, func(i int) any { return rv.Index(i).Interface() })
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		return toDict(m, depth)
	case reflect.Ptr:
		if rv.IsNil() {
			return starlark.None, nil
		}
		return toValue(rv.Elem().Interface(), depth+1)
	}
	return starlark.String(fmt.Sprintf("%v", v)), nil
}

func toList(n, depth int, at func(int) any) (starlark.Value, error) {
	elems := make([]starlark.Value, 0, n)
	for i := 0; i < n; i++ {
		elem, err := toValue(at(i), depth+1)
		if err != nil {
			return nil, err
		}
		elems = append(elems, elem)
	}
	return starlark.NewList(elems), nil
}

func toDict(m map[string]any, depth int) (starlark.Value, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	d := starlark.NewDict(len(m))
	for _, k := range keys {
		val, err := toValue(m[k], depth+1)
		if err != nil {
			return nil, err
		}
		if err := d.SetKey(starlark.String(k), val); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// maxDepth bounds how deeply nested a converted value may be.
const maxDepth = 1000

// ErrCycle is returned for a value that contains itself.
var ErrCycle = errors.New("value contains a cycle")

// ErrTooDeep is returned for a value nested deeper than maxDepth.
var ErrTooDeep = fmt.Errorf("value is nested deeper than %d levels", maxDepth)

// FromValue converts a starlark value back into plain Go data: nil, bool,
// int64, float64, string, []any and map[string]any.
func FromValue(v starlark.Value) (any, error) {
	c := &fromConverter{visiting: make(map[starlark.Value]bool)}
	return c.convert(v, 0)
}

type fromConverter struct {
	// visiting holds the mutable containers on the current path.
	visiting map[starlark.Value]bool
}

func (c *fromConverter) enter(v starlark.Value, depth int) error {
	if depth > maxDepth {
		return ErrTooDeep
	}
	if c.visiting[v] {
		return ErrCycle
	}
	c.visiting[v] = true
	return nil
}

func (c *fromConverter) convert(v starlark.Value, depth int) (any, error) {
	switch x := v.(type) {
	case nil, starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(x), nil
	case starlark.Int:
		if i, ok := x.Int64(); ok {
			return i, nil
		}
		f, _ := new(big.Float).SetInt(x.BigInt()).Float64()
		return f, nil
	case starlark.Float:
		return float64(x), nil
	case starlark.String:
		return string(x), nil
	case starlark.Bytes:
		return string(x), nil
	case *starlark.List:
		if err := c.enter(x, depth); err != nil {
			return nil, err
		}
		defer delete(c.visiting, x)
		return c.iterable(x, x.Len(), depth)
	case *starlark.Set:
		if err := c.enter(x, depth); err != nil {
			return nil, err
		}
		defer delete(c.visiting, x)
		return c.iterable(x, x.Len(), depth)
	case starlark.Tuple:
		// tuples are immutable, only their mutable elements can close a cycle
		if depth > maxDepth {
			return nil, ErrTooDeep
		}
		return c.iterable(x, x.Len(), depth)
	case *starlark.Dict:
		if err := c.enter(x, depth); err != nil {
			return nil, err
		}
		defer delete(c.visiting, x)
		out := make(map[string]any, x.Len())
		for _, item := range x.Items() {
			val, err := c.convert(item[1], depth+1)
			if err != nil {
				return nil, err
			}
			if s, ok := item[0].(starlark.String); ok {
				out[string(s)] = val
			} else {
				out[item[0].String()] = val
			}
		}
		return out, nil
	default:
		return v.String(), nil
	}
}

func (c *fromConverter) iterable(it starlark.Iterable, n, depth int) ([]any, error) {
	out := make([]any, 0, n)
	iter := it.Iterate()
	defer iter.Done()
	var elem starlark.Value
	for iter.Next(&elem) {
		val, err := c.convert(elem, depth+1)
		if err != nil {
			return nil, err
		}
		out = append(out, val)
	}
	return out, nil
}
