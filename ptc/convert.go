package ptc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// record is a dict whose string keys can also be read as attributes, so
// both info["cpu_percent"] and info.cpu_percent work on tool results.
type record struct {
	*starlark.Dict
}

var (
	_ starlark.HasAttrs        = record{}
	_ starlark.IterableMapping = record{}
)

func (r record) Attr(name string) (starlark.Value, error) {
	if v, found, _ := r.Dict.Get(starlark.String(name)); found {
		return v, nil
	}
	return r.Dict.Attr(name)
}

func (r record) AttrNames() []string {
	names := r.Dict.AttrNames()
	for _, k := range r.Dict.Keys() {
		if s, ok := k.(starlark.String); ok {
			names = append(names, string(s))
		}
	}
	return names
}

func (r record) CompareSameType(op syntax.Token, y starlark.Value, depth int) (bool, error) {
	switch other := y.(type) {
	case record:
		return r.Dict.CompareSameType(op, other.Dict, depth)
	case *starlark.Dict:
		return r.Dict.CompareSameType(op, other, depth)
	}
	return false, fmt.Errorf("cannot compare dict with %s", y.Type())
}

// toStarlark converts a Go value to a Starlark value. Values that are not
// plain JSON types go through their JSON encoding.
func toStarlark(v any) (starlark.Value, error) {
	switch x := v.(type) {
	case nil:
		return starlark.None, nil
	case starlark.Value:
		return x, nil
	case bool:
		return starlark.Bool(x), nil
	case string:
		return starlark.String(x), nil
	case int:
		return starlark.MakeInt(x), nil
	case int64:
		return starlark.MakeInt64(x), nil
	case uint64:
		return starlark.MakeUint64(x), nil
	case float64:
		return starlark.Float(x), nil
	case float32:
		return starlark.Float(x), nil
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return starlark.MakeInt64(i), nil
		}
		f, err := x.Float64()
		if err != nil {
			return nil, err
		}
		return starlark.Float(f), nil
	case []any:
		elems := make([]starlark.Value, len(x))
		for i, e := range x {
			sv, err := toStarlark(e)
			if err != nil {
				return nil, err
			}
			elems[i] = sv
		}
		return starlark.NewList(elems), nil
	case map[string]any:
		d := starlark.NewDict(len(x))
		for _, k := range sortedKeys(x) {
			sv, err := toStarlark(x[k])
			if err != nil {
				return nil, err
			}
			if err := d.SetKey(starlark.String(k), sv); err != nil {
				return nil, err
			}
		}
		return record{d}, nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32:
		return starlark.MakeInt64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return starlark.MakeUint64(rv.Uint()), nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("cannot convert %T: %w", v, err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	return toStarlark(generic)
}

// fromStarlark converts a Starlark value to plain Go values.
func fromStarlark(v starlark.Value) (any, error) {
	switch x := v.(type) {
	case nil, starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(x), nil
	case starlark.String:
		return string(x), nil
	case starlark.Int:
		if i, ok := x.Int64(); ok {
			return i, nil
		}
		return new(big.Int).Set(x.BigInt()), nil
	case starlark.Float:
		return float64(x), nil
	case record:
		return dictToGo(x.Dict)
	case *starlark.Dict:
		return dictToGo(x)
	case starlark.Iterable:
		var out []any
		iter := x.Iterate()
		defer iter.Done()
		var elem starlark.Value
		for iter.Next(&elem) {
			g, err := fromStarlark(elem)
			if err != nil {
				return nil, err
			}
			out = append(out, g)
		}
		if out == nil {
			out = []any{}
		}
		return out, nil
	}
	return v.String(), nil
}

func dictToGo(d *starlark.Dict) (map[string]any, error) {
	out := make(map[string]any, d.Len())
	for _, item := range d.Items() {
		key, ok := starlark.AsString(item[0])
		if !ok {
			key = item[0].String()
		}
		g, err := fromStarlark(item[1])
		if err != nil {
			return nil, err
		}
		out[key] = g
	}
	return out, nil
}
