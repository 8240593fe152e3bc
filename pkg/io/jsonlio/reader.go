// Package jsonlio loads newline-delimited JSON objects into Frames.
package jsonlio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	fr "github.com/wdm0006/songlake/pkg/frame"
	iox "github.com/wdm0006/songlake/pkg/io/ioutils"
	"github.com/wdm0006/songlake/pkg/store"
)

var (
	// ErrNoInput means a glob matched no objects.
	ErrNoInput = errors.New("no input files")
	// ErrParse means an object held something other than a stream of JSON objects.
	ErrParse = errors.New("malformed JSON input")
)

type Options struct {
	// Workers bounds concurrent object reads; <= 0 means GOMAXPROCS.
	Workers int
}

// Load reads every object matching pattern and returns them as one Frame.
// The schema is inferred over all records; rows follow sorted key order.
func Load(ctx context.Context, st store.Store, pattern string, opt Options) (*fr.Frame, error) {
	keys, err := st.Glob(ctx, pattern)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: %s/%s", ErrNoInput, st, pattern)
	}
	workers := opt.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	perKey := make([][]map[string]any, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, key := range keys {
		g.Go(func() error {
			recs, err := readObject(gctx, st, key)
			if err != nil {
				return err
			}
			perKey[i] = recs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var n int
	for _, recs := range perKey {
		n += len(recs)
	}
	all := make([]map[string]any, 0, n)
	for _, recs := range perKey {
		all = append(all, recs...)
	}
	return Build(InferSchema(all), all)
}

func readObject(ctx context.Context, st store.Store, key string) ([]map[string]any, error) {
	rc, err := st.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	r, err := iox.Decompress(rc, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrParse, key, err)
	}
	defer func() { _ = r.Close() }()
	recs, err := Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrParse, key, err)
	}
	return recs, nil
}

// Decode reads a stream of JSON objects, one per line or concatenated.
// Numbers are kept as json.Number so integers and floats can be told apart.
func Decode(r io.Reader) ([]map[string]any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var out []map[string]any
	for n := 1; ; n++ {
		var m map[string]any
		if err := dec.Decode(&m); err != nil {
			if err == io.EOF {
				return out, nil
			}
			return nil, fmt.Errorf("record %d: %w", n, err)
		}
		if m == nil {
			return nil, fmt.Errorf("record %d: null is not an object", n)
		}
		out = append(out, m)
	}
}

// InferSchema unions the fields of recs, sorted by name.
func InferSchema(recs []map[string]any) fr.Schema {
	kinds := map[string]fr.Kind{}
	for _, m := range recs {
		for k, v := range m {
			kinds[k] = merge(kinds[k], kindOf(v))
		}
	}
	names := make([]string, 0, len(kinds))
	for k := range kinds {
		names = append(names, k)
	}
	sort.Strings(names)
	schema := fr.Schema{Columns: make([]fr.ColumnSchema, len(names))}
	for i, k := range names {
		kind := kinds[k]
		if kind == fr.KindInvalid {
			kind = fr.KindString
		}
		schema.Columns[i] = fr.ColumnSchema{Name: k, Type: kind, Nullable: true}
	}
	return schema
}

func kindOf(v any) fr.Kind {
	switch t := v.(type) {
	case nil:
		return fr.KindInvalid
	case bool:
		return fr.KindBool
	case string:
		return fr.KindString
	case json.Number:
		if isIntegral(t) {
			return fr.KindInt
		}
		return fr.KindFloat
	default:
		return fr.KindString
	}
}

func isIntegral(n json.Number) bool {
	if strings.ContainsAny(n.String(), ".eE") {
		return false
	}
	_, err := n.Int64()
	return err == nil
}

// merge widens two observed kinds; KindInvalid means "only nulls so far".
func merge(a, b fr.Kind) fr.Kind {
	switch {
	case a == fr.KindInvalid:
		return b
	case b == fr.KindInvalid, a == b:
		return a
	case (a == fr.KindInt && b == fr.KindFloat) || (a == fr.KindFloat && b == fr.KindInt):
		return fr.KindFloat
	default:
		return fr.KindString
	}
}

// Build materializes recs under schema. Fields outside the schema are ignored.
func Build(schema fr.Schema, recs []map[string]any) (*fr.Frame, error) {
	f, err := fr.NewFrame(schema)
	if err != nil {
		return nil, err
	}
	for _, m := range recs {
		f.AppendNullRow()
		if err := setRowFromMap(f, f.Rows()-1, m); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func setRowFromMap(f *fr.Frame, row int, m map[string]any) error {
	for _, cs := range f.Schema().Columns {
		v, ok := m[cs.Name]
		if !ok || v == nil {
			continue
		}
		var cell any
		switch cs.Type {
		case fr.KindInt:
			n, ok := v.(json.Number)
			if !ok {
				return fmt.Errorf("%w: field %s: %T in integer column", ErrParse, cs.Name, v)
			}
			x, err := n.Int64()
			if err != nil {
				return fmt.Errorf("%w: field %s: %v", ErrParse, cs.Name, err)
			}
			cell = x
		case fr.KindFloat:
			n, ok := v.(json.Number)
			if !ok {
				return fmt.Errorf("%w: field %s: %T in float column", ErrParse, cs.Name, v)
			}
			x, err := n.Float64()
			if err != nil {
				return fmt.Errorf("%w: field %s: %v", ErrParse, cs.Name, err)
			}
			cell = x
		case fr.KindBool:
			b, ok := v.(bool)
			if !ok {
				return fmt.Errorf("%w: field %s: %T in bool column", ErrParse, cs.Name, v)
			}
			cell = b
		default:
			switch t := v.(type) {
			case string:
				cell = t
			case json.Number:
				cell = t.String()
			default:
				// Booleans and nested objects or arrays in a string column
				// keep their JSON text.
				b, err := json.Marshal(t)
				if err != nil {
					return fmt.Errorf("%w: field %s: %v", ErrParse, cs.Name, err)
				}
				cell = string(b)
			}
		}
		if err := f.SetCell(row, cs.Name, cell); err != nil {
			return err
		}
	}
	return nil
}
