// Package filter holds row-selecting transforms.
package filter

import (
	"context"
	"fmt"

	fr "github.com/wdm0006/songlake/pkg/frame"
)

// InSet keeps the rows whose string Column holds one of Values. Null cells
// never match.
type InSet struct {
	Column string
	Values map[string]struct{}
}

func NewInSet(col string, vals []string) *InSet {
	m := make(map[string]struct{}, len(vals))
	for _, v := range vals {
		m[v] = struct{}{}
	}
	return &InSet{Column: col, Values: m}
}

func (t *InSet) Name() string { return "filter_in" }

func (t *InSet) Apply(ctx context.Context, f *fr.Frame) (*fr.Frame, error) {
	col, ok := f.ColumnByName(t.Column)
	if !ok {
		return nil, fmt.Errorf("filter_in: unknown column %s", t.Column)
	}
	sc, ok := col.(*fr.StringColumn)
	if !ok {
		return nil, fmt.Errorf("filter_in: column %s is %s, want string", t.Column, col.Kind())
	}
	return f.Filter(func(i int) bool {
		v, ok := sc.Get(i)
		if !ok {
			return false
		}
		_, in := t.Values[v]
		return in
	}), nil
}
