package frame

import (
	"fmt"

	"github.com/zeebo/xxh3"
)

// Projection names a source column and the name it takes in the output.
type Projection struct {
	Name  string
	Alias string
}

// Col starts a projection of the named column.
func Col(name string) Projection { return Projection{Name: name, Alias: name} }

// As renames the projected column.
func (p Projection) As(alias string) Projection {
	p.Alias = alias
	return p
}

// Select projects the named columns, in the given order.
func (f *Frame) Select(names ...string) (*Frame, error) {
	proj := make([]Projection, len(names))
	for i, n := range names {
		proj[i] = Col(n)
	}
	return f.SelectAs(proj...)
}

// SelectAs projects and optionally renames columns.
func (f *Frame) SelectAs(proj ...Projection) (*Frame, error) {
	cols := make([]Column, 0, len(proj))
	for _, p := range proj {
		c, ok := f.ColumnByName(p.Name)
		if !ok {
			return nil, fmt.Errorf("select: unknown column: %s", p.Name)
		}
		cols = append(cols, c.Take(p.Alias, nil))
	}
	out, err := FromColumns(cols...)
	if err != nil {
		return nil, fmt.Errorf("select: %w", err)
	}
	out.nrows = f.nrows
	return out, nil
}

// Take returns a new frame holding the rows at idx, in that order.
func (f *Frame) Take(idx []int) *Frame {
	out := &Frame{schema: Schema{Columns: append([]ColumnSchema(nil), f.schema.Columns...)}, index: make(map[string]int, len(f.cols))}
	for i, c := range f.cols {
		out.cols = append(out.cols, c.Take(c.Name(), idx))
		out.index[c.Name()] = i
	}
	if idx == nil {
		out.nrows = f.nrows
	} else {
		out.nrows = len(idx)
	}
	return out
}

// Filter keeps the rows for which keep returns true, preserving order.
func (f *Frame) Filter(keep func(row int) bool) *Frame {
	idx := make([]int, 0, f.nrows)
	for i := 0; i < f.nrows; i++ {
		if keep(i) {
			idx = append(idx, i)
		}
	}
	return f.Take(idx)
}

// Distinct removes exact duplicate rows over every column. Nulls compare
// equal to each other. The first occurrence of each row is kept.
func (f *Frame) Distinct() *Frame {
	seen := make(map[xxh3.Uint128][]int, f.nrows)
	enc := &rowEncoder{}
	idx := make([]int, 0, f.nrows)
	for i := 0; i < f.nrows; i++ {
		enc.reset()
		for _, c := range f.cols {
			enc.add(c, i)
		}
		h := enc.sum()
		if f.seenRow(seen[h], i) {
			continue
		}
		seen[h] = append(seen[h], i)
		idx = append(idx, i)
	}
	return f.Take(idx)
}

// seenRow reports whether row i equals any of the kept rows.
func (f *Frame) seenRow(kept []int, i int) bool {
	for _, j := range kept {
		if rowsEqual(f.cols, i, j) {
			return true
		}
	}
	return false
}

// On pairs a left column with a right column in an equi-join condition.
type On struct {
	Left  string
	Right string
}

// Eq is shorthand for an On condition.
func Eq(left, right string) On { return On{Left: left, Right: right} }

// InnerJoin matches every row of f with every row of right whose key columns
// are equal. Null keys never match. Right key columns that share their name
// with the left key are dropped from the output; any other name clash is an
// error. Output rows follow left order, then right order.
func (f *Frame) InnerJoin(right *Frame, on ...On) (*Frame, error) {
	if len(on) == 0 {
		return nil, fmt.Errorf("join: no join condition")
	}
	lk := make([]Column, len(on))
	rk := make([]Column, len(on))
	using := make(map[string]struct{})
	for i, cond := range on {
		l, ok := f.ColumnByName(cond.Left)
		if !ok {
			return nil, fmt.Errorf("join: unknown left column: %s", cond.Left)
		}
		r, ok := right.ColumnByName(cond.Right)
		if !ok {
			return nil, fmt.Errorf("join: unknown right column: %s", cond.Right)
		}
		lk[i], rk[i] = l, r
		if cond.Left == cond.Right {
			using[cond.Right] = struct{}{}
		}
	}
	for _, c := range right.cols {
		if _, skip := using[c.Name()]; skip {
			continue
		}
		if _, clash := f.index[c.Name()]; clash {
			return nil, fmt.Errorf("join: ambiguous column: %s", c.Name())
		}
	}

	enc := &rowEncoder{numeric: true}
	table := make(map[xxh3.Uint128][]int, right.nrows)
	for j := 0; j < right.nrows; j++ {
		if hasNull(rk, j) {
			continue
		}
		enc.reset()
		for _, c := range rk {
			enc.add(c, j)
		}
		h := enc.sum()
		table[h] = append(table[h], j)
	}

	var li, ri []int
	for i := 0; i < f.nrows; i++ {
		if hasNull(lk, i) {
			continue
		}
		enc.reset()
		for _, c := range lk {
			enc.add(c, i)
		}
		for _, j := range table[enc.sum()] {
			if keysEqual(lk, i, rk, j) {
				li = append(li, i)
				ri = append(ri, j)
			}
		}
	}
	if li == nil {
		li, ri = []int{}, []int{}
	}

	cols := make([]Column, 0, len(f.cols)+len(right.cols))
	for _, c := range f.cols {
		cols = append(cols, c.Take(c.Name(), li))
	}
	for _, c := range right.cols {
		if _, skip := using[c.Name()]; skip {
			continue
		}
		cols = append(cols, c.Take(c.Name(), ri))
	}
	out, err := FromColumns(cols...)
	if err != nil {
		return nil, fmt.Errorf("join: %w", err)
	}
	return out, nil
}

func keysEqual(lk []Column, i int, rk []Column, j int) bool {
	for n := range lk {
		if !cellsEqual(lk[n], i, rk[n], j) {
			return false
		}
	}
	return true
}

// Concat stacks frames that share a schema, in argument order.
func Concat(frames ...*Frame) (*Frame, error) {
	if len(frames) == 0 {
		return NewFrame(Schema{})
	}
	s := frames[0].Schema()
	out, err := NewFrame(Schema{Columns: append([]ColumnSchema(nil), s.Columns...)})
	if err != nil {
		return nil, fmt.Errorf("concat: %w", err)
	}
	for n, f := range frames {
		if !sameShape(s, f.Schema()) {
			return nil, fmt.Errorf("concat: frame %d schema %v does not match %v", n, f.Schema().Names(), s.Names())
		}
		for i := 0; i < f.nrows; i++ {
			out.AppendNullRow()
			for c, col := range f.cols {
				if err := out.SetCell(out.nrows-1, s.Columns[c].Name, col.Value(i)); err != nil {
					return nil, fmt.Errorf("concat: %w", err)
				}
			}
		}
	}
	return out, nil
}

func sameShape(a, b Schema) bool {
	if len(a.Columns) != len(b.Columns) {
		return false
	}
	for i := range a.Columns {
		if a.Columns[i].Name != b.Columns[i].Name || a.Columns[i].Type != b.Columns[i].Type {
			return false
		}
	}
	return true
}
