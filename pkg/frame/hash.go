package frame

import (
	"encoding/binary"
	"math"

	"github.com/zeebo/xxh3"
)

const (
	tagNull byte = iota
	tagBool
	tagInt
	tagFloat
	tagNumber
	tagString
	tagTime
)

// rowEncoder builds a canonical byte encoding of a set of cells so rows can
// be hashed. The buffer is reused between rows.
type rowEncoder struct {
	buf []byte
	// numeric collapses Int and Float cells into one float64 encoding so that
	// 200 and 200.0 hash alike, which is what join keys need.
	numeric bool
}

func (e *rowEncoder) reset() { e.buf = e.buf[:0] }

func (e *rowEncoder) add(c Column, i int) {
	if c.IsNull(i) {
		e.buf = append(e.buf, tagNull)
		return
	}
	switch col := c.(type) {
	case *BoolColumn:
		v, _ := col.Get(i)
		b := byte(0)
		if v {
			b = 1
		}
		e.buf = append(e.buf, tagBool, b)
	case *IntColumn:
		v, _ := col.Get(i)
		if e.numeric {
			e.addFloat(tagNumber, float64(v))
			return
		}
		e.buf = append(e.buf, tagInt)
		e.buf = binary.LittleEndian.AppendUint64(e.buf, uint64(v))
	case *FloatColumn:
		v, _ := col.Get(i)
		tag := tagFloat
		if e.numeric {
			tag = tagNumber
		}
		e.addFloat(tag, v)
	case *StringColumn:
		v, _ := col.Get(i)
		e.buf = append(e.buf, tagString)
		e.buf = binary.AppendUvarint(e.buf, uint64(len(v)))
		e.buf = append(e.buf, v...)
	case *TimeColumn:
		v, _ := col.Get(i)
		e.buf = append(e.buf, tagTime)
		e.buf = binary.LittleEndian.AppendUint64(e.buf, uint64(v.UnixNano()))
	}
}

// addFloat normalizes -0 and NaN so equal values encode equally.
func (e *rowEncoder) addFloat(tag byte, v float64) {
	switch {
	case v == 0:
		v = 0
	case math.IsNaN(v):
		v = math.NaN()
	}
	e.buf = append(e.buf, tag)
	e.buf = binary.LittleEndian.AppendUint64(e.buf, math.Float64bits(v))
}

// hashRow is swapped in tests to force collisions.
var hashRow = xxh3.Hash128

func (e *rowEncoder) sum() xxh3.Uint128 { return hashRow(e.buf) }

// hasNull reports whether any of cols is null at row i.
func hasNull(cols []Column, i int) bool {
	for _, c := range cols {
		if c.IsNull(i) {
			return true
		}
	}
	return false
}

// rowsEqual compares rows i and j of the same columns with Distinct's
// semantics: nulls equal each other, as do NaNs, and 0 equals -0.
func rowsEqual(cols []Column, i, j int) bool {
	for _, c := range cols {
		ni, nj := c.IsNull(i), c.IsNull(j)
		if ni || nj {
			if ni != nj {
				return false
			}
			continue
		}
		switch col := c.(type) {
		case *IntColumn:
			a, _ := col.Get(i)
			b, _ := col.Get(j)
			if a != b {
				return false
			}
		case *FloatColumn:
			a, _ := col.Get(i)
			b, _ := col.Get(j)
			if a != b && !(math.IsNaN(a) && math.IsNaN(b)) {
				return false
			}
		default:
			if !cellsEqual(c, i, c, j) {
				return false
			}
		}
	}
	return true
}

// cellsEqual compares two non-null cells, treating Int and Float numerically.
func cellsEqual(a Column, i int, b Column, j int) bool {
	av, bv := a.Value(i), b.Value(j)
	if af, ok := asFloat(av); ok {
		bf, ok := asFloat(bv)
		return ok && af == bf
	}
	switch x := av.(type) {
	case bool:
		y, ok := bv.(bool)
		return ok && x == y
	case string:
		y, ok := bv.(string)
		return ok && x == y
	default:
		ta, okA := av.(interface{ UnixNano() int64 })
		tb, okB := bv.(interface{ UnixNano() int64 })
		return okA && okB && ta.UnixNano() == tb.UnixNano()
	}
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int64:
		return float64(t), true
	case float64:
		return t, true
	}
	return 0, false
}
