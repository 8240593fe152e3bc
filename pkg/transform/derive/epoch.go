// Package derive adds columns computed from existing ones.
package derive

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	fr "github.com/wdm0006/songlake/pkg/frame"
)

// ErrDerive reports a cell that a derivation could not compute. Affected rows
// are never dropped or null-filled; the whole transform fails.
var ErrDerive = errors.New("derivation failed")

// EpochMillis converts an epoch-millisecond column into a UTC timestamp
// truncated to whole seconds.
type EpochMillis struct {
	From string
	To   string
}

func (t *EpochMillis) Name() string { return "epoch_millis" }

func (t *EpochMillis) Apply(ctx context.Context, f *fr.Frame) (*fr.Frame, error) {
	col, ok := f.ColumnByName(t.From)
	if !ok {
		return nil, fmt.Errorf("%w: column %s is missing", ErrDerive, t.From)
	}
	out := fr.NewTimeColumn(t.To, col.Len())
	for i := 0; i < col.Len(); i++ {
		ms, err := millis(col, i)
		if err != nil {
			return nil, fmt.Errorf("%w: %s at row %d: %v", ErrDerive, t.From, i, err)
		}
		out.Set(i, time.Unix(floorDiv(ms, 1000), 0).UTC())
	}
	res := f.Take(nil)
	if err := res.AddColumn(out); err != nil {
		return nil, err
	}
	return res, nil
}

func millis(col fr.Column, i int) (int64, error) {
	if col.IsNull(i) {
		return 0, errors.New("null value")
	}
	switch c := col.(type) {
	case *fr.IntColumn:
		v, _ := c.Get(i)
		return v, nil
	case *fr.FloatColumn:
		v, _ := c.Get(i)
		if math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) > math.MaxInt64/2 {
			return 0, fmt.Errorf("value %v out of range", v)
		}
		return int64(math.Floor(v)), nil
	default:
		return 0, fmt.Errorf("%s value %v is not numeric", col.Kind(), col.Value(i))
	}
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
