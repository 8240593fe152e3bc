package derive

import (
	"context"
	"fmt"

	fr "github.com/wdm0006/songlake/pkg/frame"
)

// DateParts decomposes a timestamp column into calendar fields, all in UTC:
// year, month, week (ISO-8601), weekday (1=Sunday .. 7=Saturday), day (day of
// year) and hour.
type DateParts struct {
	From string
}

// DatePartColumns lists the columns DateParts adds, in order.
var DatePartColumns = []string{"year", "month", "week", "weekday", "day", "hour"}

func (t *DateParts) Name() string { return "date_parts" }

func (t *DateParts) Apply(ctx context.Context, f *fr.Frame) (*fr.Frame, error) {
	col, ok := f.ColumnByName(t.From)
	if !ok {
		return nil, fmt.Errorf("%w: column %s is missing", ErrDerive, t.From)
	}
	tc, ok := col.(*fr.TimeColumn)
	if !ok {
		return nil, fmt.Errorf("%w: column %s is %s, want time", ErrDerive, t.From, col.Kind())
	}
	n := tc.Len()
	parts := make([]*fr.IntColumn, len(DatePartColumns))
	for p, name := range DatePartColumns {
		parts[p] = fr.NewIntColumn(name, n)
	}
	for i := 0; i < n; i++ {
		v, ok := tc.Get(i)
		if !ok {
			return nil, fmt.Errorf("%w: %s at row %d: null value", ErrDerive, t.From, i)
		}
		v = v.UTC()
		_, week := v.ISOWeek()
		parts[0].Set(i, int64(v.Year()))
		parts[1].Set(i, int64(v.Month()))
		parts[2].Set(i, int64(week))
		parts[3].Set(i, int64(v.Weekday())+1)
		parts[4].Set(i, int64(v.YearDay()))
		parts[5].Set(i, int64(v.Hour()))
	}
	res := f.Take(nil)
	for _, c := range parts {
		if err := res.AddColumn(c); err != nil {
			return nil, err
		}
	}
	return res, nil
}
