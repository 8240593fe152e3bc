package validate

import (
	"context"
	"fmt"

	fr "github.com/wdm0006/songlake/pkg/frame"
)

// NotNull fails when any of Columns is missing or holds a null cell.
type NotNull struct {
	Columns []string
}

func (t *NotNull) Name() string { return "validate_not_null" }

func (t *NotNull) Apply(ctx context.Context, f *fr.Frame) (*fr.Frame, error) {
	for _, name := range t.Columns {
		col, ok := f.ColumnByName(name)
		if !ok {
			return f, fmt.Errorf("validate_not_null: unknown column %s", name)
		}
		var bad, first int
		for i := 0; i < col.Len(); i++ {
			if col.IsNull(i) {
				if bad == 0 {
					first = i
				}
				bad++
			}
		}
		if bad > 0 {
			return f, fmt.Errorf("validate_not_null: column %s has %d null values (first at row %d)", name, bad, first)
		}
	}
	return f, nil
}
