// Package profile summarizes table contents for logging and verification.
package profile

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	fr "github.com/wdm0006/songlake/pkg/frame"
)

type NumStats struct {
	Min float64
	Max float64
	Sum float64
}

type TimeStats struct {
	Min time.Time
	Max time.Time
}

type ColumnProfile struct {
	Name  string
	Kind  fr.Kind
	Count int
	Nulls int
	Num   *NumStats
	Time  *TimeStats
}

// Report is the profile of one table.
type Report struct {
	Table   string
	Rows    int
	Columns []ColumnProfile
}

// Collector accumulates a Report over one or more frames of the same schema.
type Collector struct {
	report Report
	index  map[string]int
}

func NewCollector(table string, schema fr.Schema) *Collector {
	c := &Collector{report: Report{Table: table}, index: make(map[string]int)}
	c.report.Columns = make([]ColumnProfile, len(schema.Columns))
	for i, cs := range schema.Columns {
		cp := ColumnProfile{Name: cs.Name, Kind: cs.Type}
		switch cs.Type {
		case fr.KindFloat, fr.KindInt:
			cp.Num = &NumStats{Min: math.Inf(1), Max: math.Inf(-1)}
		case fr.KindTime:
			cp.Time = &TimeStats{}
		}
		c.report.Columns[i] = cp
		c.index[cs.Name] = i
	}
	return c
}

func (c *Collector) ConsumeFrame(f *fr.Frame) {
	c.report.Rows += f.Rows()
	for _, cs := range f.Schema().Columns {
		idx, ok := c.index[cs.Name]
		if !ok {
			continue
		}
		cp := &c.report.Columns[idx]
		col, _ := f.ColumnByName(cs.Name)
		for i := 0; i < col.Len(); i++ {
			if col.IsNull(i) {
				cp.Nulls++
				continue
			}
			cp.Count++
			switch v := col.Value(i).(type) {
			case int64:
				cp.Num.add(float64(v))
			case float64:
				cp.Num.add(v)
			case time.Time:
				if cp.Time.Min.IsZero() || v.Before(cp.Time.Min) {
					cp.Time.Min = v
				}
				if v.After(cp.Time.Max) {
					cp.Time.Max = v
				}
			}
		}
	}
}

func (n *NumStats) add(v float64) {
	if n == nil {
		return
	}
	if v < n.Min {
		n.Min = v
	}
	if v > n.Max {
		n.Max = v
	}
	n.Sum += v
}

func (c *Collector) Report() Report { return c.report }

// Of profiles a single frame.
func Of(table string, f *fr.Frame) Report {
	c := NewCollector(table, f.Schema())
	c.ConsumeFrame(f)
	return c.Report()
}

// LogValue logs the row count and the columns that hold nulls.
func (r Report) LogValue() slog.Value {
	attrs := []slog.Attr{slog.String("table", r.Table), slog.Int("rows", r.Rows), slog.Int("columns", len(r.Columns))}
	var nulls []slog.Attr
	for _, cp := range r.Columns {
		if cp.Nulls > 0 {
			nulls = append(nulls, slog.Int(cp.Name, cp.Nulls))
		}
	}
	if len(nulls) > 0 {
		attrs = append(attrs, slog.Attr{Key: "nulls", Value: slog.GroupValue(nulls...)})
	}
	return slog.GroupValue(attrs...)
}

func (r Report) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d rows\n", r.Table, r.Rows)
	for _, cp := range r.Columns {
		fmt.Fprintf(&b, "- %s (%v): count=%d nulls=%d", cp.Name, cp.Kind, cp.Count, cp.Nulls)
		switch {
		case cp.Num != nil && cp.Count > 0:
			fmt.Fprintf(&b, " min=%.6g max=%.6g mean=%.6g", cp.Num.Min, cp.Num.Max, cp.Num.Sum/float64(cp.Count))
		case cp.Time != nil && cp.Count > 0:
			fmt.Fprintf(&b, " min=%s max=%s", cp.Time.Min.Format(time.RFC3339), cp.Time.Max.Format(time.RFC3339))
		}
		b.WriteByte('\n')
	}
	return b.String()
}
