package profile

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	fr "github.com/wdm0006/songlake/pkg/frame"
)

func TestProfileCounts(t *testing.T) {
	year := fr.NewIntColumn("year", 3)
	year.Set(0, 2018)
	year.Set(1, 2016)
	year.SetNull(2)
	at := fr.NewTimeColumn("start_time", 3)
	t0 := time.Date(2018, 11, 13, 0, 30, 0, 0, time.UTC)
	at.Set(0, t0)
	at.Set(1, t0.Add(time.Hour))
	at.Set(2, t0.Add(-time.Hour))
	name := fr.NewStringColumn("name", 3)
	f, err := fr.FromColumns(year, at, name)
	if err != nil {
		t.Fatal(err)
	}

	r := Of("time_table", f)
	if r.Rows != 3 {
		t.Fatalf("rows = %d", r.Rows)
	}
	y := r.Columns[0]
	if y.Count != 2 || y.Nulls != 1 || y.Num.Min != 2016 || y.Num.Max != 2018 {
		t.Fatalf("unexpected year profile: %+v %+v", y, *y.Num)
	}
	ts := r.Columns[1]
	if !ts.Time.Min.Equal(t0.Add(-time.Hour)) || !ts.Time.Max.Equal(t0.Add(time.Hour)) {
		t.Fatalf("unexpected time range: %+v", *ts.Time)
	}
	if !strings.Contains(r.Text(), "year (int): count=2 nulls=1") {
		t.Fatalf("text report: %s", r.Text())
	}
}

func TestReportLogValue(t *testing.T) {
	c := fr.NewStringColumn("level", 2)
	c.SetNull(1)
	f, _ := fr.FromColumns(c)

	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	log.Info("wrote", "profile", Of("user_table", f))
	out := buf.String()
	for _, want := range []string{"profile.table=user_table", "profile.rows=2", "profile.nulls.level=1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in %s", want, out)
		}
	}
}
