package derive

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fr "github.com/wdm0006/songlake/pkg/frame"
)

func tsFrame(t *testing.T, kind fr.Kind, vals ...any) *fr.Frame {
	t.Helper()
	f, err := fr.NewFrame(fr.Schema{Columns: []fr.ColumnSchema{{Name: "ts", Type: kind, Nullable: true}}})
	require.NoError(t, err)
	for i, v := range vals {
		f.AppendNullRow()
		require.NoError(t, f.SetCell(i, "ts", v))
	}
	return f
}

func emptyFrame(t *testing.T) *fr.Frame {
	t.Helper()
	f, err := fr.NewFrame(fr.Schema{})
	require.NoError(t, err)
	return f
}

func TestEpochMillisAndDateParts(t *testing.T) {
	f := tsFrame(t, fr.KindInt, int64(1542069000000), int64(1543537327796))
	p := fr.NewPipeline().
		Add(&EpochMillis{From: "ts", To: "start_time"}).
		Add(&DateParts{From: "start_time"})
	out, err := p.Run(context.Background(), f)
	require.NoError(t, err)

	st, _ := out.Value(0, "start_time")
	assert.Equal(t, time.Date(2018, 11, 13, 0, 30, 0, 0, time.UTC), st)
	want := map[string]int64{"year": 2018, "month": 11, "week": 46, "weekday": 3, "day": 317, "hour": 0}
	for name, w := range want {
		got, err := out.Value(0, name)
		require.NoError(t, err)
		assert.Equal(t, w, got, name)
	}

	// 2018-11-30T00:22:07.796Z, a Friday.
	st, _ = out.Value(1, "start_time")
	assert.Equal(t, time.Date(2018, 11, 30, 0, 22, 7, 0, time.UTC), st)
	wd, _ := out.Value(1, "weekday")
	assert.Equal(t, int64(6), wd)
	assert.Equal(t, 1, f.Cols(), "input must not change")
}

func TestEpochMillisFloatInput(t *testing.T) {
	f := tsFrame(t, fr.KindFloat, 1542069000999.0)
	out, err := (&EpochMillis{From: "ts", To: "start_time"}).Apply(context.Background(), f)
	require.NoError(t, err)
	st, _ := out.Value(0, "start_time")
	assert.Equal(t, time.Unix(1542069000, 0).UTC(), st)
}

func TestEpochMillisFailsRun(t *testing.T) {
	cases := map[string]*fr.Frame{
		"null":        tsFrame(t, fr.KindInt, int64(1), nil),
		"non-numeric": tsFrame(t, fr.KindString, "yesterday"),
		"missing":     emptyFrame(t),
	}
	for name, f := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := (&EpochMillis{From: "ts", To: "start_time"}).Apply(context.Background(), f)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrDerive))
		})
	}
}

func TestDatePartsRequiresTime(t *testing.T) {
	f := tsFrame(t, fr.KindInt, int64(1))
	_, err := (&DateParts{From: "ts"}).Apply(context.Background(), f)
	require.ErrorIs(t, err, ErrDerive)
}
