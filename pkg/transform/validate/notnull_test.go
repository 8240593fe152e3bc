package validate

import (
	"context"
	"strings"
	"testing"

	fr "github.com/wdm0006/songlake/pkg/frame"
)

func TestNotNull(t *testing.T) {
	s := fr.Schema{Columns: []fr.ColumnSchema{{Name: "year", Type: fr.KindInt, Nullable: true}, {Name: "artist_id", Type: fr.KindString, Nullable: true}}}
	f, err := fr.NewFrame(s)
	if err != nil {
		t.Fatal(err)
	}
	f.AppendNullRow()
	f.AppendNullRow()
	_ = f.SetCell(0, "year", int64(2000))
	_ = f.SetCell(1, "year", int64(0))
	_ = f.SetCell(0, "artist_id", "AR1")

	if _, err := (&NotNull{Columns: []string{"year"}}).Apply(context.Background(), f); err != nil {
		t.Fatal(err)
	}
	_, err = (&NotNull{Columns: []string{"year", "artist_id"}}).Apply(context.Background(), f)
	if err == nil || !strings.Contains(err.Error(), "artist_id has 1 null values (first at row 1)") {
		t.Fatalf("unexpected error %v", err)
	}
	if _, err := (&NotNull{Columns: []string{"month"}}).Apply(context.Background(), f); err == nil {
		t.Fatal("expected unknown column error")
	}
}
