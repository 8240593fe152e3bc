// Package parquetio writes Frames as partitioned Parquet tables and reads
// them back.
package parquetio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	local "github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	pw "github.com/xitongsys/parquet-go/writer"
	"golang.org/x/sync/errgroup"

	fr "github.com/wdm0006/songlake/pkg/frame"
	"github.com/wdm0006/songlake/pkg/store"
	"github.com/wdm0006/songlake/pkg/transform/validate"
)

// SuccessMarker is written after every part file of a table.
const SuccessMarker = "_SUCCESS"

// ErrCompression reports an unknown compression codec name.
var ErrCompression = errors.New("unknown compression codec")

type codec struct {
	codec parquet.CompressionCodec
	ext   string
}

var codecs = map[string]codec{
	"snappy":       {parquet.CompressionCodec_SNAPPY, ".snappy"},
	"gzip":         {parquet.CompressionCodec_GZIP, ".gz"},
	"zstd":         {parquet.CompressionCodec_ZSTD, ".zstd"},
	"uncompressed": {parquet.CompressionCodec_UNCOMPRESSED, ""},
	"none":         {parquet.CompressionCodec_UNCOMPRESSED, ""},
}

func lookupCodec(name string) (codec, error) {
	if name == "" {
		name = "snappy"
	}
	c, ok := codecs[strings.ToLower(name)]
	if !ok {
		return codec{}, fmt.Errorf("%w: %s", ErrCompression, name)
	}
	return c, nil
}

// ValidCompression reports whether name is an accepted codec.
func ValidCompression(name string) bool {
	_, err := lookupCodec(name)
	return err == nil
}

type WriteOptions struct {
	PartitionBy []string
	// Compression is snappy (default), gzip, zstd or uncompressed.
	Compression string
	// Workers bounds concurrent part writes; <= 0 means GOMAXPROCS.
	Workers int
	// TempDir stages part files before upload; empty means os.TempDir.
	TempDir string
}

// WriteStats summarizes one table write.
type WriteStats struct {
	Rows       int
	Files      int
	Partitions int
}

// WriteTable replaces everything under table/ with f, one part file per
// partition, then writes the success marker.
func WriteTable(ctx context.Context, st store.Store, table string, f *fr.Frame, opt WriteOptions) (WriteStats, error) {
	var stats WriteStats
	c, err := lookupCodec(opt.Compression)
	if err != nil {
		return stats, err
	}
	if len(opt.PartitionBy) > 0 {
		check := &validate.NotNull{Columns: opt.PartitionBy}
		if _, err := check.Apply(ctx, f); err != nil {
			return stats, fmt.Errorf("write %s: partition columns: %w", table, err)
		}
	}

	partCols := make([]fr.Column, len(opt.PartitionBy))
	isPart := make(map[string]bool, len(opt.PartitionBy))
	for i, name := range opt.PartitionBy {
		partCols[i], _ = f.ColumnByName(name)
		isPart[name] = true
	}
	var dataCols []fr.Column
	for i := 0; i < f.Cols(); i++ {
		if col := f.Column(i); !isPart[col.Name()] {
			dataCols = append(dataCols, col)
		}
	}
	if len(dataCols) == 0 {
		return stats, fmt.Errorf("write %s: no data columns outside the partition columns", table)
	}
	schema := parquetSchemaJSON(dataCols)

	// group rows by partition directory in first-appearance order
	var dirs []string
	groups := map[string][]int{}
	if len(partCols) == 0 {
		dirs = []string{""}
		groups[""] = allRows(f.Rows())
	} else {
		for r := 0; r < f.Rows(); r++ {
			d := partitionDir(partCols, r)
			if _, seen := groups[d]; !seen {
				dirs = append(dirs, d)
			}
			groups[d] = append(groups[d], r)
		}
	}

	prefix := strings.Trim(table, "/") + "/"
	if err := st.RemoveAll(ctx, prefix); err != nil {
		return stats, fmt.Errorf("write %s: clear: %w", table, err)
	}

	runID := uuid.New().String()
	workers := opt.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	var rows atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, d := range dirs {
		key := prefix
		if d != "" {
			key += d + "/"
		}
		key += fmt.Sprintf("part-%05d-%s.c000%s.parquet", i, runID, c.ext)
		idx := groups[d]
		g.Go(func() error {
			if err := writePart(gctx, st, key, schema, dataCols, idx, c, opt.TempDir); err != nil {
				return fmt.Errorf("write %s: %w", key, err)
			}
			rows.Add(int64(len(idx)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}
	if err := st.Put(ctx, prefix+SuccessMarker, bytes.NewReader(nil)); err != nil {
		return stats, fmt.Errorf("write %s: marker: %w", table, err)
	}
	stats.Rows = int(rows.Load())
	stats.Files = len(dirs)
	if len(partCols) > 0 {
		stats.Partitions = len(dirs)
	}
	return stats, nil
}

func allRows(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

// inName is the Go-side field name the JSON writer matches record keys on.
func inName(i int) string { return fmt.Sprintf("Col%d", i) }

// parquetSchemaJSON builds the JSON writer schema. Logical types go in the
// type key (UTF8, TIMESTAMP_MILLIS); the writer derives the physical type.
func parquetSchemaJSON(cols []fr.Column) string {
	type field struct {
		Tag string `json:"Tag"`
	}
	type schema struct {
		Tag    string  `json:"Tag"`
		Fields []field `json:"Fields"`
	}
	sc := schema{Tag: "name=spark_schema, repetitiontype=REQUIRED"}
	for i, c := range cols {
		tag := "name=" + c.Name() + ", inname=" + inName(i) + ", type="
		switch c.Kind() {
		case fr.KindFloat:
			tag += "DOUBLE"
		case fr.KindInt:
			tag += "INT64"
		case fr.KindBool:
			tag += "BOOLEAN"
		case fr.KindTime:
			tag += "TIMESTAMP_MILLIS"
		default:
			tag += "UTF8"
		}
		tag += ", repetitiontype=OPTIONAL"
		sc.Fields = append(sc.Fields, field{Tag: tag})
	}
	b, _ := json.Marshal(sc)
	return string(b)
}

// record renders one row as the JSON object the writer expects. Null cells
// are omitted.
func record(cols []fr.Column, row int) (string, error) {
	rec := make(map[string]any, len(cols))
	for i, c := range cols {
		v := c.Value(row)
		switch t := v.(type) {
		case nil:
			continue
		case float64:
			if math.IsNaN(t) || math.IsInf(t, 0) {
				return "", fmt.Errorf("column %s row %d: non-finite float %v", c.Name(), row, t)
			}
		case time.Time:
			v = t.UnixMilli()
		}
		rec[inName(i)] = v
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func writePart(ctx context.Context, st store.Store, key, schema string, cols []fr.Column, rows []int, c codec, tempDir string) error {
	tmp, err := os.CreateTemp(tempDir, "songlake-*.parquet")
	if err != nil {
		return err
	}
	name := tmp.Name()
	_ = tmp.Close()
	defer func() { _ = os.Remove(name) }()

	fw, err := local.NewLocalFileWriter(name)
	if err != nil {
		return fmt.Errorf("create local file writer: %w", err)
	}
	w, err := pw.NewJSONWriter(schema, fw, 4)
	if err != nil {
		_ = fw.Close()
		return fmt.Errorf("parquet writer init: %w", err)
	}
	w.CompressionType = c.codec
	for _, r := range rows {
		if err := ctx.Err(); err != nil {
			_ = fw.Close()
			return err
		}
		rec, err := record(cols, r)
		if err != nil {
			_ = fw.Close()
			return err
		}
		if err := w.Write(rec); err != nil {
			_ = fw.Close()
			return fmt.Errorf("parquet write row %d: %w", r, err)
		}
	}
	if err := w.WriteStop(); err != nil {
		_ = fw.Close()
		return fmt.Errorf("parquet write stop: %w", err)
	}
	if err := fw.Close(); err != nil {
		return err
	}

	in, err := os.Open(name)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()
	return st.Put(ctx, key, in)
}
