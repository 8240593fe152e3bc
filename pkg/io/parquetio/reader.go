package parquetio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	parquet "github.com/segmentio/parquet-go"
	"github.com/segmentio/parquet-go/deprecated"
	"github.com/segmentio/parquet-go/format"

	fr "github.com/wdm0006/songlake/pkg/frame"
	"github.com/wdm0006/songlake/pkg/store"
)

// ErrNoTable means no part files were found under a table prefix.
var ErrNoTable = errors.New("no parquet part files")

// maxPartitionDepth bounds how many partition directory levels ReadTable scans.
const maxPartitionDepth = 4

type part struct {
	key    string
	frame  *fr.Frame
	names  []string
	values []string
}

// ReadTable loads every part file under table/ and re-attaches partition
// columns parsed from the directory names. Partition columns come last; they
// are integers when every value parses as one, strings otherwise.
func ReadTable(ctx context.Context, st store.Store, table string) (*fr.Frame, error) {
	prefix := strings.Trim(table, "/") + "/"
	var keys []string
	for d := 0; d <= maxPartitionDepth; d++ {
		found, err := st.Glob(ctx, prefix+strings.Repeat("*/", d)+"*.parquet")
		if err != nil {
			return nil, err
		}
		keys = append(keys, found...)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: %s/%s", ErrNoTable, st, prefix)
	}
	sort.Strings(keys)

	parts := make([]part, 0, len(keys))
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dir := strings.TrimSuffix(strings.TrimPrefix(path.Dir(key)+"/", prefix), "/")
		names, values, err := parsePartitionDir(dir)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", key, err)
		}
		f, err := readPart(ctx, st, key)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", key, err)
		}
		parts = append(parts, part{key: key, frame: f, names: names, values: values})
	}

	pnames := parts[0].names
	for _, p := range parts[1:] {
		if strings.Join(p.names, "/") != strings.Join(pnames, "/") {
			return nil, fmt.Errorf("read %s: partition columns %v differ from %v", p.key, p.names, pnames)
		}
	}
	kinds := make([]fr.Kind, len(pnames))
	for i := range pnames {
		kinds[i] = fr.KindInt
		for _, p := range parts {
			v := p.values[i]
			if v == DefaultPartition {
				continue
			}
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				kinds[i] = fr.KindString
				break
			}
		}
	}

	frames := make([]*fr.Frame, len(parts))
	for n, p := range parts {
		f := p.frame
		for i, name := range pnames {
			col, err := constantColumn(name, kinds[i], p.values[i], f.Rows())
			if err != nil {
				return nil, err
			}
			if err := f.AddColumn(col); err != nil {
				return nil, fmt.Errorf("read %s: %w", p.key, err)
			}
		}
		frames[n] = f
	}
	return fr.Concat(frames...)
}

func constantColumn(name string, k fr.Kind, raw string, n int) (fr.Column, error) {
	switch k {
	case fr.KindInt:
		c := fr.NewIntColumn(name, n)
		if raw == DefaultPartition {
			for i := 0; i < n; i++ {
				c.SetNull(i)
			}
			return c, nil
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, err
		}
		for i := 0; i < n; i++ {
			c.Set(i, v)
		}
		return c, nil
	default:
		c := fr.NewStringColumn(name, n)
		for i := 0; i < n; i++ {
			if raw == DefaultPartition {
				c.SetNull(i)
			} else {
				c.Set(i, raw)
			}
		}
		return c, nil
	}
}

type leaf struct {
	name string
	kind fr.Kind
	unit time.Duration // timestamps only
}

func leafOf(el format.SchemaElement) (leaf, error) {
	l := leaf{name: el.Name}
	if el.NumChildren > 0 || el.Type == nil {
		return l, fmt.Errorf("column %s: nested columns are not supported", el.Name)
	}
	switch *el.Type {
	case format.Boolean:
		l.kind = fr.KindBool
	case format.Int32, format.Int64:
		l.kind = fr.KindInt
		if u, ok := timestampUnit(el); ok {
			l.kind, l.unit = fr.KindTime, u
		}
	case format.Float, format.Double:
		l.kind = fr.KindFloat
	case format.ByteArray, format.FixedLenByteArray:
		l.kind = fr.KindString
	default:
		return l, fmt.Errorf("column %s: unsupported physical type %v", el.Name, *el.Type)
	}
	return l, nil
}

func timestampUnit(el format.SchemaElement) (time.Duration, bool) {
	if ct := el.ConvertedType; ct != nil {
		switch *ct {
		case deprecated.TimestampMillis:
			return time.Millisecond, true
		case deprecated.TimestampMicros:
			return time.Microsecond, true
		}
	}
	if lt := el.LogicalType; lt != nil && lt.Timestamp != nil {
		switch {
		case lt.Timestamp.Unit.Micros != nil:
			return time.Microsecond, true
		case lt.Timestamp.Unit.Nanos != nil:
			return time.Nanosecond, true
		default:
			return time.Millisecond, true
		}
	}
	return 0, false
}

func readPart(ctx context.Context, st store.Store, key string) (*fr.Frame, error) {
	rc, err := st.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	b, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil {
		return nil, err
	}
	file, err := parquet.OpenFile(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return nil, err
	}
	elems := file.Metadata().Schema
	if len(elems) < 2 {
		return nil, fmt.Errorf("empty parquet schema")
	}
	leaves := make([]leaf, len(elems)-1)
	schema := fr.Schema{Columns: make([]fr.ColumnSchema, len(leaves))}
	for i, el := range elems[1:] {
		l, err := leafOf(el)
		if err != nil {
			return nil, err
		}
		leaves[i] = l
		schema.Columns[i] = fr.ColumnSchema{Name: l.name, Type: l.kind, Nullable: true}
	}

	f, err := fr.NewFrame(schema)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	r := parquet.NewReader(bytes.NewReader(b))
	defer func() { _ = r.Close() }()
	buf := make([]parquet.Row, 256)
	for {
		n, err := r.ReadRows(buf)
		for _, row := range buf[:n] {
			f.AppendNullRow()
			ri := f.Rows() - 1
			for _, v := range row {
				c := v.Column()
				if v.IsNull() || c < 0 || c >= len(leaves) {
					continue
				}
				if err := f.SetCell(ri, leaves[c].name, cellOf(v, leaves[c])); err != nil {
					return nil, err
				}
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if n == 0 {
			break
		}
	}
	return f, nil
}

func cellOf(v parquet.Value, l leaf) any {
	switch l.kind {
	case fr.KindBool:
		return v.Boolean()
	case fr.KindFloat:
		if v.Kind() == parquet.Float {
			return float64(v.Float())
		}
		return v.Double()
	case fr.KindInt:
		if v.Kind() == parquet.Int32 {
			return int64(v.Int32())
		}
		return v.Int64()
	case fr.KindTime:
		var n int64
		if v.Kind() == parquet.Int32 {
			n = int64(v.Int32())
		} else {
			n = v.Int64()
		}
		return time.Unix(0, n*int64(l.unit)).UTC()
	default:
		return string(v.ByteArray())
	}
}
