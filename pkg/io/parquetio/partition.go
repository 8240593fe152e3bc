package parquetio

import (
	"fmt"
	"strconv"
	"strings"

	fr "github.com/wdm0006/songlake/pkg/frame"
)

// DefaultPartition names the directory for empty partition values.
const DefaultPartition = "__HIVE_DEFAULT_PARTITION__"

// needsEscape lists the bytes that cannot appear raw in a partition directory.
func needsEscape(c byte) bool {
	if c < 0x20 || c == 0x7f {
		return true
	}
	return strings.IndexByte("\"#%'*/:=?\\{[]^", c) >= 0
}

// EscapePathName percent-encodes a partition value for use in a path segment.
func EscapePathName(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if needsEscape(c) {
			fmt.Fprintf(&b, "%%%02X", c)
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// UnescapePathName reverses EscapePathName. Malformed escapes are kept verbatim.
func UnescapePathName(s string) string {
	if !strings.Contains(s, "%") {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) {
			if v, err := strconv.ParseUint(s[i+1:i+3], 16, 8); err == nil {
				b.WriteByte(byte(v))
				i += 2
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// partitionValue renders one partition cell as a directory value.
func partitionValue(c fr.Column, row int) string {
	var s string
	switch v := c.Value(row).(type) {
	case string:
		s = v
	case int64:
		s = strconv.FormatInt(v, 10)
	case float64:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		s = strconv.FormatBool(v)
	default:
		s = fmt.Sprint(v)
	}
	if s == "" {
		return DefaultPartition
	}
	return EscapePathName(s)
}

// partitionDir builds "a=1/b=x" for row.
func partitionDir(cols []fr.Column, row int) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = EscapePathName(c.Name()) + "=" + partitionValue(c, row)
	}
	return strings.Join(parts, "/")
}

// parsePartitionDir splits "a=1/b=x" into names and raw values.
func parsePartitionDir(dir string) (names, values []string, err error) {
	if dir == "" {
		return nil, nil, nil
	}
	for _, seg := range strings.Split(dir, "/") {
		k, v, ok := strings.Cut(seg, "=")
		if !ok || k == "" {
			return nil, nil, fmt.Errorf("not a partition directory: %q", seg)
		}
		names = append(names, UnescapePathName(k))
		values = append(values, UnescapePathName(v))
	}
	return names, values, nil
}
