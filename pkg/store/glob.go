package store

import (
	"path"
	"strings"
)

// literalPrefix returns the part of pattern before its first wildcard, which
// is what a prefix listing can narrow on.
func literalPrefix(pattern string) string {
	i := strings.IndexAny(pattern, `*?[\`)
	if i < 0 {
		return pattern
	}
	return pattern[:i]
}

// match reports whether key matches pattern. A malformed pattern is returned
// as path.ErrBadPattern.
func match(pattern, key string) (bool, error) {
	return path.Match(pattern, key)
}

// validPattern rejects patterns path.Match cannot parse up front, since
// path.Match only reports them when it reaches the bad part.
func validPattern(pattern string) error {
	_, err := path.Match(pattern, "")
	return err
}
