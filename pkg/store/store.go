// Package store abstracts the object stores the pipeline reads from and
// writes to: a local directory tree or an S3 bucket prefix. Keys are always
// slash separated and relative to the store root.
package store

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
)

// Store is a flat key space rooted at a directory or bucket prefix.
type Store interface {
	// Glob returns the sorted keys matching pattern (path.Match syntax,
	// applied to the whole key).
	Glob(ctx context.Context, pattern string) ([]string, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Put(ctx context.Context, key string, r io.Reader) error
	// RemoveAll deletes every key under prefix. A missing prefix is not an error.
	RemoveAll(ctx context.Context, prefix string) error
	// Ping checks that the root is reachable.
	Ping(ctx context.Context) error
	String() string
}

// Location is a parsed store URL.
type Location struct {
	Scheme string // "s3" or "file"
	Bucket string
	Path   string // prefix inside the bucket, or local directory
}

func (l Location) IsS3() bool { return l.Scheme == "s3" }

func (l Location) String() string {
	if l.IsS3() {
		if l.Path == "" {
			return "s3://" + l.Bucket
		}
		return "s3://" + l.Bucket + "/" + l.Path
	}
	return l.Path
}

// ParseLocation accepts s3://, s3a:// and s3n:// URLs, file:// URLs and bare
// local paths.
func ParseLocation(raw string) (Location, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Location{}, fmt.Errorf("empty location")
	}
	if !strings.Contains(raw, "://") {
		return Location{Scheme: "file", Path: raw}, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, fmt.Errorf("parse location %q: %w", raw, err)
	}
	switch u.Scheme {
	case "s3", "s3a", "s3n":
		if u.Host == "" {
			return Location{}, fmt.Errorf("location %q has no bucket", raw)
		}
		return Location{Scheme: "s3", Bucket: u.Host, Path: strings.Trim(u.Path, "/")}, nil
	case "file":
		p := u.Path
		if u.Host != "" {
			p = u.Host + p
		}
		return Location{Scheme: "file", Path: p}, nil
	default:
		return Location{}, fmt.Errorf("location %q: unsupported scheme %q", raw, u.Scheme)
	}
}

// Join builds a key from slash separated parts.
func Join(parts ...string) string {
	return strings.TrimPrefix(path.Join(parts...), "/")
}
