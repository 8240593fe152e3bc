package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// Local is a Store over a directory tree.
type Local struct {
	root string
}

func NewLocal(root string) *Local { return &Local{root: filepath.Clean(root)} }

func (l *Local) String() string { return l.root }

func (l *Local) path(key string) string { return filepath.Join(l.root, filepath.FromSlash(key)) }

func (l *Local) Glob(ctx context.Context, pattern string) ([]string, error) {
	if err := validPattern(pattern); err != nil {
		return nil, fmt.Errorf("glob %q: %w", pattern, err)
	}
	matches, err := filepath.Glob(l.path(pattern))
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", pattern, err)
	}
	keys := make([]string, 0, len(matches))
	for _, m := range matches {
		fi, err := os.Stat(m)
		if err != nil {
			return nil, err
		}
		if fi.IsDir() {
			continue
		}
		rel, err := filepath.Rel(l.root, m)
		if err != nil {
			return nil, err
		}
		keys = append(keys, filepath.ToSlash(rel))
	}
	sort.Strings(keys)
	return keys, nil
}

func (l *Local) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	return os.Open(l.path(key))
}

func (l *Local) Put(ctx context.Context, key string, r io.Reader) error {
	p := l.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.Create(p)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", key, err)
	}
	return f.Close()
}

func (l *Local) RemoveAll(ctx context.Context, prefix string) error {
	p := l.path(prefix)
	if filepath.Clean(p) == l.root {
		return fmt.Errorf("refusing to remove store root %s", l.root)
	}
	return os.RemoveAll(p)
}

// Ping checks the root exists and is a directory.
func (l *Local) Ping(ctx context.Context) error {
	fi, err := os.Stat(l.root)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s does not exist", l.root)
	}
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return fmt.Errorf("%s is not a directory", l.root)
	}
	return nil
}
