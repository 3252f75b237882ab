// Package storage keeps JSON blobs on a billy filesystem, optionally
// committing every write to a git repository living in the same tree.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/stephanedenis/pensine-plugin-calendar/internal/host"
)

// ErrInvalidPath is returned for empty, absolute or escaping paths.
var ErrInvalidPath = errors.New("invalid storage path")

// Store implements host.Storage.
type Store struct {
	mu     sync.Mutex
	fs     billy.Filesystem
	git    *versioning
	logger log.Logger
}

var _ host.Storage = (*Store)(nil)

type Option func(*Store)

func WithLogger(logger log.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New wraps fs. Paths handed to the store are relative to its root.
func New(fs billy.Filesystem, opts ...Option) *Store {
	s := &Store{fs: fs, logger: log.NewNopLogger()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = log.With(s.logger, "component", "storage")
	return s
}

// Open creates a store rooted at dir on the OS filesystem. When versioned is
// set, dir is also a git repository and each write becomes a commit.
func Open(dir string, versioned bool, opts ...Option) (*Store, error) {
	s := New(osfs.New(dir), opts...)
	if !versioned {
		return s, nil
	}
	if err := s.enableGit(); err != nil {
		return nil, fmt.Errorf("open repository in %s: %w", dir, err)
	}
	return s, nil
}

func cleanPath(p string) (string, error) {
	p = strings.TrimSpace(filepath.ToSlash(p))
	if p == "" || strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	clean := path.Clean(p)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	return clean, nil
}

// WriteJSON stores v as indented JSON at p, creating parent directories.
func (s *Store) WriteJSON(ctx context.Context, p string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	clean, err := cleanPath(p)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", clean, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fs.MkdirAll(path.Dir(clean), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", clean, err)
	}
	if err := util.WriteFile(s.fs, clean, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", clean, err)
	}
	if s.git != nil {
		if err := s.git.commit(clean); err != nil {
			return fmt.Errorf("commit %s: %w", clean, err)
		}
	}

	level.Debug(s.logger).Log("msg", "wrote", "path", clean, "bytes", len(data))
	return nil
}

// ReadJSON decodes the file at p into v.
func (s *Store) ReadJSON(ctx context.Context, p string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	clean, err := cleanPath(p)
	if err != nil {
		return err
	}

	f, err := s.fs.Open(clean)
	if err != nil {
		return fmt.Errorf("open %s: %w", clean, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("read %s: %w", clean, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", clean, err)
	}
	return nil
}

// List walks prefix and returns every regular file below it, in lexical
// order. A missing prefix yields an empty list.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	root, err := cleanPath(prefix)
	if err != nil {
		return nil, err
	}

	if _, err := s.fs.Stat(root); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat %s: %w", root, err)
	}

	var files []string
	err = util.Walk(s.fs, root, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if info.IsDir() {
			if info.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		files = append(files, filepath.ToSlash(p))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", root, err)
	}
	return files, nil
}
