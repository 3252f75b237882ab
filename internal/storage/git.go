package storage

import (
	"errors"
	"fmt"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/plumbing/object"
	gogitfs "github.com/go-git/go-git/v5/storage/filesystem"
)

const (
	authorName  = "pensine"
	authorEmail = "pensine@localhost"
)

type versioning struct {
	repo *gogit.Repository
	now  func() time.Time
}

// WithRepository commits writes to repo, whose worktree must be the store's
// filesystem.
func WithRepository(repo *gogit.Repository) Option {
	return func(s *Store) {
		if repo != nil {
			s.git = &versioning{repo: repo, now: time.Now}
		}
	}
}

func (s *Store) enableGit() error {
	if err := s.fs.MkdirAll(".git", 0o755); err != nil {
		return fmt.Errorf("create .git dir: %w", err)
	}
	dotGit, err := s.fs.Chroot(".git")
	if err != nil {
		return fmt.Errorf("chroot .git dir: %w", err)
	}

	st := gogitfs.NewStorage(dotGit, cache.NewObjectLRUDefault())
	repo, err := gogit.Init(st, s.fs)
	if errors.Is(err, gogit.ErrRepositoryAlreadyExists) {
		repo, err = gogit.Open(st, s.fs)
	}
	if err != nil {
		return err
	}

	s.git = &versioning{repo: repo, now: time.Now}
	return nil
}

func (v *versioning) commit(p string) error {
	w, err := v.repo.Worktree()
	if err != nil {
		return fmt.Errorf("get worktree: %w", err)
	}
	if _, err := w.Add(p); err != nil {
		return fmt.Errorf("stage: %w", err)
	}

	_, err = w.Commit(fmt.Sprintf("pensine: write %s", p), &gogit.CommitOptions{
		Author: &object.Signature{
			Name:  authorName,
			Email: authorEmail,
			When:  v.now(),
		},
	})
	if errors.Is(err, gogit.ErrEmptyCommit) {
		// content unchanged
		return nil
	}
	return err
}
