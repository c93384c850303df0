// Package git provides adapters for interacting with local Git repositories.
// This package implements the domain.CommitMatcher interface using go-git/v5.
package git

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/ristretto"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"

	"github.com/MyCarrier-DevOps/reference-find/internal/domain"
)

// DefaultAncestryDepth is the number of commits walked from the originating
// build's commit when looking for the candidate's commit.
const DefaultAncestryDepth = 500

// Logger defines the logging interface for the git adapter.
// This interface enables dependency injection and testability.
type Logger interface {
	Debug(ctx context.Context, msg string, fields map[string]interface{})
	Warn(ctx context.Context, msg string, fields map[string]interface{})
}

// GoGitCommitMatcher implements domain.CommitMatcher using go-git/v5.
// A candidate build is related to the originating build when the candidate's
// commit is part of the originating commit's history.
type GoGitCommitMatcher struct {
	repo   *git.Repository
	path   string
	depth  int
	cache  *ristretto.Cache
	logger Logger
}

var _ domain.CommitMatcher = (*GoGitCommitMatcher)(nil)

// NewGoGitCommitMatcher opens the repository at path.
// The path can be either a working directory or a bare repository.
// Returns domain.ErrRepositoryNotFound if the path is not a valid Git repository.
func NewGoGitCommitMatcher(path string, depth int, log Logger) (*GoGitCommitMatcher, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrRepositoryNotFound, path)
	}

	if depth <= 0 {
		depth = DefaultAncestryDepth
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     1e4,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create commit cache: %w", err)
	}

	return &GoGitCommitMatcher{
		repo:   repo,
		path:   path,
		depth:  depth,
		cache:  cache,
		logger: log,
	}, nil
}

// IsRelated reports whether the candidate's commit is reachable from the
// originating build's commit within the configured depth.
// An originating build without a recorded commit is compared from HEAD.
// Builds that still cannot be compared count as related.
func (m *GoGitCommitMatcher) IsRelated(ctx context.Context, candidate, originating *domain.Build) (bool, error) {
	if candidate == nil || originating == nil {
		return false, nil
	}

	from := originating.Commit
	if from == "" {
		if head, err := m.headCommit(); err == nil {
			from = head
		}
	}
	if candidate.Commit == "" || from == "" {
		m.logger.Debug(ctx, "build without commit, skipping ancestry check", map[string]interface{}{
			"candidate":   candidate.ID,
			"originating": originating.ID,
		})
		return true, nil
	}
	if candidate.Commit == from {
		return true, nil
	}

	key := from + ":" + candidate.Commit
	if cached, ok := m.cache.Get(key); ok {
		return cached.(bool), nil
	}

	related, err := m.isAncestor(ctx, candidate.Commit, from)
	if err != nil {
		return false, err
	}
	m.cache.Set(key, related, 1)
	return related, nil
}

func (m *GoGitCommitMatcher) isAncestor(ctx context.Context, ancestor, descendant string) (bool, error) {
	from, err := m.resolve(descendant)
	if err != nil {
		return false, err
	}

	target, err := m.resolve(ancestor)
	if err != nil {
		// A commit the repository has never seen cannot be in its history.
		m.logger.Warn(ctx, "candidate commit not found in repository", map[string]interface{}{
			"commit": ancestor,
			"path":   m.path,
		})
		return false, nil
	}

	commit, err := m.repo.CommitObject(from)
	if err != nil {
		return false, fmt.Errorf("%w: %s", domain.ErrCommitNotFound, descendant)
	}

	// Walk commit history using commit-time ordering
	walked := 0
	found := false
	iter := object.NewCommitIterCTime(commit, nil, nil)
	defer iter.Close()

	err = iter.ForEach(func(c *object.Commit) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if walked >= m.depth {
			return storer.ErrStop
		}
		walked++
		if c.Hash == target {
			found = true
			return storer.ErrStop
		}
		return nil
	})

	// ErrStop is expected when we find the commit or reach the depth limit
	if err != nil && !errors.Is(err, storer.ErrStop) {
		return false, fmt.Errorf("failed to walk commit history: %w", err)
	}

	m.logger.Debug(ctx, "walked commit ancestry", map[string]interface{}{
		"from":           descendant,
		"looking_for":    ancestor,
		"commits_walked": walked,
		"found":          found,
	})

	return found, nil
}

// resolve accepts full or abbreviated hashes as well as branch and tag names.
func (m *GoGitCommitMatcher) resolve(rev string) (plumbing.Hash, error) {
	hash, err := m.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("%w: %s", domain.ErrCommitNotFound, rev)
	}
	return *hash, nil
}

// headCommit returns the commit HEAD points to.
func (m *GoGitCommitMatcher) headCommit() (string, error) {
	head, err := m.repo.Head()
	if err != nil {
		return "", fmt.Errorf("failed to get HEAD: %w", err)
	}
	return head.Hash().String(), nil
}

// Close releases the commit cache.
func (m *GoGitCommitMatcher) Close() error {
	m.cache.Close()
	return nil
}
