// Package source fetches input content from remote git repositories.
package source

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"git.home.luguber.info/inful/docgen/internal/errors"
)

// Fetcher shallow-clones an input repository into a workspace directory.
type Fetcher struct {
	workspaceDir string
}

// NewFetcher creates a fetcher rooted at workspaceDir.
func NewFetcher(workspaceDir string) *Fetcher {
	return &Fetcher{workspaceDir: workspaceDir}
}

// Fetch clones url at ref and returns the checkout path. An existing checkout
// is removed first so every run sees a clean tree.
func (f *Fetcher) Fetch(ctx context.Context, url, ref string) (string, error) {
	repoPath := filepath.Join(f.workspaceDir, "input")

	slog.Debug("Fetching input repository", slog.String("url", url), slog.String("ref", ref), slog.String("path", repoPath))

	if err := os.RemoveAll(repoPath); err != nil {
		return "", errors.Wrap(err, errors.CategoryGit, errors.SeverityError, "failed to remove existing checkout")
	}

	cloneOptions := &git.CloneOptions{
		URL:   url,
		Depth: 1,
	}
	if ref != "" {
		cloneOptions.ReferenceName = plumbing.ReferenceName("refs/heads/" + ref)
		cloneOptions.SingleBranch = true
	}

	repository, err := git.PlainCloneContext(ctx, repoPath, false, cloneOptions)
	if err != nil {
		// Network faults are transient; let the retry runner have another go.
		return "", errors.WrapRetryable(err, errors.CategoryGit, errors.SeverityError,
			fmt.Sprintf("failed to clone input repository %s", url))
	}

	if head, err := repository.Head(); err == nil {
		slog.Info("Input repository fetched",
			slog.String("url", url),
			slog.String("commit", head.Hash().String()[:8]),
			slog.String("path", repoPath))
	}

	return repoPath, nil
}
