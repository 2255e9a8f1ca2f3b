// Package mirror maintains the local copy of the upstream grammar repository.
//
// # Update Policy
//
// An absent mirror is shallow-cloned. A present mirror fetches the configured
// branch and hard-resets the worktree to the fetched commit, so every run
// builds exactly the upstream head. A local mirror is used as-is.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/albertocavalcante/grammardist/internal/fsutil"
	"github.com/albertocavalcante/grammardist/internal/log"
)

const remoteName = "origin"

// ErrLocalMissing is returned when a local mirror directory does not exist.
var ErrLocalMissing = errors.New("local mirror directory does not exist")

// Action describes what Sync did.
type Action string

const (
	ActionCloned  Action = "cloned"
	ActionUpdated Action = "updated"
	ActionLocal   Action = "local"
	ActionSkipped Action = "skipped"
)

// Options configures a Mirror.
type Options struct {
	// URL is the clone URL.
	URL string

	// Branch is the branch to track.
	Branch string

	// Depth limits history (0 = full).
	Depth int

	// Local uses the directory without cloning or fetching.
	Local bool
}

// Result reports the outcome of a sync.
type Result struct {
	Action Action
	Commit string // empty for local mirrors without a git repository
}

// Mirror is a local copy of a remote repository.
type Mirror struct {
	dir  string
	opts Options
}

// New creates a Mirror rooted at dir.
func New(dir string, opts Options) *Mirror {
	return &Mirror{dir: dir, opts: opts}
}

// Dir returns the mirror root.
func (m *Mirror) Dir() string {
	return m.dir
}

// Exists reports whether the mirror has been cloned (or, for a local mirror,
// whether the directory exists).
func (m *Mirror) Exists() bool {
	if m.opts.Local {
		return fsutil.DirExists(m.dir)
	}
	return fsutil.DirExists(filepath.Join(m.dir, git.GitDirName))
}

// Sync clones the mirror if absent and otherwise fetches and resets it.
func (m *Mirror) Sync(ctx context.Context) (Result, error) {
	if m.opts.Local {
		return m.local()
	}
	if !m.Exists() {
		return m.clone(ctx)
	}
	return m.update(ctx)
}

// Ensure clones the mirror only if it is absent.
func (m *Mirror) Ensure(ctx context.Context) (Result, error) {
	if m.opts.Local {
		return m.local()
	}
	if m.Exists() {
		commit, _ := m.Head()
		return Result{Action: ActionSkipped, Commit: commit}, nil
	}
	return m.clone(ctx)
}

// Head returns the checked-out commit hash.
func (m *Mirror) Head() (string, error) {
	repo, err := git.PlainOpen(m.dir)
	if err != nil {
		return "", fmt.Errorf("failed to open mirror %s: %w", m.dir, err)
	}
	ref, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("failed to resolve HEAD of %s: %w", m.dir, err)
	}
	return ref.Hash().String(), nil
}

func (m *Mirror) local() (Result, error) {
	if !fsutil.DirExists(m.dir) {
		return Result{}, fmt.Errorf("%w: %s", ErrLocalMissing, m.dir)
	}
	commit, _ := m.Head()
	log.Debug("using local mirror", "dir", m.dir, "commit", commit)
	return Result{Action: ActionLocal, Commit: commit}, nil
}

func (m *Mirror) clone(ctx context.Context) (Result, error) {
	log.FromContext(ctx).Info("cloning grammar repository", "url", m.opts.URL, "branch", m.opts.Branch, "depth", m.opts.Depth)

	repo, err := git.PlainCloneContext(ctx, m.dir, false, &git.CloneOptions{
		URL:           m.opts.URL,
		RemoteName:    remoteName,
		ReferenceName: plumbing.NewBranchReferenceName(m.opts.Branch),
		SingleBranch:  true,
		Depth:         m.opts.Depth,
		Tags:          git.NoTags,
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to clone %s: %w", m.opts.URL, err)
	}

	ref, err := repo.Head()
	if err != nil {
		return Result{}, fmt.Errorf("failed to resolve HEAD after clone: %w", err)
	}
	return Result{Action: ActionCloned, Commit: ref.Hash().String()}, nil
}

func (m *Mirror) update(ctx context.Context) (Result, error) {
	repo, err := git.PlainOpen(m.dir)
	if err != nil {
		return Result{}, fmt.Errorf("failed to open mirror %s: %w", m.dir, err)
	}

	refSpec := gitconfig.RefSpec(fmt.Sprintf("+refs/heads/%s:refs/remotes/%s/%s", m.opts.Branch, remoteName, m.opts.Branch))
	log.FromContext(ctx).Debug("fetching grammar repository", "dir", m.dir, "refspec", refSpec)

	err = repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: remoteName,
		RefSpecs:   []gitconfig.RefSpec{refSpec},
		Depth:      m.opts.Depth,
		Tags:       git.NoTags,
		Force:      true,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return Result{}, fmt.Errorf("failed to fetch %s: %w", m.opts.URL, err)
	}

	ref, err := repo.Reference(plumbing.NewRemoteReferenceName(remoteName, m.opts.Branch), true)
	if err != nil {
		return Result{}, fmt.Errorf("failed to resolve %s/%s: %w", remoteName, m.opts.Branch, err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return Result{}, fmt.Errorf("failed to open worktree: %w", err)
	}
	if err := wt.Reset(&git.ResetOptions{Commit: ref.Hash(), Mode: git.HardReset}); err != nil {
		return Result{}, fmt.Errorf("failed to reset mirror to %s: %w", ref.Hash(), err)
	}

	log.FromContext(ctx).Info("updated grammar repository", "commit", ref.Hash().String())
	return Result{Action: ActionUpdated, Commit: ref.Hash().String()}, nil
}
