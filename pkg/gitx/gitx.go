// Package gitx wraps go-git behind the narrow version-control capability the
// orchestrator needs: worktree status, commit log since the last release tag,
// tag creation, and push. Everything else git can do stays out of reach.
package gitx

import (
	"context"
	"io"
	"time"

	"github.com/Masterminds/semver/v3"
	git "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/pkg/errors"
	"github.com/relkit/relkit/pkg/semrel"
)

// ErrDirtyWorktree reports uncommitted changes. A release aborts immediately
// on it, before any mutation.
var ErrDirtyWorktree = errors.New("working tree has uncommitted changes")

// ErrNoCommits reports a repository with no commit history.
var ErrNoCommits = errors.New("repository has no commits")

// Repo is an open repository at a working tree root.
type Repo struct {
	repo *git.Repository
	root string
}

// Open opens the repository whose working tree is rooted at root.
func Open(root string) (*Repo, error) {
	repo, err := git.PlainOpen(root)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open git repository at %s", root)
	}
	return &Repo{repo: repo, root: root}, nil
}

// Root returns the working tree root this repository was opened at.
func (r *Repo) Root() string {
	return r.root
}

// IsClean reports whether the working tree has no uncommitted changes.
func (r *Repo) IsClean() (bool, error) {
	worktree, err := r.repo.Worktree()
	if err != nil {
		return false, errors.Wrap(err, "failed to get worktree")
	}

	status, err := worktree.Status()
	if err != nil {
		return false, errors.Wrap(err, "failed to read worktree status")
	}

	return status.IsClean(), nil
}

// LatestVersionTag returns the highest semver release tag and its parsed
// version. Tags that do not parse as versions are ignored. A repository with
// no version tag returns an empty name and nil version, which callers treat
// as "first release".
func (r *Repo) LatestVersionTag() (string, *semver.Version, error) {
	tags, err := r.repo.Tags()
	if err != nil {
		return "", nil, errors.Wrap(err, "failed to list tags")
	}
	defer tags.Close()

	var (
		bestName string
		best     *semver.Version
	)
	err = tags.ForEach(func(ref *plumbing.Reference) error {
		name := ref.Name().Short()
		v, parseErr := semrel.ParseVersion(name)
		if parseErr != nil {
			return nil // not a release tag
		}
		if best == nil || v.GreaterThan(best) {
			best = v
			bestName = name
		}
		return nil
	})
	if err != nil {
		return "", nil, errors.Wrap(err, "failed to iterate tags")
	}

	return bestName, best, nil
}

// CommitsSince returns the commits from HEAD back to (excluding) the commit
// the given tag points at, oldest first. An empty tag returns the whole
// history, which is the first-release case.
func (r *Repo) CommitsSince(tag string) ([]semrel.Commit, error) {
	head, err := r.repo.Head()
	if err != nil {
		return nil, errors.Wrap(ErrNoCommits, err.Error())
	}

	var boundary plumbing.Hash
	if tag != "" {
		hash, err := r.repo.ResolveRevision(plumbing.Revision(tag))
		if err != nil {
			return nil, errors.Wrapf(err, "failed to resolve tag %s", tag)
		}
		boundary = *hash
	}

	iter, err := r.repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, errors.Wrap(err, "failed to read commit log")
	}
	defer iter.Close()

	var commits []semrel.Commit
	for {
		commit, err := iter.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "failed to iterate commits")
		}
		if commit.Hash == boundary {
			break
		}
		commits = append(commits, semrel.Commit{
			Hash:    commit.Hash.String(),
			Message: commit.Message,
		})
	}

	// log walks newest first; callers want original commit order
	for i, j := 0, len(commits)-1; i < j; i, j = i+1, j-1 {
		commits[i], commits[j] = commits[j], commits[i]
	}

	return commits, nil
}

// CreateTag creates an annotated tag at HEAD. The tagger identity comes from
// the repository's git config, falling back to a fixed identity when none is
// set.
func (r *Repo) CreateTag(name, message string) error {
	head, err := r.repo.Head()
	if err != nil {
		return errors.Wrap(ErrNoCommits, err.Error())
	}

	_, err = r.repo.CreateTag(name, head.Hash(), &git.CreateTagOptions{
		Tagger:  r.tagger(),
		Message: message,
	})
	if err != nil {
		return errors.Wrapf(err, "failed to create tag %s", name)
	}
	return nil
}

// Commit records the staged changes as a new commit and returns its hash.
// go-git rejects an empty commit, so attempting this with nothing staged
// returns an error rather than an empty commit.
func (r *Repo) Commit(message string) (string, error) {
	worktree, err := r.repo.Worktree()
	if err != nil {
		return "", errors.Wrap(err, "failed to get worktree")
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: r.tagger(),
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to create commit")
	}
	return hash.String(), nil
}

func (r *Repo) tagger() *object.Signature {
	sig := &object.Signature{
		Name:  "relkit",
		Email: "relkit@localhost",
		When:  time.Now(),
	}

	cfg, err := r.repo.ConfigScoped(gitconfig.SystemScope)
	if err == nil && cfg.User.Name != "" {
		sig.Name = cfg.User.Name
		sig.Email = cfg.User.Email
	}

	return sig
}

// Push pushes the current branch and all tags to origin. Other local
// branches are left alone. An already-up-to-date remote is a success.
func (r *Repo) Push(ctx context.Context) error {
	head, err := r.repo.Head()
	if err != nil {
		return errors.Wrap(ErrNoCommits, err.Error())
	}

	err = r.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: "origin",
		RefSpecs:   pushRefSpecs(head.Name()),
	})
	if err != nil && err != git.NoErrAlreadyUpToDate {
		return errors.Wrap(err, "failed to push to origin")
	}
	return nil
}

// pushRefSpecs builds the refspecs for one release push: the branch HEAD is
// on, plus every tag.
func pushRefSpecs(branch plumbing.ReferenceName) []gitconfig.RefSpec {
	return []gitconfig.RefSpec{
		gitconfig.RefSpec(branch + ":" + branch),
		"refs/tags/*:refs/tags/*",
	}
}
