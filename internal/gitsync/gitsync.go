// Package gitsync implements the Clone/Sync pipeline stage's Git plumbing:
// shallow clone for full_process tasks, and fetch+diff+fast-forward for
// incremental_sync tasks, entirely through go-git so no subprocess is
// shelled out and no credential ever touches a command-line argument
// vector.
package gitsync

import (
	"context"
	"fmt"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/ferg-cod3s/conexus/internal/security"
)

// ChangeKind classifies one path's diff entry.
type ChangeKind string

const (
	Added    ChangeKind = "added"
	Modified ChangeKind = "modified"
	Deleted  ChangeKind = "deleted"
)

// Change is one path's classified diff entry. Renames are decomposed into a
// Deleted entry for the old path and an Added entry for the new path before
// any downstream stage sees them, per the Incremental Syncer's invariant.
type Change struct {
	Path string
	Kind ChangeKind
}

// CloneTimeout and FetchTimeout bound the corresponding Git network calls,
// per the spec's suspension-point timeouts.
const (
	CloneTimeout = 600 * time.Second
	FetchTimeout = 120 * time.Second
	DiffTimeout  = 60 * time.Second
)

func basicAuth(token string) *http.BasicAuth {
	if token == "" {
		return nil
	}
	// The token is the password; it is never interpolated into a shell
	// command line or logged — go-git carries it only in the in-memory
	// transport auth struct.
	return &http.BasicAuth{Username: "oauth2", Password: token}
}

// Clone performs a shallow, single-branch clone of url's branch into dir.
// It returns the checked-out commit hash. Any error message is scrubbed
// before being returned, in case go-git echoes the URL (which may itself
// carry no credential, since auth is passed out-of-band).
func Clone(ctx context.Context, url, branch, token, dir string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, CloneTimeout)
	defer cancel()

	opts := &git.CloneOptions{
		URL:           url,
		Depth:         1,
		SingleBranch:  true,
		Auth:          basicAuth(token),
	}
	if branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(branch)
	}

	repo, err := git.PlainCloneContext(cctx, dir, false, opts)
	if err != nil {
		return "", fmt.Errorf("clone: %s", security.ScrubCredentials(err.Error()))
	}

	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolve HEAD after clone: %w", err)
	}
	return head.Hash().String(), nil
}

// Sync fetches the remote branch, computes a name-status diff between the
// current HEAD and the remote tip, fast-forwards the local working copy,
// and returns the classified change set plus the new HEAD commit hash. It
// refuses to rewrite history: if the remote has diverged such that a
// fast-forward is impossible, it returns an error rather than merging.
func Sync(ctx context.Context, dir, branch, token string) ([]Change, string, error) {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return nil, "", fmt.Errorf("open repo at %s: %w", dir, err)
	}

	oldHead, err := repo.Head()
	if err != nil {
		return nil, "", fmt.Errorf("resolve current HEAD: %w", err)
	}
	oldCommit, err := repo.CommitObject(oldHead.Hash())
	if err != nil {
		return nil, "", fmt.Errorf("load current commit: %w", err)
	}

	fctx, cancel := context.WithTimeout(ctx, FetchTimeout)
	defer cancel()
	err = repo.FetchContext(fctx, &git.FetchOptions{
		RemoteName: "origin",
		Auth:       basicAuth(token),
		Force:      false,
	})
	if err != nil && err != git.NoErrAlreadyUpToDate {
		return nil, "", fmt.Errorf("fetch: %s", security.ScrubCredentials(err.Error()))
	}

	remoteRef := plumbing.NewRemoteReferenceName("origin", branch)
	newRef, err := repo.Reference(remoteRef, true)
	if err != nil {
		return nil, "", fmt.Errorf("resolve remote ref %s: %w", remoteRef, err)
	}

	if newRef.Hash() == oldHead.Hash() {
		return nil, oldHead.Hash().String(), nil
	}

	newCommit, err := repo.CommitObject(newRef.Hash())
	if err != nil {
		return nil, "", fmt.Errorf("load remote commit: %w", err)
	}

	if !isAncestor(oldCommit, newCommit) {
		return nil, "", fmt.Errorf("remote has diverged from local HEAD; refusing non-fast-forward sync")
	}

	changes, err := diffNameStatus(ctx, oldCommit, newCommit)
	if err != nil {
		return nil, "", err
	}

	localBranchRef := plumbing.NewBranchReferenceName(branch)
	if err := repo.Storer.SetReference(plumbing.NewHashReference(localBranchRef, newRef.Hash())); err != nil {
		return nil, "", fmt.Errorf("fast-forward local branch: %w", err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, "", fmt.Errorf("open worktree: %w", err)
	}
	if err := wt.Checkout(&git.CheckoutOptions{Hash: newRef.Hash(), Force: true}); err != nil {
		return nil, "", fmt.Errorf("checkout fast-forwarded HEAD: %w", err)
	}

	return changes, newRef.Hash().String(), nil
}

// isAncestor reports whether old is an ancestor of (or equal to) new,
// establishing that advancing old->new is a fast-forward.
func isAncestor(old, new *object.Commit) bool {
	if old.Hash == new.Hash {
		return true
	}
	isAnc, err := old.IsAncestor(new)
	return err == nil && isAnc
}

// diffNameStatus computes a name-status diff between two commits and
// decomposes any detected rename into delete(old)+add(new), per the
// Incremental Syncer's invariant that renames never reach downstream
// stages as a single rename entry.
func diffNameStatus(ctx context.Context, oldCommit, newCommit *object.Commit) ([]Change, error) {
	_, cancel := context.WithTimeout(ctx, DiffTimeout)
	defer cancel()

	patch, err := oldCommit.Patch(newCommit)
	if err != nil {
		return nil, fmt.Errorf("compute diff: %w", err)
	}

	var changes []Change
	for _, fp := range patch.FilePatches() {
		from, to := fp.Files()
		switch {
		case from == nil && to != nil:
			changes = append(changes, Change{Path: to.Path(), Kind: Added})
		case from != nil && to == nil:
			changes = append(changes, Change{Path: from.Path(), Kind: Deleted})
		case from != nil && to != nil && from.Path() == to.Path():
			changes = append(changes, Change{Path: to.Path(), Kind: Modified})
		case from != nil && to != nil:
			// Rename: any similarity percentage is treated as delete+add
			// regardless of content similarity.
			changes = append(changes, Change{Path: from.Path(), Kind: Deleted})
			changes = append(changes, Change{Path: to.Path(), Kind: Added})
		}
	}
	return changes, nil
}
