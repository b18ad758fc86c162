package docstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// GitRepo keeps the document as one file on a branch of a local repository.
// The revision token is the file's blob hash, the same value the GitHub
// Contents API reports as sha.
type GitRepo struct {
	dir    string
	branch string
	file   string
	author string
	mu     sync.Mutex
}

func NewGitRepo(dir, branch, file string) *GitRepo {
	return &GitRepo{
		dir:    dir,
		branch: branch,
		file:   path.Clean(filepath.ToSlash(file)),
		author: "CMS Edge",
	}
}

// Ensure creates the repository with seed as the first commit when the
// directory does not exist yet.
func (g *GitRepo) Ensure(seed []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, err := os.Stat(filepath.Join(g.dir, ".git")); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat repo path: %w", err)
	}

	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		return fmt.Errorf("create repo dir: %w", err)
	}
	repo, err := git.PlainInit(g.dir, false)
	if err != nil {
		return fmt.Errorf("init repo: %w", err)
	}
	hash, err := g.commitFile(repo, seed, "Import document baseline")
	if err != nil {
		return err
	}
	branchRef := plumbing.NewBranchReferenceName(g.branch)
	if err := repo.Storer.SetReference(plumbing.NewHashReference(branchRef, hash)); err != nil {
		return fmt.Errorf("set %s branch ref: %w", g.branch, err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, branchRef)); err != nil {
		return fmt.Errorf("set HEAD to %s: %w", g.branch, err)
	}
	return nil
}

func (g *GitRepo) Read(_ context.Context) (Snapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	repo, err := git.PlainOpen(g.dir)
	if err != nil {
		return Snapshot{}, fmt.Errorf("open repo: %w", err)
	}
	raw, revision, err := g.head(repo)
	if err != nil {
		return Snapshot{}, err
	}
	return decodeSnapshot(raw, revision)
}

func (g *GitRepo) Write(_ context.Context, req WriteRequest) (Commit, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	repo, err := git.PlainOpen(g.dir)
	if err != nil {
		return Commit{}, fmt.Errorf("open repo: %w", err)
	}

	_, current, err := g.head(repo)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Commit{}, err
	}
	if current != req.Revision {
		return Commit{}, conflictError(req.Revision, current)
	}

	if err := checkoutBranch(repo, g.branch); err != nil {
		return Commit{}, err
	}
	hash, err := g.commitFile(repo, req.Content, req.Message)
	if err != nil {
		return Commit{}, err
	}
	return Commit{
		ID:       hash.String(),
		Revision: plumbing.ComputeHash(plumbing.BlobObject, req.Content).String(),
	}, nil
}

// History lists the most recent commits that touched the document, newest
// first. A limit of zero returns the whole log.
func (g *GitRepo) History(_ context.Context, limit int) ([]CommitInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	repo, err := git.PlainOpen(g.dir)
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	ref, err := repo.Reference(plumbing.NewBranchReferenceName(g.branch), true)
	if err != nil {
		return nil, fmt.Errorf("resolve branch %s: %w", g.branch, err)
	}

	file := g.file
	iter, err := repo.Log(&git.LogOptions{From: ref.Hash(), FileName: &file})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]CommitInfo, 0, limit)
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, CommitInfo{
			ID:        commitObj.Hash.String(),
			Message:   commitObj.Message,
			Author:    commitObj.Author.Name,
			CreatedAt: commitObj.Author.When.UTC(),
		})
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// head returns the file content and blob hash at the tip of the branch.
func (g *GitRepo) head(repo *git.Repository) ([]byte, string, error) {
	ref, err := repo.Reference(plumbing.NewBranchReferenceName(g.branch), true)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, "", fmt.Errorf("%w: branch %s", ErrNotFound, g.branch)
		}
		return nil, "", fmt.Errorf("resolve branch %s: %w", g.branch, err)
	}
	commitObj, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, "", fmt.Errorf("load commit object: %w", err)
	}
	file, err := commitObj.File(g.file)
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return nil, "", fmt.Errorf("%w: %s", ErrNotFound, g.file)
		}
		return nil, "", fmt.Errorf("load %s from commit: %w", g.file, err)
	}
	reader, err := file.Reader()
	if err != nil {
		return nil, "", fmt.Errorf("open content reader: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, "", fmt.Errorf("read content bytes: %w", err)
	}
	return raw, file.Hash.String(), nil
}

func (g *GitRepo) commitFile(repo *git.Repository, payload []byte, message string) (plumbing.Hash, error) {
	worktree, err := repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("open worktree: %w", err)
	}

	target := filepath.Join(worktree.Filesystem.Root(), filepath.FromSlash(g.file))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("create content dir: %w", err)
	}
	if err := os.WriteFile(target, payload, 0o644); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("write %s: %w", g.file, err)
	}
	if _, err := worktree.Add(g.file); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("git add content: %w", err)
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: true,
		Author: &object.Signature{
			Name:  g.author,
			Email: "cms@localhost",
			When:  time.Now(),
		},
	})
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("commit content: %w", err)
	}
	return hash, nil
}

func checkoutBranch(repo *git.Repository, branchName string) error {
	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}

	branchRef := plumbing.NewBranchReferenceName(branchName)
	if _, err := repo.Reference(branchRef, true); err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			if err := worktree.Checkout(&git.CheckoutOptions{Branch: branchRef, Create: true}); err != nil {
				return fmt.Errorf("create branch checkout %s: %w", branchName, err)
			}
			return nil
		}
		return fmt.Errorf("resolve branch %s: %w", branchName, err)
	}

	if err := worktree.Checkout(&git.CheckoutOptions{Branch: branchRef, Force: true}); err != nil {
		return fmt.Errorf("checkout branch %s: %w", branchName, err)
	}
	return nil
}
