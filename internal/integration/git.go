package integration

import (
	"context"
	"fmt"
	"time"

	git "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"

	"stride/api/internal/store"
)

const gitCheckTimeout = 20 * time.Second

type refLister func(ctx context.Context, repoURL string, auth transport.AuthMethod) ([]*plumbing.Reference, error)

// GitConnector checks a repository by listing its remote refs. Nothing is cloned.
type GitConnector struct {
	list refLister
}

func NewGitConnector() *GitConnector {
	return &GitConnector{list: listRemote}
}

func listRemote(ctx context.Context, repoURL string, auth transport.AuthMethod) ([]*plumbing.Reference, error) {
	remote := git.NewRemote(memory.NewStorage(), &gitconfig.RemoteConfig{
		Name: "origin",
		URLs: []string{repoURL},
	})
	return remote.ListContext(ctx, &git.ListOptions{Auth: auth})
}

func gitAuth(cfg store.IntegrationConfig) transport.AuthMethod {
	if cfg.Token == "" {
		return nil
	}
	// Git hosts accept a token as the basic-auth password with any username.
	return &githttp.BasicAuth{Username: "x-access-token", Password: cfg.Token}
}

// Check succeeds when the repository is reachable and cfg.Branch exists.
func (g *GitConnector) Check(ctx context.Context, cfg store.IntegrationConfig) error {
	ctx, cancel := context.WithTimeout(ctx, gitCheckTimeout)
	defer cancel()

	refs, err := g.list(ctx, cfg.RepoURL, gitAuth(cfg))
	if err != nil {
		return fmt.Errorf("list remote refs: %w", err)
	}
	branch := cfg.Branch
	if branch == "" {
		branch = "main"
	}
	want := plumbing.NewBranchReferenceName(branch)
	for _, ref := range refs {
		if ref.Name() == want {
			return nil
		}
	}
	return fmt.Errorf("branch %q not found", branch)
}
