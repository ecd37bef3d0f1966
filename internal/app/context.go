package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bountyline/internal/config"
	"bountyline/internal/repo"
)

// ResolveRepoAndConfig picks the active repository and ensures its config
// exists in the DB, seeding defaults if missing. It prefers the override,
// then a single-repository DB. The repository is named "owner/name".
func ResolveRepoAndConfig(ctx context.Context, repoOverride string, r repo.Repo) (string, *config.Config, error) {
	repository := repoOverride
	if repository == "" {
		repos, err := r.ListRepositories(ctx)
		if err != nil {
			return "", nil, err
		}
		if len(repos) != 1 {
			return "", nil, fmt.Errorf("repository not specified; use --repo owner/name")
		}
		repository = repos[0]
	}
	owner, name, ok := strings.Cut(repository, "/")
	if !ok || owner == "" || name == "" {
		return "", nil, fmt.Errorf("repository must be owner/name, got %q", repository)
	}

	cfg, err := r.GetRepoConfig(ctx, repository)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		cfg = config.Default(owner, name)
		if err := r.UpsertRepoConfig(ctx, repository, cfg); err != nil {
			return "", nil, fmt.Errorf("seed repo config: %w", err)
		}
	}
	cfg.Repository.Owner = owner
	cfg.Repository.Name = name
	return repository, cfg, nil
}
