package app

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"strings"

	"stride/api/internal/audit"
	"stride/api/internal/auth"
	"stride/api/internal/cache"
	"stride/api/internal/integration"
	"stride/api/internal/rbac"
	"stride/api/internal/store"
	"stride/api/internal/util"
)

var providers = []string{store.ProviderGit, store.ProviderSlack, store.ProviderWebhook}

// IntegrationInput configures one provider. Blank Token and Secret keep the
// stored values so clients can edit without re-entering credentials.
type IntegrationInput struct {
	Provider string                  `json:"-"`
	Enabled  bool                    `json:"enabled"`
	Config   store.IntegrationConfig `json:"config"`
}

func normalizeProvider(provider string) (string, error) {
	provider = strings.ToUpper(strings.TrimSpace(provider))
	if provider == "" {
		return "", required("provider")
	}
	if !slices.Contains(providers, provider) {
		return "", invalid("provider", "must be one of GIT, SLACK, WEBHOOK")
	}
	return provider, nil
}

func (s *Service) requireIntegration(ctx context.Context, provider string) (store.Integration, error) {
	i, err := s.store.GetIntegration(ctx, provider)
	if errors.Is(err, store.ErrNotFound) {
		return store.Integration{}, notFound("Integration")
	}
	return i, err
}

func (s *Service) UpsertIntegration(ctx context.Context, actor *auth.Session, in IntegrationInput) ActionResult {
	var (
		provider string
		config   store.IntegrationConfig
	)
	return s.run(ctx, actor, mutation{
		action: audit.IntegrationConfigured,
		entity: audit.EntityIntegration,
		perm:   rbac.PermIntegrationManage,
		validate: func() (err error) {
			if provider, err = normalizeProvider(in.Provider); err != nil {
				return err
			}
			config, err = integration.ValidateConfig(provider, in.Config)
			return err
		},
		check: func(ctx context.Context) error {
			existing, err := s.store.GetIntegration(ctx, provider)
			if errors.Is(err, store.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			if config.Token == "" {
				config.Token = existing.Config.Token
			}
			if config.Secret == "" {
				config.Secret = existing.Config.Secret
			}
			return nil
		},
		write: func(ctx context.Context) (written, error) {
			stored, err := s.store.UpsertIntegration(ctx, store.Integration{
				ID:       util.NewID("int"),
				Provider: provider,
				Enabled:  in.Enabled,
				Config:   config,
			})
			if err != nil {
				return written{}, err
			}
			detail := provider + " disabled"
			if stored.Enabled {
				detail = provider + " enabled"
			}
			return written{id: stored.ID, detail: detail}, nil
		},
		tags:    []string{cache.TagIntegrations},
		message: "Integration saved successfully",
	})
}

func (s *Service) RemoveIntegration(ctx context.Context, actor *auth.Session, provider string) ActionResult {
	var existing store.Integration
	return s.run(ctx, actor, mutation{
		action: audit.IntegrationRemoved,
		entity: audit.EntityIntegration,
		perm:   rbac.PermIntegrationManage,
		validate: func() (err error) {
			provider, err = normalizeProvider(provider)
			return err
		},
		check: func(ctx context.Context) (err error) {
			existing, err = s.requireIntegration(ctx, provider)
			return err
		},
		write: func(ctx context.Context) (written, error) {
			deleted, err := s.store.DeleteIntegration(ctx, provider)
			if err != nil {
				return written{}, err
			}
			if !deleted {
				return written{}, notFound("Integration")
			}
			return written{id: existing.ID, detail: provider}, nil
		},
		tags:    []string{cache.TagIntegrations},
		message: "Integration removed successfully",
	})
}

// TestIntegration runs the provider check synchronously and records its outcome.
// A failed check is still a successful action; the result message carries the
// failure.
func (s *Service) TestIntegration(ctx context.Context, actor *auth.Session, provider string) ActionResult {
	var (
		existing store.Integration
		checkErr error
	)
	result := s.run(ctx, actor, mutation{
		action: audit.IntegrationTested,
		entity: audit.EntityIntegration,
		perm:   rbac.PermIntegrationManage,
		validate: func() (err error) {
			provider, err = normalizeProvider(provider)
			return err
		},
		check: func(ctx context.Context) (err error) {
			existing, err = s.requireIntegration(ctx, provider)
			return err
		},
		write: func(ctx context.Context) (written, error) {
			status := integration.StatusOK
			if checkErr = s.integrations.Test(ctx, existing); checkErr != nil {
				status = integration.StatusError
			}
			if err := s.store.RecordIntegrationCheck(ctx, provider, status, s.now().UTC()); err != nil {
				return written{}, err
			}
			return written{id: existing.ID, detail: provider + " " + status}, nil
		},
		tags:    []string{cache.TagIntegrations},
		message: "Integration test succeeded",
	})
	if result.Success && checkErr != nil {
		result.Message = "Integration test failed: " + checkErr.Error()
	}
	return result
}

// UpdateSettings overlays a JSON settings document on the stored settings.
func (s *Service) UpdateSettings(ctx context.Context, actor *auth.Session, body []byte) ActionResult {
	var next store.OrganizationSettings
	return s.run(ctx, actor, mutation{
		action: audit.SettingsUpdated,
		entity: audit.EntitySettings,
		perm:   rbac.PermSettingsUpdate,
		check: func(ctx context.Context) error {
			current, err := s.settings(ctx)
			if err != nil {
				return err
			}
			next, err = store.DecodeSettings(bytes.NewReader(body), current)
			if err != nil {
				return &actionError{kind: failValidation, message: err.Error()}
			}
			next.General.CompanyName = strings.TrimSpace(next.General.CompanyName)
			return next.Validate()
		},
		write: func(ctx context.Context) (written, error) {
			if err := s.store.SaveSettings(ctx, next, actor.UserID); err != nil {
				return written{}, err
			}
			return written{id: "organization"}, nil
		},
		tags:    []string{cache.TagSettings},
		message: "Settings updated successfully",
	})
}
