// Package integration checks and notifies the external systems an organisation
// connects to Stride: a git host and Slack or generic webhooks.
package integration

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"stride/api/internal/store"
)

const (
	StatusOK    = "OK"
	StatusError = "ERROR"

	EventSprintCompleted = "sprint.completed"
	EventTest            = "integration.test"
)

// ConfigError names the first invalid config field.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string { return e.Field + " " + e.Message }

var ErrUnknownProvider = errors.New("unknown integration provider")

// Event is a notification fanned out to webhook integrations.
type Event struct {
	Name string         `json:"event"`
	Text string         `json:"text"`
	Data map[string]any `json:"data,omitempty"`
	At   time.Time      `json:"at"`
}

// ValidateConfig checks the fields provider needs and normalises cfg.
func ValidateConfig(provider string, cfg store.IntegrationConfig) (store.IntegrationConfig, error) {
	switch provider {
	case store.ProviderGit:
		cfg.RepoURL = strings.TrimSpace(cfg.RepoURL)
		if cfg.RepoURL == "" {
			return cfg, &ConfigError{Field: "config.repoUrl", Message: "is required"}
		}
		if err := checkURL(cfg.RepoURL, "https", "http", "ssh", "git"); err != nil {
			return cfg, &ConfigError{Field: "config.repoUrl", Message: err.Error()}
		}
		cfg.Branch = strings.TrimSpace(cfg.Branch)
		if cfg.Branch == "" {
			cfg.Branch = "main"
		}
	case store.ProviderSlack, store.ProviderWebhook:
		cfg.WebhookURL = strings.TrimSpace(cfg.WebhookURL)
		if cfg.WebhookURL == "" {
			return cfg, &ConfigError{Field: "config.webhookUrl", Message: "is required"}
		}
		if err := checkURL(cfg.WebhookURL, "https", "http"); err != nil {
			return cfg, &ConfigError{Field: "config.webhookUrl", Message: err.Error()}
		}
	default:
		return cfg, ErrUnknownProvider
	}
	return cfg, nil
}

func checkURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return errors.New("must be a valid URL")
	}
	if !slices.Contains(schemes, u.Scheme) {
		return fmt.Errorf("must use one of %s", strings.Join(schemes, ", "))
	}
	return nil
}

// Service dispatches checks and broadcasts by provider.
type Service struct {
	git    *GitConnector
	hooks  *WebhookClient
	logger *logrus.Logger
}

func NewService(git *GitConnector, hooks *WebhookClient, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{git: git, hooks: hooks, logger: logger}
}

// Test runs the provider's connectivity check.
func (s *Service) Test(ctx context.Context, integration store.Integration) error {
	switch integration.Provider {
	case store.ProviderGit:
		return s.git.Check(ctx, integration.Config)
	case store.ProviderSlack, store.ProviderWebhook:
		return s.hooks.Post(ctx, integration.Provider, integration.Config, Event{
			Name: EventTest,
			Text: "Stride integration test",
			At:   time.Now().UTC(),
		})
	default:
		return ErrUnknownProvider
	}
}

func subscribed(cfg store.IntegrationConfig, event string) bool {
	return len(cfg.Events) == 0 || slices.Contains(cfg.Events, event)
}

// Broadcast posts event to every enabled webhook integration subscribed to it.
// Failures are logged per integration; the count of successful posts is returned.
func (s *Service) Broadcast(ctx context.Context, integrations []store.Integration, event Event) int {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	delivered := 0
	for _, integration := range integrations {
		if !integration.Enabled || integration.Provider == store.ProviderGit || !subscribed(integration.Config, event.Name) {
			continue
		}
		if err := s.hooks.Post(ctx, integration.Provider, integration.Config, event); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"provider": integration.Provider,
				"event":    event.Name,
			}).Warn("integration broadcast failed")
			continue
		}
		delivered++
	}
	return delivered
}
