// Package oauth implements Google sign-in over OpenID Connect.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

const (
	ProviderGoogle = "google"
	googleIssuer   = "https://accounts.google.com"
)

var (
	ErrMissingCode    = errors.New("missing authorization code")
	ErrMissingIDToken = errors.New("missing id_token in token response")
	ErrMissingEmail   = errors.New("missing email in id_token")
)

// Identity is the verified subset of id_token claims Stride uses.
type Identity struct {
	Provider      string
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
}

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// IssuerURL defaults to Google's issuer.
	IssuerURL string
}

// Google runs the authorization-code flow against Google's OIDC endpoints.
type Google struct {
	verifier     *oidc.IDTokenVerifier
	oauth2Config *oauth2.Config
}

// NewGoogle discovers the provider configuration. It makes a network call.
func NewGoogle(ctx context.Context, cfg Config) (*Google, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RedirectURL == "" {
		return nil, errors.New("oauth: client id, client secret and redirect url are required")
	}
	issuer := cfg.IssuerURL
	if issuer == "" {
		issuer = googleIssuer
	}

	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("discover oidc provider: %w", err)
	}

	return &Google{
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
		},
	}, nil
}

func (g *Google) AuthURL(state string) string {
	return g.oauth2Config.AuthCodeURL(state)
}

// Exchange trades code for tokens and verifies the returned id_token.
func (g *Google) Exchange(ctx context.Context, code string) (Identity, error) {
	if strings.TrimSpace(code) == "" {
		return Identity{}, ErrMissingCode
	}
	token, err := g.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return Identity{}, fmt.Errorf("exchange code: %w", err)
	}
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return Identity{}, ErrMissingIDToken
	}
	idToken, err := g.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return Identity{}, fmt.Errorf("verify id_token: %w", err)
	}

	var claims idClaims
	if err := idToken.Claims(&claims); err != nil {
		return Identity{}, fmt.Errorf("parse id_token claims: %w", err)
	}
	return claims.identity(idToken.Subject)
}

type idClaims struct {
	Email         string `json:"email"`
	EmailVerified any    `json:"email_verified"`
	Name          string `json:"name"`
}

// Google has sent email_verified both as a bool and as the string "true".
func (c idClaims) verified() bool {
	switch v := c.EmailVerified.(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	}
	return false
}

func (c idClaims) identity(subject string) (Identity, error) {
	email := strings.ToLower(strings.TrimSpace(c.Email))
	if email == "" {
		return Identity{}, ErrMissingEmail
	}
	name := strings.TrimSpace(c.Name)
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}
	return Identity{
		Provider:      ProviderGoogle,
		Subject:       subject,
		Email:         email,
		EmailVerified: c.verified(),
		Name:          name,
	}, nil
}
