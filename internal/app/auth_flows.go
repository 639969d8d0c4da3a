package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"stride/api/internal/audit"
	"stride/api/internal/auth"
	"stride/api/internal/authpw"
	"stride/api/internal/cache"
	"stride/api/internal/logging"
	"stride/api/internal/oauth"
	"stride/api/internal/rbac"
	"stride/api/internal/store"
	"stride/api/internal/util"
)

var (
	errInvalidCredentials = domainError(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil)
	errAccountDeactivated = domainError(http.StatusForbidden, "ACCOUNT_DEACTIVATED", "Account is deactivated", nil)
	errInvalidUserToken   = domainError(http.StatusBadRequest, "INVALID_TOKEN", "Invalid or expired token", nil)
	errOAuthUnavailable   = domainError(http.StatusServiceUnavailable, "OAUTH_UNAVAILABLE", "Google sign-in is not configured", nil)
	errOAuthState         = domainError(http.StatusBadRequest, "INVALID_STATE", "Sign-in session expired. Please try again.", nil)
	errOAuthFailed        = domainError(http.StatusUnauthorized, "OAUTH_FAILED", "Google sign-in failed", nil)
	errOAuthEmailTaken    = domainError(http.StatusConflict, "EMAIL_EXISTS", "An account with this email already exists. Sign in with your password first.", nil)
	errOAuthOrphan        = domainError(http.StatusConflict, "ACCOUNT_NEEDS_REPAIR", "This Google account is linked to a missing user. Contact an administrator.", nil)
)

// authError maps password-flow errors onto response errors.
func authError(err error) error {
	var fieldErr *authpw.FieldError
	switch {
	case errors.As(err, &fieldErr):
		return domainError(http.StatusBadRequest, "VALIDATION_ERROR", fieldErr.Error(), map[string]string{"field": fieldErr.Field})
	case errors.Is(err, authpw.ErrInvalidCredentials):
		return errInvalidCredentials
	case errors.Is(err, authpw.ErrAccountDeactivated):
		return errAccountDeactivated
	case errors.Is(err, authpw.ErrInvalidToken):
		return errInvalidUserToken
	}
	return err
}

type SignInInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignIn checks credentials and issues a session.
func (s *Service) SignIn(ctx context.Context, in SignInInput) (Tokens, error) {
	user, err := s.passwords.SignIn(ctx, in.Email, in.Password)
	if err != nil {
		s.metrics.Action("SIGN_IN", "unauthorized")
		return Tokens{}, authError(err)
	}
	tokens, err := s.issueSession(ctx, user)
	if err != nil {
		return Tokens{}, err
	}
	s.metrics.Action("SIGN_IN", "success")
	return tokens, nil
}

// VerifyEmail consumes a verification token.
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	userID, err := s.passwords.VerifyEmail(ctx, token)
	if err != nil {
		return authError(err)
	}
	s.recorder.Record(ctx, audit.Entry{
		ActorID: userID, Action: audit.EmailVerified, Entity: audit.EntityUser, EntityID: userID,
	})
	s.invalidate(ctx, cache.TagUsers, cache.TagAudit)
	return nil
}

// ResendVerification issues a fresh verification token for the current user.
// The token is returned for development echo when SMTP is not configured.
func (s *Service) ResendVerification(ctx context.Context, actor *auth.Session) (string, error) {
	user, err := s.store.GetUserByID(ctx, actor.UserID)
	if err != nil {
		return "", err
	}
	if user.EmailVerifiedAt != nil {
		return "", domainError(http.StatusConflict, "ALREADY_VERIFIED", "Email is already verified", nil)
	}
	token, err := s.passwords.IssueVerification(ctx, user.ID)
	if err != nil {
		return "", err
	}
	if s.mailer.IsConfigured() {
		if err := s.mailer.SendVerificationEmail(user.Email, user.Name, token); err != nil {
			return "", fmt.Errorf("send verification email: %w", err)
		}
	}
	return token, nil
}

// RequestPasswordReset always succeeds for well-formed input so the endpoint
// does not reveal which emails exist. The token is returned for development echo.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	if blank(email) {
		return "", authError(&authpw.FieldError{Field: "email", Message: "is required"})
	}
	token, user, err := s.passwords.RequestPasswordReset(ctx, email)
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", nil
	}
	if s.mailer.IsConfigured() {
		if err := s.mailer.SendPasswordResetEmail(user.Email, user.Name, token); err != nil {
			logging.FromContext(ctx).WithError(err).WithField("user_id", user.ID).Error("send password reset email failed")
		}
	}
	return token, nil
}

// ResetPassword consumes a reset token, stores the new password and signs the
// user out everywhere.
func (s *Service) ResetPassword(ctx context.Context, token, password string) error {
	userID, err := s.passwords.ResetPassword(ctx, token, password)
	if err != nil {
		return authError(err)
	}
	s.recorder.Record(ctx, audit.Entry{
		ActorID: userID, Action: audit.PasswordReset, Entity: audit.EntityUser, EntityID: userID, Detail: "via emailed token",
	})
	if err := s.sessions.RevokeUser(ctx, userID); err != nil {
		logging.FromContext(ctx).WithError(err).WithField("user_id", userID).Warn("revoke refresh tokens failed")
	}
	s.invalidate(ctx, cache.TagAudit)
	return nil
}

// =============================================================================
// OAuth
// =============================================================================

// OAuthStart returns the provider authorization URL with a fresh state.
func (s *Service) OAuthStart(ctx context.Context) (string, error) {
	if s.oauth == nil {
		return "", errOAuthUnavailable
	}
	state := util.NewToken()
	if err := s.sessions.SaveOAuthState(ctx, state); err != nil {
		return "", fmt.Errorf("save oauth state: %w", err)
	}
	return s.oauth.AuthURL(state), nil
}

// OAuthCallback finishes the authorization-code flow. The user is resolved by
// linked account, then by verified email, and is otherwise created as an employee.
func (s *Service) OAuthCallback(ctx context.Context, code, state string) (Tokens, error) {
	if s.oauth == nil {
		return Tokens{}, errOAuthUnavailable
	}
	if blank(code) {
		return Tokens{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "code is required", map[string]string{"field": "code"})
	}
	if blank(state) {
		return Tokens{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "state is required", map[string]string{"field": "state"})
	}
	ok, err := s.sessions.ConsumeOAuthState(ctx, state)
	if err != nil {
		return Tokens{}, fmt.Errorf("consume oauth state: %w", err)
	}
	if !ok {
		return Tokens{}, errOAuthState
	}

	identity, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		logging.FromContext(ctx).WithError(err).Warn("oauth exchange failed")
		return Tokens{}, errOAuthFailed
	}

	user, err := s.resolveOAuthUser(ctx, identity)
	if err != nil {
		return Tokens{}, err
	}
	if user.Status != store.UserActive {
		return Tokens{}, errAccountDeactivated
	}
	return s.issueSession(ctx, user)
}

func (s *Service) resolveOAuthUser(ctx context.Context, identity oauth.Identity) (store.User, error) {
	log := logging.FromContext(ctx).WithFields(logrus.Fields{"provider": identity.Provider, "subject": identity.Subject})

	account, err := s.store.GetAccount(ctx, identity.Provider, identity.Subject)
	switch {
	case err == nil:
		user, err := s.store.GetUserByID(ctx, account.UserID)
		if errors.Is(err, store.ErrNotFound) {
			log.WithField("account_id", account.ID).Warn("oauth account points at a missing user")
			return store.User{}, errOAuthOrphan
		}
		return user, err
	case !errors.Is(err, store.ErrNotFound):
		return store.User{}, err
	}

	existing, err := s.store.GetUserByEmail(ctx, identity.Email)
	switch {
	case err == nil:
		if !identity.EmailVerified {
			return store.User{}, errOAuthEmailTaken
		}
		if err := s.linkAccount(ctx, existing.ID, identity); err != nil {
			return store.User{}, err
		}
		return existing, nil
	case !errors.Is(err, store.ErrNotFound):
		return store.User{}, err
	}

	user := store.User{
		ID:     util.NewID("usr"),
		Name:   identity.Name,
		Email:  identity.Email,
		Role:   string(rbac.RoleEmployee),
		Status: store.UserActive,
	}
	if user.Name == "" {
		user.Name = identity.Email
	}
	if identity.EmailVerified {
		user.EmailVerifiedAt = ptr(s.now().UTC())
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return store.User{}, errOAuthEmailTaken
		}
		return store.User{}, err
	}
	s.recorder.Record(ctx, audit.Entry{
		ActorID: user.ID, Action: audit.UserRegistered, Entity: audit.EntityUser, EntityID: user.ID, Detail: "via " + identity.Provider,
	})
	if err := s.linkAccount(ctx, user.ID, identity); err != nil {
		return store.User{}, err
	}
	s.invalidate(ctx, cache.TagUsers, cache.TagAudit)
	if err := s.indexUser(ctx, user); err != nil {
		log.WithError(err).Warn("index oauth user failed")
	}
	return user, nil
}

func (s *Service) linkAccount(ctx context.Context, userID string, identity oauth.Identity) error {
	account := store.Account{
		ID:        util.NewID("acct"),
		UserID:    userID,
		Provider:  identity.Provider,
		Subject:   identity.Subject,
		Email:     identity.Email,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.LinkAccount(ctx, account); err != nil {
		return fmt.Errorf("link oauth account: %w", err)
	}
	s.recorder.Record(ctx, audit.Entry{
		ActorID:  userID,
		Action:   audit.OAuthAccountLinked,
		Entity:   audit.EntityAccount,
		EntityID: account.ID,
		Detail:   identity.Provider + " " + identity.Email,
	})
	return nil
}

// Me returns the signed-in user.
func (s *Service) Me(ctx context.Context, actor *auth.Session) (*UserView, error) {
	if actor == nil {
		return nil, nil
	}
	user, err := s.store.GetUserByID(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	view := userView(user)
	return &view, nil
}
