// Package authpw provides email/password authentication with verification and reset.
package authpw

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"stride/api/internal/auth"
	"stride/api/internal/rbac"
	"stride/api/internal/store"
	"stride/api/internal/util"
)

const (
	VerificationTTL = 24 * time.Hour
	ResetTTL        = time.Hour

	minPasswordLen = 8
	// bcrypt ignores input past 72 bytes.
	maxPasswordLen = 72
)

var (
	ErrEmailExists        = errors.New("email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountDeactivated = errors.New("account is deactivated")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

// FieldError names the first invalid input field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string { return e.Field + " " + e.Message }

// UserStore defines the storage interface for auth.
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	GetUserByID(ctx context.Context, id string) (store.User, error)
	CreateUser(ctx context.Context, user store.User) error
	UpdateUserPassword(ctx context.Context, userID, passwordHash string) error
	MarkEmailVerified(ctx context.Context, userID string) error
	SaveUserToken(ctx context.Context, token store.UserToken) error
	ConsumeUserToken(ctx context.Context, tokenHash, kind string, now time.Time) (string, error)
}

type Service struct {
	store UserStore
	cost  int
	now   func() time.Time
}

// NewService uses bcrypt cost; values outside bcrypt's range fall back to its default.
func NewService(store UserStore, cost int) *Service {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Service{store: store, cost: cost, now: time.Now}
}

func ValidatePassword(field, password string) error {
	if password == "" {
		return &FieldError{Field: field, Message: "is required"}
	}
	if len(password) < minPasswordLen {
		return &FieldError{Field: field, Message: fmt.Sprintf("must be at least %d characters", minPasswordLen)}
	}
	if len(password) > maxPasswordLen {
		return &FieldError{Field: field, Message: fmt.Sprintf("must be at most %d bytes", maxPasswordLen)}
	}
	return nil
}

// NormalizeEmail trims and lowercases email and checks its shape.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", &FieldError{Field: "email", Message: "is required"}
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", &FieldError{Field: "email", Message: "must be a valid email address"}
	}
	return email, nil
}

func (s *Service) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash. An empty hash (OAuth-only
// users) never matches.
func CheckPassword(hash, password string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

type RegisterResult struct {
	User              store.User
	VerificationToken string
}

// Register creates an ACTIVE employee with an unverified email and issues a
// verification token.
func (s *Service) Register(ctx context.Context, input RegisterInput) (RegisterResult, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return RegisterResult{}, &FieldError{Field: "name", Message: "is required"}
	}
	email, err := NormalizeEmail(input.Email)
	if err != nil {
		return RegisterResult{}, err
	}
	if err := ValidatePassword("password", input.Password); err != nil {
		return RegisterResult{}, err
	}

	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return RegisterResult{}, ErrEmailExists
	} else if !errors.Is(err, store.ErrNotFound) {
		return RegisterResult{}, fmt.Errorf("lookup email: %w", err)
	}

	hash, err := s.HashPassword(input.Password)
	if err != nil {
		return RegisterResult{}, err
	}

	user := store.User{
		ID:           util.NewID("usr"),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         string(rbac.RoleEmployee),
		Status:       store.UserActive,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return RegisterResult{}, ErrEmailExists
		}
		return RegisterResult{}, fmt.Errorf("create user: %w", err)
	}

	token, err := s.IssueVerification(ctx, user.ID)
	if err != nil {
		return RegisterResult{}, err
	}
	return RegisterResult{User: user, VerificationToken: token}, nil
}

// SignIn authenticates by email and password. Unknown emails and wrong passwords
// are indistinguishable to the caller.
func (s *Service) SignIn(ctx context.Context, email, password string) (store.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return store.User{}, &FieldError{Field: "email", Message: "is required"}
	}
	if password == "" {
		return store.User{}, &FieldError{Field: "password", Message: "is required"}
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return store.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return store.User{}, fmt.Errorf("lookup user: %w", err)
	}
	if !CheckPassword(user.PasswordHash, password) {
		return store.User{}, ErrInvalidCredentials
	}
	if user.Status != store.UserActive {
		return store.User{}, ErrAccountDeactivated
	}
	return user, nil
}

func (s *Service) issue(ctx context.Context, userID, kind string, ttl time.Duration) (string, error) {
	token := util.NewToken()
	err := s.store.SaveUserToken(ctx, store.UserToken{
		TokenHash: auth.HashToken(token),
		UserID:    userID,
		Kind:      kind,
		ExpiresAt: s.now().Add(ttl),
	})
	if err != nil {
		return "", fmt.Errorf("save %s token: %w", strings.ToLower(kind), err)
	}
	return token, nil
}

func (s *Service) consume(ctx context.Context, token, kind string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", &FieldError{Field: "token", Message: "is required"}
	}
	userID, err := s.store.ConsumeUserToken(ctx, auth.HashToken(token), kind, s.now())
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrInvalidToken
	}
	if err != nil {
		return "", fmt.Errorf("consume %s token: %w", strings.ToLower(kind), err)
	}
	return userID, nil
}

func (s *Service) IssueVerification(ctx context.Context, userID string) (string, error) {
	return s.issue(ctx, userID, store.TokenVerifyEmail, VerificationTTL)
}

// VerifyEmail consumes a verification token and returns the verified user id.
func (s *Service) VerifyEmail(ctx context.Context, token string) (string, error) {
	userID, err := s.consume(ctx, token, store.TokenVerifyEmail)
	if err != nil {
		return "", err
	}
	if err := s.store.MarkEmailVerified(ctx, userID); err != nil {
		return "", fmt.Errorf("mark email verified: %w", err)
	}
	return userID, nil
}

// RequestPasswordReset issues a reset token. Unknown or deactivated accounts get
// an empty token and no error so the endpoint does not reveal which emails exist.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, store.User, error) {
	user, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, store.ErrNotFound) {
		return "", store.User{}, nil
	}
	if err != nil {
		return "", store.User{}, fmt.Errorf("lookup user: %w", err)
	}
	if user.Status != store.UserActive {
		return "", store.User{}, nil
	}
	token, err := s.issue(ctx, user.ID, store.TokenResetPassword, ResetTTL)
	if err != nil {
		return "", store.User{}, err
	}
	return token, user, nil
}

// ResetPassword consumes a single-use reset token and stores the new hash.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) (string, error) {
	if err := ValidatePassword("password", newPassword); err != nil {
		return "", err
	}
	userID, err := s.consume(ctx, token, store.TokenResetPassword)
	if err != nil {
		return "", err
	}
	hash, err := s.HashPassword(newPassword)
	if err != nil {
		return "", err
	}
	if err := s.store.UpdateUserPassword(ctx, userID, hash); err != nil {
		return "", fmt.Errorf("update password: %w", err)
	}
	return userID, nil
}
