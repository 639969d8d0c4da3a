package authpw

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"stride/api/internal/store"
)

type mockToken struct {
	userID    string
	kind      string
	expiresAt time.Time
	used      bool
}

// mockUserStore is a mock implementation of UserStore for testing
type mockUserStore struct {
	users      map[string]store.User
	emailIndex map[string]string // email -> userID
	tokens     map[string]mockToken
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{
		users:      make(map[string]store.User),
		emailIndex: make(map[string]string),
		tokens:     make(map[string]mockToken),
	}
}

func (m *mockUserStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	if userID, ok := m.emailIndex[strings.ToLower(email)]; ok {
		return m.users[userID], nil
	}
	return store.User{}, store.ErrNotFound
}

func (m *mockUserStore) GetUserByID(ctx context.Context, id string) (store.User, error) {
	if user, ok := m.users[id]; ok {
		return user, nil
	}
	return store.User{}, store.ErrNotFound
}

func (m *mockUserStore) CreateUser(ctx context.Context, user store.User) error {
	if _, ok := m.emailIndex[user.Email]; ok {
		return store.ErrConflict
	}
	m.users[user.ID] = user
	m.emailIndex[user.Email] = user.ID
	return nil
}

func (m *mockUserStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	user, ok := m.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	user.PasswordHash = passwordHash
	m.users[userID] = user
	return nil
}

func (m *mockUserStore) MarkEmailVerified(ctx context.Context, userID string) error {
	user, ok := m.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	now := time.Now()
	user.EmailVerifiedAt = &now
	m.users[userID] = user
	return nil
}

func (m *mockUserStore) SaveUserToken(ctx context.Context, token store.UserToken) error {
	m.tokens[token.TokenHash] = mockToken{userID: token.UserID, kind: token.Kind, expiresAt: token.ExpiresAt}
	return nil
}

func (m *mockUserStore) ConsumeUserToken(ctx context.Context, tokenHash, kind string, now time.Time) (string, error) {
	token, ok := m.tokens[tokenHash]
	if !ok || token.used || token.kind != kind || !now.Before(token.expiresAt) {
		return "", store.ErrNotFound
	}
	token.used = true
	m.tokens[tokenHash] = token
	return token.userID, nil
}

func newTestService() (*Service, *mockUserStore) {
	mockStore := newMockUserStore()
	return NewService(mockStore, bcrypt.MinCost), mockStore
}

func register(t *testing.T, svc *Service, email string) RegisterResult {
	t.Helper()
	result, err := svc.Register(context.Background(), RegisterInput{Name: "Test User", Email: email, Password: "password123"})
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return result
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	svc, mockStore := newTestService()

	t.Run("successful registration", func(t *testing.T) {
		result := register(t, svc, " Test@Example.com ")
		if result.User.Email != "test@example.com" {
			t.Errorf("expected normalized email, got %q", result.User.Email)
		}
		if result.User.Role != "EMPLOYEE" || result.User.Status != store.UserActive {
			t.Errorf("expected ACTIVE EMPLOYEE, got %s %s", result.User.Status, result.User.Role)
		}
		if result.VerificationToken == "" {
			t.Error("expected verification token")
		}
		if result.User.PasswordHash == "password123" || !CheckPassword(result.User.PasswordHash, "password123") {
			t.Error("expected bcrypt hash of the password")
		}
		if len(mockStore.tokens) != 1 {
			t.Errorf("expected one stored token, got %d", len(mockStore.tokens))
		}
		if _, ok := mockStore.tokens[result.VerificationToken]; ok {
			t.Error("raw token must not be stored")
		}
	})

	t.Run("duplicate email", func(t *testing.T) {
		_, err := svc.Register(ctx, RegisterInput{Name: "Again", Email: "TEST@example.com", Password: "password123"})
		if !errors.Is(err, ErrEmailExists) {
			t.Errorf("expected ErrEmailExists, got %v", err)
		}
	})

	cases := []struct {
		name  string
		input RegisterInput
		want  string
	}{
		{"missing name", RegisterInput{Email: "a@example.com", Password: "password123"}, "name is required"},
		{"missing email", RegisterInput{Name: "A", Password: "password123"}, "email is required"},
		{"bad email", RegisterInput{Name: "A", Email: "not-an-email", Password: "password123"}, "email must be a valid email address"},
		{"short password", RegisterInput{Name: "A", Email: "a@example.com", Password: "short"}, "password must be at least 8 characters"},
		{"long password", RegisterInput{Name: "A", Email: "a@example.com", Password: strings.Repeat("x", 73)}, "password must be at most 72 bytes"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tc.input)
			var fieldErr *FieldError
			if !errors.As(err, &fieldErr) {
				t.Fatalf("expected FieldError, got %v", err)
			}
			if fieldErr.Error() != tc.want {
				t.Errorf("expected %q, got %q", tc.want, fieldErr.Error())
			}
		})
	}
}

func TestSignIn(t *testing.T) {
	ctx := context.Background()
	svc, mockStore := newTestService()
	result := register(t, svc, "test@example.com")

	t.Run("successful sign in", func(t *testing.T) {
		user, err := svc.SignIn(ctx, "TEST@example.com", "password123")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if user.ID != result.User.ID {
			t.Errorf("expected %s, got %s", result.User.ID, user.ID)
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		if _, err := svc.SignIn(ctx, "test@example.com", "wrongpassword"); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("non-existent user", func(t *testing.T) {
		if _, err := svc.SignIn(ctx, "nobody@example.com", "password123"); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("deactivated user", func(t *testing.T) {
		user := mockStore.users[result.User.ID]
		user.Status = store.UserInactive
		mockStore.users[user.ID] = user

		if _, err := svc.SignIn(ctx, "test@example.com", "password123"); !errors.Is(err, ErrAccountDeactivated) {
			t.Errorf("expected ErrAccountDeactivated, got %v", err)
		}
	})

	t.Run("oauth-only user has no password", func(t *testing.T) {
		mockStore.CreateUser(ctx, store.User{ID: "usr_oauth", Email: "oauth@example.com", Status: store.UserActive})
		if _, err := svc.SignIn(ctx, "oauth@example.com", "anything1"); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("expected ErrInvalidCredentials, got %v", err)
		}
	})
}

func TestVerifyEmail(t *testing.T) {
	ctx := context.Background()
	svc, mockStore := newTestService()
	result := register(t, svc, "test@example.com")

	t.Run("valid token", func(t *testing.T) {
		userID, err := svc.VerifyEmail(ctx, result.VerificationToken)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if mockStore.users[userID].EmailVerifiedAt == nil {
			t.Error("expected user to be verified")
		}
	})

	t.Run("token is single use", func(t *testing.T) {
		if _, err := svc.VerifyEmail(ctx, result.VerificationToken); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("empty token", func(t *testing.T) {
		if _, err := svc.VerifyEmail(ctx, ""); err == nil {
			t.Error("expected error for empty token")
		}
	})

	t.Run("expired token", func(t *testing.T) {
		token, err := svc.IssueVerification(ctx, result.User.ID)
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		svc.now = func() time.Time { return time.Now().Add(VerificationTTL + time.Minute) }
		defer func() { svc.now = time.Now }()
		if _, err := svc.VerifyEmail(ctx, token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("expected ErrInvalidToken after 24h, got %v", err)
		}
	})
}

func TestPasswordReset(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	register(t, svc, "test@example.com")

	t.Run("request reset for non-existent user - no error", func(t *testing.T) {
		token, _, err := svc.RequestPasswordReset(ctx, "nobody@example.com")
		if err != nil || token != "" {
			t.Errorf("expected silent no-op, got %q %v", token, err)
		}
	})

	t.Run("reset password with valid token", func(t *testing.T) {
		token, user, err := svc.RequestPasswordReset(ctx, "test@example.com")
		if err != nil || token == "" {
			t.Fatalf("expected token, got %q %v", token, err)
		}

		userID, err := svc.ResetPassword(ctx, token, "newpassword123")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if userID != user.ID {
			t.Errorf("expected %s, got %s", user.ID, userID)
		}

		if _, err := svc.SignIn(ctx, "test@example.com", "password123"); err == nil {
			t.Error("expected old password to not work")
		}
		if _, err := svc.SignIn(ctx, "test@example.com", "newpassword123"); err != nil {
			t.Errorf("expected new password to work: %v", err)
		}

		if _, err := svc.ResetPassword(ctx, token, "anotherpass1"); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("expected reused token to fail, got %v", err)
		}
	})

	t.Run("reset token expires after an hour", func(t *testing.T) {
		token, _, _ := svc.RequestPasswordReset(ctx, "test@example.com")
		svc.now = func() time.Time { return time.Now().Add(ResetTTL + time.Second) }
		defer func() { svc.now = time.Now }()
		if _, err := svc.ResetPassword(ctx, token, "newpassword456"); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("verification token cannot reset password", func(t *testing.T) {
		result := register(t, svc, "other@example.com")
		if _, err := svc.ResetPassword(ctx, result.VerificationToken, "newpassword123"); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("reset with short password", func(t *testing.T) {
		if _, err := svc.ResetPassword(ctx, "some-token", "short"); err == nil {
			t.Error("expected error for short password")
		}
	})
}
