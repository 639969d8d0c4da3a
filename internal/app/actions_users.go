package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"stride/api/internal/audit"
	"stride/api/internal/auth"
	"stride/api/internal/authpw"
	"stride/api/internal/cache"
	"stride/api/internal/rbac"
	"stride/api/internal/search"
	"stride/api/internal/store"
	"stride/api/internal/util"
)

type CreateUserInput struct {
	Name         string  `json:"name"`
	Email        string  `json:"email"`
	Password     string  `json:"password"`
	Role         string  `json:"role"`
	Title        string  `json:"title"`
	Phone        string  `json:"phone"`
	DepartmentID *string `json:"departmentId"`
	ManagerID    *string `json:"managerId"`
}

type UpdateUserInput struct {
	ID           string  `json:"-"`
	Name         string  `json:"name"`
	Email        string  `json:"email"`
	Title        string  `json:"title"`
	Phone        string  `json:"phone"`
	DepartmentID *string `json:"departmentId"`
	ManagerID    *string `json:"managerId"`
}

type ChangeRoleInput struct {
	UserID string `json:"-"`
	Role   string `json:"role"`
}

type ProfileInput struct {
	Name  string `json:"name"`
	Title string `json:"title"`
	Phone string `json:"phone"`
}

type ChangePasswordInput struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func parseRoleField(value string) (rbac.Role, error) {
	if blank(value) {
		return "", required("role")
	}
	role, ok := rbac.ParseRole(value)
	if !ok {
		return "", invalid("role", "must be one of ADMIN, MANAGER, LEAD, EMPLOYEE")
	}
	return role, nil
}

func (s *Service) indexUser(ctx context.Context, user store.User) error {
	return s.search.IndexUser(ctx, search.UserRecord{
		ID: user.ID, Name: user.Name, Email: user.Email, Title: user.Title, Role: user.Role, Status: user.Status,
	})
}

// emailTaken reports whether email belongs to a user other than exceptID.
func (s *Service) emailTaken(ctx context.Context, email, exceptID string) error {
	existing, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup email: %w", err)
	}
	if existing.ID != exceptID {
		return conflict("Email already exists")
	}
	return nil
}

func (s *Service) requireUser(ctx context.Context, id string) (store.User, error) {
	user, err := s.store.GetUserByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return store.User{}, notFound("User")
	}
	return user, err
}

// checkUserRef verifies an optional user reference such as a manager or lead.
func (s *Service) checkUserRef(ctx context.Context, field string, id *string) error {
	if id == nil {
		return nil
	}
	_, err := s.store.GetUserByID(ctx, *id)
	if errors.Is(err, store.ErrNotFound) {
		return invalid(field, "must reference an existing user")
	}
	return err
}

func (s *Service) CreateUser(ctx context.Context, actor *auth.Session, in CreateUserInput) ActionResult {
	var (
		email string
		role  rbac.Role
		user  store.User
	)
	return s.run(ctx, actor, mutation{
		action: audit.UserCreated,
		entity: audit.EntityUser,
		perm:   rbac.PermUserCreate,
		validate: func() (err error) {
			if blank(in.Name) {
				return required("name")
			}
			if email, err = authpw.NormalizeEmail(in.Email); err != nil {
				return err
			}
			if err = authpw.ValidatePassword("password", in.Password); err != nil {
				return err
			}
			role, err = parseRoleField(in.Role)
			return err
		},
		check: func(ctx context.Context) error {
			if err := s.emailTaken(ctx, email, ""); err != nil {
				return err
			}
			return s.checkUserRef(ctx, "managerId", optionalID(in.ManagerID))
		},
		write: func(ctx context.Context) (written, error) {
			hash, err := s.passwords.HashPassword(in.Password)
			if err != nil {
				return written{}, err
			}
			now := s.now().UTC()
			user = store.User{
				ID:              util.NewID("usr"),
				Name:            strings.TrimSpace(in.Name),
				Email:           email,
				PasswordHash:    hash,
				Role:            string(role),
				Status:          store.UserActive,
				Title:           strings.TrimSpace(in.Title),
				Phone:           strings.TrimSpace(in.Phone),
				DepartmentID:    optionalID(in.DepartmentID),
				ManagerID:       optionalID(in.ManagerID),
				EmailVerifiedAt: &now,
			}
			if err := s.store.CreateUser(ctx, user); err != nil {
				if errors.Is(err, store.ErrConflict) {
					return written{}, conflict("Email already exists")
				}
				return written{}, err
			}
			return written{id: user.ID, detail: "role " + user.Role}, nil
		},
		tags:    []string{cache.TagUsers, cache.TagDepartments, cache.TagTeams},
		hooks:   []hook{{name: "search", fn: func(ctx context.Context) error { return s.indexUser(ctx, user) }}},
		message: "User created successfully",
	})
}

type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterUser is the public sign-up action. The new user is an ACTIVE employee
// and is emailed a verification link.
func (s *Service) RegisterUser(ctx context.Context, in RegisterInput) ActionResult {
	result, _ := s.register(ctx, in)
	return result
}

// register also returns the verification token so the HTTP layer can echo it
// when SMTP is not configured.
func (s *Service) register(ctx context.Context, in RegisterInput) (ActionResult, string) {
	var registered authpw.RegisterResult
	result := s.run(ctx, nil, mutation{
		action: audit.UserRegistered,
		entity: audit.EntityUser,
		public: true,
		write: func(ctx context.Context) (written, error) {
			var err error
			registered, err = s.passwords.Register(ctx, authpw.RegisterInput{Name: in.Name, Email: in.Email, Password: in.Password})
			if err != nil {
				return written{}, err
			}
			return written{id: registered.User.ID, actor: registered.User.ID}, nil
		},
		tags: []string{cache.TagUsers},
		hooks: []hook{
			{name: "email", fn: func(ctx context.Context) error {
				if !s.mailer.IsConfigured() {
					return nil
				}
				return s.mailer.SendVerificationEmail(registered.User.Email, registered.User.Name, registered.VerificationToken)
			}},
			{name: "search", fn: func(ctx context.Context) error { return s.indexUser(ctx, registered.User) }},
		},
		message: "Registration successful",
	})
	return result, registered.VerificationToken
}

func (s *Service) UpdateUser(ctx context.Context, actor *auth.Session, in UpdateUserInput) ActionResult {
	var (
		email string
		user  store.User
	)
	return s.run(ctx, actor, mutation{
		action: audit.UserUpdated,
		entity: audit.EntityUser,
		perm:   rbac.PermUserUpdate,
		validate: func() (err error) {
			if blank(in.ID) {
				return required("id")
			}
			if blank(in.Name) {
				return required("name")
			}
			email, err = authpw.NormalizeEmail(in.Email)
			return err
		},
		check: func(ctx context.Context) (err error) {
			if user, err = s.requireUser(ctx, in.ID); err != nil {
				return err
			}
			if manager := optionalID(in.ManagerID); manager != nil && *manager == in.ID {
				return invalid("managerId", "must not be the user")
			}
			if err := s.emailTaken(ctx, email, in.ID); err != nil {
				return err
			}
			return s.checkUserRef(ctx, "managerId", optionalID(in.ManagerID))
		},
		write: func(ctx context.Context) (written, error) {
			user.Name = strings.TrimSpace(in.Name)
			user.Email = email
			user.Title = strings.TrimSpace(in.Title)
			user.Phone = strings.TrimSpace(in.Phone)
			user.DepartmentID = optionalID(in.DepartmentID)
			user.ManagerID = optionalID(in.ManagerID)
			if err := s.store.UpdateUser(ctx, user); err != nil {
				if errors.Is(err, store.ErrConflict) {
					return written{}, conflict("Email already exists")
				}
				return written{}, err
			}
			return written{id: user.ID}, nil
		},
		tags:    []string{cache.TagUsers, cache.TagDepartments},
		hooks:   []hook{{name: "search", fn: func(ctx context.Context) error { return s.indexUser(ctx, user) }}},
		message: "User updated successfully",
	})
}

func (s *Service) ChangeUserRole(ctx context.Context, actor *auth.Session, in ChangeRoleInput) ActionResult {
	var (
		role rbac.Role
		user store.User
	)
	return s.run(ctx, actor, mutation{
		action: audit.UserRoleChanged,
		entity: audit.EntityUser,
		perm:   rbac.PermUserChangeRole,
		validate: func() (err error) {
			if blank(in.UserID) {
				return required("userId")
			}
			role, err = parseRoleField(in.Role)
			return err
		},
		check: func(ctx context.Context) (err error) {
			if in.UserID == actor.UserID {
				return conflict("Cannot change your own role")
			}
			if user, err = s.requireUser(ctx, in.UserID); err != nil {
				return err
			}
			if user.Role == string(role) {
				return conflict("User already has this role")
			}
			return nil
		},
		write: func(ctx context.Context) (written, error) {
			if err := s.store.UpdateUserRole(ctx, user.ID, string(role)); err != nil {
				return written{}, err
			}
			detail := user.Role + " -> " + string(role)
			user.Role = string(role)
			return written{id: user.ID, detail: detail}, nil
		},
		tags:    []string{cache.TagUsers},
		hooks:   []hook{{name: "search", fn: func(ctx context.Context) error { return s.indexUser(ctx, user) }}},
		message: "User role updated successfully",
	})
}

func (s *Service) DeactivateUser(ctx context.Context, actor *auth.Session, userID string) ActionResult {
	var user store.User
	return s.run(ctx, actor, mutation{
		action: audit.UserDeactivated,
		entity: audit.EntityUser,
		perm:   rbac.PermUserDeactivate,
		validate: func() error {
			if blank(userID) {
				return required("userId")
			}
			return nil
		},
		check: func(ctx context.Context) (err error) {
			if userID == actor.UserID {
				return conflict("Cannot deactivate your own account")
			}
			if user, err = s.requireUser(ctx, userID); err != nil {
				return err
			}
			if user.Status == store.UserInactive {
				return conflict("User is already inactive")
			}
			return nil
		},
		write: func(ctx context.Context) (written, error) {
			changed, err := s.store.SetUserStatus(ctx, userID, store.UserActive, store.UserInactive)
			if err != nil {
				return written{}, err
			}
			if !changed {
				return written{}, conflict("User is already inactive")
			}
			user.Status = store.UserInactive
			// Access tokens die at the next SessionFromToken; refresh tokens go now.
			if err := s.sessions.RevokeUser(ctx, userID); err != nil {
				s.logger.WithError(err).WithField("user_id", userID).Warn("revoke refresh tokens failed")
			}
			return written{id: userID}, nil
		},
		tags:    []string{cache.TagUsers},
		hooks:   []hook{{name: "search", fn: func(ctx context.Context) error { return s.indexUser(ctx, user) }}},
		message: "User deactivated successfully",
	})
}

func (s *Service) ActivateUser(ctx context.Context, actor *auth.Session, userID string) ActionResult {
	var user store.User
	return s.run(ctx, actor, mutation{
		action: audit.UserActivated,
		entity: audit.EntityUser,
		perm:   rbac.PermUserActivate,
		validate: func() error {
			if blank(userID) {
				return required("userId")
			}
			return nil
		},
		check: func(ctx context.Context) (err error) {
			if user, err = s.requireUser(ctx, userID); err != nil {
				return err
			}
			if user.Status == store.UserActive {
				return conflict("User is already active")
			}
			return nil
		},
		write: func(ctx context.Context) (written, error) {
			changed, err := s.store.SetUserStatus(ctx, userID, store.UserInactive, store.UserActive)
			if err != nil {
				return written{}, err
			}
			if !changed {
				return written{}, conflict("User is already active")
			}
			user.Status = store.UserActive
			return written{id: userID}, nil
		},
		tags:    []string{cache.TagUsers},
		hooks:   []hook{{name: "search", fn: func(ctx context.Context) error { return s.indexUser(ctx, user) }}},
		message: "User activated successfully",
	})
}

func (s *Service) DeleteUser(ctx context.Context, actor *auth.Session, userID string) ActionResult {
	var user store.User
	return s.run(ctx, actor, mutation{
		action: audit.UserDeleted,
		entity: audit.EntityUser,
		perm:   rbac.PermUserDelete,
		validate: func() error {
			if blank(userID) {
				return required("userId")
			}
			return nil
		},
		check: func(ctx context.Context) (err error) {
			if userID == actor.UserID {
				return conflict("Cannot delete your own account")
			}
			user, err = s.requireUser(ctx, userID)
			return err
		},
		write: func(ctx context.Context) (written, error) {
			deleted, err := s.store.DeleteUser(ctx, userID)
			if err != nil {
				return written{}, err
			}
			if !deleted {
				return written{}, notFound("User")
			}
			if err := s.sessions.RevokeUser(ctx, userID); err != nil {
				s.logger.WithError(err).WithField("user_id", userID).Warn("revoke refresh tokens failed")
			}
			return written{id: userID, detail: user.Email}, nil
		},
		tags: []string{cache.TagUsers, cache.TagDepartments, cache.TagTeams, cache.TagTasks},
		hooks: []hook{{name: "search", fn: func(ctx context.Context) error {
			return s.search.Remove(ctx, search.ResultUser, userID)
		}}},
		message: "User deleted successfully",
	})
}

func (s *Service) UpdateProfile(ctx context.Context, actor *auth.Session, in ProfileInput) ActionResult {
	var user store.User
	return s.run(ctx, actor, mutation{
		action: audit.ProfileUpdated,
		entity: audit.EntityUser,
		perm:   rbac.PermProfileUpdate,
		validate: func() error {
			if blank(in.Name) {
				return required("name")
			}
			if err := maxLen("title", in.Title, 100); err != nil {
				return err
			}
			return maxLen("phone", in.Phone, 40)
		},
		check: func(ctx context.Context) (err error) {
			user, err = s.requireUser(ctx, actor.UserID)
			return err
		},
		write: func(ctx context.Context) (written, error) {
			user.Name = strings.TrimSpace(in.Name)
			user.Title = strings.TrimSpace(in.Title)
			user.Phone = strings.TrimSpace(in.Phone)
			if err := s.store.UpdateUser(ctx, user); err != nil {
				return written{}, err
			}
			return written{id: user.ID}, nil
		},
		tags:    []string{cache.TagUsers},
		hooks:   []hook{{name: "search", fn: func(ctx context.Context) error { return s.indexUser(ctx, user) }}},
		message: "Profile updated successfully",
	})
}

func (s *Service) ChangePassword(ctx context.Context, actor *auth.Session, in ChangePasswordInput) ActionResult {
	var user store.User
	return s.run(ctx, actor, mutation{
		action: audit.PasswordChanged,
		entity: audit.EntityUser,
		perm:   rbac.PermProfileUpdate,
		validate: func() error {
			if in.CurrentPassword == "" {
				return required("currentPassword")
			}
			return authpw.ValidatePassword("newPassword", in.NewPassword)
		},
		check: func(ctx context.Context) (err error) {
			if user, err = s.requireUser(ctx, actor.UserID); err != nil {
				return err
			}
			if !authpw.CheckPassword(user.PasswordHash, in.CurrentPassword) {
				return conflict("Current password is incorrect")
			}
			return nil
		},
		write: func(ctx context.Context) (written, error) {
			hash, err := s.passwords.HashPassword(in.NewPassword)
			if err != nil {
				return written{}, err
			}
			if err := s.store.UpdateUserPassword(ctx, user.ID, hash); err != nil {
				return written{}, err
			}
			return written{id: user.ID}, nil
		},
		message: "Password changed successfully",
	})
}
