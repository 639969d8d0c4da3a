package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"stride/api/internal/audit"
	"stride/api/internal/authpw"
	"stride/api/internal/rbac"
	"stride/api/internal/store"
	"stride/api/internal/util"
)

// opsStore is the slice of the Postgres store the CLI touches.
type opsStore interface {
	authpw.UserStore
	UpdateUserRole(ctx context.Context, userID, role string) error
	ListOrphanAccounts(ctx context.Context) ([]store.Account, error)
	RelinkAccount(ctx context.Context, accountID, userID string) error
	DeleteAccount(ctx context.Context, accountID string) error
}

func runMigrate(_ context.Context, e *env, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: stridectl migrate up|down [steps]")
	}
	var err error
	switch args[0] {
	case "up":
		err = store.ApplyMigrations(e.db)
	case "down":
		steps := 1
		if len(args) > 1 {
			steps, err = strconv.Atoi(args[1])
			if err != nil || steps < 1 {
				return fmt.Errorf("steps must be a positive integer, got %q", args[1])
			}
		}
		err = store.RollbackMigrations(e.db, steps)
	default:
		return fmt.Errorf("unknown migrate direction %q", args[0])
	}
	if err != nil {
		return err
	}

	version, dirty, err := store.MigrationVersion(e.db)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "schema version %d (dirty=%t)\n", version, dirty)
	return nil
}

func runCreateAdmin(ctx context.Context, e *env, args []string) error {
	fs := newFlags("create-admin")
	email := fs.String("email", "", "Admin email")
	name := fs.String("name", "", "Display name")
	password := fs.String("password", "", "Initial password")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if strings.TrimSpace(*name) == "" {
		return errors.New("--name is required")
	}
	normalized, err := authpw.NormalizeEmail(*email)
	if err != nil {
		return err
	}
	if err := authpw.ValidatePassword("password", *password); err != nil {
		return err
	}
	hash, err := e.passwords.HashPassword(*password)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	user := store.User{
		ID:              util.NewID("usr"),
		Name:            strings.TrimSpace(*name),
		Email:           normalized,
		PasswordHash:    hash,
		Role:            string(rbac.RoleAdmin),
		Status:          store.UserActive,
		EmailVerifiedAt: &now,
	}
	if err := e.ops.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return fmt.Errorf("a user with email %s already exists", normalized)
		}
		return err
	}
	e.recorder.Record(ctx, audit.Entry{
		ActorID:  audit.SystemActor,
		Action:   audit.UserCreated,
		Entity:   audit.EntityUser,
		EntityID: user.ID,
		Detail:   "created admin " + normalized + " via stridectl",
	})
	fmt.Fprintf(e.out, "created admin %s (%s)\n", normalized, user.ID)
	return nil
}

func runResetPassword(ctx context.Context, e *env, args []string) error {
	fs := newFlags("reset-password")
	email := fs.String("email", "", "User email")
	password := fs.String("password", "", "New password")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := authpw.ValidatePassword("password", *password); err != nil {
		return err
	}
	user, err := e.ops.GetUserByEmail(ctx, *email)
	if err != nil {
		return userLookupError(*email, err)
	}
	hash, err := e.passwords.HashPassword(*password)
	if err != nil {
		return err
	}
	if err := e.ops.UpdateUserPassword(ctx, user.ID, hash); err != nil {
		return err
	}
	e.recorder.Record(ctx, audit.Entry{
		ActorID:  audit.SystemActor,
		Action:   audit.PasswordReset,
		Entity:   audit.EntityUser,
		EntityID: user.ID,
		Detail:   "password reset via stridectl",
	})
	fmt.Fprintf(e.out, "password reset for %s\n", user.Email)
	return nil
}

func runPromote(ctx context.Context, e *env, args []string) error {
	fs := newFlags("promote")
	email := fs.String("email", "", "User email")
	roleFlag := fs.String("role", "", "ADMIN, MANAGER, LEAD or EMPLOYEE")
	if err := fs.Parse(args); err != nil {
		return err
	}

	role, ok := rbac.ParseRole(*roleFlag)
	if !ok {
		return fmt.Errorf("unknown role %q", *roleFlag)
	}
	user, err := e.ops.GetUserByEmail(ctx, *email)
	if err != nil {
		return userLookupError(*email, err)
	}
	if user.Role == string(role) {
		fmt.Fprintf(e.out, "%s is already %s\n", user.Email, role)
		return nil
	}
	if err := e.ops.UpdateUserRole(ctx, user.ID, string(role)); err != nil {
		return err
	}
	e.recorder.Record(ctx, audit.Entry{
		ActorID:  audit.SystemActor,
		Action:   audit.UserRoleChanged,
		Entity:   audit.EntityUser,
		EntityID: user.ID,
		Detail:   fmt.Sprintf("role %s -> %s via stridectl", user.Role, role),
	})
	fmt.Fprintf(e.out, "%s is now %s\n", user.Email, role)
	return nil
}

func runRepairOAuth(ctx context.Context, e *env, args []string) error {
	fs := newFlags("repair-oauth")
	dryRun := fs.Bool("dry-run", false, "Report what would change without writing")
	if err := fs.Parse(args); err != nil {
		return err
	}

	orphans, err := e.ops.ListOrphanAccounts(ctx)
	if err != nil {
		return err
	}
	if len(orphans) == 0 {
		fmt.Fprintln(e.out, "no orphaned accounts")
		return nil
	}

	var relinked, deleted int
	for _, account := range orphans {
		log := e.logger.WithFields(logrus.Fields{
			"account_id": account.ID,
			"provider":   account.Provider,
			"email":      account.Email,
			"dry_run":    *dryRun,
		})

		user, err := e.ops.GetUserByEmail(ctx, account.Email)
		switch {
		case err == nil:
			if !*dryRun {
				if err := e.ops.RelinkAccount(ctx, account.ID, user.ID); err != nil {
					return err
				}
				e.recorder.Record(ctx, audit.Entry{
					ActorID:  audit.SystemActor,
					Action:   audit.OAuthAccountLinked,
					Entity:   audit.EntityAccount,
					EntityID: account.ID,
					Detail:   fmt.Sprintf("relinked %s account from missing user %s to %s", account.Provider, account.UserID, user.ID),
				})
			}
			relinked++
			log.WithField("user_id", user.ID).Info("relinked orphaned account")
		case errors.Is(err, store.ErrNotFound):
			if !*dryRun {
				if err := e.ops.DeleteAccount(ctx, account.ID); err != nil {
					return err
				}
			}
			deleted++
			log.Info("deleted orphaned account")
		default:
			return err
		}
	}

	prefix := ""
	if *dryRun {
		prefix = "dry run: "
	}
	fmt.Fprintf(e.out, "%s%d relinked, %d deleted\n", prefix, relinked, deleted)
	return nil
}

func userLookupError(email string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("no user with email %s", strings.TrimSpace(email))
	}
	return err
}
