package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const userColumns = `id, name, email, password_hash, role, status, title, phone, department_id, manager_id, email_verified_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (User, error) {
	var user User
	err := row.Scan(
		&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.Role, &user.Status,
		&user.Title, &user.Phone, &user.DepartmentID, &user.ManagerID, &user.EmailVerifiedAt,
		&user.CreatedAt, &user.UpdatedAt,
	)
	return user, err
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, role, status, title, phone, department_id, manager_id, email_verified_at)
		VALUES ($1, $2, LOWER($3), $4, $5, $6, $7, $8, $9, $10, $11)
	`, user.ID, user.Name, user.Email, user.PasswordHash, user.Role, user.Status,
		user.Title, user.Phone, user.DepartmentID, user.ManagerID, user.EmailVerifiedAt)
	return classify("insert user", err)
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID))
	if err != nil {
		return User{}, classify("lookup user", err)
	}
	return user, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email=LOWER($1)`, strings.TrimSpace(email)))
	if err != nil {
		return User{}, classify("lookup user by email", err)
	}
	return user, nil
}

// UpdateUser writes profile and placement fields. Role, status and password have
// dedicated methods.
func (s *PostgresStore) UpdateUser(ctx context.Context, user User) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET name=$2, email=LOWER($3), title=$4, phone=$5, department_id=$6, manager_id=$7, updated_at=NOW()
		WHERE id=$1
	`, user.ID, user.Name, user.Email, user.Title, user.Phone, user.DepartmentID, user.ManagerID)
	return requireRow("update user", result, err)
}

func (s *PostgresStore) UpdateUserRole(ctx context.Context, userID, role string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE users SET role=$2, updated_at=NOW() WHERE id=$1`, userID, role)
	return requireRow("update user role", result, err)
}

// SetUserStatus flips status only if the user is currently in from.
func (s *PostgresStore) SetUserStatus(ctx context.Context, userID, from, to string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET status=$3, updated_at=NOW() WHERE id=$1 AND status=$2
	`, userID, from, to)
	return affected("set user status", result, err)
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1`, userID, passwordHash)
	return requireRow("update user password", result, err)
}

func (s *PostgresStore) MarkEmailVerified(ctx context.Context, userID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET email_verified_at=COALESCE(email_verified_at, NOW()), updated_at=NOW() WHERE id=$1
	`, userID)
	return requireRow("verify user email", result, err)
}

func (s *PostgresStore) DeleteUser(ctx context.Context, userID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id=$1`, userID)
	return affected("delete user", result, err)
}

func (s *PostgresStore) ListUsers(ctx context.Context, filter UserFilter) ([]User, error) {
	var w where
	if filter.Role != "" {
		w.add("role=?", filter.Role)
	}
	if filter.Status != "" {
		w.add("status=?", filter.Status)
	}
	if filter.DepartmentID != "" {
		w.add("department_id=?", filter.DepartmentID)
	}
	if filter.TeamID != "" {
		w.add("id IN (SELECT user_id FROM team_members WHERE team_id=?)", filter.TeamID)
	}
	query := `SELECT ` + userColumns + ` FROM users` + w.clause() + ` ORDER BY name, id` + w.limit(filter.Limit)

	rows, err := s.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *PostgresStore) UserStats(ctx context.Context) (UserStats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT role, status, COUNT(*) FROM users GROUP BY role, status`)
	if err != nil {
		return UserStats{}, fmt.Errorf("user stats: %w", err)
	}
	defer rows.Close()

	stats := UserStats{ByRole: map[string]int{}, ByStatus: map[string]int{}}
	for rows.Next() {
		var role, status string
		var count int
		if err := rows.Scan(&role, &status, &count); err != nil {
			return UserStats{}, fmt.Errorf("scan user stats: %w", err)
		}
		stats.ByRole[role] += count
		stats.ByStatus[status] += count
	}
	return stats, rows.Err()
}

func (s *PostgresStore) SaveUserToken(ctx context.Context, token UserToken) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_tokens (token_hash, user_id, kind, expires_at) VALUES ($1, $2, $3, $4)
	`, token.TokenHash, token.UserID, token.Kind, token.ExpiresAt)
	return classify("save user token", err)
}

// ConsumeUserToken marks an unexpired, unused token as used and returns its user.
func (s *PostgresStore) ConsumeUserToken(ctx context.Context, tokenHash, kind string, now time.Time) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		UPDATE user_tokens SET used_at=$3
		WHERE token_hash=$1 AND kind=$2 AND used_at IS NULL AND expires_at > $3
		RETURNING user_id
	`, tokenHash, kind, now).Scan(&userID)
	if err != nil {
		return "", classify("consume user token", err)
	}
	return userID, nil
}

func scanAccount(row rowScanner) (Account, error) {
	var account Account
	err := row.Scan(&account.ID, &account.UserID, &account.Provider, &account.Subject, &account.Email, &account.CreatedAt)
	return account, err
}

func (s *PostgresStore) GetAccount(ctx context.Context, provider, subject string) (Account, error) {
	account, err := scanAccount(s.db.QueryRowContext(ctx, `
		SELECT id, user_id, provider, subject, email, created_at FROM accounts WHERE provider=$1 AND subject=$2
	`, provider, subject))
	if err != nil {
		return Account{}, classify("lookup account", err)
	}
	return account, nil
}

func (s *PostgresStore) LinkAccount(ctx context.Context, account Account) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, user_id, provider, subject, email) VALUES ($1, $2, $3, $4, LOWER($5))
	`, account.ID, account.UserID, account.Provider, account.Subject, account.Email)
	return classify("link account", err)
}

// ListOrphanAccounts returns accounts whose user row no longer exists.
func (s *PostgresStore) ListOrphanAccounts(ctx context.Context) ([]Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.user_id, a.provider, a.subject, a.email, a.created_at
		FROM accounts a
		LEFT JOIN users u ON u.id = a.user_id
		WHERE u.id IS NULL
		ORDER BY a.created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list orphan accounts: %w", err)
	}
	defer rows.Close()

	accounts := make([]Account, 0)
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

func (s *PostgresStore) RelinkAccount(ctx context.Context, accountID, userID string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE accounts SET user_id=$2 WHERE id=$1`, accountID, userID)
	return requireRow("relink account", result, err)
}

func (s *PostgresStore) DeleteAccount(ctx context.Context, accountID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE id=$1`, accountID)
	return requireRow("delete account", result, err)
}
