package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/pitabwire/karani/model"
)

const uniqueViolation = "23505"

// PgUserStore is a PostgreSQL-backed UserStore using pgx/v5. Uniqueness of
// username and email is enforced by unique indexes; a violating write maps
// to a *ConflictError rather than a system failure.
type PgUserStore struct {
	pool *pgxpool.Pool
}

// NewPgUserStore creates a new PostgreSQL user store.
func NewPgUserStore(pool *pgxpool.Pool) *PgUserStore {
	return &PgUserStore{pool: pool}
}

// FindByUsername returns the user holding username, excluding excludeID.
func (s *PgUserStore) FindByUsername(ctx context.Context, username, excludeID string) (*model.User, error) {
	return s.findOne(ctx, `
		SELECT id, username, email, is_active, password_hash, search, admin_id, account_id
		FROM users
		WHERE username = $1 AND id <> $2`,
		username, excludeID)
}

// FindByEmail returns the user holding email, excluding excludeID.
func (s *PgUserStore) FindByEmail(ctx context.Context, email, excludeID string) (*model.User, error) {
	return s.findOne(ctx, `
		SELECT id, username, email, is_active, password_hash, search, admin_id, account_id
		FROM users
		WHERE email = $1 AND id <> $2`,
		email, excludeID)
}

func (s *PgUserStore) findOne(ctx context.Context, query string, args ...any) (*model.User, error) {
	var u model.User
	var adminID, accountID *string
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&u.ID, &u.Username, &u.Email, &u.IsActive, &u.PasswordHash,
		&u.Search, &adminID, &accountID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	if adminID != nil {
		u.Roles.AdminID = *adminID
	}
	if accountID != nil {
		u.Roles.AccountID = *accountID
	}
	return &u, nil
}

// UpdateUser applies patch to the user in one write and returns the updated
// entity.
func (s *PgUserStore) UpdateUser(ctx context.Context, id string, patch UserPatch) (*model.User, error) {
	var u model.User
	var adminID, accountID *string
	err := s.pool.QueryRow(ctx, `
		UPDATE users
		SET is_active = $1, username = $2, email = $3, search = $4
		WHERE id = $5
		RETURNING id, username, email, is_active, password_hash, search, admin_id, account_id`,
		patch.IsActive, patch.Username, patch.Email, patch.Search, id,
	).Scan(
		&u.ID, &u.Username, &u.Email, &u.IsActive, &u.PasswordHash,
		&u.Search, &adminID, &accountID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.NewNotFoundError(fmt.Sprintf("user %q not found", id))
	}
	if err != nil {
		if conflict := conflictFieldOf(err); conflict != "" {
			return nil, &ConflictError{Field: conflict}
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	if adminID != nil {
		u.Roles.AdminID = *adminID
	}
	if accountID != nil {
		u.Roles.AccountID = *accountID
	}
	return &u, nil
}

// SetPassword persists the password hash and returns the updated user.
func (s *PgUserStore) SetPassword(ctx context.Context, id, hash string) (*model.User, error) {
	var u model.User
	var adminID, accountID *string
	err := s.pool.QueryRow(ctx, `
		UPDATE users
		SET password_hash = $1
		WHERE id = $2
		RETURNING id, username, email, is_active, password_hash, search, admin_id, account_id`,
		hash, id,
	).Scan(
		&u.ID, &u.Username, &u.Email, &u.IsActive, &u.PasswordHash,
		&u.Search, &adminID, &accountID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.NewNotFoundError(fmt.Sprintf("user %q not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("set password: %w", err)
	}
	if adminID != nil {
		u.Roles.AdminID = *adminID
	}
	if accountID != nil {
		u.Roles.AccountID = *accountID
	}
	return &u, nil
}

// UpdateAdmin mirrors the parent user's id and name into the admin record.
func (s *PgUserStore) UpdateAdmin(ctx context.Context, adminID string, ref model.UserRef) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE admins SET user_id = $1, user_name = $2 WHERE id = $3`,
		ref.ID, ref.Name, adminID,
	)
	if err != nil {
		return fmt.Errorf("update admin record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewNotFoundError(fmt.Sprintf("admin record %q not found", adminID))
	}
	return nil
}

// UpdateAccount mirrors the parent user's id and name into the account record.
func (s *PgUserStore) UpdateAccount(ctx context.Context, accountID string, ref model.UserRef) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE accounts SET user_id = $1, user_name = $2 WHERE id = $3`,
		ref.ID, ref.Name, accountID,
	)
	if err != nil {
		return fmt.Errorf("update account record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewNotFoundError(fmt.Sprintf("account record %q not found", accountID))
	}
	return nil
}

// RemoveAccountForUser removes the account record referencing userID, if any.
func (s *PgUserStore) RemoveAccountForUser(ctx context.Context, userID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM accounts WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("remove account record: %w", err)
	}
	return nil
}

// RemoveUser removes the user record, if any.
func (s *PgUserStore) RemoveUser(ctx context.Context, userID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID); err != nil {
		return fmt.Errorf("remove user: %w", err)
	}
	return nil
}

// Populate resolves the user's role references into display names.
func (s *PgUserStore) Populate(ctx context.Context, user *model.User) (*model.User, error) {
	out := *user
	if out.Roles.AdminID != "" {
		err := s.pool.QueryRow(ctx, `SELECT name FROM admins WHERE id = $1`, out.Roles.AdminID).
			Scan(&out.AdminName)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("populate admin role: %w", err)
		}
	}
	if out.Roles.AccountID != "" {
		err := s.pool.QueryRow(ctx, `SELECT name FROM accounts WHERE id = $1`, out.Roles.AccountID).
			Scan(&out.AccountName)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("populate account role: %w", err)
		}
	}
	return &out, nil
}

// EncryptPassword hashes a plaintext password with bcrypt at the default cost.
func (s *PgUserStore) EncryptPassword(_ context.Context, plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("encrypt password: %w", err)
	}
	return string(hash), nil
}

// conflictFieldOf maps a unique-violation error to the user field it
// protects, or "" when err is not a recognized uniqueness violation.
func conflictFieldOf(err error) string {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return ""
	}
	switch {
	case strings.Contains(pgErr.ConstraintName, "username"):
		return "username"
	case strings.Contains(pgErr.ConstraintName, "email"):
		return "email"
	default:
		return ""
	}
}

// HealthCheck verifies connectivity to the database.
func (s *PgUserStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
