// Package store provides the persistent entity store consumed by the
// administrative pipelines: users plus their denormalized admin and account
// role records.
package store

import (
	"context"

	"github.com/pitabwire/karani/model"
)

// UserPatch is the single-write field set applied to a user by the update
// pipeline. Email is expected to be lower-cased by the caller.
type UserPatch struct {
	IsActive string
	Username string
	Email    string
	Search   []string
}

// ConflictError reports a uniqueness violation on a user field. The store's
// own constraint is the source of truth for uniqueness; the pipelines'
// duplicate pre-checks are a fast-path courtesy only.
type ConflictError struct {
	Field string
}

func (e *ConflictError) Error() string {
	return e.Field + " already taken"
}

// UserStore is the persistence surface the pipelines depend on. Lookup
// methods return (nil, nil) when no entity matches. Update methods return
// NOT_FOUND envelopes for missing ids; a missing target is never a silent
// success. Remove methods are idempotent no-ops for absent records.
type UserStore interface {
	// FindByUsername returns the user holding username, excluding the user
	// with excludeID. The match is case-sensitive and exact.
	FindByUsername(ctx context.Context, username, excludeID string) (*model.User, error)

	// FindByEmail returns the user holding email, excluding the user with
	// excludeID. Callers pass the email already lower-cased.
	FindByEmail(ctx context.Context, email, excludeID string) (*model.User, error)

	// UpdateUser applies patch to the user in one write and returns the
	// updated entity. Returns *ConflictError when the patch violates a
	// uniqueness constraint.
	UpdateUser(ctx context.Context, id string, patch UserPatch) (*model.User, error)

	// SetPassword persists the password hash and returns the updated user.
	SetPassword(ctx context.Context, id, hash string) (*model.User, error)

	// UpdateAdmin mirrors the parent user's id and name into the admin
	// record.
	UpdateAdmin(ctx context.Context, adminID string, ref model.UserRef) error

	// UpdateAccount mirrors the parent user's id and name into the account
	// record.
	UpdateAccount(ctx context.Context, accountID string, ref model.UserRef) error

	// RemoveAccountForUser removes the account record referencing userID,
	// if any.
	RemoveAccountForUser(ctx context.Context, userID string) error

	// RemoveUser removes the user record, if any.
	RemoveUser(ctx context.Context, userID string) error

	// Populate resolves the user's role references into display names and
	// returns the enriched user.
	Populate(ctx context.Context, user *model.User) (*model.User, error)

	// EncryptPassword hashes a plaintext password for storage.
	EncryptPassword(ctx context.Context, plaintext string) (string, error)
}
