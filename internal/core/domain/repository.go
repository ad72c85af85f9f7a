package domain

import "context"

// UserRepository defines the document collection holding user records.
// Implementations must not retain or hand out references to caller-owned slices.
type UserRepository interface {
	// Insert stores a new record; ID must already be assigned.
	Insert(ctx context.Context, user *User) error
	// GetByID returns ErrInvalidID for malformed ids and ErrUserNotFound for unknown ones.
	GetByID(ctx context.Context, id string) (*User, error)
	// Update replaces the stored document; ErrUserNotFound if the id is unknown.
	Update(ctx context.Context, user *User) error
}
