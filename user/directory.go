package user

import (
	"context"

	"github.com/zkpermit/zkpermit-go/database"
)

// Listing is one page of users plus the pagination envelope.
type Listing struct {
	Users []User        `json:"users"`
	Page  database.Page `json:"page"`
}

// Directory is the persistence contract for users. The mongo
// implementation lives in this package; tests substitute an in-memory one.
type Directory interface {
	// Create persists a new user. Fails with faults.ErrDuplicate when the
	// address is taken and faults.ErrInvalidRole on a role outside the
	// supported set.
	Create(ctx context.Context, u User) error

	// Get returns the user stored under the lower-cased address, or
	// faults.ErrNotFound.
	Get(ctx context.Context, address string) (*User, error)

	// Update applies a partial profile update, last write wins.
	Update(ctx context.Context, address string, p ProfileUpdate) (*User, error)

	// Unregister soft-deletes: the record stays while access requests may
	// still reference it, only the flag flips.
	Unregister(ctx context.Context, address string) error

	// Delete removes the record outright. Reserved for the admin cleanup
	// path; ledger-driven unregistration uses Unregister.
	Delete(ctx context.Context, address string) error

	// List returns one page of registered users with the given role,
	// sorted by surnames.
	List(ctx context.Context, page, limit int64, role Role) (*Listing, error)

	// EndUsers returns every registered end user.
	EndUsers(ctx context.Context) ([]User, error)

	// EndUserCount counts registered end users.
	EndUserCount(ctx context.Context) (int64, error)
}
