// Package registration handles the onboarding lifecycle: a self-service
// register request exists until the ledger confirms the role grant, at
// which point it is consumed and a directory User takes its place.
package registration

import (
	"context"

	"github.com/zkpermit/zkpermit-go/database"
	"github.com/zkpermit/zkpermit-go/user"
)

// RegisterRequest is a pending onboarding request. At most one exists per
// address at any time.
type RegisterRequest struct {
	Address            string    `bson:"address" json:"address"`
	FirstName          string    `bson:"firstName" json:"firstName"`
	Surnames           string    `bson:"surnames" json:"surnames"`
	Phone              string    `bson:"phone,omitempty" json:"phone,omitempty"`
	Email              string    `bson:"email,omitempty" json:"email,omitempty"`
	InstitutionName    string    `bson:"institutionName,omitempty" json:"institutionName,omitempty"`
	CardID             string    `bson:"cardId,omitempty" json:"cardId,omitempty"`
	Role               user.Role `bson:"role" json:"role"`
	DataURL            string    `bson:"dataUrl,omitempty" json:"dataUrl,omitempty"`
	FirebaseCloudToken string    `bson:"firebaseCloudToken,omitempty" json:"-"`

	// PendingBC marks a request whose on-ledger role grant has been
	// submitted but not yet observed.
	PendingBC bool `bson:"pendingBC" json:"pendingBC"`
}

// Listing is one page of register requests.
type Listing struct {
	Requests []RegisterRequest `json:"registerRequests"`
	Page     database.Page     `json:"page"`
}

// Directory is the persistence contract for register requests.
type Directory interface {
	// Create persists a new request; a second request for the same address
	// fails with faults.ErrDuplicateRequest.
	Create(ctx context.Context, r RegisterRequest) error

	// Get returns the pending request, or faults.ErrNotFound.
	Get(ctx context.Context, address string) (*RegisterRequest, error)

	// Delete removes the request, faults.ErrNotFound when absent.
	Delete(ctx context.Context, address string) error

	// MarkPendingBC flags the request as awaiting ledger confirmation.
	MarkPendingBC(ctx context.Context, address string) error

	// List pages through requests by requested role, excluding those
	// already pending on the ledger.
	List(ctx context.Context, page, limit int64, role user.Role) (*Listing, error)
}
