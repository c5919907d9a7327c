// Package access tracks the permission state of every
// (end user, institution, project) triple. The ledger is the authority;
// this package holds the queryable mirror and the transition rules.
package access

import (
	"context"

	"github.com/zkpermit/zkpermit-go/database"
	"github.com/zkpermit/zkpermit-go/user"
)

// Project is a research project opened by an institution manager.
// Immutable after creation except for the one-time address back-fill.
type Project struct {
	ID          string `bson:"_id,omitempty" json:"-"`
	Title       string `bson:"title" json:"title"`
	Description string `bson:"description" json:"description"`

	ResearchInstitutionManagerAddress string `bson:"researchInstitutionManagerAddress" json:"researchInstitutionManagerAddress"`

	// Address is derived deterministically from the project id, so any
	// holder of the id can recompute and verify it.
	Address string `bson:"address" json:"address"`
}

// Request is one permission tuple. Granted/revoked/rejected are mutually
// exclusive in steady state; pendingBC is an independent transient flag
// meaning "local write applied, ledger confirmation awaited".
type Request struct {
	EndUserAddress                    string `bson:"endUserAddress" json:"endUserAddress"`
	ResearchInstitutionManagerAddress string `bson:"researchInstitutionManagerAddress" json:"researchInstitutionManagerAddress"`
	Project                           string `bson:"project" json:"project"`
	Granted                           bool   `bson:"granted" json:"granted"`
	Revoked                           bool   `bson:"revoked" json:"revoked"`
	Rejected                          bool   `bson:"rejected" json:"rejected"`
	PendingBC                         bool   `bson:"pendingBC" json:"pendingBC"`

	// EncryptedPassword is opaque ciphertext handed over by the end user;
	// set only while access is granted.
	EncryptedPassword string `bson:"encryptedPassword" json:"encryptedPassword,omitempty"`
}

// Pending reports whether the request has seen no decision yet.
func (r Request) Pending() bool {
	return !r.Granted && !r.Revoked && !r.Rejected
}

// Filter selects a request subset in listings.
type Filter string

const (
	FilterNone     Filter = ""
	FilterPending  Filter = "pending"
	FilterGranted  Filter = "granted"
	FilterRevoked  Filter = "revoked"
	FilterRejected Filter = "rejected"
)

// Stats are per-project aggregate counts, computed at read time.
type Stats struct {
	Granted  int64 `json:"granted"`
	Revoked  int64 `json:"revoked"`
	Pending  int64 `json:"pending"`
	Rejected int64 `json:"rejected"`
}

// ProjectListing is one page of projects.
type ProjectListing struct {
	Projects []Project     `json:"projects"`
	Page     database.Page `json:"page"`
}

// RequestListing is one page of access requests.
type RequestListing struct {
	Requests []Request     `json:"accessRequests"`
	Page     database.Page `json:"page"`
}

// ProjectDirectory is the persistence contract for projects.
type ProjectDirectory interface {
	// Create inserts the project and returns its generated id.
	Create(ctx context.Context, p Project) (string, error)

	// SetAddress back-fills the derived address, once, at creation time.
	SetAddress(ctx context.Context, id, address string) error

	// Get returns a project by id, faults.ErrNotFound when absent.
	Get(ctx context.Context, id string) (*Project, error)

	// GetByAddress returns a project by its derived address.
	GetByAddress(ctx context.Context, address string) (*Project, error)

	// List pages through projects, optionally restricted to one
	// institution manager, sorted by title.
	List(ctx context.Context, page, limit int64, institution string) (*ProjectListing, error)
}

// RequestDirectory is the persistence contract for access requests. Each
// mutation is a single atomic read-modify-write keyed by the natural
// triple, so concurrent operations on different triples never contend.
type RequestDirectory interface {
	// Create upserts the Pending request for a triple. A triple that
	// already exists is left untouched: requests are never recreated.
	Create(ctx context.Context, endUser, institution, projectID string) error

	// Get returns the request for a triple, faults.ErrNotFound when absent.
	Get(ctx context.Context, endUser, institution, projectID string) (*Request, error)

	// Grant and Revoke flip the decision flags idempotently and clear
	// pendingBC; Revoke also clears the ciphertext. A missing or rejected
	// triple fails with faults.ErrStaleReference.
	Grant(ctx context.Context, endUser, institution, projectID string) error
	Revoke(ctx context.Context, endUser, institution, projectID string) error

	// Reject terminally rejects every request between the pair.
	Reject(ctx context.Context, endUser, institution string) error

	// SetHandoff stores ciphertext and raises pendingBC ahead of ledger
	// confirmation.
	SetHandoff(ctx context.Context, endUser, institution, projectID, ciphertext string) error

	// Delete removes the request for a triple.
	Delete(ctx context.Context, endUser, institution, projectID string) error

	// RevokeAll revokes every non-rejected request of an end user.
	RevokeAll(ctx context.Context, endUser string) error

	// ListForEndUser pages through an end user's non-rejected requests
	// (except FilterRejected, which flips that default).
	ListForEndUser(ctx context.Context, endUser string, page, limit int64, f Filter) (*RequestListing, error)

	// ListForInstitution pages through an institution's requests.
	ListForInstitution(ctx context.Context, institution string, page, limit int64, f Filter) (*RequestListing, error)

	// ProjectStats counts granted/revoked/pending/rejected requests for
	// one project on demand.
	ProjectStats(ctx context.Context, institution, projectID string) (*Stats, error)
}

// EnrichedRequest is an access request joined with its project and the
// counterpart profiles, as returned to UI callers.
type EnrichedRequest struct {
	Request
	ProjectInfo                *Project   `json:"project,omitempty"`
	ResearchInstitutionManager *user.User `json:"researchInstitutionManager,omitempty"`
	PublicKey                  string     `json:"publicKey,omitempty"`
	DataURL                    string     `json:"dataUrl,omitempty"`
}

// EnrichedProject is a project joined with its stats and owner profile.
type EnrichedProject struct {
	Project
	Stats                      Stats      `json:"stats"`
	ResearchInstitutionManager *user.User `json:"researchInstitutionManager,omitempty"`
}
