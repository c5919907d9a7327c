// Package ledger is the boundary to the on-chain permission contract: the
// authoritative append-only source of role and permission facts. Events
// are consumed through a poll cursor so a replay can be paused, resumed
// and re-run deterministically against a fake source in tests.
package ledger

import (
	"context"

	"github.com/zkpermit/zkpermit-go/user"
)

// EventType names the four event categories the mirror consumes.
type EventType string

const (
	EventGrantedAccessToInstitution EventType = "GrantedAccessToInstitution"
	EventRevokedAccessToInstitution EventType = "RevokedAccessToInstitution"
	EventGrantedAccessUser          EventType = "GrantedAccessUser"
	EventUserUnregistered           EventType = "UserUnregistered"
)

// Event is one ledger notification, with addresses already normalized to
// the directory's lower-case convention. Delivery is at-least-once and in
// no guaranteed order across categories.
type Event struct {
	Type  EventType
	Block uint64

	// Institution and Project are set for access grant/revoke events.
	Institution string
	Project     string

	// User is the end user concerned (userRequested, userRequester or
	// endUser depending on the event).
	User string

	// Role is the ledger role code, set for GrantedAccessUser.
	Role int64
}

// Source delivers events from a block cursor onward.
type Source interface {
	// Poll returns every event with block >= from, plus the cursor to
	// resume from. A next equal to from with no events means caught up.
	Poll(ctx context.Context, from uint64) (events []Event, next uint64, err error)
}

// Normalize lower-cases the address fields of an event in place.
func (e *Event) Normalize() {
	e.Institution = user.NormalizeAddress(e.Institution)
	e.Project = user.NormalizeAddress(e.Project)
	e.User = user.NormalizeAddress(e.User)
}
