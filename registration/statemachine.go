package registration

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/zkpermit/zkpermit-go/faults"
	"github.com/zkpermit/zkpermit-go/logging"
	"github.com/zkpermit/zkpermit-go/merkle"
	"github.com/zkpermit/zkpermit-go/notify"
	"github.com/zkpermit/zkpermit-go/user"
)

// MembershipIndex is the slice of the Merkle index onboarding needs.
type MembershipIndex interface {
	Insert(ctx context.Context, key *big.Int) error
}

// StateMachine drives a register request through
// absent -> requested -> onboarded (request deleted, user created).
type StateMachine struct {
	requests Directory
	users    user.Directory
	members  MembershipIndex
	queue    notify.Queue
	log      logging.Logger
}

// NewStateMachine wires the onboarding machine against its collaborators.
func NewStateMachine(requests Directory, users user.Directory, members MembershipIndex, queue notify.Queue, log logging.Logger) *StateMachine {
	return &StateMachine{
		requests: requests,
		users:    users,
		members:  members,
		queue:    queue,
		log:      log,
	}
}

// Create records a self-service onboarding request.
func (m *StateMachine) Create(ctx context.Context, r RegisterRequest) error {
	if !r.Role.Valid() {
		return faults.ErrInvalidRole
	}
	return m.requests.Create(ctx, r)
}

// Onboard consumes the register request for an address once the ledger has
// confirmed a role grant. An absent request is a no-op: role-grant events
// legitimately arrive for addresses with nothing pending, and full replays
// re-deliver grants already applied.
//
// The ledger role wins over the requested one; a ledger code outside the
// supported enum fails with faults.ErrRoleConflict.
func (m *StateMachine) Onboard(ctx context.Context, address string, ledgerRole int64) error {
	address = user.NormalizeAddress(address)

	request, err := m.requests.Get(ctx, address)
	if err != nil {
		if errors.Is(err, faults.ErrNotFound) {
			return nil
		}
		return err
	}

	role, ok := user.RoleFromLedger(ledgerRole)
	if !ok {
		return fmt.Errorf("%w: ledger role code %d", faults.ErrRoleConflict, ledgerRole)
	}

	err = m.users.Create(ctx, user.User{
		Address:            address,
		FirstName:          request.FirstName,
		Surnames:           request.Surnames,
		Phone:              request.Phone,
		Email:              request.Email,
		InstitutionName:    request.InstitutionName,
		CardID:             request.CardID,
		Role:               role,
		DataURL:            request.DataURL,
		FirebaseCloudToken: request.FirebaseCloudToken,
	})
	if err != nil && !errors.Is(err, faults.ErrDuplicate) {
		return err
	}
	if errors.Is(err, faults.ErrDuplicate) {
		m.log.Warn("user already onboarded", "address", address)
	}

	// The request is no longer needed once the user exists.
	if err = m.requests.Delete(ctx, address); err != nil && !errors.Is(err, faults.ErrNotFound) {
		return err
	}

	if role == user.RoleEndUser {
		key, err := merkle.KeyFromAddress(address)
		if err != nil {
			return err
		}
		if err = m.members.Insert(ctx, key); err != nil {
			if !errors.Is(err, faults.ErrDuplicateKey) {
				return err
			}
			// Duplicate ledger delivery; the member is already in the tree.
			m.log.Warn("key already exists in merkle tree", "address", address)
		}
	}

	m.queue.Send(ctx, notify.Message{
		To:    request.FirebaseCloudToken,
		Title: "Registration complete",
		Body:  "Your account has been activated",
	})
	return nil
}

// Delete removes a pending request. The requester must be the target or
// an admin.
func (m *StateMachine) Delete(ctx context.Context, requesterAddress, targetAddress string, isAdmin bool) error {
	requesterAddress = user.NormalizeAddress(requesterAddress)
	targetAddress = user.NormalizeAddress(targetAddress)
	if !isAdmin && requesterAddress != targetAddress {
		return fmt.Errorf("%w: cannot delete another account's request", faults.ErrForbidden)
	}
	return m.requests.Delete(ctx, targetAddress)
}

// MarkPendingBC flags a request as submitted to the ledger.
func (m *StateMachine) MarkPendingBC(ctx context.Context, address string) error {
	return m.requests.MarkPendingBC(ctx, address)
}
