package registration_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zkpermit/zkpermit-go/faults"
	"github.com/zkpermit/zkpermit-go/logging"
	"github.com/zkpermit/zkpermit-go/memstore"
	"github.com/zkpermit/zkpermit-go/merkle"
	"github.com/zkpermit/zkpermit-go/registration"
	"github.com/zkpermit/zkpermit-go/user"
)

const endUserAddr = "0x71c7656ec7ab88b098defb751b7401b5f6d8976f"

type fixture struct {
	requests *memstore.RegisterRequests
	users    *memstore.Users
	members  *merkle.Index
	queue    *memstore.Notifications
	machine  *registration.StateMachine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	members, err := merkle.NewIndex(context.Background())
	require.NoError(t, err)

	f := &fixture{
		requests: memstore.NewRegisterRequests(),
		users:    memstore.NewUsers(),
		members:  members,
		queue:    memstore.NewNotifications(),
	}
	f.machine = registration.NewStateMachine(f.requests, f.users, f.members, f.queue, logging.NewDiscard())
	return f
}

func endUserRequest() registration.RegisterRequest {
	return registration.RegisterRequest{
		Address:            endUserAddr,
		FirstName:          "Ada",
		Surnames:           "Lovelace",
		Email:              "ada@example.org",
		Role:               user.RoleEndUser,
		FirebaseCloudToken: "fcm-token",
	}
}

func TestCreateRejectsUnknownRole(t *testing.T) {
	f := newFixture(t)

	r := endUserRequest()
	r.Role = "AUDITOR"
	err := f.machine.Create(context.Background(), r)
	require.ErrorIs(t, err, faults.ErrInvalidRole)
}

func TestCreateRejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.machine.Create(ctx, endUserRequest()))
	err := f.machine.Create(ctx, endUserRequest())
	require.ErrorIs(t, err, faults.ErrDuplicateRequest)
}

func TestOnboardEndUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.machine.Create(ctx, endUserRequest()))
	require.NoError(t, f.machine.Onboard(ctx, endUserAddr, user.LedgerRoleEndUser))

	// The request is consumed and the user exists with the ledger role.
	_, err := f.requests.Get(ctx, endUserAddr)
	require.ErrorIs(t, err, faults.ErrNotFound)

	u, err := f.users.Get(ctx, endUserAddr)
	require.NoError(t, err)
	assert.Equal(t, user.RoleEndUser, u.Role)
	assert.Equal(t, "Ada", u.FirstName)

	// End users join the membership tree.
	key, err := merkle.KeyFromAddress(endUserAddr)
	require.NoError(t, err)
	proof, err := f.members.Find(ctx, key)
	require.NoError(t, err)
	assert.True(t, proof.Found)

	messages := f.queue.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "fcm-token", messages[0].To)
}

func TestOnboardManagerSkipsMembershipTree(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	r := endUserRequest()
	r.Role = user.RoleResearchInstitutionManager
	r.InstitutionName = "Acme Research"
	require.NoError(t, f.machine.Create(ctx, r))
	require.NoError(t, f.machine.Onboard(ctx, endUserAddr, user.LedgerRoleResearchInstitutionManager))

	key, err := merkle.KeyFromAddress(endUserAddr)
	require.NoError(t, err)
	proof, err := f.members.Find(ctx, key)
	require.NoError(t, err)
	assert.False(t, proof.Found)
}

func TestOnboardWithoutRequestIsNoOp(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.machine.Onboard(ctx, endUserAddr, user.LedgerRoleEndUser))
	assert.Empty(t, f.queue.Messages())
}

func TestOnboardRejectsUnknownLedgerRole(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.machine.Create(ctx, endUserRequest()))
	err := f.machine.Onboard(ctx, endUserAddr, 2)
	require.ErrorIs(t, err, faults.ErrRoleConflict)

	// The request survives a conflicting grant.
	_, err = f.requests.Get(ctx, endUserAddr)
	require.NoError(t, err)
}

func TestOnboardLedgerRoleWinsOverRequested(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	r := endUserRequest()
	r.Role = user.RoleLicenseManager
	require.NoError(t, f.machine.Create(ctx, r))
	require.NoError(t, f.machine.Onboard(ctx, endUserAddr, user.LedgerRoleEndUser))

	u, err := f.users.Get(ctx, endUserAddr)
	require.NoError(t, err)
	assert.Equal(t, user.RoleEndUser, u.Role)
}

func TestOnboardReplayedGrantIsTolerated(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.machine.Create(ctx, endUserRequest()))
	require.NoError(t, f.machine.Onboard(ctx, endUserAddr, user.LedgerRoleEndUser))

	// A second delivery finds no request and returns cleanly.
	require.NoError(t, f.machine.Onboard(ctx, endUserAddr, user.LedgerRoleEndUser))

	// Replaying with the request re-created hits the existing user and
	// merkle key without failing.
	require.NoError(t, f.machine.Create(ctx, endUserRequest()))
	require.NoError(t, f.machine.Onboard(ctx, endUserAddr, user.LedgerRoleEndUser))
}

func TestDeleteAuthorization(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.machine.Create(ctx, endUserRequest()))

	other := "0x2910543af39aba0cd09dbb2d50200b3e800a63d2"
	err := f.machine.Delete(ctx, other, endUserAddr, false)
	require.ErrorIs(t, err, faults.ErrForbidden)

	// Owners delete their own request, admins delete anyone's.
	require.NoError(t, f.machine.Delete(ctx, endUserAddr, endUserAddr, false))
	require.NoError(t, f.machine.Create(ctx, endUserRequest()))
	require.NoError(t, f.machine.Delete(ctx, other, endUserAddr, true))
}

func TestMarkPendingBCHidesRequestFromListing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.machine.Create(ctx, endUserRequest()))
	require.NoError(t, f.machine.MarkPendingBC(ctx, endUserAddr))

	listing, err := f.requests.List(ctx, 1, 10, user.RoleEndUser)
	require.NoError(t, err)
	assert.Empty(t, listing.Requests)

	r, err := f.requests.Get(ctx, endUserAddr)
	require.NoError(t, err)
	assert.True(t, r.PendingBC)
}
