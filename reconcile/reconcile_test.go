package reconcile_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zkpermit/zkpermit-go/access"
	"github.com/zkpermit/zkpermit-go/ledger"
	"github.com/zkpermit/zkpermit-go/logging"
	"github.com/zkpermit/zkpermit-go/memstore"
	"github.com/zkpermit/zkpermit-go/merkle"
	"github.com/zkpermit/zkpermit-go/reconcile"
	"github.com/zkpermit/zkpermit-go/registration"
	"github.com/zkpermit/zkpermit-go/user"
)

const (
	endUserAddr = "0x71c7656ec7ab88b098defb751b7401b5f6d8976f"
	managerAddr = "0xb49e15c4d78a1f3d82dd2a8600b2ad21f0490f0a"
)

// scriptSource replays a canned event log in block-sized pages.
type scriptSource struct {
	events []ledger.Event
	err    error
	polls  int
}

func (s *scriptSource) Poll(_ context.Context, from uint64) ([]ledger.Event, uint64, error) {
	s.polls++
	if s.err != nil {
		return nil, 0, s.err
	}
	next := from
	var out []ledger.Event
	for _, e := range s.events {
		if e.Block < from {
			continue
		}
		out = append(out, e)
		if e.Block >= next {
			next = e.Block + 1
		}
	}
	return out, next, nil
}

type fixture struct {
	source   *scriptSource
	users    *memstore.Users
	requests *memstore.AccessRequests
	projects *memstore.Projects
	register *memstore.RegisterRequests
	members  *merkle.Index
	accessSM *access.StateMachine
	rec      *reconcile.Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	members, err := merkle.NewIndex(ctx)
	require.NoError(t, err)

	f := &fixture{
		source:   &scriptSource{},
		users:    memstore.NewUsers(),
		requests: memstore.NewAccessRequests(),
		projects: memstore.NewProjects(),
		register: memstore.NewRegisterRequests(),
		members:  members,
	}
	log := logging.NewDiscard()
	queue := memstore.NewNotifications()
	f.accessSM = access.NewStateMachine(f.projects, f.requests, f.users, memstore.NewKeys(), queue, true, log)
	onboarding := registration.NewStateMachine(f.register, f.users, members, queue, log)
	f.rec = reconcile.New(f.source, onboarding, f.accessSM, f.users, members, 0, time.Minute, log)
	return f
}

// openProject seeds a manager, an end user and one project with its fanned
// out pending request, and returns the project.
func (f *fixture) openProject(t *testing.T) *access.Project {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, f.users.Create(ctx, user.User{
		Address: managerAddr, Surnames: "Hopper", InstitutionName: "Acme", Role: user.RoleResearchInstitutionManager,
	}))
	require.NoError(t, f.users.Create(ctx, user.User{
		Address: endUserAddr, Surnames: "Lovelace", Role: user.RoleEndUser,
	}))
	key, err := merkle.KeyFromAddress(endUserAddr)
	require.NoError(t, err)
	require.NoError(t, f.members.Insert(ctx, key))

	project, err := f.accessSM.OpenProject(ctx, managerAddr, "Study", "")
	require.NoError(t, err)
	return project
}

func TestStepAppliesGrantAndAdvancesCursor(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	project := f.openProject(t)

	f.source.events = []ledger.Event{
		{Type: ledger.EventGrantedAccessToInstitution, Block: 7,
			User: endUserAddr, Institution: managerAddr, Project: project.Address},
	}

	require.NoError(t, f.rec.Step(ctx))
	assert.Equal(t, uint64(8), f.rec.Cursor())

	r, err := f.requests.Get(ctx, endUserAddr, managerAddr, project.ID)
	require.NoError(t, err)
	assert.True(t, r.Granted)

	// The next pass re-delivers nothing and keeps the cursor.
	require.NoError(t, f.rec.Step(ctx))
	assert.Equal(t, uint64(8), f.rec.Cursor())
}

func TestStepSurfacesTransportErrors(t *testing.T) {
	f := newFixture(t)
	f.source.err = errors.New("rpc: connection refused")

	err := f.rec.Step(context.Background())
	require.Error(t, err)
	assert.Equal(t, uint64(0), f.rec.Cursor(), "a failed poll does not advance the cursor")
}

func TestReplayIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	project := f.openProject(t)

	f.source.events = []ledger.Event{
		{Type: ledger.EventGrantedAccessToInstitution, Block: 3,
			User: endUserAddr, Institution: managerAddr, Project: project.Address},
		{Type: ledger.EventRevokedAccessToInstitution, Block: 5,
			User: endUserAddr, Institution: managerAddr, Project: project.Address},
	}

	require.NoError(t, f.rec.Step(ctx))

	// A full replay from genesis re-applies both events without failing.
	replay := reconcile.New(f.source, registration.NewStateMachine(f.register, f.users, f.members,
		memstore.NewNotifications(), logging.NewDiscard()),
		f.accessSM, f.users, f.members, 0, time.Minute, logging.NewDiscard())
	require.NoError(t, replay.Step(ctx))

	r, err := f.requests.Get(ctx, endUserAddr, managerAddr, project.ID)
	require.NoError(t, err)
	assert.True(t, r.Revoked)
	assert.False(t, r.Granted)
}

func TestRevokeBeforeGrantDoesNotHalt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	project := f.openProject(t)

	// Delivery order across categories is not guaranteed. A revoke landing
	// before anything was granted is benign; the last event wins.
	f.rec.Apply(ctx, ledger.Event{Type: ledger.EventRevokedAccessToInstitution,
		User: endUserAddr, Institution: managerAddr, Project: project.Address})
	f.rec.Apply(ctx, ledger.Event{Type: ledger.EventGrantedAccessToInstitution,
		User: endUserAddr, Institution: managerAddr, Project: project.Address})

	r, err := f.requests.Get(ctx, endUserAddr, managerAddr, project.ID)
	require.NoError(t, err)
	assert.True(t, r.Granted)
	assert.False(t, r.Revoked)
}

func TestApplyToleratesStaleProject(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.openProject(t)

	// An event for a project this mirror never stored must not panic or
	// corrupt state.
	f.rec.Apply(ctx, ledger.Event{Type: ledger.EventGrantedAccessToInstitution,
		User: endUserAddr, Institution: managerAddr, Project: "0x00deadbeefdeadbeefdeadbeefdeadbeefdead00"})
}

func TestOnboardingEvent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.register.Create(ctx, registration.RegisterRequest{
		Address: endUserAddr, FirstName: "Ada", Surnames: "Lovelace", Role: user.RoleEndUser,
	}))

	f.source.events = []ledger.Event{
		{Type: ledger.EventGrantedAccessUser, Block: 1, User: endUserAddr, Role: user.LedgerRoleEndUser},
	}
	require.NoError(t, f.rec.Step(ctx))

	u, err := f.users.Get(ctx, endUserAddr)
	require.NoError(t, err)
	assert.Equal(t, user.RoleEndUser, u.Role)

	key, err := merkle.KeyFromAddress(endUserAddr)
	require.NoError(t, err)
	proof, err := f.members.Find(ctx, key)
	require.NoError(t, err)
	assert.True(t, proof.Found)
}

func TestUnregisterEvent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	project := f.openProject(t)

	require.NoError(t, f.accessSM.Grant(ctx, endUserAddr, managerAddr, project.Address))

	f.rec.Apply(ctx, ledger.Event{Type: ledger.EventUserUnregistered, User: endUserAddr})

	u, err := f.users.Get(ctx, endUserAddr)
	require.NoError(t, err)
	assert.True(t, u.Unregistered)

	r, err := f.requests.Get(ctx, endUserAddr, managerAddr, project.ID)
	require.NoError(t, err)
	assert.True(t, r.Revoked)

	key, err := merkle.KeyFromAddress(endUserAddr)
	require.NoError(t, err)
	proof, err := f.members.Find(ctx, key)
	require.NoError(t, err)
	assert.False(t, proof.Found)

	// Replayed unregistration finds all three steps already done.
	f.rec.Apply(ctx, ledger.Event{Type: ledger.EventUserUnregistered, User: endUserAddr})
}

func TestUnknownEventIsSkipped(t *testing.T) {
	f := newFixture(t)
	f.rec.Apply(context.Background(), ledger.Event{Type: "SomethingNew", Block: 9})
}

func TestPollErrorCountsAsOneAttempt(t *testing.T) {
	f := newFixture(t)
	f.source.err = errors.New("boom")

	_ = f.rec.Step(context.Background())
	_ = f.rec.Step(context.Background())
	assert.Equal(t, 2, f.source.polls)
}
