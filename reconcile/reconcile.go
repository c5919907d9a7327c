// Package reconcile keeps the local mirror consistent with the ledger. It
// replays the contract's event log from a block cursor and applies each
// event idempotently to the directories and the Merkle index, assuming
// neither ordering across event categories nor exactly-once delivery.
package reconcile

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/zkpermit/zkpermit-go/access"
	"github.com/zkpermit/zkpermit-go/faults"
	"github.com/zkpermit/zkpermit-go/ledger"
	"github.com/zkpermit/zkpermit-go/logging"
	"github.com/zkpermit/zkpermit-go/merkle"
	"github.com/zkpermit/zkpermit-go/registration"
	"github.com/zkpermit/zkpermit-go/user"
)

// MembershipIndex is the slice of the Merkle index unregistration needs.
type MembershipIndex interface {
	Delete(ctx context.Context, key *big.Int) error
}

// Reconciler drives the mirror from the ledger's event log.
type Reconciler struct {
	source     ledger.Source
	onboarding *registration.StateMachine
	access     *access.StateMachine
	users      user.Directory
	members    MembershipIndex
	log        logging.Logger

	cursor   uint64
	interval time.Duration
}

// New builds a reconciler that replays from fromBlock (0 for a full
// genesis replay) and then polls every interval.
func New(source ledger.Source, onboarding *registration.StateMachine, accessSM *access.StateMachine,
	users user.Directory, members MembershipIndex, fromBlock uint64, interval time.Duration, log logging.Logger) *Reconciler {
	return &Reconciler{
		source:     source,
		onboarding: onboarding,
		access:     accessSM,
		users:      users,
		members:    members,
		log:        log,
		cursor:     fromBlock,
		interval:   interval,
	}
}

// Cursor returns the block the next poll resumes from.
func (r *Reconciler) Cursor() uint64 {
	return r.cursor
}

// Run polls until the context is cancelled. This is the process's only
// long-lived task; cancelling the context is the only shutdown it needs.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if err := r.Step(ctx); err != nil {
			r.log.Error("ledger poll failed", "cursor", r.cursor, "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Step performs one poll-and-apply pass and advances the cursor. Domain
// failures on individual events are suppressed into logs; only transport
// failures surface, leaving the cursor so the same range is re-polled.
func (r *Reconciler) Step(ctx context.Context) error {
	events, next, err := r.source.Poll(ctx, r.cursor)
	if err != nil {
		return err
	}
	for _, event := range events {
		r.Apply(ctx, event)
	}
	r.cursor = next
	return nil
}

// Apply dispatches a single event to the matching state machine. Stale,
// duplicate and already-applied outcomes are routine under full replay
// and at-least-once delivery; they are logged, never propagated. A
// malformed event must never halt the subscription.
func (r *Reconciler) Apply(ctx context.Context, event ledger.Event) {
	var err error
	switch event.Type {
	case ledger.EventGrantedAccessToInstitution:
		err = r.access.Grant(ctx, event.User, event.Institution, event.Project)
	case ledger.EventRevokedAccessToInstitution:
		err = r.access.Revoke(ctx, event.User, event.Institution, event.Project)
	case ledger.EventGrantedAccessUser:
		err = r.onboarding.Onboard(ctx, event.User, event.Role)
	case ledger.EventUserUnregistered:
		err = r.unregister(ctx, event.User)
	default:
		r.log.Warn("unknown ledger event", "type", event.Type, "block", event.Block)
		return
	}

	if err == nil {
		return
	}
	if faults.Benign(err) {
		r.log.Warn("event already applied or stale", "type", event.Type, "block", event.Block, "err", err)
		return
	}
	r.log.Error("event application failed", "type", event.Type, "block", event.Block, "err", err)
}

// unregister soft-deletes the user, revokes their outstanding requests
// and removes them from the membership tree. Each step tolerates the
// others having already happened in a previous replay.
func (r *Reconciler) unregister(ctx context.Context, address string) error {
	if err := r.users.Unregister(ctx, address); err != nil {
		if !errors.Is(err, faults.ErrNotFound) {
			return err
		}
		r.log.Warn("unregister for unknown user", "address", address)
	}
	if err := r.access.RevokeAll(ctx, address); err != nil {
		return err
	}

	key, err := merkle.KeyFromAddress(address)
	if err != nil {
		return err
	}
	if err = r.members.Delete(ctx, key); err != nil && !errors.Is(err, faults.ErrNotFound) {
		return err
	}
	return nil
}
