package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/zkpermit/zkpermit-go/auth"
	"github.com/zkpermit/zkpermit-go/faults"
	"github.com/zkpermit/zkpermit-go/logging"
	"github.com/zkpermit/zkpermit-go/notify"
	"github.com/zkpermit/zkpermit-go/user"
)

// StateMachine enforces the lifecycle of access requests:
// pending -> granted <-> revoked (toggled by ledger events), pending ->
// rejected (terminal), any -> deleted (explicit user action only).
type StateMachine struct {
	projects ProjectDirectory
	requests RequestDirectory
	users    user.Directory
	keys     auth.KeyRegistry
	queue    notify.Queue
	log      logging.Logger

	// development makes project fan-out synchronous and in-order so
	// integration tests observe a deterministic final state, and lifts
	// the delete guard on ledger-confirmed requests for test teardown.
	development bool
}

// NewStateMachine wires the machine against its collaborators.
func NewStateMachine(projects ProjectDirectory, requests RequestDirectory, users user.Directory,
	keys auth.KeyRegistry, queue notify.Queue, development bool, log logging.Logger) *StateMachine {
	return &StateMachine{
		projects:    projects,
		requests:    requests,
		users:       users,
		keys:        keys,
		queue:       queue,
		development: development,
		log:         log,
	}
}

// OpenProject creates a project with a deterministically derived address
// and fans out one pending access request per currently registered end
// user. In production each creation proceeds independently; failures are
// logged, never surfaced to the caller.
func (m *StateMachine) OpenProject(ctx context.Context, institution, title, description string) (*Project, error) {
	institution = user.NormalizeAddress(institution)

	id, err := m.projects.Create(ctx, Project{
		Title:                             title,
		Description:                       description,
		ResearchInstitutionManagerAddress: institution,
	})
	if err != nil {
		return nil, err
	}

	address, err := auth.DeriveAddress(id)
	if err != nil {
		return nil, err
	}
	if err = m.projects.SetAddress(ctx, id, address); err != nil {
		return nil, err
	}

	endUsers, err := m.users.EndUsers(ctx)
	if err != nil {
		return nil, err
	}

	project := &Project{
		ID:                                id,
		Title:                             title,
		Description:                       description,
		ResearchInstitutionManagerAddress: institution,
		Address:                           address,
	}

	for _, endUser := range endUsers {
		if m.development {
			m.createOne(ctx, endUser, institution, project)
			continue
		}
		go m.createOne(context.Background(), endUser, institution, project)
	}
	return project, nil
}

func (m *StateMachine) createOne(ctx context.Context, endUser user.User, institution string, project *Project) {
	if err := m.requests.Create(ctx, endUser.Address, institution, project.ID); err != nil {
		m.log.Error("access request fan-out failed",
			"endUser", endUser.Address, "institution", institution, "project", project.ID, "err", err)
		return
	}
	if endUser.Asleep || endUser.FirebaseCloudToken == "" {
		return
	}

	body := "New access request"
	if manager, err := m.users.Get(ctx, institution); err == nil && manager.InstitutionName != "" {
		body = fmt.Sprintf("Sent by %s", manager.InstitutionName)
	}
	if project.Title != "" {
		body += fmt.Sprintf(" for project %s", project.Title)
	}
	m.queue.Send(ctx, notify.Message{
		To:    endUser.FirebaseCloudToken,
		Title: "New access request",
		Body:  body,
	})
}

// Grant marks a triple granted. Invoked only by the event reconciler upon
// the corresponding ledger event; idempotent.
func (m *StateMachine) Grant(ctx context.Context, endUser, institution, projectAddress string) error {
	project, err := m.resolveProject(ctx, projectAddress)
	if err != nil {
		return err
	}
	return m.requests.Grant(ctx, endUser, institution, project.ID)
}

// Revoke marks a triple revoked and clears the ciphertext. Reconciler
// only; idempotent.
func (m *StateMachine) Revoke(ctx context.Context, endUser, institution, projectAddress string) error {
	project, err := m.resolveProject(ctx, projectAddress)
	if err != nil {
		return err
	}
	return m.requests.Revoke(ctx, endUser, institution, project.ID)
}

// RequestEncryptedHandoff stores ciphertext optimistically and raises
// pendingBC ahead of the ledger confirmation. Only the reconciler flips
// granted/revoked.
func (m *StateMachine) RequestEncryptedHandoff(ctx context.Context, endUser, institution, projectAddress, ciphertext string) error {
	project, err := m.resolveProject(ctx, projectAddress)
	if err != nil {
		return err
	}
	return m.requests.SetHandoff(ctx, endUser, institution, project.ID, ciphertext)
}

// Reject terminally rejects every request between the pair. No operation
// moves a rejected request back.
func (m *StateMachine) Reject(ctx context.Context, endUser, institution string) error {
	return m.requests.Reject(ctx, endUser, institution)
}

// Delete removes a request. A request that was ever granted or revoked is
// an auditable ledger-backed decision and must not be erased locally;
// development mode bypasses the guard. A request still awaiting ledger
// confirmation cannot be deleted either.
func (m *StateMachine) Delete(ctx context.Context, endUser, institution, projectAddress string) error {
	project, err := m.resolveProject(ctx, projectAddress)
	if err != nil {
		return err
	}
	request, err := m.requests.Get(ctx, endUser, institution, project.ID)
	if err != nil {
		return err
	}
	if request.PendingBC {
		return fmt.Errorf("%w: request awaiting ledger confirmation", faults.ErrForbidden)
	}
	if !m.development && (request.Granted || request.Revoked) {
		return fmt.Errorf("%w: request was decided on the ledger", faults.ErrForbidden)
	}
	return m.requests.Delete(ctx, endUser, institution, project.ID)
}

// RevokeAll revokes every non-rejected request of an end user. Invoked on
// unregistration.
func (m *StateMachine) RevokeAll(ctx context.Context, endUser string) error {
	return m.requests.RevokeAll(ctx, endUser)
}

// HasRequests reports whether any non-rejected request references the end
// user. Admin user deletion refuses to orphan such requests.
func (m *StateMachine) HasRequests(ctx context.Context, endUser string) (bool, error) {
	listing, err := m.requests.ListForEndUser(ctx, endUser, 1, 1, FilterNone)
	if err != nil {
		return false, err
	}
	return listing.Page.TotalDocs > 0, nil
}

func (m *StateMachine) resolveProject(ctx context.Context, projectAddress string) (*Project, error) {
	project, err := m.projects.GetByAddress(ctx, projectAddress)
	if err != nil {
		if errors.Is(err, faults.ErrNotFound) {
			return nil, fmt.Errorf("%w: project at %s", faults.ErrStaleReference, projectAddress)
		}
		return nil, err
	}
	return project, nil
}
