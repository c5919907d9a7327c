package access

import (
	"context"
)

// EndUserRequests returns one page of an end user's requests, each joined
// with its project, the institution manager's profile and the manager's
// registered public key (needed by the client to encrypt the handoff).
func (m *StateMachine) EndUserRequests(ctx context.Context, endUser string, page, limit int64, f Filter) ([]EnrichedRequest, *RequestListing, error) {
	listing, err := m.requests.ListForEndUser(ctx, endUser, page, limit, f)
	if err != nil {
		return nil, nil, err
	}

	enriched := make([]EnrichedRequest, 0, len(listing.Requests))
	for _, request := range listing.Requests {
		e := EnrichedRequest{Request: request}
		if project, err := m.projects.Get(ctx, request.Project); err == nil {
			e.ProjectInfo = project
		}
		if manager, err := m.users.Get(ctx, request.ResearchInstitutionManagerAddress); err == nil {
			e.ResearchInstitutionManager = manager
		}
		if key, err := m.keys.Get(ctx, request.ResearchInstitutionManagerAddress); err == nil {
			e.PublicKey = key
		}
		enriched = append(enriched, e)
	}
	return enriched, listing, nil
}

// InstitutionRequests returns one page of an institution's requests. The
// ciphertext and the end user's data location are disclosed only while
// access is granted and not revoked.
func (m *StateMachine) InstitutionRequests(ctx context.Context, institution string, page, limit int64, f Filter) ([]EnrichedRequest, *RequestListing, error) {
	listing, err := m.requests.ListForInstitution(ctx, institution, page, limit, f)
	if err != nil {
		return nil, nil, err
	}

	enriched := make([]EnrichedRequest, 0, len(listing.Requests))
	for _, request := range listing.Requests {
		e := EnrichedRequest{Request: request}
		if project, err := m.projects.Get(ctx, request.Project); err == nil {
			e.ProjectInfo = project
		}
		if request.Granted && !request.Revoked {
			if endUser, err := m.users.Get(ctx, request.EndUserAddress); err == nil {
				e.DataURL = endUser.DataURL
			}
		} else {
			e.EncryptedPassword = ""
		}
		enriched = append(enriched, e)
	}
	return enriched, listing, nil
}

// Projects returns one page of an institution's projects, each joined
// with its read-time stats and the owning manager's profile.
func (m *StateMachine) Projects(ctx context.Context, institution string, page, limit int64) ([]EnrichedProject, *ProjectListing, error) {
	listing, err := m.projects.List(ctx, page, limit, institution)
	if err != nil {
		return nil, nil, err
	}

	enriched := make([]EnrichedProject, 0, len(listing.Projects))
	for _, project := range listing.Projects {
		e := EnrichedProject{Project: project}
		stats, err := m.requests.ProjectStats(ctx, project.ResearchInstitutionManagerAddress, project.ID)
		if err != nil {
			return nil, nil, err
		}
		e.Stats = *stats
		if manager, err := m.users.Get(ctx, project.ResearchInstitutionManagerAddress); err == nil {
			e.ResearchInstitutionManager = manager
		}
		enriched = append(enriched, e)
	}
	return enriched, listing, nil
}
