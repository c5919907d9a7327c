package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/zkpermit/zkpermit-go/access"
	"github.com/zkpermit/zkpermit-go/database"
	"github.com/zkpermit/zkpermit-go/faults"
	"github.com/zkpermit/zkpermit-go/user"
)

// Projects is an in-memory access.ProjectDirectory.
type Projects struct {
	mu       sync.Mutex
	projects map[string]access.Project
}

func NewProjects() *Projects {
	return &Projects{projects: make(map[string]access.Project)}
}

func (s *Projects) Create(_ context.Context, p access.Project) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = NewID()
	p.ResearchInstitutionManagerAddress = user.NormalizeAddress(p.ResearchInstitutionManagerAddress)
	s.projects[p.ID] = p
	return p.ID, nil
}

func (s *Projects) SetAddress(_ context.Context, id, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return fmt.Errorf("%w: project %s", faults.ErrNotFound, id)
	}
	p.Address = user.NormalizeAddress(address)
	s.projects[id] = p
	return nil
}

func (s *Projects) Get(_ context.Context, id string) (*access.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, fmt.Errorf("%w: project %s", faults.ErrNotFound, id)
	}
	return &p, nil
}

func (s *Projects) GetByAddress(_ context.Context, address string) (*access.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.projects {
		if p.Address == user.NormalizeAddress(address) {
			return &p, nil
		}
	}
	return nil, fmt.Errorf("%w: project at %s", faults.ErrNotFound, address)
}

func (s *Projects) List(_ context.Context, page, limit int64, institution string) (*access.ProjectListing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []access.Project
	for _, p := range s.projects {
		if institution == "" || p.ResearchInstitutionManagerAddress == user.NormalizeAddress(institution) {
			matched = append(matched, p)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Title < matched[j].Title })

	pg := database.NewPage(page, limit, int64(len(matched)))
	matched = slice(matched, pg.Skip(), pg.Limit)
	return &access.ProjectListing{Projects: matched, Page: pg}, nil
}

type tripleKey struct {
	endUser     string
	institution string
	project     string
}

// AccessRequests is an in-memory access.RequestDirectory.
type AccessRequests struct {
	mu       sync.Mutex
	requests map[tripleKey]access.Request
}

func NewAccessRequests() *AccessRequests {
	return &AccessRequests{requests: make(map[tripleKey]access.Request)}
}

func key(endUser, institution, projectID string) tripleKey {
	return tripleKey{
		endUser:     user.NormalizeAddress(endUser),
		institution: user.NormalizeAddress(institution),
		project:     projectID,
	}
}

func (s *AccessRequests) Create(_ context.Context, endUser, institution, projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(endUser, institution, projectID)
	if _, ok := s.requests[k]; ok {
		// Triples are never recreated.
		return nil
	}
	s.requests[k] = access.Request{
		EndUserAddress:                    k.endUser,
		ResearchInstitutionManagerAddress: k.institution,
		Project:                           k.project,
	}
	return nil
}

func (s *AccessRequests) Get(_ context.Context, endUser, institution, projectID string) (*access.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[key(endUser, institution, projectID)]
	if !ok {
		return nil, fmt.Errorf("%w: access request", faults.ErrNotFound)
	}
	return &r, nil
}

func (s *AccessRequests) Grant(_ context.Context, endUser, institution, projectID string) error {
	return s.decide(key(endUser, institution, projectID), func(r *access.Request) {
		r.Granted = true
		r.Revoked = false
		r.PendingBC = false
	})
}

func (s *AccessRequests) Revoke(_ context.Context, endUser, institution, projectID string) error {
	return s.decide(key(endUser, institution, projectID), func(r *access.Request) {
		r.Granted = false
		r.Revoked = true
		r.PendingBC = false
		r.EncryptedPassword = ""
	})
}

func (s *AccessRequests) decide(k tripleKey, apply func(*access.Request)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[k]
	if !ok || r.Rejected {
		return fmt.Errorf("%w: access request %s/%s/%s", faults.ErrStaleReference, k.endUser, k.institution, k.project)
	}
	apply(&r)
	s.requests[k] = r
	return nil
}

func (s *AccessRequests) Reject(_ context.Context, endUser, institution string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	endUser = user.NormalizeAddress(endUser)
	institution = user.NormalizeAddress(institution)
	matched := false
	for k, r := range s.requests {
		if k.endUser == endUser && k.institution == institution {
			r.Granted = false
			r.Revoked = false
			r.Rejected = true
			r.PendingBC = false
			s.requests[k] = r
			matched = true
		}
	}
	if !matched {
		return fmt.Errorf("%w: access request", faults.ErrStaleReference)
	}
	return nil
}

func (s *AccessRequests) SetHandoff(_ context.Context, endUser, institution, projectID, ciphertext string) error {
	return s.decide(key(endUser, institution, projectID), func(r *access.Request) {
		r.PendingBC = true
		r.EncryptedPassword = ciphertext
	})
}

func (s *AccessRequests) Delete(_ context.Context, endUser, institution, projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(endUser, institution, projectID)
	if _, ok := s.requests[k]; !ok {
		return fmt.Errorf("%w: access request", faults.ErrNotFound)
	}
	delete(s.requests, k)
	return nil
}

func (s *AccessRequests) RevokeAll(_ context.Context, endUser string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	endUser = user.NormalizeAddress(endUser)
	for k, r := range s.requests {
		if k.endUser == endUser && !r.Rejected {
			r.Granted = false
			r.Revoked = true
			r.PendingBC = false
			r.EncryptedPassword = ""
			s.requests[k] = r
		}
	}
	return nil
}

func matchFilter(r access.Request, f access.Filter) bool {
	switch f {
	case access.FilterPending:
		return r.Pending()
	case access.FilterGranted:
		return r.Granted
	case access.FilterRevoked:
		return r.Revoked
	case access.FilterRejected:
		return r.Rejected
	}
	return true
}

func (s *AccessRequests) ListForEndUser(_ context.Context, endUser string, page, limit int64, f access.Filter) (*access.RequestListing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	endUser = user.NormalizeAddress(endUser)
	var matched []access.Request
	for k, r := range s.requests {
		if k.endUser != endUser {
			continue
		}
		if r.Rejected && f != access.FilterRejected {
			continue
		}
		if matchFilter(r, f) {
			matched = append(matched, r)
		}
	}
	return s.listing(matched, page, limit), nil
}

func (s *AccessRequests) ListForInstitution(_ context.Context, institution string, page, limit int64, f access.Filter) (*access.RequestListing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	institution = user.NormalizeAddress(institution)
	var matched []access.Request
	for k, r := range s.requests {
		if k.institution == institution && matchFilter(r, f) {
			matched = append(matched, r)
		}
	}
	return s.listing(matched, page, limit), nil
}

func (s *AccessRequests) listing(matched []access.Request, page, limit int64) *access.RequestListing {
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].EndUserAddress != matched[j].EndUserAddress {
			return matched[i].EndUserAddress < matched[j].EndUserAddress
		}
		return matched[i].Project < matched[j].Project
	})
	p := database.NewPage(page, limit, int64(len(matched)))
	matched = slice(matched, p.Skip(), p.Limit)
	return &access.RequestListing{Requests: matched, Page: p}
}

func (s *AccessRequests) ProjectStats(_ context.Context, institution, projectID string) (*access.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	institution = user.NormalizeAddress(institution)
	stats := &access.Stats{}
	for k, r := range s.requests {
		if k.institution != institution || k.project != projectID {
			continue
		}
		switch {
		case r.Granted:
			stats.Granted++
		case r.Revoked:
			stats.Revoked++
		case r.Rejected:
			stats.Rejected++
		default:
			stats.Pending++
		}
	}
	return stats, nil
}
