package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/zkpermit/zkpermit-go/database"
	"github.com/zkpermit/zkpermit-go/faults"
	"github.com/zkpermit/zkpermit-go/registration"
	"github.com/zkpermit/zkpermit-go/user"
)

// RegisterRequests is an in-memory registration.Directory.
type RegisterRequests struct {
	mu       sync.Mutex
	requests map[string]registration.RegisterRequest
}

func NewRegisterRequests() *RegisterRequests {
	return &RegisterRequests{requests: make(map[string]registration.RegisterRequest)}
}

func (s *RegisterRequests) Create(_ context.Context, r registration.RegisterRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.Address = user.NormalizeAddress(r.Address)
	if _, ok := s.requests[r.Address]; ok {
		return faults.ErrDuplicateRequest
	}
	s.requests[r.Address] = r
	return nil
}

func (s *RegisterRequests) Get(_ context.Context, address string) (*registration.RegisterRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[user.NormalizeAddress(address)]
	if !ok {
		return nil, fmt.Errorf("%w: register request %s", faults.ErrNotFound, user.NormalizeAddress(address))
	}
	return &r, nil
}

func (s *RegisterRequests) Delete(_ context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	address = user.NormalizeAddress(address)
	if _, ok := s.requests[address]; !ok {
		return fmt.Errorf("%w: register request %s", faults.ErrNotFound, address)
	}
	delete(s.requests, address)
	return nil
}

func (s *RegisterRequests) MarkPendingBC(_ context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	address = user.NormalizeAddress(address)
	r, ok := s.requests[address]
	if !ok {
		return fmt.Errorf("%w: register request %s", faults.ErrNotFound, address)
	}
	r.PendingBC = true
	s.requests[address] = r
	return nil
}

func (s *RegisterRequests) List(_ context.Context, page, limit int64, role user.Role) (*registration.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []registration.RegisterRequest
	for _, r := range s.requests {
		if r.Role == role && !r.PendingBC {
			matched = append(matched, r)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Surnames < matched[j].Surnames })

	p := database.NewPage(page, limit, int64(len(matched)))
	matched = slice(matched, p.Skip(), p.Limit)
	return &registration.Listing{Requests: matched, Page: p}, nil
}
