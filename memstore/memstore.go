// Package memstore provides in-memory implementations of every directory
// and store contract, backing the test suites of the packages that
// consume them.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/zkpermit/zkpermit-go/database"
	"github.com/zkpermit/zkpermit-go/faults"
	"github.com/zkpermit/zkpermit-go/user"
)

// Users is an in-memory user.Directory.
type Users struct {
	mu    sync.Mutex
	users map[string]user.User
}

func NewUsers() *Users {
	return &Users{users: make(map[string]user.User)}
}

func (s *Users) Create(_ context.Context, u user.User) error {
	if !u.Role.Valid() {
		return faults.ErrInvalidRole
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u.Address = user.NormalizeAddress(u.Address)
	if _, ok := s.users[u.Address]; ok {
		return fmt.Errorf("%w: user %s", faults.ErrDuplicate, u.Address)
	}
	s.users[u.Address] = u
	return nil
}

func (s *Users) Get(_ context.Context, address string) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[user.NormalizeAddress(address)]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", faults.ErrNotFound, user.NormalizeAddress(address))
	}
	return &u, nil
}

func (s *Users) Update(_ context.Context, address string, p user.ProfileUpdate) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	address = user.NormalizeAddress(address)
	u, ok := s.users[address]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", faults.ErrNotFound, address)
	}
	apply := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	apply(&u.FirstName, p.FirstName)
	apply(&u.Surnames, p.Surnames)
	apply(&u.Phone, p.Phone)
	apply(&u.Email, p.Email)
	apply(&u.InstitutionName, p.InstitutionName)
	apply(&u.CardID, p.CardID)
	apply(&u.DataURL, p.DataURL)
	apply(&u.FirebaseCloudToken, p.FirebaseCloudToken)
	if p.Asleep != nil {
		u.Asleep = *p.Asleep
	}
	s.users[address] = u
	return &u, nil
}

func (s *Users) Unregister(_ context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	address = user.NormalizeAddress(address)
	u, ok := s.users[address]
	if !ok {
		return fmt.Errorf("%w: user %s", faults.ErrNotFound, address)
	}
	u.Unregistered = true
	s.users[address] = u
	return nil
}

func (s *Users) Delete(_ context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	address = user.NormalizeAddress(address)
	if _, ok := s.users[address]; !ok {
		return fmt.Errorf("%w: user %s", faults.ErrNotFound, address)
	}
	delete(s.users, address)
	return nil
}

func (s *Users) List(_ context.Context, page, limit int64, role user.Role) (*user.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []user.User
	for _, u := range s.users {
		if u.Role == role && !u.Unregistered {
			matched = append(matched, u)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Surnames < matched[j].Surnames })

	p := database.NewPage(page, limit, int64(len(matched)))
	matched = slice(matched, p.Skip(), p.Limit)
	return &user.Listing{Users: matched, Page: p}, nil
}

func (s *Users) EndUsers(_ context.Context) ([]user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []user.User
	for _, u := range s.users {
		if u.Role == user.RoleEndUser && !u.Unregistered {
			matched = append(matched, u)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Address < matched[j].Address })
	return matched, nil
}

func (s *Users) EndUserCount(ctx context.Context) (int64, error) {
	users, err := s.EndUsers(ctx)
	if err != nil {
		return 0, err
	}
	return int64(len(users)), nil
}

func (s *Users) EndUserAddresses(ctx context.Context) ([]string, error) {
	users, err := s.EndUsers(ctx)
	if err != nil {
		return nil, err
	}
	addresses := make([]string, 0, len(users))
	for _, u := range users {
		addresses = append(addresses, u.Address)
	}
	return addresses, nil
}

func slice[T any](in []T, skip, limit int64) []T {
	if skip >= int64(len(in)) {
		return nil
	}
	in = in[skip:]
	if limit > 0 && limit < int64(len(in)) {
		in = in[:limit]
	}
	return in
}

// NewID returns an opaque unique identifier.
func NewID() string {
	return uuid.NewString()
}
