package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/zkpermit/zkpermit-go/faults"
	"github.com/zkpermit/zkpermit-go/notify"
	"github.com/zkpermit/zkpermit-go/user"
)

// Challenges is an in-memory auth.ChallengeStore.
type Challenges struct {
	mu     sync.Mutex
	nonces map[string]string
}

func NewChallenges() *Challenges {
	return &Challenges{nonces: make(map[string]string)}
}

func (s *Challenges) Put(_ context.Context, address, nonce string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nonces[user.NormalizeAddress(address)] = nonce
	return nil
}

func (s *Challenges) Get(_ context.Context, address string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	nonce, ok := s.nonces[user.NormalizeAddress(address)]
	if !ok {
		return "", faults.ErrNoChallenge
	}
	return nonce, nil
}

func (s *Challenges) Consume(_ context.Context, address, nonce string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	address = user.NormalizeAddress(address)
	if s.nonces[address] != nonce {
		return faults.ErrNoChallenge
	}
	delete(s.nonces, address)
	return nil
}

// Keys is an in-memory auth.KeyRegistry with write-once semantics.
type Keys struct {
	mu   sync.Mutex
	keys map[string]string
}

func NewKeys() *Keys {
	return &Keys{keys: make(map[string]string)}
}

func (s *Keys) Put(_ context.Context, address, publicKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	address = user.NormalizeAddress(address)
	if _, ok := s.keys[address]; ok {
		return nil
	}
	s.keys[address] = publicKey
	return nil
}

func (s *Keys) Get(_ context.Context, address string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.keys[user.NormalizeAddress(address)]
	if !ok {
		return "", fmt.Errorf("%w: public key for %s", faults.ErrNotFound, address)
	}
	return key, nil
}

// Len reports how many keys are registered.
func (s *Keys) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}

// Notifications records messages instead of delivering them.
type Notifications struct {
	mu       sync.Mutex
	messages []notify.Message
}

func NewNotifications() *Notifications {
	return &Notifications{}
}

func (s *Notifications) Send(_ context.Context, m notify.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, m)
}

// Messages returns a copy of everything sent so far.
func (s *Notifications) Messages() []notify.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]notify.Message, len(s.messages))
	copy(out, s.messages)
	return out
}
