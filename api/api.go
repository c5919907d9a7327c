// Package api is the HTTP boundary. Handlers are thin translations
// between requests and the auth/directory/state-machine operations; all
// real invariants live below this package.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"
	apirouter "github.com/mrz1836/go-api-router"

	"github.com/zkpermit/zkpermit-go/access"
	"github.com/zkpermit/zkpermit-go/auth"
	"github.com/zkpermit/zkpermit-go/config"
	"github.com/zkpermit/zkpermit-go/faults"
	"github.com/zkpermit/zkpermit-go/logging"
	"github.com/zkpermit/zkpermit-go/merkle"
	"github.com/zkpermit/zkpermit-go/registration"
	"github.com/zkpermit/zkpermit-go/user"
)

// RoleResolver answers the read-only on-chain role lookup used by the
// authorization checks.
type RoleResolver interface {
	RoleOf(ctx context.Context, address string) (int64, error)
}

// Server bundles the dependencies every handler needs.
type Server struct {
	cfg        *config.Config
	protocol   *auth.Protocol
	onboarding *registration.StateMachine
	access     *access.StateMachine
	users      user.Directory
	requests   registration.Directory
	index      *merkle.Index
	roles      RoleResolver
	log        logging.Logger
}

// NewServer wires the handler set.
func NewServer(cfg *config.Config, protocol *auth.Protocol, onboarding *registration.StateMachine,
	accessSM *access.StateMachine, users user.Directory, requests registration.Directory,
	index *merkle.Index, roles RoleResolver, log logging.Logger) *Server {
	return &Server{
		cfg:        cfg,
		protocol:   protocol,
		onboarding: onboarding,
		access:     accessSM,
		users:      users,
		requests:   requests,
		index:      index,
		roles:      roles,
		log:        log,
	}
}

// authed wraps a handler with Bearer-token validation and hands it the
// authenticated address.
func (s *Server) authed(next func(http.ResponseWriter, *http.Request, httprouter.Params, string)) httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
		header := req.Header.Get("Authorization")
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer"))
		if token == "" {
			apirouter.ReturnResponse(w, req, http.StatusUnauthorized, map[string]string{"error": "missing token"})
			return
		}
		address, err := auth.AddressFromToken(token, []byte(s.cfg.JWTSecret))
		if err != nil {
			apirouter.ReturnResponse(w, req, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
			return
		}
		next(w, req, ps, user.NormalizeAddress(address))
	}
}

// statusFor maps the error taxonomy onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, faults.ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, faults.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, faults.ErrNotFound), errors.Is(err, faults.ErrStaleReference):
		return http.StatusNotFound
	case errors.Is(err, faults.ErrDuplicate), errors.Is(err, faults.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, faults.ErrValidation):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, req *http.Request, err error) {
	apirouter.ReturnResponse(w, req, statusFor(err), map[string]string{"error": err.Error()})
}

// roleOf resolves the caller's on-chain role, 0 when no resolver is
// configured (development without a ledger).
func (s *Server) roleOf(ctx context.Context, address string) int64 {
	if s.roles == nil {
		return 0
	}
	role, err := s.roles.RoleOf(ctx, address)
	if err != nil {
		s.log.Error("role lookup failed", "address", address, "err", err)
		return 0
	}
	return role
}

// hasRole checks the caller's on-chain role. Without a resolver every
// check passes; a ledgerless process has no role source to consult.
func (s *Server) hasRole(ctx context.Context, address string, role int64) bool {
	if s.roles == nil {
		return true
	}
	return s.roleOf(ctx, address) == role
}
