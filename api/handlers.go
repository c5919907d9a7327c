package api

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	apirouter "github.com/mrz1836/go-api-router"

	"github.com/zkpermit/zkpermit-go/access"
	"github.com/zkpermit/zkpermit-go/auth"
	"github.com/zkpermit/zkpermit-go/merkle"
	"github.com/zkpermit/zkpermit-go/registration"
	"github.com/zkpermit/zkpermit-go/user"
)

func (s *Server) challenge(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
	params := apirouter.GetParams(req)
	address := params.GetString("address")
	if address == "" {
		apirouter.ReturnResponse(w, req, http.StatusBadRequest, map[string]string{"error": "address is required"})
		return
	}

	nonce, err := s.protocol.IssueChallenge(req.Context(), address)
	if err != nil {
		s.fail(w, req, err)
		return
	}
	apirouter.ReturnResponse(w, req, http.StatusOK, map[string]string{"challenge": nonce})
}

func (s *Server) verify(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
	params := apirouter.GetParams(req)
	address := params.GetString("address")

	var session *auth.Session
	var err error
	if signature := params.GetString("signature"); signature != "" {
		session, err = s.protocol.VerifyHex(req.Context(), address, signature)
	} else {
		session, err = s.protocol.Verify(req.Context(), address, auth.StructuredSignature{
			V:           uint8(params.GetInt("v")),
			R:           params.GetString("r"),
			S:           params.GetString("s"),
			MessageHash: params.GetString("messageHash"),
			Message:     params.GetString("message"),
		})
	}
	if err != nil {
		s.fail(w, req, err)
		return
	}
	apirouter.ReturnResponse(w, req, http.StatusOK, session)
}

func (s *Server) createRegisterRequest(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
	params := apirouter.GetParams(req)
	request := registration.RegisterRequest{
		Address:            params.GetString("address"),
		FirstName:          params.GetString("firstName"),
		Surnames:           params.GetString("surnames"),
		Phone:              params.GetString("phone"),
		Email:              params.GetString("email"),
		InstitutionName:    params.GetString("institutionName"),
		CardID:             params.GetString("cardId"),
		Role:               user.Role(params.GetString("role")),
		DataURL:            params.GetString("dataUrl"),
		FirebaseCloudToken: params.GetString("firebaseCloudToken"),
	}
	if err := s.onboarding.Create(req.Context(), request); err != nil {
		s.fail(w, req, err)
		return
	}
	apirouter.ReturnResponse(w, req, http.StatusCreated, request)
}

func (s *Server) getRegisterRequest(w http.ResponseWriter, req *http.Request, ps httprouter.Params, caller string) {
	request, err := s.requests.Get(req.Context(), ps.ByName("address"))
	if err != nil {
		s.fail(w, req, err)
		return
	}
	apirouter.ReturnResponse(w, req, http.StatusOK, request)
}

func (s *Server) listRegisterRequests(w http.ResponseWriter, req *http.Request, _ httprouter.Params, caller string) {
	params := apirouter.GetParams(req)
	listing, err := s.requests.List(req.Context(),
		int64(params.GetInt("page")), int64(params.GetInt("limit")),
		user.Role(params.GetString("role")))
	if err != nil {
		s.fail(w, req, err)
		return
	}
	apirouter.ReturnResponse(w, req, http.StatusOK, listing)
}

func (s *Server) deleteRegisterRequest(w http.ResponseWriter, req *http.Request, ps httprouter.Params, caller string) {
	target := ps.ByName("address")
	isAdmin := s.roleOf(req.Context(), caller) == user.LedgerRoleLicenseManager
	if err := s.onboarding.Delete(req.Context(), caller, target, isAdmin); err != nil {
		s.fail(w, req, err)
		return
	}
	apirouter.ReturnResponse(w, req, http.StatusOK, map[string]string{"deleted": user.NormalizeAddress(target)})
}

func (s *Server) markRegisterRequestPending(w http.ResponseWriter, req *http.Request, _ httprouter.Params, caller string) {
	if err := s.onboarding.MarkPendingBC(req.Context(), caller); err != nil {
		s.fail(w, req, err)
		return
	}
	apirouter.ReturnResponse(w, req, http.StatusOK, map[string]bool{"pendingBC": true})
}

func (s *Server) getUser(w http.ResponseWriter, req *http.Request, ps httprouter.Params, _ string) {
	u, err := s.users.Get(req.Context(), ps.ByName("address"))
	if err != nil {
		s.fail(w, req, err)
		return
	}
	apirouter.ReturnResponse(w, req, http.StatusOK, u)
}

func (s *Server) updateUser(w http.ResponseWriter, req *http.Request, _ httprouter.Params, caller string) {
	params := apirouter.GetParams(req)
	update := user.ProfileUpdate{}
	assign := func(key string, dst **string) {
		if v := params.GetString(key); v != "" {
			*dst = &v
		}
	}
	assign("firstName", &update.FirstName)
	assign("surnames", &update.Surnames)
	assign("phone", &update.Phone)
	assign("email", &update.Email)
	assign("institutionName", &update.InstitutionName)
	assign("cardId", &update.CardID)
	assign("dataUrl", &update.DataURL)
	assign("firebaseCloudToken", &update.FirebaseCloudToken)
	if asleep, ok := params.GetBoolOk("asleep"); ok {
		update.Asleep = &asleep
	}

	u, err := s.users.Update(req.Context(), caller, update)
	if err != nil {
		s.fail(w, req, err)
		return
	}
	apirouter.ReturnResponse(w, req, http.StatusOK, u)
}

// endUserCount tells clients how many leaves the membership tree holds.
func (s *Server) endUserCount(w http.ResponseWriter, req *http.Request, _ httprouter.Params, _ string) {
	count, err := s.users.EndUserCount(req.Context())
	if err != nil {
		s.fail(w, req, err)
		return
	}
	apirouter.ReturnResponse(w, req, http.StatusOK, map[string]int64{"endUserCount": count})
}

// deleteUser is the admin cleanup path: it removes the record outright,
// unlike ledger-driven unregistration which only flips a flag.
func (s *Server) deleteUser(w http.ResponseWriter, req *http.Request, ps httprouter.Params, caller string) {
	if !s.hasRole(req.Context(), caller, user.LedgerRoleLicenseManager) {
		apirouter.ReturnResponse(w, req, http.StatusForbidden, map[string]string{"error": "delete user forbidden"})
		return
	}

	target := user.NormalizeAddress(ps.ByName("address"))
	u, err := s.users.Get(req.Context(), target)
	if err != nil {
		s.fail(w, req, err)
		return
	}

	if !s.cfg.Development {
		busy, err := s.access.HasRequests(req.Context(), target)
		if err != nil {
			s.fail(w, req, err)
			return
		}
		if busy {
			apirouter.ReturnResponse(w, req, http.StatusConflict, map[string]string{"error": "user has access requests"})
			return
		}
	}

	if u.Role == user.RoleEndUser {
		if key, err := merkle.KeyFromAddress(target); err == nil {
			if err = s.index.Delete(req.Context(), key); err != nil {
				s.log.Warn("merkle delete on user removal failed", "address", target, "err", err)
			}
		}
	}

	if err = s.users.Delete(req.Context(), target); err != nil {
		s.fail(w, req, err)
		return
	}
	apirouter.ReturnResponse(w, req, http.StatusOK, map[string]string{"deleted": target})
}

func (s *Server) openProject(w http.ResponseWriter, req *http.Request, _ httprouter.Params, caller string) {
	if !s.hasRole(req.Context(), caller, user.LedgerRoleResearchInstitutionManager) {
		apirouter.ReturnResponse(w, req, http.StatusForbidden, map[string]string{"error": "open project forbidden"})
		return
	}

	params := apirouter.GetParams(req)
	title := params.GetString("title")
	description := params.GetString("description")
	if title == "" || description == "" {
		apirouter.ReturnResponse(w, req, http.StatusBadRequest, map[string]string{"error": "title and description are required"})
		return
	}

	project, err := s.access.OpenProject(req.Context(), caller, title, description)
	if err != nil {
		s.fail(w, req, err)
		return
	}
	apirouter.ReturnResponse(w, req, http.StatusCreated, map[string]string{"address": project.Address})
}

func (s *Server) listProjects(w http.ResponseWriter, req *http.Request, _ httprouter.Params, caller string) {
	params := apirouter.GetParams(req)
	projects, listing, err := s.access.Projects(req.Context(), caller,
		int64(params.GetInt("page")), int64(params.GetInt("limit")))
	if err != nil {
		s.fail(w, req, err)
		return
	}
	apirouter.ReturnResponse(w, req, http.StatusOK, map[string]interface{}{
		"projects": projects,
		"page":     listing.Page,
	})
}

func (s *Server) listEndUserRequests(w http.ResponseWriter, req *http.Request, _ httprouter.Params, caller string) {
	params := apirouter.GetParams(req)
	requests, listing, err := s.access.EndUserRequests(req.Context(), caller,
		int64(params.GetInt("page")), int64(params.GetInt("limit")),
		access.Filter(params.GetString("filter")))
	if err != nil {
		s.fail(w, req, err)
		return
	}
	apirouter.ReturnResponse(w, req, http.StatusOK, map[string]interface{}{
		"accessRequests": requests,
		"page":           listing.Page,
	})
}

func (s *Server) listInstitutionRequests(w http.ResponseWriter, req *http.Request, _ httprouter.Params, caller string) {
	params := apirouter.GetParams(req)
	requests, listing, err := s.access.InstitutionRequests(req.Context(), caller,
		int64(params.GetInt("page")), int64(params.GetInt("limit")),
		access.Filter(params.GetString("filter")))
	if err != nil {
		s.fail(w, req, err)
		return
	}
	apirouter.ReturnResponse(w, req, http.StatusOK, map[string]interface{}{
		"accessRequests": requests,
		"page":           listing.Page,
	})
}

func (s *Server) handoff(w http.ResponseWriter, req *http.Request, _ httprouter.Params, caller string) {
	if !s.hasRole(req.Context(), caller, user.LedgerRoleEndUser) {
		apirouter.ReturnResponse(w, req, http.StatusForbidden, map[string]string{"error": "handoff forbidden"})
		return
	}

	params := apirouter.GetParams(req)
	err := s.access.RequestEncryptedHandoff(req.Context(), caller,
		params.GetString("researchInstitutionManagerAddress"),
		params.GetString("project"),
		params.GetString("encryptedPassword"))
	if err != nil {
		s.fail(w, req, err)
		return
	}
	apirouter.ReturnResponse(w, req, http.StatusOK, map[string]bool{"pendingBC": true})
}

func (s *Server) reject(w http.ResponseWriter, req *http.Request, _ httprouter.Params, caller string) {
	if !s.hasRole(req.Context(), caller, user.LedgerRoleEndUser) {
		apirouter.ReturnResponse(w, req, http.StatusForbidden, map[string]string{"error": "reject forbidden"})
		return
	}

	params := apirouter.GetParams(req)
	err := s.access.Reject(req.Context(), caller, params.GetString("researchInstitutionManagerAddress"))
	if err != nil {
		s.fail(w, req, err)
		return
	}
	apirouter.ReturnResponse(w, req, http.StatusOK, map[string]bool{"rejected": true})
}

func (s *Server) deleteAccessRequest(w http.ResponseWriter, req *http.Request, _ httprouter.Params, caller string) {
	if !s.hasRole(req.Context(), caller, user.LedgerRoleEndUser) {
		apirouter.ReturnResponse(w, req, http.StatusForbidden, map[string]string{"error": "delete access request forbidden"})
		return
	}

	params := apirouter.GetParams(req)
	err := s.access.Delete(req.Context(), caller,
		params.GetString("researchInstitutionManagerAddress"),
		params.GetString("project"))
	if err != nil {
		s.fail(w, req, err)
		return
	}
	apirouter.ReturnResponse(w, req, http.StatusOK, map[string]bool{"deleted": true})
}

// siblings hands an end user the Merkle proof for their own address. The
// on-chain role gate keeps non-members from probing the tree.
func (s *Server) siblings(w http.ResponseWriter, req *http.Request, _ httprouter.Params, caller string) {
	if !s.hasRole(req.Context(), caller, user.LedgerRoleEndUser) {
		apirouter.ReturnResponse(w, req, http.StatusForbidden, map[string]string{"error": "get siblings forbidden"})
		return
	}

	key, err := merkle.KeyFromAddress(caller)
	if err != nil {
		s.fail(w, req, err)
		return
	}
	proof, err := s.index.Find(req.Context(), key)
	if err != nil {
		s.fail(w, req, err)
		return
	}
	apirouter.ReturnResponse(w, req, http.StatusOK, proof)
}
