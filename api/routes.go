package api

import (
	apirouter "github.com/mrz1836/go-api-router"
)

// RegisterRoutes registers all the package specific routes.
func (s *Server) RegisterRoutes(router *apirouter.Router) {

	// Challenge/response login
	router.HTTPRouter.POST("/login", router.Request(s.challenge))
	router.HTTPRouter.POST("/login/verify", router.Request(s.verify))

	// Onboarding
	router.HTTPRouter.POST("/registerRequest", router.Request(s.createRegisterRequest))
	router.HTTPRouter.GET("/registerRequest/:address", router.Request(s.authed(s.getRegisterRequest)))
	router.HTTPRouter.GET("/registerRequests", router.Request(s.authed(s.listRegisterRequests)))
	router.HTTPRouter.DELETE("/registerRequest/:address", router.Request(s.authed(s.deleteRegisterRequest)))
	router.HTTPRouter.POST("/registerRequest/pending", router.Request(s.authed(s.markRegisterRequestPending)))

	// Users
	router.HTTPRouter.GET("/user/:address", router.Request(s.authed(s.getUser)))
	router.HTTPRouter.PUT("/user", router.Request(s.authed(s.updateUser)))
	router.HTTPRouter.DELETE("/user/:address", router.Request(s.authed(s.deleteUser)))
	router.HTTPRouter.GET("/endUserCount", router.Request(s.authed(s.endUserCount)))

	// Projects and access requests
	router.HTTPRouter.POST("/project", router.Request(s.authed(s.openProject)))
	router.HTTPRouter.GET("/projects", router.Request(s.authed(s.listProjects)))
	router.HTTPRouter.GET("/accessRequests", router.Request(s.authed(s.listEndUserRequests)))
	router.HTTPRouter.GET("/institution/accessRequests", router.Request(s.authed(s.listInstitutionRequests)))
	router.HTTPRouter.POST("/accessRequest/handoff", router.Request(s.authed(s.handoff)))
	router.HTTPRouter.POST("/accessRequest/reject", router.Request(s.authed(s.reject)))
	router.HTTPRouter.DELETE("/accessRequest", router.Request(s.authed(s.deleteAccessRequest)))

	// Membership proof
	router.HTTPRouter.GET("/siblings", router.Request(s.authed(s.siblings)))
}
