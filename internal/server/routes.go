package server

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/reliefmesh/reliefmesh-go/internal/api"
	authapi "github.com/reliefmesh/reliefmesh-go/internal/httpapi/auth"
	chatapi "github.com/reliefmesh/reliefmesh-go/internal/httpapi/chat"
	fulfillapi "github.com/reliefmesh/reliefmesh-go/internal/httpapi/fulfillments"
	inventoryapi "github.com/reliefmesh/reliefmesh-go/internal/httpapi/inventory"
	requestapi "github.com/reliefmesh/reliefmesh-go/internal/httpapi/requests"
	siteapi "github.com/reliefmesh/reliefmesh-go/internal/httpapi/site"
	supplierapi "github.com/reliefmesh/reliefmesh-go/internal/httpapi/suppliers"
	"github.com/reliefmesh/reliefmesh-go/internal/identity"
)

// publicExceptions are exact paths reachable without a session.
var publicExceptions = []string{
	"/api/healthz",
	"/api/auth/login",
	"/api/auth/register",
	"/api/site/feedback",
}

// publicPrefixes are path prefixes reachable without a session. Websocket
// joins carry their own ticket; informational pages are world readable.
var publicPrefixes = []string{
	"/api/site/pages",
	"/ws/",
}

func isAuthRequired(path string) bool {
	for _, p := range publicExceptions {
		if path == p {
			return false
		}
	}
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return false
		}
	}
	return true
}

func (s *Server) routes() http.Handler {
	cfg := s.deps.Config

	authHandler := authapi.NewHandler(s.deps.Backend, s.deps.Sessions, s.deps.Auth, cfg.Auth.SessionTTL())
	requestHandler := requestapi.NewHandler(s.deps.Requests)
	fulfillHandler := fulfillapi.NewHandler(s.deps.Coordinator)
	inventoryHandler := inventoryapi.NewHandler(s.deps.Ledger)
	supplierHandler := supplierapi.NewHandler(s.deps.Profiles, s.deps.Matcher)
	chatHandler := chatapi.NewHandler(s.deps.Threads, s.deps.Tickets)
	siteHandler := siteapi.NewHandler(s.deps.Backend)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(s.rateLimitMiddleware)
	r.Use(s.authMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		api.WriteError(w, http.StatusNotFound, "not_found", "no such endpoint")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		api.WriteError(w, http.StatusMethodNotAllowed, api.ReasonMethodNotAllowed, "method not allowed")
	})

	r.Get("/api/healthz", api.HealthHandler)

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
	})

	r.Route("/api/site", func(r chi.Router) {
		r.Get("/pages", siteHandler.ListPages)
		r.Get("/pages/{slug}", siteHandler.GetPage)
		r.Post("/feedback", siteHandler.SubmitFeedback)
	})

	r.Route("/api/requests", func(r chi.Router) {
		r.With(identity.RequireRole(identity.RoleRequester, identity.RoleOverseer)).
			Post("/", requestHandler.Create)
		r.Get("/", requestHandler.List)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", requestHandler.Get)
			r.Post("/complete", requestHandler.Complete)
			r.Post("/verify", requestHandler.Verify)
			r.Post("/reject", requestHandler.Reject)

			r.Route("/responders", func(r chi.Router) {
				r.Get("/", requestHandler.ListResponders)
				r.With(identity.RequireRole(
					identity.RoleOrganization, identity.RoleVolunteer,
					identity.RoleSupplier, identity.RoleOverseer,
				)).Post("/", requestHandler.AttachResponder)
				r.Delete("/", requestHandler.Withdraw)
			})

			r.Route("/fulfillments", func(r chi.Router) {
				r.Get("/", fulfillHandler.ListByRequest)
				r.With(identity.RequireRole(identity.RoleOrganization, identity.RoleOverseer)).
					Post("/", fulfillHandler.Create)
			})

			r.Route("/channel", func(r chi.Router) {
				r.Get("/", chatHandler.Recent)
				r.Post("/messages", chatHandler.Append)
				r.Post("/ticket", chatHandler.Ticket)
			})
		})
	})

	r.Route("/api/fulfillments/{id}", func(r chi.Router) {
		r.Get("/", fulfillHandler.Get)
		r.Post("/accept", fulfillHandler.Accept)
		r.Post("/reject", fulfillHandler.Reject)
		r.Post("/dispatch", fulfillHandler.Dispatch)
		r.Post("/deliver", fulfillHandler.Deliver)
		r.Post("/rate", fulfillHandler.Rate)
	})

	r.Route("/api/orgs", func(r chi.Router) {
		r.With(identity.RequireRole(identity.RoleOrganization)).
			Post("/", supplierHandler.CreateOrg)
		r.Get("/", supplierHandler.ListOrgs)
		r.Get("/{id}", supplierHandler.GetOrg)
		r.Put("/{id}", supplierHandler.UpdateOrg)
	})

	r.Route("/api/suppliers", func(r chi.Router) {
		r.With(identity.RequireRole(identity.RoleSupplier)).
			Post("/", supplierHandler.CreateSupplier)
		r.Get("/", supplierHandler.ListSuppliers)
		r.Get("/match", supplierHandler.Match)
		r.Get("/{id}", supplierHandler.GetSupplier)
		r.Put("/{id}", supplierHandler.UpdateSupplier)

		r.Route("/{id}/items", func(r chi.Router) {
			r.Get("/", inventoryHandler.ListBySupplier)
			r.With(identity.RequireRole(identity.RoleSupplier, identity.RoleOverseer)).
				Post("/", inventoryHandler.Create)
		})
		r.Get("/{id}/fulfillments", fulfillHandler.ListBySupplier)
	})

	r.Route("/api/items/{id}", func(r chi.Router) {
		r.Get("/", inventoryHandler.Get)
		r.Put("/", inventoryHandler.Edit)
		r.Put("/quantity", inventoryHandler.SetQuantity)
		r.Delete("/", inventoryHandler.Delete)
	})

	r.Get("/ws/requests/{id}", s.deps.Channels.ServeChannel)

	return r
}
