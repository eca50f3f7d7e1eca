// Package server is the HTTP surface over the attendance and session cores.
// Handlers stay thin: parse, authorize, delegate, translate errors.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/attendly/go-attendance-server/attendance"
	"github.com/attendly/go-attendance-server/auth"
	"github.com/attendly/go-attendance-server/internal/config"
	"github.com/attendly/go-attendance-server/sessions"
	"github.com/attendly/go-attendance-server/tenants"
	"github.com/attendly/go-attendance-server/users"
)

// Deps holds the services and repositories the handlers delegate to.
type Deps struct {
	Auth        *auth.Service
	Guard       *auth.Guard
	Ledger      *attendance.Ledger
	Coordinator *sessions.Coordinator
	Periods     attendance.PeriodRepo
	Tenants     tenants.Repo
}

type Server struct {
	config config.Config
	deps   Deps
	log    zerolog.Logger
	router chi.Router
}

func New(cfg config.Config, deps Deps, log zerolog.Logger) (*Server, error) {
	if deps.Auth == nil {
		return nil, errors.New("[server.New] auth service is required")
	}
	if deps.Guard == nil {
		return nil, errors.New("[server.New] guard is required")
	}
	if deps.Ledger == nil {
		return nil, errors.New("[server.New] attendance ledger is required")
	}
	if deps.Coordinator == nil {
		return nil, errors.New("[server.New] lifecycle coordinator is required")
	}
	if deps.Periods == nil {
		return nil, errors.New("[server.New] period repo is required")
	}
	if deps.Tenants == nil {
		return nil, errors.New("[server.New] tenant repo is required")
	}

	s := &Server{
		config: cfg,
		deps:   deps,
		log:    log,
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(s.config.GetStoreTimeout()))

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/logout", s.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(s.RequireAuth)

			r.Get("/auth/me", s.handleMe)

			r.Post("/attendance/check-in", s.handleCheckIn)
			r.Post("/attendance/check-out", s.handleCheckOut)
			r.Get("/attendance/history", s.handleHistory)

			r.Get("/periods", s.handleListPeriods)
			r.Post("/periods", s.handleCreatePeriod)

			r.With(s.RequireRoles(users.RoleSuperAdmin)).Get("/tenants", s.handleListTenants)
			r.Post("/tenants/{tenantID}/deactivate", s.handleDeactivateTenant)
			r.Delete("/tenants/{tenantID}", s.handleDeleteTenant)
		})
	})

	return r
}
