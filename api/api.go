// Package api exposes the administrative REST surface: session inspection
// and termination, ticket management, and read-only views of users and
// targets. All routes sit behind bearer-token authentication.
package api

import (
	_ "embed"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"

	"github.com/luxquant/omnitron/core"
)

//go:embed openapi.yaml
var openapiSpec []byte

// API holds the dependencies needed by the REST handlers.
type API struct {
	services *core.Services
	token    string
	log      *slog.Logger
}

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger for request-level events.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		a.log = logger.With("component", "api")
	}
}

// New creates a new API instance. token is the static admin bearer token
// from the configuration; API tokens stored on user records are accepted
// as well.
func New(services *core.Services, token string, opts ...Option) *API {
	a := &API{
		services: services,
		token:    token,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.log == nil {
		a.log = slog.New(slog.NewJSONHandler(os.Stderr, nil)).With("component", "api")
	}
	return a
}

// Router returns a chi.Router with all API routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})

	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/docs",
	}, nil))

	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/redoc",
	}, nil))

	r.With(a.TicketAuth).Post("/tickets/redeem", a.RedeemTicket)

	r.Group(func(r chi.Router) {
		r.Use(a.AuthMiddleware)

		r.Get("/sessions", a.ListSessions)
		r.Get("/sessions/{sessionID}", a.GetSession)
		r.Post("/sessions/{sessionID}/close", a.CloseSession)

		r.Get("/tickets", a.ListTickets)
		r.Post("/tickets", a.CreateTicket)
		r.Delete("/tickets/{ticketID}", a.DeleteTicket)

		r.Get("/users", a.ListUsers)
		r.Get("/targets", a.ListTargets)

		r.Get("/events", a.StreamEvents)
	})

	return r
}
